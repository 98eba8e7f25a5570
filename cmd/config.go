package main

import (
	"io"
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lifeline/internal/config"
)

const redacted = "[redacted]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as YAML with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

// redactConfig returns a copy of c with credentials masked.
func redactConfig(c config.Config) config.Config {
	if c.Upstream.APIKey != "" {
		c.Upstream.APIKey = redacted
	}
	if c.Auth.JWTSecret != "" && c.Auth.JWTSecret != config.DevJWTSecret {
		c.Auth.JWTSecret = redacted
	}
	if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			c.Store.DatabaseURL = u.String()
		}
	}
	if c.Monitoring.WebhookURL != "" {
		c.Monitoring.WebhookURL = redacted
	}
	return c
}

func writeConfig(w io.Writer, c *config.Config) error {
	if c == nil {
		return eris.New("config: not loaded")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redactConfig(*c)); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return eris.Wrap(enc.Close(), "config: flush yaml")
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
