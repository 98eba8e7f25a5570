package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lifeline/internal/engine"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/stream"
)

var (
	analyzeInput   string
	analyzeAccount string
	analyzeQuiet   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis from a JSON request and print the result",
	Long: "Reads an analysis request (the /api/analyze body) from --input or stdin, runs it through the same " +
		"fallback, normalization and settlement path as the server, and prints the complete payload as JSON. " +
		"With --account the run is charged to that account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		req, err := readRequest(cmd.InOrStdin(), analyzeInput)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run := engine.Run{Request: req, Origin: model.Origin{IP: "127.0.0.1", UserAgent: "lifeline-cli"}}
		if analyzeAccount != "" {
			acct, err := lookupAccount(cmd, st, analyzeAccount)
			if err != nil {
				return err
			}
			run.Caller = &model.Caller{AccountID: acct.ID, Email: acct.Email, Balance: acct.Points}
			if !req.UseCustomAPI && !newCalculator().Affordable(acct.Points) {
				return eris.Errorf("analyze: %s has %d points, %d required", acct.Email, acct.Points, newCalculator().PerAnalysis())
			}
		}

		stderr := cmd.ErrOrStderr()
		col := stream.NewCollector(func(stage, message string) {
			if !analyzeQuiet {
				fmt.Fprintf(stderr, "[%s] %s\n", stage, message)
			}
		})

		payload, runErr := newEngine(st, cfg.Upstream.SyncTimeout()).Run(ctx, run, col)
		if runErr != nil {
			if _, failure := col.Result(); failure != nil {
				writeIndented(cmd.OutOrStdout(), failure) //nolint:errcheck
			}
			return runErr
		}
		return writeIndented(cmd.OutOrStdout(), payload)
	},
}

// readRequest decodes a request from path, or from stdin when path is
// empty or "-".
func readRequest(stdin io.Reader, path string) (model.AnalysisRequest, error) {
	var req model.AnalysisRequest
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, eris.Wrap(err, "analyze: open input")
		}
		defer f.Close() //nolint:errcheck
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, eris.Wrap(err, "analyze: decode request")
	}
	return req, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return eris.Wrap(enc.Encode(v), "write output")
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeInput, "input", "i", "", "request JSON file (default stdin)")
	analyzeCmd.Flags().StringVar(&analyzeAccount, "account", "", "charge the run to this account ID or email")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(analyzeCmd)
}
