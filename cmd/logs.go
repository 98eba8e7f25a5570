package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/lifeline/internal/model"
)

var (
	logsLimit int
	logsJSON  bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the most recent audit events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		events, err := st.RecentLogs(ctx, logsLimit)
		if err != nil {
			return err
		}
		if logsJSON {
			return writeIndented(cmd.OutOrStdout(), events)
		}
		formatLogs(cmd.OutOrStdout(), events)
		return nil
	},
}

func formatLogs(w io.Writer, events []model.LogEvent) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLEVEL\tACCOUNT\tIP\tMESSAGE")
	for _, ev := range events {
		account := "-"
		if ev.AccountID != nil {
			account = *ev.AccountID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Format(time.RFC3339), ev.Level, account, ev.IPAddress, truncate(ev.Message, 60))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "maximum number of events")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "print the events as JSON")
	rootCmd.AddCommand(logsCmd)
}
