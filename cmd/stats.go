package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/lifeline/internal/monitoring"
)

var (
	statsHours int
	statsJSON  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize accounts, analyses and points charged",
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

		snap, err := monitoring.NewCollector(st).Collect(ctx, statsHours)
		if err != nil {
			return err
		}
		if statsJSON {
			return writeIndented(cmd.OutOrStdout(), snap)
		}
		formatStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

func formatStats(w io.Writer, s *monitoring.MetricsSnapshot) {
	window := "all time"
	if s.LookbackHours > 0 {
		window = fmt.Sprintf("last %dh", s.LookbackHours)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Window:\t%s\n", window)
	fmt.Fprintf(tw, "Accounts:\t%d\n", s.Accounts)
	fmt.Fprintf(tw, "Points outstanding:\t%d\n", s.PointsBalance)
	fmt.Fprintf(tw, "Analyses:\t%d\n", s.Analyses)
	fmt.Fprintf(tw, "  charged:\t%d\n", s.ChargedAnalyses)
	fmt.Fprintf(tw, "  guest:\t%d (%.1f%%)\n", s.GuestAnalyses, s.GuestShare*100)
	fmt.Fprintf(tw, "Custom-credential runs:\t%d\n", s.CustomInputs)
	fmt.Fprintf(tw, "Points charged:\t%d\n", s.PointsCharged)
	fmt.Fprintf(tw, "Collected:\t%s\n", s.CollectedAt.Format(time.RFC3339))
	tw.Flush() //nolint:errcheck
}

func init() {
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "lookback window in hours (0 for all time)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statsCmd)
}
