package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect an account's saved analyses",
}

var (
	historyAccount string
	historyLimit   int
	historyOffset  int
)

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an account's analyses, newest first",
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

		acct, err := lookupAccount(cmd, st, historyAccount)
		if err != nil {
			return err
		}
		rows, err := st.ListAnalyses(ctx, store.HistoryFilter{
			AccountID: acct.ID,
			Limit:     historyLimit,
			Offset:    historyOffset,
		})
		if err != nil {
			return eris.Wrap(err, "history list")
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No analyses found.")
			return nil
		}
		formatHistory(cmd.OutOrStdout(), rows)
		return nil
	},
}

// -- history show --

var historyShowCmd = &cobra.Command{
	Use:   "show <analysis-id>",
	Short: "Print a saved analysis as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		acct, err := lookupAccount(cmd, st, historyAccount)
		if err != nil {
			return err
		}
		rec, err := st.GetAnalysis(ctx, acct.ID, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}
		if rec == nil {
			return eris.Errorf("history show: analysis %s not found for %s", args[0], acct.Email)
		}
		return writeIndented(cmd.OutOrStdout(), rec)
	},
}

func formatHistory(w io.Writer, rows []model.AnalysisSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tNAME\tBORN\tCOST\tMODEL\tSUMMARY")
	for _, a := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			a.ID, a.CreatedAt.Format(time.DateTime), a.Name, a.BirthYear, a.Cost, a.ModelUsed, truncate(a.Summary, 40))
	}
	tw.Flush() //nolint:errcheck
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyAccount, "account", "", "account ID or email")
	_ = historyCmd.MarkPersistentFlagRequired("account")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "max rows")
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "rows to skip")
	historyCmd.AddCommand(historyListCmd, historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
