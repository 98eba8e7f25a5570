package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/store"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage point accounts",
	Long:  "Create accounts with the free starting balance, inspect them, and issue session tokens.",
}

// -- accounts create --

var accountsCreatePoints int

var accountsCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create an account with the starting balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		email := strings.ToLower(strings.TrimSpace(args[0]))
		if !strings.Contains(email, "@") {
			return eris.Errorf("accounts create: invalid email %q", args[0])
		}
		points := accountsCreatePoints
		if points < 0 {
			points = newCalculator().InitialPoints()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		existing, err := st.GetAccountByEmail(ctx, email)
		if err != nil {
			return eris.Wrap(err, "accounts create")
		}
		if existing != nil {
			return eris.Errorf("accounts create: %s already exists (%s)", email, existing.ID)
		}

		acct, err := st.CreateAccount(ctx, email, points)
		if err != nil {
			return eris.Wrap(err, "accounts create")
		}
		if err := st.LogEvent(ctx, model.LogEvent{
			Level:     model.LogLevelInfo,
			Message:   "account created",
			AccountID: &acct.ID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			zap.L().Warn("accounts: audit log failed", zap.Error(err))
		}

		formatAccount(cmd.OutOrStdout(), acct)
		return nil
	},
}

// -- accounts show --

var accountsShowCmd = &cobra.Command{
	Use:   "show <account-id|email>",
	Short: "Show an account and its balance",
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

		acct, err := lookupAccount(cmd, st, args[0])
		if err != nil {
			return err
		}
		formatAccount(cmd.OutOrStdout(), acct)
		return nil
	},
}

// -- accounts token --

var accountsTokenCmd = &cobra.Command{
	Use:   "token <account-id|email>",
	Short: "Issue a session token for an account",
	Long:  "Prints a signed token. Send it as the session cookie or as an Authorization: Bearer header.",
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

		acct, err := lookupAccount(cmd, st, args[0])
		if err != nil {
			return err
		}
		tok, err := newResolver(st).Issue(*acct)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

// lookupAccount resolves an ID or, when ref contains "@", an email.
func lookupAccount(cmd *cobra.Command, st store.Store, ref string) (*model.Account, error) {
	ctx := cmd.Context()
	var (
		acct *model.Account
		err  error
	)
	if strings.Contains(ref, "@") {
		acct, err = st.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(ref)))
	} else {
		acct, err = st.GetAccount(ctx, ref)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "accounts: look up %s", ref)
	}
	if acct == nil {
		return nil, eris.Wrapf(store.ErrAccountNotFound, "accounts: %s", ref)
	}
	return acct, nil
}

func formatAccount(w io.Writer, a *model.Account) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", a.ID)
	fmt.Fprintf(tw, "Email:\t%s\n", a.Email)
	fmt.Fprintf(tw, "Points:\t%d\n", a.Points)
	fmt.Fprintf(tw, "Created:\t%s\n", a.CreatedAt.Format(time.RFC3339))
	tw.Flush() //nolint:errcheck
}

func init() {
	accountsCreateCmd.Flags().IntVar(&accountsCreatePoints, "points", -1, "starting balance (default billing.free_init_points)")
	accountsCmd.AddCommand(accountsCreateCmd, accountsShowCmd, accountsTokenCmd)
	rootCmd.AddCommand(accountsCmd)
}
