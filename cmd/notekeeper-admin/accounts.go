package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/notekeeper/internal/data"
	"github.com/target/notekeeper/internal/domain/model"
	"github.com/target/notekeeper/internal/http/uiutil"
	"github.com/target/notekeeper/internal/service"
)

type listAccountsOptions struct {
	Limit   int
	Offset  int
	JSON    bool
	Timeout time.Duration
}

type accountTarget struct {
	ID      string
	Email   string
	Yes     bool
	Timeout time.Duration
}

func runListAccounts(cmdCtx *commandContext, args []string) error {
	opts, err := parseListAccountsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		accounts, err := data.NewAccountRepo(db).List(ctx, opts.Limit, opts.Offset)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		if opts.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(accounts)
		}
		return printAccounts(os.Stdout, accounts)
	})
}

func printAccounts(w io.Writer, accounts []*model.Account) error {
	if len(accounts) == 0 {
		return writeln(w, "No accounts found.")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "ID\tEMAIL\tPROVIDER\tCONFIRMED\tCREATED"); err != nil {
		return err
	}
	for _, a := range accounts {
		if err := writef(tw, "%s\t%s\t%s\t%t\t%s\n",
			a.ID, a.Email, a.Provider, a.Confirmed, uiutil.DateTime(a.CreatedAt)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runConfirmAccount(cmdCtx *commandContext, args []string) error {
	target, err := parseAccountTargetFlags("confirm-account", args)
	if err != nil {
		return err
	}
	return withAuthService(cmdCtx, target.Timeout, func(ctx context.Context, db *sql.DB, auth *service.AuthService) error {
		acct, err := resolveAccount(ctx, db, target)
		if err != nil {
			return err
		}
		if err := auth.ConfirmAccount(ctx, acct.ID); err != nil {
			return fmt.Errorf("confirm account: %w", err)
		}
		return writef(os.Stdout, "Confirmed %s (%s)\n", acct.Email, acct.ID)
	})
}

func runDeleteAccount(cmdCtx *commandContext, args []string) error {
	target, err := parseAccountTargetFlags("delete-account", args)
	if err != nil {
		return err
	}
	return withAuthService(cmdCtx, target.Timeout, func(ctx context.Context, db *sql.DB, auth *service.AuthService) error {
		acct, err := resolveAccount(ctx, db, target)
		if err != nil {
			return err
		}
		if err := confirmAction(deleteAccountConfirmOptions{yes: target.Yes, email: acct.Email}, "delete"); err != nil {
			return err
		}
		if err := auth.DeleteAccount(ctx, acct.ID); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return writef(os.Stdout, "Deleted %s (%s)\n", acct.Email, acct.ID)
	})
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	target, err := parseAccountTargetFlags("revoke-sessions", args)
	if err != nil {
		return err
	}
	return withAuthService(cmdCtx, target.Timeout, func(ctx context.Context, db *sql.DB, auth *service.AuthService) error {
		acct, err := resolveAccount(ctx, db, target)
		if err != nil {
			return err
		}
		n, err := auth.RevokeSessions(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return writef(os.Stdout, "Revoked %d session(s) for %s\n", n, acct.Email)
	})
}

func resolveAccount(ctx context.Context, db *sql.DB, target accountTarget) (*model.Account, error) {
	repo := data.NewAccountRepo(db)
	var (
		acct *model.Account
		err  error
	)
	if target.ID != "" {
		acct, err = repo.GetByID(ctx, target.ID)
	} else {
		acct, err = repo.GetByEmail(ctx, target.Email)
	}
	if errors.Is(err, data.ErrAccountNotFound) {
		return nil, fmt.Errorf("no account matches %s", target.describe())
	}
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	return acct, nil
}

func (t accountTarget) describe() string {
	if t.ID != "" {
		return "id " + t.ID
	}
	return "email " + t.Email
}

func parseListAccountsFlags(args []string) (listAccountsOptions, error) {
	fs := flag.NewFlagSet("list-accounts", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listAccountsOptions{}
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of accounts to list")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of accounts to skip")
	fs.BoolVar(&opts.JSON, "json", false, "Print accounts as JSON")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")

	if err := fs.Parse(args); err != nil {
		return listAccountsOptions{}, err
	}
	if opts.Limit < 1 || opts.Limit > 1000 {
		return listAccountsOptions{}, errors.New("--limit must be between 1 and 1000")
	}
	if opts.Offset < 0 {
		return listAccountsOptions{}, errors.New("--offset must not be negative")
	}
	if opts.Timeout <= 0 {
		return listAccountsOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseAccountTargetFlags(name string, args []string) (accountTarget, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	t := accountTarget{}
	fs.StringVar(&t.ID, "id", "", "Account ID")
	fs.StringVar(&t.Email, "email", "", "Account email")
	fs.BoolVar(&t.Yes, "yes", false, "Skip confirmation prompt")
	fs.DurationVar(&t.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")

	if err := fs.Parse(args); err != nil {
		return accountTarget{}, err
	}
	t.ID = strings.TrimSpace(t.ID)
	t.Email = strings.TrimSpace(t.Email)
	if (t.ID == "") == (t.Email == "") {
		return accountTarget{}, errors.New("exactly one of --id or --email is required")
	}
	if t.Timeout <= 0 {
		return accountTarget{}, errors.New("--timeout must be greater than zero")
	}
	return t, nil
}
