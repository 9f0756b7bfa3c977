// Package cli implements gestixctl, the operator tool for accounts and the
// audit trail.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"gestix.app/internal/audit"
	"gestix.app/internal/auth"
	"gestix.app/internal/config"
	"gestix.app/internal/store/pg"
)

// Backend is the storage the commands operate on.
type Backend interface {
	auth.AccountStore
	ListUsers(ctx context.Context, companyID string) ([]auth.User, error)
	RecentAudit(ctx context.Context, limit int) ([]audit.Entry, error)
	Close() error
}

// Opener connects to the backend for a DSN.
type Opener func(dsn string) (Backend, error)

// OpenPostgres is the production Opener.
func OpenPostgres(dsn string) (Backend, error) {
	s, err := pg.Open(dsn, pg.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return nil, err
	}
	return s, nil
}

type app struct {
	stdout     io.Writer
	open       Opener
	dsn        string
	configFile string

	backend Backend
}

// NewRootCmd builds the gestixctl command tree.
func NewRootCmd(stdout io.Writer, open Opener) *cobra.Command {
	a := &app{stdout: stdout, open: open}
	root := &cobra.Command{
		Use:           "gestixctl",
		Short:         "Manage GestiX companies, users and the audit log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.backend != nil {
				return a.backend.Close()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.PersistentFlags().StringVar(&a.dsn, "dsn", os.Getenv("GESTIX_DATABASE_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file used when --dsn is empty")

	root.AddCommand(newCompanyCmd(a))
	root.AddCommand(newUserCmd(a))
	root.AddCommand(newAuditCmd(a))
	return root
}

// store lazily opens the backend so that --help never touches the database.
func (a *app) store() (Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	dsn := a.dsn
	if dsn == "" {
		cfg, err := config.Load(a.configFile)
		if err != nil {
			return nil, err
		}
		dsn = cfg.Database.DSN
	}
	if dsn == "" {
		return nil, errors.New("missing DSN: provide via --dsn, GESTIX_DATABASE_DSN or config")
	}
	b, err := a.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.backend = b
	return b, nil
}

func (a *app) accounts() (*auth.Accounts, error) {
	b, err := a.store()
	if err != nil {
		return nil, err
	}
	return auth.NewAccounts(b)
}
