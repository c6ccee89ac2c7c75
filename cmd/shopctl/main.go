package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"shopbot/internal/catalog"
	"shopbot/internal/config"
	"shopbot/internal/keylock"
	"shopbot/internal/ledger"
	"shopbot/internal/logging"
	"shopbot/internal/store"
	"shopbot/internal/vault"
	"shopbot/migrations"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

// services is what every subcommand works against.
type services struct {
	store   store.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	vault   *vault.Vault
	logger  *slog.Logger
}

func (s *services) Close() error {
	return s.store.Close()
}

// opener builds services for one command invocation.
type opener func(ctx context.Context, driver string) (*services, error)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout, openFromEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context, driver string) (*services, error) {
	cfg, err := config.LoadOperator()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if driver != "" {
		cfg.StoreDriver = driver
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	s, err := store.Open(ctx, cfg.Store(), migrations.Files, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	policy, err := catalog.ParseTitlePolicy(cfg.CatalogDuplicateTitles)
	if err != nil {
		s.Close()
		return nil, err
	}
	return newServices(s, logger, policy), nil
}

func newServices(s store.Store, logger *slog.Logger, policy catalog.TitlePolicy) *services {
	locks := keylock.New()
	l := ledger.New(s, locks, logger, nil)
	return &services{
		store:   s,
		ledger:  l,
		catalog: catalog.New(s, locks, logger, catalog.Config{DuplicateTitles: policy}),
		vault:   vault.New(s, l, logger),
		logger:  logger,
	}
}

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	var driver string
	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator tooling for the shop bot record store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "override STORE_DRIVER (sqlite, postgres, redis, memory)")

	// with opens services for the duration of one RunE.
	with := func(fn runner) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, err := open(ctx, driver)
			if err != nil {
				return err
			}
			defer svc.Close()
			return fn(ctx, cmd, svc, args)
		}
	}

	rootCmd.AddCommand(migrateCmd(with))
	rootCmd.AddCommand(reconcileCmd(with))
	rootCmd.AddCommand(balanceCmd(with))
	rootCmd.AddCommand(grantCmd(with))
	rootCmd.AddCommand(codeCmd(with))
	rootCmd.AddCommand(productsCmd(with))
	rootCmd.AddCommand(journalCmd(with))
	return rootCmd
}
