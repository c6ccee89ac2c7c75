package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"shopbot/internal/ledger"
	"shopbot/internal/store"

	"github.com/spf13/cobra"
)

type runner func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error

type wrapper func(runner) func(*cobra.Command, []string) error

func parseID(raw, what string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return n, nil
}

func migrateCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			if err := svc.store.Ping(ctx); err != nil {
				return fmt.Errorf("ping store: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store migrated")
			return nil
		}),
	}
}

func reconcileCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair the catalog title index and counter",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			report, err := svc.catalog.Reconcile(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stale titles removed: %d\n", len(report.StaleTitles))
			for _, title := range report.StaleTitles {
				fmt.Fprintf(out, "  %s\n", title)
			}
			fmt.Fprintf(out, "product counter: %d", report.Counter)
			if report.CounterRaised {
				fmt.Fprint(out, " (raised)")
			}
			fmt.Fprintln(out)
			return nil
		}),
	}
}

func balanceCmd(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a user's coin balance",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			balance, err := svc.ledger.Balance(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", balance)
			return nil
		}),
	}
}

func grantCmd(with wrapper) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "grant <user-id> <coins>",
		Short: "Credit coins to a user, or debit them with --revoke",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			coins, err := parseID(args[1], "coin amount")
			if err != nil {
				return err
			}
			var balance int64
			if revoke {
				balance, err = svc.ledger.Debit(ctx, userID, coins, ledger.ReasonAdminRevoke)
			} else {
				balance, err = svc.ledger.Credit(ctx, userID, coins, ledger.ReasonAdminGrant)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d balance: %d\n", userID, balance)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "debit instead of credit")
	return cmd
}

func codeCmd(with wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Manage gift codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <code> <coins>",
		Short: "Create or replace a gift code",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			value, err := parseID(args[1], "coin amount")
			if err != nil {
				return err
			}
			if err := svc.vault.Create(ctx, args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "code %s worth %d coins\n", args[0], value)
			return nil
		}),
	})
	return cmd
}

func productsCmd(with wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Inspect and manage the catalog",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List live products",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			products, err := svc.catalog.List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(products)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPRICE")
			for _, p := range products {
				fmt.Fprintf(w, "%d\t%s\t%d\n", p.ID, p.Title, p.Price)
			}
			return w.Flush()
		}),
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	del := &cobra.Command{
		Use:   "delete <product-id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			ok, err := svc.catalog.Delete(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("product %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d deleted\n", id)
			return nil
		}),
	}

	cmd.AddCommand(list, del)
	return cmd
}

func journalCmd(with wrapper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "journal <roster|ledger|reconcile>",
		Short:     "Print the most recent journal entries",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{store.StreamRoster, store.StreamLedger, store.StreamReconcile},
		RunE: with(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
			entries, err := svc.store.Tail(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), string(entry))
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}
