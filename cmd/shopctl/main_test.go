package main

import (
	"bytes"
	"context"
	"testing"

	"shopbot/internal/catalog"
	"shopbot/internal/logging"
	"shopbot/internal/store"

	"github.com/stretchr/testify/require"
)

// nopClose keeps the shared memory store alive across invocations.
type nopClose struct{ store.Store }

func (nopClose) Close() error { return nil }

func execute(t *testing.T, s store.Store, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	open := func(context.Context, string) (*services, error) {
		return newServices(nopClose{s}, logging.Discard(), catalog.TitleReject), nil
	}
	cmd := newRootCmd(&out, open)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGrantAndBalance(t *testing.T) {
	s := store.NewMemory()

	out, err := execute(t, s, "grant", "7", "15")
	require.NoError(t, err)
	require.Contains(t, out, "balance: 15")

	out, err = execute(t, s, "grant", "--revoke", "7", "5")
	require.NoError(t, err)
	require.Contains(t, out, "balance: 10")

	_, err = execute(t, s, "grant", "--revoke", "7", "50")
	require.Error(t, err)

	out, err = execute(t, s, "balance", "7")
	require.NoError(t, err)
	require.Equal(t, "10\n", out)

	_, err = execute(t, s, "balance", "seven")
	require.Error(t, err)
}

func TestProductsAndReconcile(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	svc := newServices(s, logging.Discard(), catalog.TitleReject)
	_, err := svc.catalog.Create(ctx, "Alpha", "d", "l", 3)
	require.NoError(t, err)
	_, err = svc.catalog.Create(ctx, "Beta", "d", "l", 4)
	require.NoError(t, err)

	out, err := execute(t, s, "products", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Alpha")
	require.Contains(t, out, "Beta")

	out, err = execute(t, s, "products", "delete", "1")
	require.NoError(t, err)
	require.Contains(t, out, "product 1 deleted")

	_, err = execute(t, s, "products", "delete", "1")
	require.Error(t, err)

	require.NoError(t, s.Write(ctx, "products/title/Ghost", store.Int(9)))
	out, err = execute(t, s, "reconcile")
	require.NoError(t, err)
	require.Contains(t, out, "stale titles removed: 1")
	require.Contains(t, out, "Ghost")
}

func TestCodeCreateAndJournal(t *testing.T) {
	s := store.NewMemory()

	out, err := execute(t, s, "code", "create", "WELCOME", "20")
	require.NoError(t, err)
	require.Contains(t, out, "WELCOME")

	svc := newServices(s, logging.Discard(), catalog.TitleReject)
	_, _, err = svc.vault.Redeem(context.Background(), "WELCOME", 3)
	require.NoError(t, err)

	out, err = execute(t, s, "journal", "ledger")
	require.NoError(t, err)
	require.Contains(t, out, `"reason":"gift_code"`)

	_, err = execute(t, s, "journal", "secrets")
	require.Error(t, err)
}
