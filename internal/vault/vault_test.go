package vault_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"shopbot/internal/keylock"
	"shopbot/internal/ledger"
	"shopbot/internal/store"
	"shopbot/internal/vault"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, s store.Store) (*vault.Vault, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(s, keylock.New(), logger, nil)
	return vault.New(s, l, logger), l
}

func TestRedeemOnce(t *testing.T) {
	ctx := context.Background()
	v, l := setup(t, store.NewMemory())

	require.NoError(t, v.Create(ctx, "GIFT50", 50))

	value, balance, err := v.Redeem(ctx, "GIFT50", 1)
	require.NoError(t, err)
	require.EqualValues(t, 50, value)
	require.EqualValues(t, 50, balance)

	_, _, err = v.Redeem(ctx, "GIFT50", 1)
	require.ErrorIs(t, err, vault.ErrNotFound)

	bal, err := l.Balance(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 50, bal)
}

func TestRedeemUnknown(t *testing.T) {
	v, _ := setup(t, store.NewMemory())
	_, _, err := v.Redeem(context.Background(), "nope", 1)
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	v, _ := setup(t, store.NewMemory())

	require.ErrorIs(t, v.Create(ctx, "", 5), vault.ErrInvalidCode)
	require.ErrorIs(t, v.Create(ctx, "two words", 5), vault.ErrInvalidCode)
	require.ErrorIs(t, v.Create(ctx, "X", 0), vault.ErrInvalidValue)
	require.ErrorIs(t, v.Create(ctx, "X", -1), vault.ErrInvalidValue)
}

func TestCreateOverwrites(t *testing.T) {
	ctx := context.Background()
	v, _ := setup(t, store.NewMemory())

	require.NoError(t, v.Create(ctx, "X", 5))
	require.NoError(t, v.Create(ctx, "X", 9))

	value, _, err := v.Redeem(ctx, "X", 1)
	require.NoError(t, err)
	require.EqualValues(t, 9, value)
}

func TestConcurrentRedeemersExactlyOne(t *testing.T) {
	ctx := context.Background()
	v, l := setup(t, store.NewMemory())
	require.NoError(t, v.Create(ctx, "RACE", 10))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := int64(1); i <= 16; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			if _, _, err := v.Redeem(ctx, "RACE", user); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, wins)

	var total int64
	for i := int64(1); i <= 16; i++ {
		bal, err := l.Balance(ctx, i)
		require.NoError(t, err)
		total += bal
	}
	require.EqualValues(t, 10, total)
}

type brokenBalances struct {
	store.Store
}

func (b brokenBalances) Write(ctx context.Context, key string, value []byte) error {
	if key == ledger.BalanceKey(1) {
		return errors.New("io error")
	}
	return b.Store.Write(ctx, key, value)
}

func TestCreditFailureIsJournaled(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	v, _ := setup(t, brokenBalances{Store: mem})
	require.NoError(t, v.Create(ctx, "LOST", 3))

	_, _, err := v.Redeem(ctx, "LOST", 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, vault.ErrNotFound)

	entries, err := mem.Tail(ctx, store.StreamReconcile, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, string(entries[0]), "gift_code_credit_failed")
}

func TestRedeemOverflowKeepsCode(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	v, l := setup(t, s)

	_, err := l.Credit(ctx, 1, 10, ledger.ReasonAdminGrant)
	require.NoError(t, err)
	require.NoError(t, v.Create(ctx, "BIG", math.MaxInt64))

	_, balance, err := v.Redeem(ctx, "BIG", 1)
	require.ErrorIs(t, err, ledger.ErrBalanceOverflow)
	require.EqualValues(t, 10, balance)

	value, balance, err := v.Redeem(ctx, "BIG", 2)
	require.NoError(t, err)
	require.EqualValues(t, int64(math.MaxInt64), value)
	require.EqualValues(t, int64(math.MaxInt64), balance)

	pending, err := s.Tail(ctx, store.StreamReconcile, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
