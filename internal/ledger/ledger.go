package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"shopbot/internal/keylock"
	"shopbot/internal/metrics"
	"shopbot/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// ErrSelfTransfer is returned when sender and recipient are the same user.
var ErrSelfTransfer = fmt.Errorf("%w: cannot transfer to self", ErrInvalidAmount)

// ErrBalanceOverflow is returned when a credit would push a balance past
// the largest representable amount.
var ErrBalanceOverflow = fmt.Errorf("%w: balance overflow", ErrInvalidAmount)

// Reasons recorded in the ledger journal.
const (
	ReasonPurchase    = "purchase"
	ReasonGiftCode    = "gift_code"
	ReasonReferral    = "referral"
	ReasonAdminGrant  = "admin_grant"
	ReasonAdminRevoke = "admin_revoke"
	ReasonTransferIn  = "transfer_in"
	ReasonTransferOut = "transfer_out"
	ReasonRefund      = "refund"
)

// Entry is one journaled balance mutation.
type Entry struct {
	ID      string    `json:"id"`
	UserID  int64     `json:"user_id"`
	Delta   int64     `json:"delta"`
	Balance int64     `json:"balance"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Ledger owns coin balances. Every balance record is mutated under its key
// lock so concurrent credits and debits of one user never lose updates.
type Ledger struct {
	store   store.Store
	locks   *keylock.Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Ledger over s. locks must be shared with every other
// component writing balance keys.
func New(s store.Store, locks *keylock.Locker, logger *slog.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   s,
		locks:   locks,
		logger:  logger.With("component", "ledger"),
		metrics: m,
		now:     time.Now,
	}
}

// BalanceKey is the record key holding userID's balance.
func BalanceKey(userID int64) string {
	return fmt.Sprintf("users/%d/balance", userID)
}

// Balance returns the user's balance; unknown users have 0.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	n, _, err := store.ReadInt(ctx, l.store, BalanceKey(userID))
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return n, nil
}

// EnsureAccount creates a zero balance for userID if none exists yet.
func (l *Ledger) EnsureAccount(ctx context.Context, userID int64) error {
	unlock := l.locks.Lock(BalanceKey(userID))
	defer unlock()

	_, ok, err := store.ReadInt(ctx, l.store, BalanceKey(userID))
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	if ok {
		return nil
	}
	if err := l.store.Write(ctx, BalanceKey(userID), store.Int(0)); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

// Credit adds amount to the user's balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		l.count("credit", "invalid")
		return 0, ErrInvalidAmount
	}
	unlock := l.locks.Lock(BalanceKey(userID))
	defer unlock()

	current, err := l.Balance(ctx, userID)
	if err != nil {
		l.count("credit", "error")
		return 0, err
	}
	if amount > math.MaxInt64-current {
		l.count("credit", "overflow")
		return current, fmt.Errorf("%w: balance %d, credit %d", ErrBalanceOverflow, current, amount)
	}
	next := current + amount
	if err := l.store.Write(ctx, BalanceKey(userID), store.Int(next)); err != nil {
		l.count("credit", "error")
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	l.count("credit", "ok")
	l.journal(ctx, userID, amount, next, reason)
	return next, nil
}

// Debit subtracts amount from the user's balance. It fails with
// ErrInsufficientFunds instead of going below zero.
func (l *Ledger) Debit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		l.count("debit", "invalid")
		return 0, ErrInvalidAmount
	}
	unlock := l.locks.Lock(BalanceKey(userID))
	defer unlock()

	current, err := l.Balance(ctx, userID)
	if err != nil {
		l.count("debit", "error")
		return 0, err
	}
	if amount > current {
		l.count("debit", "insufficient")
		return current, fmt.Errorf("%w: balance %d, required %d", ErrInsufficientFunds, current, amount)
	}
	next := current - amount
	if err := l.store.Write(ctx, BalanceKey(userID), store.Int(next)); err != nil {
		l.count("debit", "error")
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	l.count("debit", "ok")
	l.journal(ctx, userID, -amount, next, reason)
	return next, nil
}

// Transfer debits from and then credits to. A credit that would overflow the
// recipient is refunded to the sender. Any other credit failure after the
// debit succeeded is logged and journaled for reconciliation.
func (l *Ledger) Transfer(ctx context.Context, from, to, amount int64) (fromBalance int64, err error) {
	if from == to {
		return 0, ErrSelfTransfer
	}
	fromBalance, err = l.Debit(ctx, from, amount, ReasonTransferOut)
	if err != nil {
		return fromBalance, err
	}
	if _, err := l.Credit(ctx, to, amount, ReasonTransferIn); err != nil {
		if errors.Is(err, ErrBalanceOverflow) {
			refunded, refundErr := l.Credit(ctx, from, amount, ReasonRefund)
			if refundErr == nil {
				return refunded, fmt.Errorf("transfer credit: %w", err)
			}
			err = fmt.Errorf("%w (refund: %v)", err, refundErr)
		}
		l.logger.Error("transfer credit failed after debit", "from", from, "to", to, "amount", amount, "error", err)
		l.Reconcile(ctx, "transfer_credit_failed", map[string]any{
			"from":   from,
			"to":     to,
			"amount": amount,
			"error":  err.Error(),
		})
		return fromBalance, fmt.Errorf("transfer credit: %w", err)
	}
	return fromBalance, nil
}

// Reconcile journals a partially applied cross-key operation.
func (l *Ledger) Reconcile(ctx context.Context, kind string, details map[string]any) {
	l.metrics.Error("reconcile")
	payload := map[string]any{
		"id":      uuid.NewString(),
		"kind":    kind,
		"details": details,
		"at":      l.now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.Error("marshal reconcile entry", "kind", kind, "error", err)
		return
	}
	if err := l.store.Append(ctx, store.StreamReconcile, data); err != nil {
		l.logger.Error("append reconcile entry", "kind", kind, "payload", string(data), "error", err)
	}
}

func (l *Ledger) journal(ctx context.Context, userID, delta, balance int64, reason string) {
	entry := Entry{
		ID:      uuid.NewString(),
		UserID:  userID,
		Delta:   delta,
		Balance: balance,
		Reason:  reason,
		At:      l.now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("marshal ledger entry", "error", err)
		return
	}
	if err := l.store.Append(ctx, store.StreamLedger, data); err != nil {
		l.logger.Warn("append ledger entry", "user_id", userID, "error", err)
	}
}

func (l *Ledger) count(op, status string) {
	if l.metrics == nil {
		return
	}
	l.metrics.LedgerOperations.WithLabelValues(op, status).Inc()
}
