package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"shopbot/internal/ledger"
	"shopbot/internal/store"
)

var (
	// ErrNotFound covers both unknown and already redeemed codes.
	ErrNotFound     = errors.New("gift code not found")
	ErrInvalidCode  = errors.New("invalid gift code")
	ErrInvalidValue = errors.New("invalid gift code value")
)

const codePrefix = "codes/"

// Vault stores one-time gift codes.
type Vault struct {
	store  store.Store
	ledger *ledger.Ledger
	logger *slog.Logger
}

// New creates a Vault crediting redemptions through l.
func New(s store.Store, l *ledger.Ledger, logger *slog.Logger) *Vault {
	return &Vault{
		store:  s,
		ledger: l,
		logger: logger.With("component", "vault"),
	}
}

// CodeKey is the record key for code.
func CodeKey(code string) string {
	return codePrefix + code
}

// Create stores code worth value coins. An existing code is replaced.
func (v *Vault) Create(ctx context.Context, code string, value int64) error {
	code = strings.TrimSpace(code)
	if code == "" || strings.IndexFunc(code, unicode.IsSpace) >= 0 {
		return ErrInvalidCode
	}
	if value <= 0 {
		return ErrInvalidValue
	}
	if err := v.store.Write(ctx, CodeKey(code), store.Int(value)); err != nil {
		return fmt.Errorf("create gift code: %w", err)
	}
	v.logger.Info("gift code created", "value", value)
	return nil
}

// Redeem consumes code and credits userID. The code record is taken
// atomically so concurrent redeemers see exactly one success.
func (v *Vault) Redeem(ctx context.Context, code string, userID int64) (value, balance int64, err error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, 0, ErrNotFound
	}
	raw, err := v.store.Take(ctx, CodeKey(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("take gift code: %w", err)
	}
	value, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || value <= 0 {
		v.logger.Error("discarding malformed gift code", "user_id", userID, "raw", string(raw))
		v.ledger.Reconcile(ctx, "gift_code_malformed", map[string]any{
			"code":    code,
			"raw":     string(raw),
			"user_id": userID,
		})
		return 0, 0, ErrNotFound
	}

	balance, err = v.ledger.Credit(ctx, userID, value, ledger.ReasonGiftCode)
	if errors.Is(err, ledger.ErrBalanceOverflow) {
		restoreErr := v.store.Write(ctx, CodeKey(code), raw)
		if restoreErr == nil {
			v.logger.Warn("gift code left unredeemed, balance limit reached", "user_id", userID, "value", value)
			return 0, balance, fmt.Errorf("credit gift code: %w", err)
		}
		err = fmt.Errorf("%w (restore: %v)", err, restoreErr)
	}
	if err != nil {
		v.logger.Error("gift code consumed without credit", "user_id", userID, "value", value, "error", err)
		v.ledger.Reconcile(ctx, "gift_code_credit_failed", map[string]any{
			"code":    code,
			"value":   value,
			"user_id": userID,
			"error":   err.Error(),
		})
		return 0, 0, fmt.Errorf("credit gift code: %w", err)
	}
	v.logger.Info("gift code redeemed", "user_id", userID, "value", value)
	return value, balance, nil
}
