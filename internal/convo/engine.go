package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"shopbot/internal/catalog"
	"shopbot/internal/keylock"
	"shopbot/internal/ledger"
	"shopbot/internal/metrics"
	"shopbot/internal/store"
	"shopbot/internal/vault"

	"github.com/google/uuid"
)

// EngineConfig carries engine behaviour toggles.
type EngineConfig struct {
	AdminIDs      []int64
	BotName       string
	SupportHandle string
	ReferralBonus int64
	StepTTL       time.Duration
	PaymentLinks  []PaymentLink
}

// Engine interprets inbound events against per-user conversation state.
type Engine struct {
	store   store.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	vault   *vault.Vault
	states  *StateStore
	locks   *keylock.Locker
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     EngineConfig
	now     func() time.Time
}

// New constructs an Engine. locks must be the Locker shared with the ledger
// and catalog.
func New(s store.Store, l *ledger.Ledger, c *catalog.Catalog, v *vault.Vault, locks *keylock.Locker, metricsRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	logger = logger.With("component", "convo")
	return &Engine{
		store:   s,
		ledger:  l,
		catalog: c,
		vault:   v,
		states:  NewStateStore(s, cfg.StepTTL, logger),
		locks:   locks,
		metrics: metricsRegistry,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (e *Engine) isAdmin(userID int64) bool {
	return slices.Contains(e.cfg.AdminIDs, userID)
}

func joinedKey(userID int64) string {
	return fmt.Sprintf("users/%d/joined", userID)
}

// Register records userID on first sight. It reports whether the user is new
// and never touches an existing balance or step.
func (e *Engine) Register(ctx context.Context, userID int64) (bool, error) {
	unlock := e.locks.Lock(joinedKey(userID))
	defer unlock()

	_, err := e.store.Read(ctx, joinedKey(userID))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("check registration: %w", err)
	}
	if err := e.ledger.EnsureAccount(ctx, userID); err != nil {
		return false, err
	}
	stamp := e.now().UTC().Format(time.RFC3339)
	if err := e.store.Write(ctx, joinedKey(userID), []byte(stamp)); err != nil {
		return false, fmt.Errorf("register user: %w", err)
	}
	if err := e.store.Append(ctx, store.StreamRoster, []byte(strconv.FormatInt(userID, 10))); err != nil {
		e.logger.Warn("append roster", "user_id", userID, "error", err)
	}
	e.logger.Info("user registered", "user_id", userID)
	return true, nil
}

// Handle processes one event. It never fails: storage problems turn into a
// generic reply and leave the user's state as it was.
func (e *Engine) Handle(ctx context.Context, ev Event) Result {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	logger := e.logger.With("event_id", ev.ID, "user_id", ev.UserID)
	if e.metrics != nil {
		e.metrics.IncomingEvents.WithLabelValues(ev.Kind.String()).Inc()
	}

	if ev.Kind == EventCallback {
		if ev.UserID != 0 {
			if _, err := e.Register(ctx, ev.UserID); err != nil {
				logger.Warn("register callback sender", "error", err)
				e.metrics.Error("convo")
			}
		}
		return e.handleCallback(ev)
	}
	if ev.UserID == 0 || ev.ChatID == 0 {
		logger.Debug("ignoring event without sender")
		return Result{}
	}

	unlock := e.locks.Lock("user:" + strconv.FormatInt(ev.UserID, 10))
	defer unlock()

	isNew, err := e.Register(ctx, ev.UserID)
	if err != nil {
		return e.failure(logger, ev, StepNone, err)
	}
	current, err := e.states.Load(ctx, ev.UserID)
	if err != nil {
		return e.failure(logger, ev, StepNone, err)
	}

	t := &turn{
		engine:  e,
		ev:      ev,
		text:    strings.TrimSpace(ev.Text),
		isNew:   isNew,
		current: current,
		next:    current,
		logger:  logger,
	}
	if err := t.route(ctx); err != nil {
		return e.failure(logger, ev, current.Step, err)
	}

	if !t.next.same(current) {
		if err := e.states.Save(ctx, ev.UserID, t.next); err != nil {
			logger.Error("state not saved after handling", "step", t.next.Step.String(), "error", err)
			e.metrics.Error("convo")
			t.replies = append(t.replies, Reply{ChatID: ev.ChatID, Text: msgTryAgain})
			return Result{Replies: t.replies, Step: current.Step}
		}
		if current.Step != t.next.Step {
			logger.Debug("step transition", "from", current.Step.String(), "to", t.next.Step.String())
			if e.metrics != nil {
				e.metrics.Transitions.WithLabelValues(current.Step.String(), t.next.Step.String()).Inc()
			}
		}
	}
	if len(t.replies) == 0 {
		t.replies = append(t.replies, Reply{ChatID: ev.ChatID, Text: msgUnknown, Keyboard: mainKeyboard()})
	}
	return Result{Replies: t.replies, Step: t.next.Step}
}

func (e *Engine) handleCallback(ev Event) Result {
	reply := Reply{ChatID: ev.ChatID, CallbackID: ev.CallbackID}
	if ev.CallbackData == noopCallback {
		reply.Text = msgPaymentMissing
	}
	return Result{Replies: []Reply{reply}}
}

func (e *Engine) failure(logger *slog.Logger, ev Event, step Step, err error) Result {
	logger.Error("event handling failed", "error", err)
	e.metrics.Error("convo")
	return Result{
		Replies: []Reply{{ChatID: ev.ChatID, Text: msgTryAgain}},
		Step:    step,
	}
}
