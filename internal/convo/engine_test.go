package convo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"shopbot/internal/catalog"
	"shopbot/internal/keylock"
	"shopbot/internal/ledger"
	"shopbot/internal/store"
	"shopbot/internal/vault"

	"github.com/stretchr/testify/require"
)

const adminID = 100

type harness struct {
	engine  *Engine
	store   store.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	vault   *vault.Vault
}

func newHarness(t *testing.T, s store.Store) *harness {
	t.Helper()
	if s == nil {
		s = store.NewMemory()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := keylock.New()
	l := ledger.New(s, locks, logger, nil)
	c := catalog.New(s, locks, logger, catalog.Config{})
	v := vault.New(s, l, logger)
	e := New(s, l, c, v, locks, nil, logger, EngineConfig{
		AdminIDs:      []int64{adminID},
		ReferralBonus: 1,
		PaymentLinks: []PaymentLink{
			{Coins: 100, URL: "https://pay.example/100"},
			{Coins: 200},
		},
	})
	return &harness{engine: e, store: s, ledger: l, catalog: c, vault: v}
}

func (h *harness) send(t *testing.T, userID int64, text string) Result {
	t.Helper()
	res := h.engine.Handle(context.Background(), Event{
		Kind:   EventMessage,
		ChatID: userID,
		UserID: userID,
		Text:   text,
	})
	require.NotEmpty(t, res.Replies, "every message gets a reply")
	return res
}

func (h *harness) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (h *harness) credit(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := h.ledger.Credit(context.Background(), userID, amount, ledger.ReasonAdminGrant)
	require.NoError(t, err)
}

func (h *harness) state(t *testing.T, userID int64) State {
	t.Helper()
	st, err := h.engine.states.Load(context.Background(), userID)
	require.NoError(t, err)
	return st
}

func firstText(res Result) string {
	return res.Replies[0].Text
}

func TestWizardCreatesProduct(t *testing.T) {
	h := newHarness(t, nil)

	res := h.send(t, adminID, LabelAdminNewProduct)
	require.Equal(t, StepAdminSetTitle, res.Step)
	res = h.send(t, adminID, "X")
	require.Equal(t, StepAdminSetDesc, res.Step)
	res = h.send(t, adminID, "Y")
	require.Equal(t, StepAdminSetLink, res.Step)
	res = h.send(t, adminID, "Z")
	require.Equal(t, StepAdminSetPrice, res.Step)
	res = h.send(t, adminID, "5")
	require.Equal(t, StepNone, res.Step)
	require.Contains(t, firstText(res), "<b>1</b>")

	p, err := h.catalog.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "X", p.Title)
	require.Equal(t, "Y", p.Description)
	require.Equal(t, "Z", p.Link)
	require.EqualValues(t, 5, p.Price)

	st := h.state(t, adminID)
	require.Equal(t, StepNone, st.Step)
	require.Equal(t, Draft{}, st.Draft)
}

func TestWizardCancelLeavesCatalogUntouched(t *testing.T) {
	inputs := []string{LabelAdminNewProduct, "X", "Y", "Z"}
	for _, cancel := range []string{"cancel", "CANCEL", "/cancel", LabelBack} {
		for depth := 1; depth <= len(inputs); depth++ {
			h := newHarness(t, nil)
			for _, in := range inputs[:depth] {
				h.send(t, adminID, in)
			}
			res := h.send(t, adminID, cancel)
			require.Equal(t, StepNone, res.Step)
			require.Equal(t, msgCancelled, firstText(res))

			count, err := h.catalog.Count(context.Background())
			require.NoError(t, err)
			require.Zero(t, count, "cancel %q at depth %d", cancel, depth)
			require.Equal(t, Draft{}, h.state(t, adminID).Draft)
		}
	}
}

func TestWizardValidationStaysInStep(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, adminID, LabelAdminNewProduct)

	res := h.send(t, adminID, "   ")
	require.Equal(t, StepAdminSetTitle, res.Step)
	require.Equal(t, msgEmptyTitle, firstText(res))

	h.send(t, adminID, "X")
	h.send(t, adminID, "Y")
	h.send(t, adminID, "Z")
	for _, bad := range []string{"abc", "0", "-4", "5 coins"} {
		res = h.send(t, adminID, bad)
		require.Equal(t, StepAdminSetPrice, res.Step, bad)
		require.Equal(t, msgBadPrice, firstText(res))
	}
	count, err := h.catalog.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)

	res = h.send(t, adminID, "۱۲")
	require.Equal(t, StepNone, res.Step)
	p, err := h.catalog.Get(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 12, p.Price)
}

func TestWizardDuplicateTitle(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Create(context.Background(), "X", "d", "l", 3)
	require.NoError(t, err)

	h.send(t, adminID, LabelAdminNewProduct)
	res := h.send(t, adminID, "X")
	require.Equal(t, StepAdminSetTitle, res.Step)
	require.Equal(t, msgTitleTaken, firstText(res))

	res = h.send(t, adminID, "W")
	require.Equal(t, StepAdminSetDesc, res.Step)
	require.Equal(t, "W", h.state(t, adminID).Draft.Title)

	count, err := h.catalog.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestWizardTitleTakenBeforePrice(t *testing.T) {
	h := newHarness(t, nil)

	for _, in := range []string{LabelAdminNewProduct, "X", "Y", "Z"} {
		h.send(t, adminID, in)
	}
	_, err := h.catalog.Create(context.Background(), "X", "d", "l", 3)
	require.NoError(t, err)

	res := h.send(t, adminID, "5")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, msgDuplicateTitle, firstText(res))

	count, err := h.catalog.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestPurchaseTwiceWithExactBalance(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Create(context.Background(), "Pack", "d", "https://deliver.example/x", 10)
	require.NoError(t, err)
	h.send(t, 7, "/start")
	h.credit(t, 7, 10)

	res := h.send(t, 7, "/buy1")
	require.Contains(t, firstText(res), "https://deliver.example/x")
	require.Zero(t, h.balance(t, 7))

	res = h.send(t, 7, "/buy1")
	require.Equal(t, insufficientText(0, 10), firstText(res))
	require.Zero(t, h.balance(t, 7))
}

func TestPurchaseUnknownProduct(t *testing.T) {
	h := newHarness(t, nil)
	res := h.send(t, 7, "/buy42")
	require.Equal(t, msgBuyMissing, firstText(res))
}

func TestSlashCommandsRunAheadOfStep(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Create(context.Background(), "Pack", "d", "link", 1)
	require.NoError(t, err)
	h.credit(t, 7, 1)

	res := h.send(t, 7, LabelGiftCode)
	require.Equal(t, StepUseCode, res.Step)

	res = h.send(t, 7, "/buy1")
	require.Equal(t, StepUseCode, res.Step)
	require.Contains(t, firstText(res), "link")
	require.Zero(t, h.balance(t, 7))
}

func TestRedeemTwice(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.vault.Create(context.Background(), "GIFT", 25))

	h.send(t, 7, LabelGiftCode)
	res := h.send(t, 7, "GIFT")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, redeemedText(25, 25), firstText(res))

	h.send(t, 7, LabelGiftCode)
	res = h.send(t, 7, "GIFT")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, msgInvalidCode, firstText(res))
	require.EqualValues(t, 25, h.balance(t, 7))
}

func TestTransfer(t *testing.T) {
	h := newHarness(t, nil)
	h.credit(t, 1, 5)

	res := h.send(t, 1, "/transfer 2 3")
	require.Len(t, res.Replies, 2)
	require.Equal(t, transferSentText(2, 3), res.Replies[0].Text)
	require.EqualValues(t, 2, res.Replies[1].ChatID)
	require.EqualValues(t, 2, h.balance(t, 1))
	require.EqualValues(t, 3, h.balance(t, 2))
}

func TestTransferInsufficient(t *testing.T) {
	h := newHarness(t, nil)
	h.credit(t, 1, 5)

	res := h.send(t, 1, "/transfer 2 10")
	require.Equal(t, transferShortText(5), firstText(res))
	require.EqualValues(t, 5, h.balance(t, 1))
	require.Zero(t, h.balance(t, 2))
}

func TestTransferValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.credit(t, 1, 5)

	require.Equal(t, msgTransferUsage, firstText(h.send(t, 1, "/transfer")))
	require.Equal(t, msgTransferUsage, firstText(h.send(t, 1, "/transfer bob 2")))
	require.Equal(t, msgTransferMin, firstText(h.send(t, 1, "/transfer 2 0")))
	require.Equal(t, msgTransferSelf, firstText(h.send(t, 1, "/transfer 1 2")))
	require.EqualValues(t, 5, h.balance(t, 1))
}

func TestAdminStepRechecksPrivilege(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.states.Save(context.Background(), 7, State{
		Step:  StepAdminSetPrice,
		Draft: Draft{Title: "X", Description: "Y", Link: "Z"},
	}))

	res := h.send(t, 7, "5")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, msgUnauthorized, firstText(res))

	count, err := h.catalog.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, Draft{}, h.state(t, 7).Draft)
}

func TestNonAdminCannotOpenAdminFlows(t *testing.T) {
	h := newHarness(t, nil)

	res := h.send(t, 7, "/panel")
	require.Equal(t, msgUnauthorized, firstText(res))

	for label := range adminEntries {
		res = h.send(t, 7, label)
		require.Equal(t, StepNone, res.Step, label)
		require.Equal(t, msgUnauthorized, firstText(res))
	}

	res = h.send(t, adminID, "/panel")
	require.Equal(t, msgAdminPanel, firstText(res))
	require.Equal(t, KeyboardAdmin, res.Replies[0].Keyboard.Kind)
}

func TestAdminCreateCodeLabelIsNotGiftCodeEntry(t *testing.T) {
	h := newHarness(t, nil)
	res := h.send(t, adminID, LabelAdminCreateCode)
	require.Equal(t, StepAdminCreateCode, res.Step)

	res = h.send(t, adminID, "ABC")
	require.Equal(t, StepAdminCreateCode, res.Step)
	require.Equal(t, msgBadCodeFormat, firstText(res))

	res = h.send(t, adminID, "ABC zero")
	require.Equal(t, StepAdminCreateCode, res.Step)
	require.Equal(t, msgBadCodeValue, firstText(res))

	res = h.send(t, adminID, "ABC 50")
	require.Equal(t, StepNone, res.Step)

	_, bal, err := h.vault.Redeem(context.Background(), "ABC", 9)
	require.NoError(t, err)
	require.EqualValues(t, 50, bal)
}

func TestAdminGrantAndRevoke(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, adminID, LabelAdminAddCoins)
	res := h.send(t, adminID, "55 20")
	require.Equal(t, StepNone, res.Step)
	require.EqualValues(t, 20, h.balance(t, 55))
	require.Equal(t, grantedText(20), res.Replies[0].Text)
	require.EqualValues(t, 55, res.Replies[0].ChatID)

	h.send(t, adminID, LabelAdminRemoveCoins)
	res = h.send(t, adminID, "55 30")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, revokeShortText(55, 20), firstText(res))
	require.EqualValues(t, 20, h.balance(t, 55))

	h.send(t, adminID, LabelAdminRemoveCoins)
	res = h.send(t, adminID, "55 x")
	require.Equal(t, StepAdminRemoveCoins, res.Step)
	require.Equal(t, msgBadPairValues, firstText(res))
	res = h.send(t, adminID, "55 15")
	require.Equal(t, StepNone, res.Step)
	require.EqualValues(t, 5, h.balance(t, 55))
}

func TestAdminGrantOverflowReprompts(t *testing.T) {
	h := newHarness(t, nil)
	h.credit(t, 7, 1)

	h.send(t, adminID, LabelAdminAddCoins)
	res := h.send(t, adminID, "7 9223372036854775807")
	require.Equal(t, StepAdminAddCoins, res.Step)
	require.Len(t, res.Replies, 1)
	require.Equal(t, msgBadPairValues, firstText(res))
	require.EqualValues(t, 1, h.balance(t, 7))

	res = h.send(t, adminID, "7 4")
	require.Equal(t, StepNone, res.Step)
	require.EqualValues(t, 5, h.balance(t, 7))
}

func TestTransferAndRedeemOverflow(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, 7, "/start")
	h.send(t, 8, "/start")
	h.credit(t, 7, 10)
	h.credit(t, 8, math.MaxInt64-5)

	res := h.send(t, 7, "/transfer 8 10")
	require.Equal(t, msgBalanceLimit, firstText(res))
	require.EqualValues(t, 10, h.balance(t, 7))
	require.EqualValues(t, int64(math.MaxInt64-5), h.balance(t, 8))

	require.NoError(t, h.vault.Create(context.Background(), "BIG", 100))
	h.send(t, 8, LabelGiftCode)
	res = h.send(t, 8, "BIG")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, msgBalanceLimit, firstText(res))

	value, _, err := h.vault.Redeem(context.Background(), "BIG", 7)
	require.NoError(t, err)
	require.EqualValues(t, 100, value)
}

func TestAdminDeleteProduct(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.catalog.Create(ctx, "A", "d", "l", 1)
	require.NoError(t, err)
	_, err = h.catalog.Create(ctx, "B", "d", "l", 1)
	require.NoError(t, err)

	h.send(t, adminID, LabelAdminDelProduct)
	res := h.send(t, adminID, "zero")
	require.Equal(t, StepAdminDelProduct, res.Step)
	res = h.send(t, adminID, "2")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, msgDeleted, firstText(res))

	res = h.send(t, 7, "B")
	require.Equal(t, msgUnknown, firstText(res))
	res = h.send(t, 7, "/buy2")
	require.Equal(t, msgBuyMissing, firstText(res))

	count, err := h.catalog.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	h.send(t, adminID, LabelAdminDelProduct)
	res = h.send(t, adminID, "2")
	require.Equal(t, msgDelMissing, firstText(res))
}

func TestProductTitleShowsDetails(t *testing.T) {
	h := newHarness(t, nil)
	p, err := h.catalog.Create(context.Background(), "Pack <1>", "desc", "l", 4)
	require.NoError(t, err)

	res := h.send(t, 7, "Pack <1>")
	require.Equal(t, productText(p), firstText(res))
	require.Contains(t, firstText(res), "Pack &lt;1&gt;")
	require.Equal(t, KeyboardProduct, res.Replies[0].Keyboard.Kind)
}

func TestShopListsProducts(t *testing.T) {
	h := newHarness(t, nil)
	res := h.send(t, 7, LabelShop)
	require.Equal(t, msgNoProducts, firstText(res))

	ctx := context.Background()
	for _, title := range []string{"A", "B", "C"} {
		_, err := h.catalog.Create(ctx, title, "d", "l", 1)
		require.NoError(t, err)
	}
	_, err := h.catalog.Delete(ctx, 2)
	require.NoError(t, err)

	res = h.send(t, 7, LabelShop)
	kb := res.Replies[0].Keyboard
	require.Equal(t, KeyboardShop, kb.Kind)
	require.Len(t, kb.Rows, 3)
	require.Equal(t, "A", kb.Rows[0][0].Label)
	require.Equal(t, "C", kb.Rows[1][0].Label)
	require.Equal(t, LabelBack, kb.Rows[2][0].Label)
}

func TestTopUpKeyboard(t *testing.T) {
	h := newHarness(t, nil)
	res := h.send(t, 7, LabelTopUp)
	kb := res.Replies[0].Keyboard
	require.True(t, kb.Inline)
	require.Equal(t, "https://pay.example/100", kb.Rows[0][0].URL)
	require.Equal(t, noopCallback, kb.Rows[1][0].Data)
	require.Contains(t, firstText(res), "<code>7</code>")
}

func TestVIPSelection(t *testing.T) {
	h := newHarness(t, nil)

	res := h.send(t, 7, LabelVIP)
	require.Equal(t, StepVIPSelect, res.Step)
	for _, bad := range []string{"0", "10", "x"} {
		res = h.send(t, 7, bad)
		require.Equal(t, StepVIPSelect, res.Step, bad)
		require.Equal(t, msgVIPInvalid, firstText(res))
	}
	res = h.send(t, 7, "۷")
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, vipChosenText(7), firstText(res))
}

func TestAccountShowsBalance(t *testing.T) {
	h := newHarness(t, nil)
	h.credit(t, 7, 12)
	res := h.engine.Handle(context.Background(), Event{
		ChatID: 7, UserID: 7, DisplayName: "Sara", Username: "sara", Text: LabelAccount,
	})
	require.Contains(t, firstText(res), "<b>12</b>")
	require.Contains(t, firstText(res), "@sara")
}

func TestReferralOnlyOnFirstRegistration(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, 1, "/start")

	res := h.send(t, 2, "/start 1")
	require.Len(t, res.Replies, 2)
	require.EqualValues(t, 1, res.Replies[0].ChatID)
	require.Equal(t, referralText(1), res.Replies[0].Text)
	require.EqualValues(t, 1, h.balance(t, 1))

	res = h.send(t, 2, "/start 1")
	require.Len(t, res.Replies, 1)
	require.EqualValues(t, 1, h.balance(t, 1))

	h.send(t, 3, "/start 3")
	require.Zero(t, h.balance(t, 3))

	h.send(t, 4, "/start abc")
	require.Zero(t, h.balance(t, 4))
}

func TestRegistrationIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, 7, "/start")
	h.credit(t, 7, 9)
	h.send(t, 7, LabelGiftCode)

	isNew, err := h.engine.Register(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, isNew)
	require.EqualValues(t, 9, h.balance(t, 7))
	require.Equal(t, StepUseCode, h.state(t, 7).Step)

	roster, err := h.store.Tail(context.Background(), store.StreamRoster, 10)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "7", string(roster[0]))
}

func TestCallbacks(t *testing.T) {
	h := newHarness(t, nil)
	res := h.engine.Handle(context.Background(), Event{Kind: EventCallback, CallbackID: "cb1", CallbackData: noopCallback})
	require.Len(t, res.Replies, 1)
	require.Equal(t, "cb1", res.Replies[0].CallbackID)
	require.Equal(t, msgPaymentMissing, res.Replies[0].Text)

	res = h.engine.Handle(context.Background(), Event{Kind: EventCallback, CallbackID: "cb2", CallbackData: "other"})
	require.Equal(t, "cb2", res.Replies[0].CallbackID)
	require.Empty(t, res.Replies[0].Text)
}

func TestCallbackRegistersSender(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.engine.Handle(ctx, Event{Kind: EventCallback, ChatID: 9, UserID: 9, CallbackID: "cb", CallbackData: noopCallback})
	require.Equal(t, msgPaymentMissing, firstText(res))

	isNew, err := h.engine.Register(ctx, 9)
	require.NoError(t, err)
	require.False(t, isNew)

	h.send(t, 9, "/start")
	roster, err := h.store.Tail(ctx, store.StreamRoster, 10)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "9", string(roster[0]))
}

func TestFallback(t *testing.T) {
	h := newHarness(t, nil)
	res := h.send(t, 7, "hello there")
	require.Equal(t, msgUnknown, firstText(res))
	require.Equal(t, KeyboardMain, res.Replies[0].Keyboard.Kind)
}

// flakyStore fails every call once broken is set.
type flakyStore struct {
	store.Store
	mu     sync.Mutex
	broken bool
}

var errUnavailable = errors.New("store unavailable")

func (f *flakyStore) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broken
}

func (f *flakyStore) Read(ctx context.Context, key string) ([]byte, error) {
	if f.fail() {
		return nil, errUnavailable
	}
	return f.Store.Read(ctx, key)
}

func (f *flakyStore) Write(ctx context.Context, key string, value []byte) error {
	if f.fail() {
		return errUnavailable
	}
	return f.Store.Write(ctx, key, value)
}

func TestStorageFailureKeepsState(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory()}
	h := newHarness(t, flaky)
	h.send(t, adminID, LabelAdminNewProduct)

	flaky.mu.Lock()
	flaky.broken = true
	flaky.mu.Unlock()

	res := h.send(t, adminID, "X")
	require.Equal(t, msgTryAgain, firstText(res))

	flaky.mu.Lock()
	flaky.broken = false
	flaky.mu.Unlock()
	require.Equal(t, StepAdminSetTitle, h.state(t, adminID).Step)
}

func TestConcurrentPurchasesSameUser(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Create(context.Background(), "Pack", "d", "link", 1)
	require.NoError(t, err)
	h.credit(t, 7, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.engine.Handle(context.Background(), Event{ChatID: 7, UserID: 7, Text: "/buy1"})
			if strings.Contains(res.Replies[0].Text, "link") {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, delivered)
	require.Zero(t, h.balance(t, 7))
}
