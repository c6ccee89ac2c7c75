package convo

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"shopbot/internal/catalog"
	"shopbot/internal/ledger"
	"shopbot/internal/vault"
)

// turn is the processing of one message for one user.
type turn struct {
	engine  *Engine
	ev      Event
	text    string
	isNew   bool
	current State
	next    State
	replies []Reply
	logger  *slog.Logger
}

func (t *turn) reply(text string, kb *Keyboard) {
	t.replies = append(t.replies, Reply{ChatID: t.ev.ChatID, Text: text, Keyboard: kb})
}

// notify messages another user. In private chats the user id is the chat id.
func (t *turn) notify(userID int64, text string) {
	t.replies = append(t.replies, Reply{ChatID: userID, Text: text})
}

func (t *turn) goTo(step Step) {
	t.next = State{Step: step, Draft: t.next.Draft}
	if step == StepNone {
		t.next.Draft = Draft{}
	}
}

func (t *turn) route(ctx context.Context) error {
	if isCancel(t.text) || t.isCancelCommand() {
		t.goTo(StepNone)
		t.reply(msgCancelled, mainKeyboard())
		return nil
	}

	if strings.HasPrefix(t.text, "/") {
		handled, err := t.command(ctx)
		if handled || err != nil {
			return err
		}
	}

	if t.current.Step != StepNone {
		return t.step(ctx)
	}

	// Admin labels go first: the gift code label matches on a substring that
	// the create-code label also contains.
	if t.adminMenu() {
		return nil
	}
	if handled, err := t.menu(ctx); handled || err != nil {
		return err
	}
	return t.productTitle(ctx)
}

func (t *turn) isCancelCommand() bool {
	cmd, args := splitCommand(t.text)
	return cmd == "/cancel" && args == ""
}

func (t *turn) command(ctx context.Context) (bool, error) {
	cmd, args := splitCommand(t.text)
	switch {
	case cmd == "/start":
		return true, t.start(ctx, args)
	case cmd == "/panel":
		t.panel()
		return true, nil
	case cmd == "/transfer":
		return true, t.transfer(ctx, args)
	case args == "" && buyPattern.MatchString(cmd):
		id, err := strconv.ParseInt(buyPattern.FindStringSubmatch(cmd)[1], 10, 64)
		if err != nil {
			t.reply(msgBuyMissing, mainKeyboard())
			return true, nil
		}
		return true, t.buy(ctx, id)
	}
	return false, nil
}

func (t *turn) start(ctx context.Context, args string) error {
	t.goTo(StepNone)
	e := t.engine
	if ref, ok := parsePositive(args); ok && t.isNew && ref != t.ev.UserID && e.cfg.ReferralBonus > 0 {
		if _, err := e.Register(ctx, ref); err != nil {
			return err
		}
		if _, err := e.ledger.Credit(ctx, ref, e.cfg.ReferralBonus, ledger.ReasonReferral); err != nil {
			return err
		}
		t.logger.Info("referral credited", "referrer_id", ref, "bonus", e.cfg.ReferralBonus)
		t.notify(ref, referralText(e.cfg.ReferralBonus))
	}
	t.reply(welcomeText(e.cfg.BotName), mainKeyboard())
	return nil
}

func (t *turn) panel() {
	t.goTo(StepNone)
	if !t.engine.isAdmin(t.ev.UserID) {
		t.reply(msgUnauthorized, mainKeyboard())
		return
	}
	t.reply(msgAdminPanel, adminKeyboard())
}

func (t *turn) buy(ctx context.Context, id int64) error {
	e := t.engine
	product, err := e.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		t.reply(msgBuyMissing, mainKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	balance, err := e.ledger.Debit(ctx, t.ev.UserID, product.Price, ledger.ReasonPurchase)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		t.reply(insufficientText(balance, product.Price), mainKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	t.logger.Info("product purchased", "product_id", product.ID, "price", product.Price, "balance", balance)
	t.reply(purchaseText(product, balance), mainKeyboard())
	return nil
}

func (t *turn) transfer(ctx context.Context, args string) error {
	m := transferPattern.FindStringSubmatch(strings.TrimSpace("/transfer " + args))
	if m == nil {
		t.reply(msgTransferUsage, mainKeyboard())
		return nil
	}
	to, errTo := parseNumber(m[1])
	amount, errAmount := parseNumber(m[2])
	if errTo != nil || errAmount != nil || to <= 0 {
		t.reply(msgTransferUsage, mainKeyboard())
		return nil
	}
	if amount < 1 {
		t.reply(msgTransferMin, mainKeyboard())
		return nil
	}
	if to == t.ev.UserID {
		t.reply(msgTransferSelf, mainKeyboard())
		return nil
	}

	e := t.engine
	if _, err := e.Register(ctx, to); err != nil {
		return err
	}
	balance, err := e.ledger.Transfer(ctx, t.ev.UserID, to, amount)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		t.reply(transferShortText(balance), mainKeyboard())
		return nil
	}
	if errors.Is(err, ledger.ErrBalanceOverflow) {
		t.reply(msgBalanceLimit, mainKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	t.logger.Info("coins transferred", "to", to, "amount", amount)
	t.reply(transferSentText(to, amount), mainKeyboard())
	t.notify(to, transferReceivedText(t.ev.UserID, amount))
	return nil
}

func (t *turn) menu(ctx context.Context) (bool, error) {
	e := t.engine
	switch {
	case t.text == LabelShop:
		t.goTo(StepNone)
		products, err := e.catalog.List(ctx)
		if err != nil {
			return true, err
		}
		if len(products) == 0 {
			t.reply(msgNoProducts, mainKeyboard())
			return true, nil
		}
		t.reply(msgShopHeader, shopKeyboard(products))
	case t.text == LabelTopUp:
		t.goTo(StepNone)
		t.reply(topUpText(t.ev.UserID), topUpKeyboard(e.cfg.PaymentLinks))
	case t.text == LabelGiftCode || strings.Contains(t.text, giftCodeKeyword):
		t.goTo(StepUseCode)
		t.reply(msgEnterCode, backKeyboard())
	case t.text == LabelAccount:
		t.goTo(StepNone)
		balance, err := e.ledger.Balance(ctx, t.ev.UserID)
		if err != nil {
			return true, err
		}
		t.reply(accountText(t.ev, balance), mainKeyboard())
	case t.text == LabelSupport:
		t.goTo(StepNone)
		t.reply(supportText(e.cfg.SupportHandle), mainKeyboard())
	case t.text == LabelVIP:
		t.goTo(StepVIPSelect)
		t.reply(vipText, vipKeyboard())
	default:
		return false, nil
	}
	return true, nil
}

var adminEntries = map[string]struct {
	step   Step
	prompt string
}{
	LabelAdminNewProduct:  {StepAdminSetTitle, msgAskTitle},
	LabelAdminDelProduct:  {StepAdminDelProduct, msgAskDelID},
	LabelAdminCreateCode:  {StepAdminCreateCode, msgAskCode},
	LabelAdminAddCoins:    {StepAdminAddCoins, msgAskGrant},
	LabelAdminRemoveCoins: {StepAdminRemoveCoins, msgAskRevoke},
}

func (t *turn) adminMenu() bool {
	entry, ok := adminEntries[t.text]
	if !ok {
		return false
	}
	if !t.engine.isAdmin(t.ev.UserID) {
		t.goTo(StepNone)
		t.reply(msgUnauthorized, mainKeyboard())
		return true
	}
	t.next = State{Step: entry.step}
	t.reply(entry.prompt, backKeyboard())
	return true
}

func (t *turn) productTitle(ctx context.Context) error {
	product, err := t.engine.catalog.GetByTitle(ctx, t.text)
	if errors.Is(err, catalog.ErrNotFound) {
		t.reply(msgUnknown, mainKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	t.reply(productText(product), productKeyboard())
	return nil
}

// step runs the handler owned by the current step.
func (t *turn) step(ctx context.Context) error {
	step := t.current.Step
	if step.Admin() && !t.engine.isAdmin(t.ev.UserID) {
		t.logger.Warn("non-admin in admin step", "step", step.String())
		t.goTo(StepNone)
		t.reply(msgUnauthorized, mainKeyboard())
		return nil
	}

	switch step {
	case StepUseCode:
		return t.redeem(ctx)
	case StepVIPSelect:
		t.vipSelect()
		return nil
	case StepAdminSetTitle:
		if t.text == "" {
			t.reply(msgEmptyTitle, backKeyboard())
			return nil
		}
		free, err := t.engine.catalog.TitleAvailable(ctx, t.text)
		if err != nil {
			return err
		}
		if !free {
			t.reply(msgTitleTaken, backKeyboard())
			return nil
		}
		t.next.Draft.Title = t.text
		t.goTo(StepAdminSetDesc)
		t.reply(msgAskDesc, backKeyboard())
		return nil
	case StepAdminSetDesc:
		t.next.Draft.Description = t.text
		t.goTo(StepAdminSetLink)
		t.reply(msgAskLink, backKeyboard())
		return nil
	case StepAdminSetLink:
		t.next.Draft.Link = t.text
		t.goTo(StepAdminSetPrice)
		t.reply(msgAskPrice, backKeyboard())
		return nil
	case StepAdminSetPrice:
		return t.createProduct(ctx)
	case StepAdminDelProduct:
		return t.deleteProduct(ctx)
	case StepAdminCreateCode:
		return t.createCode(ctx)
	case StepAdminAddCoins, StepAdminRemoveCoins:
		return t.adjustCoins(ctx, step == StepAdminAddCoins)
	case StepNone:
		return nil
	default:
		t.logger.Warn("unhandled step, resetting", "step", step.String())
		t.goTo(StepNone)
		t.reply(msgUnknown, mainKeyboard())
		return nil
	}
}

func (t *turn) redeem(ctx context.Context) error {
	if t.text == "" {
		t.reply(msgEnterCode, backKeyboard())
		return nil
	}
	value, balance, err := t.engine.vault.Redeem(ctx, t.text, t.ev.UserID)
	if errors.Is(err, vault.ErrNotFound) {
		t.goTo(StepNone)
		t.reply(msgInvalidCode, mainKeyboard())
		return nil
	}
	if errors.Is(err, ledger.ErrBalanceOverflow) {
		t.goTo(StepNone)
		t.reply(msgBalanceLimit, mainKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	t.goTo(StepNone)
	t.reply(redeemedText(value, balance), mainKeyboard())
	return nil
}

func (t *turn) vipSelect() {
	choice := normalizeDigits(t.text)
	if !vipPattern.MatchString(choice) {
		t.reply(msgVIPInvalid, backKeyboard())
		return
	}
	n, _ := strconv.Atoi(choice)
	t.goTo(StepNone)
	t.reply(vipChosenText(n), mainKeyboard())
}

func (t *turn) createProduct(ctx context.Context) error {
	price, ok := parsePositive(t.text)
	if !ok {
		t.reply(msgBadPrice, backKeyboard())
		return nil
	}
	draft := t.current.Draft
	product, err := t.engine.catalog.Create(ctx, draft.Title, draft.Description, draft.Link, price)
	switch {
	case errors.Is(err, catalog.ErrDuplicateTitle):
		t.goTo(StepNone)
		t.reply(msgDuplicateTitle, adminKeyboard())
		return nil
	case errors.Is(err, catalog.ErrInvalidTitle):
		t.goTo(StepNone)
		t.reply(msgEmptyTitle, adminKeyboard())
		return nil
	case err != nil:
		return err
	}
	t.goTo(StepNone)
	t.reply(productCreatedText(product.ID), adminKeyboard())
	return nil
}

func (t *turn) deleteProduct(ctx context.Context) error {
	id, ok := parsePositive(t.text)
	if !ok {
		t.reply(msgBadID, backKeyboard())
		return nil
	}
	deleted, err := t.engine.catalog.Delete(ctx, id)
	if err != nil {
		return err
	}
	t.goTo(StepNone)
	if !deleted {
		t.reply(msgDelMissing, adminKeyboard())
		return nil
	}
	t.reply(msgDeleted, adminKeyboard())
	return nil
}

func (t *turn) createCode(ctx context.Context) error {
	code, rawValue, ok := splitPair(t.text)
	if !ok {
		t.reply(msgBadCodeFormat, backKeyboard())
		return nil
	}
	value, ok := parsePositive(rawValue)
	if !ok {
		t.reply(msgBadCodeValue, backKeyboard())
		return nil
	}
	if err := t.engine.vault.Create(ctx, code, value); err != nil {
		if errors.Is(err, vault.ErrInvalidCode) {
			t.reply(msgBadCodeFormat, backKeyboard())
			return nil
		}
		return err
	}
	t.goTo(StepNone)
	t.reply(codeCreatedText(code, value), adminKeyboard())
	return nil
}

func (t *turn) adjustCoins(ctx context.Context, grant bool) error {
	rawUser, rawAmount, ok := splitPair(t.text)
	if !ok {
		t.reply(msgBadPairFormat, backKeyboard())
		return nil
	}
	userID, okUser := parsePositive(rawUser)
	amount, okAmount := parsePositive(rawAmount)
	if !okUser || !okAmount {
		t.reply(msgBadPairValues, backKeyboard())
		return nil
	}

	e := t.engine
	if _, err := e.Register(ctx, userID); err != nil {
		return err
	}
	if grant {
		_, err := e.ledger.Credit(ctx, userID, amount, ledger.ReasonAdminGrant)
		if errors.Is(err, ledger.ErrBalanceOverflow) {
			t.reply(msgBadPairValues, backKeyboard())
			return nil
		}
		if err != nil {
			return err
		}
		t.logger.Info("coins granted", "target_id", userID, "amount", amount)
		t.goTo(StepNone)
		t.notify(userID, grantedText(amount))
		t.reply(msgDone, adminKeyboard())
		return nil
	}

	balance, err := e.ledger.Debit(ctx, userID, amount, ledger.ReasonAdminRevoke)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		t.goTo(StepNone)
		t.reply(revokeShortText(userID, balance), adminKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	t.logger.Info("coins revoked", "target_id", userID, "amount", amount)
	t.goTo(StepNone)
	t.notify(userID, revokedText(amount))
	t.reply(msgDone, adminKeyboard())
	return nil
}
