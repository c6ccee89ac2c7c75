package telegram

import (
	"strconv"

	"shopbot/internal/convo"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

var eventNamespace = uuid.MustParse("6f1c3a52-8d4e-4b7a-9c0e-2a5d7b9e1f30")

// eventID derives a stable id from the update id so a redelivered update
// logs under the same event_id.
func eventID(update tgbotapi.Update) string {
	return uuid.NewSHA1(eventNamespace, []byte(strconv.Itoa(update.UpdateID))).String()
}

// EventFromUpdate extracts a message or button press. ok is false for any
// other kind of update.
func EventFromUpdate(update tgbotapi.Update) (convo.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		ev := convo.Event{
			ID:           eventID(update),
			Kind:         convo.EventCallback,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.From != nil {
			ev.UserID = cb.From.ID
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
		}
		return ev, true
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil {
			return convo.Event{}, false
		}
		return convo.Event{
			ID:          eventID(update),
			Kind:        convo.EventMessage,
			ChatID:      msg.Chat.ID,
			UserID:      msg.From.ID,
			DisplayName: msg.From.FirstName,
			Username:    msg.From.UserName,
			Text:        msg.Text,
		}, true
	}
	return convo.Event{}, false
}
