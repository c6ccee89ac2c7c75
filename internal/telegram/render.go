package telegram

import (
	"shopbot/internal/convo"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Render maps a reply onto a Bot API request.
func Render(reply convo.Reply) tgbotapi.Chattable {
	if reply.CallbackID != "" {
		return tgbotapi.NewCallback(reply.CallbackID, reply.Text)
	}
	msg := tgbotapi.NewMessage(reply.ChatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if reply.Keyboard != nil {
		msg.ReplyMarkup = renderKeyboard(reply.Keyboard)
	}
	return msg
}

func renderKeyboard(kb *convo.Keyboard) any {
	if kb.Inline {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				if b.URL != "" {
					buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
					continue
				}
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Label))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}
