package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"shopbot/internal/convo"
	"shopbot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Processor turns an inbound event into replies. *convo.Engine satisfies it.
type Processor interface {
	Handle(ctx context.Context, ev convo.Event) convo.Result
}

// Sender is the slice of the Bot API the client needs. *tgbotapi.BotAPI
// satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Config configures the Bot API connection.
type Config struct {
	Token string
	Debug bool
}

// Client connects Telegram updates to a Processor and delivers its replies.
type Client struct {
	sender    Sender
	api       *tgbotapi.BotAPI
	processor Processor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New authorises against the Bot API.
func New(cfg Config, logger *slog.Logger, metricsRegistry *metrics.Metrics) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot api: %w", err)
	}
	api.Debug = cfg.Debug
	c := NewWithSender(api, logger, metricsRegistry)
	c.api = api
	c.logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return c, nil
}

// NewWithSender builds a Client around an existing Sender.
func NewWithSender(sender Sender, logger *slog.Logger, metricsRegistry *metrics.Metrics) *Client {
	return &Client{
		sender:  sender,
		logger:  logger.With("component", "telegram"),
		metrics: metricsRegistry,
	}
}

// SetProcessor registers the event processor.
func (c *Client) SetProcessor(p Processor) {
	c.processor = p
}

// Dispatch handles one update end to end. Updates that carry nothing the
// processor understands are dropped.
func (c *Client) Dispatch(ctx context.Context, update tgbotapi.Update) {
	ev, ok := EventFromUpdate(update)
	if !ok {
		c.logger.Debug("ignoring update", "update_id", update.UpdateID)
		return
	}
	if c.processor == nil {
		c.logger.Warn("no processor registered, dropping update", "update_id", update.UpdateID)
		return
	}
	res := c.processor.Handle(ctx, ev)
	c.Deliver(ctx, res.Replies)
}

// Deliver sends replies in order. Failures are logged and do not stop the
// remaining replies.
func (c *Client) Deliver(ctx context.Context, replies []convo.Reply) {
	for _, reply := range replies {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("delivery cancelled", "pending", len(replies), "error", err)
			return
		}
		if err := c.send(reply); err != nil {
			c.logger.Error("failed sending reply", "chat_id", reply.ChatID, "error", err)
			c.metrics.Error("telegram_send")
			continue
		}
		if c.metrics != nil {
			c.metrics.OutgoingMessages.WithLabelValues(replyType(reply)).Inc()
		}
	}
}

func (c *Client) send(reply convo.Reply) error {
	chattable := Render(reply)
	if reply.CallbackID != "" {
		if _, err := c.sender.Request(chattable); err != nil {
			return fmt.Errorf("answer callback: %w", err)
		}
		return nil
	}
	if _, err := c.sender.Send(chattable); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func replyType(reply convo.Reply) string {
	if reply.CallbackID != "" {
		return "callback_answer"
	}
	return "message"
}
