package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Updates is the long-polling half of the Bot API. *tgbotapi.BotAPI
// satisfies it.
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poll fetches updates by long polling until ctx is cancelled. Updates are
// dispatched concurrently; the engine serializes events per user.
func (c *Client) Poll(ctx context.Context) error {
	if c.api == nil {
		return errors.New("polling requires a bot api connection")
	}
	return c.poll(ctx, c.api)
}

func (c *Client) poll(ctx context.Context, source Updates) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := source.GetUpdatesChan(u)
	c.logger.Info("starting telegram update loop")

	var wg sync.WaitGroup
	defer func() {
		source.StopReceivingUpdates()
		c.waitHandlers(&wg)
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping telegram update loop")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				c.Dispatch(context.WithoutCancel(ctx), update)
			}(update)
		}
	}
}

func (c *Client) waitHandlers(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("telegram update loop stopped gracefully")
	case <-time.After(10 * time.Second):
		c.logger.Warn("telegram shutdown timeout, some handlers may not have completed")
	}
}
