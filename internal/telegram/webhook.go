package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"shopbot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// WebhookHandler receives updates pushed by Telegram.
type WebhookHandler struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	secret  string
	client  *Client
}

// NewWebhookHandler creates a webhook handler. An empty secret disables the
// header check.
func NewWebhookHandler(logger *slog.Logger, metricsRegistry *metrics.Metrics, secret string, client *Client) *WebhookHandler {
	return &WebhookHandler{
		logger:  logger.With("component", "telegram_webhook"),
		metrics: metricsRegistry,
		secret:  secret,
		client:  client,
	}
}

// ServeHTTP satisfies http.Handler. Well-formed updates are always answered
// with 200 so Telegram does not redeliver them.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.metrics.Error("telegram_webhook_auth")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	defer r.Body.Close()
	if err != nil {
		h.metrics.Error("telegram_webhook")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.logger.Warn("malformed update", "error", err)
		h.metrics.Error("telegram_webhook")
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	// Finish the update even if Telegram hangs up mid-request.
	ctx := context.WithoutCancel(r.Context())
	h.client.Dispatch(ctx, update)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
