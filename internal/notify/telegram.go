// Package notify sends fire-and-forget harvest summaries to a Telegram
// chat. Notification failures are logged and never abort the harvest.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram posts messages through the bot API. The zero credentials case
// yields a disabled notifier whose sends are silent no-ops.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	log      *zap.Logger
}

func NewTelegram(botToken, chatID string, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Enabled reports whether credentials are configured.
func (t *Telegram) Enabled() bool {
	return t.botToken != "" && t.chatID != ""
}

// SendMessage posts one HTML-formatted message. Returns false when disabled
// or when the API call fails; the error is logged, not propagated.
func (t *Telegram) SendMessage(ctx context.Context, message string) bool {
	if !t.Enabled() {
		return false
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	})
	if err != nil {
		t.log.Warn("failed to encode notification", zap.Error(err))
		return false
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.log.Warn("failed to build notification request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("failed to send notification", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.Warn("notification rejected", zap.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// SendSuccess reports a fully successful run.
func (t *Telegram) SendSuccess(ctx context.Context, products int) bool {
	msg := fmt.Sprintf(
		"✅ <b>Price Harvest Success</b>\n📅 Date: %s\n📦 Products: %d",
		time.Now().Format("2006-01-02 15:04:05"), products)
	return t.SendMessage(ctx, msg)
}

// SendPartialSuccess reports a completed run with failures.
func (t *Telegram) SendPartialSuccess(ctx context.Context, products int, successRatio float64) bool {
	msg := fmt.Sprintf(
		"⚠️ <b>Price Harvest Completed with Warnings</b>\n📅 Date: %s\n📦 Products: %d\n✓ Success rate: %.1f%%",
		time.Now().Format("2006-01-02 15:04:05"), products, successRatio*100)
	return t.SendMessage(ctx, msg)
}

// SendFailure reports an aborted run. The error text is HTML-escaped so it
// cannot break the message markup.
func (t *Telegram) SendFailure(ctx context.Context, runErr error) bool {
	escaped := htmlEscape(runErr.Error())
	msg := fmt.Sprintf(
		"❌ <b>Price Harvest Failed</b>\n📅 Date: %s\n⚠️ Error: <code>%s</code>",
		time.Now().Format("2006-01-02 15:04:05"), escaped)
	return t.SendMessage(ctx, msg)
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
