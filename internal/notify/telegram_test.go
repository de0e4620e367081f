package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockedTelegram(t *testing.T) (*Telegram, *[]map[string]string) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	var sent []map[string]string
	httpmock.RegisterResponder(http.MethodPost, "https://api.telegram.org/bottoken123/sendMessage",
		func(req *http.Request) (*http.Response, error) {
			var payload map[string]string
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad payload"), nil
			}
			sent = append(sent, payload)
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	tg := NewTelegram("token123", "chat42", nil)
	tg.client = &http.Client{Transport: httpmock.DefaultTransport}
	return tg, &sent
}

func TestSendMessage(t *testing.T) {
	tg, sent := mockedTelegram(t)

	ok := tg.SendMessage(context.Background(), "hello")
	require.True(t, ok)
	require.Len(t, *sent, 1)
	assert.Equal(t, "chat42", (*sent)[0]["chat_id"])
	assert.Equal(t, "hello", (*sent)[0]["text"])
	assert.Equal(t, "HTML", (*sent)[0]["parse_mode"])
}

func TestSendSummaries(t *testing.T) {
	tg, sent := mockedTelegram(t)
	ctx := context.Background()

	require.True(t, tg.SendSuccess(ctx, 120))
	require.True(t, tg.SendPartialSuccess(ctx, 110, 0.917))
	require.True(t, tg.SendFailure(ctx, errors.New("boom")))

	require.Len(t, *sent, 3)
	assert.Contains(t, (*sent)[0]["text"], "Products: 120")
	assert.Contains(t, (*sent)[1]["text"], "91.7%")
	assert.Contains(t, (*sent)[2]["text"], "boom")
}

func TestSendFailureEscapesHTML(t *testing.T) {
	tg, sent := mockedTelegram(t)

	require.True(t, tg.SendFailure(context.Background(), errors.New(`selector <div> & "friends"`)))
	require.Len(t, *sent, 1)
	text := (*sent)[0]["text"]
	assert.Contains(t, text, "&lt;div&gt;")
	assert.Contains(t, text, "&amp;")
	assert.NotContains(t, text, "<div>")
}

func TestDisabledNotifierIsNoOp(t *testing.T) {
	tg := NewTelegram("", "", nil)
	assert.False(t, tg.Enabled())
	assert.False(t, tg.SendMessage(context.Background(), "ignored"))
}

func TestSendMessageServerError(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodPost, "https://api.telegram.org/bottoken123/sendMessage",
		httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down"))

	tg := NewTelegram("token123", "chat42", nil)
	tg.client = &http.Client{Transport: httpmock.DefaultTransport}
	assert.False(t, tg.SendMessage(context.Background(), "hello"),
		"send failures are absorbed, never propagated")
}
