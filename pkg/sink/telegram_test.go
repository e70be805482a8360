package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu    sync.Mutex
	chats []string
	texts []string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"PuntaIQ","username":"puntaiq_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		f.chats = append(f.chats, r.Form.Get("chat_id"))
		f.texts = append(f.texts, r.Form.Get("text"))
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
	default:
		w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func newTestTelegram(t *testing.T, chatID int64) (*Telegram, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tg, err := NewTelegram(TelegramConfig{
		Token:        "test-token",
		ChatID:       chatID,
		SendInterval: time.Millisecond,
		APIEndpoint:  srv.URL + "/bot%s/%s",
		HTTPClient:   srv.Client(),
	}, quietLogger())
	require.NoError(t, err)
	return tg, api
}

func TestTelegramNotify(t *testing.T) {
	tg, api := newTestTelegram(t, 0)

	err := tg.Notify(context.Background(), []string{"101", "202"}, "New Predictions Available",
		"Fresh predictions for football", map[string]string{"sports": "football"})
	require.NoError(t, err)

	assert.Equal(t, []string{"101", "202"}, api.chats)
	assert.Equal(t, "New Predictions Available\n\nFresh predictions for football\n\nsports: football", api.texts[0])
}

func TestTelegramDefaultChat(t *testing.T) {
	tg, api := newTestTelegram(t, 555)

	require.NoError(t, tg.Notify(context.Background(), nil, "hello", "", nil))
	assert.Equal(t, []string{"555"}, api.chats)
	assert.Equal(t, "hello", api.texts[0])
}

func TestTelegramErrors(t *testing.T) {
	tg, _ := newTestTelegram(t, 0)
	ctx := context.Background()

	assert.Error(t, tg.Notify(ctx, nil, "no recipients", "", nil))
	assert.Error(t, tg.Notify(ctx, []string{"@channel"}, "bad id", "", nil))

	_, err := NewTelegram(TelegramConfig{}, quietLogger())
	assert.Error(t, err)
}
