package sink

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	Token        string
	ChatID       int64         // Used when a notification names no users
	SendInterval time.Duration // Default: 2s, stays under Telegram's per-chat limit
	APIEndpoint  string        // Default: tgbotapi.APIEndpoint
	HTTPClient   *http.Client
}

// Telegram delivers notifications as chat messages. Stores are no-ops.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

var _ Sink = (*Telegram)(nil)

// NewTelegram connects to the bot API.
func NewTelegram(cfg TelegramConfig, log logrus.FieldLogger) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 2 * time.Second
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: connect")
	}

	t := &Telegram{
		bot:     bot,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Every(cfg.SendInterval), 1),
		log:     log.WithField("component", "telegram"),
	}
	t.log.WithField("bot", bot.Self.UserName).Info("telegram notifier initialized")
	return t, nil
}

func (t *Telegram) StorePredictions(context.Context, core.Sport, []predict.Prediction) error {
	return nil
}

func (t *Telegram) StoreAccumulators(context.Context, map[string][]accumulator.Accumulator) error {
	return nil
}

// Notify sends one message per recipient. User ids are Telegram chat ids;
// with none the configured chat receives the message.
func (t *Telegram) Notify(ctx context.Context, userIDs []string, title, body string, data map[string]string) error {
	chats, err := t.recipients(userIDs)
	if err != nil {
		return err
	}
	text := formatMessage(title, body, data)

	for _, chat := range chats {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(chat, text)); err != nil {
			return errors.Wrapf(err, "telegram: send to %d", chat)
		}
	}
	t.log.WithField("recipients", len(chats)).Debug("notification sent")
	return nil
}

func (t *Telegram) recipients(userIDs []string) ([]int64, error) {
	if len(userIDs) == 0 {
		if t.chatID == 0 {
			return nil, errors.New("telegram: no recipients")
		}
		return []int64{t.chatID}, nil
	}
	chats := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		chat, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "telegram: chat id %q", id)
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func formatMessage(title, body string, data map[string]string) string {
	var b strings.Builder
	b.WriteString(title)
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			b.WriteString("\n")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(data[k])
		}
	}
	return b.String()
}
