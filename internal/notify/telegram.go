package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"appliancemon/internal/errors"
)

// TelegramConfig configures the Telegram bot backend.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// Telegram delivers via the Telegram bot sendMessage API.
type Telegram struct {
	cfg    TelegramConfig
	api    string
	client *http.Client
}

// NewTelegram validates cfg and returns the backend.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	errFactory := errors.New()

	if cfg.BotToken == "" {
		return nil, errFactory.WithData(ErrMissingSetting, "telegram bot token")
	}
	if cfg.ChatID == "" {
		return nil, errFactory.WithData(ErrMissingSetting, "telegram chat id")
	}

	return &Telegram{
		cfg:    cfg,
		api:    fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.BotToken),
		client: &http.Client{},
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Deliver(ctx context.Context, msg Message) error {
	errFactory := errors.New()

	body, err := json.Marshal(map[string]string{
		"chat_id": t.cfg.ChatID,
		"text":    fmt.Sprintf("%s\n%s", msg.Title, msg.Body),
	})
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.api, bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(ErrUnexpectedState, resp.Status)
	}

	return nil
}
