package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"appliancemon/internal/errors"
)

const pushoverAPI = "https://api.pushover.net/1/messages.json"

// PushoverConfig configures the Pushover backend.
type PushoverConfig struct {
	Token string
	User  string
}

// Pushover delivers via the Pushover message API.
type Pushover struct {
	cfg    PushoverConfig
	api    string
	client *http.Client
}

// NewPushover validates cfg and returns the backend.
func NewPushover(cfg PushoverConfig) (*Pushover, error) {
	errFactory := errors.New()

	if cfg.Token == "" {
		return nil, errFactory.WithData(ErrMissingSetting, "pushover token")
	}
	if cfg.User == "" {
		return nil, errFactory.WithData(ErrMissingSetting, "pushover user")
	}

	return &Pushover{
		cfg:    cfg,
		api:    pushoverAPI,
		client: &http.Client{},
	}, nil
}

func (p *Pushover) Name() string {
	return "pushover"
}

func (p *Pushover) Deliver(ctx context.Context, msg Message) error {
	errFactory := errors.New()

	form := url.Values{
		"token":    {p.cfg.Token},
		"user":     {p.cfg.User},
		"title":    {msg.Title},
		"message":  {msg.Body},
		"priority": {"1"},
		"sound":    {"pushover"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.api, strings.NewReader(form.Encode()))
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(ErrUnexpectedState, resp.Status)
	}

	return nil
}
