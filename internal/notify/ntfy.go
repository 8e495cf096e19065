package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"appliancemon/internal/errors"
)

const defaultNtfyServer = "https://ntfy.sh"

// NtfyConfig configures the ntfy.sh backend.
type NtfyConfig struct {
	Server string
	Topic  string
}

// Ntfy posts the message body to a ntfy topic with title and priority
// headers.
type Ntfy struct {
	cfg    NtfyConfig
	client *http.Client
}

// NewNtfy validates cfg and returns the backend. Server defaults to the
// public ntfy.sh instance.
func NewNtfy(cfg NtfyConfig) (*Ntfy, error) {
	if cfg.Topic == "" {
		errFactory := errors.New()
		return nil, errFactory.WithData(ErrMissingSetting, "ntfy topic")
	}

	if cfg.Server == "" {
		cfg.Server = defaultNtfyServer
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")

	return &Ntfy{
		cfg:    cfg,
		client: &http.Client{},
	}, nil
}

func (n *Ntfy) Name() string {
	return "ntfy"
}

func (n *Ntfy) Deliver(ctx context.Context, msg Message) error {
	errFactory := errors.New()

	url := fmt.Sprintf("%s/%s", n.cfg.Server, n.cfg.Topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg.Body))
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	req.Header.Set("Title", msg.Title)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "white_check_mark")

	resp, err := n.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(ErrUnexpectedState, resp.Status)
	}

	return nil
}
