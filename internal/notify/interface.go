package notify

import (
	"context"
	"fmt"

	"appliancemon/internal/cycle"
)

// Backend delivers one message over its own transport. Implementations are
// invoked once per event by the dispatcher and must honor ctx cancellation.
type Backend interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Message is a rendered completion notification. Backends may use the
// rendered Title/Body or format the raw event themselves.
type Message struct {
	Title string
	Body  string
	Event cycle.CompletedEvent
}

// NewMessage renders a completion event into notification text.
func NewMessage(event cycle.CompletedEvent) Message {
	return Message{
		Title: fmt.Sprintf("%s finished", event.Appliance),
		Body: fmt.Sprintf("%s cycle complete!\nDuration: %.0f minutes\nFinal power: %.1fW",
			event.Appliance, event.Duration.Minutes(), event.FinalWatts),
		Event: event,
	}
}
