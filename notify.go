package strategycache

import "context"

// Notification is the display payload handed to the host's notification
// subsystem. All fields are optional.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Notifier displays notifications. The display subsystem itself is the
// host's concern; the engine only relays payloads.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Show(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// ShowNotification relays a notification payload to the configured
// notifier. Without a notifier the payload is dropped with a log line.
func (e *Engine) ShowNotification(ctx context.Context, n Notification) {
	if e.notifier == nil {
		e.log.Debug().Str("title", n.Title).Msg("No notifier configured, dropping notification")
		return
	}
	if err := e.notifier.Show(ctx, n); err != nil {
		e.log.Error().Err(err).Msg("Could not show notification")
	}
}

// NotificationClicked handles user interaction with a displayed
// notification by asking connected clients to navigate to its URL.
func (e *Engine) NotificationClicked(n Notification) {
	if n.URL == "" {
		return
	}
	e.control.Broadcast(Message{Type: MessageNavigate, Target: n.URL})
}
