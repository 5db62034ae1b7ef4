package strategycache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Message types understood by the control channel.
const (
	// MessageActivate forces the readiness signal and cutover immediately.
	MessageActivate = "activate"
	// MessagePrime asks the engine to prime the runtime store with URLs.
	MessagePrime = "prime"
	// MessageWorkReady is broadcast when deferred work becomes retryable.
	MessageWorkReady = "work-ready"
	// MessageNavigate asks connected clients to navigate to Target.
	MessageNavigate = "navigate"
)

// Message is the control channel payload, both inbound and outbound.
type Message struct {
	Type   string   `json:"type"`
	URLs   []string `json:"urls,omitempty"`
	Target string   `json:"target,omitempty"`
}

// ControlChannel is the narrow surface between the host application and
// the engine: commands in, best-effort broadcasts out.
type ControlChannel struct {
	lifecycle *Lifecycle
	log       zerolog.Logger

	mutex       sync.Mutex
	subscribers map[int]chan Message
	nextID      int
}

func NewControlChannel(lifecycle *Lifecycle, log zerolog.Logger) *ControlChannel {
	return &ControlChannel{
		lifecycle:   lifecycle,
		log:         log,
		subscribers: make(map[int]chan Message),
	}
}

// Dispatch handles an inbound command from the host application.
// Unknown message types are logged and dropped, never an error.
func (c *ControlChannel) Dispatch(ctx context.Context, msg Message) {
	switch msg.Type {
	case MessageActivate:
		c.lifecycle.Activate()
		c.lifecycle.Cutover(ctx)
	case MessagePrime:
		c.lifecycle.PrimeRuntimeStore(ctx, msg.URLs)
	default:
		c.log.Warn().Str("type", msg.Type).Msg("Unknown control message")
	}
}

// Subscribe registers a connected client. The returned cancel func must
// be called when the client disconnects. Broadcasts are only delivered
// to clients connected at broadcast time.
func (c *ControlChannel) Subscribe() (<-chan Message, func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan Message, 8)
	c.subscribers[id] = ch
	return ch, func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Broadcast sends a message to all connected clients.
// Delivery is best-effort: a client whose buffer is full misses the
// message, and there is no redelivery.
func (c *ControlChannel) Broadcast(msg Message) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- msg:
		default:
			c.log.Debug().Str("type", msg.Type).Msg("Dropping broadcast to slow client")
		}
	}
}

// WorkReady broadcasts that queued or deferred work for the given target
// has become retryable, e.g. after connectivity is restored.
func (c *ControlChannel) WorkReady(target string) {
	c.Broadcast(Message{Type: MessageWorkReady, Target: target})
}
