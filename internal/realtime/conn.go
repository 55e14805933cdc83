package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"helpr/internal/domain"

	"github.com/google/uuid"
)

const defaultSendBuffer = 64

// Envelope is the JSON text frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode renders one outbound frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}
	return frame, nil
}

// Conn is one authenticated client connection as seen by the hub. It is
// transport-agnostic: the transport drains Send and watches Done.
type Conn struct {
	ID    string
	Actor domain.Actor

	send chan []byte
	done chan struct{}
	once sync.Once

	// guarded by Hub.mu
	rooms map[int64]struct{}
}

func NewConn(actor domain.Actor, buffer int) *Conn {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Conn{
		ID:    uuid.NewString(),
		Actor: actor,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		rooms: make(map[int64]struct{}),
	}
}

// Send yields outbound frames in delivery order.
func (c *Conn) Send() <-chan []byte { return c.send }

// Done is closed once the connection has been dropped or unregistered.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. It reports false when the connection is closed or its
// buffer is full.
func (c *Conn) enqueue(frame []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
