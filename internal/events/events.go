package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingRated         = "booking_rated"
	EventMessageCreated       = "message_created"
	EventAdminActionRecorded  = "admin_action_recorded"
)

// BookingEventPayload is the booking snapshot handed to in-process consumers.
type BookingEventPayload struct {
	BookingID  int64     `json:"booking_id"`
	CustomerID int64     `json:"customer_id"`
	HelperID   *int64    `json:"helper_id,omitempty"`
	ServiceID  int64     `json:"service_id"`
	From       string    `json:"from,omitempty"`
	Status     string    `json:"status"`
	ChangedBy  int64     `json:"changed_by"`
	Reason     string    `json:"reason,omitempty"`
	Rating     int       `json:"rating,omitempty"`
	At         time.Time `json:"at"`
}

type MessageEventPayload struct {
	MessageID   int64  `json:"message_id"`
	BookingID   int64  `json:"booking_id"`
	SenderID    *int64 `json:"sender_id,omitempty"`
	MessageType string `json:"message_type"`
}

type AdminActionEventPayload struct {
	ActionID   int64  `json:"action_id"`
	AdminID    int64  `json:"admin_id"`
	ActionType string `json:"action_type"`
	TargetType string `json:"target_type"`
	TargetID   int64  `json:"target_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. A failing or panicking
// handler is logged and does not stop the remaining handlers.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every known event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range []string{
		EventBookingCreated,
		EventBookingStatusChanged,
		EventBookingRated,
		EventMessageCreated,
		EventAdminActionRecorded,
	} {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type synchronously.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

func (b *EventBus) dispatch(handler EventHandler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("event", event.Type).Msg("event handler panicked")
		}
	}()
	if err := handler(event); err != nil {
		b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
