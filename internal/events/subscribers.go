package events

import (
	"helpr/internal/metrics"

	"github.com/rs/zerolog"
)

// AttachLogger writes a debug line per event.
func AttachLogger(bus *EventBus, logger *zerolog.Logger) {
	bus.SubscribeAll(func(event *Event) error {
		logger.Debug().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("domain event")
		return nil
	})
}

// AttachMetrics counts transitions and messages from the event stream.
func AttachMetrics(bus *EventBus) {
	bus.Subscribe(EventBookingStatusChanged, func(event *Event) error {
		var p BookingEventPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		metrics.IncTransition(p.Status)
		return nil
	})
	bus.Subscribe(EventMessageCreated, func(event *Event) error {
		var p MessageEventPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		metrics.IncMessage(p.MessageType)
		return nil
	})
	bus.Subscribe(EventAdminActionRecorded, func(event *Event) error {
		var p AdminActionEventPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		metrics.IncAudit(p.ActionType)
		return nil
	})
}
