package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	relayChannel        = "helpr:realtime"
	relayPublishTimeout = 2 * time.Second
)

type relayFrame struct {
	Origin string          `json:"origin"`
	Target Target          `json:"target"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay is a Broadcaster for multi-instance deployments. Every emission
// is delivered to the local hub and published on a Redis channel; Run
// delivers frames published by other instances to the local hub.
type RedisRelay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
	logger  *zerolog.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *zerolog.Logger) *RedisRelay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisRelay{
		hub:     hub,
		client:  client,
		channel: relayChannel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (r *RedisRelay) deliver(t Target, frame []byte) {
	r.hub.Deliver(t, frame)

	data, err := json.Marshal(relayFrame{Origin: r.origin, Target: t, Frame: frame})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to marshal relay frame")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("scope", t.Scope).Msg("failed to publish realtime frame")
	}
}

// Run subscribes to the relay channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Str("origin", r.origin).Msg("realtime relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rf relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &rf); err != nil {
				r.logger.Warn().Err(err).Msg("discarding malformed relay frame")
				continue
			}
			if rf.Origin == r.origin {
				continue
			}
			r.hub.Deliver(rf.Target, rf.Frame)
		}
	}
}

// DisconnectUser closes the user's connections on every instance.
func (r *RedisRelay) DisconnectUser(userID int64) {
	r.deliver(Target{Scope: scopeDisconnect, ID: userID}, nil)
}

func (r *RedisRelay) ToRoom(bookingID int64) domain.Emitter {
	return emitter{sink: r.deliver, target: Target{Scope: scopeRoom, ID: bookingID}, logger: r.logger}
}

func (r *RedisRelay) ToRoomExcept(bookingID, userID int64) domain.Emitter {
	return emitter{sink: r.deliver, target: Target{Scope: scopeRoom, ID: bookingID, Except: userID}, logger: r.logger}
}

func (r *RedisRelay) ToUser(userID int64) domain.Emitter {
	return emitter{sink: r.deliver, target: Target{Scope: scopeUser, ID: userID}, logger: r.logger}
}

func (r *RedisRelay) ToRole(role models.Role) domain.Emitter {
	return emitter{sink: r.deliver, target: Target{Scope: scopeRole, Role: role}, logger: r.logger}
}
