package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const resubscribeDelay = 2 * time.Second

// RedisRelay is a Channel spanning several API instances. Membership stays
// local to a Hub; broadcasts go through Redis pub/sub so every instance
// delivers them to its own members.
type RedisRelay struct {
	hub    *Hub
	client *redis.Client
}

func NewRedisRelay(hub *Hub, client *redis.Client) *RedisRelay {
	return &RedisRelay{
		hub:    hub,
		client: client,
	}
}

func (r *RedisRelay) Join(ctx context.Context, room string, m *Member) error {
	return r.hub.Join(ctx, room, m)
}

func (r *RedisRelay) Leave(ctx context.Context, room string, m *Member) error {
	return r.hub.Leave(ctx, room, m)
}

// Broadcast publishes the event. If Redis is unreachable the event is still
// delivered to this instance's members.
func (r *RedisRelay) Broadcast(ctx context.Context, room string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("json.Marshal -> %w", err)
	}

	if err = r.client.Publish(ctx, room, payload).Err(); err != nil {
		zap.L().Warn("chat relay publish failed, delivering locally", zap.String("room", room), zap.Error(err))
		return r.hub.Broadcast(ctx, room, event)
	}

	return nil
}

// Run forwards published events to the local hub until ctx is done,
// resubscribing after receive errors.
func (r *RedisRelay) Run(ctx context.Context) {
	for {
		err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}

		zap.L().Warn("chat relay subscription ended, resubscribing", zap.Error(err), zap.Duration("delay", resubscribeDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, roomNamespace+"_*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("pubsub.Receive -> %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			r.handle(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, room, payload string) {
	event, err := decodeRelayed(room, payload)
	if err != nil {
		zap.L().Warn("chat relay dropped payload", zap.String("room", room), zap.Error(err))
		return
	}

	if err = r.hub.Broadcast(ctx, room, event); err != nil {
		zap.L().Error("chat relay broadcast failed", zap.String("room", room), zap.Error(err))
	}
}

func decodeRelayed(room, payload string) (Event, error) {
	if !strings.HasPrefix(room, roomNamespace+"_") {
		return Event{}, fmt.Errorf("unexpected channel %q", room)
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("json.Unmarshal -> %w", err)
	}
	if event.Type != EventChatMessage {
		return Event{}, fmt.Errorf("unexpected event type %q", event.Type)
	}

	return event, nil
}
