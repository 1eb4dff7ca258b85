package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/pkg/worker"
)

// RedisBridge fans emits out through Redis pub/sub so a session connected to
// any instance receives them. Each instance delivers to its own Hub.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	pools  *worker.Pools
	prefix string

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// NewRedisBridge creates a bridge publishing under prefix.
func NewRedisBridge(client *redis.Client, hub *Hub, pools *worker.Pools, prefix string) *RedisBridge {
	return &RedisBridge{client: client, hub: hub, pools: pools, prefix: prefix}
}

// Topic returns the channel for one recipient.
func (b *RedisBridge) Topic(role domain.RecipientRole, recipientID string) string {
	return fmt.Sprintf("%s:realtime:%s:%s", b.prefix, role, recipientID)
}

func (b *RedisBridge) pattern() string {
	return b.prefix + ":realtime:*"
}

// parseTopic is the inverse of Topic. Recipient ids may contain ':'.
func (b *RedisBridge) parseTopic(channel string) (domain.RecipientRole, string, bool) {
	rest, ok := strings.CutPrefix(channel, b.prefix+":realtime:")
	if !ok {
		return "", "", false
	}
	role, id, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return "", "", false
	}
	r := domain.RecipientRole(role)
	if !r.Valid() {
		return "", "", false
	}
	return r, id, true
}

// Emit publishes payload. A publish failure is logged and swallowed: realtime
// delivery carries no guarantee.
func (b *RedisBridge) Emit(ctx context.Context, role domain.RecipientRole, recipientID string, payload interface{}) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.Topic(role, recipientID), frame).Err(); err != nil {
		realtimeFrames.WithLabelValues("publish_failed").Inc()
		logger.Warn("Realtime publish failed",
			zap.String("recipient_role", string(role)),
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
	}
	return nil
}

// Start subscribes to every recipient topic and delivers received frames to
// the local hub until ctx is done or Close is called.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.pattern())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.pattern(), err)
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	ch := pubsub.Channel()
	if err := b.pools.SubmitDetached(worker.PoolEvents, func(ctx context.Context) {
		b.listen(ctx, ch)
	}); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("start realtime bridge: %w", err)
	}

	logger.Info("Realtime bridge subscribed", zap.String("pattern", b.pattern()))
	return nil
}

func (b *RedisBridge) listen(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			role, id, valid := b.parseTopic(msg.Channel)
			if !valid {
				logger.Debug("Realtime bridge ignored message", zap.String("channel", msg.Channel))
				continue
			}
			b.hub.Deliver(role, id, []byte(msg.Payload))
		}
	}
}

// Close ends the subscription.
func (b *RedisBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.pubsub = nil
	return err
}

var _ Emitter = (*RedisBridge)(nil)
