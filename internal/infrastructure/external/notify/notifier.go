// Package notify delivers friendship events to students. Three transports
// are available: the notifications HTTP service, Redis pub/sub and a no-op.
package notify

import (
	"context"
	"net/http"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/apiclient"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/redis"
)

// Driver names accepted by New.
const (
	DriverHTTP  = "http"
	DriverRedis = "redis"
	DriverNone  = "none"
)

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

// HTTPNotifier posts events to the notifications service.
type HTTPNotifier struct {
	api *apiclient.Client
}

var _ friendship.Notifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier wraps an API client configured for the notifications service.
func NewHTTPNotifier(api *apiclient.Client) *HTTPNotifier {
	return &HTTPNotifier{api: api}
}

// Notify sends POST /events with the event as body.
func (n *HTTPNotifier) Notify(ctx context.Context, event shared.Event) error {
	if err := n.api.Do(ctx, http.MethodPost, "/events", event, nil); err != nil {
		return shared.WrapError("notification", "Notify", shared.ErrNotificationFailed,
			string(event.Type)+" to "+event.RecipientID.String(), err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS PUB/SUB
// ══════════════════════════════════════════════════════════════════════════════

// RedisPublisher publishes events on "pubsub:<event type>" channels.
type RedisPublisher struct {
	cache *redis.Cache
}

var _ friendship.Notifier = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher on top of the shared cache client.
func NewRedisPublisher(cache *redis.Cache) *RedisPublisher {
	return &RedisPublisher{cache: cache}
}

// Notify publishes the event as JSON.
func (p *RedisPublisher) Notify(ctx context.Context, event shared.Event) error {
	if err := p.cache.Publish(ctx, redis.PubSubChannel(string(event.Type)), event); err != nil {
		return shared.WrapError("notification", "Publish", shared.ErrNotificationFailed,
			string(event.Type)+" to "+event.RecipientID.String(), err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTER
// ══════════════════════════════════════════════════════════════════════════════

// Filtered drops events rejected by allow before they reach next.
type Filtered struct {
	next  friendship.Notifier
	allow func(eventType, recipient string) bool
}

var _ friendship.Notifier = (*Filtered)(nil)

// NewFiltered wraps next. A nil allow passes every event.
func NewFiltered(next friendship.Notifier, allow func(eventType, recipient string) bool) *Filtered {
	return &Filtered{next: next, allow: allow}
}

// Notify forwards the event when allowed.
func (f *Filtered) Notify(ctx context.Context, event shared.Event) error {
	if f.allow != nil && !f.allow(string(event.Type), event.RecipientID.String()) {
		return nil
	}
	return f.next.Notify(ctx, event)
}

// ══════════════════════════════════════════════════════════════════════════════
// NO-OP
// ══════════════════════════════════════════════════════════════════════════════

// Noop drops every event.
type Noop struct{}

var _ friendship.Notifier = Noop{}

// Notify does nothing.
func (Noop) Notify(context.Context, shared.Event) error { return nil }
