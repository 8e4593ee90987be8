package service

import (
	"context"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
)

// NotificationService bounds every delivery with a timeout and records the
// outcome. Delivery errors are returned unlogged; the caller decides how to
// report them.
type NotificationService struct {
	next    friendship.Notifier
	timeout time.Duration
	metrics *observability.Metrics
}

var _ friendship.Notifier = (*NotificationService)(nil)

// NewNotificationService wraps next. timeout <= 0 disables the deadline.
func NewNotificationService(next friendship.Notifier, timeout time.Duration, metrics *observability.Metrics) *NotificationService {
	return &NotificationService{
		next:    next,
		timeout: timeout,
		metrics: metrics,
	}
}

// Notify implements friendship.Notifier.
func (s *NotificationService) Notify(ctx context.Context, event shared.Event) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := s.next.Notify(ctx, event)
	s.metrics.Notification(string(event.Type), err)
	return err
}
