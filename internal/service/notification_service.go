package service

import (
	"context"

	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// NotificationFeedStore is the persistence surface of the in-app feed.
type NotificationFeedStore interface {
	QueryByUser(ctx context.Context, q repository.NotificationQuery) ([]*repository.NotificationRecord, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Dismiss(ctx context.Context, userID, id string) error
	Counts(ctx context.Context, userID string) (*repository.NotificationCounts, error)
}

// EventTypeSource lists the notification event types a module can emit.
type EventTypeSource interface {
	ListEventTypes(ctx context.Context, module string) ([]*repository.NotificationEventType, error)
}

// NotificationFeedService exposes a user's in-app notification feed. Every
// operation is scoped to the calling user; one user can never read or mutate
// another's rows.
type NotificationFeedService struct {
	store      NotificationFeedStore
	eventTypes EventTypeSource
}

// NewNotificationFeedService wires the feed service.
func NewNotificationFeedService(store NotificationFeedStore, eventTypes EventTypeSource) *NotificationFeedService {
	return &NotificationFeedService{store: store, eventTypes: eventTypes}
}

// List returns the caller's notifications, newest first.
func (s *NotificationFeedService) List(ctx context.Context, q repository.NotificationQuery) ([]*repository.NotificationRecord, error) {
	if q.UserID == "" {
		return nil, errors.InvalidInput("userId", "user id is required")
	}
	return s.store.QueryByUser(ctx, q)
}

// MarkRead marks specific notifications read and reports how many rows
// actually changed.
func (s *NotificationFeedService) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.InvalidInput("ids", "at least one notification id is required")
	}
	return s.store.MarkRead(ctx, userID, ids)
}

// MarkAllRead marks every unread notification read.
func (s *NotificationFeedService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

// Dismiss hides one notification from the feed.
func (s *NotificationFeedService) Dismiss(ctx context.Context, userID, id string) error {
	return s.store.Dismiss(ctx, userID, id)
}

// EventTypes returns the active event types configured for a module, for
// the template administration screens.
func (s *NotificationFeedService) EventTypes(ctx context.Context, module string) ([]*repository.NotificationEventType, error) {
	if module == "" {
		return nil, errors.InvalidInput("module", "module is required")
	}
	return s.eventTypes.ListEventTypes(ctx, module)
}

// Counts returns the caller's unread and action-required tallies for the
// portal's badge.
func (s *NotificationFeedService) Counts(ctx context.Context, userID string) (*repository.NotificationCounts, error) {
	return s.store.Counts(ctx, userID)
}
