package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

type fakeFeedStore struct {
	lastQuery repository.NotificationQuery
}

func (f *fakeFeedStore) QueryByUser(_ context.Context, q repository.NotificationQuery) ([]*repository.NotificationRecord, error) {
	f.lastQuery = q
	return nil, nil
}

func (f *fakeFeedStore) MarkRead(_ context.Context, _ string, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func (f *fakeFeedStore) MarkAllRead(_ context.Context, _ string) (int64, error) { return 0, nil }

func (f *fakeFeedStore) Dismiss(_ context.Context, _, _ string) error { return nil }

func (f *fakeFeedStore) Counts(_ context.Context, _ string) (*repository.NotificationCounts, error) {
	return &repository.NotificationCounts{}, nil
}

type fakeEventTypeSource struct {
	lastModule string
	types      []*repository.NotificationEventType
}

func (f *fakeEventTypeSource) ListEventTypes(_ context.Context, module string) ([]*repository.NotificationEventType, error) {
	f.lastModule = module
	return f.types, nil
}

func TestFeedListRequiresUser(t *testing.T) {
	svc := NewNotificationFeedService(&fakeFeedStore{}, &fakeEventTypeSource{})

	_, err := svc.List(context.Background(), repository.NotificationQuery{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestFeedMarkReadRequiresIDs(t *testing.T) {
	svc := NewNotificationFeedService(&fakeFeedStore{}, &fakeEventTypeSource{})

	_, err := svc.MarkRead(context.Background(), "u-1", nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	updated, err := svc.MarkRead(context.Background(), "u-1", []string{"n-1", "n-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
}

func TestFeedEventTypesByModule(t *testing.T) {
	source := &fakeEventTypeSource{types: []*repository.NotificationEventType{
		{ID: "et-1", Name: "trf_submitted", Category: "approval", Module: repository.EntityTravel, IsActive: true},
	}}
	svc := NewNotificationFeedService(&fakeFeedStore{}, source)

	_, err := svc.EventTypes(context.Background(), "")
	require.Error(t, err, "module is mandatory")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	types, err := svc.EventTypes(context.Background(), repository.EntityTravel)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "trf_submitted", types[0].Name)
	assert.Equal(t, repository.EntityTravel, source.lastModule)
}
