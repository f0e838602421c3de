package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflane/be-hr-requests/internal/client"
	apperrors "github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

type fakeTemplateSource struct {
	templates map[string]*repository.NotificationTemplate
}

func (f *fakeTemplateSource) GetActiveByName(_ context.Context, name string) (*repository.NotificationTemplate, error) {
	if tpl, ok := f.templates[name]; ok {
		return tpl, nil
	}
	return nil, apperrors.NotFound("notification template", name)
}

type fakeRecordStore struct {
	records []*repository.NotificationRecord
}

func (f *fakeRecordStore) Create(_ context.Context, rec *repository.NotificationRecord) (string, error) {
	f.records = append(f.records, rec)
	return "n-1", nil
}

type fakePublisher struct {
	events []*client.RequestEvent
}

func (f *fakePublisher) PublishRequestEvent(_ context.Context, event *client.RequestEvent) {
	f.events = append(f.events, event)
}

func defaultTemplates() *fakeTemplateSource {
	return &fakeTemplateSource{templates: map[string]*repository.NotificationTemplate{
		TemplateInitialApprover: {
			Name:          TemplateInitialApprover,
			Subject:       "New {entityType} request from {requestorName}",
			Body:          "Request {entityId} needs your review.{comments && Comments: {comments}}",
			RecipientType: repository.RecipientApprover,
			IsActive:      true,
		},
		TemplateStageHandoff: {
			Name:          TemplateStageHandoff,
			Subject:       "{entityId} is now {currentStatus}",
			Body:          "Approve or reject at {approvalUrl}",
			RecipientType: repository.RecipientApprover,
			IsActive:      true,
		},
		TemplateProcessingHandoff: {
			Name:          TemplateProcessingHandoff,
			Subject:       "{entityId} ready for processing",
			Body:          "Fully approved, over to you.",
			RecipientType: repository.RecipientApprover,
			IsActive:      true,
		},
		TemplateRejectionNotice: {
			Name:          TemplateRejectionNotice,
			Subject:       "Your request {entityId} was rejected",
			Body:          "{rejectionReason && Reason: {rejectionReason}}",
			RecipientType: repository.RecipientRequestor,
			IsActive:      true,
		},
	}}
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	publisher  *fakePublisher
	records    *fakeRecordStore
	directory  *fakeResolverDirectory
}

func newDispatcherFixture(itineraries ItineraryReader) *dispatcherFixture {
	directory := &fakeResolverDirectory{users: map[string][]*repository.DirectoryUser{
		"approve_trf_focal": {
			{ID: "f-1", Name: "Mia Chen", Email: "mia@example.com", Role: "Department Focal", Department: "Finance"},
		},
		"approve_trf_manager": {
			{ID: "m-1", Name: "Lena Novak", Email: "lena@example.com", Role: "Line Manager"},
		},
		"process_flights": {
			{ID: "fl-1", Name: "Noor Aziz", Email: "flights@example.com", Role: "Flights Admin"},
		},
		"process_trf": {
			{ID: "ta-1", Name: "Jo Park", Email: "travel@example.com", Role: "Travel Admin"},
		},
	}}
	publisher := &fakePublisher{}
	records := &fakeRecordStore{}
	table := DefaultPermissionTable()

	if itineraries == nil {
		itineraries = &fakeItineraries{}
	}
	dispatcher := NewDispatcher(
		NewRouter(),
		NewResolver(table, directory, logger.Nop()),
		NewDestinationClassifier(itineraries),
		defaultTemplates(),
		records,
		publisher,
		"https://portal.example.com",
		logger.Nop(),
	)
	return &dispatcherFixture{dispatcher: dispatcher, publisher: publisher, records: records, directory: directory}
}

func financeTravelRequest() *repository.Request {
	travelType := "Overseas"
	return &repository.Request{
		ID:             "TRF-2026-000042",
		EntityType:     repository.EntityTravel,
		RequestorID:    "u-req",
		RequestorName:  "Omar Haddad",
		RequestorEmail: "omar@example.com",
		Department:     "Finance",
		Title:          "Conference travel",
		TravelType:     &travelType,
		Status:         workflow.StatusPendingFocal,
	}
}

func TestDispatchSubmittedNotifiesFocalWithRequestorCC(t *testing.T) {
	f := newDispatcherFixture(nil)

	f.dispatcher.DispatchSubmitted(context.Background(), financeTravelRequest())

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, "trf_submitted", event.EventType)
	assert.Equal(t, []string{"mia@example.com"}, event.To)
	assert.Equal(t, []string{"omar@example.com"}, event.CC)
	assert.Equal(t, "New trf request from Omar Haddad", event.Subject)
	assert.Equal(t, "Request TRF-2026-000042 needs your review.", event.Body, "empty comments drop the conditional block")

	// In-app rows: action-required for the approver, informational for the cc.
	require.Len(t, f.records.records, 2)
	assert.True(t, f.records.records[0].ActionRequired)
	assert.False(t, f.records.records[1].ActionRequired)
}

func TestDispatchTransitionOverseasTravelRoutesToFlights(t *testing.T) {
	// A Finance overseas trip reaching Approved must land with the flights
	// desk, not the generic travel processing queue.
	f := newDispatcherFixture(nil)
	req := financeTravelRequest()
	req.Status = workflow.StatusPendingHOD

	t1 := &workflow.Transition{
		Request:    req,
		EntityID:   req.ID,
		EntityType: req.EntityType,
		From:       workflow.StatusPendingHOD,
		To:         workflow.StatusApproved,
		Action:     workflow.ActionApprove,
	}
	f.dispatcher.DispatchTransition(context.Background(), t1, workflow.Actor{ID: "h-1", Name: "Ravi Iyer", Role: "HOD"}, "")

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, "trf_approved", event.EventType)
	assert.Equal(t, []string{"flights@example.com"}, event.To)
	assert.Equal(t, []string{"omar@example.com"}, event.CC)
}

func TestDispatchTransitionGroundTripSkipsHandoff(t *testing.T) {
	f := newDispatcherFixture(&fakeItineraries{segments: map[string][]*repository.ItinerarySegment{
		"TRF-2026-000042": {{Mode: repository.SegmentModeGround, Origin: "Office", Destination: "Plant"}},
	}})
	req := financeTravelRequest()
	domestic := "Domestic"
	req.TravelType = &domestic
	req.Status = workflow.StatusPendingHOD

	t1 := &workflow.Transition{
		Request:    req,
		EntityID:   req.ID,
		EntityType: req.EntityType,
		From:       workflow.StatusPendingHOD,
		To:         workflow.StatusApproved,
		Action:     workflow.ActionApprove,
	}
	f.dispatcher.DispatchTransition(context.Background(), t1, workflow.Actor{ID: "h-1", Name: "Ravi Iyer", Role: "HOD"}, "")

	assert.Empty(t, f.publisher.events, "ground-only trip has no processing queue")
	assert.Empty(t, f.records.records)
}

func TestDispatchTransitionRejectionGoesToRequestorOnly(t *testing.T) {
	f := newDispatcherFixture(nil)
	req := financeTravelRequest()
	req.Status = workflow.StatusPendingManager

	t1 := &workflow.Transition{
		Request:    req,
		EntityID:   req.ID,
		EntityType: req.EntityType,
		From:       workflow.StatusPendingManager,
		To:         workflow.StatusRejected,
		Action:     workflow.ActionReject,
	}
	f.dispatcher.DispatchTransition(context.Background(), t1, workflow.Actor{ID: "m-1", Name: "Lena Novak", Role: "Line Manager"}, "budget cut")

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, "trf_rejected", event.EventType)
	assert.Equal(t, []string{"omar@example.com"}, event.To)
	assert.Empty(t, event.CC)
	assert.Equal(t, "Reason: budget cut", event.Body)
}

func TestDispatchSkipsWhenTemplateInactive(t *testing.T) {
	f := newDispatcherFixture(nil)
	delete(f.dispatcher.templates.(*fakeTemplateSource).templates, TemplateInitialApprover)

	f.dispatcher.DispatchSubmitted(context.Background(), financeTravelRequest())
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.records.records)
}
