// Package service holds the business operations behind the HTTP surface:
// request intake, approval actions, the configurable workflow administration
// and the notification feed.
package service

import (
	"context"
	"math"
	"time"

	"github.com/stafflane/be-hr-requests/internal/dedup"
	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/notification"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// RequestStore is the persistence surface for request intake and reads.
type RequestStore interface {
	Create(ctx context.Context, req *repository.Request, submitted *repository.StepRecord) error
	GetByID(ctx context.Context, id string) (*repository.Request, error)
	ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*repository.Request, error)
	GetStepRecords(ctx context.Context, entityID string) ([]*repository.StepRecord, error)
	GetItinerary(ctx context.Context, requestID string) ([]*repository.ItinerarySegment, error)
	AddItinerarySegments(ctx context.Context, segments []*repository.ItinerarySegment) error
}

// CreateRequestInput carries a new request submission.
type CreateRequestInput struct {
	EntityType     string
	RequestorID    string
	RequestorName  string
	RequestorEmail string
	StaffID        string
	Department     string
	Title          string
	Purpose        string
	Amount         *int64
	TravelType     string
	DateFrom       string
	DateTo         string
	Itinerary      []ItinerarySegmentInput
}

// ItinerarySegmentInput is one leg of a travel request.
type ItinerarySegmentInput struct {
	Mode        string
	Origin      string
	Destination string
	DepartDate  string
}

// RequestService handles request intake and read models.
type RequestService struct {
	store      RequestStore
	sequences  *workflow.SequenceSet
	guard      *dedup.Guard
	dispatcher *notification.Dispatcher
	dedupTTL   time.Duration
	log        *logger.Logger
}

// NewRequestService wires the intake service.
func NewRequestService(store RequestStore, sequences *workflow.SequenceSet, guard *dedup.Guard, dispatcher *notification.Dispatcher, dedupTTL time.Duration, log *logger.Logger) *RequestService {
	return &RequestService{
		store:      store,
		sequences:  sequences,
		guard:      guard,
		dispatcher: dispatcher,
		dedupTTL:   dedupTTL,
		log:        log,
	}
}

// CreateRequest validates and persists a new request at its first pending
// stage, then fires the initial approver notification. Byte-identical
// resubmissions inside the dedup window are rejected with ErrCodeDuplicate.
// The fingerprint is released early only when persistence fails; after a
// successful create it is kept for the full window, so an identical
// resubmission stays suppressed until the TTL lapses.
func (s *RequestService) CreateRequest(ctx context.Context, in CreateRequestInput) (*repository.Request, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	seq := s.sequences.For(in.EntityType)
	if seq == nil {
		return nil, errors.InvalidInput("entityType", "unknown entity type "+in.EntityType)
	}

	now := time.Now().UTC()
	fingerprint := dedup.Fingerprint(in.RequestorID, "create_"+in.EntityType, fingerprintPayload(in), now)
	if dup, remaining := s.guard.CheckAndMark(fingerprint, s.dedupTTL); dup {
		seconds := int(math.Ceil(remaining.Seconds()))
		return nil, errors.Newf(errors.ErrCodeDuplicate,
			"an identical request was just submitted; retry allowed in %ds", seconds)
	}

	req := buildRequest(in, seq, now)
	submitted := &repository.StepRecord{
		EntityID:  req.ID,
		Role:      "Requestor",
		ActorID:   in.RequestorID,
		ActorName: in.RequestorName,
		Action:    repository.ActionSubmitted,
	}

	if err := s.store.Create(ctx, req, submitted); err != nil {
		// Release the fingerprint so a retry after a genuine failure is not
		// suppressed for the full window.
		s.guard.MarkCompleted(fingerprint)
		return nil, err
	}

	if len(in.Itinerary) > 0 {
		segments := make([]*repository.ItinerarySegment, 0, len(in.Itinerary))
		for i, leg := range in.Itinerary {
			seg := &repository.ItinerarySegment{
				RequestID:     req.ID,
				SegmentNumber: i + 1,
				Mode:          leg.Mode,
				Origin:        leg.Origin,
				Destination:   leg.Destination,
			}
			if leg.DepartDate != "" {
				depart := leg.DepartDate
				seg.DepartDate = &depart
			}
			segments = append(segments, seg)
		}
		if err := s.store.AddItinerarySegments(ctx, segments); err != nil {
			s.log.Error().Err(err).Str("entity_id", req.ID).Msg("Failed to persist itinerary segments")
		}
	}

	s.log.Info().
		Str("entity_id", req.ID).
		Str("entity_type", req.EntityType).
		Str("requestor", req.RequestorID).
		Str("status", req.Status).
		Msg("Request created")

	s.dispatcher.DispatchSubmitted(ctx, req)
	return req, nil
}

// GetRequest returns one request.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*repository.Request, error) {
	return s.store.GetByID(ctx, id)
}

// ListMyRequests returns the caller's own requests, newest first.
func (s *RequestService) ListMyRequests(ctx context.Context, requestorID string, limit, offset int) ([]*repository.Request, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByRequestor(ctx, requestorID, limit, offset)
}

// GetHistory returns the raw approval history for a request, oldest first.
func (s *RequestService) GetHistory(ctx context.Context, id string) ([]*repository.StepRecord, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetStepRecords(ctx, id)
}

// GetTimeline synthesizes the stage-by-stage approval timeline for a request
// by merging its recorded actions with the expected role sequence.
func (s *RequestService) GetTimeline(ctx context.Context, id string) ([]repository.TimelineEntry, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	seq := s.sequences.For(req.EntityType)
	if seq == nil {
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown entity type %q", req.EntityType)
	}
	records, err := s.store.GetStepRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.BuildTimeline(seq, req.Status, records), nil
}

// GetItinerary returns the travel itinerary for a request.
func (s *RequestService) GetItinerary(ctx context.Context, id string) ([]*repository.ItinerarySegment, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetItinerary(ctx, id)
}

func validateCreate(in CreateRequestInput) error {
	switch {
	case !repository.IsEntityType(in.EntityType):
		return errors.InvalidInput("entityType", "unknown entity type")
	case in.RequestorID == "":
		return errors.InvalidInput("requestorId", "requestor id is required")
	case in.RequestorName == "":
		return errors.InvalidInput("requestorName", "requestor name is required")
	case in.Department == "":
		return errors.InvalidInput("department", "department is required")
	case in.Title == "":
		return errors.InvalidInput("title", "title is required")
	}
	if in.EntityType == repository.EntityExpenseClaim && (in.Amount == nil || *in.Amount <= 0) {
		return errors.InvalidInput("amount", "a positive claim amount is required")
	}
	for _, leg := range in.Itinerary {
		if leg.Mode != repository.SegmentModeFlight && leg.Mode != repository.SegmentModeGround {
			return errors.InvalidInput("itinerary", "segment mode must be flight or ground")
		}
	}
	return nil
}

func buildRequest(in CreateRequestInput, seq *workflow.Sequence, now time.Time) *repository.Request {
	req := &repository.Request{
		ID:             repository.NewRequestID(in.EntityType, now),
		EntityType:     in.EntityType,
		RequestorID:    in.RequestorID,
		RequestorName:  in.RequestorName,
		RequestorEmail: in.RequestorEmail,
		StaffID:        in.StaffID,
		Department:     in.Department,
		Title:          in.Title,
		Amount:         in.Amount,
		Status:         seq.First(),
		SubmittedAt:    now,
	}
	if in.Purpose != "" {
		purpose := in.Purpose
		req.Purpose = &purpose
	}
	if in.TravelType != "" {
		travelType := in.TravelType
		req.TravelType = &travelType
	}
	if in.DateFrom != "" {
		from := in.DateFrom
		req.DateFrom = &from
	}
	if in.DateTo != "" {
		to := in.DateTo
		req.DateTo = &to
	}
	return req
}

func fingerprintPayload(in CreateRequestInput) map[string]interface{} {
	payload := map[string]interface{}{
		"entityType": in.EntityType,
		"title":      in.Title,
		"purpose":    in.Purpose,
		"department": in.Department,
		"travelType": in.TravelType,
		"dateFrom":   in.DateFrom,
		"dateTo":     in.DateTo,
	}
	if in.Amount != nil {
		payload["amount"] = *in.Amount
	}
	return payload
}
