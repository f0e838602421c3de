package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/errors"
)

// RequestRepository persists request entities, their append-only step
// records and travel itinerary segments. The status transition and its step
// record are always written in a single transaction.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// NewRequestID mints an entity-type-prefixed request id, e.g. TRF-2026-1A2B3C.
func NewRequestID(entityType string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%d-%s", strings.ToUpper(entityType), now.Year(), suffix)
}

// Create inserts a request and its "submitted" step record in one transaction.
func (r *RequestRepository) Create(ctx context.Context, req *Request, submitted *StepRecord) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO requests
			    (id, entity_type, requestor_id, requestor_name, requestor_email,
			     staff_id, department, title, purpose, amount,
			     travel_type, date_from, date_to, status, submitted_at)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8, $9, $10,
			        $11, $12, $13, $14, $15)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			req.ID,
			req.EntityType,
			req.RequestorID,
			req.RequestorName,
			req.RequestorEmail,
			req.StaffID,
			req.Department,
			req.Title,
			req.Purpose,
			req.Amount,
			req.TravelType,
			req.DateFrom,
			req.DateTo,
			req.Status,
			req.SubmittedAt,
		).Scan(&req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request")
		}
		return insertStepRecord(ctx, tx, submitted)
	})
}

// GetByID retrieves a request by primary key.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	query := selectRequest + ` WHERE id = $1`
	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request")
	}
	return req, nil
}

// ListByRequestor returns a requestor's requests, newest first.
func (r *RequestRepository) ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*Request, error) {
	query := selectRequest + `
		WHERE requestor_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, requestorID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list requests")
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ListByStatuses returns one entity type's requests sitting at any of the
// given statuses, oldest first so the longest-waiting ones surface at the
// top of an approval queue. department, when set, narrows to one department.
func (r *RequestRepository) ListByStatuses(ctx context.Context, entityType string, statuses []string, department *string, limit, offset int) ([]*Request, error) {
	query := selectRequest + `
		WHERE entity_type = $1
		  AND status = ANY($2)
		  AND ($3::text IS NULL OR department = $3)
		ORDER BY submitted_at ASC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, entityType, statuses, department, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list requests by status")
	}
	defer rows.Close()
	return scanRequests(rows)
}

// TransitionStatus atomically moves a request from fromStatus to toStatus and
// appends the step record evidencing the action. The status update is a
// compare-and-set: when the row is no longer at fromStatus (a concurrent
// action already advanced it) the transition fails with
// ErrCodeInvalidState and nothing is written.
func (r *RequestRepository) TransitionStatus(ctx context.Context, entityID, fromStatus, toStatus string, rec *StepRecord) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE requests
			SET status     = $3,
			    updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING id
		`
		var returnedID string
		err := tx.QueryRow(ctx, query, entityID, fromStatus, toStatus).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Newf(errors.ErrCodeInvalidState,
				"request %s is no longer at status %q", entityID, fromStatus)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update request status")
		}
		return insertStepRecord(ctx, tx, rec)
	})
}

// GetStepRecords returns the full approval history for a request, oldest first.
func (r *RequestRepository) GetStepRecords(ctx context.Context, entityID string) ([]*StepRecord, error) {
	query := `
		SELECT id, entity_id, role, actor_id, actor_name, action, comments, created_at
		FROM request_step_records
		WHERE entity_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get step records")
	}
	defer rows.Close()

	var records []*StepRecord
	for rows.Next() {
		rec := &StepRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.EntityID,
			&rec.Role,
			&rec.ActorID,
			&rec.ActorName,
			&rec.Action,
			&rec.Comments,
			&rec.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan step record")
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetItinerary returns the itinerary segments of a travel request ordered by
// segment number.
func (r *RequestRepository) GetItinerary(ctx context.Context, requestID string) ([]*ItinerarySegment, error) {
	query := `
		SELECT id, request_id, segment_number, mode, origin, destination, depart_date, created_at
		FROM travel_itinerary_segments
		WHERE request_id = $1
		ORDER BY segment_number ASC
	`
	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get itinerary")
	}
	defer rows.Close()

	var segments []*ItinerarySegment
	for rows.Next() {
		seg := &ItinerarySegment{}
		if err := rows.Scan(
			&seg.ID,
			&seg.RequestID,
			&seg.SegmentNumber,
			&seg.Mode,
			&seg.Origin,
			&seg.Destination,
			&seg.DepartDate,
			&seg.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan itinerary segment")
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// AddItinerarySegments inserts itinerary rows for a travel request.
func (r *RequestRepository) AddItinerarySegments(ctx context.Context, segments []*ItinerarySegment) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO travel_itinerary_segments
			    (id, request_id, segment_number, mode, origin, destination, depart_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`
		for _, seg := range segments {
			if seg.ID == "" {
				seg.ID = uuid.New().String()
			}
			err := tx.QueryRow(ctx, query,
				seg.ID,
				seg.RequestID,
				seg.SegmentNumber,
				seg.Mode,
				seg.Origin,
				seg.Destination,
				seg.DepartDate,
			).Scan(&seg.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert itinerary segment")
			}
		}
		return nil
	})
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectRequest = `
	SELECT id, entity_type, requestor_id, requestor_name, requestor_email,
	       staff_id, department, title, purpose, amount,
	       travel_type, date_from, date_to, status, submitted_at,
	       created_at, updated_at
	FROM requests`

type requestScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row requestScanner) (*Request, error) {
	req := &Request{}
	err := row.Scan(
		&req.ID,
		&req.EntityType,
		&req.RequestorID,
		&req.RequestorName,
		&req.RequestorEmail,
		&req.StaffID,
		&req.Department,
		&req.Title,
		&req.Purpose,
		&req.Amount,
		&req.TravelType,
		&req.DateFrom,
		&req.DateTo,
		&req.Status,
		&req.SubmittedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func scanRequests(rows pgx.Rows) ([]*Request, error) {
	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func insertStepRecord(ctx context.Context, tx pgx.Tx, rec *StepRecord) error {
	if rec == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO request_step_records
		    (id, entity_id, role, actor_id, actor_name, action, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		rec.ID,
		rec.EntityID,
		rec.Role,
		rec.ActorID,
		rec.ActorName,
		rec.Action,
		rec.Comments,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append step record")
	}
	return nil
}
