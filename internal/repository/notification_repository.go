package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/errors"
)

// NotificationRepository stores in-app notification records and serves the
// read/mark/dismiss API consumed by the portal UI.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts one notification record and returns its id.
func (r *NotificationRepository) Create(ctx context.Context, rec *NotificationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO notification_records
		    (id, user_id, title, message, type, category, priority,
		     related_entity_type, related_entity_id, action_required, action_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        $8, $9, $10, $11)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.Message,
		rec.Type,
		rec.Category,
		rec.Priority,
		rec.RelatedEntityType,
		rec.RelatedEntityID,
		rec.ActionRequired,
		rec.ActionURL,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create notification")
	}
	return rec.ID, nil
}

// QueryByUser returns a user's notifications, newest first.
func (r *NotificationRepository) QueryByUser(ctx context.Context, q NotificationQuery) ([]*NotificationRecord, error) {
	query := `
		SELECT id, user_id, title, message, type, category, priority,
		       related_entity_type, related_entity_id, action_required, action_url,
		       is_read, is_dismissed, created_at, read_at
		FROM notification_records
		WHERE user_id = $1
		  AND is_dismissed = FALSE
		  AND ($2::bool = FALSE OR is_read = FALSE)
		  AND ($3::text IS NULL OR category = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, query, q.UserID, q.UnreadOnly, q.Category, limit, q.Offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to query notifications")
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkRead marks the given notification ids read for a user. Ids belonging
// to other users are ignored.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE notification_records
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND id = ANY($2) AND is_read = FALSE
	`
	affected, err := r.db.Exec(ctx, query, userID, ids)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to mark notifications read")
	}
	return affected, nil
}

// MarkAllRead marks every unread notification read for a user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE notification_records
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE
	`
	affected, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to mark all notifications read")
	}
	return affected, nil
}

// Dismiss hides one notification from the user's list.
func (r *NotificationRepository) Dismiss(ctx context.Context, userID, id string) error {
	query := `
		UPDATE notification_records
		SET is_dismissed = TRUE
		WHERE user_id = $1 AND id = $2
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, userID, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("notification", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to dismiss notification")
	}
	return nil
}

// Counts returns a user's unread and action-required totals.
func (r *NotificationRepository) Counts(ctx context.Context, userID string) (*NotificationCounts, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE is_read = FALSE),
		       COUNT(*) FILTER (WHERE is_read = FALSE AND action_required = TRUE)
		FROM notification_records
		WHERE user_id = $1 AND is_dismissed = FALSE
	`
	counts := &NotificationCounts{}
	if err := r.db.QueryRow(ctx, query, userID).Scan(&counts.Unread, &counts.ActionRequired); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count notifications")
	}
	return counts, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type notificationScanner interface {
	Scan(dest ...any) error
}

func scanNotification(sc notificationScanner) (*NotificationRecord, error) {
	rec := &NotificationRecord{}
	err := sc.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Title,
		&rec.Message,
		&rec.Type,
		&rec.Category,
		&rec.Priority,
		&rec.RelatedEntityType,
		&rec.RelatedEntityID,
		&rec.ActionRequired,
		&rec.ActionURL,
		&rec.IsRead,
		&rec.IsDismissed,
		&rec.CreatedAt,
		&rec.ReadAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan notification")
	}
	return rec, nil
}
