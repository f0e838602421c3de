package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/errors"
)

// TemplateRepository reads notification templates and event type definitions.
type TemplateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetActiveByName returns the active template with the given routing name.
// An inactive or missing template yields ErrCodeNotFound; callers on the
// notification path log and skip rather than fail.
func (r *TemplateRepository) GetActiveByName(ctx context.Context, name string) (*NotificationTemplate, error) {
	query := `
		SELECT id, name, subject, body, recipient_type, is_active, created_at, updated_at
		FROM notification_templates
		WHERE name = $1 AND is_active = TRUE
	`
	tpl := &NotificationTemplate{}
	err := r.db.QueryRow(ctx, query, name).Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Subject,
		&tpl.Body,
		&tpl.RecipientType,
		&tpl.IsActive,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("notification_template", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get notification template")
	}
	return tpl, nil
}

// ListEventTypes returns the active event types for a module.
func (r *TemplateRepository) ListEventTypes(ctx context.Context, module string) ([]*NotificationEventType, error) {
	query := `
		SELECT id, name, category, module, is_active
		FROM notification_event_types
		WHERE module = $1 AND is_active = TRUE
		ORDER BY name ASC
	`
	rows, err := r.db.Query(ctx, query, module)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list event types")
	}
	defer rows.Close()

	var types []*NotificationEventType
	for rows.Next() {
		et := &NotificationEventType{}
		if err := rows.Scan(&et.ID, &et.Name, &et.Category, &et.Module, &et.IsActive); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan event type")
		}
		types = append(types, et)
	}
	return types, nil
}
