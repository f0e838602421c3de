package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/errors"
)

// WorkflowTemplateRepository persists admin-authored workflow definitions.
// Step definitions are stored as a JSONB array on the template row.
type WorkflowTemplateRepository struct {
	db *database.DB
}

// NewWorkflowTemplateRepository creates a new WorkflowTemplateRepository.
func NewWorkflowTemplateRepository(db *database.DB) *WorkflowTemplateRepository {
	return &WorkflowTemplateRepository{db: db}
}

// Create inserts a template. Callers must have validated it first; this
// repository never persists a definition that failed validation.
func (r *WorkflowTemplateRepository) Create(ctx context.Context, tpl *WorkflowTemplate) error {
	stepsJSON, err := json.Marshal(tpl.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal workflow steps")
	}
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	query := `
		INSERT INTO workflow_templates
		    (id, name, description, module, steps, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		tpl.ID,
		tpl.Name,
		tpl.Description,
		tpl.Module,
		stepsJSON,
		tpl.IsActive,
		tpl.CreatedBy,
	).Scan(&tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow template")
	}
	return nil
}

// GetByID retrieves a template by primary key.
func (r *WorkflowTemplateRepository) GetByID(ctx context.Context, id string) (*WorkflowTemplate, error) {
	query := `
		SELECT id, name, description, module, steps, is_active, created_by, created_at, updated_at
		FROM workflow_templates
		WHERE id = $1
	`
	tpl, err := r.scanTemplate(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_template", id)
	}
	return tpl, err
}

// GetActiveByModule returns the active template for a module, or nil when
// the module has no generic workflow configured.
func (r *WorkflowTemplateRepository) GetActiveByModule(ctx context.Context, module string) (*WorkflowTemplate, error) {
	query := `
		SELECT id, name, description, module, steps, is_active, created_by, created_at, updated_at
		FROM workflow_templates
		WHERE module = $1 AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`
	tpl, err := r.scanTemplate(r.db.QueryRow(ctx, query, module))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return tpl, err
}

// SetActive flips a template's active flag.
func (r *WorkflowTemplateRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE workflow_templates
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_template", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update workflow template")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type templateScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowTemplateRepository) scanTemplate(row templateScanner) (*WorkflowTemplate, error) {
	tpl := &WorkflowTemplate{}
	var stepsJSON []byte
	err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Description,
		&tpl.Module,
		&stepsJSON,
		&tpl.IsActive,
		&tpl.CreatedBy,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stepsJSON, &tpl.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal workflow steps")
	}
	return tpl, nil
}
