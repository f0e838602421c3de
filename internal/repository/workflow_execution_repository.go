package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/errors"
)

// WorkflowExecutionRepository tracks running instances of the generic
// configurable engine: executions, their explicit step rows and the timeout
// schedule the escalation sweep consumes.
type WorkflowExecutionRepository struct {
	db *database.DB
}

// NewWorkflowExecutionRepository creates a new WorkflowExecutionRepository.
func NewWorkflowExecutionRepository(db *database.DB) *WorkflowExecutionRepository {
	return &WorkflowExecutionRepository{db: db}
}

// CreateExecution inserts an execution, its step rows and any timeout rows
// in one transaction.
func (r *WorkflowExecutionRepository) CreateExecution(ctx context.Context, exec *WorkflowExecution, steps []*StepExecution, timeouts []*StepTimeout) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if exec.ID == "" {
			exec.ID = uuid.New().String()
		}
		execQuery := `
			INSERT INTO workflow_executions
			    (id, template_id, entity_id, entity_type, status,
			     current_step_number, total_steps, started_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING started_at, created_at, updated_at
		`
		err := tx.QueryRow(ctx, execQuery,
			exec.ID,
			exec.TemplateID,
			exec.EntityID,
			exec.EntityType,
			exec.Status,
			exec.CurrentStepNumber,
			exec.TotalSteps,
			exec.StartedBy,
		).Scan(&exec.StartedAt, &exec.CreatedAt, &exec.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow execution")
		}

		stepQuery := `
			INSERT INTO workflow_step_executions
			    (id, execution_id, step_number, name, required_role,
			     assigned_user_id, can_delegate, condition, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`
		for _, step := range steps {
			if step.ID == "" {
				step.ID = uuid.New().String()
			}
			step.ExecutionID = exec.ID
			conditionJSON, err := marshalCondition(step.Condition)
			if err != nil {
				return err
			}
			err = tx.QueryRow(ctx, stepQuery,
				step.ID,
				step.ExecutionID,
				step.StepNumber,
				step.Name,
				step.RequiredRole,
				step.AssignedUserID,
				step.CanDelegate,
				conditionJSON,
				step.Status,
			).Scan(&step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create step execution")
			}
		}

		timeoutQuery := `
			INSERT INTO workflow_step_timeouts
			    (id, execution_id, step_execution_id, step_number, escalation_role, due_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`
		for _, to := range timeouts {
			if to.ID == "" {
				to.ID = uuid.New().String()
			}
			to.ExecutionID = exec.ID
			err := tx.QueryRow(ctx, timeoutQuery,
				to.ID,
				to.ExecutionID,
				to.StepExecutionID,
				to.StepNumber,
				to.EscalationRole,
				to.DueAt,
			).Scan(&to.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create step timeout")
			}
		}
		return nil
	})
}

// GetExecution retrieves an execution by id.
func (r *WorkflowExecutionRepository) GetExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	query := `
		SELECT id, template_id, entity_id, entity_type, status,
		       current_step_number, total_steps, started_by, started_at,
		       completed_at, created_at, updated_at
		FROM workflow_executions
		WHERE id = $1
	`
	exec := &WorkflowExecution{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&exec.ID,
		&exec.TemplateID,
		&exec.EntityID,
		&exec.EntityType,
		&exec.Status,
		&exec.CurrentStepNumber,
		&exec.TotalSteps,
		&exec.StartedBy,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_execution", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow execution")
	}
	return exec, nil
}

// GetStep returns the step execution at a step number.
func (r *WorkflowExecutionRepository) GetStep(ctx context.Context, executionID string, stepNumber int) (*StepExecution, error) {
	query := selectStepExecution + ` WHERE execution_id = $1 AND step_number = $2`
	step, err := scanStepExecution(r.db.QueryRow(ctx, query, executionID, stepNumber))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("step_execution", executionID)
	}
	return step, err
}

// GetSteps returns all step executions for an execution ordered by number.
func (r *WorkflowExecutionRepository) GetSteps(ctx context.Context, executionID string) ([]*StepExecution, error) {
	query := selectStepExecution + ` WHERE execution_id = $1 ORDER BY step_number ASC`
	rows, err := r.db.Query(ctx, query, executionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get step executions")
	}
	defer rows.Close()

	var steps []*StepExecution
	for rows.Next() {
		step, err := scanStepExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan step execution")
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// UpdateStepStatus records the outcome of a step action. The update only
// applies while the step is still awaiting action (pending, delegated or
// escalated), so concurrent actors cannot both claim the same step.
func (r *WorkflowExecutionRepository) UpdateStepStatus(ctx context.Context, stepID, status, actedBy string, comments *string) error {
	query := `
		UPDATE workflow_step_executions
		SET status     = $2,
		    acted_by   = $3,
		    acted_at   = NOW(),
		    comments   = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'delegated', 'escalated')
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, stepID, status, actedBy, comments).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeInvalidState, "step is not pending")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update step execution")
	}
	return nil
}

// ReassignStep moves a pending step to another user (delegation or
// escalation) and stamps the new status.
func (r *WorkflowExecutionRepository) ReassignStep(ctx context.Context, stepID, newAssignee, status string) error {
	query := `
		UPDATE workflow_step_executions
		SET assigned_user_id = $2,
		    delegated_to     = $2,
		    status           = $3,
		    updated_at       = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, stepID, newAssignee, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeInvalidState, "step is not pending")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to reassign step")
	}
	return nil
}

// AdvanceExecution moves the execution pointer to the next step.
func (r *WorkflowExecutionRepository) AdvanceExecution(ctx context.Context, id string, nextStep int) error {
	query := `
		UPDATE workflow_executions
		SET current_step_number = $2,
		    status              = 'in_progress',
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, id, nextStep).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_execution", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to advance execution")
	}
	return nil
}

// CompleteExecution sets a terminal execution status.
func (r *WorkflowExecutionRepository) CompleteExecution(ctx context.Context, id, status string, completedAt time.Time) error {
	query := `
		UPDATE workflow_executions
		SET status       = $2,
		    completed_at = $3,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, completedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_execution", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to complete execution")
	}
	return nil
}

// DueTimeouts returns unprocessed timeout rows whose due time has passed.
func (r *WorkflowExecutionRepository) DueTimeouts(ctx context.Context, now time.Time) ([]*StepTimeout, error) {
	query := `
		SELECT id, execution_id, step_execution_id, step_number,
		       escalation_role, due_at, processed, processed_at, created_at
		FROM workflow_step_timeouts
		WHERE processed = FALSE AND due_at <= $1
		ORDER BY due_at ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list due timeouts")
	}
	defer rows.Close()

	var timeouts []*StepTimeout
	for rows.Next() {
		to := &StepTimeout{}
		if err := rows.Scan(
			&to.ID,
			&to.ExecutionID,
			&to.StepExecutionID,
			&to.StepNumber,
			&to.EscalationRole,
			&to.DueAt,
			&to.Processed,
			&to.ProcessedAt,
			&to.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan step timeout")
		}
		timeouts = append(timeouts, to)
	}
	return timeouts, nil
}

// ClaimTimeout marks a timeout row processed via compare-and-set. Returns
// false when another sweep already claimed it.
func (r *WorkflowExecutionRepository) ClaimTimeout(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE workflow_step_timeouts
		SET processed = TRUE, processed_at = NOW()
		WHERE id = $1 AND processed = FALSE
		RETURNING id
	`
	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to claim step timeout")
	}
	return true, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectStepExecution = `
	SELECT id, execution_id, step_number, name, required_role,
	       assigned_user_id, can_delegate, condition, status, acted_by, acted_at,
	       comments, delegated_to, created_at, updated_at
	FROM workflow_step_executions`

type stepExecutionScanner interface {
	Scan(dest ...any) error
}

func scanStepExecution(row stepExecutionScanner) (*StepExecution, error) {
	s := &StepExecution{}
	var conditionJSON []byte
	err := row.Scan(
		&s.ID,
		&s.ExecutionID,
		&s.StepNumber,
		&s.Name,
		&s.RequiredRole,
		&s.AssignedUserID,
		&s.CanDelegate,
		&conditionJSON,
		&s.Status,
		&s.ActedBy,
		&s.ActedAt,
		&s.Comments,
		&s.DelegatedTo,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(conditionJSON) > 0 {
		cond := &StepCondition{}
		if err := json.Unmarshal(conditionJSON, cond); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal step condition")
		}
		s.Condition = cond
	}
	return s, nil
}

func marshalCondition(cond *StepCondition) ([]byte, error) {
	if cond == nil {
		return nil, nil
	}
	data, err := json.Marshal(cond)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal step condition")
	}
	return data, nil
}
