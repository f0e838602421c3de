package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// ExecutionStore is the persistence surface of the generic engine.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *repository.WorkflowExecution, steps []*repository.StepExecution, timeouts []*repository.StepTimeout) error
	GetExecution(ctx context.Context, id string) (*repository.WorkflowExecution, error)
	GetStep(ctx context.Context, executionID string, stepNumber int) (*repository.StepExecution, error)
	GetSteps(ctx context.Context, executionID string) ([]*repository.StepExecution, error)
	UpdateStepStatus(ctx context.Context, stepID, status, actedBy string, comments *string) error
	ReassignStep(ctx context.Context, stepID, newAssignee, status string) error
	AdvanceExecution(ctx context.Context, id string, nextStep int) error
	CompleteExecution(ctx context.Context, id, status string, completedAt time.Time) error
}

// EngineDirectory resolves role membership for step pre-assignment.
type EngineDirectory interface {
	FindActiveUsersWithRole(ctx context.Context, role string) ([]*repository.DirectoryUser, error)
}

// Engine runs admin-authored workflow templates. Unlike the fixed per-entity
// machine it persists every step's state explicitly as StepExecution rows.
type Engine struct {
	store     ExecutionStore
	directory EngineDirectory
	log       *logger.Logger
}

// NewEngine creates a generic workflow engine.
func NewEngine(store ExecutionStore, directory EngineDirectory, log *logger.Logger) *Engine {
	return &Engine{store: store, directory: directory, log: log}
}

// Start instantiates a validated template against one request entity. Every
// step row is created up front in pending state; steps with a timeout get a
// timeout schedule row for the escalation sweep.
func (e *Engine) Start(ctx context.Context, tpl *repository.WorkflowTemplate, entityID, entityType, startedBy string) (*repository.WorkflowExecution, error) {
	exec := &repository.WorkflowExecution{
		TemplateID:        tpl.ID,
		EntityID:          entityID,
		EntityType:        entityType,
		Status:            repository.ExecutionInProgress,
		CurrentStepNumber: 1,
		TotalSteps:        len(tpl.Steps),
		StartedBy:         startedBy,
	}

	now := time.Now().UTC()
	steps := make([]*repository.StepExecution, 0, len(tpl.Steps))
	var timeouts []*repository.StepTimeout
	for _, def := range tpl.Steps {
		step := &repository.StepExecution{
			ID:             uuid.New().String(),
			StepNumber:     def.StepNumber,
			Name:           def.Name,
			RequiredRole:   def.RequiredRole,
			AssignedUserID: def.AssignedUserID,
			CanDelegate:    def.CanDelegate,
			Condition:      def.Condition,
			Status:         repository.StepPending,
		}
		// A role-sourced step is pre-assigned to the first active role
		// holder when one exists; unassigned steps can be acted on by any
		// holder of the role.
		if step.AssignedUserID == nil && def.RequiredRole != nil {
			users, err := e.directory.FindActiveUsersWithRole(ctx, *def.RequiredRole)
			if err != nil {
				e.log.Warn().Err(err).Str("role", *def.RequiredRole).
					Msg("Could not fetch role holders; step will be unassigned")
			} else if len(users) > 0 {
				step.AssignedUserID = &users[0].ID
			}
		}
		steps = append(steps, step)

		if def.TimeoutDays != nil && *def.TimeoutDays > 0 {
			timeouts = append(timeouts, &repository.StepTimeout{
				StepNumber:     def.StepNumber,
				EscalationRole: def.EscalationRole,
				DueAt:          now.AddDate(0, 0, *def.TimeoutDays),
			})
		}
	}

	if err := e.store.CreateExecution(ctx, exec, steps, bindTimeouts(steps, timeouts)); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("execution_id", exec.ID).
		Str("template_id", tpl.ID).
		Str("entity_id", entityID).
		Int("total_steps", exec.TotalSteps).
		Msg("Workflow execution started")
	return exec, nil
}

// ApproveStep records approval on the current step and advances the
// execution. Returns true when the execution completed.
func (e *Engine) ApproveStep(ctx context.Context, executionID string, stepNumber int, actedBy string, comments *string) (bool, error) {
	exec, step, err := e.loadActionable(ctx, executionID, stepNumber)
	if err != nil {
		return false, err
	}
	if err := e.assertCanAct(ctx, step, actedBy); err != nil {
		return false, err
	}
	if err := e.store.UpdateStepStatus(ctx, step.ID, repository.StepApproved, actedBy, comments); err != nil {
		return false, err
	}
	return e.advance(ctx, exec, stepNumber)
}

// RejectStep records rejection and terminates the execution.
func (e *Engine) RejectStep(ctx context.Context, executionID string, stepNumber int, actedBy, reason string) error {
	if reason == "" {
		return errors.InvalidInput("reason", "rejection reason is required")
	}
	exec, step, err := e.loadActionable(ctx, executionID, stepNumber)
	if err != nil {
		return err
	}
	if err := e.assertCanAct(ctx, step, actedBy); err != nil {
		return err
	}
	if err := e.store.UpdateStepStatus(ctx, step.ID, repository.StepRejected, actedBy, &reason); err != nil {
		return err
	}
	return e.store.CompleteExecution(ctx, exec.ID, repository.ExecutionRejected, time.Now().UTC())
}

// DelegateStep hands the current step to another user. The step definition
// must allow delegation.
func (e *Engine) DelegateStep(ctx context.Context, executionID string, stepNumber int, delegatedBy, delegatedTo, reason string) error {
	if reason == "" {
		return errors.InvalidInput("reason", "delegation reason is required")
	}
	_, step, err := e.loadActionable(ctx, executionID, stepNumber)
	if err != nil {
		return err
	}
	if !step.CanDelegate {
		return errors.Newf(errors.ErrCodeConflict, "step %d does not allow delegation", stepNumber)
	}
	if err := e.assertCanAct(ctx, step, delegatedBy); err != nil {
		return err
	}
	return e.store.ReassignStep(ctx, step.ID, delegatedTo, repository.StepDelegated)
}

// AutoApproveStep approves a timed-out step on behalf of the system, then
// runs the normal approval-advance logic. Used only by the escalation sweep.
func (e *Engine) AutoApproveStep(ctx context.Context, executionID string, stepNumber int) (bool, error) {
	exec, step, err := e.loadActionable(ctx, executionID, stepNumber)
	if err != nil {
		return false, err
	}
	comment := "Approved due to timeout"
	if err := e.store.UpdateStepStatus(ctx, step.ID, repository.StepApproved, "system", &comment); err != nil {
		return false, err
	}
	return e.advance(ctx, exec, stepNumber)
}

// EscalateStep reassigns a stalled step to a holder of the escalation role
// and marks it escalated. Used only by the escalation sweep.
func (e *Engine) EscalateStep(ctx context.Context, executionID string, stepNumber int, escalationRole string) error {
	_, step, err := e.loadActionable(ctx, executionID, stepNumber)
	if err != nil {
		return err
	}
	users, err := e.directory.FindActiveUsersWithRole(ctx, escalationRole)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return errors.Newf(errors.ErrCodeConflict, "escalation role %q has no active members", escalationRole)
	}
	return e.store.ReassignStep(ctx, step.ID, users[0].ID, repository.StepEscalated)
}

// advance moves past an acted step: the next runnable step becomes current,
// unrunnable conditional steps are skipped, and an empty remainder completes
// the execution.
func (e *Engine) advance(ctx context.Context, exec *repository.WorkflowExecution, actedStep int) (bool, error) {
	if actedStep >= exec.TotalSteps {
		return true, e.complete(ctx, exec)
	}

	steps, err := e.store.GetSteps(ctx, exec.ID)
	if err != nil {
		return false, err
	}
	outcomes := make(map[int]string, len(steps))
	for _, s := range steps {
		outcomes[s.StepNumber] = s.Status
	}

	for next := actedStep + 1; next <= exec.TotalSteps; next++ {
		step := stepAt(steps, next)
		if step == nil {
			return false, errors.Newf(errors.ErrCodeInternal, "execution %s is missing step %d", exec.ID, next)
		}
		if conditionSatisfied(step.Condition, outcomes) {
			return false, e.store.AdvanceExecution(ctx, exec.ID, next)
		}
		comment := "Skipped: condition not met"
		if err := e.store.UpdateStepStatus(ctx, step.ID, repository.StepSkipped, "system", &comment); err != nil {
			return false, err
		}
		outcomes[next] = repository.StepSkipped
	}
	return true, e.complete(ctx, exec)
}

func (e *Engine) complete(ctx context.Context, exec *repository.WorkflowExecution) error {
	if err := e.store.CompleteExecution(ctx, exec.ID, repository.ExecutionCompleted, time.Now().UTC()); err != nil {
		return err
	}
	e.log.Info().Str("execution_id", exec.ID).Str("entity_id", exec.EntityID).
		Msg("Workflow execution completed")
	return nil
}

func (e *Engine) loadActionable(ctx context.Context, executionID string, stepNumber int) (*repository.WorkflowExecution, *repository.StepExecution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	if exec.Status != repository.ExecutionInProgress {
		return nil, nil, errors.Newf(errors.ErrCodeInvalidState,
			"execution is not in progress (status: %s)", exec.Status)
	}
	if stepNumber != exec.CurrentStepNumber {
		return nil, nil, errors.Newf(errors.ErrCodeConflict,
			"step %d is not the current step (current: %d)", stepNumber, exec.CurrentStepNumber)
	}
	step, err := e.store.GetStep(ctx, executionID, stepNumber)
	if err != nil {
		return nil, nil, err
	}
	switch step.Status {
	case repository.StepPending, repository.StepDelegated, repository.StepEscalated:
		return exec, step, nil
	}
	return nil, nil, errors.Newf(errors.ErrCodeInvalidState,
		"step %d is not awaiting action (status: %s)", stepNumber, step.Status)
}

// assertCanAct checks the actor is the assigned or delegated approver. A
// role-sourced step left unassigned because its role had no active holders
// at start time falls back to a live role-membership check.
func (e *Engine) assertCanAct(ctx context.Context, step *repository.StepExecution, userID string) error {
	if step.AssignedUserID != nil && *step.AssignedUserID == userID {
		return nil
	}
	if step.DelegatedTo != nil && *step.DelegatedTo == userID {
		return nil
	}
	if step.AssignedUserID == nil && step.DelegatedTo == nil && step.RequiredRole != nil {
		users, err := e.directory.FindActiveUsersWithRole(ctx, *step.RequiredRole)
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.ID == userID {
				return nil
			}
		}
	}
	return errors.New(errors.ErrCodeUnauthorized, "user is not authorized to act on this approval step")
}

// conditionSatisfied evaluates a structured step condition against the
// recorded outcomes of earlier steps.
func conditionSatisfied(cond *repository.StepCondition, outcomes map[int]string) bool {
	if cond == nil || cond.Type == repository.ConditionAlways {
		return true
	}
	return outcomes[cond.Step] == cond.Outcome
}

func stepAt(steps []*repository.StepExecution, number int) *repository.StepExecution {
	for _, s := range steps {
		if s.StepNumber == number {
			return s
		}
	}
	return nil
}

func bindTimeouts(steps []*repository.StepExecution, timeouts []*repository.StepTimeout) []*repository.StepTimeout {
	byNumber := make(map[int]*repository.StepExecution, len(steps))
	for _, s := range steps {
		byNumber[s.StepNumber] = s
	}
	for _, to := range timeouts {
		if s, ok := byNumber[to.StepNumber]; ok {
			to.StepExecutionID = s.ID
		}
	}
	return timeouts
}
