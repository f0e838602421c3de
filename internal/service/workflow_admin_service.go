package service

import (
	"context"

	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// WorkflowTemplateStore is the persistence surface for template
// administration.
type WorkflowTemplateStore interface {
	Create(ctx context.Context, tpl *repository.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*repository.WorkflowTemplate, error)
	GetActiveByModule(ctx context.Context, module string) (*repository.WorkflowTemplate, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// WorkflowAdminService manages admin-authored workflow templates and runs
// executions through the generic engine.
type WorkflowAdminService struct {
	templates  WorkflowTemplateStore
	executions *repository.WorkflowExecutionRepository
	validator  *workflow.Validator
	engine     *workflow.Engine
	log        *logger.Logger
}

// NewWorkflowAdminService wires the template administration service.
func NewWorkflowAdminService(
	templates WorkflowTemplateStore,
	executions *repository.WorkflowExecutionRepository,
	validator *workflow.Validator,
	engine *workflow.Engine,
	log *logger.Logger,
) *WorkflowAdminService {
	return &WorkflowAdminService{
		templates:  templates,
		executions: executions,
		validator:  validator,
		engine:     engine,
		log:        log,
	}
}

// ValidateTemplate dry-runs validation without persisting anything, so the
// admin UI can surface structural problems while the template is drafted.
func (s *WorkflowAdminService) ValidateTemplate(ctx context.Context, tpl *repository.WorkflowTemplate) (*workflow.ValidationResult, error) {
	return s.validator.Validate(ctx, tpl)
}

// SaveTemplate validates and persists a template. Templates with validation
// errors are never stored; warnings are returned alongside the saved
// template for the admin to review.
func (s *WorkflowAdminService) SaveTemplate(ctx context.Context, tpl *repository.WorkflowTemplate) (*workflow.ValidationResult, error) {
	result, err := s.validator.Validate(ctx, tpl)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return result, errors.New(errors.ErrCodeValidation, "workflow template failed validation")
	}

	if err := s.templates.Create(ctx, tpl); err != nil {
		return result, err
	}
	s.log.Info().
		Str("template_id", tpl.ID).
		Str("module", tpl.Module).
		Int("steps", len(tpl.Steps)).
		Msg("Workflow template saved")
	return result, nil
}

// GetTemplate returns one template.
func (s *WorkflowAdminService) GetTemplate(ctx context.Context, id string) (*repository.WorkflowTemplate, error) {
	return s.templates.GetByID(ctx, id)
}

// ActivateTemplate makes a template the active one for its module,
// revalidating it first: role membership may have changed since it was
// saved. Any previously active template for the module is deactivated.
func (s *WorkflowAdminService) ActivateTemplate(ctx context.Context, id string) (*workflow.ValidationResult, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.validator.Validate(ctx, tpl)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return result, errors.New(errors.ErrCodeValidation, "workflow template no longer passes validation")
	}

	if current, err := s.templates.GetActiveByModule(ctx, tpl.Module); err != nil {
		return nil, err
	} else if current != nil && current.ID != tpl.ID {
		if err := s.templates.SetActive(ctx, current.ID, false); err != nil {
			return nil, err
		}
	}
	if err := s.templates.SetActive(ctx, id, true); err != nil {
		return nil, err
	}

	s.log.Info().Str("template_id", id).Str("module", tpl.Module).Msg("Workflow template activated")
	return result, nil
}

// StartExecution binds the module's active template to an entity and starts
// a run.
func (s *WorkflowAdminService) StartExecution(ctx context.Context, module, entityID, entityType, startedBy string) (*repository.WorkflowExecution, error) {
	tpl, err := s.templates.GetActiveByModule(ctx, module)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.Newf(errors.ErrCodeNotFound, "no active workflow template for module %q", module)
	}
	return s.engine.Start(ctx, tpl, entityID, entityType, startedBy)
}

// GetExecution returns an execution with its step states.
func (s *WorkflowAdminService) GetExecution(ctx context.Context, id string) (*repository.WorkflowExecution, []*repository.StepExecution, error) {
	exec, err := s.executions.GetExecution(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.executions.GetSteps(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return exec, steps, nil
}

// ApproveStep approves the current step of an execution.
func (s *WorkflowAdminService) ApproveStep(ctx context.Context, executionID string, stepNumber int, actedBy string, comments *string) (bool, error) {
	return s.engine.ApproveStep(ctx, executionID, stepNumber, actedBy, comments)
}

// RejectStep rejects the current step, terminating the execution.
func (s *WorkflowAdminService) RejectStep(ctx context.Context, executionID string, stepNumber int, actedBy, reason string) error {
	return s.engine.RejectStep(ctx, executionID, stepNumber, actedBy, reason)
}

// DelegateStep reassigns the current step to another user.
func (s *WorkflowAdminService) DelegateStep(ctx context.Context, executionID string, stepNumber int, delegatedBy, delegatedTo, reason string) error {
	return s.engine.DelegateStep(ctx, executionID, stepNumber, delegatedBy, delegatedTo, reason)
}
