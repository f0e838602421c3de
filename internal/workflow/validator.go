package workflow

import (
	"context"
	"fmt"

	"github.com/stafflane/be-hr-requests/internal/repository"
)

// Validation issue codes. Errors block saving the definition; warnings do not.
const (
	IssueNameLength         = "name_length"
	IssueDescriptionLength  = "description_length"
	IssueUnknownModule      = "unknown_module"
	IssueStepCount          = "step_count"
	IssueSequenceGap        = "sequence_gap"
	IssueMissingApprover    = "missing_approver"
	IssueAmbiguousApprover  = "ambiguous_approver"
	IssueEscalationTimeout  = "escalation_without_timeout"
	IssueRoleNotFound       = "role_not_found"
	IssueUserNotFound       = "user_not_found"
	IssueEmptyRole          = "role_has_no_members"
	IssueDuplicateStepName  = "duplicate_step_name"
	IssueCircularDependency = "circular_dependency"
	IssueInvalidCondition   = "invalid_condition"
)

const (
	maxTemplateNameLen        = 100
	maxTemplateDescriptionLen = 500
	maxTemplateSteps          = 20
)

// Issue is one validation finding.
type Issue struct {
	Code       string `json:"code"`
	StepNumber int    `json:"step_number,omitempty"`
	Message    string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// OK reports whether the definition may be saved.
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(code string, step int, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, StepNumber: step, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(code string, step int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, StepNumber: step, Message: fmt.Sprintf(format, args...)})
}

// ValidatorDirectory is the directory surface the validator needs to check
// that referenced roles and users exist and are active.
type ValidatorDirectory interface {
	RoleExists(ctx context.Context, role string) (bool, error)
	CountActiveRoleMembers(ctx context.Context, role string) (int, error)
	GetUser(ctx context.Context, id string) (*repository.DirectoryUser, error)
}

// Validator checks admin-authored workflow templates before activation.
type Validator struct {
	directory ValidatorDirectory
}

// NewValidator creates a template validator.
func NewValidator(directory ValidatorDirectory) *Validator {
	return &Validator{directory: directory}
}

// Validate inspects a template and returns blocking errors and advisory
// warnings. A template with any error must not be persisted.
func (v *Validator) Validate(ctx context.Context, tpl *repository.WorkflowTemplate) (*ValidationResult, error) {
	result := &ValidationResult{}

	if len(tpl.Name) < 3 || len(tpl.Name) > maxTemplateNameLen {
		result.addError(IssueNameLength, 0, "name must be 3-%d characters", maxTemplateNameLen)
	}
	if len(tpl.Description) > maxTemplateDescriptionLen {
		result.addError(IssueDescriptionLength, 0, "description must be at most %d characters", maxTemplateDescriptionLen)
	}
	if !repository.IsEntityType(tpl.Module) {
		result.addError(IssueUnknownModule, 0, "module %q is not a supported entity type", tpl.Module)
	}
	if len(tpl.Steps) == 0 || len(tpl.Steps) > maxTemplateSteps {
		result.addError(IssueStepCount, 0, "template must contain 1-%d steps", maxTemplateSteps)
		return result, nil
	}

	v.checkSequence(tpl.Steps, result)
	v.checkStepNames(tpl.Steps, result)

	for _, step := range tpl.Steps {
		v.checkApproverSource(ctx, step, result)
		v.checkEscalation(step, result)
		v.checkCondition(step, result)
	}

	return result, nil
}

// checkSequence requires the step numbers to be exactly 1..N with no gaps
// and no duplicates.
func (v *Validator) checkSequence(steps []repository.WorkflowStep, result *ValidationResult) {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if seen[step.StepNumber] {
			result.addError(IssueSequenceGap, step.StepNumber, "duplicate step number %d", step.StepNumber)
		}
		seen[step.StepNumber] = true
	}
	for n := 1; n <= len(steps); n++ {
		if !seen[n] {
			result.addError(IssueSequenceGap, n, "step numbers must be contiguous; missing step %d", n)
		}
	}
}

func (v *Validator) checkStepNames(steps []repository.WorkflowStep, result *ValidationResult) {
	seen := make(map[string]int, len(steps))
	for _, step := range steps {
		if step.Name == "" {
			continue
		}
		if first, dup := seen[step.Name]; dup {
			result.addWarning(IssueDuplicateStepName, step.StepNumber,
				"step name %q already used by step %d", step.Name, first)
			continue
		}
		seen[step.Name] = step.StepNumber
	}
}

// checkApproverSource enforces role XOR user. Both present is a warning and
// the user takes precedence; neither is a blocking error.
func (v *Validator) checkApproverSource(ctx context.Context, step repository.WorkflowStep, result *ValidationResult) {
	hasRole := step.RequiredRole != nil && *step.RequiredRole != ""
	hasUser := step.AssignedUserID != nil && *step.AssignedUserID != ""

	switch {
	case !hasRole && !hasUser:
		result.addError(IssueMissingApprover, step.StepNumber,
			"step %d must specify a required role or an assigned user", step.StepNumber)
		return
	case hasRole && hasUser:
		result.addWarning(IssueAmbiguousApprover, step.StepNumber,
			"step %d specifies both a role and a user; the user takes precedence", step.StepNumber)
	}

	if hasUser {
		user, err := v.directory.GetUser(ctx, *step.AssignedUserID)
		if err != nil || !user.IsActive {
			result.addError(IssueUserNotFound, step.StepNumber,
				"step %d assigned user %q does not exist or is inactive", step.StepNumber, *step.AssignedUserID)
		}
		return
	}

	exists, err := v.directory.RoleExists(ctx, *step.RequiredRole)
	if err != nil || !exists {
		result.addError(IssueRoleNotFound, step.StepNumber,
			"step %d role %q does not exist or is inactive", step.StepNumber, *step.RequiredRole)
		return
	}
	members, err := v.directory.CountActiveRoleMembers(ctx, *step.RequiredRole)
	if err == nil && members == 0 {
		result.addWarning(IssueEmptyRole, step.StepNumber,
			"role %q has no active members; step %d would stall", *step.RequiredRole, step.StepNumber)
	}
}

// checkEscalation requires a positive timeout wherever an escalation role
// is configured.
func (v *Validator) checkEscalation(step repository.WorkflowStep, result *ValidationResult) {
	hasEscalation := step.EscalationRole != nil && *step.EscalationRole != ""
	if hasEscalation && (step.TimeoutDays == nil || *step.TimeoutDays <= 0) {
		result.addError(IssueEscalationTimeout, step.StepNumber,
			"step %d has an escalation role but no positive timeout", step.StepNumber)
	}
}

// checkCondition validates structured step conditions. A dependsOnStep
// reference must point at an earlier step; a self or forward reference is a
// circular dependency and blocks saving.
func (v *Validator) checkCondition(step repository.WorkflowStep, result *ValidationResult) {
	cond := step.Condition
	if cond == nil || cond.Type == repository.ConditionAlways {
		return
	}
	if cond.Type != repository.ConditionDependsOnStep {
		result.addError(IssueInvalidCondition, step.StepNumber,
			"step %d has unknown condition type %q", step.StepNumber, cond.Type)
		return
	}
	if cond.Step >= step.StepNumber {
		result.addError(IssueCircularDependency, step.StepNumber,
			"step %d condition references step %d, which does not run earlier", step.StepNumber, cond.Step)
	}
	if cond.Step < 1 {
		result.addError(IssueInvalidCondition, step.StepNumber,
			"step %d condition references invalid step %d", step.StepNumber, cond.Step)
	}
	if cond.Outcome != repository.StepApproved && cond.Outcome != repository.StepRejected {
		result.addError(IssueInvalidCondition, step.StepNumber,
			"step %d condition outcome must be approved or rejected", step.StepNumber)
	}
}
