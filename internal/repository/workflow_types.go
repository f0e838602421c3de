package repository

import "time"

// ── Generic configurable workflow types ──────────────────────────────────────

// Condition types.
const (
	ConditionAlways        = "always"
	ConditionDependsOnStep = "depends_on_step"
)

// StepCondition is a structured step precondition. Either the step always
// runs, or it runs only when an earlier step finished with a given outcome.
type StepCondition struct {
	Type    string `json:"type"` // always | depends_on_step
	Step    int    `json:"step,omitempty"`
	Outcome string `json:"outcome,omitempty"` // approved | rejected
}

// WorkflowStep is one admin-authored step definition inside a template.
// Exactly one of RequiredRole / AssignedUserID should be set; when both are
// present the user takes precedence.
type WorkflowStep struct {
	StepNumber     int            `json:"step_number"` // 1-based, contiguous
	Name           string         `json:"name"`
	RequiredRole   *string        `json:"required_role,omitempty"`
	AssignedUserID *string        `json:"assigned_user_id,omitempty"`
	IsMandatory    bool           `json:"is_mandatory"`
	CanDelegate    bool           `json:"can_delegate"`
	TimeoutDays    *int           `json:"timeout_days,omitempty"`
	EscalationRole *string        `json:"escalation_role,omitempty"`
	Condition      *StepCondition `json:"condition,omitempty"`
}

// WorkflowTemplate is an admin-authored workflow definition for the generic
// configurable engine. Saved only after validation passes with no errors.
type WorkflowTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Module      string         `json:"module"` // entity type
	Steps       []WorkflowStep `json:"steps"`
	IsActive    bool           `json:"is_active"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Execution and step-execution statuses. Unlike the per-entity workflow,
// the generic engine persists every step's state explicitly.
const (
	ExecutionInProgress = "in_progress"
	ExecutionCompleted  = "completed"
	ExecutionRejected   = "rejected"
	ExecutionCancelled  = "cancelled"

	StepPending   = "pending"
	StepApproved  = "approved"
	StepRejected  = "rejected"
	StepDelegated = "delegated"
	StepEscalated = "escalated"
	StepTimedOut  = "timeout"
	StepSkipped   = "skipped"
)

// WorkflowExecution is a running instance of a WorkflowTemplate bound to one
// request entity.
type WorkflowExecution struct {
	ID                string     `json:"id"`
	TemplateID        string     `json:"template_id"`
	EntityID          string     `json:"entity_id"`
	EntityType        string     `json:"entity_type"`
	Status            string     `json:"status"`
	CurrentStepNumber int        `json:"current_step_number"`
	TotalSteps        int        `json:"total_steps"`
	StartedBy         string     `json:"started_by"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StepExecution is the persisted state of one step within an execution.
type StepExecution struct {
	ID             string         `json:"id"`
	ExecutionID    string         `json:"execution_id"`
	StepNumber     int            `json:"step_number"`
	Name           string         `json:"name"`
	RequiredRole   *string        `json:"required_role,omitempty"`
	AssignedUserID *string        `json:"assigned_user_id,omitempty"`
	CanDelegate    bool           `json:"can_delegate"`
	Condition      *StepCondition `json:"condition,omitempty"`
	Status         string         `json:"status"`
	ActedBy        *string        `json:"acted_by,omitempty"`
	ActedAt        *time.Time     `json:"acted_at,omitempty"`
	Comments       *string        `json:"comments,omitempty"`
	DelegatedTo    *string        `json:"delegated_to,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StepTimeout schedules the escalation sweep for one pending step. Processed
// is flipped exactly once via compare-and-set so overlapping sweeps cannot
// double-fire.
type StepTimeout struct {
	ID              string
	ExecutionID     string
	StepExecutionID string
	StepNumber      int
	EscalationRole  *string
	DueAt           time.Time
	Processed       bool
	ProcessedAt     *time.Time
	CreatedAt       time.Time
}
