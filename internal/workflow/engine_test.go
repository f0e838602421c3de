package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// fakeExecutionStore is an in-memory execution store mirroring the SQL
// implementation's compare-and-set behavior. It also serves the escalation
// sweep.
type fakeExecutionStore struct {
	execution *repository.WorkflowExecution
	steps     []*repository.StepExecution
	timeouts  []*repository.StepTimeout
}

func (f *fakeExecutionStore) CreateExecution(_ context.Context, exec *repository.WorkflowExecution, steps []*repository.StepExecution, timeouts []*repository.StepTimeout) error {
	exec.ID = "exec-1"
	for _, s := range steps {
		s.ExecutionID = exec.ID
	}
	for i, to := range timeouts {
		to.ID = fmt.Sprintf("to-%d", i+1)
		to.ExecutionID = exec.ID
	}
	f.execution = exec
	f.steps = steps
	f.timeouts = timeouts
	return nil
}

func (f *fakeExecutionStore) GetExecution(_ context.Context, id string) (*repository.WorkflowExecution, error) {
	if f.execution == nil || f.execution.ID != id {
		return nil, apperrors.NotFound("workflow execution", id)
	}
	copy := *f.execution
	return &copy, nil
}

func (f *fakeExecutionStore) GetStep(_ context.Context, executionID string, stepNumber int) (*repository.StepExecution, error) {
	for _, s := range f.steps {
		if s.ExecutionID == executionID && s.StepNumber == stepNumber {
			copy := *s
			return &copy, nil
		}
	}
	return nil, apperrors.NotFound("step execution", executionID)
}

func (f *fakeExecutionStore) GetSteps(_ context.Context, executionID string) ([]*repository.StepExecution, error) {
	out := make([]*repository.StepExecution, 0, len(f.steps))
	for _, s := range f.steps {
		if s.ExecutionID == executionID {
			copy := *s
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeExecutionStore) UpdateStepStatus(_ context.Context, stepID, status, actedBy string, comments *string) error {
	for _, s := range f.steps {
		if s.ID != stepID {
			continue
		}
		switch s.Status {
		case repository.StepPending, repository.StepDelegated, repository.StepEscalated:
		default:
			return apperrors.Newf(apperrors.ErrCodeInvalidState,
				"step %s is not awaiting action", stepID)
		}
		now := time.Now()
		s.Status = status
		s.ActedBy = &actedBy
		s.ActedAt = &now
		s.Comments = comments
		return nil
	}
	return apperrors.NotFound("step execution", stepID)
}

func (f *fakeExecutionStore) ReassignStep(_ context.Context, stepID, newAssignee, status string) error {
	for _, s := range f.steps {
		if s.ID == stepID {
			s.AssignedUserID = &newAssignee
			s.DelegatedTo = &newAssignee
			s.Status = status
			return nil
		}
	}
	return apperrors.NotFound("step execution", stepID)
}

func (f *fakeExecutionStore) AdvanceExecution(_ context.Context, id string, nextStep int) error {
	f.execution.CurrentStepNumber = nextStep
	return nil
}

func (f *fakeExecutionStore) CompleteExecution(_ context.Context, id, status string, completedAt time.Time) error {
	f.execution.Status = status
	f.execution.CompletedAt = &completedAt
	return nil
}

func (f *fakeExecutionStore) DueTimeouts(_ context.Context, now time.Time) ([]*repository.StepTimeout, error) {
	var due []*repository.StepTimeout
	for _, to := range f.timeouts {
		if !to.Processed && !to.DueAt.After(now) {
			due = append(due, to)
		}
	}
	return due, nil
}

func (f *fakeExecutionStore) ClaimTimeout(_ context.Context, id string) (bool, error) {
	for _, to := range f.timeouts {
		if to.ID == id && !to.Processed {
			to.Processed = true
			return true, nil
		}
	}
	return false, nil
}

// fakeRoleDirectory resolves role holders for pre-assignment and escalation.
type fakeRoleDirectory struct {
	byRole map[string][]*repository.DirectoryUser
}

func (f *fakeRoleDirectory) FindActiveUsersWithRole(_ context.Context, role string) ([]*repository.DirectoryUser, error) {
	return f.byRole[role], nil
}

func engineFixture() (*Engine, *fakeExecutionStore, *fakeRoleDirectory) {
	store := &fakeExecutionStore{}
	directory := &fakeRoleDirectory{byRole: map[string][]*repository.DirectoryUser{
		"Line Manager": {{ID: "mgr-1", Name: "Lena Novak", IsActive: true}},
		"HOD":          {{ID: "hod-1", Name: "Ravi Iyer", IsActive: true}},
	}}
	return NewEngine(store, directory, logger.Nop()), store, directory
}

func threeStepTemplate() *repository.WorkflowTemplate {
	return &repository.WorkflowTemplate{
		ID:     "tpl-1",
		Name:   "Claims review",
		Module: repository.EntityExpenseClaim,
		Steps: []repository.WorkflowStep{
			{StepNumber: 1, Name: "Manager review", RequiredRole: strPtr("Line Manager"), CanDelegate: true},
			{StepNumber: 2, Name: "HOD review", RequiredRole: strPtr("HOD"), TimeoutDays: intPtr(2), EscalationRole: strPtr("Line Manager")},
			{StepNumber: 3, Name: "Final", AssignedUserID: strPtr("fin-1")},
		},
	}
}

func TestEngineStartPreAssignsAndSchedulesTimeouts(t *testing.T) {
	engine, store, _ := engineFixture()

	exec, err := engine.Start(context.Background(), threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, repository.ExecutionInProgress, exec.Status)
	assert.Equal(t, 1, exec.CurrentStepNumber)
	assert.Equal(t, 3, exec.TotalSteps)

	require.Len(t, store.steps, 3)
	require.NotNil(t, store.steps[0].AssignedUserID)
	assert.Equal(t, "mgr-1", *store.steps[0].AssignedUserID, "role step pre-assigned to first active holder")
	require.NotNil(t, store.steps[2].AssignedUserID)
	assert.Equal(t, "fin-1", *store.steps[2].AssignedUserID)

	require.Len(t, store.timeouts, 1)
	assert.Equal(t, 2, store.timeouts[0].StepNumber)
	assert.Equal(t, store.steps[1].ID, store.timeouts[0].StepExecutionID)
}

func TestEngineApproveAdvancesThenCompletes(t *testing.T) {
	engine, store, _ := engineFixture()
	ctx := context.Background()

	_, err := engine.Start(ctx, threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)

	completed, err := engine.ApproveStep(ctx, "exec-1", 1, "mgr-1", nil)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, 2, store.execution.CurrentStepNumber)

	completed, err = engine.ApproveStep(ctx, "exec-1", 2, "hod-1", nil)
	require.NoError(t, err)
	assert.False(t, completed)

	completed, err = engine.ApproveStep(ctx, "exec-1", 3, "fin-1", nil)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, repository.ExecutionCompleted, store.execution.Status)
	require.NotNil(t, store.execution.CompletedAt)
}

func TestEngineApproveWrongActorOrStepFails(t *testing.T) {
	engine, _, _ := engineFixture()
	ctx := context.Background()

	_, err := engine.Start(ctx, threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)

	_, err = engine.ApproveStep(ctx, "exec-1", 2, "hod-1", nil)
	require.Error(t, err, "step 2 is not current yet")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))

	_, err = engine.ApproveStep(ctx, "exec-1", 1, "intruder", nil)
	require.Error(t, err, "step 1 is assigned to mgr-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))
}

func TestEngineUnassignedRoleStepRequiresRoleMembership(t *testing.T) {
	engine, store, directory := engineFixture()
	ctx := context.Background()

	tpl := &repository.WorkflowTemplate{
		ID:     "tpl-2",
		Name:   "Controller review",
		Module: repository.EntityExpenseClaim,
		Steps: []repository.WorkflowStep{
			{StepNumber: 1, Name: "Controller review", RequiredRole: strPtr("Finance Controller")},
		},
	}

	// No active Finance Controller exists at start, so the step stays
	// unassigned.
	_, err := engine.Start(ctx, tpl, "CLAIMS-2026-000002", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)
	assert.Nil(t, store.steps[0].AssignedUserID)

	_, err = engine.ApproveStep(ctx, "exec-1", 1, "total-stranger", nil)
	require.Error(t, err, "an unassigned step is still gated on role membership")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))

	// A controller who became active after the execution started can pick
	// the step up.
	directory.byRole["Finance Controller"] = []*repository.DirectoryUser{
		{ID: "ctrl-1", Name: "Dana Cole", IsActive: true},
	}
	completed, err := engine.ApproveStep(ctx, "exec-1", 1, "ctrl-1", nil)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestEngineRejectTerminatesExecution(t *testing.T) {
	engine, store, _ := engineFixture()
	ctx := context.Background()

	_, err := engine.Start(ctx, threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)

	err = engine.RejectStep(ctx, "exec-1", 1, "mgr-1", "")
	require.Error(t, err, "reason is mandatory")

	err = engine.RejectStep(ctx, "exec-1", 1, "mgr-1", "not in budget")
	require.NoError(t, err)
	assert.Equal(t, repository.ExecutionRejected, store.execution.Status)

	_, err = engine.ApproveStep(ctx, "exec-1", 1, "mgr-1", nil)
	require.Error(t, err, "terminated execution admits no action")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))
}

func TestEngineDelegateHandsStepOver(t *testing.T) {
	engine, store, _ := engineFixture()
	ctx := context.Background()

	_, err := engine.Start(ctx, threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)

	err = engine.DelegateStep(ctx, "exec-1", 1, "mgr-1", "mgr-2", "on leave")
	require.NoError(t, err)
	assert.Equal(t, repository.StepDelegated, store.steps[0].Status)

	// The delegate can act; the original assignee no longer matches.
	completed, err := engine.ApproveStep(ctx, "exec-1", 1, "mgr-2", nil)
	require.NoError(t, err)
	assert.False(t, completed)
}

func TestEngineSkipsStepWithUnmetCondition(t *testing.T) {
	engine, store, _ := engineFixture()
	ctx := context.Background()

	tpl := threeStepTemplate()
	// Step 2 only runs when step 1 was rejected, which never happens on the
	// approve path.
	tpl.Steps[1].Condition = &repository.StepCondition{
		Type: repository.ConditionDependsOnStep, Step: 1, Outcome: repository.StepRejected,
	}

	_, err := engine.Start(ctx, tpl, "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
	require.NoError(t, err)

	completed, err := engine.ApproveStep(ctx, "exec-1", 1, "mgr-1", nil)
	require.NoError(t, err)
	assert.False(t, completed)

	assert.Equal(t, repository.StepSkipped, store.steps[1].Status)
	assert.Equal(t, 3, store.execution.CurrentStepNumber, "execution jumped over the skipped step")
}

func TestEscalatorSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("escalates to the escalation role", func(t *testing.T) {
		engine, store, _ := engineFixture()
		_, err := engine.Start(ctx, threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
		require.NoError(t, err)

		// Move to step 2, then force its timeout due.
		_, err = engine.ApproveStep(ctx, "exec-1", 1, "mgr-1", nil)
		require.NoError(t, err)
		store.timeouts[0].DueAt = time.Now().Add(-time.Hour)

		escalator := NewEscalator(store, engine, logger.Nop())
		escalator.Sweep(ctx)

		assert.Equal(t, repository.StepEscalated, store.steps[1].Status)
		require.NotNil(t, store.steps[1].AssignedUserID)
		assert.Equal(t, "mgr-1", *store.steps[1].AssignedUserID, "reassigned to first escalation-role holder")
		assert.True(t, store.timeouts[0].Processed)

		// A second sweep finds nothing claimable.
		escalator.Sweep(ctx)
		assert.Equal(t, repository.StepEscalated, store.steps[1].Status)
	})

	t.Run("auto-approves when no escalation role", func(t *testing.T) {
		engine, store, _ := engineFixture()
		tpl := threeStepTemplate()
		tpl.Steps[1].EscalationRole = nil

		_, err := engine.Start(ctx, tpl, "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
		require.NoError(t, err)
		_, err = engine.ApproveStep(ctx, "exec-1", 1, "mgr-1", nil)
		require.NoError(t, err)
		store.timeouts[0].DueAt = time.Now().Add(-time.Hour)

		NewEscalator(store, engine, logger.Nop()).Sweep(ctx)

		assert.Equal(t, repository.StepApproved, store.steps[1].Status)
		require.NotNil(t, store.steps[1].Comments)
		assert.Equal(t, "Approved due to timeout", *store.steps[1].Comments)
		assert.Equal(t, 3, store.execution.CurrentStepNumber)
	})

	t.Run("skips timeouts for steps already acted on", func(t *testing.T) {
		engine, store, _ := engineFixture()
		_, err := engine.Start(ctx, threeStepTemplate(), "CLAIMS-2026-000001", repository.EntityExpenseClaim, "admin-1")
		require.NoError(t, err)

		_, err = engine.ApproveStep(ctx, "exec-1", 1, "mgr-1", nil)
		require.NoError(t, err)
		_, err = engine.ApproveStep(ctx, "exec-1", 2, "hod-1", nil)
		require.NoError(t, err)
		store.timeouts[0].DueAt = time.Now().Add(-time.Hour)

		NewEscalator(store, engine, logger.Nop()).Sweep(ctx)

		assert.Equal(t, repository.StepApproved, store.steps[1].Status, "approved step untouched by the sweep")
		assert.True(t, store.timeouts[0].Processed, "stale timeout row is still consumed")
	})
}
