package workflow

import (
	"context"
	"time"

	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// TimeoutStore is the slice of the execution store the sweep needs.
type TimeoutStore interface {
	DueTimeouts(ctx context.Context, now time.Time) ([]*repository.StepTimeout, error)
	ClaimTimeout(ctx context.Context, id string) (bool, error)
	GetExecution(ctx context.Context, id string) (*repository.WorkflowExecution, error)
	GetStep(ctx context.Context, executionID string, stepNumber int) (*repository.StepExecution, error)
}

// Escalator handles step timeouts for the generic engine. A step whose
// timeout elapsed while still awaiting action is either reassigned to its
// escalation role or auto-approved, exactly once per timeout row.
type Escalator struct {
	store  TimeoutStore
	engine *Engine
	log    *logger.Logger
}

// NewEscalator creates the timeout sweep.
func NewEscalator(store TimeoutStore, engine *Engine, log *logger.Logger) *Escalator {
	return &Escalator{store: store, engine: engine, log: log}
}

// Sweep processes every due, unprocessed timeout row. The sweep is
// re-entrant: each row is claimed with a compare-and-set before any side
// effect, so overlapping runs cannot double-escalate or double-approve a
// step. Per-row failures are logged and do not stop the sweep.
func (e *Escalator) Sweep(ctx context.Context) {
	timeouts, err := e.store.DueTimeouts(ctx, time.Now().UTC())
	if err != nil {
		e.log.Error().Err(err).Msg("Timeout sweep: failed to list due timeouts")
		return
	}

	for _, to := range timeouts {
		claimed, err := e.store.ClaimTimeout(ctx, to.ID)
		if err != nil {
			e.log.Error().Err(err).Str("timeout_id", to.ID).Msg("Timeout sweep: claim failed")
			continue
		}
		if !claimed {
			continue // another sweep got there first
		}
		e.processTimeout(ctx, to)
	}
}

func (e *Escalator) processTimeout(ctx context.Context, to *repository.StepTimeout) {
	exec, err := e.store.GetExecution(ctx, to.ExecutionID)
	if err != nil {
		e.log.Warn().Err(err).Str("execution_id", to.ExecutionID).Msg("Timeout sweep: execution not found")
		return
	}
	if exec.Status != repository.ExecutionInProgress || exec.CurrentStepNumber != to.StepNumber {
		return // the step was acted on before its timeout fired
	}
	step, err := e.store.GetStep(ctx, to.ExecutionID, to.StepNumber)
	if err != nil || step.Status != repository.StepPending {
		return
	}

	if to.EscalationRole != nil && *to.EscalationRole != "" {
		if err := e.engine.EscalateStep(ctx, to.ExecutionID, to.StepNumber, *to.EscalationRole); err != nil {
			e.log.Error().Err(err).
				Str("execution_id", to.ExecutionID).
				Int("step", to.StepNumber).
				Str("escalation_role", *to.EscalationRole).
				Msg("Timeout sweep: escalation failed")
			return
		}
		e.log.Info().
			Str("execution_id", to.ExecutionID).
			Int("step", to.StepNumber).
			Str("escalation_role", *to.EscalationRole).
			Msg("Step escalated after timeout")
		return
	}

	completed, err := e.engine.AutoApproveStep(ctx, to.ExecutionID, to.StepNumber)
	if err != nil {
		e.log.Error().Err(err).
			Str("execution_id", to.ExecutionID).
			Int("step", to.StepNumber).
			Msg("Timeout sweep: auto-approval failed")
		return
	}
	e.log.Info().
		Str("execution_id", to.ExecutionID).
		Int("step", to.StepNumber).
		Bool("execution_completed", completed).
		Msg("Step auto-approved after timeout")
}
