package workflow

import (
	"context"

	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// Action is an approval action applied to a request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Actor identifies who performs an action.
type Actor struct {
	ID   string
	Name string
	Role string
}

// Transition is the result of applying an action.
type Transition struct {
	Request    *repository.Request
	EntityID   string
	EntityType string
	From       string
	To         string
	Action     Action
}

// StatusStore is the persistence surface the machine needs: current status
// reads plus the atomic transition-with-step-record write.
type StatusStore interface {
	GetByID(ctx context.Context, id string) (*repository.Request, error)
	TransitionStatus(ctx context.Context, entityID, fromStatus, toStatus string, rec *repository.StepRecord) error
}

// Machine computes and persists status transitions over the fixed per-entity
// stage sequences. Every applied transition writes exactly one step record;
// that record is the only durable evidence of who did what.
type Machine struct {
	store     StatusStore
	sequences *SequenceSet
	log       *logger.Logger
}

// NewMachine creates a state machine over the given store and sequences.
func NewMachine(store StatusStore, sequences *SequenceSet, log *logger.Logger) *Machine {
	return &Machine{store: store, sequences: sequences, log: log}
}

// Apply computes the next legal status for an action and persists the
// transition. Rules:
//   - a terminal status (Rejected, Cancelled, final processed stage) admits
//     no action and fails with ErrCodeInvalidState;
//   - reject moves to Rejected from any non-terminal stage;
//   - approve advances one stage in the fixed sequence, falling back to the
//     entity's fully-approved status when no successor is configured.
//
// The underlying status update is a compare-and-set, so two concurrent
// identical actions cannot both advance: the loser fails with
// ErrCodeInvalidState.
func (m *Machine) Apply(ctx context.Context, entityID string, action Action, actor Actor, comments string) (*Transition, error) {
	req, err := m.store.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	seq := m.sequences.For(req.EntityType)
	if seq == nil {
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown entity type %q", req.EntityType)
	}
	if seq.IsTerminal(req.Status) {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"request %s is already %s and cannot be acted on", entityID, req.Status)
	}

	var next string
	var recordAction string
	switch action {
	case ActionReject:
		next = StatusRejected
		recordAction = repository.ActionRejected
	case ActionApprove:
		successor, ok := seq.Next(req.Status)
		if !ok {
			successor = seq.FullyApproved
		}
		next = successor
		recordAction = repository.ActionApproved
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown action %q", action)
	}

	rec := &repository.StepRecord{
		EntityID:  entityID,
		Role:      actor.Role,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    recordAction,
	}
	if comments != "" {
		rec.Comments = &comments
	}

	if err := m.store.TransitionStatus(ctx, entityID, req.Status, next, rec); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("entity_id", entityID).
		Str("entity_type", req.EntityType).
		Str("action", string(action)).
		Str("from", req.Status).
		Str("to", next).
		Str("actor", actor.ID).
		Msg("Status transition applied")

	return &Transition{
		Request:    req,
		EntityID:   entityID,
		EntityType: req.EntityType,
		From:       req.Status,
		To:         next,
		Action:     action,
	}, nil
}

// RecordDelegation appends a delegated step record without changing status.
// Delegation in the fixed per-entity workflow hands the pending stage to
// another holder of the same permission; only the audit trail moves.
func (m *Machine) RecordDelegation(ctx context.Context, entityID string, actor Actor, delegateName, reason string) error {
	req, err := m.store.GetByID(ctx, entityID)
	if err != nil {
		return err
	}
	seq := m.sequences.For(req.EntityType)
	if seq == nil {
		return errors.Newf(errors.ErrCodeValidation, "unknown entity type %q", req.EntityType)
	}
	if seq.IsTerminal(req.Status) {
		return errors.Newf(errors.ErrCodeInvalidState,
			"request %s is already %s and cannot be delegated", entityID, req.Status)
	}

	comments := "Delegated to " + delegateName
	if reason != "" {
		comments += ": " + reason
	}
	rec := &repository.StepRecord{
		EntityID:  entityID,
		Role:      actor.Role,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    repository.ActionDelegated,
		Comments:  &comments,
	}
	// Same-status transition keeps the write path (and its CAS guard) uniform.
	return m.store.TransitionStatus(ctx, entityID, req.Status, req.Status, rec)
}
