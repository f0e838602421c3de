package service

import (
	"context"

	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/notification"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// ApprovalDirectory is the directory surface approval actions need.
type ApprovalDirectory interface {
	GetUser(ctx context.Context, id string) (*repository.DirectoryUser, error)
	UserHasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// ApprovalRequestStore reads requests and queues for approval actions.
type ApprovalRequestStore interface {
	GetByID(ctx context.Context, id string) (*repository.Request, error)
	ListByStatuses(ctx context.Context, entityType string, statuses []string, department *string, limit, offset int) ([]*repository.Request, error)
}

// ApprovalService executes approve/reject/delegate actions on requests in
// the fixed per-entity workflow, enforcing the permission gating each stage.
type ApprovalService struct {
	store      ApprovalRequestStore
	directory  ApprovalDirectory
	machine    *workflow.Machine
	table      *notification.PermissionTable
	sequences  *workflow.SequenceSet
	dispatcher *notification.Dispatcher
	log        *logger.Logger
}

// NewApprovalService wires the approval action service.
func NewApprovalService(
	store ApprovalRequestStore,
	directory ApprovalDirectory,
	machine *workflow.Machine,
	table *notification.PermissionTable,
	sequences *workflow.SequenceSet,
	dispatcher *notification.Dispatcher,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		store:      store,
		directory:  directory,
		machine:    machine,
		table:      table,
		sequences:  sequences,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Approve advances a request one stage. The caller must hold the permission
// gating the request's current stage. Notifications for the committed
// transition are best-effort.
func (s *ApprovalService) Approve(ctx context.Context, entityID, actorID, comments string) (*workflow.Transition, error) {
	actor, err := s.authorize(ctx, entityID, actorID)
	if err != nil {
		return nil, err
	}

	t, err := s.machine.Apply(ctx, entityID, workflow.ActionApprove, actor, comments)
	if err != nil {
		return nil, err
	}

	s.dispatcher.DispatchTransition(ctx, t, actor, comments)
	return t, nil
}

// Reject terminally rejects a request. A reason is mandatory: the requestor
// sees it verbatim in the rejection notice.
func (s *ApprovalService) Reject(ctx context.Context, entityID, actorID, reason string) (*workflow.Transition, error) {
	if reason == "" {
		return nil, errors.InvalidInput("reason", "a rejection reason is required")
	}

	actor, err := s.authorize(ctx, entityID, actorID)
	if err != nil {
		return nil, err
	}

	t, err := s.machine.Apply(ctx, entityID, workflow.ActionReject, actor, reason)
	if err != nil {
		return nil, err
	}

	s.dispatcher.DispatchTransition(ctx, t, actor, reason)
	return t, nil
}

// Delegate hands the current stage to another holder of the same permission.
// Status does not move; the delegation is recorded in the audit trail and
// the delegate is notified.
func (s *ApprovalService) Delegate(ctx context.Context, entityID, actorID, delegateID, reason string) error {
	actor, err := s.authorize(ctx, entityID, actorID)
	if err != nil {
		return err
	}

	req, err := s.store.GetByID(ctx, entityID)
	if err != nil {
		return err
	}
	permission, ok := s.table.PermissionFor(req.EntityType, req.Status)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidState,
			"request %s has no delegable stage at status %q", entityID, req.Status)
	}

	delegate, err := s.directory.GetUser(ctx, delegateID)
	if err != nil {
		return err
	}
	if !delegate.IsActive {
		return errors.InvalidInput("delegateId", "delegate is not an active user")
	}
	holds, err := s.directory.UserHasPermission(ctx, delegateID, permission)
	if err != nil {
		return err
	}
	if !holds {
		return errors.Newf(errors.ErrCodeUnauthorized,
			"user %s does not hold %s and cannot receive this delegation", delegateID, permission)
	}

	if err := s.machine.RecordDelegation(ctx, entityID, actor, delegate.Name, reason); err != nil {
		return err
	}

	s.log.Info().
		Str("entity_id", entityID).
		Str("actor", actorID).
		Str("delegate", delegateID).
		Msg("Stage delegated")
	return nil
}

// PendingApprovals lists the requests currently waiting on the caller: every
// request sitting at a stage whose permission the caller holds. Department
// focal stages only surface requests from the caller's own department.
func (s *ApprovalService) PendingApprovals(ctx context.Context, userID string, limit, offset int) ([]*repository.Request, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// Permission checks are evaluated once per permission; the same grant
	// gates both the approved handoff and its processing stage.
	held := make(map[string]bool)
	holds := func(permission string) (bool, error) {
		if h, checked := held[permission]; checked {
			return h, nil
		}
		h, err := s.directory.UserHasPermission(ctx, userID, permission)
		if err != nil {
			return false, err
		}
		held[permission] = h
		return h, nil
	}

	var out []*repository.Request
	for _, entityType := range repository.EntityTypes {
		seq := s.sequences.For(entityType)

		var scoped, unscoped []string
		for _, status := range seq.Stages {
			permission, ok := s.table.PermissionFor(entityType, status)
			if !ok {
				continue
			}
			h, err := holds(permission)
			if err != nil {
				return nil, err
			}
			if !h {
				continue
			}
			if status == workflow.StatusPendingFocal {
				scoped = append(scoped, status)
			} else {
				unscoped = append(unscoped, status)
			}
		}

		if len(unscoped) > 0 {
			reqs, err := s.store.ListByStatuses(ctx, entityType, unscoped, nil, limit, offset)
			if err != nil {
				return nil, err
			}
			out = append(out, reqs...)
		}
		if len(scoped) > 0 {
			dept := user.Department
			reqs, err := s.store.ListByStatuses(ctx, entityType, scoped, &dept, limit, offset)
			if err != nil {
				return nil, err
			}
			out = append(out, reqs...)
		}
	}
	return out, nil
}

// authorize checks the caller holds the permission gating the request's
// current stage and returns the actor identity to stamp on the step record.
func (s *ApprovalService) authorize(ctx context.Context, entityID, actorID string) (workflow.Actor, error) {
	req, err := s.store.GetByID(ctx, entityID)
	if err != nil {
		return workflow.Actor{}, err
	}

	permission, ok := s.table.PermissionFor(req.EntityType, req.Status)
	if !ok {
		return workflow.Actor{}, errors.Newf(errors.ErrCodeInvalidState,
			"request %s cannot be acted on at status %q", entityID, req.Status)
	}

	user, err := s.directory.GetUser(ctx, actorID)
	if err != nil {
		return workflow.Actor{}, err
	}
	holds, err := s.directory.UserHasPermission(ctx, actorID, permission)
	if err != nil {
		return workflow.Actor{}, err
	}
	if !holds {
		return workflow.Actor{}, errors.Newf(errors.ErrCodeUnauthorized,
			"user %s does not hold %s required at status %q", actorID, permission, req.Status)
	}
	// Department focal approvals are additionally scoped to the requestor's
	// department.
	if req.Status == workflow.StatusPendingFocal && user.Department != req.Department {
		return workflow.Actor{}, errors.Newf(errors.ErrCodeUnauthorized,
			"focal approval for %s is limited to the %s department", entityID, req.Department)
	}

	return workflow.Actor{ID: user.ID, Name: user.Name, Role: user.Role}, nil
}
