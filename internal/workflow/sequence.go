// Package workflow implements the approval state machine: fixed per-entity
// status sequences for the portal's built-in workflows, plus the generic
// configurable engine for admin-authored templates.
package workflow

import (
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// Status vocabulary. The exact strings are part of the wire contract with
// persistence and the UI.
const (
	StatusPendingFocal   = "Pending Department Focal"
	StatusPendingManager = "Pending Line Manager"
	StatusPendingHOD     = "Pending HOD"
	StatusApproved       = "Approved"
	StatusCompleted      = "Completed"
	StatusProcessed      = "Processed"
	StatusRejected       = "Rejected"
	StatusCancelled      = "Cancelled"

	StatusProcessingTravelAdmin        = "Processing with Travel Admin"
	StatusProcessingClaimsAdmin        = "Processing with Claims Admin"
	StatusProcessingVisaAdmin          = "Processing with Visa Admin"
	StatusProcessingTransportAdmin     = "Processing with Transport Admin"
	StatusProcessingAccommodationAdmin = "Processing with Accommodation Admin"
)

// Sequence is the fixed canonical stage order for one entity type. Stages
// runs from the first pending stage through the final processed/completed
// status; FullyApproved is the status reached when the last internal
// approval stage has no configured successor.
type Sequence struct {
	EntityType    string
	Stages        []string
	FullyApproved string
	// StageRoles maps each stage to the display role expected to act on it,
	// used when synthesizing the timeline.
	StageRoles map[string]string
}

// First returns the initial pending stage.
func (s *Sequence) First() string {
	return s.Stages[0]
}

// Next returns the successor of a stage. ok is false when the stage has no
// configured successor (callers fall back to FullyApproved).
func (s *Sequence) Next(status string) (string, bool) {
	for i, stage := range s.Stages {
		if stage == status {
			if i+1 < len(s.Stages) {
				return s.Stages[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// IsTerminal reports whether a status permits no further action.
func (s *Sequence) IsTerminal(status string) bool {
	if status == StatusRejected || status == StatusCancelled {
		return true
	}
	return status == s.Stages[len(s.Stages)-1]
}

// ExpectedRoles returns the display role sequence, in stage order.
func (s *Sequence) ExpectedRoles() []string {
	roles := make([]string, 0, len(s.Stages))
	seen := make(map[string]struct{})
	for _, stage := range s.Stages {
		role, ok := s.StageRoles[stage]
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// SequenceSet holds every entity type's sequence. Loaded as data so new
// entity types or stages do not require code changes.
type SequenceSet struct {
	byEntity map[string]*Sequence
}

// NewSequenceSet builds a set from explicit sequences.
func NewSequenceSet(sequences ...*Sequence) *SequenceSet {
	set := &SequenceSet{byEntity: make(map[string]*Sequence, len(sequences))}
	for _, seq := range sequences {
		set.byEntity[seq.EntityType] = seq
	}
	return set
}

// For returns the sequence of an entity type, or nil when unknown.
func (s *SequenceSet) For(entityType string) *Sequence {
	return s.byEntity[entityType]
}

// DefaultSequences returns the portal's built-in stage tables.
func DefaultSequences() *SequenceSet {
	internalStages := func(stage string) map[string]string {
		return map[string]string{
			StatusPendingFocal:   "Department Focal",
			StatusPendingManager: "Line Manager",
			StatusPendingHOD:     "HOD",
			stage:                stageRole(stage),
		}
	}

	return NewSequenceSet(
		&Sequence{
			EntityType: repository.EntityTravel,
			Stages: []string{
				StatusPendingFocal, StatusPendingManager, StatusPendingHOD,
				StatusApproved, StatusProcessingTravelAdmin, StatusCompleted,
			},
			FullyApproved: StatusApproved,
			StageRoles:    internalStages(StatusProcessingTravelAdmin),
		},
		&Sequence{
			EntityType: repository.EntityExpenseClaim,
			Stages: []string{
				StatusPendingFocal, StatusPendingManager, StatusPendingHOD,
				StatusApproved, StatusProcessingClaimsAdmin, StatusProcessed,
			},
			FullyApproved: StatusApproved,
			StageRoles:    internalStages(StatusProcessingClaimsAdmin),
		},
		&Sequence{
			EntityType: repository.EntityVisa,
			Stages: []string{
				StatusPendingFocal, StatusPendingManager, StatusPendingHOD,
				StatusApproved, StatusProcessingVisaAdmin, StatusCompleted,
			},
			FullyApproved: StatusApproved,
			StageRoles:    internalStages(StatusProcessingVisaAdmin),
		},
		&Sequence{
			EntityType: repository.EntityTransport,
			Stages: []string{
				StatusPendingFocal, StatusPendingManager, StatusPendingHOD,
				StatusApproved, StatusProcessingTransportAdmin, StatusCompleted,
			},
			FullyApproved: StatusApproved,
			StageRoles:    internalStages(StatusProcessingTransportAdmin),
		},
		&Sequence{
			EntityType: repository.EntityAccommodation,
			Stages: []string{
				StatusPendingFocal, StatusPendingManager, StatusPendingHOD,
				StatusApproved, StatusProcessingAccommodationAdmin, StatusCompleted,
			},
			FullyApproved: StatusApproved,
			StageRoles:    internalStages(StatusProcessingAccommodationAdmin),
		},
	)
}

func stageRole(processingStage string) string {
	switch processingStage {
	case StatusProcessingTravelAdmin:
		return "Travel Admin"
	case StatusProcessingClaimsAdmin:
		return "Claims Admin"
	case StatusProcessingVisaAdmin:
		return "Visa Admin"
	case StatusProcessingTransportAdmin:
		return "Transport Admin"
	case StatusProcessingAccommodationAdmin:
		return "Accommodation Admin"
	}
	return "Admin"
}
