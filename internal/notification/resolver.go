package notification

import (
	"context"

	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// ResolverDirectory is the slice of the user directory the resolver needs.
type ResolverDirectory interface {
	FindActiveUsersWithPermission(ctx context.Context, permission string, department *string) ([]*repository.DirectoryUser, error)
}

// PermissionTable maps (entity type, status) to the permission that gates
// acting on the request at that stage. Held as data so routing changes are
// table edits, not code edits.
type PermissionTable struct {
	byEntity map[string]map[string]string
	// departmentScoped lists the statuses whose approver lookup is narrowed
	// to the requestor's department. Everything else resolves company-wide.
	departmentScoped map[string]bool
	// rolePriority narrows a permission's holders to preferred display roles
	// when any of them match; an empty intersection keeps the full set.
	rolePriority map[string][]string
}

// DefaultPermissionTable returns the built-in stage-to-permission mapping for
// every portal entity type.
func DefaultPermissionTable() *PermissionTable {
	byEntity := make(map[string]map[string]string, len(repository.EntityTypes))
	processing := map[string]string{
		repository.EntityTravel:        workflow.StatusProcessingTravelAdmin,
		repository.EntityExpenseClaim:  workflow.StatusProcessingClaimsAdmin,
		repository.EntityVisa:          workflow.StatusProcessingVisaAdmin,
		repository.EntityTransport:     workflow.StatusProcessingTransportAdmin,
		repository.EntityAccommodation: workflow.StatusProcessingAccommodationAdmin,
	}
	for _, entity := range repository.EntityTypes {
		byEntity[entity] = map[string]string{
			workflow.StatusPendingFocal:   "approve_" + entity + "_focal",
			workflow.StatusPendingManager: "approve_" + entity + "_manager",
			workflow.StatusPendingHOD:     "approve_" + entity + "_hod",
			workflow.StatusApproved:       "process_" + entity,
			processing[entity]:            "process_" + entity,
		}
	}

	return &PermissionTable{
		byEntity: byEntity,
		departmentScoped: map[string]bool{
			workflow.StatusPendingFocal: true,
		},
		rolePriority: map[string][]string{
			"process_trf":           {"Travel Admin"},
			"process_claims":        {"Claims Admin"},
			"process_visa":          {"Visa Admin"},
			"process_transport":     {"Transport Admin"},
			"process_accommodation": {"Accommodation Admin"},
			"process_flights":       {"Flights Admin"},
		},
	}
}

// PermissionFor looks up the permission gating a stage. ok is false when the
// combination has no mapping; callers log and skip rather than fail.
func (t *PermissionTable) PermissionFor(entityType, status string) (string, bool) {
	stages, found := t.byEntity[entityType]
	if !found {
		return "", false
	}
	permission, found := stages[status]
	return permission, found
}

// Resolver finds the users who should receive an approver-facing message for
// a given request stage.
type Resolver struct {
	table     *PermissionTable
	directory ResolverDirectory
	log       *logger.Logger
}

// NewResolver creates a recipient resolver backed by the user directory.
func NewResolver(table *PermissionTable, directory ResolverDirectory, log *logger.Logger) *Resolver {
	return &Resolver{table: table, directory: directory, log: log}
}

// PermissionFor exposes the stage-to-permission lookup.
func (r *Resolver) PermissionFor(entityType, status string) (string, bool) {
	return r.table.PermissionFor(entityType, status)
}

// ResolveByPermission returns the active holders of a permission, narrowed to
// the requestor's department when the stage is department-scoped and to the
// preferred roles when any candidates carry one. An empty result is not an
// error; the dispatcher logs and skips.
func (r *Resolver) ResolveByPermission(ctx context.Context, permission, status, department string) ([]*repository.DirectoryUser, error) {
	var dept *string
	if r.table.departmentScoped[status] && department != "" {
		dept = &department
	}

	users, err := r.directory.FindActiveUsersWithPermission(ctx, permission, dept)
	if err != nil {
		return nil, err
	}

	preferred := r.table.rolePriority[permission]
	if len(preferred) == 0 || len(users) == 0 {
		return users, nil
	}

	narrowed := make([]*repository.DirectoryUser, 0, len(users))
	for _, user := range users {
		for _, role := range preferred {
			if user.Role == role {
				narrowed = append(narrowed, user)
				break
			}
		}
	}
	if len(narrowed) == 0 {
		// No candidate carries a preferred role; the permission holders
		// themselves are still the right audience.
		return users, nil
	}
	r.log.Debug().
		Str("permission", permission).
		Int("candidates", len(users)).
		Int("narrowed", len(narrowed)).
		Msg("narrowed recipients by role priority")
	return narrowed, nil
}
