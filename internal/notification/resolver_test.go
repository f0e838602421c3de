package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// fakeResolverDirectory records the department filter it was asked for.
type fakeResolverDirectory struct {
	users    map[string][]*repository.DirectoryUser
	lastDept *string
}

func (f *fakeResolverDirectory) FindActiveUsersWithPermission(_ context.Context, permission string, department *string) ([]*repository.DirectoryUser, error) {
	f.lastDept = department
	matched := f.users[permission]
	if department == nil {
		return matched, nil
	}
	var out []*repository.DirectoryUser
	for _, u := range matched {
		if u.Department == *department {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestPermissionTableMapping(t *testing.T) {
	table := DefaultPermissionTable()

	cases := []struct {
		entityType string
		status     string
		want       string
	}{
		{repository.EntityTravel, workflow.StatusPendingFocal, "approve_trf_focal"},
		{repository.EntityTravel, workflow.StatusPendingManager, "approve_trf_manager"},
		{repository.EntityExpenseClaim, workflow.StatusPendingHOD, "approve_claims_hod"},
		{repository.EntityExpenseClaim, workflow.StatusApproved, "process_claims"},
		{repository.EntityVisa, workflow.StatusProcessingVisaAdmin, "process_visa"},
		{repository.EntityAccommodation, workflow.StatusApproved, "process_accommodation"},
	}
	for _, tc := range cases {
		got, ok := table.PermissionFor(tc.entityType, tc.status)
		require.True(t, ok, "%s at %s", tc.entityType, tc.status)
		assert.Equal(t, tc.want, got)
	}

	_, ok := table.PermissionFor(repository.EntityTravel, workflow.StatusRejected)
	assert.False(t, ok, "terminal statuses have no approver permission")
	_, ok = table.PermissionFor("payroll", workflow.StatusPendingFocal)
	assert.False(t, ok)
}

func TestResolveByPermissionDepartmentScoping(t *testing.T) {
	directory := &fakeResolverDirectory{users: map[string][]*repository.DirectoryUser{
		"approve_trf_focal": {
			{ID: "f-1", Email: "f1@example.com", Role: "Department Focal", Department: "Finance"},
			{ID: "f-2", Email: "f2@example.com", Role: "Department Focal", Department: "Engineering"},
		},
		"approve_trf_hod": {
			{ID: "h-1", Email: "h1@example.com", Role: "HOD", Department: "Finance"},
		},
	}}
	resolver := NewResolver(DefaultPermissionTable(), directory, logger.Nop())
	ctx := context.Background()

	// Focal stage narrows to the requestor's department.
	users, err := resolver.ResolveByPermission(ctx, "approve_trf_focal", workflow.StatusPendingFocal, "Finance")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "f-1", users[0].ID)
	require.NotNil(t, directory.lastDept)
	assert.Equal(t, "Finance", *directory.lastDept)

	// Every other stage resolves company-wide.
	_, err = resolver.ResolveByPermission(ctx, "approve_trf_hod", workflow.StatusPendingHOD, "Finance")
	require.NoError(t, err)
	assert.Nil(t, directory.lastDept)
}

func TestResolveByPermissionRolePriority(t *testing.T) {
	directory := &fakeResolverDirectory{users: map[string][]*repository.DirectoryUser{
		"process_claims": {
			{ID: "admin-1", Email: "ops@example.com", Role: "Operations Admin"},
			{ID: "admin-2", Email: "claims@example.com", Role: "Claims Admin"},
		},
		"process_visa": {
			{ID: "admin-3", Email: "general@example.com", Role: "Shared Services"},
		},
	}}
	resolver := NewResolver(DefaultPermissionTable(), directory, logger.Nop())
	ctx := context.Background()

	// A preferred-role holder narrows the audience.
	users, err := resolver.ResolveByPermission(ctx, "process_claims", workflow.StatusApproved, "")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Claims Admin", users[0].Role)

	// No preferred-role holder: the full permission set stands.
	users, err = resolver.ResolveByPermission(ctx, "process_visa", workflow.StatusApproved, "")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin-3", users[0].ID)
}
