package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// fakeStatusStore keeps one request in memory and applies the same
// compare-and-set rule as the SQL implementation.
type fakeStatusStore struct {
	request *repository.Request
	records []*repository.StepRecord
}

func (f *fakeStatusStore) GetByID(_ context.Context, id string) (*repository.Request, error) {
	if f.request == nil || f.request.ID != id {
		return nil, apperrors.NotFound("request", id)
	}
	copy := *f.request
	return &copy, nil
}

func (f *fakeStatusStore) TransitionStatus(_ context.Context, entityID, fromStatus, toStatus string, rec *repository.StepRecord) error {
	if f.request == nil || f.request.ID != entityID || f.request.Status != fromStatus {
		return apperrors.Newf(apperrors.ErrCodeInvalidState,
			"request %s is no longer at status %q", entityID, fromStatus)
	}
	f.request.Status = toStatus
	f.records = append(f.records, rec)
	return nil
}

func newTravelRequest(status string) *repository.Request {
	return &repository.Request{
		ID:         "TRF-2026-000001",
		EntityType: repository.EntityTravel,
		Status:     status,
	}
}

func testActor() Actor {
	return Actor{ID: "u-1", Name: "Lena Novak", Role: "Line Manager"}
}

func TestApplyApproveAdvancesOneStage(t *testing.T) {
	store := &fakeStatusStore{request: newTravelRequest(StatusPendingFocal)}
	machine := NewMachine(store, DefaultSequences(), logger.Nop())

	tr, err := machine.Apply(context.Background(), "TRF-2026-000001", ActionApprove, testActor(), "looks fine")
	require.NoError(t, err)

	assert.Equal(t, StatusPendingFocal, tr.From)
	assert.Equal(t, StatusPendingManager, tr.To)
	assert.Equal(t, StatusPendingManager, store.request.Status)

	require.Len(t, store.records, 1)
	assert.Equal(t, repository.ActionApproved, store.records[0].Action)
	assert.Equal(t, "Line Manager", store.records[0].Role)
	require.NotNil(t, store.records[0].Comments)
	assert.Equal(t, "looks fine", *store.records[0].Comments)
}

func TestApplyApproveWalksFullSequence(t *testing.T) {
	store := &fakeStatusStore{request: newTravelRequest(StatusPendingFocal)}
	machine := NewMachine(store, DefaultSequences(), logger.Nop())

	want := []string{
		StatusPendingManager,
		StatusPendingHOD,
		StatusApproved,
		StatusProcessingTravelAdmin,
		StatusCompleted,
	}
	for _, expected := range want {
		tr, err := machine.Apply(context.Background(), "TRF-2026-000001", ActionApprove, testActor(), "")
		require.NoError(t, err)
		assert.Equal(t, expected, tr.To)
	}

	// Completed is terminal.
	_, err := machine.Apply(context.Background(), "TRF-2026-000001", ActionApprove, testActor(), "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))
}

func TestApplyRejectFromAnyNonTerminalStage(t *testing.T) {
	for _, status := range []string{StatusPendingFocal, StatusPendingHOD, StatusProcessingTravelAdmin} {
		store := &fakeStatusStore{request: newTravelRequest(status)}
		machine := NewMachine(store, DefaultSequences(), logger.Nop())

		tr, err := machine.Apply(context.Background(), "TRF-2026-000001", ActionReject, testActor(), "budget cut")
		require.NoError(t, err, "reject from %s", status)
		assert.Equal(t, StatusRejected, tr.To)
	}
}

func TestApplyOnTerminalStatusFails(t *testing.T) {
	for _, status := range []string{StatusRejected, StatusCancelled, StatusCompleted} {
		store := &fakeStatusStore{request: newTravelRequest(status)}
		machine := NewMachine(store, DefaultSequences(), logger.Nop())

		_, err := machine.Apply(context.Background(), "TRF-2026-000001", ActionApprove, testActor(), "")
		require.Error(t, err, "acting on %s", status)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))
	}
}

func TestApplyDoubleApproveSecondCallFails(t *testing.T) {
	store := &fakeStatusStore{request: newTravelRequest(StatusPendingHOD)}
	machine := NewMachine(store, DefaultSequences(), logger.Nop())
	ctx := context.Background()

	// Both callers read the request at Pending HOD; only the first CAS wins.
	first, err := machine.Apply(ctx, "TRF-2026-000001", ActionApprove, testActor(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, first.To)

	// The second caller still holds the stale fromStatus.
	err = store.TransitionStatus(ctx, "TRF-2026-000001", StatusPendingHOD, StatusApproved, &repository.StepRecord{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidState))
	assert.Len(t, store.records, 1, "no step record written for the losing call")
}

func TestClaimsSequenceEndsInProcessed(t *testing.T) {
	seq := DefaultSequences().For(repository.EntityExpenseClaim)
	require.NotNil(t, seq)

	assert.Equal(t, StatusPendingFocal, seq.First())
	assert.True(t, seq.IsTerminal(StatusProcessed))
	assert.False(t, seq.IsTerminal(StatusApproved))

	next, ok := seq.Next(StatusProcessingClaimsAdmin)
	require.True(t, ok)
	assert.Equal(t, StatusProcessed, next)
}

func TestRecordDelegationKeepsStatus(t *testing.T) {
	store := &fakeStatusStore{request: newTravelRequest(StatusPendingManager)}
	machine := NewMachine(store, DefaultSequences(), logger.Nop())

	err := machine.RecordDelegation(context.Background(), "TRF-2026-000001", testActor(), "Priya Shah", "on leave")
	require.NoError(t, err)

	assert.Equal(t, StatusPendingManager, store.request.Status)
	require.Len(t, store.records, 1)
	assert.Equal(t, repository.ActionDelegated, store.records[0].Action)
	require.NotNil(t, store.records[0].Comments)
	assert.Equal(t, "Delegated to Priya Shah: on leave", *store.records[0].Comments)
}
