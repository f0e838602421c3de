package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflane/be-hr-requests/internal/repository"
)

func record(role, action, actor string, at time.Time) *repository.StepRecord {
	return &repository.StepRecord{
		Role:      role,
		Action:    action,
		ActorName: actor,
		CreatedAt: at,
	}
}

func TestBuildTimelineInFlight(t *testing.T) {
	seq := DefaultSequences().For(repository.EntityTravel)
	now := time.Now()

	records := []*repository.StepRecord{
		record("Requestor", repository.ActionSubmitted, "Omar Haddad", now),
		record("Department Focal", repository.ActionApproved, "Mia Chen", now.Add(time.Hour)),
	}

	entries := BuildTimeline(seq, StatusPendingManager, records)
	require.Len(t, entries, 4)

	assert.Equal(t, "Department Focal", entries[0].Role)
	assert.Equal(t, TimelineCompleted, entries[0].Status)
	assert.Equal(t, "Mia Chen", entries[0].ActorName)

	assert.Equal(t, "Line Manager", entries[1].Role)
	assert.Equal(t, TimelinePending, entries[1].Status)

	// Unvisited future stages of an in-flight request are still Pending.
	assert.Equal(t, "HOD", entries[2].Role)
	assert.Equal(t, TimelinePending, entries[2].Status)
	assert.Equal(t, "Travel Admin", entries[3].Role)
	assert.Equal(t, TimelinePending, entries[3].Status)
}

func TestBuildTimelineRejectedHasNoPendingStages(t *testing.T) {
	seq := DefaultSequences().For(repository.EntityVisa)
	now := time.Now()

	records := []*repository.StepRecord{
		record("Department Focal", repository.ActionApproved, "Mia Chen", now),
		record("Line Manager", repository.ActionRejected, "Lena Novak", now.Add(time.Hour)),
	}

	entries := BuildTimeline(seq, StatusRejected, records)
	require.Len(t, entries, 4)

	assert.Equal(t, TimelineCompleted, entries[0].Status)
	assert.Equal(t, TimelineRejected, entries[1].Status)
	for _, e := range entries[2:] {
		assert.Equal(t, TimelineNotStarted, e.Status, "no stage after a rejection may present as pending")
	}
}

func TestBuildTimelineCancelledHasNoPendingStages(t *testing.T) {
	seq := DefaultSequences().For(repository.EntityTravel)

	entries := BuildTimeline(seq, StatusCancelled, nil)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, TimelineNotStarted, e.Status, "stage %s", e.Role)
	}
}

func TestBuildTimelineDelegationDoesNotCompleteStage(t *testing.T) {
	seq := DefaultSequences().For(repository.EntityTravel)
	now := time.Now()

	records := []*repository.StepRecord{
		record("Department Focal", repository.ActionDelegated, "Mia Chen", now),
	}

	entries := BuildTimeline(seq, StatusPendingFocal, records)
	assert.Equal(t, TimelinePending, entries[0].Status, "a delegated stage is still awaiting action")
}

func TestBuildTimelineLastRecordPerRoleWins(t *testing.T) {
	seq := DefaultSequences().For(repository.EntityTravel)
	now := time.Now()

	records := []*repository.StepRecord{
		record("Department Focal", repository.ActionDelegated, "Mia Chen", now),
		record("Department Focal", repository.ActionApproved, "Priya Shah", now.Add(time.Hour)),
	}

	entries := BuildTimeline(seq, StatusPendingManager, records)
	assert.Equal(t, TimelineCompleted, entries[0].Status)
	assert.Equal(t, "Priya Shah", entries[0].ActorName)
}
