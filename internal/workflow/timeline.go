package workflow

import (
	"github.com/stafflane/be-hr-requests/internal/repository"
)

// Timeline display statuses. Only roles that actually acted have step
// records; everything else here is derived at read time.
const (
	TimelineCompleted  = "Completed"
	TimelinePending    = "Pending"
	TimelineNotStarted = "Not Started"
	TimelineRejected   = "Rejected"
)

// BuildTimeline synthesizes the full expected approval sequence for display
// by merging actual step records with the entity's static expected-role
// list. Unvisited stages of an in-flight request present as Pending; once
// the request is rejected or cancelled every unvisited stage presents as
// Not Started, never Pending.
func BuildTimeline(seq *Sequence, currentStatus string, records []*repository.StepRecord) []repository.TimelineEntry {
	byRole := make(map[string]*repository.StepRecord, len(records))
	for _, rec := range records {
		if rec.Action == repository.ActionSubmitted {
			continue
		}
		// Last record per role wins (a delegation may precede the approval).
		byRole[rec.Role] = rec
	}

	halted := currentStatus == StatusRejected || currentStatus == StatusCancelled

	var entries []repository.TimelineEntry
	for _, role := range seq.ExpectedRoles() {
		entry := repository.TimelineEntry{Role: role}
		if rec, ok := byRole[role]; ok && rec.Action != repository.ActionDelegated {
			entry.ActorName = rec.ActorName
			entry.Action = rec.Action
			entry.Comments = rec.Comments
			actedAt := rec.CreatedAt
			entry.ActedAt = &actedAt
			if rec.Action == repository.ActionRejected {
				entry.Status = TimelineRejected
			} else {
				entry.Status = TimelineCompleted
			}
		} else if halted {
			entry.Status = TimelineNotStarted
		} else {
			entry.Status = TimelinePending
		}
		entries = append(entries, entry)
	}
	return entries
}
