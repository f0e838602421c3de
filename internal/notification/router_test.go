package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stafflane/be-hr-requests/internal/workflow"
)

func TestTemplatesFor(t *testing.T) {
	router := NewRouter()

	cases := []struct {
		name          string
		eventType     string
		currentStatus string
		want          []string
	}{
		{
			name:          "submission routes to initial approver template",
			eventType:     "trf_submitted",
			currentStatus: workflow.StatusPendingFocal,
			want:          []string{TemplateInitialApprover},
		},
		{
			name:          "advance to manager routes to stage handoff",
			eventType:     "trf_approved",
			currentStatus: workflow.StatusPendingManager,
			want:          []string{TemplateStageHandoff},
		},
		{
			name:          "advance to hod routes to stage handoff",
			eventType:     "claims_approved",
			currentStatus: workflow.StatusPendingHOD,
			want:          []string{TemplateStageHandoff},
		},
		{
			name:          "fully approved routes to processing handoff",
			eventType:     "visa_approved",
			currentStatus: workflow.StatusApproved,
			want:          []string{TemplateProcessingHandoff},
		},
		{
			name:          "processing stage routes to processing handoff",
			eventType:     "claims_approved",
			currentStatus: workflow.StatusProcessingClaimsAdmin,
			want:          []string{TemplateProcessingHandoff},
		},
		{
			name:          "completion routes to final notice",
			eventType:     "trf_completed",
			currentStatus: workflow.StatusCompleted,
			want:          []string{TemplateFinalNotice},
		},
		{
			name:          "processed claims route to final notice",
			eventType:     "claims_completed",
			currentStatus: workflow.StatusProcessed,
			want:          []string{TemplateFinalNotice},
		},
		{
			name:          "rejection routes to rejection notice",
			eventType:     "transport_rejected",
			currentStatus: workflow.StatusRejected,
			want:          []string{TemplateRejectionNotice},
		},
		{
			name:          "unknown combination falls back to the literal event type",
			eventType:     "trf_reminder",
			currentStatus: workflow.StatusCancelled,
			want:          []string{"trf_reminder"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, router.TemplatesFor(tc.eventType, tc.currentStatus))
		})
	}
}

func TestTemplatesForSubmittedWinsOverStatus(t *testing.T) {
	// Precedence is fixed: a submission event always routes to the initial
	// template regardless of the stage the entity starts at.
	router := NewRouter()
	got := router.TemplatesFor("accommodation_submitted", workflow.StatusPendingFocal)
	assert.Equal(t, []string{TemplateInitialApprover}, got)
}
