// Package notification turns committed workflow transitions into outbound
// messages: template routing, approver resolution, TO/CC assembly and
// variable rendering. Everything here is best-effort relative to the
// transition that triggered it: failures are logged and skipped, never
// propagated back to the caller.
package notification

import (
	"strings"

	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// Canonical template routing names. One consolidated message per stage,
// carrying both TO and CC.
const (
	TemplateInitialApprover   = "approval_request_submitted"
	TemplateStageHandoff      = "approval_stage_handoff"
	TemplateProcessingHandoff = "processing_admin_handoff"
	TemplateFinalNotice       = "request_completed"
	TemplateRejectionNotice   = "request_rejected"
)

// Router maps (event type, current status) to the ordered template names to
// fire. Routing precedence is fixed; the first matching rule wins.
type Router struct{}

// NewRouter creates the template router.
func NewRouter() *Router {
	return &Router{}
}

// TemplatesFor resolves the templates for an event. An unrecognized
// combination falls back to treating the event type itself as a literal
// template name, which keeps older hand-wired events working.
func (r *Router) TemplatesFor(eventType, currentStatus string) []string {
	switch {
	case strings.Contains(eventType, "submitted"):
		return []string{TemplateInitialApprover}

	case currentStatus == workflow.StatusPendingManager || currentStatus == workflow.StatusPendingHOD:
		return []string{TemplateStageHandoff}

	case currentStatus == workflow.StatusApproved || strings.HasPrefix(currentStatus, "Processing with"):
		return []string{TemplateProcessingHandoff}

	case currentStatus == workflow.StatusCompleted ||
		currentStatus == workflow.StatusProcessed ||
		strings.Contains(eventType, "completed"):
		return []string{TemplateFinalNotice}

	case strings.Contains(eventType, "rejected"):
		return []string{TemplateRejectionNotice}
	}
	return []string{eventType}
}
