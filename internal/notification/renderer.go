package notification

import (
	"fmt"
	"strings"

	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// missingValue is rendered for a plain placeholder whose variable is absent
// or empty. Conditional blocks exist so templates can suppress a line
// entirely instead.
const missingValue = "Not specified"

// Render expands a template against a variable map. Two constructs are
// supported, resolved in this order:
//
//	{key && text}  emitted (with text itself rendered) only when key has a
//	               non-empty value; dropped otherwise
//	{key}          replaced by the value, or "Not specified" when absent
//
// Anything between braces that is not a bare identifier is left untouched.
func Render(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		if template[i] != '{' {
			b.WriteByte(template[i])
			i++
			continue
		}

		end := matchBrace(template, i)
		if end < 0 {
			b.WriteByte('{')
			i++
			continue
		}

		inner := template[i+1 : end]
		if key, body, ok := splitConditional(inner); ok {
			if vars[key] != "" {
				b.WriteString(Render(body, vars))
			}
		} else if key := strings.TrimSpace(inner); isIdentifier(key) {
			b.WriteString(valueOr(vars, key))
		} else {
			b.WriteString(template[i : end+1])
		}
		i = end + 1
	}
	return b.String()
}

// matchBrace returns the index of the brace closing the one at open,
// accounting for nesting, or -1 when unbalanced.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitConditional parses "key && body". ok is false when the block is not a
// conditional.
func splitConditional(inner string) (key, body string, ok bool) {
	head, tail, found := strings.Cut(inner, "&&")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(head)
	if !isIdentifier(key) {
		return "", "", false
	}
	return key, strings.TrimSpace(tail), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func valueOr(vars map[string]string, key string) string {
	if v := vars[key]; v != "" {
		return v
	}
	return missingValue
}

// ── Variable assembly ────────────────────────────────────────────────────────

// VariableInput collects everything a template render may reference for one
// transition.
type VariableInput struct {
	Request        *repository.Request
	PreviousStatus string
	ActorName      string
	ActorRole      string
	Comments       string
	NextApprovers  []Recipient
	BaseURL        string
}

// BuildVariables produces the template variable contract. Optional fields
// map to empty strings so conditional blocks drop cleanly.
func BuildVariables(in VariableInput) map[string]string {
	req := in.Request
	vars := map[string]string{
		"entityId":       req.ID,
		"entityType":     req.EntityType,
		"entityTitle":    req.Title,
		"department":     req.Department,
		"requestorName":  req.RequestorName,
		"requestorEmail": req.RequestorEmail,
		"staffId":        req.StaffID,
		"currentStatus":  req.Status,
		"previousStatus": in.PreviousStatus,
		"approverName":   in.ActorName,
		"approverRole":   in.ActorRole,
		"comments":       in.Comments,
	}

	if req.Status == workflow.StatusRejected {
		vars["rejectionReason"] = in.Comments
	}
	if req.Purpose != nil {
		vars["purpose"] = *req.Purpose
	}
	if req.Amount != nil {
		vars["entityAmount"] = formatAmount(*req.Amount)
	}
	if req.TravelType != nil {
		vars["travelType"] = *req.TravelType
	}
	if req.DateFrom != nil && req.DateTo != nil {
		vars["entityDates"] = fmt.Sprintf("%s to %s", *req.DateFrom, *req.DateTo)
	}

	if len(in.NextApprovers) > 0 {
		names := make([]string, 0, len(in.NextApprovers))
		for _, r := range in.NextApprovers {
			names = append(names, r.Name)
		}
		vars["nextApprover"] = strings.Join(names, ", ")
	}

	if in.BaseURL != "" {
		base := strings.TrimRight(in.BaseURL, "/")
		vars["approvalUrl"] = fmt.Sprintf("%s/%s/approval/%s", base, req.EntityType, req.ID)
		vars["viewUrl"] = fmt.Sprintf("%s/%s/view/%s", base, req.EntityType, req.ID)
	}
	return vars
}

// formatAmount renders a minor-unit amount as a decimal string.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
