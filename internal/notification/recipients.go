package notification

import (
	"strings"

	"github.com/stafflane/be-hr-requests/internal/repository"
)

// Recipient is one addressee of an outbound message.
type Recipient struct {
	UserID     string
	Name       string
	Email      string
	Role       string
	Department string
}

// RecipientSet is the consolidated TO/CC split of one message. TO holds the
// people expected to act; CC keeps the requestor (and any other observers)
// in the loop.
type RecipientSet struct {
	To []Recipient
	CC []Recipient
}

// Empty reports whether the set carries no addressable recipient at all.
func (s RecipientSet) Empty() bool {
	return len(s.To) == 0 && len(s.CC) == 0
}

// Emails returns the TO then CC addresses, in order.
func (s RecipientSet) Emails() (to, cc []string) {
	for _, r := range s.To {
		to = append(to, r.Email)
	}
	for _, r := range s.CC {
		cc = append(cc, r.Email)
	}
	return to, cc
}

// ApproverRecipient converts a directory user.
func ApproverRecipient(u *repository.DirectoryUser) Recipient {
	return Recipient{
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
	}
}

// RequestorRecipient builds the requestor's recipient entry from the request
// itself.
func RequestorRecipient(req *repository.Request) Recipient {
	return Recipient{
		UserID:     req.RequestorID,
		Name:       req.RequestorName,
		Email:      req.RequestorEmail,
		Role:       "Requestor",
		Department: req.Department,
	}
}

// BuildRecipients assembles the TO/CC split for a template's recipient type.
// Approver-facing messages always CC the requestor so they can follow their
// own request. Recipients without an email address are dropped; duplicates
// are collapsed by address.
func BuildRecipients(recipientType string, approvers []Recipient, requestor Recipient) RecipientSet {
	switch recipientType {
	case repository.RecipientRequestor:
		return RecipientSet{To: dedupe([]Recipient{requestor})}

	case repository.RecipientBoth:
		// Legacy split: pre-partitioned recipient lists where the requestor
		// may already ride along inside the approver slice.
		var to, cc []Recipient
		for _, r := range append(approvers, requestor) {
			if r.Role == "Requestor" {
				cc = append(cc, r)
			} else {
				to = append(to, r)
			}
		}
		return RecipientSet{To: dedupe(to), CC: dedupe(cc)}

	default: // repository.RecipientApprover
		return RecipientSet{
			To: dedupe(approvers),
			CC: dedupe([]Recipient{requestor}),
		}
	}
}

func dedupe(recipients []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		addr := strings.ToLower(strings.TrimSpace(r.Email))
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, r)
	}
	return out
}
