package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflane/be-hr-requests/internal/repository"
)

func approver(id, email string) Recipient {
	return Recipient{UserID: id, Name: id, Email: email, Role: "Line Manager"}
}

func TestBuildRecipientsApproverAlwaysCCsRequestor(t *testing.T) {
	requestor := Recipient{UserID: "u-req", Name: "Omar Haddad", Email: "omar@example.com", Role: "Requestor"}
	approvers := []Recipient{approver("a-1", "a1@example.com"), approver("a-2", "a2@example.com")}

	set := BuildRecipients(repository.RecipientApprover, approvers, requestor)

	require.Len(t, set.To, 2)
	require.Len(t, set.CC, 1)
	assert.Equal(t, "omar@example.com", set.CC[0].Email)

	to, cc := set.Emails()
	assert.Contains(t, append(to, cc...), "omar@example.com",
		"requestor email must appear in to or cc of every approval-stage message")
}

func TestBuildRecipientsDedupesByEmail(t *testing.T) {
	approvers := []Recipient{
		approver("a-1", "shared@example.com"),
		approver("a-2", "Shared@Example.com"),
		approver("a-3", ""),
	}

	set := BuildRecipients(repository.RecipientApprover, approvers, Recipient{})
	assert.Len(t, set.To, 1, "case-insensitive duplicate and empty address dropped")
	assert.Empty(t, set.CC, "requestor with no email cannot be cc'd")
	assert.False(t, set.Empty())
}

func TestBuildRecipientsRequestorOnly(t *testing.T) {
	requestor := Recipient{UserID: "u-req", Email: "omar@example.com", Role: "Requestor"}

	set := BuildRecipients(repository.RecipientRequestor, []Recipient{approver("a-1", "a1@example.com")}, requestor)
	require.Len(t, set.To, 1)
	assert.Equal(t, "omar@example.com", set.To[0].Email)
	assert.Empty(t, set.CC)
}

func TestBuildRecipientsBothSplitsByRole(t *testing.T) {
	requestor := Recipient{UserID: "u-req", Email: "omar@example.com", Role: "Requestor"}
	mixed := []Recipient{
		approver("a-1", "a1@example.com"),
		{UserID: "u-req", Email: "omar@example.com", Role: "Requestor"},
	}

	set := BuildRecipients(repository.RecipientBoth, mixed, requestor)
	require.Len(t, set.To, 1)
	assert.Equal(t, "a1@example.com", set.To[0].Email)
	require.Len(t, set.CC, 1)
	assert.Equal(t, "omar@example.com", set.CC[0].Email)
}
