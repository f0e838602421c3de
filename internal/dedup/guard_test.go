package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndMarkRejectsDuplicateWithinWindow(t *testing.T) {
	guard := NewGuard(time.Minute)

	dup, _ := guard.CheckAndMark("fp-1", 30*time.Second)
	assert.False(t, dup, "first sight is never a duplicate")

	dup, remaining := guard.CheckAndMark("fp-1", 30*time.Second)
	assert.True(t, dup)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 30*time.Second)
}

func TestMarkCompletedReleasesFingerprint(t *testing.T) {
	guard := NewGuard(time.Minute)

	dup, _ := guard.CheckAndMark("fp-2", 30*time.Second)
	require.False(t, dup)

	guard.MarkCompleted("fp-2")

	dup, _ = guard.CheckAndMark("fp-2", 30*time.Second)
	assert.False(t, dup, "a released fingerprint may be reused immediately")
}

func TestCheckAndMarkAllowsAfterExpiry(t *testing.T) {
	guard := NewGuard(time.Minute)

	dup, _ := guard.CheckAndMark("fp-3", 25*time.Millisecond)
	require.False(t, dup)

	time.Sleep(50 * time.Millisecond)

	dup, _ = guard.CheckAndMark("fp-3", 25*time.Millisecond)
	assert.False(t, dup, "expired fingerprint no longer suppresses")
}

func TestFingerprintCanonicalizesPayload(t *testing.T) {
	at := time.Unix(1756500000, 0)
	a := Fingerprint("u-1", "create_trf", map[string]interface{}{
		"title":      "Conference travel",
		"department": "Finance",
	}, at)
	b := Fingerprint("u-1", "create_trf", map[string]interface{}{
		"department": "Finance",
		"title":      "Conference travel",
	}, at)
	assert.Equal(t, a, b, "field order must not change the fingerprint")
	assert.Len(t, a, 64)
}

func TestFingerprintDiscriminates(t *testing.T) {
	at := time.Unix(1756500000, 0)
	payload := map[string]interface{}{"title": "Conference travel"}

	base := Fingerprint("u-1", "create_trf", payload, at)

	assert.NotEqual(t, base, Fingerprint("u-2", "create_trf", payload, at), "different user")
	assert.NotEqual(t, base, Fingerprint("u-1", "create_visa", payload, at), "different operation")
	assert.NotEqual(t, base, Fingerprint("u-1", "create_trf", payload, at.Add(time.Second)), "different second")
	assert.NotEqual(t, base, Fingerprint("u-1", "create_trf",
		map[string]interface{}{"title": "Other"}, at), "different payload")
}
