// Package dedup suppresses accidental double submissions (double-clicks,
// client retries) with an in-process fingerprint cache. The guard is
// advisory: it protects one process, not a cluster. Cross-instance
// duplicates are ultimately caught by the state machine's compare-and-set
// writes.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type entry struct {
	createdAt time.Time
	ttl       time.Duration
}

// Guard tracks in-flight operation fingerprints.
type Guard struct {
	cache *gocache.Cache
}

// NewGuard creates a guard whose janitor sweeps expired fingerprints every
// sweepInterval.
func NewGuard(sweepInterval time.Duration) *Guard {
	return &Guard{cache: gocache.New(gocache.NoExpiration, sweepInterval)}
}

// CheckAndMark registers a fingerprint for ttl. When the fingerprint is
// already registered and unexpired, it reports a duplicate together with the
// remaining suppression window. Add is insert-if-absent, so two concurrent
// calls cannot both claim first sight.
func (g *Guard) CheckAndMark(fingerprint string, ttl time.Duration) (isDuplicate bool, remaining time.Duration) {
	now := time.Now()
	err := g.cache.Add(fingerprint, entry{createdAt: now, ttl: ttl}, ttl)
	if err == nil {
		return false, 0
	}

	existing, found := g.cache.Get(fingerprint)
	if !found {
		// Expired between Add and Get; the Add raced the janitor. Re-register.
		_ = g.cache.Add(fingerprint, entry{createdAt: now, ttl: ttl}, ttl)
		return false, 0
	}

	e := existing.(entry)
	remaining = e.ttl - now.Sub(e.createdAt)
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// MarkCompleted releases a fingerprint early, on success or failure, so a
// legitimate retry after a real failure is not blocked for the full window.
func (g *Guard) MarkCompleted(fingerprint string) {
	g.cache.Delete(fingerprint)
}

// Fingerprint derives the dedup key for one operation attempt. The payload
// is canonicalized (sorted keys) before hashing so field order in the client
// request does not defeat the guard; the second-resolution timestamp bounds
// the window in which two byte-identical submissions collide.
func Fingerprint(userID, operation string, payload map[string]interface{}, at time.Time) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte('|')
	b.WriteString(operation)
	b.WriteByte('|')
	for _, k := range keys {
		v, _ := json.Marshal(payload[k])
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
		b.WriteByte(';')
	}
	b.WriteByte('|')
	b.WriteString(fmt.Sprintf("%d", at.Unix()))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
