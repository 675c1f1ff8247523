// Package idempotency replays the stored response of a mutating request retried with the same
// Idempotency-Key, so a flaky mobile connection cannot place the same order twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// Outcome is the result of claiming a key.
type Outcome int

const (
	// OutcomeClaimed means the caller owns the key and must run the request.
	OutcomeClaimed Outcome = iota
	// OutcomeReplay means a finished response exists for the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key and has not finished.
	OutcomeInFlight
)

// Entry is a claimed key and, once finished, the response to replay.
type Entry struct {
	Key         string
	Fingerprint string
	Finished    bool
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists claims and finished responses.
type Store interface {
	// Claim takes key for fingerprint unless a live entry already holds it.
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error)
	// Finish records the response for a claimed key.
	Finish(ctx context.Context, entry Entry) error
	// Abandon drops a claim so the client may retry.
	Abandon(ctx context.Context, key string) error
	// Purge deletes up to limit expired entries.
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrKeyReused reports a key presented again with a different request.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

// documentID hashes key into a storage-safe identifier.
func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newClaim(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

// classify decides the outcome for an existing live entry.
func classify(existing Entry, fingerprint string) (Outcome, error) {
	if existing.Fingerprint != fingerprint {
		return 0, ErrKeyReused
	}
	if existing.Finished {
		return OutcomeReplay, nil
	}
	return OutcomeInFlight, nil
}

// storableHeader drops hop-by-hop headers that must not be replayed.
func storableHeader(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
