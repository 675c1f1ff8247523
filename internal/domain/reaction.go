package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TargetKind identifies the entity type a reaction points at.
type TargetKind string

const (
	// TargetKindPost marks a forum post.
	TargetKindPost TargetKind = "post"
	// TargetKindComment marks a comment on a post.
	TargetKindComment TargetKind = "comment"
)

// Valid reports whether the kind is one of the reactable kinds.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetKindPost, TargetKindComment:
		return true
	default:
		return false
	}
}

// ParseTargetKind normalises user input into a TargetKind.
func ParseTargetKind(raw string) (TargetKind, bool) {
	kind := TargetKind(strings.ToLower(strings.TrimSpace(raw)))
	return kind, kind.Valid()
}

// ReactionType is either a like or a dislike.
type ReactionType string

const (
	// ReactionLike is a positive reaction.
	ReactionLike ReactionType = "like"
	// ReactionDislike is a negative reaction.
	ReactionDislike ReactionType = "dislike"
)

// Valid reports whether the type is like or dislike.
func (t ReactionType) Valid() bool {
	return t == ReactionLike || t == ReactionDislike
}

// ParseReactionType normalises user input into a ReactionType.
func ParseReactionType(raw string) (ReactionType, bool) {
	t := ReactionType(strings.ToLower(strings.TrimSpace(raw)))
	return t, t.Valid()
}

// ReactionKey is the unique identity of a reaction: one per user per target.
type ReactionKey struct {
	UserID     string
	TargetID   string
	TargetKind TargetKind
}

// String renders the key for logs and error messages. It is not unique; stores use DocumentID.
func (k ReactionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UserID, k.TargetKind, k.TargetID)
}

// DocumentID is the store identity of the reaction row: the hex SHA-256 of the NUL-joined key
// fields. Ids never contain NUL, so distinct keys cannot share a document id, and the result is
// safe as a Firestore document id and a Mongo _id.
func (k ReactionKey) DocumentID() string {
	sum := sha256.Sum256([]byte(k.UserID + "\x00" + string(k.TargetKind) + "\x00" + k.TargetID))
	return hex.EncodeToString(sum[:])
}

// ValidID reports whether raw can identify a user or target: non-empty, at most 128 bytes, and
// free of '/' (a Firestore path separator) and control characters.
func ValidID(raw string) bool {
	if raw == "" || len(raw) > 128 {
		return false
	}
	return !strings.ContainsFunc(raw, func(r rune) bool { return r == '/' || unicode.IsControl(r) })
}

// Target returns the reference of the reacted entity.
func (k ReactionKey) Target() TargetRef {
	return TargetRef{ID: k.TargetID, Kind: k.TargetKind}
}

// Reaction records a single user's like or dislike on one target.
type Reaction struct {
	UserID     string
	TargetID   string
	TargetKind TargetKind
	Type       ReactionType
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the uniqueness key of the reaction.
func (r Reaction) Key() ReactionKey {
	return ReactionKey{UserID: r.UserID, TargetID: r.TargetID, TargetKind: r.TargetKind}
}

// TargetRef points at a post or comment.
type TargetRef struct {
	ID   string
	Kind TargetKind
}

// String renders the reference as kind/id.
func (t TargetRef) String() string {
	return string(t.Kind) + "/" + t.ID
}

// ReactionStats is the cached projection of reaction counts on a target.
type ReactionStats struct {
	Likes    int64
	Dislikes int64
}

// Apply returns the stats after applying a delta pair.
func (s ReactionStats) Apply(d ReactionDelta) ReactionStats {
	return ReactionStats{Likes: s.Likes + d.Likes, Dislikes: s.Dislikes + d.Dislikes}
}

// ReactableTarget is a post or comment carrying reaction counters.
type ReactableTarget struct {
	Ref     TargetRef
	OwnerID string
	Stats   ReactionStats
}

// ReactionAction names the outcome of a toggle.
type ReactionAction string

const (
	ReactionActionLike            ReactionAction = "like"
	ReactionActionDislike         ReactionAction = "dislike"
	ReactionActionCancelLike      ReactionAction = "cancel_like"
	ReactionActionCancelDislike   ReactionAction = "cancel_dislike"
	ReactionActionSwitchToLike    ReactionAction = "switch_to_like"
	ReactionActionSwitchToDislike ReactionAction = "switch_to_dislike"
)

// ReactionDelta is the signed counter change produced by a toggle.
type ReactionDelta struct {
	Likes    int64
	Dislikes int64
}

// IsZero reports whether the delta changes nothing.
func (d ReactionDelta) IsZero() bool {
	return d.Likes == 0 && d.Dislikes == 0
}

// ReactionMutation is the planned change to a reaction row. Exactly one of the flags is set.
type ReactionMutation struct {
	Create bool
	Delete bool
	Switch bool
	Next   Reaction
}

// ToggleOutcome is the result of a toggle decision: what to write and what it means.
type ToggleOutcome struct {
	Action           ReactionAction
	Delta            ReactionDelta
	Mutation         ReactionMutation
	ReputationDelta  int64
	ReputationUserID string
}

// ToggleResult is returned to callers after a toggle commits.
type ToggleResult struct {
	Action ReactionAction
	Delta  ReactionDelta
	Stats  ReactionStats
}

// DecideToggle computes the outcome of a user requesting reaction type requested when their
// current reaction is existing (nil when absent). It is pure; stores apply the outcome.
func DecideToggle(key ReactionKey, existing *Reaction, requested ReactionType, ownerID string, now time.Time) ToggleOutcome {
	var out ToggleOutcome
	switch {
	case existing == nil:
		out.Action = ReactionAction(requested)
		out.Delta = deltaFor(requested, 1)
		out.Mutation = ReactionMutation{Create: true, Next: Reaction{
			UserID:     key.UserID,
			TargetID:   key.TargetID,
			TargetKind: key.TargetKind,
			Type:       requested,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}
		if requested == ReactionLike {
			out.ReputationDelta = 1
		}
	case existing.Type == requested:
		out.Action = ReactionAction("cancel_" + string(requested))
		out.Delta = deltaFor(requested, -1)
		out.Mutation = ReactionMutation{Delete: true, Next: *existing}
		if requested == ReactionLike {
			out.ReputationDelta = -1
		}
	default:
		next := *existing
		next.Type = requested
		next.UpdatedAt = now
		out.Action = ReactionAction("switch_to_" + string(requested))
		out.Delta = deltaFor(requested, 1)
		prev := deltaFor(existing.Type, -1)
		out.Delta.Likes += prev.Likes
		out.Delta.Dislikes += prev.Dislikes
		out.Mutation = ReactionMutation{Switch: true, Next: next}
	}
	if out.ReputationDelta != 0 {
		out.ReputationUserID = ownerID
	}
	return out
}

func deltaFor(t ReactionType, sign int64) ReactionDelta {
	if t == ReactionLike {
		return ReactionDelta{Likes: sign}
	}
	return ReactionDelta{Dislikes: sign}
}

// CounterDrift describes a target whose cached stats disagree with its reaction rows.
type CounterDrift struct {
	Target   TargetRef
	Stored   ReactionStats
	Computed ReactionStats
}

// Drifted reports whether stored and computed counts differ.
func (d CounterDrift) Drifted() bool {
	return d.Stored != d.Computed
}
