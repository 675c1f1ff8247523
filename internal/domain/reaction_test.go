package domain

import (
	"strings"
	"testing"
	"time"
)

func TestDecideToggle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	key := ReactionKey{UserID: "u1", TargetID: "p1", TargetKind: TargetKindPost}
	like := &Reaction{UserID: "u1", TargetID: "p1", TargetKind: TargetKindPost, Type: ReactionLike, CreatedAt: now.Add(-time.Hour)}
	dislike := &Reaction{UserID: "u1", TargetID: "p1", TargetKind: TargetKindPost, Type: ReactionDislike, CreatedAt: now.Add(-time.Hour)}

	tests := []struct {
		name       string
		existing   *Reaction
		requested  ReactionType
		action     ReactionAction
		delta      ReactionDelta
		reputation int64
		create     bool
		remove     bool
		switched   bool
	}{
		{name: "create like", requested: ReactionLike, action: ReactionActionLike, delta: ReactionDelta{Likes: 1}, reputation: 1, create: true},
		{name: "create dislike", requested: ReactionDislike, action: ReactionActionDislike, delta: ReactionDelta{Dislikes: 1}, create: true},
		{name: "cancel like", existing: like, requested: ReactionLike, action: ReactionActionCancelLike, delta: ReactionDelta{Likes: -1}, reputation: -1, remove: true},
		{name: "cancel dislike", existing: dislike, requested: ReactionDislike, action: ReactionActionCancelDislike, delta: ReactionDelta{Dislikes: -1}, remove: true},
		{name: "switch to dislike", existing: like, requested: ReactionDislike, action: ReactionActionSwitchToDislike, delta: ReactionDelta{Likes: -1, Dislikes: 1}, switched: true},
		{name: "switch to like", existing: dislike, requested: ReactionLike, action: ReactionActionSwitchToLike, delta: ReactionDelta{Likes: 1, Dislikes: -1}, switched: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := DecideToggle(key, tc.existing, tc.requested, "owner", now)
			if out.Action != tc.action {
				t.Fatalf("expected action %s, got %s", tc.action, out.Action)
			}
			if out.Delta != tc.delta {
				t.Fatalf("expected delta %+v, got %+v", tc.delta, out.Delta)
			}
			if out.ReputationDelta != tc.reputation {
				t.Fatalf("expected reputation delta %d, got %d", tc.reputation, out.ReputationDelta)
			}
			if tc.reputation != 0 && out.ReputationUserID != "owner" {
				t.Fatalf("expected reputation to target owner, got %q", out.ReputationUserID)
			}
			m := out.Mutation
			if m.Create != tc.create || m.Delete != tc.remove || m.Switch != tc.switched {
				t.Fatalf("unexpected mutation %+v", m)
			}
			if !m.Delete && m.Next.Type != tc.requested {
				t.Fatalf("expected next type %s, got %s", tc.requested, m.Next.Type)
			}
		})
	}
}

func TestDecideToggleSwitchKeepsCreatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	created := now.Add(-24 * time.Hour)
	existing := &Reaction{UserID: "u1", TargetID: "c1", TargetKind: TargetKindComment, Type: ReactionDislike, CreatedAt: created}

	out := DecideToggle(existing.Key(), existing, ReactionLike, "", now)
	if !out.Mutation.Next.CreatedAt.Equal(created) {
		t.Fatalf("switch must keep original createdAt, got %s", out.Mutation.Next.CreatedAt)
	}
	if !out.Mutation.Next.UpdatedAt.Equal(now) {
		t.Fatalf("switch must bump updatedAt, got %s", out.Mutation.Next.UpdatedAt)
	}
	if out.ReputationDelta != 0 || out.ReputationUserID != "" {
		t.Fatalf("switch must not adjust reputation: %+v", out)
	}
}

func TestParseReactionInputs(t *testing.T) {
	if kind, ok := ParseTargetKind(" Post "); !ok || kind != TargetKindPost {
		t.Fatalf("expected post, got %q %v", kind, ok)
	}
	if _, ok := ParseTargetKind("user"); ok {
		t.Fatalf("user is not reactable")
	}
	if typ, ok := ParseReactionType("DISLIKE"); !ok || typ != ReactionDislike {
		t.Fatalf("expected dislike, got %q %v", typ, ok)
	}
	if _, ok := ParseReactionType("love"); ok {
		t.Fatalf("love is not a reaction type")
	}
}

func TestReactionKeyString(t *testing.T) {
	key := ReactionKey{UserID: "u1", TargetID: "p9", TargetKind: TargetKindPost}
	if got := key.String(); got != "u1/post/p9" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestReactionKeyDocumentIDDistinguishesSeparatorsInIDs(t *testing.T) {
	a := ReactionKey{UserID: "alice", TargetID: "p_post_q", TargetKind: TargetKindPost}
	b := ReactionKey{UserID: "alice_post_p", TargetID: "q", TargetKind: TargetKindPost}
	if a.DocumentID() == b.DocumentID() {
		t.Fatalf("distinct keys share document id %s", a.DocumentID())
	}
	if a.DocumentID() != (ReactionKey{UserID: "alice", TargetID: "p_post_q", TargetKind: TargetKindPost}).DocumentID() {
		t.Fatal("document id must be deterministic")
	}
	if got := len(a.DocumentID()); got != 64 || strings.Contains(a.DocumentID(), "/") {
		t.Fatalf("unexpected document id %q", a.DocumentID())
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "p_1", want: true},
		{raw: "", want: false},
		{raw: "posts/p1", want: false},
		{raw: "p\x001", want: false},
		{raw: strings.Repeat("a", 129), want: false},
	}
	for _, tc := range tests {
		if got := ValidID(tc.raw); got != tc.want {
			t.Fatalf("ValidID(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
