package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/platform/observability"
	"github.com/campushub/api/internal/repositories"
)

const defaultToggleAttempts = 3

// ReactionServiceDeps bundles collaborators required to construct the reaction service.
type ReactionServiceDeps struct {
	Reactions   repositories.ReactionRepository
	Targets     repositories.TargetRepository
	Users       repositories.UserRepository
	Notifier    NotificationDispatcher
	MaxAttempts int
	Locale      language.Tag
	Clock       func() time.Time
	IDGenerator func() string
	Metrics     *observability.Metrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reactionService struct {
	reactions   repositories.ReactionRepository
	targets     repositories.TargetRepository
	users       repositories.UserRepository
	notifier    NotificationDispatcher
	maxAttempts int
	copy        notificationCopy
	clock       func() time.Time
	newID       func() string
	metrics     *observability.Metrics
	logger      func(context.Context, string, map[string]any)
}

var _ ReactionService = (*reactionService)(nil)

// NewReactionService wires dependencies into a ReactionService.
func NewReactionService(deps ReactionServiceDeps) (ReactionService, error) {
	if deps.Reactions == nil {
		return nil, errors.New("reaction service: reaction repository is required")
	}
	if deps.Targets == nil {
		return nil, errors.New("reaction service: target repository is required")
	}

	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultToggleAttempts
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reactionService{
		reactions:   deps.Reactions,
		targets:     deps.Targets,
		users:       deps.Users,
		notifier:    deps.Notifier,
		maxAttempts: attempts,
		copy:        copyFor(deps.Locale),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

// Toggle applies one like/dislike request. A lost race on the reaction row is retried from a
// fresh read; the decision is recomputed every attempt so a retry never double-applies.
func (s *reactionService) Toggle(ctx context.Context, cmd ToggleReactionCommand) (ToggleResult, error) {
	key, requested, err := parseToggleCommand(cmd)
	if err != nil {
		return ToggleResult{}, err
	}

	ctx, span := observability.Tracer().Start(ctx, "ReactionService.Toggle", trace.WithAttributes(
		attribute.String("reaction.target", key.Target().String()),
		attribute.String("reaction.type", string(requested)),
	))
	defer span.End()

	var outcome domain.ToggleOutcome
	decide := func(existing *domain.Reaction, target domain.ReactableTarget) (domain.ToggleOutcome, error) {
		outcome = domain.DecideToggle(key, existing, requested, target.OwnerID, s.clock())
		return outcome, nil
	}

	for attempt := 1; ; attempt++ {
		result, err := s.reactions.Toggle(ctx, key, decide)
		if errors.Is(err, repositories.ErrCountersPending) {
			// the reaction row is committed; toggling again would undo it
			span.RecordError(err)
			s.logger(ctx, "reaction.toggle.counters_pending", map[string]any{
				"target": key.Target().String(),
				"userId": key.UserID,
				"action": string(result.Action),
				"error":  err.Error(),
			})
			err = nil
		}
		if err == nil {
			span.SetAttributes(attribute.String("reaction.action", string(result.Action)), attribute.Int("reaction.attempts", attempt))
			s.metrics.ReactionToggled(ctx, string(result.Action), string(key.TargetKind))
			s.notifyLiked(ctx, key, outcome)
			return result, nil
		}
		if !repositories.IsConflict(err) || attempt >= s.maxAttempts || ctx.Err() != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "toggle failed")
			return ToggleResult{}, mapRepositoryError("reaction toggle", err)
		}
		s.metrics.ConflictRetried(ctx, "reactions.toggle")
		s.logger(ctx, "reaction.toggle.retry", map[string]any{
			"target":  key.Target().String(),
			"userId":  key.UserID,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
}

// Get returns the counters of a target and, when a viewer is given, the viewer's reaction.
func (s *reactionService) Get(ctx context.Context, query ReactionQuery) (ReactionView, error) {
	kind, ok := domain.ParseTargetKind(query.TargetKind)
	if !ok {
		return ReactionView{}, fmt.Errorf("%w: unsupported target kind %q", ErrInvalidInput, query.TargetKind)
	}
	targetID := strings.TrimSpace(query.TargetID)
	if !domain.ValidID(targetID) {
		return ReactionView{}, fmt.Errorf("%w: invalid target id %q", ErrInvalidInput, query.TargetID)
	}
	ref := domain.TargetRef{ID: targetID, Kind: kind}

	target, err := s.targets.Get(ctx, ref)
	if err != nil {
		return ReactionView{}, mapRepositoryError("reaction get", err)
	}
	view := ReactionView{Target: ref, Stats: target.Stats}

	if s.users != nil && target.OwnerID != "" {
		reputation, err := s.users.Reputation(ctx, target.OwnerID)
		if err != nil {
			return ReactionView{}, mapRepositoryError("reaction get", err)
		}
		view.Owner = &ReactionOwner{UserID: target.OwnerID, Reputation: reputation}
	}

	viewer := strings.TrimSpace(query.ViewerID)
	if viewer == "" {
		return view, nil
	}
	reaction, err := s.reactions.Find(ctx, domain.ReactionKey{UserID: viewer, TargetID: targetID, TargetKind: kind})
	switch {
	case err == nil:
		typ := reaction.Type
		view.Reaction = &typ
	case !repositories.IsNotFound(err):
		return ReactionView{}, mapRepositoryError("reaction get", err)
	}
	return view, nil
}

func (s *reactionService) notifyLiked(ctx context.Context, key domain.ReactionKey, outcome domain.ToggleOutcome) {
	if s.notifier == nil || !outcome.Mutation.Create || outcome.Action != domain.ReactionActionLike {
		return
	}
	owner := outcome.ReputationUserID
	if owner == "" || owner == key.UserID {
		return
	}
	title, content := s.copy.liked(key.TargetKind)
	notification := Notification{
		ID:      s.newID(),
		Type:    domain.NotificationReaction,
		Title:   title,
		Content: content,
		Data: map[string]string{
			"targetId":   key.TargetID,
			"targetKind": string(key.TargetKind),
			"userId":     key.UserID,
		},
		CreatedAt: s.clock(),
	}
	if err := s.notifier.Notify(ctx, owner, notification); err != nil {
		s.logger(ctx, "reaction.notify.failed", map[string]any{
			"target":    key.Target().String(),
			"recipient": owner,
			"error":     err.Error(),
		})
	}
}

func parseToggleCommand(cmd ToggleReactionCommand) (domain.ReactionKey, domain.ReactionType, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if !domain.ValidID(userID) {
		return domain.ReactionKey{}, "", fmt.Errorf("%w: invalid user id %q", ErrInvalidInput, cmd.UserID)
	}
	targetID := strings.TrimSpace(cmd.TargetID)
	if !domain.ValidID(targetID) {
		return domain.ReactionKey{}, "", fmt.Errorf("%w: invalid target id %q", ErrInvalidInput, cmd.TargetID)
	}
	kind, ok := domain.ParseTargetKind(cmd.TargetKind)
	if !ok {
		return domain.ReactionKey{}, "", fmt.Errorf("%w: unsupported target kind %q", ErrInvalidInput, cmd.TargetKind)
	}
	typ, ok := domain.ParseReactionType(cmd.Type)
	if !ok {
		return domain.ReactionKey{}, "", fmt.Errorf("%w: unsupported reaction type %q", ErrInvalidInput, cmd.Type)
	}
	return domain.ReactionKey{UserID: userID, TargetID: targetID, TargetKind: kind}, typ, nil
}
