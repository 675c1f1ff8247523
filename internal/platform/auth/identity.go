package auth

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	"github.com/campushub/api/internal/domain"
)

// Role names carried in the Firebase custom claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated end user behind a request.
type Identity struct {
	UID    string
	Email  string
	Roles  []string
	Locale language.Tag
}

// HasRole reports whether the identity carries role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Actor converts the identity into the domain actor used for authorization.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	role := domain.ActorRoleUser
	if i.HasRole(RoleAdmin) {
		role = domain.ActorRoleAdmin
	}
	return domain.Actor{ID: i.UID, Role: role}
}

type identityKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// parseLocale accepts BCP 47 tags and returns language.Und for anything else.
func parseLocale(raw string) language.Tag {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return language.Und
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und
	}
	return tag
}
