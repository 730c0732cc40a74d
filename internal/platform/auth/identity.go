package auth

import (
	"context"
	"slices"
	"strings"
)

const (
	// RoleCustomer is granted to shoppers who sign in to follow their orders.
	RoleCustomer = "customer"
	// RoleAdmin is the default role for the restaurant back office.
	RoleAdmin = "admin"
)

// Identity is the verified bearer of a request. Guests never carry one.
type Identity struct {
	UID   string
	Email string
	Phone string
	Roles []string

	claims map[string]any
}

// Claim exposes a raw verified claim such as "iss".
func (i *Identity) Claim(name string) (any, bool) {
	if i == nil {
		return nil, false
	}
	value, ok := i.claims[name]
	return value, ok
}

// HasRole matches case-insensitively. Blank roles never match.
func (i *Identity) HasRole(role string) bool {
	role = normaliseRole(role)
	if i == nil || role == "" {
		return false
	}
	return slices.ContainsFunc(i.Roles, func(held string) bool {
		return strings.EqualFold(strings.TrimSpace(held), role)
	})
}

func (i *Identity) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, i.HasRole)
}

// ContactPhone is the verified phone claim, empty for e-mail only sign-ins.
func (i *Identity) ContactPhone() string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.Phone)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext reports false for guests.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity, identity != nil
}
