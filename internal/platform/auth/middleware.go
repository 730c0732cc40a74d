package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/platform/requestctx"
)

const (
	defaultRoleClaim    = "role"
	defaultRolesClaim   = "roles"
	defaultEmailClaim   = "email"
	defaultPhoneClaim   = "phone_number"
	defaultFallbackRole = RoleCustomer
	defaultLeeway       = 30 * time.Second
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrSecretTooShort rejects HMAC secrets that are trivially guessable.
	ErrSecretTooShort = errors.New("auth: signing secret must be at least 16 bytes")
)

// Authenticator verifies HS256 bearer tokens and exposes them as request identities.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string

	roleClaim    string
	fallbackRole string
	leeway       time.Duration
	now          func() time.Time
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithIssuer requires the iss claim to match issuer.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		a.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) Option {
	return func(a *Authenticator) {
		a.audience = strings.TrimSpace(audience)
	}
}

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithFallbackRole sets the default role when no role claim is present.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		role = normaliseRole(role)
		if role != "" {
			a.fallbackRole = role
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(secret string, opts ...Option) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, ErrSecretTooShort
	}
	a := &Authenticator{
		secret:       []byte(secret),
		roleClaim:    defaultRoleClaim,
		fallbackRole: defaultFallbackRole,
		leeway:       defaultLeeway,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Verify parses and validates a raw token, returning the resolved identity.
func (a *Authenticator) Verify(tokenStr string) (*Identity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := a.now()
	if !claims.VerifyExpiresAt(now.Add(-a.leeway).Unix(), true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now.Add(a.leeway).Unix(), false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	subject := claimAsString(claims, "sub")
	if subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	identity := &Identity{
		UID:    subject,
		Email:  claimAsString(claims, defaultEmailClaim),
		Phone:  claimAsString(claims, defaultPhoneClaim),
		Roles:  rolesFromClaims(claims, a.roleClaim),
		claims: map[string]any(claims),
	}
	if len(identity.Roles) == 0 {
		identity.Roles = rolesFromClaims(claims, defaultRolesClaim)
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity, nil
}

// Sign issues a token for subject with the given roles. Used by tooling and tests.
func (a *Authenticator) Sign(subject string, roles []string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(roles) > 0 {
		claims[defaultRolesClaim] = roles
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	if a.audience != "" {
		claims["aud"] = a.audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireAuth verifies the Authorization bearer token and ensures one of the allowed roles.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := allowedRoleSet(allowedRoles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := a.Verify(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}
			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(attachIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth attaches the identity when a valid bearer token is present and lets anonymous
// requests through. A malformed or expired token is still rejected.
func (a *Authenticator) OptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" || a == nil {
				next.ServeHTTP(w, r)
				return
			}
			tokenStr, ok := extractBearerToken(header)
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header invalid")
				return
			}
			identity, err := a.Verify(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(attachIdentity(r.Context(), identity)))
		})
	}
}

// attachIdentity stores identity and tags the request logger with it.
func attachIdentity(ctx context.Context, identity *Identity) context.Context {
	if requestctx.HasLogger(ctx) {
		ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
	}
	return WithIdentity(ctx, identity)
}

func allowedRoleSet(roles []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}
	return allowed
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func rolesFromClaims(claims map[string]any, key string) []string {
	raw, ok := claims[key]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case string:
		role := normaliseRole(v)
		if role == "" {
			return nil
		}
		return []string{role}
	case []any:
		values := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				values = append(values, str)
			}
		}
		return uniqueRoles(values)
	case []string:
		return uniqueRoles(v)
	default:
		return nil
	}
}

func uniqueRoles(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		role := normaliseRole(value)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims map[string]any, key string) string {
	raw, ok := claims[key]
	if !ok {
		return ""
	}
	if v, ok := raw.(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "bearer token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "bearer token verification failed")
	}
}
