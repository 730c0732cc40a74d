package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-signing-secret-0123"

var authTestNow = time.Date(2025, time.June, 10, 15, 0, 0, 0, time.UTC)

func newTestAuthenticator(t *testing.T, opts ...Option) *Authenticator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return authTestNow })}, opts...)
	authn, err := NewAuthenticator(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authn
}

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func serve(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	authn := newTestAuthenticator(t, WithIssuer("tienda-delivery"))
	token := signClaims(t, jwt.MapClaims{
		"sub":          "uid-123",
		"iss":          "tienda-delivery",
		"exp":          authTestNow.Add(time.Hour).Unix(),
		"role":         []any{"Admin", "admin", "staff"},
		"email":        "ops@example.pe",
		"phone_number": "+51987654321",
	})

	handlerCalled := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if len(identity.Roles) != 2 || !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected deduplicated admin role, got %v", identity.Roles)
		}
		if identity.Email != "ops@example.pe" || identity.Phone != "+51987654321" {
			t.Fatalf("unexpected contact claims %+v", identity)
		}
		if iss, ok := identity.Claim("iss"); !ok || iss != "tienda-delivery" {
			t.Fatalf("expected raw iss claim, got %v", iss)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := serve(handler, token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
}

func TestRequireAuth_Rejections(t *testing.T) {
	authn := newTestAuthenticator(t, WithAudience("tienda-admin"))
	valid := jwt.MapClaims{"sub": "uid-1", "aud": "tienda-admin", "exp": authTestNow.Add(time.Hour).Unix()}
	with := func(key string, value any) jwt.MapClaims {
		claims := jwt.MapClaims{}
		for k, v := range valid {
			claims[k] = v
		}
		if value == nil {
			delete(claims, key)
		} else {
			claims[key] = value
		}
		return claims
	}

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, valid).SignedString([]byte("another-secret-value-xyz"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{name: "missing header", token: "", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "expired", token: signClaims(t, with("exp", authTestNow.Add(-time.Hour).Unix())), status: http.StatusUnauthorized, code: "token_expired"},
		{name: "no expiry", token: signClaims(t, with("exp", nil)), status: http.StatusUnauthorized, code: "token_expired"},
		{name: "wrong audience", token: signClaims(t, with("aud", "someone-else")), status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "no subject", token: signClaims(t, with("sub", nil)), status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "bad signature", token: otherKey, status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "garbage", token: "not-a-jwt", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "customer on admin route", token: signClaims(t, valid), status: http.StatusForbidden, code: "insufficient_role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler should not execute")
			}))
			rr := serve(handler, tc.token)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if got := errorCode(t, rr); got != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, got)
			}
		})
	}
}

func TestRequireAuth_MissingRoleUsesFallback(t *testing.T) {
	authn := newTestAuthenticator(t)
	token := signClaims(t, jwt.MapClaims{"sub": "uid-456", "exp": authTestNow.Add(time.Minute).Unix()})

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleCustomer {
			t.Fatalf("expected fallback role %q, got %v", RoleCustomer, identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if rr := serve(handler, token); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestOptionalAuth(t *testing.T) {
	authn := newTestAuthenticator(t)
	var seen *Identity
	handler := authn.OptionalAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	if rr := serve(handler, ""); rr.Code != http.StatusNoContent || seen != nil {
		t.Fatalf("expected anonymous pass-through, got %d %+v", rr.Code, seen)
	}

	token, err := authn.Sign("user_42", []string{"customer"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if rr := serve(handler, token); rr.Code != http.StatusNoContent || seen == nil || seen.UID != "user_42" {
		t.Fatalf("expected identity for signed token, got %d %+v", rr.Code, seen)
	}

	expired := signClaims(t, jwt.MapClaims{"sub": "user_42", "exp": authTestNow.Add(-time.Hour).Unix()})
	if rr := serve(handler, expired); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired token to be rejected, got %d", rr.Code)
	}
}

func TestNewAuthenticatorRejectsShortSecret(t *testing.T) {
	if _, err := NewAuthenticator("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestIdentityRoleMatching(t *testing.T) {
	identity := &Identity{UID: "user-1", Phone: " +51987654321 ", Roles: []string{" Admin ", "customer"}}

	if !identity.HasRole("admin") || !identity.HasRole("CUSTOMER") {
		t.Fatalf("expected case-insensitive role match for %v", identity.Roles)
	}
	if identity.HasRole("  ") || identity.HasAnyRole("owner", "rider") {
		t.Fatalf("unexpected role match")
	}
	if identity.ContactPhone() != "+51987654321" {
		t.Fatalf("unexpected phone %q", identity.ContactPhone())
	}

	var guest *Identity
	if guest.HasRole(RoleAdmin) || guest.ContactPhone() != "" {
		t.Fatalf("nil identity must hold nothing")
	}
	if _, ok := guest.Claim("sub"); ok {
		t.Fatalf("nil identity has no claims")
	}
	if _, ok := IdentityFromContext(WithIdentity(context.Background(), nil)); ok {
		t.Fatalf("nil identity must read back as a guest")
	}
}
