package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tienda-delivery/api/internal/platform/auth"
	"github.com/tienda-delivery/api/internal/services"
)

const maxRequestBody = 64 * 1024

var errEmptyBody = errors.New("request body required")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody reads exactly one JSON document into dst, rejecting unknown fields.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid request body: extraneous data")
	}
	return nil
}

// actorFromRequest converts the authenticated identity into a service actor.
func actorFromRequest(r *http.Request, adminRoles []string) services.Actor {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		return services.Actor{}
	}
	return services.Actor{
		ID:    strings.TrimSpace(identity.UID),
		Admin: identity.HasAnyRole(adminRoles...),
	}
}

func adminRoleSet(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			out = append(out, role)
		}
	}
	if len(out) == 0 {
		return []string{auth.RoleAdmin}
	}
	return out
}
