package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tasklist/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextIdentityKey contextKey = "identity"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

func withIdentity(ctx context.Context, who services.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, who)
}

func identityFromContext(ctx context.Context) (services.Identity, error) {
	who, ok := ctx.Value(contextIdentityKey).(services.Identity)
	if !ok || who.UserID <= 0 || strings.TrimSpace(who.Username) == "" {
		return services.Identity{}, errors.New("missing identity")
	}
	return who, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeError renders a service error as {kind, message} with the status
// that matches its kind. Causes never reach the response.
func writeError(w http.ResponseWriter, err error) {
	kind := services.KindOf(err)
	writeJSON(w, statusFor(kind), ErrorResponse{
		Kind:    string(kind),
		Message: services.MessageOf(err),
	})
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindAlreadyExists:
		return http.StatusConflict
	case services.KindInvalidCredentials, services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &services.Error{Kind: services.KindInvalidInput, Message: "invalid request body", Err: err}
	}
	return nil
}
