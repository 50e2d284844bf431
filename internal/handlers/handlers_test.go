package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklist/apiserver/internal/password"
	"github.com/tasklist/apiserver/internal/services"
	"github.com/tasklist/apiserver/internal/store"
	"github.com/tasklist/apiserver/internal/token"
	"github.com/tasklist/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

func newTestRouter(t *testing.T, limit func(http.Handler) http.Handler) http.Handler {
	t.Helper()

	repo := store.NewMemoryUserRepository()
	hasher, err := password.NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)
	codec, err := token.NewCodec("test-secret", time.Hour, "accounts")
	require.NoError(t, err)

	authService := services.NewAuthService(repo, hasher, codec)
	userService := services.NewUserService(repo, hasher)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authService, limit)
	})
	r.Route("/profile", func(r chi.Router) {
		ProfileRouter(r, userService, RequireAuth(authService))
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func registerAndLogin(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/register", "",
		`{"username":"`+username+`","name":"Test User","email":"`+username+`@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"username":"`+username+`","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session services.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	return session.Token
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegister(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/auth/register", "",
		`{"username":"alice","name":"Alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp RegisterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "Created new user with ID: 1", resp.Message)
}

func TestRegisterErrors(t *testing.T) {
	h := newTestRouter(t, nil)
	registerAndLogin(t, h, "bob")

	tests := []struct {
		name   string
		body   string
		status int
		kind   services.Kind
	}{
		{"malformed json", `{"username":`, http.StatusBadRequest, services.KindInvalidInput},
		{"short password", `{"username":"x","name":"X","email":"x@example.com","password":"123"}`, http.StatusBadRequest, services.KindInvalidInput},
		{"missing fields", `{}`, http.StatusBadRequest, services.KindInvalidInput},
		{"duplicate", `{"username":"bob","name":"B","email":"b@example.com","password":"secret1"}`, http.StatusConflict, services.KindAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(tt.kind), resp.Kind)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestLogin(t *testing.T) {
	h := newTestRouter(t, nil)
	registerAndLogin(t, h, "carol")

	rec := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"carol","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["expires_at"])

	wrong := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"carol","password":"wrong-pass"}`)
	unknown := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"nobody","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	missing := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"carol"}`)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestProfileLifecycle(t *testing.T) {
	h := newTestRouter(t, nil)
	tok := registerAndLogin(t, h, "dave")

	rec := do(t, h, http.MethodGet, "/profile", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile types.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, types.Profile{ID: 1, Username: "dave", Name: "Test User", Email: "dave@example.com"}, profile)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, h, http.MethodPut, "/profile", tok, `{"email":"dave@new.example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"profile updated"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/profile", tok, "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, "dave@new.example.com", profile.Email)
	assert.Equal(t, "Test User", profile.Name)

	rec = do(t, h, http.MethodPut, "/profile", tok, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/profile", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"profile deleted"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/profile", tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(services.KindNotFound), decodeError(t, rec).Kind)
}

func TestDeletedAccountTokenAfterReregistration(t *testing.T) {
	h := newTestRouter(t, nil)
	oldToken := registerAndLogin(t, h, "hana")

	rec := do(t, h, http.MethodDelete, "/profile", oldToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	newToken := registerAndLogin(t, h, "hana")

	rec = do(t, h, http.MethodGet, "/profile", oldToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodPut, "/profile", oldToken, `{"email":"stolen@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/profile", oldToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/profile", newToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile types.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, int64(2), profile.ID)
	assert.Equal(t, "hana@example.com", profile.Email)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/auth/register", "",
		`{"username":"ivy","name":"Ivy","email":"ivy@example.com","password":"`+strings.Repeat("a", 73)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(services.KindInvalidInput), resp.Kind)
	assert.Equal(t, "password must be at most 72 bytes", resp.Message)
}

func TestProfileIgnoresUsernameInBody(t *testing.T) {
	h := newTestRouter(t, nil)
	erinToken := registerAndLogin(t, h, "erin")
	registerAndLogin(t, h, "frank")

	rec := do(t, h, http.MethodPut, "/profile", erinToken, `{"username":"frank","name":"Hijacked"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frankToken := registerAndLoginExisting(t, h, "frank")
	rec = do(t, h, http.MethodGet, "/profile", frankToken, "")
	var profile types.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, "Test User", profile.Name)
}

func registerAndLoginExisting(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"`+username+`","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var session services.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	return session.Token
}

func TestRequireAuth(t *testing.T) {
	h := newTestRouter(t, nil)
	tok := registerAndLogin(t, h, "gina")

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + tok},
		{"no token", "Bearer "},
		{"garbage", "Bearer not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(services.KindUnauthenticated), resp.Kind)
			assert.Equal(t, "invalid or missing token", resp.Message)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRouterAppliesLimit(t *testing.T) {
	var calls int
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	h := newTestRouter(t, limit)

	rec := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"x","password":"y"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = do(t, h, http.MethodPost, "/auth/register", "", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, calls)

	rec = do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[services.Kind]int{
		services.KindInvalidInput:       http.StatusBadRequest,
		services.KindAlreadyExists:      http.StatusConflict,
		services.KindInvalidCredentials: http.StatusUnauthorized,
		services.KindUnauthenticated:    http.StatusUnauthorized,
		services.KindNotFound:           http.StatusNotFound,
		services.KindStoreUnavailable:   http.StatusServiceUnavailable,
		services.KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, statusFor(kind), kind)
	}
}

func TestWriteErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &services.Error{
		Kind:    services.KindStoreUnavailable,
		Message: "storage unavailable",
		Err:     errors.New("dial tcp 10.1.2.3:5432: connection refused"),
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.1.2.3")

	rec = httptest.NewRecorder()
	writeError(rec, errors.New("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"kind":"internal","message":"internal error"}`, rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil))
	req.Header.Set("Authorization", "  BEARER   abc.def.ghi  ")
	tok, err := bearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)
}
