package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tasklist/apiserver/internal/services"
)

// ProfileHandler serves the authenticated user's own profile.
type ProfileHandler struct {
	userService *services.UserService
}

func NewProfileHandler(userService *services.UserService) *ProfileHandler {
	return &ProfileHandler{userService: userService}
}

// ProfileRouter registers profile routes behind authMiddleware.
func ProfileRouter(r chi.Router, userService *services.UserService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewProfileHandler(userService)

	r.Use(authMiddleware)
	r.Get("/", handler.GetProfile)
	r.Put("/", handler.UpdateProfile)
	r.Delete("/", handler.DeleteProfile)
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile applies a partial update; omitted fields keep their value.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.userService.UpdateProfile(r.Context(), who, services.UpdateProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "profile updated"})
}

func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.userService.DeleteProfile(r.Context(), who); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "profile deleted"})
}

func (h *ProfileHandler) identity(w http.ResponseWriter, r *http.Request) (services.Identity, bool) {
	who, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, &services.Error{Kind: services.KindUnauthenticated, Message: "invalid or missing token", Err: err})
		return services.Identity{}, false
	}
	return who, true
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}
