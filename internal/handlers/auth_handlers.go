package handlers

import (
	"net/http"

	"plainchat/internal/auth"
	"plainchat/internal/models"
	"plainchat/pkg/logger"
)

type AuthHandlers struct {
	authService *auth.Service
}

func NewAuthHandlers(authService *auth.Service) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserPayload
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.authService.Register(r.Context(), &req); err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("Registered user %s", req.Username)
	writeJSON(w, http.StatusOK, nil)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserPayload
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandlers) Current(w http.ResponseWriter, r *http.Request) {
	name, err := h.authService.CurrentUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, name)
}

func (h *AuthHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UserUpdatePayload
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	response, err := h.authService.Update(r.Context(), userID(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := h.authService.Delete(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("Deleted user %s", name)
	writeJSON(w, http.StatusOK, name)
}
