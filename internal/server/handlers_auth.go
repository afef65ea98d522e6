package server

import (
	"errors"
	"net/http"

	"github.com/tasuku-ai/tasuku/internal/auth"
	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/storage"
)

// HandleSignup handles POST /auth/signup.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateEmail(req.Email); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if len(req.Password) < auth.MinPasswordLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash password", err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeError(w, r, http.StatusConflict, model.ErrCodeInvalidInput, "email is already registered")
			return
		}
		h.writeInternalError(w, r, "failed to create user", err)
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user.ID, user.Email)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	h.logger.Info("user signed up", "user_id", user.ID)
	writeJSON(w, r, http.StatusCreated, model.TokenResponse{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	})
}

// HandleLogin handles POST /auth/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn the same time as a real verification so a timing
			// probe cannot distinguish unknown emails.
			auth.DummyVerify()
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.writeInternalError(w, r, "failed to look up user", err)
		return
	}

	valid, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user.ID, user.Email)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.TokenResponse{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	})
}
