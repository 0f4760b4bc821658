package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/handlers/middleware"
	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/handlers/userctx"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
	"github.com/nkiryanov/authcore/internal/service/auth"
)

type authService interface {
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Has to return *auth.LockedOutError if locked out
	// and apperrors.ErrInvalidCredentials if username or password is wrong
	Login(ctx context.Context, username string, password string, clientAddr string) (models.TokenPair, error)

	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)
	Logout(ctx context.Context, refresh string) (bool, error)
	LogoutAll(ctx context.Context, subject string) int

	IssueCSRF(subject string) (string, error)

	// Set auth tokens (access, refresh) to response or clear them
	SetTokenPair(w http.ResponseWriter, pair models.TokenPair)
	ClearTokens(w http.ResponseWriter)

	ReadRefresh(r *http.Request) (string, error)
}

type AuthHandler struct {
	authService authService
	logger      logger.Logger
}

func NewAuth(as authService, l logger.Logger) *AuthHandler {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &AuthHandler{authService: as, logger: l}
}

type tokenResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func newTokenResponse(message string, pair models.TokenPair) tokenResponse {
	return tokenResponse{Message: message, AccessToken: pair.Access.Value, ExpiresIn: pair.AccessTTLSeconds()}
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required,min=2,max=50,username"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[credentialsRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Register(r.Context(), data.Login, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			h.logger.Error("Register failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPair(w, pair)
	render.JSON(w, newTokenResponse("User registered successfully", pair))
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Login    string `json:"login" validate:"required,max=50"`
		Password string `json:"password" validate:"required,max=128"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Login(r.Context(), data.Login, data.Password, middleware.ClientAddr(r))
	if err != nil {
		var lockedOut *auth.LockedOutError
		switch {
		case errors.As(err, &lockedOut):
			message := fmt.Sprintf("Too many failed login attempts, try again in %d minutes", lockedOut.Minutes)
			render.RetryLater(w, message, http.StatusTooManyRequests, lockedOut.RetryAfterSeconds())
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid login or password", http.StatusUnauthorized)
		default:
			h.logger.Error("Login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPair(w, pair)
	render.JSON(w, newTokenResponse("User logged in successfully", pair))
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	refresh, err := h.authService.ReadRefresh(r)
	if err != nil {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	pair, err := h.authService.Refresh(r.Context(), refresh)
	if err != nil {
		// Expired, forged and already used tokens look the same to the client
		h.logger.Info("Refresh rejected", "client", middleware.ClientAddr(r), "error", err)
		h.authService.ClearTokens(w)
		render.ServiceError(w, "Refresh token invalid", http.StatusUnauthorized)
		return
	}

	h.authService.SetTokenPair(w, pair)
	render.JSON(w, newTokenResponse("Tokens refreshed successfully", pair))
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutResponse struct {
		Message string `json:"message"`
	}

	refresh, err := h.authService.ReadRefresh(r)
	if err != nil {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	if _, err := h.authService.Logout(r.Context(), refresh); err != nil {
		h.logger.Info("Logout with invalid refresh token", "client", middleware.ClientAddr(r), "error", err)
		render.ServiceError(w, "Refresh token invalid", http.StatusUnauthorized)
		return
	}

	h.authService.ClearTokens(w)
	render.JSON(w, LogoutResponse{Message: "Logged out"})
}

func (h *AuthHandler) logoutAll(w http.ResponseWriter, r *http.Request) {
	type LogoutAllResponse struct {
		Message  string `json:"message"`
		Sessions int    `json:"sessions"`
	}

	subject, _ := userctx.FromContext(r.Context())
	count := h.authService.LogoutAll(r.Context(), subject)

	h.authService.ClearTokens(w)
	render.JSON(w, LogoutAllResponse{Message: "Logged out from all sessions", Sessions: count})
}

func (h *AuthHandler) csrf(w http.ResponseWriter, r *http.Request) {
	type CSRFResponse struct {
		Token string `json:"csrf_token"`
	}

	subject, _ := userctx.FromContext(r.Context())
	token, err := h.authService.IssueCSRF(subject)
	if err != nil {
		h.logger.Error("CSRF token issue failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set(middleware.CSRFHeaderName, token)
	render.JSON(w, CSRFResponse{Token: token})
}
