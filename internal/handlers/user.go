package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/handlers/userctx"
	"github.com/nkiryanov/authcore/internal/models"
)

type userGetter interface {
	// Has to return apperrors.ErrUserNotFound if there is no user with the subject
	GetUser(ctx context.Context, subject string) (models.User, error)
}

func handleUserMe(users userGetter) http.Handler {
	type response struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ := userctx.FromContext(r.Context())

		user, err := users.GetUser(r.Context(), subject)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{ID: user.ID, Username: user.Username})
	})
}
