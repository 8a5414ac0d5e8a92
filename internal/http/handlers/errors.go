package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// writeError maps an error kind to a status. Unknown errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *auth.ConflictError
	switch {
	case errors.As(err, &conflict):
		respond.Fail(w, http.StatusConflict, respond.KindConflict, conflict.Error(), map[string]string{
			"field": conflict.Field,
			"value": conflict.Value,
		})
	case errors.Is(err, auth.ErrConflict), errors.Is(err, storage.ErrAlreadyExists):
		respond.Error(w, http.StatusConflict, "record already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respond.Fail(w, http.StatusUnauthorized, respond.KindInvalidCredentials, "invalid credentials", nil)
	case errors.Is(err, auth.ErrExpired):
		respond.Fail(w, http.StatusUnauthorized, respond.KindTokenExpired, "token expired", nil)
	case errors.Is(err, auth.ErrUnauthorized):
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		respond.Error(w, http.StatusForbidden, "not allowed to modify this record")
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrMalformed):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		logger.From(r.Context()).Error("request failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// writeTokenError is writeError for endpoints taking a token in the body, where a
// malformed token is an authentication failure rather than bad input.
func writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrMalformed) {
		respond.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeError(w, r, err)
}
