package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gagyebu/internal/auth"
	"gagyebu/internal/broker"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/repository"
	"gagyebu/internal/services"
	"gagyebu/internal/store"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes returned alongside the HTTP status.
const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeValidation   = "validation_failed"
	CodeRateLimited  = "rate_limited"
	CodeUpstream     = "upstream_error"
	CodeInternal     = "internal_error"
)

var errBadRequest = errors.New("malformed request")

var validationErrors = []error{
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrInvalidDayOfMonth,
	core.ErrInvalidType,
	core.ErrMissingOwner,
	core.ErrEmptyName,
	core.ErrEmptyCategory,
	core.ErrEmptyTitle,
	core.ErrInvalidEmail,
	core.ErrSelfInvitation,
	auth.ErrWeakPassword,
	broker.ErrInvalidAccount,
	services.ErrMissingCredentials,
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest), errors.As(err, &maxBytes):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, store.ErrForeignOwner), errors.Is(err, core.ErrEmailMismatch):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, core.ErrInvitationNotFound),
		errors.Is(err, services.ErrNotConnected):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, core.ErrAlreadyLinked),
		errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, CodeConflict
	case broker.IsUpstream(err):
		return http.StatusBadGateway, CodeUpstream
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, CodeValidation
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeError reports err to the client. Server-side failures are logged
// and their detail is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		errorType := applog.ErrorTypeInternal
		if status == http.StatusBadGateway {
			errorType = applog.ErrorTypeUpstream
			msg = "broker request failed"
		} else {
			msg = "internal server error"
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, errorType,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
	}
	writeErrorCode(w, status, code, msg)
}
