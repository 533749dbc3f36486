package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	apperrors "github.com/target/notekeeper/internal/errors"
)

// authStatus maps auth sentinels to HTTP statuses. The wire code comes from
// domainauth.ErrorCode so clients can map it back.
var authStatus = map[string]int{ //nolint:gochecknoglobals // immutable lookup table
	"session_not_found":   http.StatusUnauthorized,
	"invalid_token":       http.StatusUnauthorized,
	"invalid_credentials": http.StatusUnauthorized,
	"email_taken":         http.StatusConflict,
	"email_not_confirmed": http.StatusForbidden,
	"too_many_attempts":   http.StatusTooManyRequests,
}

var appStatus = map[apperrors.ErrorCode]int{ //nolint:gochecknoglobals // immutable lookup table
	apperrors.ErrCodeNotFound:     http.StatusNotFound,
	apperrors.ErrCodeConflict:     http.StatusConflict,
	apperrors.ErrCodeValidation:   http.StatusBadRequest,
	apperrors.ErrCodeForeignKey:   http.StatusConflict,
	apperrors.ErrCodeForbidden:    http.StatusForbidden,
	apperrors.ErrCodeUnauthorized: http.StatusUnauthorized,
	apperrors.ErrCodeRateLimited:  http.StatusTooManyRequests,
	apperrors.ErrCodeInternal:     http.StatusInternalServerError,
	apperrors.ErrCodeTimeout:      http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:     http.StatusRequestTimeout,
}

// DetermineErrorStatus classifies err into an HTTP status and a wire error code.
func DetermineErrorStatus(err error) (int, string) {
	if code := domainauth.ErrorCode(err); code != "" {
		return authStatus[code], code
	}
	if code := apperrors.GetCode(err); code != "" {
		if status, ok := appStatus[code]; ok {
			return status, string(code)
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, string(apperrors.ErrCodeCanceled)
	}
	return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
}

// RenderError writes err as a JSON error envelope. Server errors are logged
// and their details withheld from the client.
func RenderError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, code := DetermineErrorStatus(err)

	var msg string
	switch {
	case domainauth.ErrorCode(err) != "":
		msg = domainauth.ErrorFromCode(code).Error()
	case status >= http.StatusInternalServerError:
		msg = "internal server error"
	default:
		msg = apperrors.Message(err, http.StatusText(status))
	}

	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusGatewayTimeout {
			msg = apperrors.Message(err, "request timed out")
		}
	}

	WriteJSON(w, status, errorEnvelope{Error: code, Message: msg, Field: apperrors.GetField(err)})
}
