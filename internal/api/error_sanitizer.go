package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
	"github.com/ekklesia/commhub/internal/pkg/logger"
	"github.com/ekklesia/commhub/internal/service/attendance"
	"github.com/ekklesia/commhub/internal/service/communication"
	"github.com/ekklesia/commhub/internal/service/contact"
	"github.com/ekklesia/commhub/internal/service/scenario"
	"github.com/ekklesia/commhub/internal/storage"
)

// errorStatus maps service sentinels to HTTP status codes. Anything not
// listed is a 500.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{phone.ErrInvalidFormat, http.StatusBadRequest, "invalid_phone"},
	{communication.ErrInvalidRecipientGroup, http.StatusBadRequest, "invalid_recipient_group"},
	{communication.ErrValidation, http.StatusBadRequest, "validation"},
	{communication.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider"},
	{communication.ErrChannelNotSupported, http.StatusBadRequest, "channel_not_supported"},
	{communication.ErrNoRecipients, http.StatusUnprocessableEntity, "no_recipients"},
	{contact.ErrValidation, http.StatusBadRequest, "validation"},
	{scenario.ErrValidation, http.StatusBadRequest, "validation"},
	{attendance.ErrValidation, http.StatusBadRequest, "validation"},
	{auth.ErrValidation, http.StatusBadRequest, "validation"},
	{auth.ErrInactiveUser, http.StatusBadRequest, "inactive_user"},

	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},

	{communication.ErrNotFound, http.StatusNotFound, "not_found"},
	{contact.ErrNotFound, http.StatusNotFound, "not_found"},
	{scenario.ErrNotFound, http.StatusNotFound, "not_found"},
	{attendance.ErrNotFound, http.StatusNotFound, "not_found"},
	{attendance.ErrContactNotFound, http.StatusNotFound, "contact_not_found"},
	{storage.ErrNotFound, http.StatusNotFound, "not_found"},

	{communication.ErrAlreadySent, http.StatusConflict, "already_sent"},
	{communication.ErrSendInProgress, http.StatusConflict, "send_in_progress"},
	{scenario.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
	{contact.ErrDuplicatePhone, http.StatusConflict, "duplicate_phone"},
	{attendance.ErrDuplicate, http.StatusConflict, "duplicate_attendance"},
	{auth.ErrEmailTaken, http.StatusConflict, "email_taken"},

	{communication.ErrNoProviderAvailable, http.StatusServiceUnavailable, "sms_unavailable"},
	{contact.ErrArchiveDisabled, http.StatusServiceUnavailable, "archive_disabled"},
}

// respondError writes err with the status its sentinel maps to. 4xx errors
// carry the service message; 5xx errors are logged and replaced with a
// generic message.
func respondError(w http.ResponseWriter, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			if m.status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			httputil.ErrorCode(w, m.status, m.code, err.Error())
			return
		}
	}
	respondSafeError(w, http.StatusInternalServerError, err)
}

// respondSafeError logs the full internal error and sends a sanitized JSON
// error response.
func respondSafeError(w http.ResponseWriter, code int, internalErr error) {
	msg := safeErrorMessage(code, internalErr)
	if internalErr != nil {
		logger.Error("request failed", "status", code, "public", msg, "error", internalErr)
	}
	httputil.Error(w, code, msg)
}

// safeErrorMessage maps common internal error patterns to public-safe messages.
// For 4xx the original message is returned; 5xx never leaks internals.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}

	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "query") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "A database error occurred"

	case strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access denied"):
		return "Access denied"

	default:
		return "An internal error occurred"
	}
}
