// Package httpapi is the JSON boundary of the server: gin routes, the
// success/error envelope, bearer and admin guards, and the auth handlers.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/gin-gonic/gin"
)

// Error codes surfaced to clients.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeSessionInvalid      = "SESSION_INVALID"
	CodeLoginFailed         = "LOGIN_FAILED"
	CodeRegistrationFailed  = "REGISTRATION_FAILED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeNoSession           = "NO_SESSION"
	CodeCannotLogoutSelf    = "CANNOT_LOGOUT_SELF"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Error: &apiError{Code: code, Message: message}})
}

// failRateLimited answers 429 with both the Retry-After header and the
// retry_after field.
func failRateLimited(c *gin.Context, code string, waitSeconds int) {
	c.Header("Retry-After", strconv.Itoa(waitSeconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{Error: &apiError{
		Code:       code,
		Message:    rateLimitMessage(code),
		RetryAfter: waitSeconds,
	}})
}

func rateLimitMessage(code string) string {
	switch code {
	case "ACCOUNT_BANNED":
		return "too many failed attempts, account temporarily locked"
	case "TOO_FREQUENT":
		return "too many attempts, slow down"
	case "IP_RATE_LIMIT":
		return "too many requests from this address"
	default:
		return "too many attempts"
	}
}

// errorStatus maps service errors onto HTTP status and client code. Anything
// unrecognised is a 500 with a generic message.
func errorStatus(err error) (int, string, string) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Code, ve.Message
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeLoginFailed, common.ErrInvalidCredentials.Error()
	case errors.Is(err, common.ErrRegistrationFailed):
		return http.StatusBadRequest, CodeRegistrationFailed, common.ErrRegistrationFailed.Error()
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, CodeInvalidToken, common.ErrInvalidToken.Error()
	case errors.Is(err, common.ErrSessionInvalid):
		return http.StatusUnauthorized, CodeSessionInvalid, common.ErrSessionInvalid.Error()
	case errors.Is(err, common.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, CodeInvalidRefreshToken, common.ErrInvalidRefreshToken.Error()
	case errors.Is(err, common.ErrNoSession):
		return http.StatusBadRequest, CodeNoSession, common.ErrNoSession.Error()
	case errors.Is(err, common.ErrCannotRevokeSelf):
		return http.StatusBadRequest, CodeCannotLogoutSelf, common.ErrCannotRevokeSelf.Error()
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, CodeForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, CodeNotFound, "not found"
	case errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict, CodeConflict, common.ErrVersionConflict.Error()
	default:
		return http.StatusInternalServerError, CodeInternal, "internal server error"
	}
}
