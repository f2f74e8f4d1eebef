// Package apierror turns service errors into the JSON error body of the /v1 API:
// {"error":{"code":"auth/...","message":"..."}}.
package apierror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/captcha"
	"github.com/rightvendors/portfolyze/internal/contact"
	identityservice "github.com/rightvendors/portfolyze/internal/identity/service"
)

// Codes used for failures that have no provider equivalent.
const (
	CodeArgumentError      = "auth/argument-error"
	CodeInvalidDisplayName = "auth/invalid-display-name"
	CodeInvalidContact     = "contact/invalid-argument"
	CodeNotFound           = "not-found"
)

// Error is an API error with its HTTP status.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// New returns an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// BadRequest is returned by handlers for undecodable or incomplete bodies.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeArgumentError, message)
}

type mapping struct {
	target error
	status int
	code   string
}

var table = []mapping{
	{identityservice.ErrMissingPhone, http.StatusBadRequest, auth.CodeMissingPhoneNumber},
	{identityservice.ErrInvalidPhone, http.StatusBadRequest, auth.CodeInvalidPhoneNumber},
	{identityservice.ErrCaptchaCheckFailed, http.StatusBadRequest, auth.CodeCaptchaCheckFailed},
	{captcha.ErrCheckFailed, http.StatusBadRequest, auth.CodeCaptchaCheckFailed},
	{captcha.ErrUnknownWidget, http.StatusNotFound, auth.CodeCaptchaCheckFailed},
	{captcha.ErrContainerRequired, http.StatusBadRequest, auth.CodeMissingAppCredential},
	{identityservice.ErrTooManyRequests, http.StatusTooManyRequests, auth.CodeTooManyRequests},
	{identityservice.ErrSMSDelivery, http.StatusBadGateway, auth.CodeInternalError},
	{identityservice.ErrMissingCode, http.StatusBadRequest, auth.CodeMissingVerificationCode},
	{identityservice.ErrInvalidCode, http.StatusBadRequest, auth.CodeInvalidVerificationCode},
	{identityservice.ErrCodeExpired, http.StatusBadRequest, auth.CodeCodeExpired},
	{identityservice.ErrInvalidRefreshToken, http.StatusUnauthorized, auth.CodeUserTokenExpired},
	{identityservice.ErrRefreshTokenReuse, http.StatusUnauthorized, auth.CodeUserTokenExpired},
	{identityservice.ErrUnauthenticated, http.StatusUnauthorized, auth.CodeUserTokenExpired},
	{identityservice.ErrInvalidDisplayName, http.StatusBadRequest, CodeInvalidDisplayName},
	{contact.ErrInvalidMessage, http.StatusBadRequest, CodeInvalidContact},
}

// FromError maps err to an API error. Unknown errors become 500 auth/internal-error with a generic message.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range table {
		if errors.Is(err, m.target) {
			return New(m.status, m.code, m.target.Error())
		}
	}
	var validation *contact.ValidationError
	if errors.As(err, &validation) {
		return New(http.StatusBadRequest, CodeInvalidContact, validation.Error())
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := CodeArgumentError
		switch {
		case he.Code == http.StatusNotFound:
			code = CodeNotFound
		case he.Code == http.StatusUnauthorized:
			code = auth.CodeUserTokenExpired
		case he.Code == http.StatusTooManyRequests:
			code = auth.CodeTooManyRequests
		case he.Code >= http.StatusInternalServerError:
			code = auth.CodeInternalError
		}
		return New(he.Code, code, http.StatusText(he.Code))
	}
	return New(http.StatusInternalServerError, auth.CodeInternalError, "internal error")
}

// Handler returns an echo.HTTPErrorHandler writing mapped errors. 5xx errors are logged.
func Handler(logger *zap.Logger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		apiErr := FromError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Error(err))
		}
		body := map[string]*Error{"error": apiErr}
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(apiErr.Status)
		} else {
			writeErr = c.JSON(apiErr.Status, body)
		}
		if writeErr != nil {
			logger.Warn("write error response", zap.Error(writeErr))
		}
	}
}
