package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/otpless-auth/otpless/internal/auth"
	"github.com/otpless-auth/otpless/internal/identity"
)

type errorResponse struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:           "INVALID_REQUEST",
	http.StatusUnauthorized:         "UNAUTHORIZED",
	http.StatusForbidden:            "UNAUTHORIZED",
	http.StatusNotFound:             "NOT_FOUND",
	http.StatusMethodNotAllowed:     "INVALID_REQUEST",
	http.StatusConflict:             "CONFLICT",
	http.StatusUnsupportedMediaType: "INVALID_REQUEST",
	http.StatusUpgradeRequired:      "INVALID_REQUEST",
	http.StatusBadGateway:           "UPSTREAM_FAILURE",
	http.StatusServiceUnavailable:   "UNAVAILABLE",
}

// classify maps an error returned by a handler to a status, an opaque code
// and a client-safe message.
func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidRefresh):
		return http.StatusUnauthorized, errorResponse{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "unauthorized"}
	case errors.Is(err, auth.ErrInvalidPhone), errors.Is(err, identity.ErrInvalidPhone):
		return http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid phone number"}
	case errors.Is(err, auth.ErrNotifyFailed):
		return http.StatusBadGateway, errorResponse{Code: "UPSTREAM_FAILURE", Message: "could not send confirmation"}
	case errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "user not found"}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, ok := statusCodes[fe.Code]
		if !ok {
			if fe.Code < http.StatusInternalServerError {
				code = "INVALID_REQUEST"
			} else {
				code = "INTERNAL"
			}
		}
		return fe.Code, errorResponse{Code: code, Message: fe.Message}
	}
	return http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"}
}

// ErrorHandler renders every handler error as {"error_code", "message"}.
// Unclassified errors are logged and reported as INTERNAL without detail.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}
