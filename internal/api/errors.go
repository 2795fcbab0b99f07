package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/otpchat/internal/auth"
	"github.com/wuwenbin0122/otpchat/internal/chat"
)

const (
	kindBadRequest      = "bad_request"
	kindNotFound        = "not_found"
	kindUnauthorized    = "unauthorized"
	kindUnauthenticated = "unauthenticated"
	kindTokenInvalid    = "token_invalid"
	kindOTPMismatch     = "otp_mismatch"
	kindDeliveryFailed  = "delivery_failed"
	kindServerError     = "server_error"
)

var (
	errMissingFields = errors.New("required fields missing")
	errNoSession     = errors.New("missing bearer token")
)

// writeServiceError classifies err from the auth and chat services. fallback
// is the message shown for anything unclassified.
func (h *Handler) writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrEmailRequired):
		h.writeError(c, http.StatusBadRequest, kindBadRequest, err.Error(), err)
	case errors.Is(err, chat.ErrChatNotFound):
		h.writeError(c, http.StatusNotFound, kindNotFound, "chat not found", err)
	case errors.Is(err, chat.ErrNotOwner):
		h.writeError(c, http.StatusForbidden, kindUnauthorized, "you are not allowed to modify this chat", err)
	case errors.Is(err, auth.ErrTokenInvalid):
		h.writeError(c, http.StatusUnauthorized, kindTokenInvalid, "verification token is invalid or expired, please log in again", err)
	case errors.Is(err, auth.ErrOTPMismatch):
		h.writeError(c, http.StatusBadRequest, kindOTPMismatch, "wrong verification code", err)
	case errors.Is(err, auth.ErrDelivery):
		h.writeError(c, http.StatusBadGateway, kindDeliveryFailed, "could not send verification email, please try again", err)
	default:
		h.writeError(c, http.StatusInternalServerError, kindServerError, fallback, err)
	}
}

// writeError logs err and renders it. Only bad requests echo err back;
// upstream and store failures stay in the log.
func (h *Handler) writeError(c *gin.Context, status int, kind, message string, err error) {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("kind", kind),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Info(message, fields...)
	}

	body := gin.H{
		"error": message,
		"kind":  kind,
	}
	if kind == kindBadRequest && err != nil {
		body["details"] = err.Error()
	}

	c.AbortWithStatusJSON(status, body)
}
