package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/multikey"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	"github.com/router-for-me/ChannelConsole/internal/session"
	"github.com/router-for-me/ChannelConsole/internal/tagedit"
	"github.com/router-for-me/ChannelConsole/internal/twofa"
	log "github.com/sirupsen/logrus"
)

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var verr *channel.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case newapi.IsAPIError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrSubmitInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrKeyRequired),
		errors.Is(err, session.ErrCodeRequired),
		errors.Is(err, session.ErrNotStored),
		errors.Is(err, channel.ErrUnknownField),
		errors.Is(err, channel.ErrInvalidValue),
		errors.Is(err, channel.ErrNothingPending),
		errors.Is(err, channel.ErrKeyFilesNotAccepted),
		errors.Is(err, channel.ErrModeTransition),
		errors.Is(err, multikey.ErrInvalidStatus),
		errors.Is(err, tagedit.ErrNoChanges),
		errors.Is(err, tagedit.ErrTagMissing):
		return http.StatusBadRequest
	case errors.Is(err, twofa.ErrCodeFormat),
		errors.Is(err, twofa.ErrNotSetup),
		errors.Is(err, twofa.ErrNotEnabled),
		errors.Is(err, twofa.ErrAlreadyEnabled):
		return http.StatusBadRequest
	case errors.Is(err, twofa.ErrInvalidCode):
		return http.StatusUnauthorized
	case errors.Is(err, twofa.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, twofa.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrFetchModels),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// upstreamStatus is errorStatus for calls that reach the gateway: anything
// that is not a known domain error is a transport failure.
func upstreamStatus(err error) int {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return status
}

// respondError writes err as {"error": message}.
func respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Warn("admin request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondUpstreamError writes an error from a call that reached the gateway.
// Upstream rejections carry the server message verbatim, or the request
// line when the server sent none.
func respondUpstreamError(c *gin.Context, err error) {
	var apiErr *newapi.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": apiErr.Error()})
		return
	}
	respondError(c, upstreamStatus(err), err)
}

// adminIDFrom returns the authenticated admin id set by the auth middleware.
func adminIDFrom(c *gin.Context) uint64 {
	v, ok := c.Get("adminID")
	if !ok {
		return 0
	}
	id, _ := v.(uint64)
	return id
}
