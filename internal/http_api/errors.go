package http_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockvn/paygate/internal/xerrors"
)

var kindStatus = map[xerrors.Kind]int{
	xerrors.KindInvalidInput:        http.StatusBadRequest,
	xerrors.KindUnauthorized:        http.StatusUnauthorized,
	xerrors.KindNotFound:            http.StatusNotFound,
	xerrors.KindInvalidState:        http.StatusBadRequest,
	xerrors.KindInsufficientFunds:   http.StatusBadRequest,
	xerrors.KindAmountMismatch:      http.StatusConflict,
	xerrors.KindExpired:             http.StatusGone,
	xerrors.KindAlreadyProcessed:    http.StatusOK,
	xerrors.KindUpstreamUnavailable: http.StatusBadGateway,
	xerrors.KindMalformedEvent:      http.StatusBadRequest,
	xerrors.KindInternal:            http.StatusInternalServerError,
}

// fail writes err as a JSON error body with a status derived from its kind.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	kind := xerrors.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := gin.H{
		"success": false,
		"code":    string(kind),
		"error":   err.Error(),
	}

	var insufficient *xerrors.InsufficientFundsError
	var transition *xerrors.InvalidTransitionError
	var classified *xerrors.Error
	switch {
	case errors.As(err, &insufficient):
		for k, v := range insufficient.Body() {
			body[k] = v
		}
	case errors.As(err, &transition):
		body["current_status"] = transition.From
	case errors.As(err, &classified) && len(classified.Details) > 0:
		body["details"] = classified.Details
	}
	if kind == xerrors.KindUpstreamUnavailable {
		body["retriable"] = true
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "request_id", c.GetString(ctxRequestID), "method", c.Request.Method,
			"path", c.FullPath(), "user_id", c.GetString(ctxUserID), "error", err)
		if kind == xerrors.KindInternal {
			body["error"] = "Internal server error"
		}
	} else {
		s.logger.Debug("Request rejected", "request_id", c.GetString(ctxRequestID), "kind", kind, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}
