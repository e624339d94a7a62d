package web

// errors.go turns service errors into JSON responses.
//
// The technical error is logged with the request id; the client gets the
// mapped user message and code from core.MapError. The HTTP status comes
// from the error kind:
//
//	validation        400 (413 for oversized uploads)
//	not found         404
//	invalid state     409
//	duplicate key     409
//	too many ingests  429, Retry-After
//	upstream          503, Retry-After
//	deadline          504
//	anything else     500

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/logging"
)

const retryAfterSeconds = 5

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

func newErrorResponse(err error) ErrorResponse {
	msg := core.MapError(err)
	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
		resp.Error = ve.Error()
	}
	var se *core.InvalidStateError
	if errors.As(err, &se) {
		resp.Error = se.Error()
	}
	return resp
}

// respondError logs err and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := newErrorResponse(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", resp.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, r, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		if core.MapError(err).Code == "FILE001" {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyIngests):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
