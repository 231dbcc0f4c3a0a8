package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

// StatusFor maps a service error to a status code and the message shown to
// the caller. The message never carries the underlying error text.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, nodex.ErrInvalidMessage):
		return http.StatusBadRequest, "messages must not be empty"
	case errors.Is(err, nodex.ErrInvalidThread), errors.Is(err, statex.ErrInvalidThread):
		return http.StatusBadRequest, "thread_id must not be empty"
	case errors.Is(err, statex.ErrInvalidIdentity):
		return http.StatusBadRequest, "id_number must be a positive number"
	case errors.Is(err, statex.ErrIdentityMismatch):
		return http.StatusForbidden, "thread belongs to another patient"
	case errors.Is(err, statex.ErrStateNotFound):
		return http.StatusNotFound, "thread not found"
	case errors.Is(err, contractx.ErrModelInvoke), errors.Is(err, contractx.ErrSchemaViolation):
		return http.StatusBadGateway, "the assistant is unavailable, please try again"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "the assistant took too long to answer"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := StatusFor(err)
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: msg})
}
