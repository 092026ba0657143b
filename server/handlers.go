package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sig-0/fxcache/rates"
	"github.com/sig-0/fxcache/router"
	"github.com/sig-0/fxcache/session"
)

// maxMessageSize caps the message body size, in bytes
const maxMessageSize = 64 << 10

// requestIDHeader carries the ID of the dispatched message
const requestIDHeader = "X-Request-Id"

var errInvalidMessage = errors.New("invalid message body")

// HandleMessage dispatches a single protocol message, and answers
// once its response is available
func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req router.Request

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidMessage)

		return
	}

	pending := s.dispatcher.Dispatch(r.Context(), req)
	w.Header().Set(requestIDHeader, pending.ID().String())

	res, err := pending.Wait(r.Context())
	if err != nil {
		status := statusFor(err)

		s.logger.Debug(
			"message failed",
			"greeting", string(req.Greeting),
			"id", pending.ID().String(),
			"status", status,
			"err", err,
		)

		writeError(w, status, err)

		return
	}

	writeJSON(w, http.StatusOK, res)
}

// statusFor maps a router error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrUnknownTag),
		errors.Is(err, router.ErrMissingField),
		errors.Is(err, session.ErrInvalidIndex),
		errors.Is(err, session.ErrInvalidCurrency),
		errors.Is(err, session.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, rates.ErrProviderFetch),
		errors.Is(err, rates.ErrMissingRate):
		return http.StatusBadGateway
	case errors.Is(err, router.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
