package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpclient"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/lifecycle"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/middleware"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/mirror"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/service"
)

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var httpErr *httpclient.HTTPError
	switch {
	case errors.Is(err, contract.ErrStreamClosed):
		return http.StatusConflict, "stream_closed"
	case errors.Is(err, lifecycle.ErrPending):
		return http.StatusConflict, "transaction_pending"
	case errors.Is(err, lifecycle.ErrFinished):
		return http.StatusConflict, "flow_finished"
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, mirror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidStream), errors.Is(err, discovery.ErrNoSender):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrNoMirror):
		return http.StatusServiceUnavailable, "mirror_unavailable"
	case lifecycle.IsKind(err, lifecycle.KindValidation), lifecycle.IsKind(err, lifecycle.KindUnsupported):
		return http.StatusBadRequest, "validation_error"
	case lifecycle.IsKind(err, lifecycle.KindRejected):
		return http.StatusForbidden, "transaction_rejected"
	case lifecycle.IsKind(err, lifecycle.KindFailed):
		return http.StatusBadGateway, "transaction_failed"
	case lifecycle.IsKind(err, lifecycle.KindQuery):
		return http.StatusBadGateway, "query_failed"
	case lifecycle.IsKind(err, lifecycle.KindNetwork), errors.As(err, &httpErr):
		return http.StatusBadGateway, "chain_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "code", code, "error", err)
	}
	middleware.RespondError(w, r, status, code, err.Error())
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	middleware.RespondError(w, r, http.StatusBadRequest, "bad_request", message)
}

func notFound(w http.ResponseWriter, r *http.Request, message string) {
	middleware.RespondError(w, r, http.StatusNotFound, "not_found", message)
}
