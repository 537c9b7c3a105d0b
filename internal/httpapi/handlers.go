package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/console"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/model"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/service"
)

type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"wallet_connected": h.svc.Wallet().Connected,
		"watching":         h.svc.Watching(),
	})
}

// GET /v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"agents": h.svc.Agents()})
}

// POST /v1/agents/{id}/toggle
func (h *Handlers) ToggleAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.ToggleAgent(r.PathValue("id"))
	if err != nil {
		notFound(w, r, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// GET /v1/console?type={A2A|x402|SYSTEM}&q={text}&limit={n}
func (h *Handlers) Console(w http.ResponseWriter, r *http.Request) {
	q := console.Query{
		Type:   console.LineType(r.URL.Query().Get("type")),
		Search: r.URL.Query().Get("q"),
		Limit:  queryInt(r, "limit", 0),
	}
	respondJSON(w, http.StatusOK, map[string]any{"lines": h.svc.Console(q)})
}

// GET /v1/notifications
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"notifications": h.svc.Notifications()})
}

// DELETE /v1/notifications/{id}
func (h *Handlers) DismissNotification(w http.ResponseWriter, r *http.Request) {
	if !h.svc.DismissNotification(r.PathValue("id")) {
		notFound(w, r, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/wallet
func (h *Handlers) Wallet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Wallet())
}

// POST /v1/deposits
func (h *Handlers) StartDeposit(w http.ResponseWriter, r *http.Request) {
	var req model.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	f, err := h.svc.StartDeposit(req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, f)
}

// GET /v1/deposits/duration?amount={a}&rate={r}
func (h *Handlers) Duration(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Duration(r.URL.Query().Get("amount"), r.URL.Query().Get("rate")))
}

// GET /v1/deposits/{id}
func (h *Handlers) GetDeposit(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Deposit(r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

// DELETE /v1/deposits/{id}
func (h *Handlers) DismissDeposit(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DismissDeposit(r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/streams?refresh=1&watch=1
func (h *Handlers) ListStreams(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "watch") {
		h.svc.StartWatch()
	}
	list, err := h.svc.Streams(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// POST /v1/streams/refresh replays the event log into the cache.
func (h *Handlers) RefreshStreams(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Streams(r.Context(), true)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// DELETE /v1/streams/watch closes the withdrawal view.
func (h *Handlers) StopWatch(w http.ResponseWriter, r *http.Request) {
	h.svc.StopWatch()
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/streams/{id}
func (h *Handlers) GetStream(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stream(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// POST /v1/streams/{id}/withdraw
func (h *Handlers) StartWithdraw(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.StartWithdraw(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, f)
}

// GET /v1/streams/{id}/withdraw
func (h *Handlers) GetWithdraw(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Withdrawal(r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

// DELETE /v1/streams/{id}/withdraw
func (h *Handlers) DismissWithdraw(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DismissWithdraw(r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/streams/{id}/push
func (h *Handlers) PushPayments(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.PushPayments(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

// POST /v1/streams/{id}/close
func (h *Handlers) CloseStream(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CloseStream(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

// GET /v1/rate?refresh=1
func (h *Handlers) Rate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.svc.Rate(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rate)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
