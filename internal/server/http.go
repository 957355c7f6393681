package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/series/tps", s.handleTPS)
	mux.HandleFunc("GET /v1/series/error-rate", s.handleErrorRate)
	mux.HandleFunc("GET /v1/transactions", s.handleTransactions)
	mux.HandleFunc("GET /v1/transactions/{hash}", s.handleTransaction)
	mux.HandleFunc("POST /v1/spammer/start", s.handleStart)
	mux.HandleFunc("POST /v1/spammer/stop", s.handleStop)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := s.src.Stats()
	resp := client.StatusResponse{
		Running:      s.src.Running(),
		Connection:   s.src.ConnStatus(),
		State:        s.src.ConnStatus().String(),
		Events:       stats.Events,
		Transactions: stats.Transactions,
		LastID:       stats.LastID,
		StateEchoes:  stats.StateEchoes,
	}
	if len(stats.ByKind) > 0 {
		resp.ByKind = make(map[string]int, len(stats.ByKind))
		for k, n := range stats.ByKind {
			resp.ByKind[k.String()] = n
		}
	}
	if s.link != nil {
		resp.State = s.link.State().String()
		resp.Session = s.link.SessionID()
	}
	if sum, ok := s.src.LastMetric(); ok {
		resp.LastMetric = &sum
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshot handles GET /v1/snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.Build(s.src, s.now()))
}

func (s *Server) handleTPS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.TPSSeries(s.src))
}

func (s *Server) handleErrorRate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.ErrorRateSeries(s.src))
}

// handleTransactions handles GET /v1/transactions?limit=N.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	txs := view.TransactionLog(s.src)
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	writeJSON(w, http.StatusOK, txs)
}

// handleTransaction handles GET /v1/transactions/{hash}.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	tx, ok := s.src.Transaction(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "transaction "+hash+" not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.request(w, "start", s.ctl.RequestStart)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.request(w, "stop", s.ctl.RequestStop)
}

// request forwards a command. The response only acknowledges the request;
// the run state changes when the spammer echoes it.
func (s *Server) request(w http.ResponseWriter, name string, send func() error) {
	if s.src.ConnStatus() != model.Connected {
		writeError(w, http.StatusServiceUnavailable, "spammer not connected")
		return
	}
	if err := send(); err != nil {
		s.logger.Error("forwarding command", "command", name, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("command forwarded", "command", name)
	writeJSON(w, http.StatusAccepted, map[string]string{"requested": name})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
