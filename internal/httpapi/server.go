package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/engine"
	"tradedesk/internal/notify"
	"tradedesk/internal/risk"
	"tradedesk/internal/store"
)

// Server serves the trading HTTP API.
type Server struct {
	engine  *engine.Engine
	trades  store.TradeStore
	history store.HistoryStore
	ledger  *risk.Ledger
	hub     *notify.Hub
	log     *slog.Logger
}

// NewServer creates the API server over the given engine and stores.
func NewServer(
	eng *engine.Engine,
	trades store.TradeStore,
	history store.HistoryStore,
	ledger *risk.Ledger,
	hub *notify.Hub,
	log *slog.Logger,
) *Server {
	return &Server{
		engine:  eng,
		trades:  trades,
		history: history,
		ledger:  ledger,
		hub:     hub,
		log:     log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/trades/buy", s.handleBuy)
	mux.HandleFunc("POST /api/trades/sell", s.handleSell)
	mux.HandleFunc("POST /api/trades/adjust", s.handleAdjust)
	mux.HandleFunc("POST /api/trades/stoploss", s.handleStopLoss)
	mux.HandleFunc("POST /api/trades/target", s.handleTarget)
	mux.HandleFunc("POST /api/trades/autoexit", s.handleAutoExit)
	mux.HandleFunc("GET /api/status/{symbol}", s.handleStatus)
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/risk", s.handleRisk)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeResult maps an operation result to an HTTP status: accepted for a
// queued async order, conflict when the symbol is busy, bad request for
// everything else that failed.
func writeResult(w http.ResponseWriter, res domain.Result) {
	status := http.StatusOK
	switch res.Status {
	case domain.StatusProcessing:
		status = http.StatusAccepted
	case domain.StatusError:
		status = http.StatusBadRequest
		if strings.Contains(res.Message, domain.ErrConflict.Error()) {
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, toResult(res))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Order endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.engine.Buy(r.Context(), req.Symbol, req.Quantity))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.engine.Sell(r.Context(), req.Symbol))
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.engine.Adjust(r.Context(), req.Symbol, req.Quantity, req.Direction))
}

func (s *Server) handleStopLoss(w http.ResponseWriter, r *http.Request) {
	var req ParamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.engine.ChangeStopLoss(r.Context(), req.Symbol, req.Value))
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	var req ParamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.engine.ChangeTarget(r.Context(), req.Symbol, req.Value))
}

func (s *Server) handleAutoExit(w http.ResponseWriter, r *http.Request) {
	var req AutoExitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.engine.ToggleAutoExit(r.Context(), req.TradeID, req.Enabled))
}

// ---------------------------------------------------------------------------
// Read endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	op, ok := s.engine.OrderStatus(symbol)
	resp := StatusResponse{Found: ok}
	if ok {
		resp.Operation = &op
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListTrades(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, TradesResponse{Trades: trades})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	hist, err := s.history.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if hist == nil {
		hist = []domain.HistoricalTrade{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Trades: hist})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	pool, err := s.ledger.Pool(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read risk pool")
		return
	}
	writeJSON(w, http.StatusOK, RiskResponse{
		Used:      pool.Used,
		Available: pool.Available,
		Combined:  pool.Used + pool.Available,
	})
}

// ---------------------------------------------------------------------------
// Event stream
// ---------------------------------------------------------------------------

// handleEvents streams trade updates as server-sent events until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, events := s.hub.Subscribe(16)
	defer s.hub.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Heartbeat comments keep idle connections from being reaped by
	// intermediaries.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				s.log.Error("encoding event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
