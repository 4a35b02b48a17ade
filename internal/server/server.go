// Package server exposes the protocol over HTTP: policy configuration,
// split/forward execution, position operations, the account ledger, and a
// WebSocket event stream. Handlers stay thin over the components; caller
// identity comes from the X-Caller-Address header with authn terminated in
// front of the service.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/forwarder"
	"github.com/orbitearn/valence-protocol/internal/observability"
	"github.com/orbitearn/valence-protocol/internal/position"
	"github.com/orbitearn/valence-protocol/internal/splitter"
	"github.com/orbitearn/valence-protocol/internal/storage"
	"github.com/orbitearn/valence-protocol/internal/stream"
)

// CallerHeader carries the caller identity on every authenticated request.
const CallerHeader = "X-Caller-Address"

// ErrNotAccountOwner rejects approval changes from anyone but the account
// owner.
var ErrNotAccountOwner = errors.New("caller is not the account owner")

// ErrNotOwner rejects deposits from anyone but the service owner.
var ErrNotOwner = errors.New("caller is not the owner")

// Server routes HTTP requests to the protocol components.
type Server struct {
	logger    zerolog.Logger
	owner     domain.Address
	processor domain.Address

	splitter  *splitter.Engine
	forwarder *forwarder.Engine
	positions *position.Registry
	ledger    storage.LedgerStore
	policies  storage.PolicyStore
	hub       *stream.Hub
	metrics   *observability.Metrics

	startedAt time.Time

	mu             sync.Mutex
	splitRuns      int
	forwardRuns    int
	lastSplitRun   int64
	lastForwardRun int64
}

// Options for creating a Server.
type Options struct {
	Logger    zerolog.Logger
	Owner     domain.Address // may deposit into accounts
	Processor domain.Address // identity used by the schedulers

	Splitter  *splitter.Engine
	Forwarder *forwarder.Engine
	Positions *position.Registry
	Ledger    storage.LedgerStore
	Policies  storage.PolicyStore

	Hub     *stream.Hub            // nil disables /ws/events
	Metrics *observability.Metrics // nil disables
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{
		logger:    opts.Logger,
		owner:     opts.Owner,
		processor: opts.Processor,
		splitter:  opts.Splitter,
		forwarder: opts.Forwarder,
		positions: opts.Positions,
		ledger:    opts.Ledger,
		policies:  opts.Policies,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		startedAt: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "GET /health", s.handleHealth)
	s.route(mux, "GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	s.route(mux, "POST /v1/splitter/config", s.handleSplitterUpdateConfig)
	s.route(mux, "GET /v1/splitter/config", s.handleSplitterGetConfig)
	s.route(mux, "GET /v1/splitter/aggregates", s.handleSplitterAggregates)
	s.route(mux, "POST /v1/splitter/split", s.handleSplit)
	s.route(mux, "GET /v1/splitter/plan", s.handlePlan)

	s.route(mux, "POST /v1/forwarder/config", s.handleForwarderUpdateConfig)
	s.route(mux, "GET /v1/forwarder/config", s.handleForwarderGetConfig)
	s.route(mux, "POST /v1/forwarder/forward", s.handleForward)

	s.route(mux, "POST /v1/positions/execute", s.handlePositionExecute)

	s.route(mux, "POST /v1/accounts", s.handleCreateAccount)
	s.route(mux, "POST /v1/accounts/{addr}/approve", s.handleApprove)
	s.route(mux, "POST /v1/accounts/{addr}/deposit", s.handleDeposit)
	s.route(mux, "GET /v1/accounts/{addr}/balances", s.handleBalances)

	// The stream handler hijacks the connection, so it stays outside the
	// instrumentation wrapper.
	if s.hub != nil {
		mux.Handle("GET /ws/events", s.hub)
	}

	return mux
}

// route registers a handler with per-route request metrics.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		s.metrics.RecordHTTPRequest(pattern, strconv.Itoa(sw.status), time.Since(start).Seconds())
	})
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := statusResponse{
		Status:         "running",
		Uptime:         time.Since(s.startedAt).String(),
		StartedAt:      s.startedAt.UnixMilli(),
		SplitRuns:      s.splitRuns,
		ForwardRuns:    s.forwardRuns,
		LastSplitRun:   s.lastSplitRun,
		LastForwardRun: s.lastForwardRun,
	}
	s.mu.Unlock()

	if s.hub != nil {
		resp.StreamClients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) noteSplitRun() {
	s.mu.Lock()
	s.splitRuns++
	s.lastSplitRun = time.Now().UnixMilli()
	s.mu.Unlock()
}

func (s *Server) noteForwardRun() {
	s.mu.Lock()
	s.forwardRuns++
	s.lastForwardRun = time.Now().UnixMilli()
	s.mu.Unlock()
}

// caller extracts the caller identity. A missing or malformed header writes
// a 401 and reports false.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: fmt.Sprintf("missing %s header", CallerHeader)})
		return domain.Address{}, false
	}
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: fmt.Sprintf("invalid %s header: %v", CallerHeader, err)})
		return domain.Address{}, false
	}
	return addr, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeError maps component errors onto HTTP statuses. Unknown errors are
// treated as internal and logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// rejectionErrors are well-formed requests the components refuse; they map
// to 400.
var rejectionErrors = []error{
	splitter.ErrNoPolicy,
	splitter.ErrNoInputAccount,
	splitter.ErrNoOutputAccount,
	splitter.ErrInvalidSplitType,
	splitter.ErrDuplicateSplit,
	splitter.ErrZeroAmount,
	splitter.ErrZeroRatio,
	splitter.ErrRatioSum,
	splitter.ErrMixedSplitTypes,
	splitter.ErrOracleNotContract,
	splitter.ErrRatioExceedsMax,
	forwarder.ErrNoPolicy,
	forwarder.ErrNoInputAccount,
	forwarder.ErrNoOutputAccount,
	forwarder.ErrZeroAmount,
	forwarder.ErrDuplicateToken,
	forwarder.ErrNegativeInterval,
	position.ErrUnknownVenue,
	position.ErrUnsupportedOp,
	position.ErrInvalidOp,
	position.ErrZeroAmount,
	position.ErrNoToken,
	position.ErrNoInputAccount,
	position.ErrNoOutputAccount,
	storage.ErrInvalidInput,
}

func statusFromError(err error) int {
	for _, sentinel := range rejectionErrors {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, splitter.ErrNotOwner),
		errors.Is(err, splitter.ErrNotProcessor),
		errors.Is(err, forwarder.ErrNotOwner),
		errors.Is(err, forwarder.ErrNotProcessor),
		errors.Is(err, position.ErrNotProcessor),
		errors.Is(err, ErrNotAccountOwner),
		errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, splitter.ErrSplitInProgress),
		errors.Is(err, forwarder.ErrForwardInProgress):
		return http.StatusConflict
	case errors.Is(err, forwarder.ErrIntervalNotElapsed):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrInsufficientFunds),
		errors.Is(err, storage.ErrNotApproved):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
