package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"nftylend/core/events"
	"nftylend/observability"
	"nftylend/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

// ServerConfig carries the transport knobs.
type ServerConfig struct {
	// JWTSecret enables HS256 bearer auth on mutating methods when set.
	JWTSecret string
	// RateLimitPerSecond and RateLimitBurst bound per-client request rates.
	RateLimitPerSecond int
	RateLimitBurst     int
}

// Server is the JSON-RPC 2.0 transport over the lending and bank modules,
// plus the websocket event stream consumed by external indexers.
type Server struct {
	log     *slog.Logger
	lending *modules.LendingModule
	bank    *modules.BankModule
	events  *events.Log

	jwtSecret []byte
	limit     rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	handlers map[string]rpcHandler
}

type rpcHandler struct {
	mutating bool
	fn       func(params []json.RawMessage) (interface{}, *modules.ModuleError)
}

// NewServer wires the modules and event log into a transport.
func NewServer(log *slog.Logger, lendingModule *modules.LendingModule, bankModule *modules.BankModule, eventLog *events.Log, cfg ServerConfig) *Server {
	if log == nil {
		log = slog.Default()
	}
	perSecond := cfg.RateLimitPerSecond
	if perSecond <= 0 {
		perSecond = 50
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = perSecond * 2
	}
	s := &Server{
		log:       log,
		lending:   lendingModule,
		bank:      bankModule,
		events:    eventLog,
		jwtSecret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
	s.registerHandlers()
	return s
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/", s.handleRPC)
	r.Get("/ws/events", s.handleEventsWS)
	return r
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			"requestId", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote", clientIP(r),
			"durationMs", time.Since(start).Milliseconds(),
		)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(r *http.Request) bool {
	id := clientIP(r)
	s.mu.Lock()
	limiter, ok := s.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[id] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// authorize validates the bearer token on mutating methods. Auth is disabled
// when no secret is configured.
func (s *Server) authorize(r *http.Request) *modules.ModuleError {
	if len(s.jwtSecret) == 0 {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return &modules.ModuleError{HTTPStatus: http.StatusUnauthorized, Code: modules.CodeUnauthorized, Message: "missing bearer token"}
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return &modules.ModuleError{HTTPStatus: http.StatusUnauthorized, Code: modules.CodeUnauthorized, Message: "invalid token"}
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, modules.CodeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, modules.CodeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, modules.CodeParseError, "invalid JSON payload", nil)
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, modules.CodeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, modules.CodeMethodNotFound, "method not found", nil)
		return
	}
	if handler.mutating {
		if modErr := s.authorize(r); modErr != nil {
			writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
			return
		}
	}

	start := time.Now()
	result, modErr := handler.fn(req.Params)
	status := http.StatusOK
	if modErr != nil {
		status = modErr.HTTPStatus
	}
	observability.ModuleMetrics().Observe(req.Method, status, time.Since(start))
	if modErr != nil {
		s.log.Warn("rpc call failed", "method", req.Method, "status", status, "error", modErr.Message)
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}
