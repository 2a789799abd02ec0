package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orderchain/core"
	"orderchain/observability"
	"orderchain/observability/logging"
)

const (
	jsonRPCVersion      = "2.0"
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	shutdownTimeout     = 10 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// ServerConfig controls the HTTP surface of the node.
type ServerConfig struct {
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// RateLimitPerSec caps requests per client source. Zero disables it.
	RateLimitPerSec float64
	RateLimitBurst  int
	// Proxy headers are only honoured for peers listed in TrustedProxies.
	TrustProxyHeaders bool
	TrustedProxies    []string

	Operator OperatorAuth
}

type Server struct {
	node    *core.Node
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *sourceLimiter
	auth    *operatorAuthenticator
	trusted map[string]struct{}
}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	trusted := make(map[string]struct{}, len(cfg.TrustedProxies))
	for _, proxy := range cfg.TrustedProxies {
		ip := net.ParseIP(strings.TrimSpace(proxy))
		if ip == nil {
			return nil, fmt.Errorf("rpc: invalid trusted proxy %q", proxy)
		}
		trusted[ip.String()] = struct{}{}
	}
	return &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger.With("component", "rpc"),
		limiter: newSourceLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		auth:    newOperatorAuthenticator(cfg.Operator),
		trusted: trusted,
	}, nil
}

// Handler returns the instrumented HTTP handler serving JSON-RPC, the event
// websocket, metrics and health checks.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"height": s.node.Height(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.rateLimit).Post("/", s.handle)
	r.With(s.rateLimit).Get("/ws", s.handleEventsWS)
	return otelhttp.NewHandler(r, "orderchain-rpc")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"orders_sendCall":    s.handleSendCall,
		"orders_getOrder":    s.handleGetOrder,
		"orders_listByParty": s.handleListByParty,
		"orders_getSeller":   s.handleGetSeller,
		"orders_getReporter": s.handleGetReporter,
		"orders_getArbiter":  s.handleGetArbiter,
		"orders_token":       s.handleToken,
		"orders_storeName":   s.handleStoreName,
		"orders_getConfig":   s.handleGetConfig,
		"orders_count":       s.handleOrderCount,
		"orders_escrowHeld":  s.handleEscrowHeld,
		"orders_listEvents":  s.handleListEvents,
		"chain_height":       s.handleChainHeight,
		"chain_mine":         s.requireOperator(s.handleChainMine),
		"bank_balance":       s.handleBankBalance,
		"token_balanceOf":    s.handleTokenBalanceOf,
		"token_allowance":    s.handleTokenAllowance,
		"account_nonce":      s.handleAccountNonce,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = recorder
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module, method := splitMethod(req.Method)
	defer func() {
		elapsed := time.Since(start)
		observability.ModuleMetrics().Observe(module, method, recorder.status, elapsed)
		s.logger.Debug("rpc request",
			slog.String("requestid", requestID),
			slog.String("method", req.Method),
			slog.Int("status", recorder.status),
			slog.Duration("elapsed", elapsed),
			logging.MaskField("authorization", r.Header.Get("Authorization")),
		)
	}()

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	handler(w, r, req)
}

func splitMethod(full string) (string, string) {
	if idx := strings.Index(full, "_"); idx > 0 {
		return full[:idx], full[idx+1:]
	}
	return "unknown", full
}

// clientSource resolves the address used for rate limiting. Forwarding
// headers are ignored unless the direct peer is a trusted proxy.
func (s *Server) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.cfg.TrustProxyHeaders {
		return host
	}
	if _, ok := s.trusted[host]; !ok {
		return host
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if net.ParseIP(candidate) != nil {
			return candidate
		}
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}
