package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"flowcash/core"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	writeRateLimit  = rate.Limit(5.0 / 60.0)
	writeRateBurst  = 5
	limiterTTL      = 15 * time.Minute
)

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Server exposes the node over JSON-RPC 2.0. State-changing methods require a
// bearer token and are rate limited per client source.
type Server struct {
	node *core.Node

	mu        sync.Mutex
	limiters  map[string]*sourceLimiter
	authToken string
	nowFn     func() time.Time
}

func NewServer(node *core.Node, authToken string) *Server {
	return &Server{
		node:      node,
		limiters:  make(map[string]*sourceLimiter),
		authToken: strings.TrimSpace(authToken),
		nowFn:     time.Now,
	}
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
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

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
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

	handler, ok := s.route(req.Method)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if handler.privileged {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r), s.nowFn()) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded for source", nil)
			return
		}
	}
	handler.fn(w, req)
}

type methodHandler struct {
	fn         func(http.ResponseWriter, *RPCRequest)
	privileged bool
}

func (s *Server) route(method string) (methodHandler, bool) {
	switch method {
	// Payment ledger.
	case "flow_sendETN":
		return methodHandler{s.handleSendETN, true}, true
	case "flow_processPayment":
		return methodHandler{s.handleProcessPayment, true}, true
	case "flow_markPaymentProcessed":
		return methodHandler{s.handleMarkPaymentProcessed, true}, true
	case "flow_deposit":
		return methodHandler{s.handleDeposit, true}, true
	case "flow_updateFeeCollector":
		return methodHandler{s.handleUpdateFeeCollector, true}, true
	case "flow_updateMinTransactionAmount":
		return methodHandler{s.handleUpdateMinTransactionAmount, true}, true
	case "flow_setAuthorizedProcessor":
		return methodHandler{s.handleSetAuthorizedProcessor, true}, true
	case "flow_pause":
		return methodHandler{s.handlePauseLedger, true}, true
	case "flow_unpause":
		return methodHandler{s.handleUnpauseLedger, true}, true
	case "flow_getTransaction":
		return methodHandler{s.handleGetTransaction, false}, true
	case "flow_getUserTransactionIds":
		return methodHandler{s.handleGetUserTransactionIDs, false}, true
	case "flow_getUserStats":
		return methodHandler{s.handleGetUserStats, false}, true
	case "flow_getContractStats":
		return methodHandler{s.handleGetContractStats, false}, true
	case "flow_calculateFee":
		return methodHandler{s.handleCalculateFee, false}, true
	case "flow_calculateCashback":
		return methodHandler{s.handleCalculateCashback, false}, true
	case "flow_getBalance":
		return methodHandler{s.handleGetBalance, false}, true
	case "flow_getEvents":
		return methodHandler{s.handleGetEvents, false}, true
	case "flow_isAuthorizedProcessor":
		return methodHandler{s.handleIsAuthorizedProcessor, false}, true

	// Fee treasury.
	case "treasury_collectFee":
		return methodHandler{s.handleCollectFee, true}, true
	case "treasury_distributeFees":
		return methodHandler{s.handleDistributeFees, true}, true
	case "treasury_emergencyDistribute":
		return methodHandler{s.handleEmergencyDistribute, true}, true
	case "treasury_updateWallet":
		return methodHandler{s.handleUpdateWallet, true}, true
	case "treasury_updateThreshold":
		return methodHandler{s.handleUpdateThreshold, true}, true
	case "treasury_setAuthorizedCollector":
		return methodHandler{s.handleSetAuthorizedCollector, true}, true
	case "treasury_pause":
		return methodHandler{s.handlePauseTreasury, true}, true
	case "treasury_unpause":
		return methodHandler{s.handleUnpauseTreasury, true}, true
	case "treasury_getFeeBalance":
		return methodHandler{s.handleGetFeeBalance, false}, true
	case "treasury_getWallets":
		return methodHandler{s.handleGetWallets, false}, true
	case "treasury_calculateDistribution":
		return methodHandler{s.handleCalculateDistribution, false}, true
	case "treasury_isAuthorizedCollector":
		return methodHandler{s.handleIsAuthorizedCollector, false}, true
	}
	return methodHandler{}, false
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		entry = &sourceLimiter{limiter: rate.NewLimiter(writeRateLimit, writeRateBurst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientSource(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			first := strings.TrimSpace(parts[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
