package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	maxRequestBody       = 1 << 20
	headerIdempotencyKey = "Idempotency-Key"
)

// Server exposes HTTP endpoints for third-party top-up settlement.
type Server struct {
	store         *SQLiteStore
	node          NodeClient
	apiToken      string
	settleTimeout time.Duration
	nowFn         func() time.Time
	router        http.Handler
}

// OrderCreateRequest is the payload accepted by POST /api/v1/orders.
type OrderCreateRequest struct {
	User        string `json:"user"`
	PaymentType string `json:"paymentType"`
	AmountWei   string `json:"amountWei"`
	Reference   string `json:"reference"`
}

// OrderResponse is returned for order creation and lookup.
type OrderResponse struct {
	OrderID       string `json:"orderId"`
	User          string `json:"user"`
	PaymentType   string `json:"paymentType"`
	AmountWei     string `json:"amountWei"`
	Reference     string `json:"reference"`
	TransactionID uint64 `json:"transactionId,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// NewServer constructs a payments gateway server.
func NewServer(store *SQLiteStore, node NodeClient, apiToken string, settleTimeout time.Duration) *Server {
	if store == nil {
		panic("store required")
	}
	if node == nil {
		panic("node client required")
	}
	if strings.TrimSpace(apiToken) == "" {
		panic("api token required")
	}
	if settleTimeout <= 0 {
		settleTimeout = 10 * time.Second
	}
	srv := &Server{
		store:         store,
		node:          node,
		apiToken:      strings.TrimSpace(apiToken),
		settleTimeout: settleTimeout,
		nowFn:         time.Now,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.authenticate)
		api.Post("/orders", s.CreateOrder)
		api.Post("/orders/{id}/settle", s.SettleOrder)
		api.Get("/orders/{id}", s.GetOrder)
	})

	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || !strings.HasPrefix(header, "Bearer ") || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateOrder records a top-up order and settles it against the node.
func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, body)
		return
	}
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("missing Idempotency-Key header"), body)
		return
	}
	requestHash := hashRequest(r.Method, canonicalRequestPath(r), body)
	if cached, err := s.store.LookupIdempotency(r.Context(), key, requestHash); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrIdempotencyConflict) {
			status = http.StatusConflict
		}
		s.writeError(w, r, status, err, body)
		return
	} else if cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(cached.Status)
		_, _ = w.Write(cached.Body)
		s.audit(r.Context(), r, body, cached.Body, cached.Status)
		return
	}
	var req OrderCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err), body)
		return
	}
	if err := validateOrderCreate(req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, body)
		return
	}
	now := s.nowFn().UTC()
	orderID := uuid.NewString()
	record := OrderRecord{
		ID:          orderID,
		UserAddress: req.User,
		PaymentType: req.PaymentType,
		AmountWei:   req.AmountWei,
		Reference:   req.Reference,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertOrder(r.Context(), record); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, body)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.settleTimeout)
	defer cancel()
	txID, err := s.node.ProcessPayment(ctx, req.User, req.PaymentType, req.AmountWei)
	if err != nil {
		_ = s.store.UpdateOrderStatus(r.Context(), orderID, OrderStatusFailed, nil)
		s.writeError(w, r, http.StatusBadGateway, err, body)
		return
	}
	if err := s.store.UpdateOrderStatus(r.Context(), orderID, OrderStatusPending, &txID); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, body)
		return
	}
	record.TransactionID = sql.NullInt64{Int64: int64(txID), Valid: true}
	respBody, _ := json.Marshal(orderResponseFrom(&record))
	if err := s.store.SaveIdempotency(r.Context(), key, requestHash, http.StatusCreated, respBody); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, body)
		return
	}
	s.writeJSONBytes(w, r, http.StatusCreated, respBody, body)
}

func validateOrderCreate(req OrderCreateRequest) error {
	if strings.TrimSpace(req.User) == "" {
		return errors.New("user required")
	}
	switch req.PaymentType {
	case "AIRTIME", "BILL":
	default:
		return fmt.Errorf("unsupported payment type: %s", req.PaymentType)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.AmountWei), 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid amountWei: %s", req.AmountWei)
	}
	if strings.TrimSpace(req.Reference) == "" {
		return errors.New("reference required")
	}
	return nil
}

// SettleOrder marks the underlying pending transaction as delivered.
func (s *Server) SettleOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := s.store.GetOrder(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if order == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("order not found"), nil)
		return
	}
	if order.Status == OrderStatusSettled {
		s.writeJSON(w, r, http.StatusOK, orderResponseFrom(order), nil)
		return
	}
	if !order.TransactionID.Valid {
		s.writeError(w, r, http.StatusConflict, errors.New("order has no transaction"), nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.settleTimeout)
	defer cancel()
	if err := s.node.MarkPaymentProcessed(ctx, uint64(order.TransactionID.Int64)); err != nil {
		s.writeError(w, r, http.StatusBadGateway, err, nil)
		return
	}
	if err := s.store.UpdateOrderStatus(r.Context(), order.ID, OrderStatusSettled, nil); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	order.Status = OrderStatusSettled
	order.UpdatedAt = s.nowFn().UTC()
	s.writeJSON(w, r, http.StatusOK, orderResponseFrom(order), nil)
}

// GetOrder returns a previously created order.
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := s.store.GetOrder(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if order == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("order not found"), nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, orderResponseFrom(order), nil)
}

func orderResponseFrom(rec *OrderRecord) OrderResponse {
	resp := OrderResponse{
		OrderID:     rec.ID,
		User:        rec.UserAddress,
		PaymentType: rec.PaymentType,
		AmountWei:   rec.AmountWei,
		Reference:   rec.Reference,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.TransactionID.Valid {
		resp.TransactionID = uint64(rec.TransactionID.Int64)
	}
	return resp
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() {
		_ = r.Body.Close()
	}()
	return io.ReadAll(reader)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}, reqBody []byte) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err, reqBody)
		return
	}
	s.writeJSONBytes(w, r, status, body, reqBody)
}

func (s *Server) writeJSONBytes(w http.ResponseWriter, r *http.Request, status int, body []byte, reqBody []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	s.audit(r.Context(), r, reqBody, body, status)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error, reqBody []byte) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	s.audit(r.Context(), r, reqBody, body, status)
}

func (s *Server) audit(ctx context.Context, r *http.Request, requestBody, responseBody []byte, status int) {
	if s.store == nil {
		return
	}
	entry := AuditEntry{
		Method:         r.Method,
		Path:           canonicalRequestPath(r),
		RequestBody:    requestBody,
		ResponseStatus: status,
		ResponseBody:   responseBody,
		Timestamp:      s.nowFn().UTC(),
	}
	_ = s.store.InsertAudit(ctx, entry)
}

func canonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		parts := strings.Split(r.URL.RawQuery, "&")
		sort.Strings(parts)
		path += "?" + strings.Join(parts, "&")
	}
	return path
}

func hashRequest(method, path string, body []byte) string {
	payload := strings.Join([]string{strings.ToUpper(method), path, string(body)}, "\n")
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", sum[:])
}
