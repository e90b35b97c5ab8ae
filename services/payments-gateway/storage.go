package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyConflict indicates a key is reused with a different payload.
var ErrIdempotencyConflict = errors.New("idempotency key conflict")

// SQLiteStore persists orders, idempotency responses, and audit logs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            key TEXT PRIMARY KEY,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            request_body BLOB,
            response_status INTEGER,
            response_body BLOB
        );`,
		`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            user_address TEXT NOT NULL,
            payment_type TEXT NOT NULL,
            amount_wei TEXT NOT NULL,
            reference TEXT NOT NULL,
            transaction_id INTEGER,
            status TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// StoredResponse captures an idempotent response.
type StoredResponse struct {
	Status int
	Body   []byte
}

func (s *SQLiteStore) LookupIdempotency(ctx context.Context, key, hash string) (*StoredResponse, error) {
	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE key = ?`
	row := s.db.QueryRowContext(ctx, query, key)
	var status int
	var body []byte
	var storedHash string
	err := row.Scan(&status, &body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != hash {
		return nil, ErrIdempotencyConflict
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

func (s *SQLiteStore) SaveIdempotency(ctx context.Context, key, hash string, status int, body []byte) error {
	const stmt = `INSERT OR REPLACE INTO idempotency_keys(key, request_hash, response_status, response_body, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, key, hash, status, body, time.Now().UTC())
	return err
}

// AuditEntry captures request/response pairs.
type AuditEntry struct {
	Method         string
	Path           string
	RequestBody    []byte
	ResponseStatus int
	ResponseBody   []byte
	Timestamp      time.Time
}

func (s *SQLiteStore) InsertAudit(ctx context.Context, entry AuditEntry) error {
	const stmt = `INSERT INTO audit_log(occurred_at, method, path, request_body, response_status, response_body) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.Timestamp, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.ResponseBody)
	return err
}

// Order status lifecycle.
const (
	OrderStatusPending = "pending"
	OrderStatusSettled = "settled"
	OrderStatusFailed  = "failed"
)

// OrderRecord describes a top-up order persisted in SQLite.
type OrderRecord struct {
	ID            string
	UserAddress   string
	PaymentType   string
	AmountWei     string
	Reference     string
	TransactionID sql.NullInt64
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *SQLiteStore) InsertOrder(ctx context.Context, rec OrderRecord) error {
	const stmt = `INSERT INTO orders(id, user_address, payment_type, amount_wei, reference, transaction_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.UserAddress, rec.PaymentType, rec.AmountWei, rec.Reference, rec.TransactionID, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*OrderRecord, error) {
	const query = `SELECT id, user_address, payment_type, amount_wei, reference, transaction_id, status, created_at, updated_at FROM orders WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	var rec OrderRecord
	err := row.Scan(&rec.ID, &rec.UserAddress, &rec.PaymentType, &rec.AmountWei, &rec.Reference, &rec.TransactionID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id, status string, txID *uint64) error {
	const stmt = `UPDATE orders SET status = ?, transaction_id = COALESCE(?, transaction_id), updated_at = ? WHERE id = ?`
	var tx interface{}
	if txID != nil {
		tx = int64(*txID)
	}
	_, err := s.db.ExecContext(ctx, stmt, status, tx, time.Now().UTC(), id)
	return err
}
