package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// NodeClient exposes the minimal RPC surface required by the payments gateway.
type NodeClient interface {
	ProcessPayment(ctx context.Context, user, paymentType, amountWei string) (uint64, error)
	MarkPaymentProcessed(ctx context.Context, transactionID uint64) error
	GetTransaction(ctx context.Context, transactionID uint64) (*NodeTransaction, error)
}

// NodeTransaction mirrors the node's transaction read-model.
type NodeTransaction struct {
	ID          uint64 `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	AmountWei   string `json:"amountWei"`
	FeeWei      string `json:"feeWei"`
	CashbackWei string `json:"cashbackWei"`
	PaymentType string `json:"paymentType"`
	Timestamp   uint64 `json:"timestamp"`
	Processed   bool   `json:"processed"`
}

// RPCNodeClient is a lightweight JSON-RPC client.
type RPCNodeClient struct {
	baseURL   string
	authToken string
	processor string
	http      *http.Client
	nextID    atomic.Int64
}

// NewRPCNodeClient constructs a new RPC client acting as the given processor address.
func NewRPCNodeClient(baseURL, authToken, processor string) *RPCNodeClient {
	return &RPCNodeClient{
		baseURL:   baseURL,
		authToken: authToken,
		processor: processor,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *RPCNodeClient) ProcessPayment(ctx context.Context, user, paymentType, amountWei string) (uint64, error) {
	params := []interface{}{map[string]string{
		"processor":   c.processor,
		"user":        user,
		"paymentType": paymentType,
		"amountWei":   amountWei,
	}}
	var result NodeTransaction
	if err := c.call(ctx, "flow_processPayment", params, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

func (c *RPCNodeClient) MarkPaymentProcessed(ctx context.Context, transactionID uint64) error {
	params := []interface{}{map[string]interface{}{
		"processor":     c.processor,
		"transactionId": transactionID,
	}}
	return c.call(ctx, "flow_markPaymentProcessed", params, nil)
}

func (c *RPCNodeClient) GetTransaction(ctx context.Context, transactionID uint64) (*NodeTransaction, error) {
	params := []interface{}{map[string]interface{}{
		"transactionId": transactionID,
	}}
	var result NodeTransaction
	if err := c.call(ctx, "flow_getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	bodyStruct := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("node rpc %s failed: status=%d: %w", method, resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("node rpc error: %s", rpcResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rpc %s failed: status=%d", method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
