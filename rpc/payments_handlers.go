package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"flowcash/core"
	"flowcash/core/state"
	"flowcash/native/common"
	"flowcash/native/ledger"
	"flowcash/native/treasury"
)

type transactionResult struct {
	ID          uint64 `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amountWei"`
	Fee         string `json:"feeWei"`
	Cashback    string `json:"cashbackWei"`
	PaymentType string `json:"paymentType"`
	Timestamp   uint64 `json:"timestamp"`
	Processed   bool   `json:"processed"`
}

func transactionResultFrom(tx *ledger.Transaction) *transactionResult {
	return &transactionResult{
		ID:          tx.ID,
		Sender:      formatAddress(tx.Sender),
		Recipient:   formatAddress(tx.Recipient),
		Amount:      formatAmount(tx.Amount),
		Fee:         formatAmount(tx.Fee),
		Cashback:    formatAmount(tx.Cashback),
		PaymentType: tx.PaymentType.String(),
		Timestamp:   tx.Timestamp,
		Processed:   tx.Processed,
	}
}

func parsePaymentType(value string) (ledger.PaymentType, *RPCError) {
	switch value {
	case "AIRTIME":
		return ledger.PaymentAirtime, nil
	case "BILL":
		return ledger.PaymentBill, nil
	case "P2P":
		return ledger.PaymentP2P, nil
	}
	return 0, invalidParams("invalid payment type %q", value)
}

func writeNodeError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	switch {
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, treasury.ErrUnauthorized),
		errors.Is(err, treasury.ErrNotOwner),
		errors.Is(err, core.ErrInvalidOwner):
		status = http.StatusForbidden
		code = codeUnauthorized
	case errors.Is(err, common.ErrModulePaused),
		errors.Is(err, ledger.ErrPaused),
		errors.Is(err, treasury.ErrPaused):
		status = http.StatusConflict
	case errors.Is(err, state.ErrInsufficientBalance),
		errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, treasury.ErrInsufficientBalance),
		errors.Is(err, treasury.ErrBelowThreshold):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidTransactionID),
		errors.Is(err, ledger.ErrAlreadyProcessed),
		errors.Is(err, ledger.ErrInvalidRecipient),
		errors.Is(err, ledger.ErrInvalidUser),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ledger.ErrAmountTooLow),
		errors.Is(err, ledger.ErrInvalidPaymentType),
		errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, treasury.ErrInvalidAddress),
		errors.Is(err, treasury.ErrInvalidWalletKind),
		errors.Is(err, treasury.ErrInvalidThreshold),
		errors.Is(err, core.ErrUnknownModule):
		code = codeInvalidParams
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func (s *Server) handleSendETN(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amountWei"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	sender, rpcErr := parseAddress(params.Sender)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	recipient, rpcErr := parseAddress(params.Recipient)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	tx, err := s.node.SendETN(sender, recipient, amount)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, transactionResultFrom(tx))
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Processor   string `json:"processor"`
		User        string `json:"user"`
		PaymentType string `json:"paymentType"`
		Amount      string `json:"amountWei"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	processor, rpcErr := parseAddress(params.Processor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	user, rpcErr := parseAddress(params.User)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	paymentType, rpcErr := parsePaymentType(params.PaymentType)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	tx, err := s.node.ProcessPayment(processor, user, paymentType, amount)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, transactionResultFrom(tx))
}

func (s *Server) handleMarkPaymentProcessed(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Processor     string `json:"processor"`
		TransactionID uint64 `json:"transactionId"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	processor, rpcErr := parseAddress(params.Processor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.MarkPaymentProcessed(processor, params.TransactionID); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"transactionId": params.TransactionID, "processed": true})
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		From   string `json:"from"`
		Module string `json:"module"`
		Amount string `json:"amountWei"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	from, rpcErr := parseAddress(params.From)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.Deposit(from, params.Module, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateFeeCollector(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Collector string `json:"collector"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	collector, rpcErr := parseAddress(params.Collector)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.UpdateFeeCollector(caller, collector); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"feeCollector": params.Collector})
}

func (s *Server) handleUpdateMinTransactionAmount(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Amount string `json:"amountWei"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.UpdateMinTransactionAmount(caller, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"minTransactionAmountWei": params.Amount})
}

func (s *Server) handleSetAuthorizedProcessor(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Processor string `json:"processor"`
		Enabled   bool   `json:"enabled"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	processor, rpcErr := parseAddress(params.Processor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.SetAuthorizedProcessor(caller, processor, params.Enabled); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"processor": params.Processor, "enabled": params.Enabled})
}

func (s *Server) handlePauseLedger(w http.ResponseWriter, req *RPCRequest) {
	s.handleCallerOnly(w, req, s.node.PauseLedger, "paused")
}

func (s *Server) handleUnpauseLedger(w http.ResponseWriter, req *RPCRequest) {
	s.handleCallerOnly(w, req, s.node.UnpauseLedger, "active")
}

func (s *Server) handleCallerOnly(w http.ResponseWriter, req *RPCRequest, fn func([20]byte) error, status string) {
	var params struct {
		Caller string `json:"caller"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := fn(caller); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID uint64 `json:"transactionId"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	tx, err := s.node.Transaction(params.TransactionID)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, transactionResultFrom(tx))
}

func (s *Server) handleGetUserTransactionIDs(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	ids, err := s.node.UserTransactionIDs(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"address": params.Address, "transactionIds": ids})
}

func (s *Server) handleGetUserStats(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	stats, err := s.node.UserStats(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"address":          params.Address,
		"totalSentWei":     formatAmount(stats.TotalSent),
		"totalReceivedWei": formatAmount(stats.TotalReceived),
		"transactionCount": stats.TransactionCount,
	})
}

func (s *Server) handleGetContractStats(w http.ResponseWriter, req *RPCRequest) {
	stats, err := s.node.ContractStats()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	reserve, err := s.node.Balance(s.node.LedgerAddress())
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"totalTransactions":     stats.TotalTransactions,
		"totalVolumeWei":        formatAmount(stats.TotalVolume),
		"totalFeesCollectedWei": formatAmount(stats.TotalFeesCollected),
		"contractBalanceWei":    formatAmount(reserve),
		"ledgerAddress":         formatAddress(s.node.LedgerAddress()),
		"treasuryAddress":       formatAddress(s.node.TreasuryAddress()),
	})
}

func (s *Server) handleCalculateFee(w http.ResponseWriter, req *RPCRequest) {
	s.handleCalculatePortion(w, req, ledger.CalculateFee, "feeWei")
}

func (s *Server) handleCalculateCashback(w http.ResponseWriter, req *RPCRequest) {
	s.handleCalculatePortion(w, req, ledger.CalculateCashback, "cashbackWei")
}

func (s *Server) handleCalculatePortion(w http.ResponseWriter, req *RPCRequest, fn func(*big.Int) *big.Int, key string) {
	var params struct {
		Amount string `json:"amountWei"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"amountWei": params.Amount,
		key:         formatAmount(fn(amount)),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"address": params.Address, "balanceWei": formatAmount(balance)})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Offset int `json:"offset"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
			return
		}
	}
	if params.Offset < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "offset must not be negative", nil)
		return
	}
	writeResult(w, req.ID, s.node.Events(params.Offset))
}

func (s *Server) handleIsAuthorizedProcessor(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	authorized, err := s.node.IsAuthorizedProcessor(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"address": params.Address, "authorized": authorized})
}
