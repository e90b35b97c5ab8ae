package rpc

import (
	"net/http"

	"flowcash/native/treasury"
)

func (s *Server) handleCollectFee(w http.ResponseWriter, req *RPCRequest) {
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
	if err := s.node.CollectFee(caller, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"collectedWei": params.Amount})
}

func (s *Server) handleDistributeFees(w http.ResponseWriter, req *RPCRequest) {
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
	if err := s.node.DistributeFees(caller); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "distributed"})
}

func (s *Server) handleEmergencyDistribute(w http.ResponseWriter, req *RPCRequest) {
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
	if err := s.node.EmergencyDistribute(caller, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"distributedWei": params.Amount})
}

func (s *Server) handleUpdateWallet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Kind   string `json:"kind"`
		Wallet string `json:"wallet"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	wallet, rpcErr := parseAddress(params.Wallet)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.UpdateWallet(caller, params.Kind, wallet); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"kind": params.Kind, "wallet": params.Wallet})
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Threshold string `json:"thresholdWei"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	threshold, rpcErr := parseAmount(params.Threshold)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.UpdateDistributionThreshold(caller, threshold); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"thresholdWei": params.Threshold})
}

func (s *Server) handleSetAuthorizedCollector(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Collector string `json:"collector"`
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
	collector, rpcErr := parseAddress(params.Collector)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.node.SetAuthorizedCollector(caller, collector, params.Enabled); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"collector": params.Collector, "enabled": params.Enabled})
}

func (s *Server) handlePauseTreasury(w http.ResponseWriter, req *RPCRequest) {
	s.handleCallerOnly(w, req, s.node.PauseTreasury, "paused")
}

func (s *Server) handleUnpauseTreasury(w http.ResponseWriter, req *RPCRequest) {
	s.handleCallerOnly(w, req, s.node.UnpauseTreasury, "active")
}

func (s *Server) handleGetFeeBalance(w http.ResponseWriter, req *RPCRequest) {
	balance, err := s.node.FeeBalance()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	threshold, err := s.node.MinDistributionThreshold()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"operationsWei":               formatAmount(balance.OperationsBalance),
		"incentivesWei":               formatAmount(balance.IncentivesBalance),
		"treasuryWei":                 formatAmount(balance.TreasuryBalance),
		"totalCollectedWei":           formatAmount(balance.TotalCollected),
		"lastDistributionTime":        balance.LastDistributionTime,
		"minDistributionThresholdWei": formatAmount(threshold),
	})
}

func (s *Server) handleGetWallets(w http.ResponseWriter, req *RPCRequest) {
	operations, incentives, treasuryWallet, err := s.node.Wallets()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"operations": formatAddress(operations),
		"incentives": formatAddress(incentives),
		"treasury":   formatAddress(treasuryWallet),
	})
}

func (s *Server) handleCalculateDistribution(w http.ResponseWriter, req *RPCRequest) {
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
	operations, incentives, treasuryShare, err := treasury.CalculateDistribution(amount)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"amountWei":     params.Amount,
		"operationsWei": formatAmount(operations),
		"incentivesWei": formatAmount(incentives),
		"treasuryWei":   formatAmount(treasuryShare),
	})
}

func (s *Server) handleIsAuthorizedCollector(w http.ResponseWriter, req *RPCRequest) {
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
	authorized, err := s.node.IsAuthorizedCollector(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"address": params.Address, "authorized": authorized})
}
