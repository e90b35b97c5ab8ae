package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowcash/config"
	"flowcash/core"
	"flowcash/observability/logging"
	"flowcash/rpc"
	"flowcash/storage"
)

const rpcTokenEnv = "FLOWCASH_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FLOWCASH_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Env
	}

	var fileCfg *logging.FileConfig
	if strings.TrimSpace(cfg.LogFile) != "" {
		fileCfg = &logging.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		}
	}
	logger := logging.Setup("flowcashd", env, fileCfg)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	nodeCfg, err := buildNodeConfig(cfg)
	if err != nil {
		logger.Error("Invalid node configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, nodeCfg, logger)
	if err != nil {
		logger.Error("Failed to start node", slog.Any("error", err))
		os.Exit(1)
	}

	opsMux := chi.NewRouter()
	opsMux.Use(chimw.Recoverer)
	opsMux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	opsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("Ops endpoint listening", slog.String("address", cfg.OpsAddress))
		if err := http.ListenAndServe(cfg.OpsAddress, opsMux); err != nil {
			logger.Error("Ops endpoint failed", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(node, os.Getenv(rpcTokenEnv))
	go func() {
		logger.Info("JSON-RPC server listening", slog.String("address", cfg.RPCAddress))
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")
}

func buildNodeConfig(cfg *config.Config) (core.Config, error) {
	owner, err := config.ParseAddress(cfg.Owner)
	if err != nil {
		return core.Config{}, err
	}
	operations, err := config.ParseAddress(cfg.OperationsWallet)
	if err != nil {
		return core.Config{}, err
	}
	incentives, err := config.ParseAddress(cfg.IncentivesWallet)
	if err != nil {
		return core.Config{}, err
	}
	treasuryWallet, err := config.ParseAddress(cfg.TreasuryWallet)
	if err != nil {
		return core.Config{}, err
	}
	alloc := make(map[[20]byte]*big.Int, len(cfg.GenesisAlloc))
	for addrStr, amountStr := range cfg.GenesisAlloc {
		addr, err := config.ParseAddress(addrStr)
		if err != nil {
			return core.Config{}, fmt.Errorf("genesis alloc: %w", err)
		}
		amount, err := config.ParseWei(amountStr)
		if err != nil {
			return core.Config{}, fmt.Errorf("genesis alloc %s: %w", addrStr, err)
		}
		alloc[addr] = amount
	}
	return core.Config{
		Owner:            owner,
		OperationsWallet: operations,
		IncentivesWallet: incentives,
		TreasuryWallet:   treasuryWallet,
		GenesisAlloc:     alloc,
	}, nil
}
