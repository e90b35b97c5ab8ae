package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config captures runtime configuration for the payments gateway service.
type Config struct {
	ListenAddress    string
	DatabasePath     string
	NodeURL          string
	NodeAuthToken    string
	APIToken         string
	ProcessorAddress string
	SettleTimeout    time.Duration
}

const (
	envListen    = "PAY_GATEWAY_LISTEN"
	envDBPath    = "PAY_GATEWAY_DB"
	envNodeURL   = "PAY_GATEWAY_NODE_URL"
	envNodeToken = "PAY_GATEWAY_NODE_TOKEN"
	envAPIToken  = "PAY_GATEWAY_API_TOKEN"
	envProcessor = "PAY_GATEWAY_PROCESSOR"
	envSettleTTL = "PAY_GATEWAY_SETTLE_TIMEOUT"
)

// LoadConfigFromEnv resolves configuration from environment variables with sane defaults.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddress:    getenvDefault(envListen, ":8080"),
		DatabasePath:     getenvDefault(envDBPath, "payments-gateway.db"),
		NodeURL:          os.Getenv(envNodeURL),
		NodeAuthToken:    os.Getenv(envNodeToken),
		APIToken:         os.Getenv(envAPIToken),
		ProcessorAddress: os.Getenv(envProcessor),
		SettleTimeout:    parseDurationDefault(envSettleTTL, 10*time.Second),
	}

	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("%s is required", envNodeURL)
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("%s is required", envAPIToken)
	}
	if cfg.ProcessorAddress == "" {
		return nil, fmt.Errorf("%s is required", envProcessor)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func parseDurationDefault(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
