package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	log "github.com/sirupsen/logrus"
)

// Settings holds all configuration for the vote relayer
type Settings struct {
	// Chain
	RPCURL                string
	ChainID               int64
	PublicVotingContract  string
	PrivateVotingContract string

	// Relayer identity
	RelayerPrivateKey  string // hex-encoded, signs all relayed transactions
	WhitelistSignerKey string // optional, enables creator self-sign synthesis

	// Redis (remote approval store)
	RedisHost     string
	RedisPort     string
	RedisDB       int
	RedisPassword string
	RedisEnabled  bool

	// Approval store
	ApprovalCacheSize  int
	ApprovalExpiryDays int

	// Submission
	GasSpeed            string // standard | fast | rapid
	MaxSubmitAttempts   int
	SubmitRetryDelay    time.Duration
	PropagationAttempts int
	PropagationDelay    time.Duration
	ConfirmationTimeout time.Duration
	SubmitTimeout       time.Duration
	MinRelayerBalance   *big.Int // absolute floor in wei

	// Read-side RPC retries
	ReadRetries    int
	ReadRetryDelay time.Duration

	// API
	APIHost        string
	APIPort        int
	RequestTimeout time.Duration

	// Monitoring & Debugging
	MetricsEnabled bool
	MetricsPort    int
	LogLevel       string
	DebugMode      bool
}

var (
	// SettingsObj is the global settings instance
	SettingsObj *Settings
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	SettingsObj = &Settings{
		// Chain
		RPCURL:                getEnv("RPC_URL", ""),
		ChainID:               int64(getEnvAsInt("CHAIN_ID", 137)),
		PublicVotingContract:  getEnv("PUBLIC_VOTING_CONTRACT", ""),
		PrivateVotingContract: getEnv("PRIVATE_VOTING_CONTRACT", ""),

		// Relayer identity
		RelayerPrivateKey:  getEnv("RELAYER_PRIVATE_KEY", ""),
		WhitelistSignerKey: getEnv("WHITELIST_SIGNER_KEY", ""),

		// Redis - read directly from env
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:  getBoolEnv("REDIS_ENABLED", true),

		// Approval store
		ApprovalCacheSize:  getEnvAsInt("APPROVAL_CACHE_SIZE", 10000),
		ApprovalExpiryDays: getEnvAsInt("APPROVAL_EXPIRY_DAYS", 7),

		// Submission
		GasSpeed:            getEnv("GAS_SPEED", "standard"),
		MaxSubmitAttempts:   getEnvAsInt("MAX_SUBMIT_ATTEMPTS", 3),
		SubmitRetryDelay:    time.Duration(getEnvAsInt("SUBMIT_RETRY_DELAY_MS", 2000)) * time.Millisecond,
		PropagationAttempts: getEnvAsInt("PROPAGATION_ATTEMPTS", 10),
		PropagationDelay:    time.Duration(getEnvAsInt("PROPAGATION_DELAY_MS", 1000)) * time.Millisecond,
		ConfirmationTimeout: time.Duration(getEnvAsInt("CONFIRMATION_TIMEOUT", 180)) * time.Second,
		SubmitTimeout:       time.Duration(getEnvAsInt("SUBMIT_TIMEOUT", 60)) * time.Second,

		// Read-side RPC retries
		ReadRetries:    getEnvAsInt("READ_RETRIES", 3),
		ReadRetryDelay: time.Duration(getEnvAsInt("READ_RETRY_DELAY_MS", 500)) * time.Millisecond,

		// API
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIPort:        getEnvAsInt("API_PORT", 3001),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT", 90)) * time.Second,

		// Monitoring & Debugging
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", false),
		MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getBoolEnv("DEBUG_MODE", false),
	}

	loadMinRelayerBalance()

	// Configure logging
	configureLogging()

	// Validate configuration
	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Log configuration summary
	logConfigSummary()

	return nil
}

// loadMinRelayerBalance parses the relayer balance floor, given in whole
// gas-token units (e.g. "0.1" MATIC)
func loadMinRelayerBalance() {
	floorStr := getEnv("MIN_RELAYER_BALANCE", "0.1")
	floor, ok := new(big.Float).SetString(floorStr)
	if !ok {
		log.Warnf("Invalid MIN_RELAYER_BALANCE %q, using 0.1", floorStr)
		floor = big.NewFloat(0.1)
	}
	wei, _ := new(big.Float).Mul(floor, big.NewFloat(params.Ether)).Int(nil)
	SettingsObj.MinRelayerBalance = wei
}

// configureLogging sets up the logger based on configuration
func configureLogging() {
	switch strings.ToLower(SettingsObj.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	// Override with debug mode
	if SettingsObj.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
}

// validateConfig validates the loaded configuration
func validateConfig() error {
	if SettingsObj.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if SettingsObj.RelayerPrivateKey == "" {
		return fmt.Errorf("RELAYER_PRIVATE_KEY is required")
	}

	if SettingsObj.PublicVotingContract == "" && SettingsObj.PrivateVotingContract == "" {
		return fmt.Errorf("at least one of PUBLIC_VOTING_CONTRACT / PRIVATE_VOTING_CONTRACT is required")
	}

	for _, addr := range []string{SettingsObj.PublicVotingContract, SettingsObj.PrivateVotingContract} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid contract address: %s", addr)
		}
	}

	switch strings.ToLower(SettingsObj.GasSpeed) {
	case "standard", "fast", "rapid":
	default:
		return fmt.Errorf("invalid GAS_SPEED %q: must be standard, fast or rapid", SettingsObj.GasSpeed)
	}

	if SettingsObj.RedisEnabled && SettingsObj.RedisHost == "" {
		return fmt.Errorf("Redis configuration required when REDIS_ENABLED is set")
	}

	return nil
}

// logConfigSummary logs a summary of the configuration
func logConfigSummary() {
	log.Info("=== Configuration Loaded ===")
	log.Infof("Chain ID: %d", SettingsObj.ChainID)
	if SettingsObj.PublicVotingContract != "" {
		log.Infof("Public voting contract: %s", SettingsObj.PublicVotingContract)
	}
	if SettingsObj.PrivateVotingContract != "" {
		log.Infof("Private voting contract: %s", SettingsObj.PrivateVotingContract)
	}
	log.Infof("Approval store: redis=%v (%s:%s DB %d), cache=%d entries",
		SettingsObj.RedisEnabled, SettingsObj.RedisHost, SettingsObj.RedisPort,
		SettingsObj.RedisDB, SettingsObj.ApprovalCacheSize)
	log.Infof("Submission: speed=%s, attempts=%d, propagation=%dx%v",
		SettingsObj.GasSpeed, SettingsObj.MaxSubmitAttempts,
		SettingsObj.PropagationAttempts, SettingsObj.PropagationDelay)
	log.Infof("API: %s:%d", SettingsObj.APIHost, SettingsObj.APIPort)
	if SettingsObj.MetricsEnabled {
		log.Infof("Metrics: port %d", SettingsObj.MetricsPort)
	}
	log.Info("============================")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
