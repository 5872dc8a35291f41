package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/AkshayPatel-02/vote-relayer/config"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/api"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/approvals"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/metrics"
	rediskeys "github.com/AkshayPatel-02/vote-relayer/pkgs/redis"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/relay"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/signing"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/submitter"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	settings := config.SettingsObj

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chain connection
	client, err := chain.Dial(ctx, settings.RPCURL,
		settings.PublicVotingContract, settings.PrivateVotingContract, settings.ChainID)
	if err != nil {
		log.Fatalf("Failed to connect to chain: %v", err)
	}
	defer client.Close()
	client.SetReadRetries(settings.ReadRetries, settings.ReadRetryDelay)

	// Signature codec bound to the deployed contracts
	codec, err := signing.NewCodec(settings.ChainID,
		settings.PublicVotingContract, settings.PrivateVotingContract)
	if err != nil {
		log.Fatalf("Failed to build signature codec: %v", err)
	}

	// Approval store: local LRU always, Redis in front when enabled
	local, err := approvals.NewLocalBackend(settings.ApprovalCacheSize)
	if err != nil {
		log.Fatalf("Failed to build local approval cache: %v", err)
	}
	var primary approvals.Backend = local
	fallback := local
	if settings.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", settings.RedisHost, settings.RedisPort),
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			log.WithError(pingErr).Warn("Redis unreachable at startup, continuing with local cache only")
		}
		primary = approvals.NewNamespacedRedisBackend(redisClient, rediskeys.ForChain(settings.ChainID))
		defer redisClient.Close()
	}
	store := approvals.NewStore(primary, fallback)

	// Relayer key and submitter
	relayerKey, err := crypto.HexToECDSA(strings.TrimPrefix(settings.RelayerPrivateKey, "0x"))
	if err != nil {
		log.Fatalf("Invalid RELAYER_PRIVATE_KEY: %v", err)
	}
	speed, err := submitter.ParseSpeed(settings.GasSpeed)
	if err != nil {
		log.Fatalf("Invalid GAS_SPEED: %v", err)
	}
	sub := submitter.New(client, relayerKey, submitter.Config{
		Speed:               speed,
		MaxAttempts:         settings.MaxSubmitAttempts,
		RetryDelay:          settings.SubmitRetryDelay,
		PropagationAttempts: settings.PropagationAttempts,
		PropagationDelay:    settings.PropagationDelay,
		ConfirmationTimeout: settings.ConfirmationTimeout,
		SubmitTimeout:       settings.SubmitTimeout,
	})
	log.Infof("Relayer address: %s", sub.Relayer().Hex())

	// Optional whitelist signer enables creator self-sign synthesis
	var issuer relay.ApprovalIssuer
	if settings.WhitelistSignerKey != "" {
		iss, issErr := approvals.NewIssuer(settings.WhitelistSignerKey, codec, store,
			time.Duration(settings.ApprovalExpiryDays)*24*time.Hour)
		if issErr != nil {
			log.Fatalf("Invalid WHITELIST_SIGNER_KEY: %v", issErr)
		}
		log.Infof("Whitelist signer: %s", iss.Address().Hex())
		issuer = iss
	}

	validator := relay.NewValidator(client, codec, store, issuer,
		sub.Relayer(), settings.MinRelayerBalance)

	// Metrics on a separate listener
	if settings.MetricsEnabled {
		go func() {
			addr := fmt.Sprintf(":%d", settings.MetricsPort)
			if metricsErr := metrics.Serve(addr); metricsErr != nil {
				log.WithError(metricsErr).Error("Metrics listener stopped")
			}
		}()
	}

	server := api.NewServer(validator, sub, client, settings.RequestTimeout, settings.DebugMode)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", settings.APIHost, settings.APIPort),
		Handler: server.Handler(),
	}

	go func() {
		log.Infof("Relay API listening on %s", httpServer.Addr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.WithError(serveErr).Error("API listener stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Forced shutdown after drain timeout")
	}
	log.Info("Vote relayer stopped")
	os.Exit(0)
}
