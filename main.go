package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/config"
	"github.com/sisyphus-fi/tempo-engine/pkg/dispatch"
	"github.com/sisyphus-fi/tempo-engine/pkg/engine"
	"github.com/sisyphus-fi/tempo-engine/pkg/exchange"
	"github.com/sisyphus-fi/tempo-engine/pkg/health"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/scheduler"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.NewStdLogger(cfg.LogColoring, logger.Level(cfg.LogLevel))
	logg.Info("Starting tempo-engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := chain.Connect(ctx, cfg.RPCURL, cfg.ChainID, logg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	nonces := chain.NewNonceSequencer(client, logg)

	var signer chain.Signer
	switch cfg.SignerKind {
	case config.SignerCustodial:
		signer, err = chain.NewCustodialSigner(ctx, cfg.CustodialAPIURL, cfg.CustodialAPIKey, logg)
	default:
		signer, err = chain.NewKeyedSigner(cfg.PrivateKey, cfg.ChainID, client, nonces, cfg.GasMultiplier, logg)
	}
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}
	logg.InfoWith(logger.Chain, "Signing as %s", signer.Address().Hex())

	registry := tokens.NewRegistry()
	overrides, err := cfg.LoadRegistryOverride()
	if err != nil {
		log.Fatalf("Failed to load token registry override: %v", err)
	}
	registry.Merge(overrides)

	var store tokens.Store = tokens.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisStore, err := tokens.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
		logg.InfoWith(logger.Tokens, "Token cache persisted in redis")
	}

	factory := common.HexToAddress(cfg.FactoryAddress)
	exchangeAddr := common.HexToAddress(cfg.ExchangeAddress)
	schedulerAddr := common.HexToAddress(cfg.SchedulerAddress)
	batchAddr := common.Address{}
	if cfg.BatchTransferAddress != "" {
		batchAddr = common.HexToAddress(cfg.BatchTransferAddress)
	}

	resolver := tokens.NewResolver(registry, store, client, factory, cfg.ScanWindowBlocks, logg)
	guard := dispatch.NewAllowanceGuard(client, signer, logg)
	dispatcher := dispatch.NewDispatcher(client, signer, resolver, guard, batchAddr, time.Duration(cfg.SubmitDelayMs)*time.Millisecond, logg)
	orderIDs := exchange.NewOrderIDResolver(client, exchangeAddr, logg)
	xchg := exchange.NewExchange(client, signer, guard, orderIDs, registry, exchangeAddr, logg)
	sched := scheduler.NewScheduler(client, signer, guard, resolver, schedulerAddr, logg)

	var orderIndex *engine.OrderIndex
	if cfg.OrderIndexEndpoint != "" {
		orderIndex = engine.NewOrderIndex(cfg.OrderIndexEndpoint, logg)
	}
	var faucet *engine.FaucetClient
	if cfg.FaucetEndpoint != "" {
		faucet = engine.NewFaucetClient(cfg.FaucetEndpoint, logg)
	}

	eng := engine.New(client, signer, registry, resolver, dispatcher, xchg, sched, store, orderIndex, faucet, logg)
	server := health.NewServer(cfg.MetricsPort, eng, client, cfg.MetricsKey, logg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logg.Notice("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logg.Error("Server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("Shutdown error: %v", err)
	}
	logg.Info("Stopped")
}
