package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftylend/config"
	"nftylend/core/events"
	"nftylend/core/state"
	"nftylend/crypto"
	"nftylend/native/bank"
	"nftylend/native/custody"
	"nftylend/native/lending"
	"nftylend/observability/logging"
	"nftylend/observability/otel"
	"nftylend/rpc"
	"nftylend/rpc/modules"
	"nftylend/storage"
)

const serviceName = "nftylendd"

// vaultAddress derives the ledger account that physically holds desk
// liquidity, accrued fees and escrowed collateral. It must be stable across
// restarts, so it is computed rather than generated.
func vaultAddress() crypto.Address {
	hash := ethcrypto.Keccak256([]byte("nftylend/vault/v1"))
	return crypto.NewAddress(crypto.Prefix, hash[len(hash)-20:])
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	logger := logging.Setup(serviceName, "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Exit(fatal("load config", err))
	}
	logger = logging.Setup(serviceName, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracesEnabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: serviceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
		})
		if err != nil {
			os.Exit(fatal("init telemetry", err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, os.Getenv("NFTYLEND_KEYSTORE_PASSPHRASE"))
	if err != nil {
		os.Exit(fatal("load owner keystore", err))
	}
	owner := ownerKey.PubKey().Address()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		os.Exit(fatal("open database", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	eventLog := events.NewLog()
	vault := vaultAddress()

	bankEngine := bank.NewEngine()
	bankEngine.SetState(manager)
	bankEngine.SetEmitter(eventLog)

	custodyEngine := custody.NewEngine(vault)
	custodyEngine.SetState(manager)
	custodyEngine.SetEmitter(eventLog)

	engine := lending.NewEngine(vault)
	engine.SetState(manager)
	engine.SetLedger(bankEngine)
	engine.SetCollateral(custodyEngine)
	engine.SetEmitter(eventLog)

	if _, ok, err := manager.ProtocolParams(); err != nil {
		os.Exit(fatal("read protocol params", err))
	} else if !ok {
		platformWallet := owner
		if configured, present, err := cfg.PlatformWalletAddress(); err != nil {
			os.Exit(fatal("decode platform wallet", err))
		} else if present {
			platformWallet = configured
		}
		if err := engine.InitializeProtocol(owner, platformWallet, cfg.OriginationFeeBps); err != nil {
			os.Exit(fatal("initialize protocol", err))
		}
		logger.Info("protocol initialized",
			"owner", owner.String(),
			"platformWallet", platformWallet.String(),
			"originationFeeBps", cfg.OriginationFeeBps,
		)
	}

	lendingModule := modules.NewLendingModule(engine, manager)
	bankModule := modules.NewBankModule(bankEngine, custodyEngine, cfg.FaucetEnabled)
	server := rpc.NewServer(logger, lendingModule, bankModule, eventLog, rpc.ServerConfig{
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	rpcServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           otelhttp.NewHandler(server.Router(), "rpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc server listening", "address", cfg.RPCAddress)
		if err := rpcServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics server listening", "address", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func fatal(msg string, err error) int {
	slog.Error(msg, "error", err)
	return 1
}
