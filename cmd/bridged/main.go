// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// bridged runs the Dytallix bridge core: it polls the configured chains for
// finalized lock events, collects validator signatures over their canonical
// payloads, and executes mints on the destination chains once the signature
// threshold is met.
package main

import (
	"context"
	encjson "encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dytallix/interop/bridge"
	"github.com/dytallix/interop/bridge/config"
	"github.com/dytallix/interop/bridge/connector"
	"github.com/dytallix/interop/bridge/metrics"
	"github.com/dytallix/interop/bridge/pqc"
	"github.com/dytallix/interop/bridge/registry"
	"github.com/dytallix/interop/bridge/replay"
	"github.com/dytallix/interop/bridge/risk"
	"github.com/dytallix/interop/utils/json"
)

var Version = &version.Semantic{
	Major: 1,
	Minor: 0,
	Patch: 0,
}

const (
	backendTimeout = 15 * time.Second
	expireInterval = time.Minute
)

func main() {
	if err := command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func command() *cobra.Command {
	var (
		configPath string
		dbDir      string
		httpAddr   string
	)
	c := &cobra.Command{
		Use:     "bridged",
		Short:   "Runs the Dytallix bridge core",
		Version: Version.String(),
		RunE: func(c *cobra.Command, _ []string) error {
			return run(c.Context(), configPath, dbDir, httpAddr)
		},
	}
	flags := c.Flags()
	flags.StringVar(&configPath, "config", "", "path to a JSON config overriding the defaults")
	flags.StringVar(&dbDir, "db-dir", "bridged-db", "database directory")
	flags.StringVar(&httpAddr, "http-addr", ":9650", "HTTP listen address")
	return c
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := encjson.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func run(ctx context.Context, configPath, dbDir, httpAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogger("bridged")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := badgerdb.New(dbDir, nil, "", nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	reg, err := registry.New(prefixdb.New([]byte("registry"), db), logger)
	if err != nil {
		return err
	}
	guard := replay.New(prefixdb.New([]byte("replay"), db), logger)
	store := bridge.NewStore(prefixdb.New([]byte("txs"), db), logger)
	checkpointDB := prefixdb.New([]byte("checkpoints"), db)

	verifier, err := pqc.NewVerifier(logger, cfg.AlgorithmVersion)
	if err != nil {
		return err
	}
	registry := metric.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	var oracle *risk.Oracle
	if cfg.RiskOracleURL != "" {
		oracle = risk.NewOracle(
			cfg.RiskOracleURL,
			uint256.NewInt(cfg.LargeTransferThreshold),
			cfg.RiskOracleTimeout,
			logger,
		)
	}

	connectors := make(map[string]connector.ChainConnector, len(cfg.Chains))
	var pollers []*connector.Poller
	for i := range cfg.Chains {
		chainCfg := &cfg.Chains[i]
		if chainCfg.RPCEndpoint == "" {
			logger.Warn("chain has no rpc endpoint, skipping",
				log.String("chainID", chainCfg.ChainID),
			)
			continue
		}
		backend := connector.NewRPCBackend(chainCfg.RPCEndpoint, chainCfg.ChainID, backendTimeout)

		var (
			conn connector.ChainConnector
			err  error
		)
		switch chainCfg.Kind {
		case config.KindEthereum:
			conn, err = connector.NewEthereum(chainCfg, backend, logger)
		case config.KindCosmos:
			conn, err = connector.NewCosmos(chainCfg, backend, logger)
		case config.KindPolkadot:
			conn, err = connector.NewPolkadot(chainCfg, backend, logger)
		default:
			err = fmt.Errorf("%w: %q", config.ErrInvalidChainKind, chainCfg.Kind)
		}
		if err != nil {
			return err
		}
		connectors[chainCfg.ChainID] = conn
		pollers = append(pollers, connector.NewPoller(conn, checkpointDB, logger))
	}

	mgr, err := bridge.NewManager(bridge.ManagerParams{
		Config:     cfg,
		Store:      store,
		Registry:   reg,
		Replay:     guard,
		Verifier:   verifier,
		Oracle:     oracle,
		Metrics:    m,
		Connectors: connectors,
		Log:        logger,
	})
	if err != nil {
		return err
	}

	// Transfers interrupted between threshold and execution are re-driven
	// before new events flow.
	if resumed, err := mgr.ResumePending(ctx); err != nil {
		return fmt.Errorf("failed to resume pending transfers: %w", err)
	} else if resumed > 0 {
		logger.Info("resumed interrupted transfers", log.Int("count", resumed))
	}

	for _, p := range pollers {
		go func() {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("poller stopped", log.Err(err))
			}
		}()
		go func() {
			for ev := range p.Events() {
				if _, err := mgr.IngestLockEvent(ctx, ev); err != nil {
					logger.Warn("lock event rejected",
						log.String("chainID", ev.ChainID),
						log.String("txRef", ev.TxRef),
						log.Err(err),
					)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(expireInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if expired, err := mgr.ExpireStale(); err != nil {
					logger.Error("failed to expire stale transfers", log.Err(err))
				} else if expired > 0 {
					logger.Info("expired stale transfers", log.Int("count", expired))
				}
				if resumed, err := mgr.ResumePending(ctx); err != nil {
					logger.Error("failed to resume pending transfers", log.Err(err))
				} else if resumed > 0 {
					logger.Info("resumed interrupted transfers", log.Int("count", resumed))
				}
			}
		}
	}()

	rpcServer := rpc.NewServer()
	codec := json.NewCodec()
	rpcServer.RegisterCodec(codec, "application/json")
	rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := mgr.RegisterService(rpcServer); err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/ext/bridge", rpcServer)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		encjson.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": Version.String(),
		})
	})

	server := &http.Server{
		Addr:    httpAddr,
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("bridged started",
		log.String("httpAddr", httpAddr),
		log.String("environment", cfg.Environment),
		log.Int("chains", len(connectors)),
		log.String("version", Version.String()),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
