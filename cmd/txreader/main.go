// Command txreader tails and resyncs the executed instructions of a
// single on-chain program, reconstructing each transaction's parsed meta
// and handing it off to a TransactionConsumer. Shaped after the teacher's
// own cmd/nova daemon command: cobra root, config file + env overrides,
// structured logging/metrics init, signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oriys/txgraph/internal/archive"
	"github.com/oriys/txgraph/internal/config"
	"github.com/oriys/txgraph/internal/engine"
	"github.com/oriys/txgraph/internal/logging"
	"github.com/oriys/txgraph/internal/obsmetrics"
	"github.com/oriys/txgraph/internal/pubsub"
	"github.com/oriys/txgraph/internal/registry"
	"github.com/oriys/txgraph/internal/registry/memstore"
	"github.com/oriys/txgraph/internal/registry/pgstore"
	"github.com/oriys/txgraph/internal/registry/redisstore"
	"github.com/oriys/txgraph/internal/rpcclient"
	"github.com/oriys/txgraph/internal/txtypes"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "txreader",
		Short: "Reconstruct and tail a Solana program's executed instructions",
		Long:  "txreader joins a program's live transaction stream and a pull-API resync backfill into one continuous, deduplicated feed of reconstructed transaction meta.",
		RunE:  runTail,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to YAML config file (optional, env vars override)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func buildRegistry(ctx context.Context, cfg *config.Config) (registry.Store, registry.Rollback, error) {
	switch cfg.Registry.Backend {
	case config.RegistryRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Registry.RedisAddr, DB: cfg.Registry.RedisDB})
		store := redisstore.New(client, cfg.Registry.KeyPrefix)
		return store, store, nil
	case config.RegistryPostgres:
		store, err := pgstore.New(ctx, cfg.Registry.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres registry: %w", err)
		}
		return store, store, nil
	default:
		store := memstore.New()
		return store, store, nil
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logging.SetLevelFromString(cfg.Logging.Level)
	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.ProgramID == "" {
		return fmt.Errorf("program_id is required")
	}
	programID, err := txtypes.ParseProgramID(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("parse program_id: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, rollback, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	rpc := rpcclient.New(cfg.RPCEndpoint, cfg.AttemptsCount)

	var sub pubsub.Subscriber
	if cfg.PubsubEndpoint != "" {
		sub = pubsub.New(cfg.PubsubEndpoint)
	}

	var archiver archive.Writer
	if cfg.Archive.Enabled {
		w, err := archive.NewS3Writer(ctx, archive.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
			Region: cfg.Archive.Region,
		})
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		archiver = w
	}

	if cfg.Metrics.Enabled {
		obsmetrics.Init(cfg.Metrics.Namespace)
	}

	txConsumer := func(ctx context.Context, sig txtypes.Signature, meta *txtypes.TransactionParsedMeta) error {
		logging.Default().Log(&logging.TransactionLog{
			Signature:        sig.String(),
			ProgramID:        programID.String(),
			Slot:             uint64(meta.Slot),
			Source:           "live",
			InstructionCount: len(meta.Meta),
			Success:          true,
		})
		obsmetrics.RecordTransaction(programID.String(), "live", "success", 0)
		return nil
	}

	eventConsumer := func(ctx context.Context, sig txtypes.Signature, logs []string) (engine.ConsumeOutcome, error) {
		return engine.TransactionNeeded, nil
	}

	engineCfg := engine.Config{
		ProgramID:                 programID,
		Commitment:                cfg.CommitmentConfig,
		IsResyncEnabled:           cfg.IsResyncEnabled,
		ResyncDuration:            cfg.ResyncDuration,
		ResyncSignaturesChunkSize: cfg.ResyncSignaturesChunkSize,
		ResyncOrder:               cfg.EngineResyncOrder(),
		AttemptsCount:             cfg.AttemptsCount,
		AttemptTimeout:            cfg.AttemptTimeout,
	}

	resyncPtrSetter := func(ctx context.Context, slot txtypes.Slot) error {
		obsmetrics.SetResyncSlot(programID.String(), uint64(slot))
		return nil
	}

	eng := engine.New(engineCfg, store, rollback, rpc, sub, eventConsumer, txConsumer, resyncPtrSetter)
	if archiver != nil {
		eng.SetRawMetaHook(func(ctx context.Context, sig txtypes.Signature, meta *rpcclient.TransactionMeta) {
			if err := archiver.Put(ctx, programID, sig, meta); err != nil {
				logging.Op().Error("archive put failed", "signature", sig.String(), "error", err)
			}
		})
	}

	var httpServer *http.Server
	if cfg.Daemon.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("GET /metrics", obsmetrics.Handler())
		httpServer = &http.Server{Addr: cfg.Daemon.HTTPAddr, Handler: mux}
		go func() {
			logging.Op().Info("health/metrics server started", "addr", cfg.Daemon.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Op().Error("health server stopped", "error", err)
			}
		}()
	}

	logging.Op().Info("txreader started", "program_id", programID.String(), "resync_enabled", cfg.IsResyncEnabled)

	runErr := eng.Run(ctx)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpServer.Shutdown(shutdownCtx)
		cancel()
	}

	return runErr
}
