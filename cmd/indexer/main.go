package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/whetstoneresearch/doppler-indexer-go/internal/cache"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/chain"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/config"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/oracle"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/scheduler"
	"github.com/whetstoneresearch/doppler-indexer-go/internal/store/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Derived-state engine for launchpad trading venues",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the refresh schedulers",
		RunE:  runSchedulers,
	}

	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("rpc", "", "chain RPC URL (single-chain mode)")
	runCmd.Flags().Uint64("chain-id", 0, "chain id (single-chain mode)")
	runCmd.Flags().StringSlice("stablecoins", nil, "stablecoin addresses (comma-separated)")
	runCmd.Flags().Duration("epoch-interval", 30*time.Second, "epoch sweep interval")
	runCmd.Flags().Duration("rolling-interval", time.Minute, "rolling volume sweep interval")
	runCmd.Flags().Duration("oracle-step", 300*time.Second, "oracle backward-walk step")
	runCmd.Flags().Int("oracle-max-attempts", 10, "oracle backward-walk attempt ceiling")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSchedulers(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDsn == "" {
		return fmt.Errorf("pg-dsn is required")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := postgres.NewStore(ctx, cfg.PGDsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		return err
	}

	invalid := cache.NewInvalidPoolCache(st.ScanInvalidPools, st.InsertInvalidPool, logger)
	if err := invalid.Preload(ctx); err != nil {
		return err
	}

	priceOracle := oracle.New(st, nil, oracle.Config{
		Step:        cfg.OracleStep,
		MaxAttempts: cfg.OracleMaxAttempts,
		Stablecoins: cfg.StablecoinsByChain(),
	}, logger)

	g, ctx := errgroup.WithContext(ctx)

	for _, chainCfg := range cfg.Chains {
		if chainCfg.RPCURL == "" {
			return fmt.Errorf("chain %d: rpc url is required", chainCfg.ChainID)
		}
		client, err := chain.NewClient(ctx, chainCfg.RPCURL)
		if err != nil {
			return fmt.Errorf("chain %d: connect rpc: %w", chainCfg.ChainID, err)
		}
		defer client.Close()

		reported, err := client.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain %d: read chain id: %w", chainCfg.ChainID, err)
		}
		if reported.Uint64() != chainCfg.ChainID {
			return fmt.Errorf("chain id mismatch: config says %d, rpc reports %s", chainCfg.ChainID, reported)
		}

		chainLogger := logger.With(zap.Uint64("chain_id", chainCfg.ChainID))
		quoter := scheduler.NewChainQuoter(client)

		epoch := scheduler.NewEpochScheduler(
			chainCfg.ChainID, st, quoter, priceOracle, invalid, cfg.EpochInterval, chainLogger)
		rolling := scheduler.NewRollingScheduler(
			chainCfg.ChainID, st, cfg.RollingInterval, chainLogger)

		g.Go(func() error { return epoch.Run(ctx) })
		g.Go(func() error { return rolling.Run(ctx) })

		chainLogger.Info("schedulers start",
			zap.Duration("epoch_interval", cfg.EpochInterval),
			zap.Duration("rolling_interval", cfg.RollingInterval),
		)
	}

	return g.Wait()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
