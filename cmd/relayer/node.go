// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/offchain"
	"github.com/luxfi/channel/relayer/config"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a simulated network serving JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.NewNodeConfig(v)
			if err != nil {
				return err
			}
			log, err := newLogger("node", cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return runNode(cmd.Context(), log, cfg)
		},
	}
	config.AddNodeFlags(cmd.Flags())
	return cmd
}

var healthProbeKey = []byte("health")

type nodeMetrics struct {
	height  prometheus.Gauge
	records prometheus.Counter
	errors  prometheus.Counter
}

func newNodeMetrics(registerer prometheus.Registerer) (*nodeMetrics, error) {
	m := &nodeMetrics{
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chain_height",
			Help: "Number of the last produced block",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chain_commitments_total",
			Help: "Number of outbound commitments recorded",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chain_block_errors_total",
			Help: "Number of failed block productions",
		}),
	}
	for _, c := range []prometheus.Collector{m.height, m.records, m.errors} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func runNode(ctx context.Context, log *zap.Logger, cfg config.NodeConfig) error {
	log = log.With(zap.Uint64("networkID", cfg.NetworkID))
	log.Info("Initializing node", zap.String("finality", cfg.Finality))

	db, err := database.NewLevelDB(filepath.Join(cfg.StorageLocation, fmt.Sprintf("network-%d", cfg.NetworkID)))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var store offchain.Store = offchain.NewDBStore(db)
	if cfg.OffchainRedisURL != "" {
		redisStore, err := offchain.NewRedisStore(cfg.OffchainRedisURL, 0)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		store = redisStore
	}

	c, err := chain.New(log, cfg.ChainConfig(), db, store)
	if err != nil {
		return fmt.Errorf("failed to create chain: %w", err)
	}
	rpcServer, err := chain.NewServer(c)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	registry := newRegistry()
	metrics, err := newNodeMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.BlockSchedule, func() {
		blockCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
		defer cancel()
		block, err := c.ProduceBlock(blockCtx)
		if err != nil {
			metrics.errors.Inc()
			log.Error("Failed to produce block", zap.Error(err))
			return
		}
		metrics.height.Set(float64(block.Number))
		metrics.records.Add(float64(len(block.Records)))
	})
	if err != nil {
		return fmt.Errorf("invalid block schedule: %w", err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           rpcServer,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Serving JSON-RPC", zap.String("address", cfg.HTTPAddress))
		return serve(gctx, httpServer)
	})
	g.Go(func() error {
		return serveMetrics(gctx, log, "node", cfg.MetricsPort, registry, func(context.Context) error {
			_, err := db.Has(healthProbeKey)
			return err
		})
	})
	err = g.Wait()
	log.Info("Node stopped", zap.Error(err))
	return err
}
