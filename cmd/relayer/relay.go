// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/channel/client"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/relayer"
	"github.com/luxfi/channel/relayer/config"
)

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay committed messages from a source to a destination network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.NewConfig(v)
			if err != nil {
				return err
			}
			log, err := newLogger("relayer", cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return runRelay(cmd.Context(), log, cfg)
		},
	}
	config.AddRelayFlags(cmd.Flags())
	return cmd
}

func runRelay(ctx context.Context, log *zap.Logger, cfg config.Config) error {
	log.Info("Initializing relayer", zap.String("version", version))

	rc, err := cfg.RelayerConfig()
	if err != nil {
		return err
	}
	source, err := client.Dial(ctx, cfg.SourceURL)
	if err != nil {
		return fmt.Errorf("failed to dial source %s: %w", cfg.SourceURL, err)
	}
	defer source.Close()
	dest, err := client.Dial(ctx, cfg.DestinationURL)
	if err != nil {
		return fmt.Errorf("failed to dial destination %s: %w", cfg.DestinationURL, err)
	}
	defer dest.Close()

	db, err := database.NewLevelDB(filepath.Join(cfg.StorageLocation, "checkpoints"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	registry := newRegistry()
	r, err := relayer.New(ctx, log, rc, source, dest, db, registry)
	if err != nil {
		return fmt.Errorf("failed to create relayer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(gctx, log, "relayer", cfg.MetricsPort, registry,
			func(ctx context.Context) error {
				_, err := source.Info(ctx)
				return err
			},
			func(ctx context.Context) error {
				_, err := dest.Info(ctx)
				return err
			},
		)
	})
	g.Go(func() error {
		return r.Run(gctx)
	})
	err = g.Wait()
	if flushErr := r.Flush(); flushErr != nil {
		log.Error("Failed to flush checkpoints", zap.Error(flushErr))
	}
	log.Info("Relayer stopped", zap.Error(err))
	return err
}
