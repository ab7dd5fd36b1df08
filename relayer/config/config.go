// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package config builds relayer and node configuration from flags, a
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/robfig/cron/v3"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/relayer"
)

const (
	defaultLogLevel        = "info"
	defaultStorageLocation = "./.relayer-storage"
	defaultHTTPAddress     = "127.0.0.1:9650"
	defaultBlockSchedule   = "@every 2s"
	defaultMetricsPort     = 9090
)

var (
	errMissingSourceURL      = errors.New("source-url is required")
	errMissingDestinationURL = errors.New("destination-url is required")
	errMissingChannels       = errors.New("at least one channel is required")
	errMissingRewardAddress  = errors.New("reward-address is required")
)

// ChannelConfig names one channel to relay
type ChannelConfig struct {
	Destination uint64 `mapstructure:"destination" json:"destination"`
	Channel     string `mapstructure:"channel" json:"channel"`
}

// Config of the relay command
type Config struct {
	LogLevel                string          `mapstructure:"log-level" json:"log-level"`
	SourceURL               string          `mapstructure:"source-url" json:"source-url"`
	DestinationURL          string          `mapstructure:"destination-url" json:"destination-url"`
	Channels                []ChannelConfig `mapstructure:"channels" json:"channels"`
	RewardAddress           string          `mapstructure:"reward-address" json:"reward-address"`
	SignerPrivateKey        string          `mapstructure:"signer-private-key" json:"signer-private-key"`
	StorageLocation         string          `mapstructure:"storage-location" json:"storage-location"`
	PollInterval            time.Duration   `mapstructure:"poll-interval" json:"poll-interval"`
	DBWriteInterval         time.Duration   `mapstructure:"db-write-interval" json:"db-write-interval"`
	RPCTimeout              time.Duration   `mapstructure:"rpc-timeout" json:"rpc-timeout"`
	RetryTimeout            time.Duration   `mapstructure:"retry-timeout" json:"retry-timeout"`
	MaxSubmissionsPerSecond float64         `mapstructure:"max-submissions-per-second" json:"max-submissions-per-second"`
	CommitmentCacheTTL      time.Duration   `mapstructure:"commitment-cache-ttl" json:"commitment-cache-ttl"`
	HeaderBatchSize         int             `mapstructure:"header-batch-size" json:"header-batch-size"`
	MetricsPort             uint16          `mapstructure:"metrics-port" json:"metrics-port"`
}

func (c *Config) Validate() error {
	if c.SourceURL == "" {
		return errMissingSourceURL
	}
	if c.DestinationURL == "" {
		return errMissingDestinationURL
	}
	if len(c.Channels) == 0 {
		return errMissingChannels
	}
	for i, ch := range c.Channels {
		if !common.IsHexAddress(ch.Channel) {
			return fmt.Errorf("invalid address %q of channel %d", ch.Channel, i)
		}
	}
	if c.RewardAddress == "" {
		return errMissingRewardAddress
	}
	if !common.IsHexAddress(c.RewardAddress) {
		return fmt.Errorf("invalid reward address %q", c.RewardAddress)
	}
	if c.SignerPrivateKey != "" {
		if _, err := approval.NewLocalSignerFromHex(c.SignerPrivateKey); err != nil {
			return fmt.Errorf("invalid signer private key: %w", err)
		}
	}
	return nil
}

// RelayerConfig converts c into the relayer's own config
func (c *Config) RelayerConfig() (relayer.Config, error) {
	rc := relayer.Config{
		Address:              common.HexToAddress(c.RewardAddress),
		PollInterval:         c.PollInterval,
		WriteInterval:        c.DBWriteInterval,
		RPCTimeout:           c.RPCTimeout,
		RetryTimeout:         c.RetryTimeout,
		SubmissionsPerSecond: c.MaxSubmissionsPerSecond,
		CommitmentCacheTTL:   c.CommitmentCacheTTL,
		HeaderBatchSize:      c.HeaderBatchSize,
	}
	for _, ch := range c.Channels {
		rc.Routes = append(rc.Routes, relayer.Route{
			Destination: channel.NetworkID(ch.Destination),
			Channel:     common.HexToAddress(ch.Channel),
		})
	}
	if c.SignerPrivateKey != "" {
		signer, err := approval.NewLocalSignerFromHex(c.SignerPrivateKey)
		if err != nil {
			return relayer.Config{}, err
		}
		rc.Signer = signer
	}
	return rc, nil
}

// NodeConfig of the node command
type NodeConfig struct {
	LogLevel         string        `mapstructure:"log-level" json:"log-level"`
	NetworkID        uint64        `mapstructure:"network-id" json:"network-id"`
	Admin            string        `mapstructure:"admin" json:"admin"`
	Finality         string        `mapstructure:"finality" json:"finality"`
	Committee        []string      `mapstructure:"committee" json:"committee"`
	Difficulty       uint64        `mapstructure:"difficulty" json:"difficulty"`
	RoundRobin       bool          `mapstructure:"round-robin" json:"round-robin"`
	HistorySize      int           `mapstructure:"history-size" json:"history-size"`
	Inboxes          []string      `mapstructure:"inboxes" json:"inboxes"`
	StorageLocation  string        `mapstructure:"storage-location" json:"storage-location"`
	HTTPAddress      string        `mapstructure:"http-address" json:"http-address"`
	BlockSchedule    string        `mapstructure:"block-schedule" json:"block-schedule"`
	OffchainRedisURL string        `mapstructure:"offchain-redis-url" json:"offchain-redis-url"`
	MetricsPort      uint16        `mapstructure:"metrics-port" json:"metrics-port"`
	RPCTimeout       time.Duration `mapstructure:"rpc-timeout" json:"rpc-timeout"`
}

func (c *NodeConfig) Validate() error {
	if c.NetworkID == 0 {
		return errors.New("network-id is required")
	}
	if !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("invalid admin address %q", c.Admin)
	}
	for _, addr := range append(append([]string{}, c.Committee...), c.Inboxes...) {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address %q", addr)
		}
	}
	if _, err := cron.ParseStandard(c.BlockSchedule); err != nil {
		return fmt.Errorf("invalid block schedule %q: %w", c.BlockSchedule, err)
	}
	cc := c.ChainConfig()
	return cc.Validate()
}

// ChainConfig converts c into the chain simulator config
func (c *NodeConfig) ChainConfig() chain.Config {
	cc := chain.Config{
		NetworkID:   channel.NetworkID(c.NetworkID),
		Admin:       common.HexToAddress(c.Admin),
		Finality:    chain.Finality(c.Finality),
		Difficulty:  c.Difficulty,
		RoundRobin:  c.RoundRobin,
		HistorySize: c.HistorySize,
	}
	for _, addr := range c.Committee {
		cc.Committee = append(cc.Committee, common.HexToAddress(addr))
	}
	for _, addr := range c.Inboxes {
		cc.Inboxes = append(cc.Inboxes, common.HexToAddress(addr))
	}
	return cc
}
