// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/relayer"
	"github.com/luxfi/channel/utils"
)

// AddRelayFlags registers the relay command options on fs
func AddRelayFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON or YAML configuration file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String(SourceURLKey, "", "RPC endpoint of the source network")
	fs.String(DestinationURLKey, "", "RPC endpoint of the destination network")
	fs.String(RewardAddressKey, "", "Address credited with delivery fees")
	fs.String(SignerPrivateKeyKey, "", "Hex encoded committee key used to approve statements")
	fs.String(StorageLocationKey, defaultStorageLocation, "Directory of the checkpoint database")
	fs.Duration(PollIntervalKey, relayer.DefaultPollInterval, "Interval between relay rounds")
	fs.Uint16(MetricsPortKey, defaultMetricsPort, "Port of the prometheus metrics server, 0 disables it")
}

// AddNodeFlags registers the node command options on fs
func AddNodeFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON or YAML configuration file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Uint64(NetworkIDKey, 0, "Network identifier of this chain")
	fs.String(AdminKey, "", "Address allowed to register channels and manage light clients")
	fs.String(FinalityKey, string(chain.FinalityCommittee), "Finality mode, committee or pow")
	fs.StringSlice(CommitteeKey, nil, "Genesis committee addresses")
	fs.StringSlice(InboxesKey, nil, "Target addresses whose delivered payloads are kept")
	fs.String(StorageLocationKey, defaultStorageLocation, "Directory of the chain database")
	fs.String(HTTPAddressKey, defaultHTTPAddress, "Listen address of the JSON-RPC server")
	fs.String(BlockScheduleKey, defaultBlockSchedule, "Cron schedule of block production")
	fs.String(OffchainRedisURLKey, "", "Redis URL of the off-chain commitment store, empty keeps it in the chain database")
	fs.Uint16(MetricsPortKey, 0, "Port of the prometheus metrics server, 0 disables it")
}

// BuildViper binds fs and the environment. The config file is optional;
// when given its type follows the file extension.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Flags are capitalized and hyphens become underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) || v.GetString(ConfigFileKey) == "" {
		return v, nil
	}
	filename := os.ExpandEnv(v.GetString(ConfigFileKey))
	v.SetConfigFile(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(StorageLocationKey, defaultStorageLocation)
	v.SetDefault(PollIntervalKey, relayer.DefaultPollInterval)
	v.SetDefault(DBWriteIntervalKey, relayer.DefaultWriteInterval)
	v.SetDefault(RPCTimeoutKey, utils.DefaultRPCTimeout)
	v.SetDefault(RetryTimeoutKey, utils.DefaultRetryTimeout)
	v.SetDefault(CommitmentCacheTTLKey, relayer.DefaultCommitmentCacheTTL)
	v.SetDefault(HeaderBatchSizeKey, relayer.DefaultHeaderBatchSize)
}

func setDefaultNodeValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(FinalityKey, string(chain.FinalityCommittee))
	v.SetDefault(StorageLocationKey, defaultStorageLocation)
	v.SetDefault(HTTPAddressKey, defaultHTTPAddress)
	v.SetDefault(BlockScheduleKey, defaultBlockSchedule)
	v.SetDefault(RPCTimeoutKey, 30*time.Second)
}

// BuildConfig constructs the relay config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// NewNodeConfig builds and validates the node config with the same
// precedence as BuildConfig
func NewNodeConfig(v *viper.Viper) (NodeConfig, error) {
	setDefaultNodeValues(v)

	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}
