// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Relay keys
	LogLevelKey                = "log-level"
	SourceURLKey               = "source-url"
	DestinationURLKey          = "destination-url"
	ChannelsKey                = "channels"
	RewardAddressKey           = "reward-address"
	SignerPrivateKeyKey        = "signer-private-key"
	StorageLocationKey         = "storage-location"
	PollIntervalKey            = "poll-interval"
	DBWriteIntervalKey         = "db-write-interval"
	RPCTimeoutKey              = "rpc-timeout"
	RetryTimeoutKey            = "retry-timeout"
	MaxSubmissionsPerSecondKey = "max-submissions-per-second"
	CommitmentCacheTTLKey      = "commitment-cache-ttl"
	HeaderBatchSizeKey         = "header-batch-size"
	MetricsPortKey             = "metrics-port"

	// Node keys
	NetworkIDKey        = "network-id"
	AdminKey            = "admin"
	FinalityKey         = "finality"
	CommitteeKey        = "committee"
	DifficultyKey       = "difficulty"
	RoundRobinKey       = "round-robin"
	HistorySizeKey      = "history-size"
	InboxesKey          = "inboxes"
	HTTPAddressKey      = "http-address"
	BlockScheduleKey    = "block-schedule"
	OffchainRedisURLKey = "offchain-redis-url"
)
