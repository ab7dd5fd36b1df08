// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/relayer"
	"github.com/luxfi/channel/utils"
)

const (
	testChannel = "0x00000000000000000000000000000000000000c1"
	testReward  = "0x00000000000000000000000000000000000000b1"
	testKey     = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
)

func writeFile(t *testing.T, name, contents string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func relayFlags(t *testing.T, args ...string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	AddRelayFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestBuildConfigPrecedence(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "relayer.json", `{
		"source-url": "http://file-source",
		"destination-url": "http://file-destination",
		"reward-address": "`+testReward+`",
		"rpc-timeout": "3s",
		"header-batch-size": 8,
		"channels": [{"destination": 2, "channel": "`+testChannel+`"}]
	}`)
	t.Setenv("DESTINATION_URL", "http://env-destination")

	v, err := BuildViper(relayFlags(t, "--"+ConfigFileKey, path, "--"+SourceURLKey, "http://flag-source"))
	require.NoError(err)
	cfg, err := NewConfig(v)
	require.NoError(err)

	require.Equal("http://flag-source", cfg.SourceURL)
	require.Equal("http://env-destination", cfg.DestinationURL)
	require.Equal(3*time.Second, cfg.RPCTimeout)
	require.Equal(8, cfg.HeaderBatchSize)
	require.Equal(utils.DefaultRetryTimeout, cfg.RetryTimeout)
	require.Equal(relayer.DefaultPollInterval, cfg.PollInterval)
	require.Equal(defaultLogLevel, cfg.LogLevel)
	require.Equal([]ChannelConfig{{Destination: 2, Channel: testChannel}}, cfg.Channels)

	rc, err := cfg.RelayerConfig()
	require.NoError(err)
	require.Equal(common.HexToAddress(testReward), rc.Address)
	require.Len(rc.Routes, 1)
	require.Equal(common.HexToAddress(testChannel), rc.Routes[0].Channel)
	require.Nil(rc.Signer)
}

func TestBuildConfigYAML(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "relayer.yaml", `
source-url: http://a
destination-url: http://b
reward-address: "`+testReward+`"
signer-private-key: "`+testKey+`"
max-submissions-per-second: 2.5
channels:
  - destination: 3
    channel: "`+testChannel+`"
`)
	v, err := BuildViper(relayFlags(t, "--"+ConfigFileKey, path))
	require.NoError(err)
	cfg, err := NewConfig(v)
	require.NoError(err)
	require.Equal(2.5, cfg.MaxSubmissionsPerSecond)

	rc, err := cfg.RelayerConfig()
	require.NoError(err)
	require.NotNil(rc.Signer)
	require.Equal(uint64(3), uint64(rc.Routes[0].Destination))
}

func TestBuildViperMissingFile(t *testing.T) {
	_, err := BuildViper(relayFlags(t, "--"+ConfigFileKey, filepath.Join(t.TempDir(), "missing.json")))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			SourceURL:      "http://a",
			DestinationURL: "http://b",
			RewardAddress:  testReward,
			Channels:       []ChannelConfig{{Destination: 2, Channel: testChannel}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing source", mutate: func(c *Config) { c.SourceURL = "" }, err: errMissingSourceURL},
		{name: "missing destination", mutate: func(c *Config) { c.DestinationURL = "" }, err: errMissingDestinationURL},
		{name: "no channels", mutate: func(c *Config) { c.Channels = nil }, err: errMissingChannels},
		{name: "missing reward address", mutate: func(c *Config) { c.RewardAddress = "" }, err: errMissingRewardAddress},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(&cfg)
			err := cfg.Validate()
			if test.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, test.err)
		})
	}

	cfg := valid()
	cfg.Channels[0].Channel = "not-an-address"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.SignerPrivateKey = "zz"
	require.Error(t, cfg.Validate())
}

func TestNodeConfig(t *testing.T) {
	require := require.New(t)
	fs := pflag.NewFlagSet("node", pflag.ContinueOnError)
	AddNodeFlags(fs)
	require.NoError(fs.Parse([]string{
		"--" + NetworkIDKey, "1",
		"--" + AdminKey, testReward,
		"--" + CommitteeKey, testChannel + "," + testReward,
	}))
	v, err := BuildViper(fs)
	require.NoError(err)
	cfg, err := NewNodeConfig(v)
	require.NoError(err)

	require.Equal(defaultHTTPAddress, cfg.HTTPAddress)
	require.Equal(defaultBlockSchedule, cfg.BlockSchedule)
	cc := cfg.ChainConfig()
	require.Equal(chain.FinalityCommittee, cc.Finality)
	require.Len(cc.Committee, 2)

	cfg.BlockSchedule = "not a schedule"
	require.Error(cfg.Validate())

	cfg.BlockSchedule = defaultBlockSchedule
	cfg.Finality = "unknown"
	require.Error(cfg.Validate())

	cfg.Finality = string(chain.FinalityProofOfWork)
	cfg.Committee = nil
	require.NoError(cfg.Validate())
}
