// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/spf13/cobra"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/client"
	"github.com/luxfi/channel/inbound"
	"github.com/luxfi/channel/outbound"
)

const (
	directionOutbound = "outbound"
	directionInbound  = "inbound"
)

var errNoHeaders = errors.New("source returned no anchor header")

func dialAdmin(cmd *cobra.Command, urlFlag string) (*client.Admin, error) {
	url, _ := cmd.Flags().GetString(urlFlag)
	key, _ := cmd.Flags().GetString("admin-key")
	signer, err := approval.NewLocalSignerFromHex(key)
	if err != nil {
		return nil, fmt.Errorf("invalid admin key: %w", err)
	}
	c, err := client.Dial(cmd.Context(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return client.NewAdmin(c, signer), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func newRegisterChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-channel",
		Short: "Register an outbound or inbound channel on a network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			direction, _ := flags.GetString("direction")
			remote, _ := flags.GetUint64("remote")
			channelHex, _ := flags.GetString("channel")
			channelID, err := parseAddress(channelHex)
			if err != nil {
				return err
			}

			admin, err := dialAdmin(cmd, "url")
			if err != nil {
				return err
			}
			defer admin.Close()
			ctx := cmd.Context()

			switch direction {
			case directionOutbound:
				cfg := outbound.DefaultConfig(channel.NetworkID(remote), channelID)
				cfg.Kind, _ = flags.GetString("kind")
				cfg.MaxPayloadSize, _ = flags.GetInt("max-payload-size")
				cfg.MaxMessagesPerCommit, _ = flags.GetInt("max-messages")
				cfg.QueueCapacity, _ = flags.GetInt("queue-capacity")
				cfg.MaxGasPerCommit, _ = flags.GetUint64("max-gas")
				cfg.CommitInterval, _ = flags.GetUint64("commit-interval")
				if err := admin.RegisterOutbound(ctx, cfg); err != nil {
					return err
				}
			case directionInbound:
				info, err := admin.Info(ctx)
				if err != nil {
					return err
				}
				cfg := inbound.DefaultConfig(channel.NetworkID(remote), info.NetworkID, channelID)
				cfg.RewardFraction, _ = flags.GetUint64("reward-fraction")
				treasury, _ := flags.GetString("treasury")
				if treasury != "" {
					if cfg.Treasury, err = parseAddress(treasury); err != nil {
						return err
					}
				}
				if err := admin.RegisterInbound(ctx, cfg); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown direction %q", direction)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s channel %s with network %d\n", direction, channelID, remote)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("url", "http://127.0.0.1:9650", "RPC endpoint of the network to configure")
	flags.String("admin-key", "", "Hex encoded admin private key")
	flags.String("direction", directionOutbound, "Channel direction, outbound or inbound")
	flags.Uint64("remote", 0, "Network id of the other end of the channel")
	flags.String("channel", "", "Channel address")
	flags.String("kind", outbound.KindIncentivized, "Outbound channel kind")
	flags.Int("max-payload-size", channel.DefaultMaxPayloadSize, "Largest accepted payload in bytes")
	flags.Int("max-messages", outbound.DefaultMaxMessagesPerCommit, "Messages per commitment")
	flags.Int("queue-capacity", 0, "Pending message bound, zero means max-messages")
	flags.Uint64("max-gas", 0, "Summed max gas per commitment, zero disables the cap")
	flags.Uint64("commit-interval", outbound.DefaultCommitInterval, "Blocks between commits")
	flags.Uint64("reward-fraction", inbound.DefaultRewardFraction, "Relayer share of batch fees in per-mill")
	flags.String("treasury", "", "Recipient of the remaining batch fees")
	_ = cmd.MarkFlagRequired("admin-key")
	_ = cmd.MarkFlagRequired("remote")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newInitLightClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-light-client",
		Short: "Initialize the destination light client of a source network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			sourceURL, _ := flags.GetString("source-url")
			block, _ := flags.GetUint64("block")
			depth, _ := flags.GetUint64("finality-depth")
			minDifficulty, _ := flags.GetUint64("min-difficulty")
			ctx := cmd.Context()

			source, err := client.Dial(ctx, sourceURL)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", sourceURL, err)
			}
			defer source.Close()
			admin, err := dialAdmin(cmd, "destination-url")
			if err != nil {
				return err
			}
			defer admin.Close()

			info, err := source.Info(ctx)
			if err != nil {
				return err
			}
			switch info.Finality {
			case chain.FinalityCommittee:
				vs, err := source.Validators(ctx)
				if err != nil {
					return err
				}
				if err := admin.InitializeCommittee(ctx, info.NetworkID, vs, nil, block); err != nil {
					return err
				}
			case chain.FinalityProofOfWork:
				headers, err := source.Headers(ctx, block, 1)
				if err != nil {
					return err
				}
				if len(headers) == 0 {
					return errNoHeaders
				}
				if err := admin.InitializeHeaderChain(ctx, info.NetworkID, headers[0], depth, minDifficulty); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown finality %q", info.Finality)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s light client of network %d at block %d\n", info.Finality, info.NetworkID, block)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("source-url", "", "RPC endpoint of the source network")
	flags.String("destination-url", "", "RPC endpoint of the destination network")
	flags.String("admin-key", "", "Hex encoded admin private key of the destination")
	flags.Uint64("block", 0, "Source block the light client starts from")
	flags.Uint64("finality-depth", 6, "Confirmations before a header is final")
	flags.Uint64("min-difficulty", 0, "Lowest accepted header difficulty, 0 for the anchor's")
	_ = cmd.MarkFlagRequired("source-url")
	_ = cmd.MarkFlagRequired("destination-url")
	_ = cmd.MarkFlagRequired("admin-key")
	return cmd
}
