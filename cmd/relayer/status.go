// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/client"
)

type channelStatus struct {
	Remote     channel.NetworkID     `json:"remote"`
	Channel    string                `json:"channel"`
	Outbound   *chain.OutboundStatus `json:"outbound,omitempty"`
	Dispatched *uint64               `json:"dispatched,omitempty"`
}

type networkStatus struct {
	Info        *chain.Info              `json:"info"`
	Channels    []channelStatus          `json:"channels,omitempty"`
	LightClient *chain.LightClientStatus `json:"lightClient,omitempty"`
	Pending     int                      `json:"pendingRequests"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the state of a network and its channels as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			url, _ := flags.GetString("url")
			remote, _ := flags.GetUint64("remote")
			channels, _ := flags.GetStringSlice("channels")
			ctx := cmd.Context()

			c, err := client.Dial(ctx, url)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", url, err)
			}
			defer c.Close()

			status := networkStatus{}
			if status.Info, err = c.Info(ctx); err != nil {
				return err
			}
			network := channel.NetworkID(remote)
			for _, hex := range channels {
				channelID, err := parseAddress(hex)
				if err != nil {
					return err
				}
				cs := channelStatus{Remote: network, Channel: channelID.Hex()}
				if out, err := c.Outbound(ctx, network, channelID); err == nil {
					cs.Outbound = out
				} else if channel.Classify(err) != channel.KindRejectedInput {
					return err
				}
				if nonce, err := c.Dispatched(ctx, network, channelID); err == nil {
					cs.Dispatched = &nonce
				} else if channel.Classify(err) != channel.KindRejectedInput {
					return err
				}
				status.Channels = append(status.Channels, cs)
			}
			if remote != 0 {
				lc, err := c.LightClient(ctx, network)
				switch {
				case err == nil:
					status.LightClient = lc
				case channel.Classify(err) != channel.KindRejectedInput:
					return err
				}
			}
			pending, err := c.PendingRequests(ctx)
			switch {
			case err == nil:
				status.Pending = len(pending)
			case channel.Classify(err) != channel.KindRejectedInput:
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	flags := cmd.Flags()
	flags.String("url", "http://127.0.0.1:9650", "RPC endpoint of the network")
	flags.Uint64("remote", 0, "Network id of the remote end of the listed channels")
	flags.StringSlice("channels", nil, "Channel addresses to report")
	return cmd
}
