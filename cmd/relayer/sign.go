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
	"github.com/luxfi/channel/client"
)

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Approve committee statements or a pending request with a committee key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			url, _ := flags.GetString("url")
			key, _ := flags.GetString("key")
			request, _ := flags.GetString("request")
			after, _ := flags.GetUint64("after")
			limit, _ := flags.GetInt("limit")

			signer, err := approval.NewLocalSignerFromHex(key)
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			ctx := cmd.Context()
			c, err := client.Dial(ctx, url)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", url, err)
			}
			defer c.Close()
			out := cmd.OutOrStdout()

			if request != "" {
				hash := common.HexToHash(request)
				sig, err := signer.Sign(hash)
				if err != nil {
					return err
				}
				status, err := c.ApproveRequest(ctx, hash, signer.Address(), sig)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Request %s: %s\n", hash, status)
				return nil
			}

			statements, err := c.Statements(ctx, after, limit)
			if err != nil {
				return err
			}
			for i := range statements {
				st := &statements[i]
				sig, err := signer.Sign(st.Digest())
				if err != nil {
					return err
				}
				ready, err := c.Approve(ctx, st.BlockNumber, signer.Address(), sig)
				switch {
				case errors.Is(err, channel.ErrStaleClaim), channel.IsDuplicate(err):
					continue
				case err != nil:
					return fmt.Errorf("failed to approve block %d: %w", st.BlockNumber, err)
				}
				fmt.Fprintf(out, "Block %d approved, ready: %t\n", st.BlockNumber, ready)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("url", "http://127.0.0.1:9650", "RPC endpoint of the network")
	flags.String("key", "", "Hex encoded committee private key")
	flags.String("request", "", "Hash of a pending request to approve instead of statements")
	flags.Uint64("after", 0, "Only sign statements after this block")
	flags.Int("limit", 64, "Maximum number of statements to sign")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
