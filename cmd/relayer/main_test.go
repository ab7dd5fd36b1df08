// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/channel"
	"github.com/luxfi/channel/approval"
	"github.com/luxfi/channel/chain"
	"github.com/luxfi/channel/database"
	"github.com/luxfi/channel/offchain"
)

var testChannel = common.HexToAddress("0x00000000000000000000000000000000000000c1")

type testKey struct {
	hex    string
	signer *approval.LocalSigner
}

func newTestKey(t *testing.T) testKey {
	sk, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{
		hex:    hex.EncodeToString(crypto.FromECDSA(sk)),
		signer: approval.NewLocalSigner(sk),
	}
}

func newTestChain(t *testing.T, config chain.Config) (*chain.Chain, string) {
	db := database.NewMemDB()
	c, err := chain.New(zap.NewNop(), config, db, offchain.NewDBStore(db))
	require.NoError(t, err)
	server, err := chain.NewServer(c)
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	return c, httpServer.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAdminCommands(t *testing.T) {
	require := require.New(t)
	admin := newTestKey(t)
	member := newTestKey(t)
	a, urlA := newTestChain(t, chain.Config{
		NetworkID: 1,
		Admin:     admin.signer.Address(),
		Finality:  chain.FinalityCommittee,
		Committee: []common.Address{member.signer.Address()},
	})
	_, urlB := newTestChain(t, chain.Config{
		NetworkID: 2,
		Admin:     admin.signer.Address(),
		Finality:  chain.FinalityProofOfWork,
	})

	out, err := execute(t, "register-channel",
		"--url", urlA,
		"--admin-key", admin.hex,
		"--remote", "2",
		"--channel", testChannel.Hex(),
		"--commit-interval", "1",
	)
	require.NoError(err)
	require.Contains(out, "Registered outbound channel")

	out, err = execute(t, "register-channel",
		"--url", urlB,
		"--admin-key", admin.hex,
		"--direction", "inbound",
		"--remote", "1",
		"--channel", testChannel.Hex(),
	)
	require.NoError(err)
	require.Contains(out, "Registered inbound channel")

	// Non-admin keys are refused by the chain.
	_, err = execute(t, "register-channel",
		"--url", urlA,
		"--admin-key", member.hex,
		"--remote", "3",
		"--channel", testChannel.Hex(),
	)
	require.ErrorIs(err, channel.ErrForbidden)

	out, err = execute(t, "init-light-client",
		"--source-url", urlA,
		"--destination-url", urlB,
		"--admin-key", admin.hex,
	)
	require.NoError(err)
	require.Contains(out, "Initialized committee light client of network 1")

	_, err = a.SubmitMessage(admin.signer.Address(), 2, testChannel, testChannel, []byte("hi"), uint256.NewInt(1), 10)
	require.NoError(err)
	block, err := a.ProduceBlock(context.Background())
	require.NoError(err)
	require.NotNil(block.Statement)

	out, err = execute(t, "sign", "--url", urlA, "--key", member.hex)
	require.NoError(err)
	require.Contains(out, "Block 1 approved, ready: true")

	out, err = execute(t, "status", "--url", urlA, "--remote", "2", "--channels", testChannel.Hex())
	require.NoError(err)
	var status networkStatus
	require.NoError(json.Unmarshal([]byte(out), &status))
	require.Equal(channel.NetworkID(1), status.Info.NetworkID)
	require.Len(status.Channels, 1)
	require.NotNil(status.Channels[0].Outbound)
	require.Equal(uint64(1), status.Channels[0].Outbound.CommittedNonce)
	require.Nil(status.Channels[0].Dispatched)
	require.Nil(status.LightClient)

	out, err = execute(t, "status", "--url", urlB, "--remote", "1", "--channels", testChannel.Hex())
	require.NoError(err)
	status = networkStatus{}
	require.NoError(json.Unmarshal([]byte(out), &status))
	require.Nil(status.Channels[0].Outbound)
	require.NotNil(status.Channels[0].Dispatched)
	require.Zero(*status.Channels[0].Dispatched)
	require.NotNil(status.LightClient)
	require.Equal(chain.FinalityCommittee, status.LightClient.Finality)
}

func TestCommandConfigErrors(t *testing.T) {
	admin := newTestKey(t)
	_, urlA := newTestChain(t, chain.Config{
		NetworkID: 1,
		Admin:     admin.signer.Address(),
		Finality:  chain.FinalityCommittee,
		Committee: []common.Address{admin.signer.Address()},
	})
	_, urlB := newTestChain(t, chain.Config{
		NetworkID: 2,
		Admin:     admin.signer.Address(),
		Finality:  chain.FinalityProofOfWork,
	})
	relayConfig, err := json.Marshal(map[string]any{
		"source-url":       urlA,
		"destination-url":  urlB,
		"reward-address":   admin.signer.Address().Hex(),
		"storage-location": t.TempDir(),
		"metrics-port":     0,
		"channels": []map[string]any{
			{"destination": 2, "channel": testChannel.Hex()},
		},
	})
	require.NoError(t, err)
	unregistered := filepath.Join(t.TempDir(), "relayer.json")
	require.NoError(t, os.WriteFile(unregistered, relayConfig, 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "relay without endpoints", args: []string{"relay"}},
		{name: "node without network", args: []string{"node"}},
		{name: "register without admin key", args: []string{"register-channel", "--remote", "2", "--channel", testChannel.Hex()}},
		{name: "unknown direction", args: []string{"register-channel", "--admin-key", newTestKey(t).hex, "--remote", "2", "--channel", testChannel.Hex(), "--direction", "sideways", "--url", "http://127.0.0.1:1"}},
		{name: "bad log level", args: []string{"relay", "--log-level", "loud"}},
		{name: "relay on unregistered channel", args: []string{"relay", "--config-file", unregistered}, wantErr: channel.ErrUnknownChannel},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := execute(t, test.args...)
			require.Error(t, err)
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
			}
		})
	}
}
