// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/sampleconfig"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

// newTestConfig returns the default options on the regression test network
// with the directories under a temporary directory.
func newTestConfig(t *testing.T) *config {
	t.Helper()

	home := t.TempDir()
	return &config{
		DataDir:           filepath.Join(home, defaultDataDirname),
		LogDir:            filepath.Join(home, defaultLogDirname),
		DebugLevel:        defaultLogLevel,
		RegressionTest:    true,
		MinRelayTxFee:     mining.DefaultMinRelayTxFee.ToBTC(),
		MaxMempool:        defaultMaxMempoolMB,
		BlockMinSize:      defaultBlockMinSize,
		BlockMaxSize:      defaultBlockMaxSize,
		BlockPrioritySize: defaultBlockPrioritySize,
		TemplateRefresh:   defaultTemplateRefresh,
		GenProcLimit:      1,
	}
}

// testMiningAddr returns a regression test network address.
func testMiningAddr(t *testing.T) string {
	t.Helper()

	addr, err := txscript.EncodeAddress(txscript.PubKeyHashTy,
		bytes.Repeat([]byte{0x07}, 20), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr
}

func TestFinishConfig(t *testing.T) {
	cfg := newTestConfig(t)
	dataDir := cfg.DataDir
	cfg.MiningAddrs = []string{testMiningAddr(t)}
	cfg.Generate = true

	require.NoError(t, finishConfig(cfg))
	require.Equal(t, &chaincfg.RegressionNetParams, cfg.params)
	require.Equal(t, filepath.Join(dataDir, "regtest"), cfg.DataDir)
	require.Equal(t, mining.DefaultMinRelayTxFee, cfg.minRelayTxFee)
	require.Equal(t, cfg.MiningAddrs, cfg.payouts)

	// Regression test networks check the pool by default.
	require.True(t, cfg.CheckMempool)

	policy := cfg.mempoolPolicy()
	require.True(t, policy.AcceptNonStd)
	require.Equal(t, int64(defaultMaxMempoolMB)*1024*1024,
		policy.MaxPoolUsage)
}

func TestFinishConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config)
	}{{
		name: "two networks",
		modify: func(cfg *config) {
			cfg.TestNet3 = true
		},
	}, {
		name: "bad debug level",
		modify: func(cfg *config) {
			cfg.DebugLevel = "loud"
		},
	}, {
		name: "unknown subsystem",
		modify: func(cfg *config) {
			cfg.DebugLevel = "NOPE=debug"
		},
	}, {
		name: "relay and reject nonstandard",
		modify: func(cfg *config) {
			cfg.RelayNonStd = true
			cfg.RejectNonStd = true
		},
	}, {
		name: "negative relay fee",
		modify: func(cfg *config) {
			cfg.MinRelayTxFee = -1
		},
	}, {
		name: "short template refresh",
		modify: func(cfg *config) {
			cfg.TemplateRefresh = 100 * time.Millisecond
		},
	}, {
		name: "bad mining address",
		modify: func(cfg *config) {
			cfg.MiningAddrs = []string{"notanaddress"}
		},
	}, {
		name: "generate without address",
		modify: func(cfg *config) {
			cfg.Generate = true
		},
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			test.modify(cfg)
			require.Error(t, finishConfig(cfg))
		})
	}
}

func TestFinishConfigClampsBlockSizes(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RejectNonStd = true
	cfg.BlockMaxSize = 1
	cfg.BlockMinSize = 1 << 30

	require.NoError(t, finishConfig(cfg))
	require.LessOrEqual(t, cfg.BlockMinSize, cfg.BlockMaxSize)
	require.Equal(t, cfg.miningPolicy(), cfg.miningPolicy().Normalize())
	require.False(t, cfg.mempoolPolicy().AcceptNonStd)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home", defaultConfigFilename)
	require.NoError(t, createDefaultConfigFile(path))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sampleconfig.FileContents, string(contents))

	// Every option in the sample parses.
	cfg := newTestConfig(t)
	parser := newConfigParser(cfg, flags.Default)
	require.NoError(t, flags.NewIniParser(parser).ParseFile(path))
}
