// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestForkPredicates ensures the fork window is exclusive of its start and
// inclusive of its end.
func TestForkPredicates(t *testing.T) {
	p := TestNet3Params

	require.False(t, p.IsForkBlock(10))
	require.True(t, p.IsForkBlock(11))
	require.True(t, p.IsForkBlock(310))
	require.False(t, p.IsForkBlock(311))

	require.False(t, p.IsForkEnabled(10))
	require.True(t, p.IsForkEnabled(11))
	require.True(t, p.IsForkEnabled(100000))

	// The regression test network has an empty fork window.
	for h := int32(0); h < 100; h++ {
		require.False(t, RegressionNetParams.IsForkBlock(h))
	}
}

// TestTimespans checks the moving average timespan bounds.
func TestTimespans(t *testing.T) {
	p := MainNetParams
	require.Equal(t, int64(17*150), p.AveragingWindowTimespan())
	require.Equal(t, int64(17*150*84/100), p.MinActualTimespan())
	require.Equal(t, int64(17*150*132/100), p.MaxActualTimespan())

	r := RegressionNetParams
	require.Equal(t, r.AveragingWindowTimespan(), r.MinActualTimespan())
	require.Equal(t, r.AveragingWindowTimespan(), r.MaxActualTimespan())
}

// TestFoundersRewardRotation ensures the founders scripts rotate evenly over
// the founders reward period and stop after it.
func TestFoundersRewardRotation(t *testing.T) {
	p := MainNetParams
	p.SubsidyReductionInterval = 100
	p.SubsidySlowStartInterval = 2
	p.FoundersRewardScripts = [][]byte{{0x01}, {0x02}, {0x03}, {0x04}}

	last := p.LastFoundersRewardBlockHeight()
	require.Equal(t, int32(100), last)

	require.Nil(t, p.FoundersRewardScriptAtHeight(0))
	require.Equal(t, []byte{0x01}, p.FoundersRewardScriptAtHeight(1))
	require.Equal(t, []byte{0x01}, p.FoundersRewardScriptAtHeight(25))
	require.Equal(t, []byte{0x02}, p.FoundersRewardScriptAtHeight(26))
	require.Equal(t, []byte{0x04}, p.FoundersRewardScriptAtHeight(last))
	require.Nil(t, p.FoundersRewardScriptAtHeight(last+1))

	// No scripts means no founders reward at any height.
	require.Nil(t, MainNetParams.FoundersRewardScriptAtHeight(1))
}

// TestParamsForName ensures every network is reachable by name.
func TestParamsForName(t *testing.T) {
	for _, p := range []*Params{&MainNetParams, &TestNet3Params,
		&RegressionNetParams} {

		got, err := ParamsForName(p.Name)
		require.NoError(t, err)
		require.Same(t, p, got)
		require.Equal(t, *p.GenesisHash, p.GenesisBlock.BlockHash())
	}

	_, err := ParamsForName("simnet")
	require.ErrorIs(t, err, ErrUnknownNet)
}
