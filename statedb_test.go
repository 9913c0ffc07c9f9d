// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/btcpsuite/btcpd/mempool"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
)

// newEstimator returns the estimator loadFeeEstimator creates when there is
// no saved state.
func newEstimator() *mempool.FeeEstimator {
	return mempool.NewFeeEstimator(mempool.DefaultEstimateFeeMaxRollback,
		mempool.DefaultEstimateFeeMinRegisteredBlocks,
		mining.DefaultMinRelayTxFee)
}

func TestStateDBFeeEstimator(t *testing.T) {
	dataDir := t.TempDir()

	state, err := openStateDB(dataDir)
	require.NoError(t, err)

	// Nothing saved yet.
	estimator, err := state.loadFeeEstimator(mining.DefaultMinRelayTxFee)
	require.NoError(t, err)
	require.Equal(t, newEstimator().Save(), estimator.Save())

	require.NoError(t, estimator.RegisterBlock(1, nil))
	require.NoError(t, estimator.RegisterBlock(2, nil))
	saved := estimator.Save()
	require.NoError(t, state.saveFeeEstimator(estimator))
	require.NoError(t, state.Close())

	// The state survives reopening the store.
	state, err = openStateDB(dataDir)
	require.NoError(t, err)
	defer state.Close()

	restored, err := state.loadFeeEstimator(mining.DefaultMinRelayTxFee)
	require.NoError(t, err)
	require.Equal(t, saved, restored.Save())

	// It is only restored once.
	_, err = state.db.Get([]byte(estimateFeeKey), nil)
	require.ErrorIs(t, err, leveldb.ErrNotFound)
	fresh, err := state.loadFeeEstimator(mining.DefaultMinRelayTxFee)
	require.NoError(t, err)
	require.Equal(t, newEstimator().Save(), fresh.Save())
}

func TestStateDBCorruptFeeEstimator(t *testing.T) {
	state, err := openStateDB(t.TempDir())
	require.NoError(t, err)
	defer state.Close()

	require.NoError(t, state.db.Put([]byte(estimateFeeKey),
		[]byte{0x01, 0x02}, nil))

	estimator, err := state.loadFeeEstimator(mining.DefaultMinRelayTxFee)
	require.NoError(t, err)
	require.Equal(t, newEstimator().Save(), estimator.Save())

	_, err = state.db.Get([]byte(estimateFeeKey), nil)
	require.ErrorIs(t, err, leveldb.ErrNotFound)
}
