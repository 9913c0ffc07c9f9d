// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"encoding/binary"
	"testing"

	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// estimatorRelayFee is the minimum relay fee of the test estimators.
const estimatorRelayFee = btcutil.Amount(1000)

// estimateDesc returns a confirmed pool entry of the given size that paid
// fee and entered the pool at observed.
func estimateDesc(seed string, fee int64, size int, observed int32) *TxDesc {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte(seed)))
	return &TxDesc{
		TxDesc: mining.TxDesc{
			Tx:           tx,
			Hash:         chainhash.HashH([]byte(seed)),
			Height:       observed,
			Fee:          fee,
			FeePerKB:     mining.FeeRate(fee, size),
			Size:         size,
			ModifiedSize: size,
		},
		HadNoDependencies: true,
	}
}

// binValues returns the values of one bin.
func binValues(ef *FeeEstimator, kind estimateKind, bin int) []float64 {
	var values []float64
	for _, o := range ef.bins[kind][bin] {
		values = append(values, o.value)
	}
	return values
}

// newTestEstimator returns an estimator that registered blocks 100 to 102.
// Rates of 12 and 8 satoshis per byte confirmed in the first block after
// entering the pool and a rate of 4 in the second.
func newTestEstimator(t *testing.T) *FeeEstimator {
	t.Helper()

	ef := NewFeeEstimator(DefaultEstimateFeeMaxRollback,
		DefaultEstimateFeeMinRegisteredBlocks, estimatorRelayFee)

	_, err := ef.EstimateFee(1)
	require.Error(t, err)

	require.NoError(t, ef.RegisterBlock(100, []*TxDesc{
		estimateDesc("a", 1200, 100, 99),
		estimateDesc("b", 800, 100, 99),
	}))
	require.NoError(t, ef.RegisterBlock(101, []*TxDesc{
		estimateDesc("c", 400, 100, 99),
	}))

	_, err = ef.EstimateFee(1)
	require.Error(t, err)

	require.NoError(t, ef.RegisterBlock(102, nil))
	return ef
}

func TestSatoshiPerByte(t *testing.T) {
	t.Parallel()

	rate := NewSatoshiPerByte(1200, 100)
	require.Equal(t, SatoshiPerByte(12), rate)
	require.Equal(t, 12000.0, rate.ToSatoshiPerKb())
	require.Equal(t, btcutil.Amount(3000), rate.Fee(250))

	invalid := SatoshiPerByte(-1)
	require.Equal(t, -1.0, invalid.ToSatoshiPerKb())
	require.Equal(t, btcutil.Amount(-1), invalid.Fee(250))
}

func TestEstimateFee(t *testing.T) {
	t.Parallel()

	ef := newTestEstimator(t)

	rate, err := ef.EstimateFee(1)
	require.NoError(t, err)
	require.Equal(t, SatoshiPerByte(12), rate)

	rate, err = ef.EstimateFee(2)
	require.NoError(t, err)
	require.Equal(t, SatoshiPerByte(4), rate)

	rate, err = ef.EstimateFee(estimateFeeDepth)
	require.NoError(t, err)
	require.Equal(t, SatoshiPerByte(4), rate)

	_, err = ef.EstimateFee(0)
	require.Error(t, err)
	_, err = ef.EstimateFee(estimateFeeDepth + 1)
	require.Error(t, err)

	// Nothing paid on priority alone.
	priority, err := ef.EstimatePriority(1)
	require.NoError(t, err)
	require.Zero(t, priority)
}

func TestEstimateFeeClassification(t *testing.T) {
	t.Parallel()

	ef := NewFeeEstimator(0, 1, estimatorRelayFee)

	dependent := estimateDesc("dependent", 10000, 100, 99)
	dependent.HadNoDependencies = false

	cheap := estimateDesc("cheap", 50, 100, 99)

	free := estimateDesc("free", 0, 100, 99)
	free.StartingPriority = 1e8

	late := estimateDesc("late", 1000, 100, 99-estimateFeeDepth)

	require.NoError(t, ef.RegisterBlock(100, []*TxDesc{
		dependent, cheap, free, late,
		estimateDesc("paid", 600, 100, 99),
	}))

	require.Equal(t, []float64{6}, binValues(ef, kindFee, 0))
	require.Equal(t, []float64{1e8}, binValues(ef, kindPriority, 0))
	for i := 1; i < estimateFeeDepth; i++ {
		require.Empty(t, ef.bins[kindFee][i])
		require.Empty(t, ef.bins[kindPriority][i])
	}

	priority, err := ef.EstimatePriority(1)
	require.NoError(t, err)
	require.Equal(t, 1e8, priority)

	// Without rollback history nothing is recorded.
	require.Empty(t, ef.dropped)
}

func TestEstimateFeeMaxReplacements(t *testing.T) {
	t.Parallel()

	ef := NewFeeEstimator(0, 1, estimatorRelayFee)
	ef.maxReplacements = 1

	require.NoError(t, ef.RegisterBlock(100, []*TxDesc{
		estimateDesc("a", 1200, 100, 99),
		estimateDesc("b", 800, 100, 99),
		estimateDesc("c", 400, 100, 98),
	}))
	require.Equal(t, []float64{12}, binValues(ef, kindFee, 0))
	require.Equal(t, []float64{4}, binValues(ef, kindFee, 1))
}

func TestEstimateFeeHeights(t *testing.T) {
	t.Parallel()

	ef := newTestEstimator(t)

	// A skipped block.
	require.Error(t, ef.RegisterBlock(104, nil))

	// A block at or below the last known height is a reorganization
	// deeper than the history, which is discarded.
	require.NoError(t, ef.RegisterBlock(101, nil))
	require.Len(t, ef.dropped, 1)
	require.Error(t, ef.Rollback(102))
	require.NoError(t, ef.RegisterBlock(102, nil))
}

func TestEstimateFeeRollback(t *testing.T) {
	t.Parallel()

	ef := newTestEstimator(t)

	// Only the two most recent blocks are kept.
	require.Error(t, ef.Rollback(100))
	require.Error(t, ef.Rollback(103))

	require.NoError(t, ef.Rollback(102))
	require.Equal(t, int32(101), ef.lastKnownHeight)
	_, err := ef.EstimateFee(1)
	require.Error(t, err)

	require.NoError(t, ef.RegisterBlock(102, []*TxDesc{
		estimateDesc("d", 2000, 100, 99),
	}))
	rate, err := ef.EstimateFee(1)
	require.NoError(t, err)
	require.Equal(t, SatoshiPerByte(20), rate)

	// Rolling back to 101 undoes the block at 102 first.
	require.NoError(t, ef.Rollback(101))
	require.Equal(t, int32(100), ef.lastKnownHeight)
	require.Equal(t, uint32(1), ef.numBlocksRegistered)
	require.Equal(t, []float64{12, 8}, binValues(ef, kindFee, 0))
	require.Empty(t, ef.bins[kindFee][1])
	require.Empty(t, ef.bins[kindFee][2])
	require.Error(t, ef.Rollback(100))
}

func TestEstimateFeeRollbackReplacement(t *testing.T) {
	t.Parallel()

	ef := NewFeeEstimator(2, 1, estimatorRelayFee)
	ef.binSize = 2

	require.NoError(t, ef.RegisterBlock(100, []*TxDesc{
		estimateDesc("a", 1200, 100, 99),
		estimateDesc("b", 800, 100, 99),
	}))
	require.NoError(t, ef.RegisterBlock(101, []*TxDesc{
		estimateDesc("c", 3000, 100, 100),
	}))

	values := binValues(ef, kindFee, 0)
	require.Len(t, values, 2)
	require.Contains(t, values, 30.0)

	require.NoError(t, ef.Rollback(101))
	require.Equal(t, []float64{12, 8}, binValues(ef, kindFee, 0))
}

func TestFeeEstimatorSave(t *testing.T) {
	t.Parallel()

	ef := newTestEstimator(t)
	free := estimateDesc("free", 0, 100, 102)
	free.StartingPriority = 7e7
	require.NoError(t, ef.RegisterBlock(103, []*TxDesc{free}))
	require.Equal(t, []float64{7e7}, binValues(ef, kindPriority, 0))

	state := ef.Save()
	restored, err := RestoreFeeEstimator(state)
	require.NoError(t, err)

	require.Equal(t, ef.lastKnownHeight, restored.lastKnownHeight)
	require.Equal(t, ef.numBlocksRegistered, restored.numBlocksRegistered)
	require.Equal(t, ef.minRelayTxFee, restored.minRelayTxFee)
	for i := uint32(1); i <= estimateFeeDepth; i++ {
		want, err := ef.EstimateFee(i)
		require.NoError(t, err)
		got, err := restored.EstimateFee(i)
		require.NoError(t, err)
		require.Equal(t, want, got, "%d blocks", i)

		wantPriority, err := ef.EstimatePriority(i)
		require.NoError(t, err)
		gotPriority, err := restored.EstimatePriority(i)
		require.NoError(t, err)
		require.Equal(t, wantPriority, gotPriority, "%d blocks", i)
	}
	require.Equal(t, state, restored.Save())

	// The rollback history is not saved.
	require.Error(t, restored.Rollback(103))
	require.NoError(t, restored.RegisterBlock(104, nil))
}

func TestRestoreFeeEstimatorErrors(t *testing.T) {
	t.Parallel()

	state := newTestEstimator(t).Save()

	badVersion := append(FeeEstimatorState(nil), state...)
	binary.LittleEndian.PutUint32(badVersion, estimateFeeSaveVersion+1)

	zeroBins := append(FeeEstimatorState(nil), state...)
	binary.LittleEndian.PutUint32(zeroBins[8:], 0)

	tests := []struct {
		name  string
		state FeeEstimatorState
	}{
		{"empty", nil},
		{"garbage", FeeEstimatorState{1, 2, 3}},
		{"version", badVersion},
		{"bin size", zeroBins},
		{"truncated", state[:len(state)-1]},
		{"trailing", append(append(FeeEstimatorState(nil), state...), 0)},
	}
	for _, test := range tests {
		_, err := RestoreFeeEstimator(test.state)
		require.Error(t, err, test.name)
	}
}
