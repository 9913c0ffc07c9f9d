// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math"
	"testing"
	"time"

	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

// sanityTx returns a minimal transaction that passes the sanity checks.
func sanityTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.JoinSplitTxVersion)
	prev := wire.OutPoint{Hash: chainhash.HashH([]byte("prev")), Index: 0}
	tx.AddTxIn(wire.NewTxIn(&prev, []byte{0x51}))
	tx.AddTxOut(wire.NewTxOut(5000, []byte{0x51}))
	return tx
}

// joinSplit returns a JoinSplit with distinct nullifiers derived from seed.
func joinSplit(seed string, vpubOld, vpubNew int64) *wire.JSDescription {
	return &wire.JSDescription{
		VPubOld: vpubOld,
		VPubNew: vpubNew,
		Nullifiers: [wire.NumJoinSplitInputs]chainhash.Hash{
			chainhash.HashH([]byte(seed + "0")),
			chainhash.HashH([]byte(seed + "1")),
		},
	}
}

func TestCheckTransactionSanity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(tx *wire.MsgTx)
		code   ErrorCode
		ok     bool
	}{
		{
			name:   "valid",
			modify: func(tx *wire.MsgTx) {},
			ok:     true,
		},
		{
			name:   "version zero",
			modify: func(tx *wire.MsgTx) { tx.Version = 0 },
			code:   ErrTxVersionTooLow,
		},
		{
			name:   "no inputs",
			modify: func(tx *wire.MsgTx) { tx.TxIn = nil },
			code:   ErrNoTxInputs,
		},
		{
			name:   "no outputs",
			modify: func(tx *wire.MsgTx) { tx.TxOut = nil },
			code:   ErrNoTxOutputs,
		},
		{
			name: "joinsplit replaces outputs",
			modify: func(tx *wire.MsgTx) {
				tx.TxOut = nil
				tx.AddJoinSplit(joinSplit("js", 5000, 0))
			},
			ok: true,
		},
		{
			name: "joinsplit in transparent version",
			modify: func(tx *wire.MsgTx) {
				tx.Version = wire.TxVersion
				tx.AddJoinSplit(joinSplit("js", 5000, 0))
			},
			code: ErrTxVersionTooLow,
		},
		{
			name: "negative output",
			modify: func(tx *wire.MsgTx) {
				tx.TxOut[0].Value = -1
			},
			code: ErrBadTxOutValue,
		},
		{
			name: "outputs above max money",
			modify: func(tx *wire.MsgTx) {
				tx.TxOut[0].Value = MaxMoney
				tx.AddTxOut(wire.NewTxOut(1, nil))
			},
			code: ErrBadTxOutValue,
		},
		{
			name: "both vpubs nonzero",
			modify: func(tx *wire.MsgTx) {
				tx.AddJoinSplit(joinSplit("js", 1, 1))
			},
			code: ErrBadJoinSplitValue,
		},
		{
			name: "duplicate inputs",
			modify: func(tx *wire.MsgTx) {
				tx.AddTxIn(wire.NewTxIn(
					&tx.TxIn[0].PreviousOutPoint, nil))
			},
			code: ErrDuplicateTxInputs,
		},
		{
			name: "duplicate nullifiers",
			modify: func(tx *wire.MsgTx) {
				nf := chainhash.HashH([]byte("nf"))
				tx.AddJoinSplit(&wire.JSDescription{
					Nullifiers: [wire.NumJoinSplitInputs]chainhash.Hash{
						nf, chainhash.HashH([]byte("other")),
					},
				})
				tx.AddJoinSplit(&wire.JSDescription{
					Nullifiers: [wire.NumJoinSplitInputs]chainhash.Hash{
						chainhash.HashH([]byte("third")), nf,
					},
				})
			},
			code: ErrDuplicateNullifier,
		},
		{
			name: "null prevout",
			modify: func(tx *wire.MsgTx) {
				tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(
					&chainhash.Hash{}, math.MaxUint32), nil))
			},
			code: ErrBadTxInput,
		},
		{
			name: "coinbase script too short",
			modify: func(tx *wire.MsgTx) {
				tx.TxIn[0].PreviousOutPoint = *wire.NewOutPoint(
					&chainhash.Hash{}, math.MaxUint32)
			},
			code: ErrBadCoinbaseScriptLen,
		},
		{
			name: "coinbase with joinsplit",
			modify: func(tx *wire.MsgTx) {
				tx.TxIn[0].PreviousOutPoint = *wire.NewOutPoint(
					&chainhash.Hash{}, math.MaxUint32)
				tx.TxIn[0].SignatureScript = []byte{0x51, 0x00}
				tx.AddJoinSplit(joinSplit("js", 0, 0))
			},
			code: ErrCoinbaseJoinSplit,
		},
	}

	for _, test := range tests {
		tx := sanityTx()
		test.modify(tx)
		err := CheckTransactionSanity(tx)
		if test.ok {
			require.NoError(t, err, test.name)
			continue
		}

		var rerr RuleError
		require.ErrorAs(t, err, &rerr, "%s: %v", test.name,
			spew.Sdump(tx))
		require.Equal(t, test.code, rerr.ErrorCode, test.name)
	}
}

func TestIsFinalizedTransaction(t *testing.T) {
	t.Parallel()

	blockTime := time.Unix(1600000000, 0)
	tx := sanityTx()
	tx.TxIn[0].Sequence = 0

	tx.LockTime = 0
	require.True(t, IsFinalizedTransaction(tx, 100, blockTime))

	// Height locks are final once the block height passes them.
	tx.LockTime = 100
	require.False(t, IsFinalizedTransaction(tx, 100, blockTime))
	require.True(t, IsFinalizedTransaction(tx, 101, blockTime))

	// Time locks compare against the block time.
	tx.LockTime = uint32(blockTime.Unix())
	require.False(t, IsFinalizedTransaction(tx, 100, blockTime))
	require.True(t, IsFinalizedTransaction(tx, 100,
		blockTime.Add(time.Second)))

	// Final sequence numbers disable the lock.
	tx.TxIn[0].Sequence = math.MaxUint32
	require.True(t, IsFinalizedTransaction(tx, 100, blockTime))
}

func TestCalcMerkleRoot(t *testing.T) {
	t.Parallel()

	require.Equal(t, chainhash.Hash{}, CalcMerkleRoot(nil))

	a, b, c := sanityTx(), sanityTx(), sanityTx()
	b.LockTime = 1
	c.LockTime = 2
	ha, hb, hc := a.TxHash(), b.TxHash(), c.TxHash()

	require.Equal(t, ha, CalcMerkleRoot([]*wire.MsgTx{a}))

	ab := HashMerkleBranches(&ha, &hb)
	require.Equal(t, ab, CalcMerkleRoot([]*wire.MsgTx{a, b}))

	// The odd node is paired with itself.
	cc := HashMerkleBranches(&hc, &hc)
	want := HashMerkleBranches(&ab, &cc)
	require.Equal(t, want, CalcMerkleRoot([]*wire.MsgTx{a, b, c}))
}

func TestNextAnchor(t *testing.T) {
	t.Parallel()

	empty := &wire.MsgBlock{Transactions: []*wire.MsgTx{sanityTx()}}
	require.Equal(t, EmptyAnchor, NextAnchor(EmptyAnchor, empty))

	withNotes := func(seed string) *wire.MsgBlock {
		tx := sanityTx()
		js := &wire.JSDescription{}
		js.Commitments[0] = chainhash.HashH([]byte(seed))
		tx.AddJoinSplit(js)
		return &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}
	}
	first := NextAnchor(EmptyAnchor, withNotes("a"))
	require.NotEqual(t, EmptyAnchor, first)
	require.Equal(t, first, NextAnchor(EmptyAnchor, withNotes("a")))
	require.NotEqual(t, first, NextAnchor(EmptyAnchor, withNotes("b")))
	require.NotEqual(t, first, NextAnchor(first, withNotes("a")))
}

func TestCalcNetworkHashPS(t *testing.T) {
	t.Parallel()

	params := &chaincfg.MainNetParams
	require.Zero(t, CalcNetworkHashPS(nil, 0, params))

	// Every block carries the same work and they are 150 seconds apart,
	// so the rate is the work of one block over 150 seconds.
	tip := buildHeaders(0, 200, steadyBits, evenlySpaced(150))
	want := CalcWork(steadyBits).Int64() / 150
	got := CalcNetworkHashPS(tip, DefaultHashPSLookup, params)
	require.InDelta(t, want, got, 1)

	// The default window gives the same rate on an even chain.
	require.InDelta(t, want, CalcNetworkHashPS(tip, 0, params), 1)
}
