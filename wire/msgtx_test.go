// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

// joinSplitTx returns a version 2 transaction with one transparent input,
// one output and the given number of JoinSplits.
func joinSplitTx(numJoinSplits int) *MsgTx {
	tx := NewMsgTx(JoinSplitTxVersion)
	tx.AddTxIn(NewTxIn(&OutPoint{Hash: chainhash.Hash{0x01}, Index: 3},
		[]byte{0x51}))
	tx.AddTxOut(NewTxOut(5000, []byte{0x76, 0xa9}))
	for i := 0; i < numJoinSplits; i++ {
		js := &JSDescription{
			VPubOld: int64(i) * 10,
			VPubNew: 7,
			Anchor:  chainhash.Hash{0xaa, byte(i)},
		}
		js.Nullifiers[0] = chainhash.Hash{0xbb, byte(i)}
		js.Nullifiers[1] = chainhash.Hash{0xbc, byte(i)}
		js.Proof[0] = 0x99
		js.Ciphertexts[1][NoteCiphertextSize-1] = 0x42
		tx.AddJoinSplit(js)
	}
	tx.JoinSplitPubKey = chainhash.Hash{0x11}
	tx.JoinSplitSig[63] = 0x22
	return tx
}

// TestTxSerializeSize ensures the computed serialize size matches the number
// of bytes actually written for transparent and shielded transactions.
func TestTxSerializeSize(t *testing.T) {
	tests := []struct {
		name string
		tx   *MsgTx
	}{
		{"transparent v1", func() *MsgTx {
			tx := joinSplitTx(0)
			tx.Version = TxVersion
			return tx
		}()},
		{"v2 without joinsplits", joinSplitTx(0)},
		{"v2 with one joinsplit", joinSplitTx(1)},
		{"v2 with two joinsplits", joinSplitTx(2)},
	}

	for _, test := range tests {
		var buf bytes.Buffer
		require.NoError(t, test.tx.Serialize(&buf), test.name)
		require.Equal(t, test.tx.SerializeSize(), buf.Len(), test.name)

		var decoded MsgTx
		require.NoError(t, decoded.Deserialize(&buf), test.name)
		require.Equal(t, test.tx.TxHash(), decoded.TxHash(),
			"%s: %v", test.name, spew.Sdump(decoded))
	}
}

// TestTxCopyIsDeep ensures mutating a copied transaction leaves the original
// untouched.
func TestTxCopyIsDeep(t *testing.T) {
	orig := joinSplitTx(1)
	origHash := orig.TxHash()

	dup := orig.Copy()
	require.Equal(t, origHash, dup.TxHash())

	dup.TxIn[0].SignatureScript[0] = 0x00
	dup.JoinSplits[0].Nullifiers[0] = chainhash.Hash{}
	require.Equal(t, origHash, orig.TxHash())
	require.NotEqual(t, origHash, dup.TxHash())
}

// TestJoinSplitSerializeSize ensures the fixed JoinSplit size is what the
// codec writes.
func TestJoinSplitSerializeSize(t *testing.T) {
	var buf bytes.Buffer
	js := JSDescription{}
	require.NoError(t, js.serialize(&buf))
	require.Equal(t, JoinSplitSerializeSize, buf.Len())
	require.Equal(t, 1802, JoinSplitSerializeSize)
}

// TestVarIntNonCanonical ensures non-canonical encodings are rejected.
func TestVarIntNonCanonical(t *testing.T) {
	tests := [][]byte{
		{0xfd, 0xfc, 0x00},
		{0xfe, 0xff, 0xff, 0x00, 0x00},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00},
	}
	for _, enc := range tests {
		_, err := ReadVarInt(bytes.NewReader(enc))
		require.Error(t, err)
		require.IsType(t, &MessageError{}, err)
	}

	for _, val := range []uint64{0, 0xfc, 0xfd, 0xffff, 0x10000, 1 << 40} {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, val))
		require.Equal(t, VarIntSerializeSize(val), buf.Len())
		got, err := ReadVarInt(&buf)
		require.NoError(t, err)
		require.Equal(t, val, got)
	}
}

// TestBlockHeaderHashCoversSolution ensures the solution is part of the
// header hash.
func TestBlockHeaderHashCoversSolution(t *testing.T) {
	hdr := NewBlockHeader(4, &chainhash.Hash{1}, &chainhash.Hash{2},
		0x1f07ffff, &chainhash.Hash{3})
	hdr.Timestamp = time.Unix(1478403829, 0)
	before := hdr.BlockHash()

	hdr.Solution = []byte{0x01, 0x02}
	require.NotEqual(t, before, hdr.BlockHash())

	var buf bytes.Buffer
	require.NoError(t, hdr.Serialize(&buf))
	require.Equal(t, hdr.SerializeSize(), buf.Len())

	var decoded BlockHeader
	require.NoError(t, decoded.Deserialize(&buf))
	require.Equal(t, hdr.BlockHash(), decoded.BlockHash())
}
