// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"testing"

	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// syntheticDesc builds a pool entry for a transaction spending the given
// outpoints and revealing the given nullifiers.  The lock time makes the
// transaction unique.
func syntheticDesc(id int, spends []wire.OutPoint,
	nullifiers []chainhash.Hash) *TxDesc {

	tx := wire.NewMsgTx(wire.JoinSplitTxVersion)
	for i := range spends {
		tx.AddTxIn(wire.NewTxIn(&spends[i], nil))
	}
	tx.AddTxOut(wire.NewTxOut(1000, nil))
	tx.AddTxOut(wire.NewTxOut(2000, nil))
	for i := 0; i+1 < len(nullifiers); i += 2 {
		js := &wire.JSDescription{}
		js.Nullifiers[0] = nullifiers[i]
		js.Nullifiers[1] = nullifiers[i+1]
		tx.AddJoinSplit(js)
	}
	tx.LockTime = uint32(id)

	return &TxDesc{
		TxDesc: mining.TxDesc{
			Tx:   tx,
			Hash: tx.TxHash(),
			Size: tx.SerializeSize(),
		},
		UsageSize: txMemUsage(tx),
	}
}

// requireIndexed checks that the indices and totals of the pool agree with
// its entries and that no entry spends an output of a removed transaction.
func requireIndexed(t *rapid.T, mp *TxPool, created map[chainhash.Hash]bool) {
	var (
		totalSize, totalUsage int64
		numOutpoints          int
		numNullifiers         int
	)
	for hash, txD := range mp.pool {
		require.Equal(t, hash, txD.Hash)
		totalSize += int64(txD.Size)
		totalUsage += txD.UsageSize

		for _, txIn := range txD.Tx.TxIn {
			op := txIn.PreviousOutPoint
			require.Same(t, txD, mp.outpoints[op])
			if created[op.Hash] {
				_, ok := mp.pool[op.Hash]
				require.True(t, ok, "%v spends removed %v", hash,
					op.Hash)
			}
			numOutpoints++
		}
		for _, js := range txD.Tx.JoinSplits {
			for _, nf := range js.Nullifiers {
				require.Same(t, txD, mp.nullifiers[nf])
				numNullifiers++
			}
		}
	}
	require.Len(t, mp.outpoints, numOutpoints)
	require.Len(t, mp.nullifiers, numNullifiers)
	require.Equal(t, totalSize, mp.totalTxSize)
	require.Equal(t, totalUsage, mp.totalUsage)
}

// TestPoolIndicesRapid drives the pool through random admissions and
// removals and verifies the indices never diverge from the entries.
func TestPoolIndicesRapid(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		mp := New(&Config{})

		// Outputs from outside the pool and a small nullifier space
		// so that conflicts are common.
		var coins []wire.OutPoint
		for i := 0; i < 6; i++ {
			coins = append(coins, wire.OutPoint{
				Hash: chainhash.HashH([]byte(fmt.Sprintf("coin%d", i))),
			})
		}
		var nullifiers []chainhash.Hash
		for i := 0; i < 8; i++ {
			nullifiers = append(nullifiers,
				chainhash.HashH([]byte(fmt.Sprintf("nf%d", i))))
		}

		created := make(map[chainhash.Hash]bool)
		var descs []*TxDesc
		numSteps := rapid.IntRange(1, 40).Draw(t, "num_steps")
		for step := 0; step < numSteps; step++ {
			action := rapid.IntRange(0, 3).Draw(t, "action")
			switch {
			// Admit a transaction spending outside or pool outputs.
			case action <= 1:
				candidates := append([]wire.OutPoint(nil), coins...)
				for _, txD := range mp.pool {
					for i := range txD.Tx.TxOut {
						candidates = append(candidates,
							wire.OutPoint{Hash: txD.Hash,
								Index: uint32(i)})
					}
				}
				perm := rapid.Permutation(candidates).Draw(t, "spends")
				numSpends := rapid.IntRange(1, 2).Draw(t, "num_spends")
				if numSpends > len(perm) {
					numSpends = len(perm)
				}
				spends := perm[:numSpends]

				var nfs []chainhash.Hash
				if rapid.Bool().Draw(t, "shielded") {
					nfPerm := rapid.Permutation(nullifiers).Draw(t,
						"nullifiers")
					nfs = nfPerm[:2]
				}

				txD := syntheticDesc(step, spends, nfs)
				conflict := mp.checkPoolDoubleSpend(txD.Tx) != nil
				err := mp.Admit(txD, nil)
				if conflict {
					require.Error(t, err)
					require.False(t, mp.HaveTransaction(&txD.Hash))
					break
				}
				require.NoError(t, err)
				created[txD.Hash] = true
				descs = append(descs, txD)

			// Remove a transaction and its descendants.
			case action == 2 && len(descs) > 0:
				txD := rapid.SampledFrom(descs).Draw(t, "remove")
				removed := mp.RemoveTransaction(txD.Tx, true)
				for _, r := range removed {
					require.False(t, mp.HaveTransaction(&r.Hash))
				}

			// Remove whatever conflicts with a transaction that
			// was never admitted.
			case action == 3:
				perm := rapid.Permutation(coins).Draw(t, "conflict")
				nfPerm := rapid.Permutation(nullifiers).Draw(t,
					"conflict_nullifiers")
				other := syntheticDesc(-step-1, perm[:1], nfPerm[:2])
				mp.RemoveConflicts(other.Tx)
				require.NoError(t, mp.checkPoolDoubleSpend(other.Tx))
			}

			requireIndexed(t, mp, created)
		}
	})
}
