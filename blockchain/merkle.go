// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation.  This is a helper
// function used to aid in the generation of a merkle tree.
func HashMerkleBranches(left, right *chainhash.Hash) chainhash.Hash {
	// Concatenate the left and right nodes.
	var hash [chainhash.HashSize * 2]byte
	copy(hash[:chainhash.HashSize], left[:])
	copy(hash[chainhash.HashSize:], right[:])

	return chainhash.DoubleHashH(hash[:])
}

// CalcMerkleRoot computes the merkle root over the ids of the passed
// transactions.  When a level has an odd number of nodes, the last node is
// paired with itself.  The root of an empty list is the zero hash.
func CalcMerkleRoot(transactions []*wire.MsgTx) chainhash.Hash {
	if len(transactions) == 0 {
		return chainhash.Hash{}
	}

	level := make([]chainhash.Hash, 0, len(transactions)+1)
	for _, tx := range transactions {
		level = append(level, tx.TxHash())
	}
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, HashMerkleBranches(&level[i],
				&level[i+1]))
		}
		level = next
	}
	return level[0]
}
