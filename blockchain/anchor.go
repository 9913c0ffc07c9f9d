// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"hash"

	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/blake2b"
)

// anchorDomainTag keys the commitment accumulator so its digests cannot
// collide with any other BLAKE2b use.
var anchorDomainTag = []byte("btcpd_NoteCommitAnchor")

// EmptyAnchor is the anchor of a chain whose blocks carry no note
// commitments.
var EmptyAnchor = func() chainhash.Hash {
	var anchor chainhash.Hash
	copy(anchor[:], newAnchorHasher().Sum(nil))
	return anchor
}()

func newAnchorHasher() hash.Hash {
	// The only failure is a key longer than 64 bytes.
	h, err := blake2b.New256(anchorDomainTag)
	if err != nil {
		panic(err)
	}
	return h
}

// NextAnchor returns the anchor after appending the note commitments of the
// JoinSplits in block, in order, to the accumulator whose anchor is prev.  A
// block without commitments leaves the anchor unchanged, so every anchor a
// JoinSplit can reference is the anchor after some block.
func NextAnchor(prev chainhash.Hash, block *wire.MsgBlock) chainhash.Hash {
	h := newAnchorHasher()
	h.Write(prev[:])
	var n int
	for _, tx := range block.Transactions {
		for _, js := range tx.JoinSplits {
			for i := range js.Commitments {
				h.Write(js.Commitments[i][:])
				n++
			}
		}
	}
	if n == 0 {
		return prev
	}

	var anchor chainhash.Hash
	copy(anchor[:], h.Sum(nil))
	return anchor
}
