// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HeaderCtx is an interface that describes information about a block. This is
// used so that external libraries can provide their own context (the header's
// parent, bits, etc.) when attempting to contextually validate a header.
type HeaderCtx interface {
	// Height returns the header's height.
	Height() int32

	// Bits returns the header's bits.
	Bits() uint32

	// Timestamp returns the header's timestamp.
	Timestamp() int64

	// BlockHash returns the hash of the header.
	BlockHash() chainhash.Hash

	// Parent returns the header's parent.
	Parent() HeaderCtx

	// RelativeAncestorCtx returns the header's ancestor that is distance
	// blocks before it in the chain.
	RelativeAncestorCtx(distance int32) HeaderCtx
}

// ChainView is the read-only view of the validated best chain consumed by
// the mempool and the block template generator.  Implementations must be
// safe for concurrent access.
type ChainView interface {
	// ChainParams returns the parameters of the network the chain is on.
	ChainParams() *chaincfg.Params

	// Tip returns the header of the current best block.
	Tip() HeaderCtx

	// FetchUtxoEntry returns the unspent outputs of the transaction with
	// the given hash, or nil when none of its outputs are unspent.  The
	// returned entry is a copy the caller may modify.
	FetchUtxoEntry(txHash *chainhash.Hash) *UtxoEntry

	// ShieldedAnchor returns the commitment tree root after the tip.
	ShieldedAnchor() chainhash.Hash

	// HasAnchor returns whether anchor is the commitment tree root after
	// some block of the best chain.
	HasAnchor(anchor *chainhash.Hash) bool

	// NullifierExists returns whether the nullifier has been revealed by
	// a transaction in the best chain.
	NullifierExists(nullifier *chainhash.Hash) bool
}

// InputVerifier validates the transparent input scripts of a transaction.
// txscript.Verifier satisfies it.
type InputVerifier interface {
	// VerifyInputs checks every input of tx against the outputs it spends
	// and returns the number of pay-to-script-hash signature operations.
	VerifyInputs(tx *wire.MsgTx, prevOuts txscript.PrevOutputFetcher,
		flags txscript.ScriptFlags) (int, error)
}

// ProofVerifier checks the zero-knowledge proofs and the JoinSplit signature
// of a transaction.  Proof systems are opaque to this package.
type ProofVerifier interface {
	VerifyJoinSplits(tx *wire.MsgTx) error
}

// DisabledProofVerifier accepts every JoinSplit without checking it.  It is
// used for blocks that were already verified and in tests.
type DisabledProofVerifier struct{}

// VerifyJoinSplits always succeeds.
func (DisabledProofVerifier) VerifyJoinSplits(*wire.MsgTx) error {
	return nil
}
