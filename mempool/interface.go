// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"time"

	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxMempool defines an interface that's used by other subsystems to interact
// with the mempool.
type TxMempool interface {
	// LastUpdated returns the last time a transaction was added to or
	// removed from the source pool.
	LastUpdated() time.Time

	// PoolVersion returns a counter bumped by every change of the pool.
	PoolVersion() uint64

	// TxDescs returns a slice of descriptors for all the transactions in
	// the pool.
	TxDescs() []*TxDesc

	// Count returns the number of transactions in the main pool.
	Count() int

	// HaveTransaction returns whether or not the passed transaction
	// already exists in the pool.
	HaveTransaction(hash *chainhash.Hash) bool

	// MaybeAcceptTransaction validates tx and adds it to the pool.  On
	// rejection the returned state describes the failure.
	MaybeAcceptTransaction(tx *wire.MsgTx, isNew bool) (*TxDesc, *ValidationState)

	// RemoveForBlock removes the transactions confirmed by the block at
	// height, and the pool transactions in conflict with them.
	RemoveForBlock(txs []*wire.MsgTx, height int32)

	// Unconfirm allows the transactions of a disconnected block back
	// into the pool.
	Unconfirm(txs []*wire.MsgTx)

	// RemoveWithInvalidAnchor removes the transactions proving against
	// a commitment root that is no longer part of the chain.
	RemoveWithInvalidAnchor(anchor chainhash.Hash) []*TxDesc

	// RemoveCoinbaseSpends removes the transactions spending outputs
	// that are missing or immature once the block at height was
	// disconnected.
	RemoveCoinbaseSpends(height int32) []*TxDesc

	// LimitSize evicts transactions until the pool fits in maxUsage
	// bytes.
	LimitSize(maxUsage int64) []chainhash.Hash

	// Check verifies the internal consistency of the pool.
	Check() error

	// MiningDescs returns a slice of mining descriptors for all the
	// transactions in the source pool.
	MiningDescs() []*mining.TxDesc
}

// Ensure the TxPool type implements the TxMempool interface.
var _ TxMempool = (*TxPool)(nil)
