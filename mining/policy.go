// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// UnminedHeight is the height used for the "block" height field of the
	// contextual transaction information provided in a transaction store
	// when it has not yet been mined into a block.
	UnminedHeight = 0x7fffffff

	// MinHighPriority is the minimum priority value that allows a
	// transaction to be considered high priority.
	MinHighPriority = chaincfg.COIN * 144.0 / 250

	// DefaultBlockMinSize is the default minimum block size in bytes.
	DefaultBlockMinSize = 0

	// DefaultBlockMaxSize is the default maximum block size in bytes.
	DefaultBlockMaxSize = blockchain.MaxBlockSize

	// DefaultBlockPrioritySize is the default size in bytes reserved for
	// high-priority / low-fee transactions.
	DefaultBlockPrioritySize = DefaultBlockMaxSize / 2

	// DefaultMinRelayTxFee is the default minimum fee in satoshi per 1000
	// bytes below which a transaction is treated as free.
	DefaultMinRelayTxFee = btcutil.Amount(100)

	// minBlockMaxSize and maxBlockMaxSize bound the configurable maximum
	// block size.
	minBlockMaxSize = 1000
	maxBlockMaxSize = blockchain.MaxBlockSize - 1000

	// txInOverhead is the serialized size of a transaction input without
	// its signature script: 36 bytes of outpoint, 4 of sequence and one
	// byte of script length.
	txInOverhead = 41

	// maxDiscountedScriptLen is the largest part of a signature script
	// that is discounted from the modified size.  It covers a signature
	// and an uncompressed public key.
	maxDiscountedScriptLen = 110
)

// Policy houses the policy (configuration parameters) which is used to control
// the generation of block templates.  See the documentation for
// NewBlockTemplate for more details on each of these parameters are used.
type Policy struct {
	// BlockMinSize is the minimum block size in bytes to be used when
	// generating a block template.
	BlockMinSize uint32

	// BlockMaxSize is the maximum block size in bytes to be used when
	// generating a block template.
	BlockMaxSize uint32

	// BlockPrioritySize is the size in bytes for high-priority / low-fee
	// transactions to be used when generating a block template.
	BlockPrioritySize uint32

	// TxMinFreeFee is the minimum fee in Satoshi/1000 bytes that is
	// required for a transaction to be treated as free for mining purposes
	// (block template generation).
	TxMinFreeFee btcutil.Amount
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		BlockMinSize:      DefaultBlockMinSize,
		BlockMaxSize:      DefaultBlockMaxSize,
		BlockPrioritySize: DefaultBlockPrioritySize,
		TxMinFreeFee:      DefaultMinRelayTxFee,
	}
}

// Normalize returns a copy of the policy with the maximum block size limited
// to between 1000 bytes and 1000 bytes less than the consensus maximum, and
// the priority and minimum sizes limited to the maximum.
func (p Policy) Normalize() Policy {
	if p.BlockMaxSize < minBlockMaxSize {
		p.BlockMaxSize = minBlockMaxSize
	}
	if p.BlockMaxSize > maxBlockMaxSize {
		p.BlockMaxSize = maxBlockMaxSize
	}
	if p.BlockPrioritySize > p.BlockMaxSize {
		p.BlockPrioritySize = p.BlockMaxSize
	}
	if p.BlockMinSize > p.BlockMaxSize {
		p.BlockMinSize = p.BlockMaxSize
	}
	return p
}

// AllowFree returns whether a transaction with the given priority qualifies
// for the free, high-priority area of a block.
func AllowFree(priority float64) bool {
	return priority > MinHighPriority
}

// CalcModifiedSize returns the size of tx used for priority computations.
// Every input that fits is discounted by its fixed overhead plus up to 110
// bytes of its signature script so that spending many outputs is not
// penalized.
func CalcModifiedSize(tx *wire.MsgTx) int {
	size := tx.SerializeSize()
	for _, txIn := range tx.TxIn {
		scriptLen := len(txIn.SignatureScript)
		if scriptLen > maxDiscountedScriptLen {
			scriptLen = maxDiscountedScriptLen
		}
		offset := txInOverhead + scriptLen
		if size > offset {
			size -= offset
		}
	}
	return size
}

// calcInputValueAge is a helper function used to calculate the input age of
// a transaction.  The input age for a txin is the number of confirmations
// since the referenced txout multiplied by its output value.  The total input
// age is the sum of this value for each txin.  Any inputs to the transaction
// which are currently in the mempool and hence not mined into a block yet,
// contribute no additional input age to the transaction.
func calcInputValueAge(tx *wire.MsgTx, utxoView *blockchain.UtxoViewpoint,
	height int32) float64 {

	var totalInputAge float64
	for _, txIn := range tx.TxIn {
		// Don't attempt to accumulate the total input age if the
		// referenced transaction output doesn't exist.
		originIndex := txIn.PreviousOutPoint.Index
		entry := utxoView.LookupEntry(&txIn.PreviousOutPoint.Hash)
		if entry == nil || entry.IsOutputSpent(originIndex) {
			continue
		}

		// Inputs with dependencies currently in the mempool have their
		// block height set to a special constant.  Their input age
		// is zero.
		originHeight := entry.BlockHeight()
		if originHeight == UnminedHeight || originHeight >= height {
			continue
		}

		inputAge := height - originHeight
		inputValue := entry.AmountByIndex(originIndex)
		totalInputAge += float64(inputValue) * float64(inputAge)
	}

	return totalInputAge
}

// CalcPriority returns a transaction priority given a transaction and the sum
// of each of its input values multiplied by their age (# of confirmations)
// at the given height.  Thus, the final formula for the priority is:
// sum(inputValue * inputAge) / modifiedTxSize
func CalcPriority(tx *wire.MsgTx, utxoView *blockchain.UtxoViewpoint,
	height int32) float64 {

	return ComputePriority(calcInputValueAge(tx, utxoView, height),
		CalcModifiedSize(tx))
}

// ComputePriority divides an input value age by the modified size of the
// transaction.  A zero modified size yields zero priority.
func ComputePriority(inputValueAge float64, modifiedSize int) float64 {
	if modifiedSize == 0 {
		return 0
	}
	return inputValueAge / float64(modifiedSize)
}

// FeeRate returns fee per 1000 bytes for a transaction of the given size,
// truncated toward zero.
func FeeRate(fee int64, size int) int64 {
	if size <= 0 {
		return 0
	}
	return fee * 1000 / int64(size)
}
