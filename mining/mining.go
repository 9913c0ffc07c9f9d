// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"container/heap"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// blockHeaderOverhead is the size reserved up front for the block
	// header, the transaction count and the coinbase.
	blockHeaderOverhead = 1000

	// coinbaseSigOpsReserve is the number of signature operations reserved
	// for the coinbase.
	coinbaseSigOpsReserve = 100
)

// TxDesc is a descriptor about a transaction in a transaction source along with
// additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *wire.MsgTx

	// Hash is the hash of Tx.
	Hash chainhash.Hash

	// Added is the time when the entry was added to the source pool.
	Added time.Time

	// Height is the block height of the chain tip when the entry was added
	// to the source pool.
	Height int32

	// Fee is the total fee the transaction associated with the entry pays.
	Fee int64

	// FeePerKB is the fee the transaction pays in Satoshi per 1000 bytes.
	FeePerKB int64

	// Size is the serialized size of the transaction.
	Size int

	// ModifiedSize is the size used for priority computations.  See
	// CalcModifiedSize.
	ModifiedSize int

	// StartingPriority is the priority of the transaction when it was
	// added to the pool.
	StartingPriority float64

	// PriorityDelta and FeeDelta are the operator adjustments in force
	// when the descriptor was taken from the source pool.
	PriorityDelta float64
	FeeDelta      int64
}

// TxSource represents a source of transactions to consider for inclusion in
// new blocks.
//
// The interface contract requires that all of these methods are safe for
// concurrent access with respect to the source.
type TxSource interface {
	// LastUpdated returns the last time a transaction was added to or
	// removed from the source pool.
	LastUpdated() time.Time

	// PoolVersion returns a counter that changes every time a transaction
	// is added to or removed from the source pool.
	PoolVersion() uint64

	// MiningDescs returns a slice of mining descriptors for all the
	// transactions in the source pool.  The slice is a snapshot and is
	// not affected by later changes to the pool.  The operator adjustments
	// of each transaction are taken with the same snapshot.
	MiningDescs() []*TxDesc
}

// txPrioItem houses a transaction along with extra information that allows the
// transaction to be prioritized and track dependencies on other transactions
// which have not been mined into a block yet.
type txPrioItem struct {
	tx       *wire.MsgTx
	hash     chainhash.Hash
	size     int
	priority float64
	feePerKB int64

	// hasDelta is set when an operator raised the priority or the fee of
	// the transaction, which exempts it from the minimum fee rate.
	hasDelta bool
}

// txPriorityQueueLessFunc describes a function that can be used as a compare
// function for a transaction priority queue (txPriorityQueue).
type txPriorityQueueLessFunc func(*txPriorityQueue, int, int) bool

// txPriorityQueue implements a priority queue of txPrioItem elements that
// supports an arbitrary compare function as defined by txPriorityQueueLessFunc.
type txPriorityQueue struct {
	lessFunc txPriorityQueueLessFunc
	items    []*txPrioItem
}

// Len returns the number of items in the priority queue.  It is part of the
// heap.Interface implementation.
func (pq *txPriorityQueue) Len() int {
	return len(pq.items)
}

// Less returns whether the item in the priority queue with index i should sort
// before the item with index j by deferring to the assigned less function.  It
// is part of the heap.Interface implementation.
func (pq *txPriorityQueue) Less(i, j int) bool {
	return pq.lessFunc(pq, i, j)
}

// Swap swaps the items at the passed indices in the priority queue.  It is
// part of the heap.Interface implementation.
func (pq *txPriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push pushes the passed item onto the priority queue.  It is part of the
// heap.Interface implementation.
func (pq *txPriorityQueue) Push(x interface{}) {
	pq.items = append(pq.items, x.(*txPrioItem))
}

// Pop removes the highest priority item (according to Less) from the priority
// queue and returns it.  It is part of the heap.Interface implementation.
func (pq *txPriorityQueue) Pop() interface{} {
	n := len(pq.items)
	item := pq.items[n-1]
	pq.items[n-1] = nil
	pq.items = pq.items[0 : n-1]
	return item
}

// SetLessFunc sets the compare function for the priority queue to the provided
// function.  It also invokes heap.Init on the priority queue using the new
// function so it can immediately be used with heap.Push/Pop.
func (pq *txPriorityQueue) SetLessFunc(lessFunc txPriorityQueueLessFunc) {
	pq.lessFunc = lessFunc
	heap.Init(pq)
}

// txPQByPriorityThenFee sorts a txPriorityQueue by priority, then by fee per
// kilobyte.
func txPQByPriorityThenFee(pq *txPriorityQueue, i, j int) bool {
	// Using > here so that pop gives the highest priority item as opposed
	// to the lowest.
	if pq.items[i].priority == pq.items[j].priority {
		return pq.items[i].feePerKB > pq.items[j].feePerKB
	}
	return pq.items[i].priority > pq.items[j].priority
}

// txPQByFeeThenPriority sorts a txPriorityQueue by fee per kilobyte, then by
// priority.
func txPQByFeeThenPriority(pq *txPriorityQueue, i, j int) bool {
	if pq.items[i].feePerKB == pq.items[j].feePerKB {
		return pq.items[i].priority > pq.items[j].priority
	}
	return pq.items[i].feePerKB > pq.items[j].feePerKB
}

// newTxPriorityQueue returns a new transaction priority queue that reserves the
// passed amount of space for the elements.  The new priority queue uses either
// the txPQByPriorityThenFee or the txPQByFeeThenPriority compare function
// depending on the sortByFee parameter and is already initialized for use with
// heap.Push/Pop.  The priority queue can grow larger than the reserved space,
// but extra copies of the underlying array can be avoided by reserving a sane
// value.
func newTxPriorityQueue(reserve int, sortByFee bool) *txPriorityQueue {
	pq := &txPriorityQueue{
		items: make([]*txPrioItem, 0, reserve),
	}
	if sortByFee {
		pq.SetLessFunc(txPQByFeeThenPriority)
	} else {
		pq.SetLessFunc(txPQByPriorityThenFee)
	}
	return pq
}

// BlockTemplate houses a block that has yet to be solved along with additional
// details about the fees and the number of signature operations for each
// transaction in the block.
type BlockTemplate struct {
	// Block is a block that is ready to be solved by miners.  Thus, it is
	// completely valid with the exception of satisfying the proof-of-work
	// requirement.
	Block *wire.MsgBlock

	// Fees contains the amount of fees each transaction in the generated
	// template pays in base units.  Since the first transaction is the
	// coinbase, the first entry (offset 0) will contain the negative of the
	// sum of the fees of all other transactions.
	Fees []int64

	// SigOpCounts contains the number of signature operations each
	// transaction in the generated template performs.
	SigOpCounts []int64

	// Height is the height at which the block template connects to the main
	// chain.
	Height int32

	// ValidPayAddress indicates whether or not the template coinbase pays
	// to an address or is redeemable by anyone.  See the documentation on
	// NewBlockTemplate for details on which this can be useful to generate
	// templates without a coinbase payment address.
	ValidPayAddress bool
}

// Copy returns a copy of the template whose header and coinbase can be
// modified without affecting the original.  The other transactions are
// shared.
func (bt *BlockTemplate) Copy() *BlockTemplate {
	block := *bt.Block
	block.Header.Solution = append([]byte(nil), bt.Block.Header.Solution...)
	block.Transactions = make([]*wire.MsgTx, len(bt.Block.Transactions))
	copy(block.Transactions, bt.Block.Transactions)
	block.Transactions[0] = bt.Block.Transactions[0].Copy()

	cp := *bt
	cp.Block = &block
	cp.Fees = append([]int64(nil), bt.Fees...)
	cp.SigOpCounts = append([]int64(nil), bt.SigOpCounts...)
	return &cp
}

// standardCoinbaseScript returns a standard script suitable for use as the
// signature script of the coinbase transaction of a new block.  It starts
// with the block height that is required by consensus followed by the extra
// nonce.
func standardCoinbaseScript(nextBlockHeight int32, extraNonce uint64) ([]byte, error) {
	return txscript.NewScriptBuilder().AddInt64(int64(nextBlockHeight)).
		AddInt64(int64(extraNonce)).Script()
}

// createCoinbaseTx returns a coinbase transaction paying the block subsidy
// plus the passed fees to the provided script, less the founders reward which
// is paid to its own output when one is due.  When the script is nil, the
// coinbase transaction will instead be redeemable by anyone.
//
// See the comment for NewBlockTemplate for more information about why the nil
// script handling is useful.
func createCoinbaseTx(params *chaincfg.Params, coinbaseScript []byte,
	nextBlockHeight int32, payToScript []byte, fees int64) *wire.MsgTx {

	if payToScript == nil {
		payToScript = []byte{txscript.OP_TRUE}
	}

	subsidy := blockchain.CalcBlockSubsidy(nextBlockHeight, params)
	reward, foundersScript := blockchain.FoundersReward(nextBlockHeight,
		params)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		// Coinbase transactions have no inputs, so previous outpoint is
		// zero hash and max index.
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		SignatureScript: coinbaseScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(subsidy+fees-reward, payToScript))
	if foundersScript != nil {
		tx.AddTxOut(wire.NewTxOut(reward, foundersScript))
	}
	return tx
}

// logSkippedDeps logs any dependencies which are also skipped as a result of
// skipping a transaction while generating a block template at the trace level.
func logSkippedDeps(hash chainhash.Hash, deps []*txPrioItem) {
	for _, item := range deps {
		log.Tracef("Skipping tx %s since it depends on %s", item.hash,
			hash)
	}
}

// minimumMedianTime returns the minimum allowed timestamp for a block building
// on the end of the provided chain tip.  In particular, it is one second after
// the median timestamp of the last several blocks per the chain consensus
// rules.
func minimumMedianTime(tip blockchain.HeaderCtx) time.Time {
	return blockchain.CalcPastMedianTime(tip).Add(time.Second)
}

// medianAdjustedTime returns the current time adjusted to ensure it is at least
// one second after the median timestamp of the last several blocks per the
// chain consensus rules.
func medianAdjustedTime(tip blockchain.HeaderCtx,
	timeSource blockchain.MedianTimeSource) time.Time {

	// The timestamp for the block must not be before the median timestamp
	// of the last several blocks.  Thus, choose the maximum between the
	// current time and one second after the past median time.  The current
	// timestamp is truncated to a second boundary before comparison since a
	// block timestamp does not support a precision greater than one second.
	newTimestamp := timeSource.AdjustedTime()
	minTimestamp := minimumMedianTime(tip)
	if newTimestamp.Before(minTimestamp) {
		newTimestamp = minTimestamp
	}
	return newTimestamp
}

// randomNonce returns a random header nonce with the leading and trailing
// 16 bits cleared, leaving room for miners to iterate over them.
func randomNonce() (chainhash.Hash, error) {
	var nonce chainhash.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, err
	}
	nonce[0], nonce[1] = 0, 0
	nonce[chainhash.HashSize-2], nonce[chainhash.HashSize-1] = 0, 0
	return nonce, nil
}

// templateChecker is implemented by chains that can validate a block template
// against a consistent snapshot of their state.
type templateChecker interface {
	CheckConnectBlockTemplate(block *wire.MsgBlock) error
}

// Config houses the dependencies of a block template generator.
type Config struct {
	// Policy defines the sizes and fees used to select transactions.
	Policy Policy

	// TxSource provides the transactions to consider.
	TxSource TxSource

	// Chain is the view of the best chain the templates extend.
	Chain blockchain.ChainView

	// TimeSource provides the network adjusted time.
	TimeSource blockchain.MedianTimeSource

	// Verifier checks the input scripts of the selected transactions.
	Verifier blockchain.InputVerifier

	// Proofs checks the JoinSplits of the assembled template when the
	// chain does not validate templates itself.  It defaults to
	// blockchain.DisabledProofVerifier.
	Proofs blockchain.ProofVerifier
}

// BlkTmplGenerator provides a type that can be used to generate block templates
// based on a given mining policy and source of transactions to choose from.
// It also houses additional state required in order to ensure the templates
// are built on top of the current best chain and adhere to the consensus rules.
type BlkTmplGenerator struct {
	policy     Policy
	txSource   TxSource
	chain      blockchain.ChainView
	timeSource blockchain.MedianTimeSource
	verifier   blockchain.InputVerifier
	proofs     blockchain.ProofVerifier
}

// NewBlkTmplGenerator returns a new block template generator for the given
// configuration.  The policy is normalized first.
func NewBlkTmplGenerator(cfg *Config) *BlkTmplGenerator {
	proofs := cfg.Proofs
	if proofs == nil {
		proofs = blockchain.DisabledProofVerifier{}
	}
	return &BlkTmplGenerator{
		policy:     cfg.Policy.Normalize(),
		txSource:   cfg.TxSource,
		chain:      cfg.Chain,
		timeSource: cfg.TimeSource,
		verifier:   cfg.Verifier,
		proofs:     proofs,
	}
}

// Policy returns the normalized policy the generator selects transactions
// with.
func (g *BlkTmplGenerator) Policy() Policy {
	return g.policy
}

// TxSource returns the source of transactions the generator draws from.
func (g *BlkTmplGenerator) TxSource() TxSource {
	return g.txSource
}

// Chain returns the chain the generator builds on.
func (g *BlkTmplGenerator) Chain() blockchain.ChainView {
	return g.chain
}

// NewBlockTemplate returns a new block template that is ready to be solved
// using the transactions from the passed transaction source pool and a coinbase
// that either pays to the passed script if it is not nil, or a coinbase that
// is redeemable by anyone if the passed script is nil.  The nil script
// functionality is useful since there are cases such as the getblocktemplate
// RPC where external mining software is responsible for creating their own
// coinbase which will replace the one generated for the block template.  Thus
// the need to have configured payment scripts can be avoided.
//
// The transactions selected and included are prioritized according to several
// factors.  First, each transaction has a priority calculated based on its
// value, age of inputs, and size.  Transactions which consist of larger
// amounts, older inputs, and small sizes have the highest priority.  Second, a
// fee per kilobyte is calculated for each transaction.  Transactions with a
// higher fee per kilobyte are preferred.  Finally, the block generation related
// policy settings are all taken into account.
//
// Transactions which only spend outputs from other transactions already in the
// block chain are immediately added to a priority queue which either
// prioritizes based on the priority (then fee per kilobyte) or the fee per
// kilobyte (then priority) depending on whether or not the BlockPrioritySize
// policy setting allots space for high-priority transactions.  Transactions
// which spend outputs from other transactions in the source pool are added to a
// dependency map so they can be added to the priority queue once the
// transactions they depend on have been included.
//
// Once the high-priority area (if configured) has been filled with
// transactions, or the priority falls below what is considered high-priority,
// the priority queue is updated to prioritize by fees per kilobyte (then
// priority).
//
// When the fees per kilobyte drop below the TxMinFreeFee policy setting, the
// transaction will be skipped unless the BlockMinSize policy setting is
// nonzero, in which case the block will be filled with the low-fee/free
// transactions until the block size reaches that minimum size.  Transactions
// with a positive priority or fee adjustment are never skipped for their fee.
//
// Any transactions which would cause the block to exceed the BlockMaxSize
// policy setting, exceed the maximum allowed signature operations per block, or
// otherwise cause the block to be invalid are skipped.
//
// Given the above, a block generated by this function is of the following form:
//
//	 -----------------------------------  --  --
//	|      Coinbase Transaction         |   |   |
//	|-----------------------------------|   |   |
//	|                                   |   |   | ----- policy.BlockPrioritySize
//	|   High-priority Transactions      |   |   |
//	|                                   |   |   |
//	|-----------------------------------|   | --
//	|                                   |   |
//	|                                   |   |
//	|                                   |   |--- policy.BlockMaxSize
//	|  Transactions prioritized by fee  |   |
//	|  until <= policy.TxMinFreeFee     |   |
//	|                                   |   |
//	|                                   |   |
//	|                                   |   |
//	|-----------------------------------|   |
//	|  Low-fee/Non high-priority (free) |   |
//	|  transactions (while block size   |   |
//	|  <= policy.BlockMinSize)          |   |
//	 -----------------------------------  --
//
// The header commits to the merkle root of the selected transactions, a
// timestamp no earlier than one second past the median time of the tip, the
// difficulty required at that timestamp and a random nonce.  The assembled
// block is fully validated against the tip before it is returned.
func (g *BlkTmplGenerator) NewBlockTemplate(payToScript []byte) (*BlockTemplate, error) {
	params := g.chain.ChainParams()
	tip := g.chain.Tip()
	prevHash := tip.BlockHash()
	nextBlockHeight := tip.Height() + 1
	medianTime := blockchain.CalcPastMedianTime(tip)

	// Create a standard coinbase transaction paying to the provided
	// script.  The actual fee value is filled in once all transactions
	// are selected.
	coinbaseScript, err := standardCoinbaseScript(nextBlockHeight, 0)
	if err != nil {
		return nil, miningRuleError(ErrCreatingCoinbase,
			"failed to create coinbase script", err)
	}

	// Get the current source transactions and create a priority queue to
	// hold the transactions which are ready for inclusion into a block
	// along with some priority related and fee metadata.  Reserve the same
	// number of items that are available for the priority queue.  Also,
	// choose the initial sort order for the priority queue based on whether
	// or not there is an area allocated for high-priority transactions.
	sourceTxns := g.txSource.MiningDescs()
	sortedByFee := g.policy.BlockPrioritySize == 0
	priorityQueue := newTxPriorityQueue(len(sourceTxns), sortedByFee)

	inSource := make(map[chainhash.Hash]*TxDesc, len(sourceTxns))
	for _, txDesc := range sourceTxns {
		inSource[txDesc.Hash] = txDesc
	}

	// Create a utxo view to house all of the input transactions so
	// multiple lookups can be avoided.  Transactions are connected to it
	// as they are selected so that their dependers find their outputs.
	blockUtxos := blockchain.NewUtxoViewpoint()
	blockUtxos.SetBestHash(&prevHash)

	// deps tracks transactions which depend on another transaction in the
	// source pool and releases them once all of their parents have been
	// selected.
	deps := newDepGraph()

	log.Debugf("Considering %d transactions for inclusion to new block",
		len(sourceTxns))

mempoolLoop:
	for _, txDesc := range sourceTxns {
		// A block can't have more than one coinbase or contain
		// non-finalized transactions.
		tx := txDesc.Tx
		if blockchain.IsCoinBaseTx(tx) {
			log.Tracef("Skipping coinbase tx %s", txDesc.Hash)
			continue
		}
		if !blockchain.IsFinalizedTransaction(tx, nextBlockHeight,
			medianTime) {

			log.Tracef("Skipping non-finalized tx %s", txDesc.Hash)
			continue
		}

		// Fetch all of the chain utxos referenced by this transaction.
		blockUtxos.FetchUtxos(g.chain, tx)

		// Setup dependencies for any transactions which reference
		// other transactions in the source pool so they can be
		// properly ordered below.  Outputs of pool parents count
		// toward the input value but add no priority.
		var dependsOn map[chainhash.Hash]struct{}
		totalIn := blockchain.JoinSplitValueIn(tx)
		for _, txIn := range tx.TxIn {
			prevOut := &txIn.PreviousOutPoint
			entry := blockUtxos.LookupEntry(&prevOut.Hash)
			if entry != nil && !entry.IsOutputSpent(prevOut.Index) {
				totalIn += entry.AmountByIndex(prevOut.Index)
				continue
			}

			parent, ok := inSource[prevOut.Hash]
			if !ok || prevOut.Index >= uint32(len(parent.Tx.TxOut)) {
				log.Errorf("Skipping tx %s because it references "+
					"unspent output %s which is not available",
					txDesc.Hash, prevOut)
				continue mempoolLoop
			}
			totalIn += parent.Tx.TxOut[prevOut.Index].Value

			if dependsOn == nil {
				dependsOn = make(map[chainhash.Hash]struct{})
			}
			dependsOn[prevOut.Hash] = struct{}{}
		}

		// Calculate the final transaction priority using the input
		// value age sum as well as the adjusted transaction size.  The
		// formula is: sum(inputValue * inputAge) / adjustedTxSize
		txSize := tx.SerializeSize()
		priority := CalcPriority(tx, blockUtxos, nextBlockHeight)

		// Operator adjustments raise or lower both the priority and
		// the fee the selection sees.  The fee actually paid is not
		// affected.
		priorityDelta, feeDelta := txDesc.PriorityDelta, txDesc.FeeDelta
		priority += priorityDelta
		totalIn += feeDelta

		prioItem := &txPrioItem{
			tx:       tx,
			hash:     txDesc.Hash,
			size:     txSize,
			priority: priority,
			feePerKB: FeeRate(totalIn-blockchain.ValueOut(tx), txSize),
			hasDelta: priorityDelta > 0 || feeDelta > 0,
		}

		// Add the transaction to the priority queue to mark it ready
		// for inclusion in the block unless it has dependencies.
		if dependsOn == nil {
			heap.Push(priorityQueue, prioItem)
		} else {
			deps.add(prioItem, dependsOn)
		}
	}

	log.Tracef("Priority queue len %d, dependers len %d",
		priorityQueue.Len(), deps.pending())

	// The starting block size and signature operation count reserve room
	// for the block header and the coinbase transaction.
	blockSize := uint32(blockHeaderOverhead)
	blockSigOps := int64(coinbaseSigOpsReserve)
	totalFees := int64(0)

	// Create slices to hold the fees and number of signature operations
	// for each of the selected transactions and add an entry for the
	// coinbase.  This allows the code below to simply append details about
	// a transaction as it is selected for inclusion in the final block.
	// However, since the total fees aren't known yet, use a dummy value for
	// the coinbase fee which will be updated later.
	blockTxns := make([]*wire.MsgTx, 0, len(sourceTxns)+1)
	blockTxns = append(blockTxns, nil)
	txFees := make([]int64, 0, len(sourceTxns)+1)
	txFees = append(txFees, -1) // Updated once known
	txSigOpCounts := make([]int64, 0, len(sourceTxns)+1)
	txSigOpCounts = append(txSigOpCounts, -1) // Updated once known

	// Choose which transactions make it into the block.
	for priorityQueue.Len() > 0 {
		// Grab the highest priority (or highest fee per kilobyte
		// depending on the sort order) transaction.
		prioItem := heap.Pop(priorityQueue).(*txPrioItem)
		tx := prioItem.tx

		// Enforce maximum block size.  Also check for overflow.
		txSize := uint32(prioItem.size)
		blockPlusTxSize := blockSize + txSize
		if blockPlusTxSize < blockSize ||
			blockPlusTxSize >= g.policy.BlockMaxSize {

			log.Tracef("Skipping tx %s because it would exceed "+
				"the max block size", prioItem.hash)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		// Enforce maximum signature operations per block.  Also check
		// for overflow.
		numSigOps := int64(blockchain.CountSigOps(tx))
		if blockSigOps+numSigOps < blockSigOps ||
			blockSigOps+numSigOps >= blockchain.MaxBlockSigOps {

			log.Tracef("Skipping tx %s because it would exceed "+
				"the maximum sigops per block", prioItem.hash)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		// Skip free transactions once the block is larger than the
		// minimum block size.
		if sortedByFee && !prioItem.hasDelta &&
			prioItem.feePerKB < int64(g.policy.TxMinFreeFee) &&
			blockPlusTxSize >= g.policy.BlockMinSize {

			log.Tracef("Skipping tx %s with feePerKB %d "+
				"< TxMinFreeFee %d and block size %d >= "+
				"minBlockSize %d", prioItem.hash,
				prioItem.feePerKB, g.policy.TxMinFreeFee,
				blockPlusTxSize, g.policy.BlockMinSize)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		// Prioritize by fee per kilobyte once the block is larger than
		// the priority size or there are no more high-priority
		// transactions.  The current transaction is still considered
		// for inclusion.
		if !sortedByFee && (blockPlusTxSize >= g.policy.BlockPrioritySize ||
			!AllowFree(prioItem.priority)) {

			log.Tracef("Switching to sort by fees per kilobyte "+
				"blockSize %d >= BlockPrioritySize %d || "+
				"priority %.2f <= minHighPriority %.2f",
				blockPlusTxSize, g.policy.BlockPrioritySize,
				prioItem.priority, MinHighPriority)

			sortedByFee = true
			priorityQueue.SetLessFunc(txPQByFeeThenPriority)
		}

		// Ensure the transaction inputs pass all of the necessary
		// preconditions before allowing it to be added to the block.
		fee, err := blockchain.CheckTransactionInputs(tx, nextBlockHeight,
			blockUtxos, params)
		if err != nil {
			log.Tracef("Skipping tx %s due to error in "+
				"CheckTransactionInputs: %v", prioItem.hash, err)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		numP2SHSigOps, err := blockchain.CountP2SHSigOps(tx, blockUtxos)
		if err != nil {
			log.Tracef("Skipping tx %s due to error in "+
				"CountP2SHSigOps: %v", prioItem.hash, err)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}
		numSigOps += int64(numP2SHSigOps)
		if blockSigOps+numSigOps < blockSigOps ||
			blockSigOps+numSigOps >= blockchain.MaxBlockSigOps {

			log.Tracef("Skipping tx %s because it would exceed "+
				"the maximum sigops per block (p2sh)",
				prioItem.hash)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		err = blockchain.CheckJoinSplitRequirements(tx, blockUtxos, g.chain)
		if err != nil {
			log.Tracef("Skipping tx %s due to error in "+
				"CheckJoinSplitRequirements: %v", prioItem.hash,
				err)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		_, err = g.verifier.VerifyInputs(tx, blockUtxos,
			txscript.MandatoryVerifyFlags)
		if err != nil {
			log.Tracef("Skipping tx %s due to error in "+
				"VerifyInputs: %v", prioItem.hash, err)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		// Spend the transaction inputs in the block utxo view and add
		// an entry for it to ensure any transactions which reference
		// this one have it available as an input and can ensure they
		// aren't double spending.
		err = blockUtxos.ConnectTransaction(tx, nextBlockHeight)
		if err != nil {
			log.Tracef("Skipping tx %s due to error in "+
				"ConnectTransaction: %v", prioItem.hash, err)
			logSkippedDeps(prioItem.hash, deps.waitingOn(prioItem.hash))
			continue
		}

		// Add the transaction to the block, increment counters, and
		// save the fees and signature operation counts to the block
		// template.
		blockTxns = append(blockTxns, tx)
		blockSize += txSize
		blockSigOps += numSigOps
		totalFees += fee
		txFees = append(txFees, fee)
		txSigOpCounts = append(txSigOpCounts, numSigOps)

		log.Tracef("Adding tx %s (priority %.2f, feePerKB %d)",
			prioItem.hash, prioItem.priority, prioItem.feePerKB)

		// Add transactions which depend on this one (and also do not
		// have any other unsatisfied dependencies) to the priority
		// queue.
		for _, item := range deps.satisfy(prioItem.hash) {
			heap.Push(priorityQueue, item)
		}
	}

	// Now that the actual transactions have been selected, update the
	// coinbase with the total fees and put it in place.
	coinbaseTx := createCoinbaseTx(params, coinbaseScript, nextBlockHeight,
		payToScript, totalFees)
	blockTxns[0] = coinbaseTx
	txFees[0] = -totalFees
	txSigOpCounts[0] = int64(blockchain.CountSigOps(coinbaseTx))

	// Calculate the required difficulty for the block.  The timestamp
	// is potentially adjusted to ensure it comes after the median time of
	// the last several blocks per the chain consensus rules.
	ts := medianAdjustedTime(tip, g.timeSource)
	reqDifficulty := blockchain.CalcNextRequiredDifficulty(tip, ts, params)

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	// Create a new block ready to be solved.
	var msgBlock wire.MsgBlock
	msgBlock.Header = wire.BlockHeader{
		Version:    blockchain.MinBlockVersion,
		PrevBlock:  prevHash,
		MerkleRoot: blockchain.CalcMerkleRoot(blockTxns),
		Timestamp:  time.Unix(ts.Unix(), 0),
		Bits:       reqDifficulty,
		Nonce:      nonce,
	}
	msgBlock.Transactions = blockTxns

	// Finally, perform a full check on the created block against the chain
	// consensus rules to ensure it properly connects to the current best
	// chain with no issues.
	if err := g.checkConnectBlockTemplate(&msgBlock); err != nil {
		var rerr blockchain.RuleError
		if errors.As(err, &rerr) &&
			rerr.ErrorCode == blockchain.ErrBadPrevBlock {

			return nil, miningRuleError(ErrStaleTemplate,
				"chain tip changed while building template", err)
		}

		log.Errorf("Generated block template at height %d failed "+
			"validation: %v", nextBlockHeight, err)
		str := fmt.Sprintf("generated block template at height %d "+
			"is invalid", nextBlockHeight)
		return nil, miningRuleError(ErrTemplateInvalid, str, err)
	}

	log.Debugf("Created new block template (%d transactions, %d in "+
		"fees, %d signature operations, %d bytes, target difficulty "+
		"%064x)", len(msgBlock.Transactions), totalFees, blockSigOps,
		blockSize, blockchain.CompactToBig(msgBlock.Header.Bits))

	return &BlockTemplate{
		Block:           &msgBlock,
		Fees:            txFees,
		SigOpCounts:     txSigOpCounts,
		Height:          nextBlockHeight,
		ValidPayAddress: payToScript != nil,
	}, nil
}

// checkConnectBlockTemplate validates block against the tip of the chain,
// through the chain itself when it supports that.
func (g *BlkTmplGenerator) checkConnectBlockTemplate(block *wire.MsgBlock) error {
	if checker, ok := g.chain.(templateChecker); ok {
		return checker.CheckConnectBlockTemplate(block)
	}
	return blockchain.CheckConnectBlockTemplate(block, g.chain, g.verifier,
		g.proofs, g.timeSource)
}

// UpdateBlockTime updates the timestamp in the header of the passed block to
// the current time while taking into account the median time of the last
// several blocks to ensure the new time is after that time per the chain
// consensus rules.  The timestamp only moves forward.  Since the required
// difficulty depends on the timestamp, the difficulty bits are recalculated
// as well.
func (g *BlkTmplGenerator) UpdateBlockTime(msgBlock *wire.MsgBlock) error {
	tip := g.chain.Tip()
	if msgBlock.Header.PrevBlock != tip.BlockHash() {
		return miningRuleError(ErrStaleTemplate, "block does not "+
			"extend the current chain tip", nil)
	}

	newTime := medianAdjustedTime(tip, g.timeSource)
	newTime = time.Unix(newTime.Unix(), 0)
	if newTime.After(msgBlock.Header.Timestamp) {
		msgBlock.Header.Timestamp = newTime
	}

	msgBlock.Header.Bits = blockchain.CalcNextRequiredDifficulty(tip,
		msgBlock.Header.Timestamp, g.chain.ChainParams())
	return nil
}

// UpdateExtraNonce updates the extra nonce in the coinbase script of the passed
// block by regenerating the coinbase script with the passed value and block
// height.  It also recalculates and updates the new merkle root that results
// from changing the coinbase script.
func UpdateExtraNonce(msgBlock *wire.MsgBlock, blockHeight int32, extraNonce uint64) error {
	coinbaseScript, err := standardCoinbaseScript(blockHeight, extraNonce)
	if err != nil {
		return err
	}
	if len(coinbaseScript) > blockchain.MaxCoinbaseScriptLen {
		str := fmt.Sprintf("coinbase transaction script length of %d "+
			"is out of range (min: %d, max: %d)",
			len(coinbaseScript), blockchain.MinCoinbaseScriptLen,
			blockchain.MaxCoinbaseScriptLen)
		return miningRuleError(ErrCoinbaseLengthOverflow, str, nil)
	}

	coinbase := msgBlock.Transactions[0]
	if bytes.Equal(coinbase.TxIn[0].SignatureScript, coinbaseScript) {
		return nil
	}
	coinbase.TxIn[0].SignatureScript = coinbaseScript

	// Recalculate the merkle root with the updated extra nonce.
	msgBlock.Header.MerkleRoot = blockchain.CalcMerkleRoot(
		msgBlock.Transactions)
	return nil
}
