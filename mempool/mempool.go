// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/lru"
)

const (
	// rejectedCacheSize is the number of recently rejected transaction
	// ids remembered so that peers relaying them again are answered
	// without validating the transaction a second time.
	rejectedCacheSize = 5000

	// confirmedCacheSize is the number of transaction ids from recently
	// connected blocks remembered to keep confirmed transactions whose
	// outputs were already spent from re-entering the pool.
	confirmedCacheSize = 10000
)

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// Policy defines the various mempool configuration options related
	// to policy.
	Policy Policy

	// Chain is the view of the best chain transactions are validated
	// against.  It also supplies the chain parameters.
	Chain blockchain.ChainView

	// Verifier checks the input scripts of transactions.
	Verifier blockchain.InputVerifier

	// Proofs checks the JoinSplit proofs and signatures of shielded
	// transactions.
	Proofs blockchain.ProofVerifier

	// FeeEstimator is fed the pool entries of every connected block.  It
	// can be nil.
	FeeEstimator *FeeEstimator

	// AddrIndex enables the address and spent indices of the pool.
	AddrIndex bool
}

// Policy houses the policy (configuration parameters) which is used to
// control the mempool.
type Policy struct {
	// MaxTxVersion is the transaction version that the mempool should
	// accept.  All transactions above this version are rejected as
	// non-standard.
	MaxTxVersion int32

	// DisableRelayPriority defines whether to relay free or low-fee
	// transactions that do not have enough priority to be relayed.
	DisableRelayPriority bool

	// AcceptNonStd defines whether to accept non-standard transactions. If
	// true, non-standard transactions will be accepted into the mempool.
	// Otherwise, all non-standard transactions will be rejected.
	AcceptNonStd bool

	// MaxSigOpsPerTx is the maximum number of signature operations in a
	// single transaction we will relay or mine.
	MaxSigOpsPerTx int

	// MinRelayTxFee defines the minimum transaction fee in satoshi/kB to
	// be considered a non-zero fee.
	MinRelayTxFee btcutil.Amount

	// MaxPoolUsage bounds the memory used by pool entries in bytes.  Zero
	// disables the limit.
	MaxPoolUsage int64
}

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	mining.TxDesc

	// UsageSize is the memory the entry costs the pool.
	UsageSize int64

	// HadNoDependencies is set when none of the inputs of the transaction
	// were outputs of other pool transactions when it was accepted.
	HadNoDependencies bool
}

// NewTxDesc builds the pool entry for tx accepted while the best chain
// ended at height.  The view must hold the outputs tx spends.
func NewTxDesc(tx *wire.MsgTx, view *blockchain.UtxoViewpoint, height int32,
	fee int64, added time.Time) *TxDesc {

	size := tx.SerializeSize()
	return &TxDesc{
		TxDesc: mining.TxDesc{
			Tx:               tx,
			Hash:             tx.TxHash(),
			Added:            added,
			Height:           height,
			Fee:              fee,
			FeePerKB:         mining.FeeRate(fee, size),
			Size:             size,
			ModifiedSize:     mining.CalcModifiedSize(tx),
			StartingPriority: mining.CalcPriority(tx, view, height),
		},
		UsageSize: txMemUsage(tx),
	}
}

// CurrentPriority returns the priority of the entry once the best chain
// reaches height.  Every block adds the value the transaction moves divided
// by its modified size.
func (txD *TxDesc) CurrentPriority(height int32) float64 {
	if height <= txD.Height || txD.ModifiedSize == 0 {
		return txD.StartingPriority
	}

	valueIn := blockchain.ValueOut(txD.Tx) + txD.Fee
	delta := float64(height-txD.Height) * float64(valueIn) /
		float64(txD.ModifiedSize)
	return txD.StartingPriority + delta
}

// priorityDelta is an operator adjustment of a transaction's mining score.
type priorityDelta struct {
	priority float64
	fee      int64
}

// TxPool is used as a source of transactions that need to be mined into blocks
// and relayed to other peers.  It is safe for concurrent access from multiple
// peers.
type TxPool struct {
	// The following variables must only be used atomically.
	lastUpdated int64  // last time pool was updated
	poolVersion uint64 // bumped on every add and remove

	mtx        sync.RWMutex
	cfg        Config
	pool       map[chainhash.Hash]*TxDesc
	outpoints  map[wire.OutPoint]*TxDesc
	nullifiers map[chainhash.Hash]*TxDesc
	deltas     map[chainhash.Hash]*priorityDelta
	addrIndex  *addrIndex

	totalTxSize int64
	totalUsage  int64

	rejected  lru.Cache
	confirmed lru.Cache

	// pending holds the notifications raised while the pool lock is held.
	// They are delivered by unlock once the lock is released.
	pending []Notification

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// Ensure the TxPool type implements the mining.TxSource interface.
var _ mining.TxSource = (*TxPool)(nil)

// markUpdated records a change of the pool contents.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) markUpdated() {
	atomic.AddUint64(&mp.poolVersion, 1)
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
}

// isTransactionInPool returns whether or not the passed transaction already
// exists in the main pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) isTransactionInPool(hash *chainhash.Hash) bool {
	_, exists := mp.pool[*hash]
	return exists
}

// HaveTransaction returns whether or not the passed transaction already exists
// in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	// Protect concurrent access.
	mp.mtx.RLock()
	haveTx := mp.isTransactionInPool(hash)
	mp.mtx.RUnlock()

	return haveTx
}

// hasNoInputsOf returns whether none of the inputs of tx spend outputs of
// pool transactions.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) hasNoInputsOf(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if mp.isTransactionInPool(&txIn.PreviousOutPoint.Hash) {
			return false
		}
	}
	return true
}

// HasNoInputsOf returns whether none of the inputs of tx spend outputs of
// pool transactions.
//
// This function is safe for concurrent access.
func (mp *TxPool) HasNoInputsOf(tx *wire.MsgTx) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return mp.hasNoInputsOf(tx)
}

// checkPoolDoubleSpend checks whether or not the passed transaction is
// attempting to spend coins or reveal nullifiers already used by other
// transactions in the pool.  Note it does not check for double spends against
// transactions already in the main chain.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkPoolDoubleSpend(tx *wire.MsgTx) error {
	for _, txIn := range tx.TxIn {
		if txR, exists := mp.outpoints[txIn.PreviousOutPoint]; exists {
			str := fmt.Sprintf("output %v already spent by "+
				"transaction %v in the memory pool",
				txIn.PreviousOutPoint, txR.Hash)
			return txRuleError(wire.RejectDuplicate, str)
		}
	}

	for _, js := range tx.JoinSplits {
		for _, nf := range js.Nullifiers {
			if txR, exists := mp.nullifiers[nf]; exists {
				str := fmt.Sprintf("nullifier %v already "+
					"revealed by transaction %v in the "+
					"memory pool", nf, txR.Hash)
				return txRuleError(wire.RejectDuplicate, str)
			}
		}
	}

	return nil
}

// admit adds the entry to every index of the pool.  It performs no
// validation beyond refusing entries that would break the uniqueness of the
// indices.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) admit(txD *TxDesc, view *blockchain.UtxoViewpoint) error {
	if mp.isTransactionInPool(&txD.Hash) {
		str := fmt.Sprintf("already have transaction %v", txD.Hash)
		return txRuleError(wire.RejectDuplicate, str)
	}
	if mp.confirmed.Contains(txD.Hash) {
		str := fmt.Sprintf("transaction %v was recently confirmed",
			txD.Hash)
		return txRuleError(wire.RejectDuplicate, str)
	}
	if err := mp.checkPoolDoubleSpend(txD.Tx); err != nil {
		return err
	}

	txD.HadNoDependencies = mp.hasNoInputsOf(txD.Tx)

	mp.pool[txD.Hash] = txD
	for _, txIn := range txD.Tx.TxIn {
		mp.outpoints[txIn.PreviousOutPoint] = txD
	}
	for _, js := range txD.Tx.JoinSplits {
		for _, nf := range js.Nullifiers {
			mp.nullifiers[nf] = txD
		}
	}
	mp.totalTxSize += int64(txD.Size)
	mp.totalUsage += txD.UsageSize
	mp.markUpdated()

	// Add unconfirmed address index entries associated with the
	// transaction if enabled.
	if mp.addrIndex != nil {
		mp.addrIndex.addTx(txD, view)
	}

	mp.queueNotification(NTTxAccepted, txD)
	return nil
}

// Admit adds an already validated entry to the pool.  The view, which may be
// nil, supplies the spent outputs for the address index.  An entry that
// duplicates a pool transaction, a recently confirmed one, or spends an
// output or nullifier already used in the pool is refused.
//
// This function is safe for concurrent access.
func (mp *TxPool) Admit(txD *TxDesc, view *blockchain.UtxoViewpoint) error {
	mp.mtx.Lock()
	defer mp.unlock()
	return mp.admit(txD, view)
}

// removeEntry drops a single entry from every index of the pool.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeEntry(txD *TxDesc, reason RemovalReason) {
	for _, txIn := range txD.Tx.TxIn {
		if mp.outpoints[txIn.PreviousOutPoint] == txD {
			delete(mp.outpoints, txIn.PreviousOutPoint)
		}
	}
	for _, js := range txD.Tx.JoinSplits {
		for _, nf := range js.Nullifiers {
			if mp.nullifiers[nf] == txD {
				delete(mp.nullifiers, nf)
			}
		}
	}
	delete(mp.pool, txD.Hash)
	mp.totalTxSize -= int64(txD.Size)
	mp.totalUsage -= txD.UsageSize
	mp.markUpdated()

	// Remove unconfirmed address index entries associated with the
	// transaction if enabled.
	if mp.addrIndex != nil {
		mp.addrIndex.removeTx(&txD.Hash)
	}

	mp.queueNotification(NTTxRemoved, &TxRemovedData{
		Desc:   txD,
		Reason: reason,
	})
}

// removeTransaction removes tx from the pool.  With recursive set every pool
// transaction spending its outputs is removed too, transitively, and this
// holds even when tx itself is not in the pool.  It returns the removed
// entries in removal order.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeTransaction(tx *wire.MsgTx, recursive bool,
	reason RemovalReason) []*TxDesc {

	txHash := tx.TxHash()
	queue := []chainhash.Hash{txHash}
	if recursive && !mp.isTransactionInPool(&txHash) {
		// The transaction is gone already, for example because it was
		// mined, but its spenders must still go.
		for i := range tx.TxOut {
			prevOut := wire.OutPoint{Hash: txHash, Index: uint32(i)}
			if spender, ok := mp.outpoints[prevOut]; ok {
				queue = append(queue, spender.Hash)
			}
		}
	}

	var removed []*TxDesc
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]

		txD, ok := mp.pool[hash]
		if !ok {
			continue
		}
		if recursive {
			for i := range txD.Tx.TxOut {
				prevOut := wire.OutPoint{Hash: hash, Index: uint32(i)}
				if spender, ok := mp.outpoints[prevOut]; ok {
					queue = append(queue, spender.Hash)
				}
			}
		}
		mp.removeEntry(txD, reason)
		removed = append(removed, txD)
	}

	return removed
}

// RemoveTransaction removes the passed transaction from the mempool. When the
// recursive flag is set, any transactions that redeem outputs from the
// removed transaction will also be removed recursively from the mempool, as
// they would otherwise become orphans.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveTransaction(tx *wire.MsgTx, recursive bool) []*TxDesc {
	// Protect concurrent access.
	mp.mtx.Lock()
	removed := mp.removeTransaction(tx, recursive, RemovedByCaller)
	mp.unlock()

	return removed
}

// removeConflicts removes every pool transaction, other than tx itself, that
// spends an output or reveals a nullifier tx uses, together with their
// descendants.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeConflicts(tx *wire.MsgTx) []*TxDesc {
	txHash := tx.TxHash()

	var removed []*TxDesc
	for _, txIn := range tx.TxIn {
		txR, ok := mp.outpoints[txIn.PreviousOutPoint]
		if !ok || txR.Hash == txHash {
			continue
		}
		removed = append(removed, mp.removeTransaction(txR.Tx, true,
			RemovedConflict)...)
	}

	for _, js := range tx.JoinSplits {
		for _, nf := range js.Nullifiers {
			txR, ok := mp.nullifiers[nf]
			if !ok || txR.Hash == txHash {
				continue
			}
			removed = append(removed, mp.removeTransaction(txR.Tx,
				true, RemovedConflict)...)
		}
	}

	return removed
}

// RemoveConflicts removes all transactions which spend outputs or reveal
// nullifiers used by the passed transaction from the memory pool.  Removing
// those transactions then leads to removing all transactions which rely on
// them, recursively.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveConflicts(tx *wire.MsgTx) []*TxDesc {
	// Protect concurrent access.
	mp.mtx.Lock()
	removed := mp.removeConflicts(tx)
	mp.unlock()

	return removed
}

// RemoveForBlock updates the pool for the block at height that confirmed
// txs.  Each confirmed transaction leaves the pool while its spenders stay,
// since they now spend chain outputs, and every pool transaction in conflict
// with the block is removed along with its descendants.  The pool entries of
// the confirmed transactions are passed to the fee estimator.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveForBlock(txs []*wire.MsgTx, height int32) {
	mp.mtx.Lock()
	defer mp.unlock()

	entries := make([]*TxDesc, 0, len(txs))
	for _, tx := range txs {
		txHash := tx.TxHash()
		if txD, ok := mp.pool[txHash]; ok {
			entries = append(entries, txD)
		}
	}

	var conflicts int
	for _, tx := range txs {
		txHash := tx.TxHash()
		mp.removeTransaction(tx, false, RemovedInBlock)
		conflicts += len(mp.removeConflicts(tx))
		mp.clearPrioritisation(&txHash)
		mp.confirmed.Add(txHash)
	}

	if mp.cfg.FeeEstimator != nil {
		err := mp.cfg.FeeEstimator.RegisterBlock(height, entries)
		if err != nil {
			log.Warnf("Unable to register block %d with the fee "+
				"estimator: %v", height, err)
		}
	}

	// A new block may make previously rejected transactions valid.
	mp.rejected = lru.NewCache(rejectedCacheSize)

	log.Debugf("Block %d confirmed %d pool %s, %d %s removed", height,
		len(entries), pickNoun(len(entries), "transaction",
			"transactions"), conflicts,
		pickNoun(conflicts, "conflict", "conflicts"))
}

// Unconfirm forgets that txs were confirmed so that they can be accepted
// again after the block holding them was disconnected.
//
// This function is safe for concurrent access.
func (mp *TxPool) Unconfirm(txs []*wire.MsgTx) {
	mp.mtx.Lock()
	for _, tx := range txs {
		mp.confirmed.Delete(tx.TxHash())
	}
	mp.unlock()
}

// RemoveWithInvalidAnchor removes every transaction with a JoinSplit proven
// against anchor, along with their descendants.  It is used once a block
// that produced the anchor is disconnected.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveWithInvalidAnchor(anchor chainhash.Hash) []*TxDesc {
	mp.mtx.Lock()
	defer mp.unlock()

	var invalid []*TxDesc
	for _, txD := range mp.pool {
		for _, js := range txD.Tx.JoinSplits {
			if js.Anchor == anchor {
				invalid = append(invalid, txD)
				break
			}
		}
	}

	var removed []*TxDesc
	for _, txD := range invalid {
		removed = append(removed, mp.removeTransaction(txD.Tx, true,
			RemovedInvalidAnchor)...)
	}
	if len(removed) > 0 {
		log.Debugf("Removed %d %s proving against anchor %v",
			len(removed), pickNoun(len(removed), "transaction",
				"transactions"), anchor)
	}
	return removed
}

// RemoveCoinbaseSpends removes the transactions that spend outputs no longer
// available to the pool once the block at height was disconnected: outputs
// missing from the chain and coinbase outputs that are immature at height.
// Their descendants are removed as well.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveCoinbaseSpends(height int32) []*TxDesc {
	mp.mtx.Lock()
	defer mp.unlock()

	maturity := int32(mp.cfg.Chain.ChainParams().CoinbaseMaturity)

	var invalid []*TxDesc
	for _, txD := range mp.pool {
		for _, txIn := range txD.Tx.TxIn {
			prevHash := &txIn.PreviousOutPoint.Hash
			if mp.isTransactionInPool(prevHash) {
				continue
			}
			entry := mp.cfg.Chain.FetchUtxoEntry(prevHash)
			if entry == nil || (entry.IsCoinBase() &&
				height-entry.BlockHeight() < maturity) {

				invalid = append(invalid, txD)
				break
			}
		}
	}

	var removed []*TxDesc
	for _, txD := range invalid {
		removed = append(removed, mp.removeTransaction(txD.Tx, true,
			RemovedImmature)...)
	}
	return removed
}

// modifiedFeeRate returns the fee rate of the entry including any fee delta.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) modifiedFeeRate(txD *TxDesc) int64 {
	fee := txD.Fee
	if delta, ok := mp.deltas[txD.Hash]; ok {
		fee += delta.fee
	}
	return mining.FeeRate(fee, txD.Size)
}

// limitSize evicts the entries with the lowest modified fee rate, and their
// descendants, until dynamicMemoryUsage is at most maxUsage bytes.  Among
// equal fee rates the most recently added go first.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) limitSize(maxUsage int64) []chainhash.Hash {
	if mp.dynamicMemoryUsage() <= maxUsage {
		return nil
	}

	type candidate struct {
		txD  *TxDesc
		rate int64
	}
	candidates := make([]candidate, 0, len(mp.pool))
	for _, txD := range mp.pool {
		candidates = append(candidates, candidate{txD, mp.modifiedFeeRate(txD)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rate != b.rate {
			return a.rate < b.rate
		}
		if !a.txD.Added.Equal(b.txD.Added) {
			return a.txD.Added.After(b.txD.Added)
		}
		return bytes.Compare(a.txD.Hash[:], b.txD.Hash[:]) < 0
	})

	var evicted []chainhash.Hash
	for _, c := range candidates {
		if mp.dynamicMemoryUsage() <= maxUsage {
			break
		}
		if !mp.isTransactionInPool(&c.txD.Hash) {
			continue
		}
		for _, txD := range mp.removeTransaction(c.txD.Tx, true,
			RemovedSizeLimit) {

			evicted = append(evicted, txD.Hash)
		}
	}

	log.Debugf("Evicted %d %s to limit the pool to %d bytes",
		len(evicted), pickNoun(len(evicted), "transaction",
			"transactions"), maxUsage)
	return evicted
}

// LimitSize evicts transactions until the memory reported by
// DynamicMemoryUsage is at most maxUsage bytes and returns the ids of the evicted transactions.
//
// This function is safe for concurrent access.
func (mp *TxPool) LimitSize(maxUsage int64) []chainhash.Hash {
	mp.mtx.Lock()
	defer mp.unlock()
	return mp.limitSize(maxUsage)
}

// Prioritise adds the given deltas to the priority and fee the block template
// generator assigns the transaction.  The transaction need not be in the
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Prioritise(hash *chainhash.Hash, priority float64,
	fee int64) {

	mp.mtx.Lock()
	delta, ok := mp.deltas[*hash]
	if !ok {
		delta = &priorityDelta{}
		mp.deltas[*hash] = delta
	}
	delta.priority += priority
	delta.fee += fee
	p, f := delta.priority, delta.fee
	mp.markUpdated()
	mp.unlock()

	log.Infof("Prioritised transaction %v: priority %+g, fee %v", hash,
		p, btcutil.Amount(f))
}

// ApplyDeltas returns the priority and fee adjustments assigned to the
// transaction with the given hash.
//
// This function is safe for concurrent access.
func (mp *TxPool) ApplyDeltas(hash *chainhash.Hash) (float64, int64) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	if delta, ok := mp.deltas[*hash]; ok {
		return delta.priority, delta.fee
	}
	return 0, 0
}

// clearPrioritisation drops the adjustments of a transaction.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) clearPrioritisation(hash *chainhash.Hash) {
	delete(mp.deltas, *hash)
}

// ClearPrioritisation drops the adjustments assigned to the transaction.
//
// This function is safe for concurrent access.
func (mp *TxPool) ClearPrioritisation(hash *chainhash.Hash) {
	mp.mtx.Lock()
	mp.clearPrioritisation(hash)
	mp.unlock()
}

// Check verifies the internal consistency of the pool against the best
// chain: every input spends a chain output or a pool output, the indices
// agree with the entries, no nullifier is revealed in the chain, every
// anchor is a known commitment root, the transactions replay in dependency
// order, and the totals match.  It returns an AssertError describing the
// first violation found.
//
// This function is safe for concurrent access.
func (mp *TxPool) Check() error {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	chain := mp.cfg.Chain
	var (
		totalTxSize    int64
		totalUsage     int64
		numOutpoints   int
		numNullifiers  int
		waiting        []*TxDesc
		spendsFromPool = make(map[chainhash.Hash]bool, len(mp.pool))
	)
	for hash, txD := range mp.pool {
		if txD.Hash != hash {
			return AssertError(fmt.Sprintf("entry %v indexed as %v",
				txD.Hash, hash))
		}
		totalTxSize += int64(txD.Size)
		totalUsage += txD.UsageSize

		for _, txIn := range txD.Tx.TxIn {
			op := txIn.PreviousOutPoint
			if parent, ok := mp.pool[op.Hash]; ok {
				if int(op.Index) >= len(parent.Tx.TxOut) {
					return AssertError(fmt.Sprintf("%v "+
						"spends missing pool output %v",
						hash, op))
				}
				spendsFromPool[hash] = true
			} else {
				entry := chain.FetchUtxoEntry(&op.Hash)
				if entry == nil || entry.IsOutputSpent(op.Index) {
					return AssertError(fmt.Sprintf("%v "+
						"spends unavailable output %v",
						hash, op))
				}
			}
			if mp.outpoints[op] != txD {
				return AssertError(fmt.Sprintf("outpoint %v of "+
					"%v is not indexed", op, hash))
			}
			numOutpoints++
		}

		for _, js := range txD.Tx.JoinSplits {
			for i := range js.Nullifiers {
				nf := &js.Nullifiers[i]
				if chain.NullifierExists(nf) {
					return AssertError(fmt.Sprintf("%v "+
						"reveals nullifier %v spent in "+
						"the chain", hash, nf))
				}
				if mp.nullifiers[*nf] != txD {
					return AssertError(fmt.Sprintf("nullifier "+
						"%v of %v is not indexed", nf,
						hash))
				}
				numNullifiers++
			}
			if !chain.HasAnchor(&js.Anchor) {
				return AssertError(fmt.Sprintf("%v proves "+
					"against unknown anchor %v", hash,
					js.Anchor))
			}
		}
		waiting = append(waiting, txD)
	}

	if numOutpoints != len(mp.outpoints) {
		return AssertError(fmt.Sprintf("%d spent outputs indexed for "+
			"%d inputs", len(mp.outpoints), numOutpoints))
	}
	if numNullifiers != len(mp.nullifiers) {
		return AssertError(fmt.Sprintf("%d nullifiers indexed for %d "+
			"revealed", len(mp.nullifiers), numNullifiers))
	}
	if totalTxSize != mp.totalTxSize {
		return AssertError(fmt.Sprintf("total size %d, entries sum "+
			"to %d", mp.totalTxSize, totalTxSize))
	}
	if totalUsage != mp.totalUsage {
		return AssertError(fmt.Sprintf("total usage %d, entries sum "+
			"to %d", mp.totalUsage, totalUsage))
	}

	// Replay the pool on top of the chain, parents first.
	nextHeight := chain.Tip().Height() + 1
	params := chain.ChainParams()
	view := blockchain.NewUtxoViewpoint()
	applied := make(map[chainhash.Hash]struct{}, len(mp.pool))
	for len(waiting) > 0 {
		var deferred []*TxDesc
		for _, txD := range waiting {
			if spendsFromPool[txD.Hash] && !parentsApplied(txD.Tx,
				mp.pool, applied) {

				deferred = append(deferred, txD)
				continue
			}

			view.FetchUtxos(chain, txD.Tx)
			if _, err := blockchain.CheckTransactionInputs(txD.Tx,
				nextHeight, view, params); err != nil {

				return AssertError(fmt.Sprintf("%v does not "+
					"replay: %v", txD.Hash, err))
			}
			err := view.ConnectTransaction(txD.Tx, mining.UnminedHeight)
			if err != nil {
				return AssertError(fmt.Sprintf("%v does not "+
					"connect: %v", txD.Hash, err))
			}
			applied[txD.Hash] = struct{}{}
		}
		if len(deferred) == len(waiting) {
			return AssertError(fmt.Sprintf("%d pool transactions "+
				"depend on each other", len(deferred)))
		}
		waiting = deferred
	}

	return nil
}

// parentsApplied returns whether every pool parent of tx is in applied.
func parentsApplied(tx *wire.MsgTx, pool map[chainhash.Hash]*TxDesc,
	applied map[chainhash.Hash]struct{}) bool {

	for _, txIn := range tx.TxIn {
		hash := txIn.PreviousOutPoint.Hash
		if _, inPool := pool[hash]; !inPool {
			continue
		}
		if _, ok := applied[hash]; !ok {
			return false
		}
	}
	return true
}

// FetchTxDesc returns the pool entry of the transaction with the given hash.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTxDesc(txHash *chainhash.Hash) (*TxDesc, error) {
	// Protect concurrent access.
	mp.mtx.RLock()
	txDesc, exists := mp.pool[*txHash]
	mp.mtx.RUnlock()

	if exists {
		return txDesc, nil
	}

	return nil, fmt.Errorf("transaction is not in the pool")
}

// FetchTransaction returns the requested transaction from the transaction pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(txHash *chainhash.Hash) (*wire.MsgTx, error) {
	txDesc, err := mp.FetchTxDesc(txHash)
	if err != nil {
		return nil, err
	}
	return txDesc.Tx, nil
}

// Count returns the number of transactions in the main pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	count := len(mp.pool)
	mp.mtx.RUnlock()

	return count
}

// TxHashes returns a slice of hashes for all of the transactions in the memory
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxHashes() []*chainhash.Hash {
	mp.mtx.RLock()
	hashes := make([]*chainhash.Hash, len(mp.pool))
	i := 0
	for hash := range mp.pool {
		hashCopy := hash
		hashes[i] = &hashCopy
		i++
	}
	mp.mtx.RUnlock()

	return hashes
}

// TxDescs returns a slice of descriptors for all the transactions in the pool.
// The descriptors are to be treated as read only.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	descs := make([]*TxDesc, len(mp.pool))
	i := 0
	for _, desc := range mp.pool {
		descs[i] = desc
		i++
	}
	mp.mtx.RUnlock()

	return descs
}

// MiningDescs returns a slice of mining descriptors for all the transactions
// in the pool.  Each descriptor carries the adjustments assigned to its
// transaction at the time of the call.
//
// This is part of the mining.TxSource interface implementation and is safe for
// concurrent access as required by the interface contract.
func (mp *TxPool) MiningDescs() []*mining.TxDesc {
	mp.mtx.RLock()
	descs := make([]*mining.TxDesc, len(mp.pool))
	i := 0
	for _, desc := range mp.pool {
		miningDesc := desc.TxDesc
		if delta, ok := mp.deltas[miningDesc.Hash]; ok {
			miningDesc.PriorityDelta = delta.priority
			miningDesc.FeeDelta = delta.fee
		}
		descs[i] = &miningDesc
		i++
	}
	mp.mtx.RUnlock()

	return descs
}

// TotalTxSize returns the sum of the serialized sizes of the pool
// transactions.
//
// This function is safe for concurrent access.
func (mp *TxPool) TotalTxSize() int64 {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return mp.totalTxSize
}

// DynamicMemoryUsage returns the memory used by pool entries and the
// prioritisation table.
//
// This function is safe for concurrent access.
func (mp *TxPool) DynamicMemoryUsage() int64 {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return mp.dynamicMemoryUsage()
}

// dynamicMemoryUsage returns the memory used by pool entries and the
// prioritisation table.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) dynamicMemoryUsage() int64 {
	deltaSize := hashKeySize + mapEntryOverhead + 16
	return mp.totalUsage + int64(len(mp.deltas))*deltaSize
}

// LastUpdated returns the last time a transaction was added to or removed from
// the main pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(atomic.LoadInt64(&mp.lastUpdated), 0)
}

// PoolVersion returns a counter bumped by every change of the pool contents
// or of the prioritisation table.
//
// This function is safe for concurrent access.
func (mp *TxPool) PoolVersion() uint64 {
	return atomic.LoadUint64(&mp.poolVersion)
}

// IsSpent returns whether a pool transaction spends the output.
//
// This function is safe for concurrent access.
func (mp *TxPool) IsSpent(op wire.OutPoint) bool {
	mp.mtx.RLock()
	_, ok := mp.outpoints[op]
	mp.mtx.RUnlock()
	return ok
}

// IsNullifierSpent returns whether a pool transaction reveals the nullifier.
//
// This function is safe for concurrent access.
func (mp *TxPool) IsNullifierSpent(nf *chainhash.Hash) bool {
	mp.mtx.RLock()
	_, ok := mp.nullifiers[*nf]
	mp.mtx.RUnlock()
	return ok
}

// errNoEstimator is returned by the estimate queries of a pool without a fee
// estimator.
var errNoEstimator = errors.New("fee estimation is disabled")

// EstimateFee returns the fee rate needed for a transaction to be confirmed
// within numBlocks blocks.
func (mp *TxPool) EstimateFee(numBlocks uint32) (SatoshiPerByte, error) {
	if mp.cfg.FeeEstimator == nil {
		return -1, errNoEstimator
	}
	return mp.cfg.FeeEstimator.EstimateFee(numBlocks)
}

// EstimatePriority returns the priority needed for a free transaction to be
// confirmed within numBlocks blocks.
func (mp *TxPool) EstimatePriority(numBlocks uint32) (float64, error) {
	if mp.cfg.FeeEstimator == nil {
		return -1, errNoEstimator
	}
	return mp.cfg.FeeEstimator.EstimatePriority(numBlocks)
}

// AddrDeltas returns the balance changes pool transactions make to the given
// addresses.  The second result is false when the address index is disabled.
//
// This function is safe for concurrent access.
func (mp *TxPool) AddrDeltas(addrs []Address) ([]AddrDelta, bool) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	if mp.addrIndex == nil {
		return nil, false
	}
	return mp.addrIndex.addrDeltas(addrs), true
}

// SpentInfo returns the pool input spending op.  The second result is false
// when no pool transaction spends it or the spent index is disabled.
//
// This function is safe for concurrent access.
func (mp *TxPool) SpentInfo(op wire.OutPoint) (SpentInfo, bool) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	if mp.addrIndex == nil {
		return SpentInfo{}, false
	}
	info, ok := mp.addrIndex.spent[op]
	return info, ok
}

// New returns a new memory pool for validating and storing standalone
// transactions until they are mined into a block.
func New(cfg *Config) *TxPool {
	mp := &TxPool{
		cfg:        *cfg,
		pool:       make(map[chainhash.Hash]*TxDesc),
		outpoints:  make(map[wire.OutPoint]*TxDesc),
		nullifiers: make(map[chainhash.Hash]*TxDesc),
		deltas:     make(map[chainhash.Hash]*priorityDelta),
		rejected:   lru.NewCache(rejectedCacheSize),
		confirmed:  lru.NewCache(confirmedCacheSize),
	}
	if cfg.AddrIndex {
		mp.addrIndex = newAddrIndex()
	}
	if mp.cfg.Proofs == nil {
		mp.cfg.Proofs = blockchain.DisabledProofVerifier{}
	}
	return mp
}
