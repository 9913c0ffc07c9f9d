// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// utxoOutput houses details about an individual unspent transaction output such
// as whether or not it is spent, its public key script, and how much it pays.
type utxoOutput struct {
	spent    bool   // Output is spent.
	amount   int64  // The amount of the output.
	pkScript []byte // The public key script for the output.
}

// UtxoEntry contains contextual information about an unspent transaction such
// as whether or not it is a coinbase transaction, which block it was found in,
// and the spent status of its outputs.
type UtxoEntry struct {
	modified      bool                   // Entry changed since load.
	version       int32                  // The version of this tx.
	isCoinBase    bool                   // Whether entry is a coinbase tx.
	blockHeight   int32                  // Height of block containing tx.
	sparseOutputs map[uint32]*utxoOutput // Sparse map of unspent outputs.
}

// Version returns the version of the transaction the utxo represents.
func (entry *UtxoEntry) Version() int32 {
	return entry.version
}

// IsCoinBase returns whether or not the transaction the utxo entry represents
// is a coinbase.
func (entry *UtxoEntry) IsCoinBase() bool {
	return entry.isCoinBase
}

// BlockHeight returns the height of the block containing the transaction the
// utxo entry represents.
func (entry *UtxoEntry) BlockHeight() int32 {
	return entry.blockHeight
}

// IsOutputSpent returns whether or not the provided output index has been
// spent based upon the current state of the unspent transaction output view
// the entry was obtained from.
//
// Returns true if the output index references an output that does not exist
// either due to it being invalid or because the output is not part of the view
// due to previously being spent/pruned.
func (entry *UtxoEntry) IsOutputSpent(outputIndex uint32) bool {
	output, ok := entry.sparseOutputs[outputIndex]
	if !ok {
		return true
	}

	return output.spent
}

// SpendOutput marks the output at the provided index as spent.  Specifying an
// output index that does not exist will not have any effect.
func (entry *UtxoEntry) SpendOutput(outputIndex uint32) {
	output, ok := entry.sparseOutputs[outputIndex]
	if !ok || output.spent {
		return
	}

	entry.modified = true
	output.spent = true
}

// IsFullySpent returns whether or not the transaction the utxo entry represents
// is fully spent.
func (entry *UtxoEntry) IsFullySpent() bool {
	for _, output := range entry.sparseOutputs {
		if !output.spent {
			return false
		}
	}

	return true
}

// AmountByIndex returns the amount of the provided output index.
//
// Returns 0 if the output index references an output that does not exist
// either due to it being invalid or because the output is not part of the view
// due to previously being spent/pruned.
func (entry *UtxoEntry) AmountByIndex(outputIndex uint32) int64 {
	output, ok := entry.sparseOutputs[outputIndex]
	if !ok {
		return 0
	}
	return output.amount
}

// PkScriptByIndex returns the public key script for the provided output index.
//
// Returns nil if the output index references an output that does not exist
// either due to it being invalid or because the output is not part of the view
// due to previously being spent/pruned.
func (entry *UtxoEntry) PkScriptByIndex(outputIndex uint32) []byte {
	output, ok := entry.sparseOutputs[outputIndex]
	if !ok {
		return nil
	}
	return output.pkScript
}

// Clone returns a deep copy of the utxo entry.
func (entry *UtxoEntry) Clone() *UtxoEntry {
	if entry == nil {
		return nil
	}

	newEntry := newUtxoEntry(entry.version, entry.isCoinBase,
		entry.blockHeight)
	for outputIndex, output := range entry.sparseOutputs {
		o := *output
		newEntry.sparseOutputs[outputIndex] = &o
	}
	return newEntry
}

// newUtxoEntry returns a new unspent transaction output entry with the provided
// coinbase flag and block height ready to have unspent outputs added.
func newUtxoEntry(version int32, isCoinBase bool, blockHeight int32) *UtxoEntry {
	return &UtxoEntry{
		version:       version,
		isCoinBase:    isCoinBase,
		blockHeight:   blockHeight,
		sparseOutputs: make(map[uint32]*utxoOutput),
	}
}

// spentTxOut contains a spent transaction output and potentially additional
// contextual information such as whether or not it was contained in a coinbase
// transaction, the version of the transaction it was contained in, and which
// block height the containing transaction was included in.
type spentTxOut struct {
	amount     int64
	pkScript   []byte
	version    int32
	height     int32
	isCoinBase bool
}

// UtxoViewpoint represents a view into the set of unspent transaction outputs
// and revealed nullifiers from a specific point of view in the chain.  The
// block template generator uses one as its working view, applying each
// selected transaction so later candidates see its outputs and spends.
type UtxoViewpoint struct {
	entries    map[chainhash.Hash]*UtxoEntry
	nullifiers map[chainhash.Hash]struct{}
	bestHash   chainhash.Hash
}

// Ensure UtxoViewpoint can feed the script verifier.
var _ txscript.PrevOutputFetcher = (*UtxoViewpoint)(nil)

// BestHash returns the hash of the best block in the chain the view currently
// respresents.
func (view *UtxoViewpoint) BestHash() *chainhash.Hash {
	return &view.bestHash
}

// SetBestHash sets the hash of the best block in the chain the view currently
// respresents.
func (view *UtxoViewpoint) SetBestHash(hash *chainhash.Hash) {
	view.bestHash = *hash
}

// LookupEntry returns information about a given transaction according to the
// current state of the view.  It will return nil if the passed transaction
// hash does not exist in the view or is otherwise not available such as when
// it has been disconnected during a reorg.
func (view *UtxoViewpoint) LookupEntry(txHash *chainhash.Hash) *UtxoEntry {
	return view.entries[*txHash]
}

// FetchPrevOutput returns the unspent output referenced by op or nil when the
// view does not hold it.
func (view *UtxoViewpoint) FetchPrevOutput(op wire.OutPoint) *wire.TxOut {
	entry := view.entries[op.Hash]
	if entry == nil || entry.IsOutputSpent(op.Index) {
		return nil
	}
	return &wire.TxOut{
		Value:    entry.AmountByIndex(op.Index),
		PkScript: entry.PkScriptByIndex(op.Index),
	}
}

// HaveNullifier returns whether the nullifier was revealed by a transaction
// connected to the view.
func (view *UtxoViewpoint) HaveNullifier(nullifier *chainhash.Hash) bool {
	_, ok := view.nullifiers[*nullifier]
	return ok
}

// AddTxOuts adds all outputs in the passed transaction which are not provably
// unspendable to the view.  When the view already has entries for any of the
// outputs, they are simply marked unspent.  All fields will be updated for
// existing entries since it's possible it has changed during a reorg.
func (view *UtxoViewpoint) AddTxOuts(tx *wire.MsgTx, blockHeight int32) {
	txHash := tx.TxHash()
	entry := view.LookupEntry(&txHash)
	if entry == nil {
		entry = newUtxoEntry(tx.Version, IsCoinBaseTx(tx), blockHeight)
		view.entries[txHash] = entry
	} else {
		entry.blockHeight = blockHeight
	}
	entry.modified = true

	for txOutIdx, txOut := range tx.TxOut {
		if txscript.IsUnspendable(txOut.PkScript) {
			continue
		}
		entry.sparseOutputs[uint32(txOutIdx)] = &utxoOutput{
			amount:   txOut.Value,
			pkScript: txOut.PkScript,
		}
	}
}

// ConnectTransaction updates the view by marking all utxos the transaction
// spends as spent, recording its nullifiers, and adding the utxos it creates.
// An error is returned if the view does not contain the required utxos.
func (view *UtxoViewpoint) ConnectTransaction(tx *wire.MsgTx,
	blockHeight int32) error {

	return view.connectTransaction(tx, blockHeight, nil)
}

// connectTransaction is ConnectTransaction that additionally appends an entry
// for each spent txout to stxos when it is not nil.
func (view *UtxoViewpoint) connectTransaction(tx *wire.MsgTx,
	blockHeight int32, stxos *[]spentTxOut) error {

	// Coinbase transactions don't have any inputs to spend.
	if IsCoinBaseTx(tx) {
		view.AddTxOuts(tx, blockHeight)
		return nil
	}

	for _, txIn := range tx.TxIn {
		originIndex := txIn.PreviousOutPoint.Index
		entry := view.entries[txIn.PreviousOutPoint.Hash]
		if entry == nil || entry.IsOutputSpent(originIndex) {
			return AssertError(fmt.Sprintf("view missing input %v",
				txIn.PreviousOutPoint))
		}

		if stxos != nil {
			*stxos = append(*stxos, spentTxOut{
				amount:     entry.AmountByIndex(originIndex),
				pkScript:   entry.PkScriptByIndex(originIndex),
				version:    entry.Version(),
				height:     entry.BlockHeight(),
				isCoinBase: entry.IsCoinBase(),
			})
		}
		entry.SpendOutput(originIndex)
	}

	for _, js := range tx.JoinSplits {
		for _, nf := range js.Nullifiers {
			view.nullifiers[nf] = struct{}{}
		}
	}

	view.AddTxOuts(tx, blockHeight)
	return nil
}

// disconnectTransactions updates the view by removing all of the transactions
// created by the passed block, restoring all utxos and nullifiers the
// transactions spent by using the provided spent txo information.
func (view *UtxoViewpoint) disconnectTransactions(block *wire.MsgBlock,
	blockHeight int32, stxos []spentTxOut) error {

	if len(stxos) != countSpentOutputs(block) {
		return AssertError("disconnectTransactions called with bad " +
			"spent transaction out information")
	}

	// Loop backwards through all transactions so everything is unspent in
	// reverse order.  This is necessary since transactions later in a block
	// can spend from previous ones.
	stxoIdx := len(stxos) - 1
	for txIdx := len(block.Transactions) - 1; txIdx > -1; txIdx-- {
		tx := block.Transactions[txIdx]
		txHash := tx.TxHash()

		entry := view.entries[txHash]
		if entry == nil {
			entry = newUtxoEntry(tx.Version, txIdx == 0, blockHeight)
			view.entries[txHash] = entry
		}
		entry.modified = true
		entry.sparseOutputs = make(map[uint32]*utxoOutput)

		if txIdx == 0 {
			continue
		}

		for _, js := range tx.JoinSplits {
			for _, nf := range js.Nullifiers {
				delete(view.nullifiers, nf)
			}
		}

		for txInIdx := len(tx.TxIn) - 1; txInIdx > -1; txInIdx-- {
			stxo := &stxos[stxoIdx]
			stxoIdx--

			prevOut := &tx.TxIn[txInIdx].PreviousOutPoint
			origin := view.entries[prevOut.Hash]
			if origin == nil {
				origin = newUtxoEntry(stxo.version,
					stxo.isCoinBase, stxo.height)
				view.entries[prevOut.Hash] = origin
			}
			origin.modified = true
			origin.sparseOutputs[prevOut.Index] = &utxoOutput{
				amount:   stxo.amount,
				pkScript: stxo.pkScript,
			}
		}
	}

	view.SetBestHash(&block.Header.PrevBlock)
	return nil
}

// countSpentOutputs returns the number of utxos the passed block spends.
func countSpentOutputs(block *wire.MsgBlock) int {
	numSpent := 0
	for _, tx := range block.Transactions[1:] {
		numSpent += len(tx.TxIn)
	}
	return numSpent
}

// Entries returns the underlying map that stores of all the utxo entries.
func (view *UtxoViewpoint) Entries() map[chainhash.Hash]*UtxoEntry {
	return view.entries
}

// commit prunes all entries marked modified that are now fully spent and marks
// all entries as unmodified.
func (view *UtxoViewpoint) commit() {
	for txHash, entry := range view.entries {
		if entry == nil || (entry.modified && entry.IsFullySpent()) {
			delete(view.entries, txHash)
			continue
		}

		entry.modified = false
	}
}

// FetchUtxos loads into the view the chain entries of every transaction
// referenced by the inputs of tx, and of tx itself, that the view does not
// already hold.  Entries already in the view take precedence since they
// reflect transactions applied to it.
func (view *UtxoViewpoint) FetchUtxos(chain ChainView, tx *wire.MsgTx) {
	fetch := func(hash *chainhash.Hash) {
		if _, ok := view.entries[*hash]; ok {
			return
		}
		if entry := chain.FetchUtxoEntry(hash); entry != nil {
			view.entries[*hash] = entry
		}
	}

	txHash := tx.TxHash()
	fetch(&txHash)
	if IsCoinBaseTx(tx) {
		return
	}
	for _, txIn := range tx.TxIn {
		fetch(&txIn.PreviousOutPoint.Hash)
	}
}

// NewUtxoViewpoint returns a new empty unspent transaction output view.
func NewUtxoViewpoint() *UtxoViewpoint {
	return &UtxoViewpoint{
		entries:    make(map[chainhash.Hash]*UtxoEntry),
		nullifiers: make(map[chainhash.Hash]struct{}),
	}
}
