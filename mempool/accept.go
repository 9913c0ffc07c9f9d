// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
)

// fetchInputUtxos loads utxo details about the input transactions referenced by
// the passed transaction.  First, it loads the details form the viewpoint of
// the main chain, then it adjusts them based upon the contents of the
// transaction pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) fetchInputUtxos(tx *wire.MsgTx) *blockchain.UtxoViewpoint {
	utxoView := blockchain.NewUtxoViewpoint()
	utxoView.FetchUtxos(mp.cfg.Chain, tx)

	// Attempt to populate any missing inputs from the transaction pool.
	for _, txIn := range tx.TxIn {
		originHash := &txIn.PreviousOutPoint.Hash
		entry := utxoView.LookupEntry(originHash)
		if entry != nil && !entry.IsFullySpent() {
			continue
		}

		if poolTxDesc, exists := mp.pool[*originHash]; exists {
			utxoView.AddTxOuts(poolTxDesc.Tx, mining.UnminedHeight)
		}
	}
	return utxoView
}

// verifyScripts runs the input scripts of tx under the standard flags.  A
// failure that the mandatory flags alone accept only makes the transaction
// non-standard.
func (mp *TxPool) verifyScripts(tx *wire.MsgTx,
	utxoView *blockchain.UtxoViewpoint) error {

	if mp.cfg.Verifier == nil {
		return nil
	}

	_, err := mp.cfg.Verifier.VerifyInputs(tx, utxoView,
		txscript.StandardVerifyFlags)
	if err == nil {
		return nil
	}

	_, mandatoryErr := mp.cfg.Verifier.VerifyInputs(tx, utxoView,
		txscript.MandatoryVerifyFlags)
	if mandatoryErr == nil {
		str := fmt.Sprintf("non-mandatory-script-verify-flag (%v)", err)
		return txRuleError(wire.RejectNonstandard, str)
	}

	return chainRuleError(blockchain.RuleError{
		ErrorCode:   blockchain.ErrScriptValidation,
		Description: mandatoryErr.Error(),
	})
}

// maybeAcceptTransaction is the internal function which implements the public
// MaybeAcceptTransaction.  See the comment for MaybeAcceptTransaction for
// more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAcceptTransaction(tx *wire.MsgTx, isNew bool) (*TxDesc, error) {
	txHash := tx.TxHash()

	// Transactions that failed consensus checks are not validated again
	// until the next block.
	if mp.rejected.Contains(txHash) {
		str := fmt.Sprintf("transaction %v was recently rejected",
			txHash)
		return nil, txRuleError(wire.RejectInvalid, str)
	}

	// Don't accept the transaction if it already exists in the pool.  This
	// applies to orphan transactions as well when the reject duplicate
	// orphans flag is set.  This check is intended to be a quick check to
	// weed out duplicates.
	if mp.isTransactionInPool(&txHash) {
		str := fmt.Sprintf("already have transaction %v", txHash)
		return nil, txRuleError(wire.RejectDuplicate, str)
	}

	// Perform preliminary sanity checks on the transaction.  This makes
	// use of blockchain which contains the invariant rules for what
	// transactions are allowed into blocks.
	if err := blockchain.CheckTransactionSanity(tx); err != nil {
		return nil, wrapChainError(err)
	}

	// A standalone transaction must not be a coinbase transaction.
	if blockchain.IsCoinBaseTx(tx) {
		str := fmt.Sprintf("transaction %v is an individual coinbase",
			txHash)
		return nil, txRuleError(wire.RejectInvalid, str)
	}

	// Get the current height of the main chain.  A standalone transaction
	// will be mined into the next block at best, so its height is at least
	// one more than the current height.
	chain := mp.cfg.Chain
	tip := chain.Tip()
	bestHeight := tip.Height()
	nextBlockHeight := bestHeight + 1
	medianTimePast := blockchain.CalcPastMedianTime(tip)

	// Don't allow non-standard transactions if the network parameters
	// forbid their acceptance.  Finality is a consensus rule and holds
	// either way.
	if !mp.cfg.Policy.AcceptNonStd {
		err := CheckTransactionStandard(tx, nextBlockHeight,
			medianTimePast, mp.cfg.Policy.MinRelayTxFee,
			mp.cfg.Policy.MaxTxVersion)
		if err != nil {
			// Attempt to extract a reject code from the error so
			// it can be retained.  When not possible, fall back to
			// a non standard error.
			rejectCode, found := extractRejectCode(err)
			if !found {
				rejectCode = wire.RejectNonstandard
			}
			str := fmt.Sprintf("transaction %v is not standard: %v",
				txHash, err)
			return nil, txRuleError(rejectCode, str)
		}
	} else if !blockchain.IsFinalizedTransaction(tx, nextBlockHeight,
		medianTimePast) {

		return nil, chainRuleError(blockchain.RuleError{
			ErrorCode: blockchain.ErrUnfinalizedTx,
			Description: fmt.Sprintf("transaction %v is not "+
				"finalized", txHash),
		})
	}

	// The transaction may not use any of the same outputs or nullifiers
	// as other transactions already in the pool as that would ultimately
	// result in a double spend.
	if err := mp.checkPoolDoubleSpend(tx); err != nil {
		return nil, err
	}

	// Fetch all of the unspent transaction outputs referenced by the inputs
	// to this transaction.  This function also attempts to fetch the
	// transaction itself to be used for detecting a duplicate transaction
	// without needing to do a separate lookup.
	utxoView := mp.fetchInputUtxos(tx)

	// Don't allow the transaction if it exists in the main chain and is not
	// already fully spent.
	txEntry := utxoView.LookupEntry(&txHash)
	if (txEntry != nil && !txEntry.IsFullySpent()) ||
		mp.confirmed.Contains(txHash) {

		return nil, txRuleError(wire.RejectDuplicate,
			"transaction already exists")
	}

	// Nullifiers must be unspent in the chain and anchors must be roots
	// the chain produced.
	err := blockchain.CheckJoinSplitRequirements(tx, utxoView, chain)
	if err != nil {
		return nil, wrapChainError(err)
	}

	// Perform several checks on the transaction inputs using the invariant
	// rules in blockchain for what transactions are allowed into blocks.
	// Also returns the fees associated with the transaction which will be
	// used later.
	txFee, err := blockchain.CheckTransactionInputs(tx, nextBlockHeight,
		utxoView, chain.ChainParams())
	if err != nil {
		return nil, wrapChainError(err)
	}

	// Don't allow transactions with non-standard inputs if the network
	// parameters forbid their acceptance.
	if !mp.cfg.Policy.AcceptNonStd {
		err := checkInputsStandard(tx, utxoView)
		if err != nil {
			// Attempt to extract a reject code from the error so
			// it can be retained.  When not possible, fall back to
			// a non standard error.
			rejectCode, found := extractRejectCode(err)
			if !found {
				rejectCode = wire.RejectNonstandard
			}
			str := fmt.Sprintf("transaction %v has a non-standard "+
				"input: %v", txHash, err)
			return nil, txRuleError(rejectCode, str)
		}
	}

	// Don't allow transactions with an excessive number of signature
	// operations which would result in making it impossible to mine.
	numP2SHSigOps, err := blockchain.CountP2SHSigOps(tx, utxoView)
	if err != nil {
		return nil, wrapChainError(err)
	}
	numSigOps := blockchain.CountSigOps(tx) + numP2SHSigOps
	if numSigOps > mp.cfg.Policy.MaxSigOpsPerTx {
		str := fmt.Sprintf("transaction %v has too many sigops: %d > %d",
			txHash, numSigOps, mp.cfg.Policy.MaxSigOpsPerTx)
		return nil, txRuleError(wire.RejectNonstandard, str)
	}

	// Don't allow transactions with fees too low to get into a mined block
	// unless their priority qualifies them as free.
	serializedSize := int64(tx.SerializeSize())
	err = checkRelayFee(tx, &txHash, txFee, serializedSize, utxoView,
		nextBlockHeight, &mp.cfg.Policy, isNew)
	if err != nil {
		return nil, err
	}

	// Verify the JoinSplit proofs, then the input scripts.  These are the
	// most expensive checks, so they run last.
	if len(tx.JoinSplits) > 0 {
		if err := mp.cfg.Proofs.VerifyJoinSplits(tx); err != nil {
			return nil, chainRuleError(blockchain.RuleError{
				ErrorCode:   blockchain.ErrBadProof,
				Description: err.Error(),
			})
		}
	}
	if err := mp.verifyScripts(tx, utxoView); err != nil {
		return nil, err
	}

	// Add to transaction pool.
	txD := NewTxDesc(tx, utxoView, bestHeight, txFee, time.Now())
	if err := mp.admit(txD, utxoView); err != nil {
		return nil, err
	}

	log.Debugf("Accepted transaction %v (pool size: %v)", txHash,
		len(mp.pool))

	// Make room for the transaction.  It may be the one evicted.
	if limit := mp.cfg.Policy.MaxPoolUsage; limit > 0 {
		for _, evicted := range mp.limitSize(limit) {
			if evicted == txHash {
				str := fmt.Sprintf("mempool full, transaction %v "+
					"has too low a fee rate", txHash)
				return nil, poolFullError(str)
			}
		}
	}

	return txD, nil
}

// MaybeAcceptTransaction is the main workhorse for handling insertion of new
// free-standing transactions into a memory pool.  It includes functionality
// such as rejecting duplicate transactions, ensuring transactions follow all
// rules, and insertion into the memory pool.
//
// isNew is false for transactions restored from disconnected blocks, which
// are exempt from the free transaction priority floor.
//
// On rejection the returned ValidationState classifies the failure and the
// penalty its origin deserves.  Transactions rejected as consensus invalid
// are remembered and refused without validation until the next block.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptTransaction(tx *wire.MsgTx, isNew bool) (*TxDesc, *ValidationState) {
	// Protect concurrent access.
	mp.mtx.Lock()
	defer mp.unlock()

	txD, err := mp.maybeAcceptTransaction(tx, isNew)
	if err == nil {
		return txD, nil
	}

	state := NewValidationState(err)
	if state.Kind == ConsensusInvalid && state.BanScore > 0 {
		mp.rejected.Add(tx.TxHash())
	}
	log.Debugf("Rejected transaction %v: %v", tx.TxHash(), state)
	return nil, state
}
