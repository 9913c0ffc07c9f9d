// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// MaxBlockSize is the maximum serialized size of a block.
	MaxBlockSize = 2000000

	// MaxBlockSigOps is the maximum number of signature operations
	// allowed for a block.  It is a fraction of the max block size.
	MaxBlockSigOps = MaxBlockSize / 50

	// MaxTxSize is the maximum serialized size of a transaction.
	MaxTxSize = 100000

	// MaxMoney is the maximum value of any output or sum of outputs.
	MaxMoney = 21000000 * chaincfg.COIN

	// MinTxVersion is the lowest accepted transaction version.
	MinTxVersion = 1

	// MinBlockVersion is the lowest accepted block version.
	MinBlockVersion = 4

	// MaxTimeOffsetSeconds is the maximum number of seconds a block time
	// is allowed to be ahead of the current time.  This is currently 2
	// hours.
	MaxTimeOffsetSeconds = 2 * 60 * 60

	// MinCoinbaseScriptLen is the minimum length a coinbase script can be.
	MinCoinbaseScriptLen = 2

	// MaxCoinbaseScriptLen is the maximum length a coinbase script can be.
	MaxCoinbaseScriptLen = 100

	// LockTimeThreshold is the number below which a lock time is
	// interpreted to be a block number.  Since an average of one block
	// is generated per 10 minutes, this allows blocks for about 9,512
	// years.
	LockTimeThreshold = 5e8 // Tue Nov 5 00:53:20 1985 UTC
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFNoPoWCheck may be set to indicate the proof of work check which
	// ensures a block hashes to a value less than the required target will
	// not be performed.
	BFNoPoWCheck BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

var (
	// zeroHash is the zero value for a chainhash.Hash and is defined as
	// a package level variable to avoid the need to create a new instance
	// every time a check is needed.
	zeroHash chainhash.Hash
)

// isNullOutpoint determines whether or not a previous transaction output point
// is set.
func isNullOutpoint(outpoint *wire.OutPoint) bool {
	return outpoint.Index == math.MaxUint32 && outpoint.Hash == zeroHash
}

// IsCoinBaseTx determines whether or not a transaction is a coinbase.  A coinbase
// is a special transaction created by miners that has no inputs.  This is
// represented in the block chain by a transaction with a single input that has
// a previous output transaction index set to the maximum value along with a
// zero hash.
func IsCoinBaseTx(msgTx *wire.MsgTx) bool {
	// A coin base must only have one transaction input.
	if len(msgTx.TxIn) != 1 {
		return false
	}

	// The previous output of a coin base must have a max value index and
	// a zero hash.
	return isNullOutpoint(&msgTx.TxIn[0].PreviousOutPoint)
}

// checkMoneyRange returns whether value is a valid amount.
func checkMoneyRange(value int64) bool {
	return value >= 0 && value <= MaxMoney
}

// CheckTransactionSanity performs some preliminary checks on a transaction to
// ensure it is sane.  These checks are context free and do not verify the
// JoinSplit proofs.
func CheckTransactionSanity(tx *wire.MsgTx) error {
	if tx.Version < MinTxVersion {
		return ruleError(ErrTxVersionTooLow, fmt.Sprintf("transaction "+
			"version %d is below the minimum %d", tx.Version,
			MinTxVersion))
	}
	if len(tx.JoinSplits) > 0 && tx.Version < wire.JoinSplitTxVersion {
		return ruleError(ErrTxVersionTooLow, fmt.Sprintf("transaction "+
			"version %d cannot carry JoinSplits", tx.Version))
	}

	// A transaction must move value in and out, either through the
	// transparent inputs and outputs or through JoinSplits.
	if len(tx.TxIn) == 0 && len(tx.JoinSplits) == 0 {
		return ruleError(ErrNoTxInputs, "transaction has no inputs")
	}
	if len(tx.TxOut) == 0 && len(tx.JoinSplits) == 0 {
		return ruleError(ErrNoTxOutputs, "transaction has no outputs")
	}

	// A transaction must not exceed the maximum allowed size when
	// serialized.
	serializedTxSize := tx.SerializeSize()
	if serializedTxSize > MaxTxSize {
		str := fmt.Sprintf("serialized transaction is too big - got "+
			"%d, max %d", serializedTxSize, MaxTxSize)
		return ruleError(ErrTxTooBig, str)
	}

	// Ensure the transaction amounts are in range.  Each transaction
	// output must not be negative or more than the max allowed per
	// transaction.  Also, the total of all outputs must abide by the same
	// restrictions.
	var totalOut int64
	for _, txOut := range tx.TxOut {
		if !checkMoneyRange(txOut.Value) {
			str := fmt.Sprintf("transaction output value of %v is "+
				"out of range", txOut.Value)
			return ruleError(ErrBadTxOutValue, str)
		}
		totalOut += txOut.Value
		if !checkMoneyRange(totalOut) {
			str := fmt.Sprintf("total value of all transaction "+
				"outputs exceeds max allowed value of %v",
				int64(MaxMoney))
			return ruleError(ErrBadTxOutValue, str)
		}
	}

	// JoinSplit public values follow the same range rules, and only one
	// side of each JoinSplit may be public.
	var totalVPubOld, totalVPubNew int64
	for _, js := range tx.JoinSplits {
		if !checkMoneyRange(js.VPubOld) || !checkMoneyRange(js.VPubNew) {
			return ruleError(ErrBadJoinSplitValue, "joinsplit public "+
				"value out of range")
		}
		if js.VPubOld != 0 && js.VPubNew != 0 {
			return ruleError(ErrBadJoinSplitValue, "joinsplit has "+
				"both public values nonzero")
		}
		totalVPubOld += js.VPubOld
		totalVPubNew += js.VPubNew
		if !checkMoneyRange(totalVPubOld) ||
			!checkMoneyRange(totalOut+totalVPubOld) ||
			!checkMoneyRange(totalVPubNew) {

			return ruleError(ErrBadJoinSplitValue, "total joinsplit "+
				"public value out of range")
		}
	}

	// Check for duplicate transaction inputs.
	existingTxOut := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		if _, exists := existingTxOut[txIn.PreviousOutPoint]; exists {
			return ruleError(ErrDuplicateTxInputs, "transaction "+
				"contains duplicate inputs")
		}
		existingTxOut[txIn.PreviousOutPoint] = struct{}{}
	}

	// Check for duplicate nullifiers.
	nullifiers := make(map[chainhash.Hash]struct{}, 2*len(tx.JoinSplits))
	for _, js := range tx.JoinSplits {
		for _, nf := range js.Nullifiers {
			if _, exists := nullifiers[nf]; exists {
				return ruleError(ErrDuplicateNullifier,
					"transaction contains duplicate "+
						"nullifiers")
			}
			nullifiers[nf] = struct{}{}
		}
	}

	if IsCoinBaseTx(tx) {
		// A coinbase cannot create shielded value.
		if len(tx.JoinSplits) > 0 {
			return ruleError(ErrCoinbaseJoinSplit, "coinbase "+
				"transaction has joinsplits")
		}

		// Coinbase script length must be between min and max length.
		slen := len(tx.TxIn[0].SignatureScript)
		if slen < MinCoinbaseScriptLen || slen > MaxCoinbaseScriptLen {
			str := fmt.Sprintf("coinbase transaction script length "+
				"of %d is out of range (min: %d, max: %d)",
				slen, MinCoinbaseScriptLen, MaxCoinbaseScriptLen)
			return ruleError(ErrBadCoinbaseScriptLen, str)
		}
		return nil
	}

	// Previous transaction outputs referenced by the inputs to this
	// transaction must not be null.
	for _, txIn := range tx.TxIn {
		if isNullOutpoint(&txIn.PreviousOutPoint) {
			return ruleError(ErrBadTxInput, "transaction "+
				"input refers to previous output that "+
				"is null")
		}
	}

	return nil
}

// IsFinalizedTransaction determines whether or not a transaction is finalized.
func IsFinalizedTransaction(tx *wire.MsgTx, blockHeight int32,
	blockTime time.Time) bool {

	// Lock time of zero means the transaction is finalized.
	lockTime := tx.LockTime
	if lockTime == 0 {
		return true
	}

	// The lock time field of a transaction is either a block height at
	// which the transaction is finalized or a timestamp depending on if the
	// value is before the LockTimeThreshold.  When it is under the
	// threshold it is a block height.
	blockTimeOrHeight := int64(0)
	if lockTime < LockTimeThreshold {
		blockTimeOrHeight = int64(blockHeight)
	} else {
		blockTimeOrHeight = blockTime.Unix()
	}
	if int64(lockTime) < blockTimeOrHeight {
		return true
	}

	// At this point, the transaction's lock time hasn't occurred yet, but
	// the transaction might still be finalized if the sequence number
	// for all transaction inputs is maxed out.
	for _, txIn := range tx.TxIn {
		if txIn.Sequence != math.MaxUint32 {
			return false
		}
	}
	return true
}

// CountSigOps returns the number of signature operations for all transaction
// input and output scripts in the provided transaction.  This uses the
// quicker, but imprecise, signature operation counting mechanism from
// txscript.
func CountSigOps(tx *wire.MsgTx) int {
	// Accumulate the number of signature operations in all transaction
	// inputs.
	totalSigOps := 0
	for _, txIn := range tx.TxIn {
		totalSigOps += txscript.GetSigOpCount(txIn.SignatureScript)
	}

	// Accumulate the number of signature operations in all transaction
	// outputs.
	for _, txOut := range tx.TxOut {
		totalSigOps += txscript.GetSigOpCount(txOut.PkScript)
	}

	return totalSigOps
}

// CountP2SHSigOps returns the number of signature operations for all input
// transactions which are of the pay-to-script-hash type.  This uses the
// precise, signature operation counting mechanism from the script engine which
// requires access to the input transaction scripts.
func CountP2SHSigOps(tx *wire.MsgTx, view *UtxoViewpoint) (int, error) {
	// Coinbase transactions have no interesting inputs.
	if IsCoinBaseTx(tx) {
		return 0, nil
	}

	totalSigOps := 0
	for txInIndex, txIn := range tx.TxIn {
		prevOut := view.FetchPrevOutput(txIn.PreviousOutPoint)
		if prevOut == nil {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %s:%d either does not exist or "+
				"has already been spent", txIn.PreviousOutPoint,
				tx.TxHash(), txInIndex)
			return 0, ruleError(ErrMissingTxOut, str)
		}

		// We're only interested in pay-to-script-hash types, so skip
		// this input if it's not one.
		if !txscript.IsPayToScriptHash(prevOut.PkScript) {
			continue
		}

		// Count the precise number of signature operations in the
		// referenced public key script.
		totalSigOps += txscript.GetPreciseSigOpCount(
			txIn.SignatureScript, prevOut.PkScript, true)
	}

	return totalSigOps, nil
}

// JoinSplitValueIn returns the value the JoinSplits of tx release to the
// transparent pool.
func JoinSplitValueIn(tx *wire.MsgTx) int64 {
	var value int64
	for _, js := range tx.JoinSplits {
		value += js.VPubNew
	}
	return value
}

// ValueOut returns the value spent by tx: its outputs plus what its
// JoinSplits move into the shielded pool.
func ValueOut(tx *wire.MsgTx) int64 {
	var value int64
	for _, txOut := range tx.TxOut {
		value += txOut.Value
	}
	for _, js := range tx.JoinSplits {
		value += js.VPubOld
	}
	return value
}

// CheckTransactionInputs performs a series of checks on the inputs to a
// transaction to ensure they are valid.  An example of some of the checks
// include verifying all inputs exist, ensuring the coinbase seasoning
// requirements are met, detecting double spends, validating all values and
// fees are in the legal range and the total output amount doesn't exceed the
// input amount.  Value released by JoinSplits counts as input.  As it checks
// the inputs, it also calculates the total fees for the transaction and
// returns that value.
//
// NOTE: The transaction MUST have already been sanity checked with the
// CheckTransactionSanity function prior to calling this function.
func CheckTransactionInputs(tx *wire.MsgTx, txHeight int32,
	view *UtxoViewpoint, params *chaincfg.Params) (int64, error) {

	// Coinbase transactions have no inputs.
	if IsCoinBaseTx(tx) {
		return 0, nil
	}

	txHash := tx.TxHash()
	var totalIn int64
	for txInIndex, txIn := range tx.TxIn {
		// Ensure the referenced input transaction is available.
		originIndex := txIn.PreviousOutPoint.Index
		entry := view.LookupEntry(&txIn.PreviousOutPoint.Hash)
		if entry == nil || entry.IsOutputSpent(originIndex) {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %s:%d either does not exist or "+
				"has already been spent", txIn.PreviousOutPoint,
				txHash, txInIndex)
			return 0, ruleError(ErrMissingTxOut, str)
		}

		// Ensure the transaction is not spending coins which have not
		// yet reached the required coinbase maturity.
		if entry.IsCoinBase() {
			originHeight := entry.BlockHeight()
			blocksSincePrev := txHeight - originHeight
			coinbaseMaturity := int32(params.CoinbaseMaturity)
			if blocksSincePrev < coinbaseMaturity {
				str := fmt.Sprintf("tried to spend coinbase "+
					"transaction output %v from height %v "+
					"at height %v before required maturity "+
					"of %v blocks", txIn.PreviousOutPoint,
					originHeight, txHeight,
					coinbaseMaturity)
				return 0, ruleError(ErrImmatureSpend, str)
			}
		}

		// Ensure the transaction amounts are in range.
		originTxAmount := entry.AmountByIndex(originIndex)
		if !checkMoneyRange(originTxAmount) {
			str := fmt.Sprintf("transaction output has invalid "+
				"value of %v", originTxAmount)
			return 0, ruleError(ErrBadTxOutValue, str)
		}

		// The total of all outputs must not be more than the max
		// allowed per transaction.
		totalIn += originTxAmount
		if !checkMoneyRange(totalIn) {
			str := fmt.Sprintf("total value of all transaction "+
				"inputs is %v which is higher than max "+
				"allowed value of %v", totalIn, int64(MaxMoney))
			return 0, ruleError(ErrBadTxOutValue, str)
		}
	}

	totalIn += JoinSplitValueIn(tx)
	if !checkMoneyRange(totalIn) {
		return 0, ruleError(ErrBadTxOutValue, "total input value "+
			"including joinsplits is out of range")
	}

	// Ensure the transaction does not spend more than its inputs.
	totalOut := ValueOut(tx)
	if totalIn < totalOut {
		str := fmt.Sprintf("total value of all transaction inputs for "+
			"transaction %v is %v which is less than the amount "+
			"spent of %v", txHash, totalIn, totalOut)
		return 0, ruleError(ErrSpendTooHigh, str)
	}

	return totalIn - totalOut, nil
}

// CheckJoinSplitRequirements ensures no nullifier revealed by tx was already
// spent in the chain or in the view, and that every JoinSplit anchor is a
// commitment tree root known to the chain.
func CheckJoinSplitRequirements(tx *wire.MsgTx, view *UtxoViewpoint,
	chain ChainView) error {

	for _, js := range tx.JoinSplits {
		for i := range js.Nullifiers {
			nf := &js.Nullifiers[i]
			if view.HaveNullifier(nf) || chain.NullifierExists(nf) {
				str := fmt.Sprintf("nullifier %v already spent",
					nf)
				return ruleError(ErrNullifierSpent, str)
			}
		}
		if !chain.HasAnchor(&js.Anchor) {
			str := fmt.Sprintf("joinsplit anchor %v is unknown",
				js.Anchor)
			return ruleError(ErrUnknownAnchor, str)
		}
	}
	return nil
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
func checkProofOfWork(header *wire.BlockHeader, powLimit *big.Int,
	flags BehaviorFlags) error {

	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("block target difficulty of %064x is too "+
			"low", target)
		return ruleError(ErrUnexpectedDifficulty, str)
	}
	if target.Cmp(powLimit) > 0 {
		str := fmt.Sprintf("block target difficulty of %064x is "+
			"higher than max of %064x", target, powLimit)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	if flags&BFNoPoWCheck == BFNoPoWCheck {
		return nil
	}

	hash := header.BlockHash()
	hashNum := HashToBig(&hash)
	if hashNum.Cmp(target) > 0 {
		str := fmt.Sprintf("block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
		return ruleError(ErrUnexpectedDifficulty, str)
	}
	return nil
}

// CheckBlockSanity performs some preliminary checks on a block to ensure it is
// sane before continuing with block processing.  These checks are context
// free.
func CheckBlockSanity(block *wire.MsgBlock, params *chaincfg.Params,
	timeSource MedianTimeSource, flags BehaviorFlags) error {

	header := &block.Header
	if header.Version < MinBlockVersion {
		str := fmt.Sprintf("block version %d is below the minimum %d",
			header.Version, MinBlockVersion)
		return ruleError(ErrBlockVersionTooOld, str)
	}
	err := checkProofOfWork(header, params.PrePowLimit, flags)
	if err != nil {
		return err
	}
	if timeSource != nil {
		maxTimestamp := timeSource.AdjustedTime().Add(
			time.Second * MaxTimeOffsetSeconds)
		if header.Timestamp.After(maxTimestamp) {
			str := fmt.Sprintf("block timestamp of %v is too far "+
				"in the future", header.Timestamp)
			return ruleError(ErrTimeTooNew, str)
		}
	}

	// A block must have at least one transaction.
	numTx := len(block.Transactions)
	if numTx == 0 {
		return ruleError(ErrNoTransactions, "block does not contain "+
			"any transactions")
	}

	// A block must not exceed the maximum allowed block payload when
	// serialized.
	serializedSize := block.SerializeSize()
	if serializedSize > MaxBlockSize {
		str := fmt.Sprintf("serialized block is too big - got %d, "+
			"max %d", serializedSize, MaxBlockSize)
		return ruleError(ErrBlockTooBig, str)
	}

	// The first transaction in a block must be a coinbase.
	if !IsCoinBaseTx(block.Transactions[0]) {
		return ruleError(ErrFirstTxNotCoinbase, "first transaction in "+
			"block is not a coinbase")
	}

	// A block must not have more than one coinbase.
	for i, tx := range block.Transactions[1:] {
		if IsCoinBaseTx(tx) {
			str := fmt.Sprintf("block contains second coinbase at "+
				"index %d", i+1)
			return ruleError(ErrMultipleCoinbases, str)
		}
	}

	// Do some preliminary checks on each transaction to ensure they are
	// sane before continuing.
	for _, tx := range block.Transactions {
		if err := CheckTransactionSanity(tx); err != nil {
			return err
		}
	}

	// Build merkle tree and ensure the calculated merkle root matches the
	// entry in the block header.
	calculatedMerkleRoot := CalcMerkleRoot(block.Transactions)
	if header.MerkleRoot != calculatedMerkleRoot {
		str := fmt.Sprintf("block merkle root is invalid - block "+
			"header indicates %v, but calculated value is %v",
			header.MerkleRoot, calculatedMerkleRoot)
		return ruleError(ErrBadMerkleRoot, str)
	}

	// Check for duplicate transactions.
	existingTxHashes := make(map[chainhash.Hash]struct{}, numTx)
	for _, tx := range block.Transactions {
		hash := tx.TxHash()
		if _, exists := existingTxHashes[hash]; exists {
			str := fmt.Sprintf("block contains duplicate "+
				"transaction %v", hash)
			return ruleError(ErrDuplicateTx, str)
		}
		existingTxHashes[hash] = struct{}{}
	}

	// The number of signature operations must be less than the maximum
	// allowed per block.
	totalSigOps := 0
	for _, tx := range block.Transactions {
		totalSigOps += CountSigOps(tx)
		if totalSigOps > MaxBlockSigOps {
			str := fmt.Sprintf("block contains too many signature "+
				"operations - got %v, max %v", totalSigOps,
				MaxBlockSigOps)
			return ruleError(ErrTooManySigOps, str)
		}
	}

	return nil
}

// checkBlockContext performs the checks that depend on the block's position
// in the chain: header difficulty and time, transaction finality, the height
// pushed by the coinbase, and the founders reward.
func checkBlockContext(block *wire.MsgBlock, prevNode HeaderCtx,
	params *chaincfg.Params) error {

	header := &block.Header
	expectedBits := CalcNextRequiredDifficulty(prevNode, header.Timestamp,
		params)
	if header.Bits != expectedBits {
		str := fmt.Sprintf("block difficulty of %08x is not the "+
			"expected value of %08x", header.Bits, expectedBits)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	medianTime := CalcPastMedianTime(prevNode)
	if !header.Timestamp.After(medianTime) {
		str := fmt.Sprintf("block timestamp of %v is not after "+
			"expected %v", header.Timestamp, medianTime)
		return ruleError(ErrTimeTooOld, str)
	}

	height := prevNode.Height() + 1
	for _, tx := range block.Transactions {
		if !IsFinalizedTransaction(tx, height, header.Timestamp) {
			str := fmt.Sprintf("block contains unfinalized "+
				"transaction %v", tx.TxHash())
			return ruleError(ErrUnfinalizedTx, str)
		}
	}

	// The coinbase must start with the serialized block height.
	coinbase := block.Transactions[0]
	expected, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).Script()
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(coinbase.TxIn[0].SignatureScript, expected) {
		str := fmt.Sprintf("coinbase does not begin with the "+
			"serialized block height %d", height)
		return ruleError(ErrBadCoinbaseHeight, str)
	}

	reward, script := FoundersReward(height, params)
	if script != nil {
		found := false
		for _, txOut := range coinbase.TxOut {
			if txOut.Value == reward &&
				bytes.Equal(txOut.PkScript, script) {

				found = true
				break
			}
		}
		if !found {
			str := fmt.Sprintf("coinbase does not pay the founders "+
				"reward of %d at height %d", reward, height)
			return ruleError(ErrMissingFoundersReward, str)
		}
	}

	return nil
}

// checkConnectBlock validates block on top of prevNode using the outputs in
// view, then applies it to the view.  The view must hold the chain state at
// prevNode for every output the block spends, which FetchUtxos arranges.
// Spent outputs are appended to stxos when it is not nil.
func checkConnectBlock(block *wire.MsgBlock, prevNode HeaderCtx,
	chain ChainView, view *UtxoViewpoint, verifier InputVerifier,
	proofs ProofVerifier, stxos *[]spentTxOut) error {

	params := chain.ChainParams()
	height := prevNode.Height() + 1

	coinbase := block.Transactions[0]
	view.FetchUtxos(chain, coinbase)
	if err := view.connectTransaction(coinbase, height, stxos); err != nil {
		return err
	}

	var totalFees int64
	totalSigOps := CountSigOps(coinbase)
	for _, tx := range block.Transactions[1:] {
		view.FetchUtxos(chain, tx)

		// A transaction may not replace one whose outputs are still
		// unspent.
		txHash := tx.TxHash()
		if entry := view.LookupEntry(&txHash); entry != nil &&
			!entry.IsFullySpent() {

			str := fmt.Sprintf("tried to overwrite transaction %v "+
				"that is not fully spent", txHash)
			return ruleError(ErrDuplicateTx, str)
		}

		fee, err := CheckTransactionInputs(tx, height, view, params)
		if err != nil {
			return err
		}
		totalFees += fee
		if !checkMoneyRange(totalFees) {
			return ruleError(ErrBadFees, "total fees for block "+
				"overflows accumulator")
		}

		if err := CheckJoinSplitRequirements(tx, view, chain); err != nil {
			return err
		}

		p2shSigOps, err := verifier.VerifyInputs(tx, view,
			txscript.MandatoryVerifyFlags)
		if err != nil {
			str := fmt.Sprintf("transaction %v failed script "+
				"validation: %v", txHash, err)
			return ruleError(ErrScriptValidation, str)
		}
		totalSigOps += CountSigOps(tx) + p2shSigOps
		if totalSigOps > MaxBlockSigOps {
			str := fmt.Sprintf("block contains too many signature "+
				"operations - got %v, max %v", totalSigOps,
				MaxBlockSigOps)
			return ruleError(ErrTooManySigOps, str)
		}

		if err := proofs.VerifyJoinSplits(tx); err != nil {
			str := fmt.Sprintf("transaction %v joinsplit "+
				"verification failed: %v", txHash, err)
			return ruleError(ErrBadProof, str)
		}

		if err := view.connectTransaction(tx, height, stxos); err != nil {
			return err
		}
	}

	// The coinbase may claim at most the subsidy plus the fees.
	maxValue := CalcBlockSubsidy(height, params) + totalFees
	if coinbaseOut := ValueOut(coinbase); coinbaseOut > maxValue {
		str := fmt.Sprintf("coinbase transaction for block pays %v "+
			"which is more than expected value of %v",
			coinbaseOut, maxValue)
		return ruleError(ErrBadCoinbaseValue, str)
	}

	blockHash := block.Header.BlockHash()
	view.SetBestHash(&blockHash)
	return nil
}

// CheckConnectBlockTemplate fully validates that connecting the passed block
// to the tip of chain does not violate any consensus rules, aside from the
// proof of work requirement.  The chain is not modified.
//
// This function is safe for concurrent access as long as chain is.
func CheckConnectBlockTemplate(block *wire.MsgBlock, chain ChainView,
	verifier InputVerifier, proofs ProofVerifier,
	timeSource MedianTimeSource) error {

	tip := chain.Tip()
	tipHash := tip.BlockHash()
	if block.Header.PrevBlock != tipHash {
		str := fmt.Sprintf("previous block must be the current chain "+
			"tip %v, instead got %v", tipHash,
			block.Header.PrevBlock)
		return ruleError(ErrBadPrevBlock, str)
	}

	params := chain.ChainParams()
	err := CheckBlockSanity(block, params, timeSource, BFNoPoWCheck)
	if err != nil {
		return err
	}
	if err := checkBlockContext(block, tip, params); err != nil {
		return err
	}

	view := NewUtxoViewpoint()
	view.SetBestHash(&tipHash)
	return checkConnectBlock(block, tip, chain, view, verifier, proofs, nil)
}
