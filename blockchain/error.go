// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrBlockTooBig indicates the serialized block size exceeds the
	// maximum allowed size.
	ErrBlockTooBig ErrorCode = iota

	// ErrBlockVersionTooOld indicates the block version is below the
	// minimum accepted block version.
	ErrBlockVersionTooOld

	// ErrTimeTooOld indicates the time is not after the median time of the
	// last several blocks.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the time is too far in the future as compared
	// the current time.
	ErrTimeTooNew

	// ErrUnexpectedDifficulty indicates specified bits do not match the
	// value required by the difficulty retarget rules.
	ErrUnexpectedDifficulty

	// ErrBadMerkleRoot indicates the calculated merkle root does not match
	// the expected value.
	ErrBadMerkleRoot

	// ErrBadPrevBlock indicates the block does not build on the expected
	// parent.
	ErrBadPrevBlock

	// ErrNoTransactions indicates the block does not have a least one
	// transaction.  A valid block must have at least the coinbase
	// transaction.
	ErrNoTransactions

	// ErrNoTxInputs indicates a transaction has neither transparent inputs
	// nor JoinSplits.
	ErrNoTxInputs

	// ErrNoTxOutputs indicates a transaction has neither transparent
	// outputs nor JoinSplits.
	ErrNoTxOutputs

	// ErrTxTooBig indicates a transaction exceeds the maximum allowed size
	// when serialized.
	ErrTxTooBig

	// ErrTxVersionTooLow indicates a transaction version below the minimum.
	ErrTxVersionTooLow

	// ErrBadTxOutValue indicates an output value for a transaction is
	// invalid in some way such as being out of range.
	ErrBadTxOutValue

	// ErrBadJoinSplitValue indicates a JoinSplit public value is out of
	// range, or both public values of one JoinSplit are nonzero.
	ErrBadJoinSplitValue

	// ErrDuplicateTxInputs indicates a transaction references the same
	// input more than once.
	ErrDuplicateTxInputs

	// ErrDuplicateNullifier indicates a transaction reveals the same
	// nullifier more than once.
	ErrDuplicateNullifier

	// ErrBadTxInput indicates a transaction input is invalid in some way
	// such as referencing a previous transaction outpoint which is out of
	// range or not referencing one at all.
	ErrBadTxInput

	// ErrMissingTxOut indicates a transaction output referenced by an input
	// either does not exist or has already been spent.
	ErrMissingTxOut

	// ErrNullifierSpent indicates a JoinSplit reveals a nullifier that has
	// already been spent in the chain.
	ErrNullifierSpent

	// ErrUnknownAnchor indicates a JoinSplit anchor is not a commitment
	// tree root known to the chain.
	ErrUnknownAnchor

	// ErrUnfinalizedTx indicates a transaction has not been finalized.
	// A valid block may only contain finalized transactions.
	ErrUnfinalizedTx

	// ErrDuplicateTx indicates a block contains an identical transaction
	// (or at least two transactions which hash to the same value).
	ErrDuplicateTx

	// ErrImmatureSpend indicates a transaction is attempting to spend a
	// coinbase that has not yet reached the required maturity.
	ErrImmatureSpend

	// ErrSpendTooHigh indicates a transaction is attempting to spend more
	// value than the sum of all of its inputs.
	ErrSpendTooHigh

	// ErrBadFees indicates the total fees for a block are invalid due to
	// exceeding the maximum possible value.
	ErrBadFees

	// ErrTooManySigOps indicates the total number of signature operations
	// for a transaction or block exceed the maximum allowed limits.
	ErrTooManySigOps

	// ErrFirstTxNotCoinbase indicates the first transaction in a block
	// is not a coinbase transaction.
	ErrFirstTxNotCoinbase

	// ErrMultipleCoinbases indicates a block contains more than one
	// coinbase transaction.
	ErrMultipleCoinbases

	// ErrBadCoinbaseScriptLen indicates the length of the signature script
	// for a coinbase transaction is not within the valid range.
	ErrBadCoinbaseScriptLen

	// ErrCoinbaseJoinSplit indicates a coinbase transaction carries
	// JoinSplits.
	ErrCoinbaseJoinSplit

	// ErrBadCoinbaseValue indicates the amount of a coinbase value does
	// not match the expected value of the subsidy plus the sum of all fees.
	ErrBadCoinbaseValue

	// ErrBadCoinbaseHeight indicates the serialized block height in the
	// coinbase transaction for version 2 and higher blocks does not match
	// the expected value.
	ErrBadCoinbaseHeight

	// ErrMissingFoundersReward indicates the coinbase does not pay the
	// founders share of the subsidy to the expected script.
	ErrMissingFoundersReward

	// ErrScriptValidation indicates the result of executing transaction
	// script failed.
	ErrScriptValidation

	// ErrBadProof indicates a JoinSplit proof or signature did not verify.
	ErrBadProof
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrBlockTooBig:           "ErrBlockTooBig",
	ErrBlockVersionTooOld:    "ErrBlockVersionTooOld",
	ErrTimeTooOld:            "ErrTimeTooOld",
	ErrTimeTooNew:            "ErrTimeTooNew",
	ErrUnexpectedDifficulty:  "ErrUnexpectedDifficulty",
	ErrBadMerkleRoot:         "ErrBadMerkleRoot",
	ErrBadPrevBlock:          "ErrBadPrevBlock",
	ErrNoTransactions:        "ErrNoTransactions",
	ErrNoTxInputs:            "ErrNoTxInputs",
	ErrNoTxOutputs:           "ErrNoTxOutputs",
	ErrTxTooBig:              "ErrTxTooBig",
	ErrTxVersionTooLow:       "ErrTxVersionTooLow",
	ErrBadTxOutValue:         "ErrBadTxOutValue",
	ErrBadJoinSplitValue:     "ErrBadJoinSplitValue",
	ErrDuplicateTxInputs:     "ErrDuplicateTxInputs",
	ErrDuplicateNullifier:    "ErrDuplicateNullifier",
	ErrBadTxInput:            "ErrBadTxInput",
	ErrMissingTxOut:          "ErrMissingTxOut",
	ErrNullifierSpent:        "ErrNullifierSpent",
	ErrUnknownAnchor:         "ErrUnknownAnchor",
	ErrUnfinalizedTx:         "ErrUnfinalizedTx",
	ErrDuplicateTx:           "ErrDuplicateTx",
	ErrImmatureSpend:         "ErrImmatureSpend",
	ErrSpendTooHigh:          "ErrSpendTooHigh",
	ErrBadFees:               "ErrBadFees",
	ErrTooManySigOps:         "ErrTooManySigOps",
	ErrFirstTxNotCoinbase:    "ErrFirstTxNotCoinbase",
	ErrMultipleCoinbases:     "ErrMultipleCoinbases",
	ErrBadCoinbaseScriptLen:  "ErrBadCoinbaseScriptLen",
	ErrCoinbaseJoinSplit:     "ErrCoinbaseJoinSplit",
	ErrBadCoinbaseValue:      "ErrBadCoinbaseValue",
	ErrBadCoinbaseHeight:     "ErrBadCoinbaseHeight",
	ErrMissingFoundersReward: "ErrMissingFoundersReward",
	ErrScriptValidation:      "ErrScriptValidation",
	ErrBadProof:              "ErrBadProof",
}

// rejectReasons maps each ErrorCode to the short machine-readable reason
// relayed to peers in reject messages.
var rejectReasons = map[ErrorCode]string{
	ErrBlockTooBig:           "bad-blk-length",
	ErrBlockVersionTooOld:    "version-too-low",
	ErrTimeTooOld:            "time-too-old",
	ErrTimeTooNew:            "time-too-new",
	ErrUnexpectedDifficulty:  "bad-diffbits",
	ErrBadMerkleRoot:         "bad-txnmrklroot",
	ErrBadPrevBlock:          "bad-prevblk",
	ErrNoTransactions:        "bad-blk-length",
	ErrNoTxInputs:            "bad-txns-vin-empty",
	ErrNoTxOutputs:           "bad-txns-vout-empty",
	ErrTxTooBig:              "bad-txns-oversize",
	ErrTxVersionTooLow:       "bad-txns-version-too-low",
	ErrBadTxOutValue:         "bad-txns-vout-toolarge",
	ErrBadJoinSplitValue:     "bad-txns-vpubs-both-nonzero",
	ErrDuplicateTxInputs:     "bad-txns-inputs-duplicate",
	ErrDuplicateNullifier:    "bad-joinsplits-nullifiers-duplicate",
	ErrBadTxInput:            "bad-txns-prevout-null",
	ErrMissingTxOut:          "bad-txns-inputs-missingorspent",
	ErrNullifierSpent:        "bad-txns-joinsplit-requirements-not-met",
	ErrUnknownAnchor:         "bad-txns-joinsplit-requirements-not-met",
	ErrUnfinalizedTx:         "bad-txns-nonfinal",
	ErrDuplicateTx:           "bad-txns-duplicate",
	ErrImmatureSpend:         "bad-txns-premature-spend-of-coinbase",
	ErrSpendTooHigh:          "bad-txns-in-belowout",
	ErrBadFees:               "bad-txns-fee-outofrange",
	ErrTooManySigOps:         "bad-blk-sigops",
	ErrFirstTxNotCoinbase:    "bad-cb-missing",
	ErrMultipleCoinbases:     "bad-cb-multiple",
	ErrBadCoinbaseScriptLen:  "bad-cb-length",
	ErrCoinbaseJoinSplit:     "bad-cb-has-joinsplits",
	ErrBadCoinbaseValue:      "bad-cb-amount",
	ErrBadCoinbaseHeight:     "bad-cb-height",
	ErrMissingFoundersReward: "cb-no-founders-reward",
	ErrScriptValidation:      "mandatory-script-verify-flag-failed",
	ErrBadProof:              "bad-txns-joinsplit-verification-failed",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RejectReason returns the short reason string peers expect for the code.
func (e ErrorCode) RejectReason() string {
	if s := rejectReasons[e]; s != "" {
		return s
	}
	return "invalid"
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block or transaction failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the ErrorCode field to
// ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}
