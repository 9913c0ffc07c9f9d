// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/wire"
)

// ErrorKind classifies why a transaction was turned away or why the pool
// failed its own checks.
type ErrorKind int

const (
	// PolicyRejection is a failed local policy rule such as a low fee, a
	// non-standard script or a duplicate.  The origin is not penalized.
	PolicyRejection ErrorKind = iota

	// ConsensusInvalid is a failed consensus rule such as a bad signature,
	// a double spend or an invalid proof.
	ConsensusInvalid

	// ResourceExhausted means the pool is full and the transaction does not
	// pay enough to displace what is already in it.
	ResourceExhausted

	// InconsistentState is a broken pool invariant found by the consistency
	// check.  It is a programming error.
	InconsistentState
)

var errorKindStrings = map[ErrorKind]string{
	PolicyRejection:   "PolicyRejection",
	ConsensusInvalid:  "ConsensusInvalid",
	ResourceExhausted: "ResourceExhausted",
	InconsistentState: "InconsistentState",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s := errorKindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", int(k))
}

// Ban score hints reported with a rejection.
const (
	banScorePolicy    = 0
	banScoreConsensus = 100
	banScoreResource  = 10
)

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and use the Err field to access the
// underlying error, which will be either a TxRuleError or a
// blockchain.RuleError.
type RuleError struct {
	Err error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying rule error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// TxRuleError identifies a rule violation.  It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the ErrorCode field to
// ascertain the specific reason for the rule violation.
type TxRuleError struct {
	RejectCode  wire.RejectCode // The code to send with reject messages
	Description string          // Human readable description of the issue

	// poolFull marks rejections caused by the pool size limit.
	poolFull bool
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// txRuleError creates an underlying TxRuleError with the given a set of
// arguments and returns a RuleError that encapsulates it.
func txRuleError(c wire.RejectCode, desc string) RuleError {
	return RuleError{
		Err: TxRuleError{RejectCode: c, Description: desc},
	}
}

// poolFullError returns the RuleError for a transaction the pool has no
// room for.
func poolFullError(desc string) RuleError {
	return RuleError{
		Err: TxRuleError{
			RejectCode:  wire.RejectInsufficientFee,
			Description: desc,
			poolFull:    true,
		},
	}
}

// chainRuleError returns a RuleError that encapsulates the given
// blockchain.RuleError.
func chainRuleError(chainErr blockchain.RuleError) RuleError {
	return RuleError{
		Err: chainErr,
	}
}

// wrapChainError converts err to a RuleError when it is a chain rule
// violation and returns it unchanged otherwise.
func wrapChainError(err error) error {
	var cerr blockchain.RuleError
	if errors.As(err, &cerr) {
		return chainRuleError(cerr)
	}
	return err
}

// AssertError identifies a broken pool invariant.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "mempool assertion failed: " + string(e)
}

// chainRejectExempt lists the chain rule violations an honest peer can
// trigger by racing a block or relaying a transaction that spends an output
// this node has not seen yet.  They are reported without a ban score.
var chainRejectExempt = map[blockchain.ErrorCode]struct{}{
	blockchain.ErrMissingTxOut:   {},
	blockchain.ErrImmatureSpend:  {},
	blockchain.ErrDuplicateTx:    {},
	blockchain.ErrNullifierSpent: {},
	blockchain.ErrUnknownAnchor:  {},
	blockchain.ErrUnfinalizedTx:  {},
}

// extractRejectCode attempts to return a relevant reject code for a given
// error by examining the error for known types.  It will return true if a
// code was successfully extracted.
func extractRejectCode(err error) (wire.RejectCode, bool) {
	// Pull the underlying error out of a RuleError.
	var rerr RuleError
	if errors.As(err, &rerr) {
		err = rerr.Err
	}

	switch err := err.(type) {
	case blockchain.RuleError:
		// Convert the chain error to a reject code.
		var code wire.RejectCode
		switch err.ErrorCode {
		// Rejected due to duplicate.
		case blockchain.ErrDuplicateTx:
			code = wire.RejectDuplicate

		// Rejected due to being non-final.
		case blockchain.ErrUnfinalizedTx:
			code = wire.RejectNonstandard

		// Everything else is due to the transaction being invalid.
		default:
			code = wire.RejectInvalid
		}

		return code, true

	case TxRuleError:
		return err.RejectCode, true

	case nil:
		return wire.RejectInvalid, false
	}

	return wire.RejectInvalid, false
}

// ErrToRejectErr examines the underlying type of the error and returns a reject
// code and string appropriate to be sent in a wire.MsgReject message.
func ErrToRejectErr(err error) (wire.RejectCode, string) {
	// Return the reject code along with the error text if it can be
	// extracted from the error.
	rejectCode, found := extractRejectCode(err)
	if found {
		return rejectCode, err.Error()
	}

	// Return a generic rejected string if there is no error.  This really
	// should not happen unless the code elsewhere is not setting an error
	// as it should be, but it's best to be safe and simply return a generic
	// string rather than allowing the following code that dereferences the
	// err to panic.
	if err == nil {
		return wire.RejectInvalid, "rejected"
	}

	// When the underlying error is not one of the above cases, just return
	// wire.RejectInvalid with a generic rejected string plus the error
	// text.
	return wire.RejectInvalid, "rejected: " + err.Error()
}

// ValidationState is the outcome of a rejected admission in the form the
// relay layer consumes: the kind of failure, a reject code and short reason
// for the peer, and how much the origin should be penalized.
type ValidationState struct {
	Kind       ErrorKind
	RejectCode wire.RejectCode
	Reason     string
	BanScore   uint32
	Err        error
}

// String returns a summary of the state for logging.
func (s *ValidationState) String() string {
	return fmt.Sprintf("%v (%v, ban score %d): %s", s.Kind, s.RejectCode,
		s.BanScore, s.Reason)
}

// NewValidationState classifies err, as returned by MaybeAcceptTransaction,
// into a ValidationState.  It returns nil for a nil error.
func NewValidationState(err error) *ValidationState {
	if err == nil {
		return nil
	}

	code, _ := extractRejectCode(err)
	state := &ValidationState{
		RejectCode: code,
		Reason:     err.Error(),
		Err:        err,
	}

	var (
		txErr    TxRuleError
		chainErr blockchain.RuleError
		assert   AssertError
	)
	switch {
	case errors.As(err, &txErr) && txErr.poolFull:
		state.Kind = ResourceExhausted
		state.BanScore = banScoreResource

	case errors.As(err, &txErr):
		state.Kind = PolicyRejection
		state.BanScore = banScorePolicy

	case errors.As(err, &chainErr):
		state.Kind = ConsensusInvalid
		state.Reason = chainErr.ErrorCode.RejectReason()
		state.BanScore = banScoreConsensus
		if _, ok := chainRejectExempt[chainErr.ErrorCode]; ok {
			state.BanScore = banScorePolicy
		}

	case errors.As(err, &assert):
		state.Kind = InconsistentState

	default:
		state.Kind = ConsensusInvalid
	}
	return state
}
