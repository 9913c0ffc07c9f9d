// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific MiningRuleError.
const (
	// ErrCreatingCoinbase indicates that there was a problem generating
	// the coinbase.
	ErrCreatingCoinbase ErrorCode = iota

	// ErrStaleTemplate indicates a template or block no longer extends
	// the current chain tip.
	ErrStaleTemplate

	// ErrTemplateInvalid indicates that a newly assembled block template
	// failed full contextual validation.  This points at a defect in the
	// selection rules since every included transaction was validated
	// against the same view.
	ErrTemplateInvalid

	// ErrCoinbaseLengthOverflow indicates that a coinbase length was
	// overflowed, probably of a result of incrementing extranonce.
	ErrCoinbaseLengthOverflow
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrCreatingCoinbase:       "ErrCreatingCoinbase",
	ErrStaleTemplate:          "ErrStaleTemplate",
	ErrTemplateInvalid:        "ErrTemplateInvalid",
	ErrCoinbaseLengthOverflow: "ErrCoinbaseLengthOverflow",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// MiningRuleError identifies a failure to build a block template.  The
// caller can use type assertions to determine if a failure was specifically
// due to a mining rule and access the ErrorCode field to ascertain the
// specific reason.  Err holds the underlying error, if any.
type MiningRuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e MiningRuleError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error.
func (e MiningRuleError) Unwrap() error {
	return e.Err
}

// miningRuleError creates a MiningRuleError given a set of arguments.
func miningRuleError(c ErrorCode, desc string, err error) MiningRuleError {
	return MiningRuleError{ErrorCode: c, Description: desc, Err: err}
}
