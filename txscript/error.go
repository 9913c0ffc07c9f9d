// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"fmt"
)

// ErrorCode identifies a kind of script error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrInternal is returned if internal consistency checks fail.
	ErrInternal ErrorCode = iota

	// ErrInvalidIndex is returned when an out-of-bounds index is passed to
	// a function.
	ErrInvalidIndex

	// ErrMissingPrevOut is returned when the output spent by an input is
	// unknown to the output fetcher.
	ErrMissingPrevOut

	// ErrScriptTooBig is returned if a script is larger than MaxScriptSize.
	ErrScriptTooBig

	// ErrMalformedPush is returned when a data push opcode tries to push
	// more bytes than are left in the script.
	ErrMalformedPush

	// ErrNotPushOnly is returned when a script that is required to only
	// push data to the stack performs other operations.
	ErrNotPushOnly

	// ErrUnsupportedScript is returned when a public key script is not one
	// of the forms this package knows how to satisfy.
	ErrUnsupportedScript

	// ErrPubKeyFormat is returned when a public key does not parse.
	ErrPubKeyFormat

	// ErrSigFormat is returned when a signature does not parse or has an
	// unsupported hash type.
	ErrSigFormat

	// ErrEvalFalse is returned when a script evaluates to false, for
	// example a signature that does not match or a hash mismatch.
	ErrEvalFalse

	// numErrorCodes is the maximum error code number used in tests.  This
	// entry MUST be the last entry in the enum.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInternal:          "ErrInternal",
	ErrInvalidIndex:      "ErrInvalidIndex",
	ErrMissingPrevOut:    "ErrMissingPrevOut",
	ErrScriptTooBig:      "ErrScriptTooBig",
	ErrMalformedPush:     "ErrMalformedPush",
	ErrNotPushOnly:       "ErrNotPushOnly",
	ErrUnsupportedScript: "ErrUnsupportedScript",
	ErrPubKeyFormat:      "ErrPubKeyFormat",
	ErrSigFormat:         "ErrSigFormat",
	ErrEvalFalse:         "ErrEvalFalse",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a script-related error.  It is used to indicate three
// classes of errors:
//  1. Script execution failures due to violating one of the many requirements
//     imposed by the script engine or evaluating to false
//  2. Improper API usage by callers
//  3. Internal consistency check failures
//
// The caller can use type assertions on the returned errors to access the
// ErrorCode field to ascertain the specific reason for the error.
type Error struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// scriptError creates an Error given a set of arguments.
func scriptError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether or not the provided error is a script error with
// the provided error code.
func IsErrorCode(err error, c ErrorCode) bool {
	serr, ok := err.(Error)
	return ok && serr.ErrorCode == c
}
