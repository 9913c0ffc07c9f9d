// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"encoding/binary"
	"fmt"
)

// MaxScriptSize is the maximum allowed length of a raw script.
const MaxScriptSize = 10000

// parsedOpcode represents an opcode that has been parsed and includes any
// potential data associated with it.
type parsedOpcode struct {
	opcode byte
	data   []byte
}

// parseScript preparses the script in bytes into a list of parsedOpcodes while
// applying a number of sanity checks.  On a malformed push the opcodes parsed
// before the failure are returned along with the error.
func parseScript(script []byte) ([]parsedOpcode, error) {
	if len(script) > MaxScriptSize {
		str := fmt.Sprintf("script size %d is larger than max allowed "+
			"size %d", len(script), MaxScriptSize)
		return nil, scriptError(ErrScriptTooBig, str)
	}

	retScript := make([]parsedOpcode, 0, len(script))
	for i := 0; i < len(script); {
		op := script[i]
		pop := parsedOpcode{opcode: op}

		var dataLen, offset int
		switch {
		case op >= OP_DATA_1 && op <= OP_DATA_75:
			dataLen, offset = int(op), 1

		case op == OP_PUSHDATA1:
			if len(script[i:]) < 2 {
				return retScript, malformedPush(op, i)
			}
			dataLen, offset = int(script[i+1]), 2

		case op == OP_PUSHDATA2:
			if len(script[i:]) < 3 {
				return retScript, malformedPush(op, i)
			}
			dataLen = int(binary.LittleEndian.Uint16(script[i+1:]))
			offset = 3

		case op == OP_PUSHDATA4:
			if len(script[i:]) < 5 {
				return retScript, malformedPush(op, i)
			}
			dataLen = int(binary.LittleEndian.Uint32(script[i+1:]))
			offset = 5

		default:
			offset = 1
		}

		if dataLen < 0 || len(script[i+offset:]) < dataLen {
			return retScript, malformedPush(op, i)
		}
		if dataLen > 0 {
			pop.data = script[i+offset : i+offset+dataLen]
		}
		retScript = append(retScript, pop)
		i += offset + dataLen
	}

	return retScript, nil
}

func malformedPush(op byte, offset int) error {
	str := fmt.Sprintf("opcode 0x%02x at offset %d pushes past the end "+
		"of the script", op, offset)
	return scriptError(ErrMalformedPush, str)
}

// isPushOnly returns true if the script only pushes data, false otherwise.
func isPushOnly(pops []parsedOpcode) bool {
	for _, pop := range pops {
		// All opcodes up to OP_16 are data push instructions.
		if pop.opcode > OP_16 {
			return false
		}
	}
	return true
}

// IsPushOnlyScript returns whether or not the passed script only pushes data.
//
// False will be returned when the script does not parse.
func IsPushOnlyScript(script []byte) bool {
	pops, err := parseScript(script)
	if err != nil {
		return false
	}
	return isPushOnly(pops)
}

// getSigOpCount is the implementation function for counting the number of
// signature operations in the script provided by pops. If precise mode is
// requested then we attempt to count the number of operations for a multisig
// op. Otherwise we use the maximum.
func getSigOpCount(pops []parsedOpcode, precise bool) int {
	nSigs := 0
	for i, pop := range pops {
		switch pop.opcode {
		case OP_CHECKSIG, OP_CHECKSIGVERIFY:
			nSigs++
		case OP_CHECKMULTISIG, OP_CHECKMULTISIGVERIFY:
			// If we are being precise then look for familiar
			// patterns for multisig, for now all we recognize is
			// OP_1 - OP_16 to signify the number of pubkeys.
			// Otherwise, we use the max of 20.
			if precise && i > 0 &&
				pops[i-1].opcode >= OP_1 &&
				pops[i-1].opcode <= OP_16 {
				nSigs += asSmallInt(pops[i-1].opcode)
			} else {
				nSigs += MaxPubKeysPerMultiSig
			}
		}
	}

	return nSigs
}

// GetSigOpCount provides a quick count of the number of signature operations
// in a script. a CHECKSIG operations counts for 1, and a CHECK_MULTISIG for 20.
// If the script fails to parse, then the count up to the point of failure is
// returned.
func GetSigOpCount(script []byte) int {
	pops, _ := parseScript(script)
	return getSigOpCount(pops, false)
}

// GetPreciseSigOpCount returns the number of signature operations in
// scriptPubKey.  If bip16 is true then scriptSig may be searched for the
// Pay-To-Script-Hash script in order to find the precise number of signature
// operations in the transaction.  If the script fails to parse, then the count
// up to the point of failure is returned.
func GetPreciseSigOpCount(scriptSig, scriptPubKey []byte, bip16 bool) int {
	pops, _ := parseScript(scriptPubKey)

	// Treat non P2SH transactions as normal.
	if !(bip16 && isScriptHash(pops)) {
		return getSigOpCount(pops, true)
	}

	// The public key script is a pay-to-script-hash, so parse the signature
	// script to get the final item.  Scripts that fail to fully parse count
	// as 0 signature operations.
	sigPops, err := parseScript(scriptSig)
	if err != nil {
		return 0
	}

	// The signature script must only push data to the stack for P2SH to be
	// a valid pair, so the signature operation count is 0 when that is not
	// the case.
	if !isPushOnly(sigPops) || len(sigPops) == 0 {
		return 0
	}

	// The P2SH script is the last item the signature script pushes to the
	// stack.  When the script is empty, there are no signature operations.
	shScript := sigPops[len(sigPops)-1].data
	if len(shScript) == 0 {
		return 0
	}

	// Parse the P2SH script and don't check the error since parseScript
	// returns the parsed-up-to-error list and the consensus rules dictate
	// signature operations are counted up to the first parse failure.
	shPops, _ := parseScript(shScript)
	return getSigOpCount(shPops, true)
}

// IsUnspendable returns whether the passed public key script is unspendable,
// or guaranteed to fail at execution.  This allows outputs to be pruned
// instantly when entering the UTXO set.
func IsUnspendable(pkScript []byte) bool {
	return len(pkScript) > 0 && pkScript[0] == OP_RETURN ||
		len(pkScript) > MaxScriptSize
}
