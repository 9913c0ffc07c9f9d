// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SigHashType represents hash type bits at the end of a signature.
type SigHashType uint32

// Hash type bits from the end of a signature.  Only SigHashAll is accepted by
// the verifier in this package.
const (
	SigHashAll          SigHashType = 0x1
	SigHashNone         SigHashType = 0x2
	SigHashSingle       SigHashType = 0x3
	SigHashAnyOneCanPay SigHashType = 0x80
)

// removeOpcode returns the script with every occurrence of the given
// opcode removed.
func removeOpcode(pops []parsedOpcode, opcode byte) []parsedOpcode {
	retScript := make([]parsedOpcode, 0, len(pops))
	for _, pop := range pops {
		if pop.opcode != opcode {
			retScript = append(retScript, pop)
		}
	}
	return retScript
}

// unparseScript reversed the action of parseScript and returns the
// parsedOpcodes as a list of bytes.
func unparseScript(pops []parsedOpcode) []byte {
	b := NewScriptBuilder()
	for _, pop := range pops {
		if pop.opcode > OP_16 || pop.opcode == OP_RESERVED {
			b.script = append(b.script, pop.opcode)
			continue
		}
		switch {
		case pop.opcode == OP_0 || pop.opcode == OP_1NEGATE ||
			pop.opcode >= OP_1:
			b.script = append(b.script, pop.opcode)
		case pop.opcode < OP_PUSHDATA1:
			b.script = append(b.script, pop.opcode)
			b.script = append(b.script, pop.data...)
		case pop.opcode == OP_PUSHDATA1:
			b.script = append(b.script, pop.opcode, byte(len(pop.data)))
			b.script = append(b.script, pop.data...)
		case pop.opcode == OP_PUSHDATA2:
			var l [2]byte
			binary.LittleEndian.PutUint16(l[:], uint16(len(pop.data)))
			b.script = append(b.script, pop.opcode)
			b.script = append(b.script, l[:]...)
			b.script = append(b.script, pop.data...)
		default:
			var l [4]byte
			binary.LittleEndian.PutUint32(l[:], uint32(len(pop.data)))
			b.script = append(b.script, pop.opcode)
			b.script = append(b.script, l[:]...)
			b.script = append(b.script, pop.data...)
		}
	}
	return b.script
}

// CalcSignatureHash computes the signature hash for the specified input of the
// target transaction observing the desired signature hash type.  The input
// scripts of every other input are cleared, the JoinSplit signature is
// zeroed, and the hash type is appended before double hashing.
func CalcSignatureHash(script []byte, hashType SigHashType, tx *wire.MsgTx,
	idx int) ([]byte, error) {

	if idx < 0 || idx >= len(tx.TxIn) {
		str := fmt.Sprintf("transaction input index %d is negative or "+
			">= %d", idx, len(tx.TxIn))
		return nil, scriptError(ErrInvalidIndex, str)
	}
	if hashType != SigHashAll {
		str := fmt.Sprintf("unsupported signature hash type 0x%x",
			uint32(hashType))
		return nil, scriptError(ErrSigFormat, str)
	}

	pops, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	subScript := unparseScript(removeOpcode(pops, OP_CODESEPARATOR))

	txCopy := tx.Copy()
	for i := range txCopy.TxIn {
		if i == idx {
			txCopy.TxIn[idx].SignatureScript = subScript
		} else {
			txCopy.TxIn[i].SignatureScript = nil
		}
	}
	txCopy.JoinSplitSig = [wire.JoinSplitSigSize]byte{}

	var buf bytes.Buffer
	buf.Grow(txCopy.SerializeSize() + 4)
	if err := txCopy.Serialize(&buf); err != nil {
		return nil, err
	}
	var ht [4]byte
	binary.LittleEndian.PutUint32(ht[:], uint32(hashType))
	buf.Write(ht[:])

	return chainhash.DoubleHashB(buf.Bytes()), nil
}
