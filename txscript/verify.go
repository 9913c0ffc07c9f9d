// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"

	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
)

// ScriptFlags is a bitmask defining additional operations or tests that will be
// done when executing a script pair.
type ScriptFlags uint32

const (
	// ScriptBip16 defines whether the bip16 threshold has passed and thus
	// pay-to-script hash transactions will be fully validated.
	ScriptBip16 ScriptFlags = 1 << iota

	// ScriptVerifyStrictEncoding defines that signature scripts and
	// public keys must follow the strict encoding requirements.
	ScriptVerifyStrictEncoding

	// ScriptVerifySigPushOnly defines that signature scripts must contain
	// only pushed data.
	ScriptVerifySigPushOnly
)

const (
	// MandatoryVerifyFlags are the script flags every block must satisfy.
	MandatoryVerifyFlags = ScriptBip16

	// StandardVerifyFlags are the script flags which are used when
	// executing transaction scripts to enforce additional checks which
	// are required for the script to be considered standard.
	StandardVerifyFlags = MandatoryVerifyFlags |
		ScriptVerifyStrictEncoding |
		ScriptVerifySigPushOnly
)

// PrevOutputFetcher is an interface used to supply the verifier with the
// previous output information needed to validate a transaction's inputs.
type PrevOutputFetcher interface {
	// FetchPrevOutput attempts to fetch the previous output referenced by
	// the passed outpoint. A nil value will be returned if the passed
	// outpoint doesn't exist.
	FetchPrevOutput(wire.OutPoint) *wire.TxOut
}

// VerifyScript checks that sigScript satisfies pkScript for input idx of tx.
// The supported public key scripts are pay-to-pubkey, pay-to-pubkey-hash,
// bare multisig, and pay-to-script-hash wrapping one of those when
// ScriptBip16 is set.  Any other script fails with ErrUnsupportedScript.
func VerifyScript(sigScript, pkScript []byte, tx *wire.MsgTx, idx int,
	flags ScriptFlags) error {

	if idx < 0 || idx >= len(tx.TxIn) {
		str := fmt.Sprintf("transaction input index %d is negative or "+
			">= %d", idx, len(tx.TxIn))
		return scriptError(ErrInvalidIndex, str)
	}

	sigPops, err := parseScript(sigScript)
	if err != nil {
		return err
	}
	pkPops, err := parseScript(pkScript)
	if err != nil {
		return err
	}

	// Only push-only signature scripts can be evaluated without a full
	// script interpreter.
	if !isPushOnly(sigPops) {
		return scriptError(ErrNotPushOnly,
			"signature script is not push only")
	}

	if flags&ScriptBip16 == ScriptBip16 && isScriptHash(pkPops) {
		if len(sigPops) == 0 {
			return scriptError(ErrEvalFalse,
				"pay-to-script-hash input has no redeem script")
		}
		redeemScript := sigPops[len(sigPops)-1].data
		if !bytes.Equal(btcutil.Hash160(redeemScript), pkPops[1].data) {
			return scriptError(ErrEvalFalse,
				"redeem script hash mismatch")
		}
		redeemPops, err := parseScript(redeemScript)
		if err != nil {
			return err
		}
		if isScriptHash(redeemPops) {
			return scriptError(ErrUnsupportedScript,
				"nested pay-to-script-hash")
		}
		return verifyTemplate(sigPops[:len(sigPops)-1], redeemPops,
			redeemScript, tx, idx, flags)
	}

	return verifyTemplate(sigPops, pkPops, pkScript, tx, idx, flags)
}

// verifyTemplate evaluates the pushes of a signature script against one of
// the standard public key script templates.
func verifyTemplate(sigPops, pkPops []parsedOpcode, subScript []byte,
	tx *wire.MsgTx, idx int, flags ScriptFlags) error {

	switch {
	case isPubkey(pkPops):
		if len(sigPops) != 1 {
			return scriptError(ErrEvalFalse, fmt.Sprintf("pay-to-pubkey "+
				"expects 1 push, got %d", len(sigPops)))
		}
		return checkSig(sigPops[0].data, pkPops[0].data, subScript, tx,
			idx, flags)

	case isPubkeyHash(pkPops):
		if len(sigPops) != 2 {
			return scriptError(ErrEvalFalse, fmt.Sprintf("pay-to-pubkey-"+
				"hash expects 2 pushes, got %d", len(sigPops)))
		}
		pubKey := sigPops[1].data
		if !bytes.Equal(btcutil.Hash160(pubKey), pkPops[2].data) {
			return scriptError(ErrEvalFalse, "public key hash mismatch")
		}
		return checkSig(sigPops[0].data, pubKey, subScript, tx, idx,
			flags)

	case isMultiSig(pkPops):
		numPubKeys := asSmallInt(pkPops[len(pkPops)-2].opcode)
		numSigs := asSmallInt(pkPops[0].opcode)
		pubKeys := pkPops[1 : 1+numPubKeys]

		// The extra stack item consumed by OP_CHECKMULTISIG is
		// followed by the signatures.
		if len(sigPops) != numSigs+1 {
			return scriptError(ErrEvalFalse, fmt.Sprintf("multisig "+
				"expects %d pushes, got %d", numSigs+1,
				len(sigPops)))
		}
		sigs := sigPops[1:]

		// Signatures must appear in the same order as their keys.
		keyIdx := 0
		for _, sig := range sigs {
			matched := false
			for keyIdx < len(pubKeys) {
				pk := pubKeys[keyIdx].data
				keyIdx++
				if checkSig(sig.data, pk, subScript, tx, idx,
					flags) == nil {

					matched = true
					break
				}
			}
			if !matched {
				return scriptError(ErrEvalFalse,
					"multisig signature does not match")
			}
		}
		return nil

	case isNullData(pkPops):
		return scriptError(ErrEvalFalse, "output is provably unspendable")
	}

	return scriptError(ErrUnsupportedScript, "unsupported public key script")
}

// checkSig verifies a serialized signature with its trailing hash type over
// the signature hash of input idx.
func checkSig(sigBytes, pubKeyBytes, subScript []byte, tx *wire.MsgTx,
	idx int, flags ScriptFlags) error {

	if len(sigBytes) < 1 {
		return scriptError(ErrSigFormat, "empty signature")
	}
	hashType := SigHashType(sigBytes[len(sigBytes)-1])
	sigBytes = sigBytes[:len(sigBytes)-1]

	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return scriptError(ErrPubKeyFormat, err.Error())
	}

	var sig *ecdsa.Signature
	if flags&ScriptVerifyStrictEncoding == ScriptVerifyStrictEncoding {
		sig, err = ecdsa.ParseDERSignature(sigBytes)
	} else {
		sig, err = ecdsa.ParseSignature(sigBytes)
	}
	if err != nil {
		return scriptError(ErrSigFormat, err.Error())
	}

	hash, err := CalcSignatureHash(subScript, hashType, tx, idx)
	if err != nil {
		return err
	}
	if !sig.Verify(hash, pubKey) {
		return scriptError(ErrEvalFalse, "signature verification failed")
	}
	return nil
}

// Verifier checks every transparent input of a transaction against the
// outputs it spends.  Inputs are validated concurrently when there are
// enough of them to make it worthwhile.
type Verifier struct {
	// MaxWorkers bounds the goroutines used per transaction.  Zero
	// means runtime.NumCPU.
	MaxWorkers int
}

// NewVerifier returns a Verifier using one worker per CPU.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyInputs validates every input of tx and returns the number of
// signature operations found in pay-to-script-hash redeem scripts.
func (v *Verifier) VerifyInputs(tx *wire.MsgTx, prevOuts PrevOutputFetcher,
	flags ScriptFlags) (int, error) {

	scripts := make([][]byte, len(tx.TxIn))
	numP2SHSigOps := 0
	for i, txIn := range tx.TxIn {
		prevOut := prevOuts.FetchPrevOutput(txIn.PreviousOutPoint)
		if prevOut == nil {
			str := fmt.Sprintf("unable to find output %v referenced "+
				"from transaction %v input %d",
				txIn.PreviousOutPoint, tx.TxHash(), i)
			return 0, scriptError(ErrMissingPrevOut, str)
		}
		scripts[i] = prevOut.PkScript
		if flags&ScriptBip16 == ScriptBip16 &&
			IsPayToScriptHash(prevOut.PkScript) {

			numP2SHSigOps += GetPreciseSigOpCount(
				txIn.SignatureScript, prevOut.PkScript, true)
		}
	}

	workers := v.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(tx.TxIn) {
		workers = len(tx.TxIn)
	}
	if workers <= 1 {
		for i, txIn := range tx.TxIn {
			err := VerifyScript(txIn.SignatureScript, scripts[i], tx,
				i, flags)
			if err != nil {
				log.Tracef("Input %d of %v failed verification: %v",
					i, tx.TxHash(), err)
				return 0, err
			}
		}
		return numP2SHSigOps, nil
	}

	var (
		wg       sync.WaitGroup
		mtx      sync.Mutex
		firstErr error
		jobs     = make(chan int)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				err := VerifyScript(tx.TxIn[i].SignatureScript,
					scripts[i], tx, i, flags)
				if err != nil {
					mtx.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mtx.Unlock()
				}
			}
		}()
	}
	for i := range tx.TxIn {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		log.Tracef("Input verification of %v failed: %v", tx.TxHash(),
			firstErr)
		return 0, firstErr
	}
	return numP2SHSigOps, nil
}
