// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// TxVersion is the current latest supported transparent transaction
	// version.
	TxVersion = 1

	// JoinSplitTxVersion is the first transaction version that carries
	// JoinSplit descriptions.
	JoinSplitTxVersion = 2

	// MaxTxInSequenceNum is the maximum sequence number the sequence field
	// of a transaction input can be.
	MaxTxInSequenceNum uint32 = 0xffffffff

	// MaxPrevOutIndex is the maximum index the index field of a previous
	// outpoint can be.
	MaxPrevOutIndex uint32 = 0xffffffff

	// NumJoinSplitInputs and NumJoinSplitOutputs are the fixed arities of a
	// JoinSplit description.
	NumJoinSplitInputs  = 2
	NumJoinSplitOutputs = 2

	// JoinSplitProofSize is the size of a serialized PHGR13 proof.
	JoinSplitProofSize = 296

	// NoteCiphertextSize is the size of one encrypted note.
	NoteCiphertextSize = 601

	// JoinSplitSerializeSize is the serialized size of one JoinSplit
	// description.
	JoinSplitSerializeSize = 8 + 8 + chainhash.HashSize +
		chainhash.HashSize*NumJoinSplitInputs +
		chainhash.HashSize*NumJoinSplitOutputs +
		chainhash.HashSize + chainhash.HashSize +
		chainhash.HashSize*NumJoinSplitInputs +
		JoinSplitProofSize + NoteCiphertextSize*NumJoinSplitOutputs

	// JoinSplitSigSize is the size of the ed25519 signature binding the
	// JoinSplits to the rest of the transaction.
	JoinSplitSigSize = 64

	// minTxInPayload is the minimum payload size for a transaction input.
	// PreviousOutPoint.Hash + PreviousOutPoint.Index 4 bytes + Varint for
	// SignatureScript length 1 byte + Sequence 4 bytes.
	minTxInPayload = 9 + chainhash.HashSize

	// maxTxInPerMessage is the maximum number of transactions inputs that
	// a transaction which fits into a message could possibly have.
	maxTxInPerMessage = (maxMessagePayload / minTxInPayload) + 1

	// minTxOutPayload is the minimum payload size for a transaction output.
	// Value 8 bytes + Varint for PkScript length 1 byte.
	minTxOutPayload = 9

	// maxTxOutPerMessage is the maximum number of transactions outputs that
	// a transaction which fits into a message could possibly have.
	maxTxOutPerMessage = (maxMessagePayload / minTxOutPayload) + 1

	// maxJoinSplitsPerMessage is the maximum number of JoinSplits a
	// transaction which fits into a message could possibly have.
	maxJoinSplitsPerMessage = (maxMessagePayload / JoinSplitSerializeSize) + 1

	// MaxScriptSize is the maximum allowed length of a raw script.
	MaxScriptSize = 10000
)

// OutPoint defines a bitcoin data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new bitcoin transaction outpoint point with the
// provided hash and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{
		Hash:  *hash,
		Index: index,
	}
}

// String returns the OutPoint in the human-readable form "hash:index".
func (o OutPoint) String() string {
	// Allocate enough for hash string, colon, and 10 digits.  Although
	// at the time of writing, the number of digits can be no greater than
	// the length of the decimal representation of maxTxOutPerMessage, the
	// maximum message payload may increase in the future and this
	// optimization may go unnoticed, so allocate space for 10 decimal
	// digits, which will fit any uint32.
	buf := make([]byte, 2*chainhash.HashSize+1, 2*chainhash.HashSize+1+10)
	copy(buf, o.Hash.String())
	buf[2*chainhash.HashSize] = ':'
	buf = strconv.AppendUint(buf, uint64(o.Index), 10)
	return string(buf)
}

// TxIn defines a bitcoin transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction input.
func (t *TxIn) SerializeSize() int {
	// Outpoint Hash 32 bytes + Outpoint Index 4 bytes + Sequence 4 bytes +
	// serialized varint size for the length of SignatureScript +
	// SignatureScript bytes.
	return 40 + VarIntSerializeSize(uint64(len(t.SignatureScript))) +
		len(t.SignatureScript)
}

// NewTxIn returns a new bitcoin transaction input with the provided
// previous outpoint point and signature script with a default sequence of
// MaxTxInSequenceNum.
func NewTxIn(prevOut *OutPoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         MaxTxInSequenceNum,
	}
}

// TxOut defines a bitcoin transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction output.
func (t *TxOut) SerializeSize() int {
	// Value 8 bytes + serialized varint size for the length of PkScript +
	// PkScript bytes.
	return 8 + VarIntSerializeSize(uint64(len(t.PkScript))) + len(t.PkScript)
}

// NewTxOut returns a new bitcoin transaction output with the provided
// transaction value and public key script.
func NewTxOut(value int64, pkScript []byte) *TxOut {
	return &TxOut{
		Value:    value,
		PkScript: pkScript,
	}
}

// JSDescription is a JoinSplit transfer between the transparent value pool
// and the shielded note commitment tree.  VPubOld enters the shielded pool
// from the transparent inputs and VPubNew leaves it toward the transparent
// outputs.
type JSDescription struct {
	VPubOld      int64
	VPubNew      int64
	Anchor       chainhash.Hash
	Nullifiers   [NumJoinSplitInputs]chainhash.Hash
	Commitments  [NumJoinSplitOutputs]chainhash.Hash
	EphemeralKey chainhash.Hash
	RandomSeed   chainhash.Hash
	Macs         [NumJoinSplitInputs]chainhash.Hash
	Proof        [JoinSplitProofSize]byte
	Ciphertexts  [NumJoinSplitOutputs][NoteCiphertextSize]byte
}

func (js *JSDescription) serialize(w io.Writer) error {
	if err := writeUint64(w, uint64(js.VPubOld)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(js.VPubNew)); err != nil {
		return err
	}
	if err := writeHash(w, &js.Anchor); err != nil {
		return err
	}
	for i := range js.Nullifiers {
		if err := writeHash(w, &js.Nullifiers[i]); err != nil {
			return err
		}
	}
	for i := range js.Commitments {
		if err := writeHash(w, &js.Commitments[i]); err != nil {
			return err
		}
	}
	if err := writeHash(w, &js.EphemeralKey); err != nil {
		return err
	}
	if err := writeHash(w, &js.RandomSeed); err != nil {
		return err
	}
	for i := range js.Macs {
		if err := writeHash(w, &js.Macs[i]); err != nil {
			return err
		}
	}
	if _, err := w.Write(js.Proof[:]); err != nil {
		return err
	}
	for i := range js.Ciphertexts {
		if _, err := w.Write(js.Ciphertexts[i][:]); err != nil {
			return err
		}
	}
	return nil
}

func (js *JSDescription) deserialize(r io.Reader) error {
	v, err := readUint64(r)
	if err != nil {
		return err
	}
	js.VPubOld = int64(v)
	if v, err = readUint64(r); err != nil {
		return err
	}
	js.VPubNew = int64(v)
	if err := readHash(r, &js.Anchor); err != nil {
		return err
	}
	for i := range js.Nullifiers {
		if err := readHash(r, &js.Nullifiers[i]); err != nil {
			return err
		}
	}
	for i := range js.Commitments {
		if err := readHash(r, &js.Commitments[i]); err != nil {
			return err
		}
	}
	if err := readHash(r, &js.EphemeralKey); err != nil {
		return err
	}
	if err := readHash(r, &js.RandomSeed); err != nil {
		return err
	}
	for i := range js.Macs {
		if err := readHash(r, &js.Macs[i]); err != nil {
			return err
		}
	}
	if _, err := io.ReadFull(r, js.Proof[:]); err != nil {
		return err
	}
	for i := range js.Ciphertexts {
		if _, err := io.ReadFull(r, js.Ciphertexts[i][:]); err != nil {
			return err
		}
	}
	return nil
}

// MsgTx implements the Message interface and represents a bitcoin tx message.
// It is used to deliver transaction information in response to a getdata
// message (MsgGetData) for a given transaction.
//
// Use the AddTxIn and AddTxOut functions to build up the list of transaction
// inputs and outputs.
type MsgTx struct {
	Version    int32
	TxIn       []*TxIn
	TxOut      []*TxOut
	LockTime   uint32
	JoinSplits []*JSDescription

	// JoinSplitPubKey and JoinSplitSig are only serialized when the
	// transaction carries at least one JoinSplit.
	JoinSplitPubKey chainhash.Hash
	JoinSplitSig    [JoinSplitSigSize]byte
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// AddJoinSplit adds a JoinSplit description to the message.
func (msg *MsgTx) AddJoinSplit(js *JSDescription) {
	msg.JoinSplits = append(msg.JoinSplits, js)
}

// TxHash generates the Hash for the transaction.
func (msg *MsgTx) TxHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	_ = msg.Serialize(buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Copy creates a deep copy of a transaction so that the original does not get
// modified when the copy is manipulated.
func (msg *MsgTx) Copy() *MsgTx {
	newTx := MsgTx{
		Version:         msg.Version,
		TxIn:            make([]*TxIn, 0, len(msg.TxIn)),
		TxOut:           make([]*TxOut, 0, len(msg.TxOut)),
		LockTime:        msg.LockTime,
		JoinSplitPubKey: msg.JoinSplitPubKey,
		JoinSplitSig:    msg.JoinSplitSig,
	}

	for _, oldTxIn := range msg.TxIn {
		var newScript []byte
		if oldTxIn.SignatureScript != nil {
			newScript = make([]byte, len(oldTxIn.SignatureScript))
			copy(newScript, oldTxIn.SignatureScript)
		}
		newTx.TxIn = append(newTx.TxIn, &TxIn{
			PreviousOutPoint: oldTxIn.PreviousOutPoint,
			SignatureScript:  newScript,
			Sequence:         oldTxIn.Sequence,
		})
	}

	for _, oldTxOut := range msg.TxOut {
		var newScript []byte
		if oldTxOut.PkScript != nil {
			newScript = make([]byte, len(oldTxOut.PkScript))
			copy(newScript, oldTxOut.PkScript)
		}
		newTx.TxOut = append(newTx.TxOut, &TxOut{
			Value:    oldTxOut.Value,
			PkScript: newScript,
		})
	}

	if len(msg.JoinSplits) > 0 {
		newTx.JoinSplits = make([]*JSDescription, 0, len(msg.JoinSplits))
		for _, js := range msg.JoinSplits {
			dup := *js
			newTx.JoinSplits = append(newTx.JoinSplits, &dup)
		}
	}

	return &newTx
}

// Deserialize decodes a transaction from r into the receiver.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.Version = int32(version)

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > uint64(maxTxInPerMessage) {
		str := fmt.Sprintf("too many input transactions to fit into "+
			"max message size [count %d, max %d]", count,
			maxTxInPerMessage)
		return messageError("MsgTx.Deserialize", str)
	}
	msg.TxIn = make([]*TxIn, count)
	for i := uint64(0); i < count; i++ {
		ti := new(TxIn)
		if err := readHash(r, &ti.PreviousOutPoint.Hash); err != nil {
			return err
		}
		if ti.PreviousOutPoint.Index, err = readUint32(r); err != nil {
			return err
		}
		ti.SignatureScript, err = ReadVarBytes(r, MaxScriptSize,
			"transaction input signature script")
		if err != nil {
			return err
		}
		if ti.Sequence, err = readUint32(r); err != nil {
			return err
		}
		msg.TxIn[i] = ti
	}

	count, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > uint64(maxTxOutPerMessage) {
		str := fmt.Sprintf("too many output transactions to fit into "+
			"max message size [count %d, max %d]", count,
			maxTxOutPerMessage)
		return messageError("MsgTx.Deserialize", str)
	}
	msg.TxOut = make([]*TxOut, count)
	for i := uint64(0); i < count; i++ {
		to := new(TxOut)
		value, err := readUint64(r)
		if err != nil {
			return err
		}
		to.Value = int64(value)
		to.PkScript, err = ReadVarBytes(r, MaxScriptSize,
			"transaction output public key script")
		if err != nil {
			return err
		}
		msg.TxOut[i] = to
	}

	if msg.LockTime, err = readUint32(r); err != nil {
		return err
	}

	msg.JoinSplits = nil
	if msg.Version < JoinSplitTxVersion {
		return nil
	}

	count, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > uint64(maxJoinSplitsPerMessage) {
		str := fmt.Sprintf("too many joinsplits to fit into max "+
			"message size [count %d, max %d]", count,
			maxJoinSplitsPerMessage)
		return messageError("MsgTx.Deserialize", str)
	}
	if count == 0 {
		return nil
	}
	msg.JoinSplits = make([]*JSDescription, count)
	for i := uint64(0); i < count; i++ {
		js := new(JSDescription)
		if err := js.deserialize(r); err != nil {
			return err
		}
		msg.JoinSplits[i] = js
	}
	if err := readHash(r, &msg.JoinSplitPubKey); err != nil {
		return err
	}
	_, err = io.ReadFull(r, msg.JoinSplitSig[:])
	return err
}

// Serialize encodes the transaction to w.  Transactions with a version of at
// least JoinSplitTxVersion always carry the JoinSplit vector, even when it
// is empty.
func (msg *MsgTx) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(msg.Version)); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(msg.TxIn))); err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		if err := writeHash(w, &ti.PreviousOutPoint.Hash); err != nil {
			return err
		}
		if err := writeUint32(w, ti.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := WriteVarBytes(w, ti.SignatureScript); err != nil {
			return err
		}
		if err := writeUint32(w, ti.Sequence); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(len(msg.TxOut))); err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		if err := writeUint64(w, uint64(to.Value)); err != nil {
			return err
		}
		if err := WriteVarBytes(w, to.PkScript); err != nil {
			return err
		}
	}

	if err := writeUint32(w, msg.LockTime); err != nil {
		return err
	}

	if msg.Version < JoinSplitTxVersion {
		return nil
	}

	if err := WriteVarInt(w, uint64(len(msg.JoinSplits))); err != nil {
		return err
	}
	if len(msg.JoinSplits) == 0 {
		return nil
	}
	for _, js := range msg.JoinSplits {
		if err := js.serialize(w); err != nil {
			return err
		}
	}
	if err := writeHash(w, &msg.JoinSplitPubKey); err != nil {
		return err
	}
	_, err := w.Write(msg.JoinSplitSig[:])
	return err
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction.
func (msg *MsgTx) SerializeSize() int {
	// Version 4 bytes + LockTime 4 bytes + Serialized varint size for the
	// number of transaction inputs and outputs.
	n := 8 + VarIntSerializeSize(uint64(len(msg.TxIn))) +
		VarIntSerializeSize(uint64(len(msg.TxOut)))

	for _, txIn := range msg.TxIn {
		n += txIn.SerializeSize()
	}

	for _, txOut := range msg.TxOut {
		n += txOut.SerializeSize()
	}

	if msg.Version >= JoinSplitTxVersion {
		n += VarIntSerializeSize(uint64(len(msg.JoinSplits)))
		if len(msg.JoinSplits) > 0 {
			n += len(msg.JoinSplits)*JoinSplitSerializeSize +
				chainhash.HashSize + JoinSplitSigSize
		}
	}

	return n
}

// NewMsgTx returns a new bitcoin tx message that conforms to the Message
// interface.  The return instance has a default version of TxVersion and
// there are no transaction inputs or outputs.  Also, the lock time is set to
// zero to indicate the transaction is valid immediately as opposed to some
// time in future.
func NewMsgTx(version int32) *MsgTx {
	return &MsgTx{
		Version: version,
		TxIn:    make([]*TxIn, 0, 8),
		TxOut:   make([]*TxOut, 0, 8),
	}
}
