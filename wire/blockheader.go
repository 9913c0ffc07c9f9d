// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// MaxSolutionSize is the largest Equihash solution accepted in a
	// header.  It covers the (200,9) parameter set.
	MaxSolutionSize = 1344

	// blockHeaderFixedLen is the length of the header fields preceding the
	// solution: Version 4 bytes + PrevBlock, MerkleRoot and Reserved 32
	// bytes each + Timestamp 4 bytes + Bits 4 bytes + Nonce 32 bytes.
	blockHeaderFixedLen = 16 + chainhash.HashSize*4
)

// BlockHeader defines information about a block and is used in the block
// (MsgBlock) message.  The nonce is 256 bits wide and the proof of work is
// an Equihash solution over the rest of the header.
type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version int32

	// Hash of the previous block header in the block chain.
	PrevBlock chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	MerkleRoot chainhash.Hash

	// Reserved for a future commitment.  Always zero for now.
	Reserved chainhash.Hash

	// Time the block was created.  This is, unfortunately, encoded as a
	// uint32 on the wire and therefore is limited to 2106.
	Timestamp time.Time

	// Difficulty target for the block.
	Bits uint32

	// Nonce used to generate the block.
	Nonce chainhash.Hash

	// Solution is the Equihash solution for the header.
	Solution []byte
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, h.SerializeSize()))
	_ = h.Serialize(buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// SerializeSize returns the number of bytes it would take to serialize the
// header.
func (h *BlockHeader) SerializeSize() int {
	return blockHeaderFixedLen + VarIntSerializeSize(uint64(len(h.Solution))) +
		len(h.Solution)
}

// Deserialize decodes a block header from r into the receiver.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	h.Version = int32(version)
	if err := readHash(r, &h.PrevBlock); err != nil {
		return err
	}
	if err := readHash(r, &h.MerkleRoot); err != nil {
		return err
	}
	if err := readHash(r, &h.Reserved); err != nil {
		return err
	}
	sec, err := readUint32(r)
	if err != nil {
		return err
	}
	h.Timestamp = time.Unix(int64(sec), 0)
	if h.Bits, err = readUint32(r); err != nil {
		return err
	}
	if err := readHash(r, &h.Nonce); err != nil {
		return err
	}
	h.Solution, err = ReadVarBytes(r, MaxSolutionSize, "equihash solution")
	return err
}

// Serialize encodes the block header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(h.Version)); err != nil {
		return err
	}
	if err := writeHash(w, &h.PrevBlock); err != nil {
		return err
	}
	if err := writeHash(w, &h.MerkleRoot); err != nil {
		return err
	}
	if err := writeHash(w, &h.Reserved); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(h.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeUint32(w, h.Bits); err != nil {
		return err
	}
	if err := writeHash(w, &h.Nonce); err != nil {
		return err
	}
	return WriteVarBytes(w, h.Solution)
}

// NewBlockHeader returns a new BlockHeader using the provided version, previous
// block hash, merkle root hash, difficulty bits, and nonce used to generate the
// block with defaults for the remaining fields.
func NewBlockHeader(version int32, prevHash, merkleRootHash *chainhash.Hash,
	bits uint32, nonce *chainhash.Hash) *BlockHeader {

	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &BlockHeader{
		Version:    version,
		PrevBlock:  *prevHash,
		MerkleRoot: *merkleRootHash,
		Timestamp:  time.Unix(time.Now().Unix(), 0),
		Bits:       bits,
		Nonce:      *nonce,
	}
}
