// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaingen

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// generatorKeySeed derives the key every generated output pays to.
	generatorKeySeed = chainhash.HashB([]byte("chaingen payment key"))
)

// SpendableOut represents a transaction output that is spendable along with
// additional metadata such as the block its in and how much it pays.
type SpendableOut struct {
	prevOut     wire.OutPoint
	blockHeight int32
	amount      btcutil.Amount
}

// PrevOut returns the outpoint associated with the spendable output.
func (s *SpendableOut) PrevOut() wire.OutPoint {
	return s.prevOut
}

// BlockHeight returns the block height of the block the spendable output is in.
func (s *SpendableOut) BlockHeight() int32 {
	return s.blockHeight
}

// Amount returns the amount associated with the spendable output.
func (s *SpendableOut) Amount() btcutil.Amount {
	return s.amount
}

// MakeSpendableOutForTx returns a spendable output for the given transaction
// block height and transaction output index within the transaction.
func MakeSpendableOutForTx(tx *wire.MsgTx, blockHeight int32,
	txOutIndex uint32) SpendableOut {

	return SpendableOut{
		prevOut: wire.OutPoint{
			Hash:  tx.TxHash(),
			Index: txOutIndex,
		},
		blockHeight: blockHeight,
		amount:      btcutil.Amount(tx.TxOut[txOutIndex].Value),
	}
}

// genNode is the header context the generator keeps for each block so it can
// compute the required difficulty the same way validation does.
type genNode struct {
	parent    *genNode
	hash      chainhash.Hash
	height    int32
	bits      uint32
	timestamp int64
}

func (n *genNode) Height() int32             { return n.height }
func (n *genNode) Bits() uint32              { return n.bits }
func (n *genNode) Timestamp() int64          { return n.timestamp }
func (n *genNode) BlockHash() chainhash.Hash { return n.hash }

func (n *genNode) Parent() blockchain.HeaderCtx {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *genNode) RelativeAncestorCtx(distance int32) blockchain.HeaderCtx {
	node := n
	for ; node != nil && distance > 0; distance-- {
		node = node.parent
	}
	if node == nil {
		return nil
	}
	return node
}

// Generator houses state used to ease the process of generating test blocks
// that build from one another along with housing other useful things such as
// available spendable outputs and the payment script used throughout the
// tests.
type Generator struct {
	params       *chaincfg.Params
	privKey      *btcec.PrivateKey
	payScript    []byte
	tip          *wire.MsgBlock
	tipName      string
	tipNode      *genNode
	blocksByName map[string]*wire.MsgBlock
	nodes        map[chainhash.Hash]*genNode

	// Used for tracking spendable coinbase outputs.
	spendableOuts []SpendableOut
}

// MakeGenerator returns a generator instance initialized with the genesis block
// as the tip.
func MakeGenerator(params *chaincfg.Params) (Generator, error) {
	privKey, pubKey := btcec.PrivKeyFromBytes(generatorKeySeed)
	payScript, err := txscript.PayToPubKeyHashScript(
		btcutil.Hash160(pubKey.SerializeCompressed()))
	if err != nil {
		return Generator{}, err
	}

	genesis := params.GenesisBlock
	node := &genNode{
		hash:      genesis.BlockHash(),
		bits:      genesis.Header.Bits,
		timestamp: genesis.Header.Timestamp.Unix(),
	}
	return Generator{
		params:       params,
		privKey:      privKey,
		payScript:    payScript,
		tip:          genesis,
		tipName:      "genesis",
		tipNode:      node,
		blocksByName: map[string]*wire.MsgBlock{"genesis": genesis},
		nodes:        map[chainhash.Hash]*genNode{node.hash: node},
	}, nil
}

// Params returns the chain params associated with the generator instance.
func (g *Generator) Params() *chaincfg.Params {
	return g.params
}

// Tip returns the current tip block of the generator instance.
func (g *Generator) Tip() *wire.MsgBlock {
	return g.tip
}

// TipName returns the name of the current tip block of the generator instance.
func (g *Generator) TipName() string {
	return g.tipName
}

// TipHeight returns the height of the current tip block.
func (g *Generator) TipHeight() int32 {
	return g.tipNode.height
}

// BlockByName returns the block associated with the provided block name.  It
// will panic if the specified block name does not exist.
func (g *Generator) BlockByName(blockName string) *wire.MsgBlock {
	block, ok := g.blocksByName[blockName]
	if !ok {
		panic(fmt.Sprintf("block name %s does not exist", blockName))
	}
	return block
}

// PayScript returns the script every generated output pays to.
func (g *Generator) PayScript() []byte {
	return g.payScript
}

// PrivKey returns the key able to spend PayScript.
func (g *Generator) PrivKey() *btcec.PrivateKey {
	return g.privKey
}

// CreateCoinbaseTx returns a coinbase transaction paying the block subsidy
// plus fees to the generator's payment script, and the founders reward to the
// founders script when one is due.  The signature script pushes the height
// followed by OP_0 to satisfy the minimum length.
func (g *Generator) CreateCoinbaseTx(blockHeight int32, fees int64) *wire.MsgTx {
	coinbaseScript, err := txscript.NewScriptBuilder().
		AddInt64(int64(blockHeight)).AddInt64(0).Script()
	if err != nil {
		panic(err)
	}

	subsidy := blockchain.CalcBlockSubsidy(blockHeight, g.params)
	reward, foundersScript := blockchain.FoundersReward(blockHeight,
		g.params)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		// Coinbase transactions have no inputs, so previous outpoint is
		// zero hash and max index.
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		Sequence:        wire.MaxTxInSequenceNum,
		SignatureScript: coinbaseScript,
	})
	tx.AddTxOut(wire.NewTxOut(subsidy+fees-reward, g.payScript))
	if foundersScript != nil {
		tx.AddTxOut(wire.NewTxOut(reward, foundersScript))
	}
	return tx
}

// SignTx signs every input of tx, all of which must spend outputs paying to
// the generator's payment script.
func (g *Generator) SignTx(tx *wire.MsgTx) error {
	for i, txIn := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(tx, i, g.payScript,
			txscript.SigHashAll, g.privKey, true)
		if err != nil {
			return err
		}
		txIn.SignatureScript = sigScript
	}
	return nil
}

// CreateSpendTx creates a signed transaction that spends from the provided
// spendable output to the generator's payment script, paying the given fee.
func (g *Generator) CreateSpendTx(spend *SpendableOut, fee btcutil.Amount) *wire.MsgTx {
	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spend.prevOut,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spendTx.AddTxOut(wire.NewTxOut(int64(spend.amount-fee), g.payScript))
	if err := g.SignTx(spendTx); err != nil {
		panic(err)
	}
	return spendTx
}

// CreateJoinSplitTx creates a signed transaction that shields the provided
// spendable output, less the fee, through a single JoinSplit against anchor.
// The nullifiers and the note commitments derived from them identify the
// JoinSplit.  The proof and the JoinSplit signature are left zero.
func (g *Generator) CreateJoinSplitTx(spend *SpendableOut, anchor chainhash.Hash,
	nullifiers [wire.NumJoinSplitInputs]chainhash.Hash,
	fee btcutil.Amount) *wire.MsgTx {

	js := &wire.JSDescription{
		VPubOld:    int64(spend.amount - fee),
		Anchor:     anchor,
		Nullifiers: nullifiers,
	}
	for i := range js.Commitments {
		js.Commitments[i] = chainhash.HashH(append(nullifiers[0][:],
			byte(i)))
	}

	tx := wire.NewMsgTx(wire.JoinSplitTxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spend.prevOut,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddJoinSplit(js)
	if err := g.SignTx(tx); err != nil {
		panic(err)
	}
	return tx
}

// solveBlock attempts to find a nonce which makes the passed block header hash
// to a value less than the target difficulty.  When a successful solution is
// found true is returned and the nonce field of the passed header is updated
// with the solution.  False is returned if no solution exists.
func solveBlock(header *wire.BlockHeader) bool {
	targetDifficulty := blockchain.CompactToBig(header.Bits)
	for i := uint64(0); i < 1<<32; i++ {
		binary.LittleEndian.PutUint64(header.Nonce[:8], i)
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(targetDifficulty) <= 0 {
			return true
		}
	}
	return false
}

// AdditionalTx returns a munge function that appends tx to a block.
func AdditionalTx(tx *wire.MsgTx) func(*wire.MsgBlock) {
	return func(b *wire.MsgBlock) {
		b.AddTransaction(tx)
	}
}

// ReplaceBits returns a munge function that sets the difficulty bits.
func ReplaceBits(bits uint32) func(*wire.MsgBlock) {
	return func(b *wire.MsgBlock) {
		b.Header.Bits = bits
	}
}

// ReplaceCoinbaseSigScript returns a munge function that replaces the
// signature script of the coinbase.
func ReplaceCoinbaseSigScript(script []byte) func(*wire.MsgBlock) {
	return func(b *wire.MsgBlock) {
		b.Transactions[0].TxIn[0].SignatureScript = script
	}
}

// NextBlock builds a new block that extends the current tip associated with
// the generator and updates the generator's tip to the newly generated block.
//
// The block will include the following:
//   - A coinbase that pays the required subsidy plus fees to the payment
//     script, plus the founders reward when due
//   - When a spendable output is provided, a transaction that spends it
//     paying a fee of one thousand atoms
//
// Additionally, if one or more munge functions are specified, they will be
// invoked with the block prior to solving it.  This provides callers with the
// opportunity to modify the block which is especially useful for testing.
// The merkle root is recalculated after the mungers run.
func (g *Generator) NextBlock(blockName string, spend *SpendableOut,
	mungers ...func(*wire.MsgBlock)) *wire.MsgBlock {

	const spendFee = btcutil.Amount(1000)

	nextHeight := g.tipNode.height + 1
	var txns []*wire.MsgTx
	var fees int64
	if spend != nil {
		txns = append(txns, g.CreateSpendTx(spend, spendFee))
		fees += int64(spendFee)
	}
	coinbase := g.CreateCoinbaseTx(nextHeight, fees)
	txns = append([]*wire.MsgTx{coinbase}, txns...)

	ts := time.Unix(g.tipNode.timestamp, 0).Add(
		g.params.TargetTimePerBlock)
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   blockchain.MinBlockVersion,
			PrevBlock: g.tipNode.hash,
			Timestamp: ts,
			Bits: blockchain.CalcNextRequiredDifficulty(g.tipNode,
				ts, g.params),
		},
		Transactions: txns,
	}

	for _, f := range mungers {
		f(block)
	}
	block.Header.MerkleRoot = blockchain.CalcMerkleRoot(block.Transactions)
	if !solveBlock(&block.Header) {
		panic(fmt.Sprintf("unable to solve block at height %d",
			nextHeight))
	}

	node := &genNode{
		parent:    g.tipNode,
		hash:      block.BlockHash(),
		height:    nextHeight,
		bits:      block.Header.Bits,
		timestamp: block.Header.Timestamp.Unix(),
	}
	g.nodes[node.hash] = node
	g.blocksByName[blockName] = block
	g.tip = block
	g.tipName = blockName
	g.tipNode = node
	g.spendableOuts = append(g.spendableOuts,
		MakeSpendableOutForTx(block.Transactions[0], nextHeight, 0))
	return block
}

// OldestCoinbaseOut removes the oldest coinbase output that was previously
// saved to the generator and returns the set as a slice.
func (g *Generator) OldestCoinbaseOut() SpendableOut {
	op := g.spendableOuts[0]
	g.spendableOuts = g.spendableOuts[1:]
	return op
}

// SetTip changes the tip of the instance to the block with the provided name.
// This is useful since the tip is used for things such as generating
// subsequent blocks.  Spendable outputs collected from blocks past the new
// tip are dropped.
func (g *Generator) SetTip(blockName string) {
	block := g.BlockByName(blockName)
	node := g.nodes[block.BlockHash()]
	g.tip = block
	g.tipName = blockName
	g.tipNode = node

	kept := g.spendableOuts[:0]
	for _, out := range g.spendableOuts {
		if out.blockHeight <= node.height {
			kept = append(kept, out)
		}
	}
	g.spendableOuts = kept
}
