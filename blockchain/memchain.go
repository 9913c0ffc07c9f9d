// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// blockNode represents a block within the main chain.
type blockNode struct {
	// parent is the parent block for this node.
	parent *blockNode

	// hash is the double sha 256 of the block.
	hash chainhash.Hash

	// workSum is the total amount of work in the chain up to and including
	// this node.
	workSum *big.Int

	// height is the position in the block chain.
	height int32

	// Some fields from block headers to aid in best chain selection and
	// reconstructing headers from memory.
	bits      uint32
	timestamp int64

	// anchor is the commitment anchor after this block.
	anchor chainhash.Hash

	// block and the outputs it spent, kept to disconnect it.
	block *wire.MsgBlock
	stxos []spentTxOut
}

// Ensure blockNode implements the HeaderCtx interface.
var _ HeaderCtx = (*blockNode)(nil)

// Height returns the blockNode's height in the chain.
//
// NOTE: Part of the HeaderCtx interface.
func (node *blockNode) Height() int32 {
	return node.height
}

// Bits returns the blockNode's nBits.
//
// NOTE: Part of the HeaderCtx interface.
func (node *blockNode) Bits() uint32 {
	return node.bits
}

// Timestamp returns the blockNode's timestamp.
//
// NOTE: Part of the HeaderCtx interface.
func (node *blockNode) Timestamp() int64 {
	return node.timestamp
}

// BlockHash returns the hash of the block.
//
// NOTE: Part of the HeaderCtx interface.
func (node *blockNode) BlockHash() chainhash.Hash {
	return node.hash
}

// Parent returns the blockNode's parent.
//
// NOTE: Part of the HeaderCtx interface.
func (node *blockNode) Parent() HeaderCtx {
	if node.parent == nil {
		// This is required since node.parent is a *blockNode and if we
		// do not explicitly return nil here, the caller may fail when
		// nil-checking this.
		return nil
	}

	return node.parent
}

// RelativeAncestorCtx returns the blockNode's ancestor that is distance blocks
// before it in the chain. This is equivalent to the RelativeAncestor function
// below except that the return type is different.
//
// NOTE: Part of the HeaderCtx interface.
func (node *blockNode) RelativeAncestorCtx(distance int32) HeaderCtx {
	ancestor := node.RelativeAncestor(distance)
	if ancestor == nil {
		// This is required since RelativeAncestor returns a *blockNode
		// and if we do not explicitly return nil here, the caller may
		// fail when nil-checking this.
		return nil
	}

	return ancestor
}

// RelativeAncestor returns the ancestor block node a relative 'distance' blocks
// before this node.  This is equivalent to calling Ancestor with the node's
// height minus provided distance.
func (node *blockNode) RelativeAncestor(distance int32) *blockNode {
	if distance < 0 || distance > node.height {
		return nil
	}
	n := node
	for ; n != nil && distance > 0; distance-- {
		n = n.parent
	}
	return n
}

// Config is a descriptor which specifies the in-memory chain instance
// configuration.
type Config struct {
	// ChainParams identifies which chain parameters the chain is
	// associated with.
	//
	// This field is required.
	ChainParams *chaincfg.Params

	// Verifier checks the transparent input scripts of connected blocks.
	//
	// This field is required.
	Verifier InputVerifier

	// Proofs checks the JoinSplits of connected blocks.  It defaults to
	// DisabledProofVerifier.
	Proofs ProofVerifier

	// TimeSource bounds how far in the future block timestamps may be.
	// No bound is applied when it is nil.
	TimeSource MedianTimeSource
}

// MemChain is a main chain held entirely in memory.  It validates and
// connects blocks to its tip, disconnects them again, and tracks the unspent
// outputs, revealed nullifiers and commitment anchors of the chain so it can
// serve as the ChainView of the mempool and the block template generator.
//
// MemChain is safe for concurrent access.
type MemChain struct {
	params     *chaincfg.Params
	verifier   InputVerifier
	proofs     ProofVerifier
	timeSource MedianTimeSource

	// chainLock protects the fields below it.
	chainLock sync.RWMutex
	nodes     []*blockNode
	utxos     *UtxoViewpoint
	anchors   map[chainhash.Hash]int

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// Ensure MemChain implements the ChainView interface.
var _ ChainView = (*MemChain)(nil)

// New returns an in-memory chain holding only the genesis block of the
// configured network.  The outputs of the genesis coinbase are not spendable.
func New(config *Config) (*MemChain, error) {
	if config.ChainParams == nil {
		return nil, AssertError("blockchain.New chain parameters " +
			"nil")
	}
	if config.Verifier == nil {
		return nil, AssertError("blockchain.New input verifier nil")
	}

	proofs := config.Proofs
	if proofs == nil {
		proofs = DisabledProofVerifier{}
	}

	genesis := config.ChainParams.GenesisBlock
	node := &blockNode{
		hash:      genesis.Header.BlockHash(),
		workSum:   CalcWork(genesis.Header.Bits),
		bits:      genesis.Header.Bits,
		timestamp: genesis.Header.Timestamp.Unix(),
		anchor:    NextAnchor(EmptyAnchor, genesis),
		block:     genesis,
	}

	utxos := NewUtxoViewpoint()
	utxos.SetBestHash(&node.hash)

	c := &MemChain{
		params:     config.ChainParams,
		verifier:   config.Verifier,
		proofs:     proofs,
		timeSource: config.TimeSource,
		nodes:      []*blockNode{node},
		utxos:      utxos,
		anchors:    map[chainhash.Hash]int{node.anchor: 1},
	}

	log.Infof("Chain state (height %d, hash %v, anchor %v)", node.height,
		node.hash, node.anchor)
	return c, nil
}

// chainState exposes the chain through ChainView without taking chainLock.
// It is only used while the lock is held.
type chainState struct {
	c *MemChain
}

func (s chainState) ChainParams() *chaincfg.Params {
	return s.c.params
}

func (s chainState) Tip() HeaderCtx {
	return s.c.tip()
}

func (s chainState) FetchUtxoEntry(txHash *chainhash.Hash) *UtxoEntry {
	entry := s.c.utxos.LookupEntry(txHash)
	if entry == nil || entry.IsFullySpent() {
		return nil
	}
	return entry.Clone()
}

func (s chainState) ShieldedAnchor() chainhash.Hash {
	return s.c.tip().anchor
}

func (s chainState) HasAnchor(anchor *chainhash.Hash) bool {
	return s.c.anchors[*anchor] > 0
}

func (s chainState) NullifierExists(nullifier *chainhash.Hash) bool {
	return s.c.utxos.HaveNullifier(nullifier)
}

// tip returns the current best block node.  The caller must hold chainLock.
func (c *MemChain) tip() *blockNode {
	return c.nodes[len(c.nodes)-1]
}

// ChainParams returns the parameters of the network the chain is on.
//
// This function is part of the ChainView interface.
func (c *MemChain) ChainParams() *chaincfg.Params {
	return c.params
}

// Tip returns the current best block.
//
// This function is safe for concurrent access and is part of the ChainView
// interface.
func (c *MemChain) Tip() HeaderCtx {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return c.tip()
}

// BestHeight returns the height of the current best block.
func (c *MemChain) BestHeight() int32 {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return c.tip().height
}

// FetchUtxoEntry returns a copy of the unspent outputs of the transaction
// with the given hash, or nil when it has none.
//
// This function is safe for concurrent access and is part of the ChainView
// interface.
func (c *MemChain) FetchUtxoEntry(txHash *chainhash.Hash) *UtxoEntry {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return chainState{c}.FetchUtxoEntry(txHash)
}

// ShieldedAnchor returns the commitment anchor after the tip.
//
// This function is safe for concurrent access and is part of the ChainView
// interface.
func (c *MemChain) ShieldedAnchor() chainhash.Hash {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return c.tip().anchor
}

// HasAnchor returns whether anchor follows some block of the main chain.
//
// This function is safe for concurrent access and is part of the ChainView
// interface.
func (c *MemChain) HasAnchor(anchor *chainhash.Hash) bool {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return c.anchors[*anchor] > 0
}

// NullifierExists returns whether a main chain transaction revealed the
// nullifier.
//
// This function is safe for concurrent access and is part of the ChainView
// interface.
func (c *MemChain) NullifierExists(nullifier *chainhash.Hash) bool {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return c.utxos.HaveNullifier(nullifier)
}

// BlockByHeight returns the main chain block at the given height.
func (c *MemChain) BlockByHeight(height int32) (*wire.MsgBlock, error) {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	if height < 0 || int(height) >= len(c.nodes) {
		return nil, fmt.Errorf("no block at height %d exists", height)
	}
	return c.nodes[height].block, nil
}

// CheckConnectBlockTemplate validates that connecting block to the current
// tip would not break any consensus rule other than the proof of work.
//
// This function is safe for concurrent access.
func (c *MemChain) CheckConnectBlockTemplate(block *wire.MsgBlock) error {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()
	return CheckConnectBlockTemplate(block, chainState{c}, c.verifier,
		c.proofs, c.timeSource)
}

// ConnectBlock validates block and makes it the new tip.  The flags modify
// the checks as described by BehaviorFlags.  Subscribers are notified with
// NTBlockConnected once the chain state is updated.
//
// This function is safe for concurrent access.
func (c *MemChain) ConnectBlock(block *wire.MsgBlock, flags BehaviorFlags) error {
	c.chainLock.Lock()
	tip := c.tip()
	if block.Header.PrevBlock != tip.hash {
		c.chainLock.Unlock()
		str := fmt.Sprintf("block %v does not extend the tip %v",
			block.BlockHash(), tip.hash)
		return ruleError(ErrBadPrevBlock, str)
	}

	err := CheckBlockSanity(block, c.params, c.timeSource, flags)
	if err == nil {
		err = checkBlockContext(block, tip, c.params)
	}
	view := NewUtxoViewpoint()
	stxos := make([]spentTxOut, 0, countSpentOutputs(block))
	if err == nil {
		err = checkConnectBlock(block, tip, chainState{c}, view,
			c.verifier, c.proofs, &stxos)
	}
	if err != nil {
		c.chainLock.Unlock()
		return err
	}

	// Apply the view to the chain state.
	for hash, entry := range view.entries {
		c.utxos.entries[hash] = entry
	}
	for nullifier := range view.nullifiers {
		c.utxos.nullifiers[nullifier] = struct{}{}
	}
	c.utxos.commit()
	c.utxos.SetBestHash(view.BestHash())

	node := &blockNode{
		parent:    tip,
		hash:      block.BlockHash(),
		workSum:   new(big.Int).Add(tip.workSum, CalcWork(block.Header.Bits)),
		height:    tip.height + 1,
		bits:      block.Header.Bits,
		timestamp: block.Header.Timestamp.Unix(),
		anchor:    NextAnchor(tip.anchor, block),
		block:     block,
		stxos:     stxos,
	}
	c.nodes = append(c.nodes, node)
	c.anchors[node.anchor]++
	c.chainLock.Unlock()

	log.Debugf("Connected block %v (height %d, %d transactions)",
		node.hash, node.height, len(block.Transactions))
	c.sendNotification(NTBlockConnected, &BlockNtfnsData{
		Block:  block,
		Height: node.height,
	})
	return nil
}

// DisconnectTip removes the tip block from the chain, restoring the outputs
// and nullifiers it spent.  The genesis block cannot be disconnected.
// Subscribers are notified with NTBlockDisconnected.
//
// This function is safe for concurrent access.
func (c *MemChain) DisconnectTip() error {
	c.chainLock.Lock()
	node := c.tip()
	if node.parent == nil {
		c.chainLock.Unlock()
		return AssertError("cannot disconnect the genesis block")
	}

	err := c.utxos.disconnectTransactions(node.block, node.height,
		node.stxos)
	if err != nil {
		c.chainLock.Unlock()
		return err
	}
	c.utxos.commit()

	if c.anchors[node.anchor]--; c.anchors[node.anchor] <= 0 {
		delete(c.anchors, node.anchor)
	}
	c.nodes[len(c.nodes)-1] = nil
	c.nodes = c.nodes[:len(c.nodes)-1]
	c.chainLock.Unlock()

	log.Debugf("Disconnected block %v (height %d)", node.hash, node.height)
	c.sendNotification(NTBlockDisconnected, &BlockNtfnsData{
		Block:  node.block,
		Height: node.height,
	})
	return nil
}
