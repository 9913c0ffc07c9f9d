// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/blockchain/chaingen"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

// poolHarness couples a chain and its block generator with a pool validating
// against it.
type poolHarness struct {
	t         *testing.T
	g         *chaingen.Generator
	chain     *blockchain.MemChain
	pool      *TxPool
	estimator *FeeEstimator
	ntfns     []*Notification
}

// testPolicy returns the relay policy of a standard node.
func testPolicy() Policy {
	return Policy{
		MaxTxVersion:   DefaultMaxTxVersion,
		MaxSigOpsPerTx: DefaultMaxSigOpsPerTx,
		MinRelayTxFee:  mining.DefaultMinRelayTxFee,
	}
}

func newPoolHarness(t *testing.T, policy Policy, addrIndex bool) *poolHarness {
	t.Helper()

	params := &chaincfg.RegressionNetParams
	g, err := chaingen.MakeGenerator(params)
	require.NoError(t, err)

	chain, err := blockchain.New(&blockchain.Config{
		ChainParams: params,
		Verifier:    txscript.NewVerifier(),
	})
	require.NoError(t, err)

	estimator := NewFeeEstimator(DefaultEstimateFeeMaxRollback,
		DefaultEstimateFeeMinRegisteredBlocks, policy.MinRelayTxFee)
	pool := New(&Config{
		Policy:       policy,
		Chain:        chain,
		Verifier:     txscript.NewVerifier(),
		Proofs:       blockchain.DisabledProofVerifier{},
		FeeEstimator: estimator,
		AddrIndex:    addrIndex,
	})

	h := &poolHarness{
		t:         t,
		g:         &g,
		chain:     chain,
		pool:      pool,
		estimator: estimator,
	}
	pool.Subscribe(func(n *Notification) {
		h.ntfns = append(h.ntfns, n)
	})
	return h
}

// advance connects n generated blocks to the chain.
func (h *poolHarness) advance(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("b%d", h.g.TipHeight()+1)
		block := h.g.NextBlock(name, nil)
		require.NoError(h.t, h.chain.ConnectBlock(block,
			blockchain.BFNone))
	}
}

// mature connects enough blocks for the first n coinbases to be spendable.
func (h *poolHarness) mature(n int) {
	h.advance(int(h.chain.ChainParams().CoinbaseMaturity) + n - 1)
}

// mine connects a block holding txs and updates the pool for it.
func (h *poolHarness) mine(txs ...*wire.MsgTx) *wire.MsgBlock {
	h.t.Helper()

	mungers := make([]func(*wire.MsgBlock), 0, len(txs))
	for _, tx := range txs {
		mungers = append(mungers, chaingen.AdditionalTx(tx))
	}
	name := fmt.Sprintf("b%d", h.g.TipHeight()+1)
	block := h.g.NextBlock(name, nil, mungers...)
	require.NoError(h.t, h.chain.ConnectBlock(block, blockchain.BFNone))
	h.pool.RemoveForBlock(block.Transactions, h.chain.BestHeight())
	return block
}

// spend returns a transaction spending the oldest unspent coinbase.
func (h *poolHarness) spend(fee btcutil.Amount) *wire.MsgTx {
	out := h.g.OldestCoinbaseOut()
	return h.g.CreateSpendTx(&out, fee)
}

// spendChild returns a transaction spending the first output of parent.
func (h *poolHarness) spendChild(parent *wire.MsgTx, fee btcutil.Amount) *wire.MsgTx {
	out := chaingen.MakeSpendableOutForTx(parent, mining.UnminedHeight, 0)
	return h.g.CreateSpendTx(&out, fee)
}

// accept requires the pool to accept tx as a new transaction.
func (h *poolHarness) accept(tx *wire.MsgTx) *TxDesc {
	h.t.Helper()
	txD, state := h.pool.MaybeAcceptTransaction(tx, true)
	require.Nil(h.t, state, "unexpected rejection of %v", tx.TxHash())
	require.NotNil(h.t, txD)
	return txD
}

// reject requires the pool to refuse tx and returns the reason.
func (h *poolHarness) reject(tx *wire.MsgTx, isNew bool) *ValidationState {
	h.t.Helper()
	txD, state := h.pool.MaybeAcceptTransaction(tx, isNew)
	require.Nil(h.t, txD)
	require.NotNil(h.t, state, "transaction %v was accepted", tx.TxHash())
	return state
}

// removed returns the transactions removed for reason, in notification
// order.
func (h *poolHarness) removed(reason RemovalReason) []chainhash.Hash {
	var hashes []chainhash.Hash
	for _, n := range h.ntfns {
		if n.Type != NTTxRemoved {
			continue
		}
		data := n.Data.(*TxRemovedData)
		if data.Reason == reason {
			hashes = append(hashes, data.Desc.Hash)
		}
	}
	return hashes
}

// requireChainRule requires state to carry the given chain rule violation.
func requireChainRule(t *testing.T, state *ValidationState,
	code blockchain.ErrorCode) {

	t.Helper()
	var rerr blockchain.RuleError
	require.True(t, errors.As(state.Err, &rerr), "%v", state)
	require.Equal(t, code, rerr.ErrorCode, "%v", state)
}

func TestAcceptTransaction(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	parent := h.spend(1000)
	child := h.spendChild(parent, 2000)

	version := h.pool.PoolVersion()
	parentDesc := h.accept(parent)
	childDesc := h.accept(child)
	require.Equal(t, version+2, h.pool.PoolVersion())

	require.Equal(t, 2, h.pool.Count())
	require.True(t, h.pool.HaveTransaction(&parentDesc.Hash))
	require.True(t, h.pool.IsSpent(parent.TxIn[0].PreviousOutPoint))
	require.True(t, h.pool.IsSpent(child.TxIn[0].PreviousOutPoint))
	require.False(t, h.pool.HasNoInputsOf(child))
	require.True(t, h.pool.HasNoInputsOf(parent))
	require.EqualValues(t, parent.SerializeSize()+child.SerializeSize(),
		h.pool.TotalTxSize())
	require.Equal(t, parentDesc.UsageSize+childDesc.UsageSize,
		h.pool.DynamicMemoryUsage())
	require.NoError(t, h.pool.Check())

	// The entries describe the transactions as accepted at the tip.
	require.Equal(t, int64(1000), parentDesc.Fee)
	require.Equal(t, h.chain.BestHeight(), parentDesc.Height)
	require.Equal(t, mining.FeeRate(1000, parent.SerializeSize()),
		parentDesc.FeePerKB)
	require.True(t, parentDesc.HadNoDependencies)
	require.False(t, childDesc.HadNoDependencies)
	require.Greater(t, parentDesc.StartingPriority, 0.0)
	require.Zero(t, childDesc.StartingPriority)

	fetched, err := h.pool.FetchTxDesc(&childDesc.Hash)
	require.NoError(t, err)
	require.Same(t, childDesc, fetched)
	_, err = h.pool.FetchTransaction(&chainhash.Hash{})
	require.Error(t, err)

	// Mining descriptors are copies.
	descs := h.pool.MiningDescs()
	require.Len(t, descs, 2)
	for _, desc := range descs {
		desc.Fee = -1
	}
	require.Equal(t, int64(1000), parentDesc.Fee)

	require.Len(t, h.ntfns, 2)
	require.Equal(t, NTTxAccepted, h.ntfns[0].Type)
	require.Same(t, parentDesc, h.ntfns[0].Data.(*TxDesc))
}

func TestRejectTransaction(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(2)

	out := h.g.OldestCoinbaseOut()
	tx := h.g.CreateSpendTx(&out, 1000)
	h.accept(tx)

	// The same transaction again.
	state := h.reject(tx, true)
	require.Equal(t, PolicyRejection, state.Kind)
	require.Equal(t, wire.RejectDuplicate, state.RejectCode)
	require.Zero(t, state.BanScore)

	// A different spend of the same output.
	state = h.reject(h.g.CreateSpendTx(&out, 2000), true)
	require.Equal(t, PolicyRejection, state.Kind)
	require.Equal(t, wire.RejectDuplicate, state.RejectCode)

	// A coinbase on its own.
	state = h.reject(h.g.Tip().Transactions[0], true)
	require.Equal(t, wire.RejectInvalid, state.RejectCode)

	// An output nobody has.
	ghost := wire.NewMsgTx(wire.TxVersion)
	ghost.AddTxOut(wire.NewTxOut(5000, h.g.PayScript()))
	missing := h.spendChild(ghost, 1000)
	state = h.reject(missing, true)
	require.Equal(t, ConsensusInvalid, state.Kind)
	requireChainRule(t, state, blockchain.ErrMissingTxOut)
	require.Zero(t, state.BanScore)

	// Not remembered as rejected, so the reason stays the same.
	state = h.reject(missing, true)
	requireChainRule(t, state, blockchain.ErrMissingTxOut)

	// The coinbase of block 3 matures at height 103, one block too late.
	h.g.OldestCoinbaseOut()
	immature := h.spend(1000)
	state = h.reject(immature, true)
	requireChainRule(t, state, blockchain.ErrImmatureSpend)
	require.Zero(t, state.BanScore)
}

func TestRejectInvalidScript(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	tx := h.spend(1000)
	tx.TxOut[0].Value--

	state := h.reject(tx, true)
	require.Equal(t, ConsensusInvalid, state.Kind)
	requireChainRule(t, state, blockchain.ErrScriptValidation)
	require.EqualValues(t, banScoreConsensus, state.BanScore)
	require.Equal(t, "mandatory-script-verify-flag-failed", state.Reason)

	// Remembered until the next block.
	state = h.reject(tx, true)
	require.Equal(t, PolicyRejection, state.Kind)
	require.Equal(t, wire.RejectInvalid, state.RejectCode)
	require.Contains(t, state.Reason, "recently rejected")

	h.mine()
	state = h.reject(tx, true)
	requireChainRule(t, state, blockchain.ErrScriptValidation)
}

func TestRejectNonStandard(t *testing.T) {
	policy := testPolicy()
	h := newPoolHarness(t, policy, false)
	h.mature(2)

	// An output script of no known form.
	out := h.g.OldestCoinbaseOut()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: out.PrevOut(),
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(int64(out.Amount())-1000,
		[]byte{txscript.OP_TRUE}))
	require.NoError(t, h.g.SignTx(tx))

	state := h.reject(tx, true)
	require.Equal(t, PolicyRejection, state.Kind)
	require.Equal(t, wire.RejectNonstandard, state.RejectCode)

	// Accepted by a node that relays non-standard transactions.
	h.pool.cfg.Policy.AcceptNonStd = true
	h.accept(tx)

	// Signature operations above the cap.
	h.pool.cfg.Policy.AcceptNonStd = false
	h.pool.cfg.Policy.MaxSigOpsPerTx = 0
	state = h.reject(h.spend(1000), true)
	require.Equal(t, wire.RejectNonstandard, state.RejectCode)
	require.Contains(t, state.Reason, "too many sigops")
}

func TestRelayPriority(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	// A free spend of an old coinbase has enough priority.
	parent := h.spend(0)
	h.accept(parent)

	// Its free child has none.
	child := h.spendChild(parent, 0)
	state := h.reject(child, true)
	require.Equal(t, PolicyRejection, state.Kind)
	require.Equal(t, wire.RejectInsufficientFee, state.RejectCode)

	// Transactions restored from a disconnected block skip the floor.
	txD, state := h.pool.MaybeAcceptTransaction(child, false)
	require.Nil(t, state)
	require.NotNil(t, txD)

	// So do transactions when the floor is disabled.
	h.pool.cfg.Policy.DisableRelayPriority = true
	grandchild := h.spendChild(child, 0)
	h.accept(grandchild)
	require.NoError(t, h.pool.Check())
}

func TestRemoveTransactionRecursive(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	// A root with five generations of descendants.
	txs := []*wire.MsgTx{h.spend(1000)}
	for i := 0; i < 5; i++ {
		txs = append(txs, h.spendChild(txs[i], 1000))
	}
	for _, tx := range txs {
		h.accept(tx)
	}
	require.NoError(t, h.pool.Check())

	removed := h.pool.RemoveTransaction(txs[0], true)
	require.Len(t, removed, 6)
	for i, txD := range removed {
		require.Equal(t, txs[i].TxHash(), txD.Hash)
	}
	require.Zero(t, h.pool.Count())
	require.Zero(t, h.pool.TotalTxSize())
	require.Zero(t, h.pool.DynamicMemoryUsage())
	require.Empty(t, h.pool.outpoints)
	require.Len(t, h.removed(RemovedByCaller), 6)

	// Removing only the root leaves its descendants in place.
	for _, tx := range txs {
		h.accept(tx)
	}
	removed = h.pool.RemoveTransaction(txs[0], false)
	require.Len(t, removed, 1)
	require.Equal(t, 5, h.pool.Count())

	// The descendants still go when the root is already gone.
	removed = h.pool.RemoveTransaction(txs[0], true)
	require.Len(t, removed, 5)
	require.Zero(t, h.pool.Count())
	require.NoError(t, h.pool.Check())
}

func TestRemoveForBlock(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(2)

	parent := h.spend(1000)
	child := h.spendChild(parent, 1000)
	h.accept(parent)
	childDesc := h.accept(child)
	h.pool.Prioritise(ptr(parent.TxHash()), 100, 100)

	h.mine(parent)

	// The child stays and now spends a chain output.
	require.False(t, h.pool.HaveTransaction(ptr(parent.TxHash())))
	require.True(t, h.pool.HaveTransaction(&childDesc.Hash))
	require.NoError(t, h.pool.Check())
	require.Equal(t, []chainhash.Hash{parent.TxHash()},
		h.removed(RemovedInBlock))

	// The prioritisation of the confirmed transaction is dropped.
	priority, fee := h.pool.ApplyDeltas(ptr(parent.TxHash()))
	require.Zero(t, priority)
	require.Zero(t, fee)

	// A confirmed transaction is not accepted again, even unchecked.
	state := h.reject(parent, true)
	require.Equal(t, wire.RejectDuplicate, state.RejectCode)
	view := blockchain.NewUtxoViewpoint()
	txD := NewTxDesc(parent, view, h.chain.BestHeight(), 1000, childDesc.Added)
	require.Error(t, h.pool.Admit(txD, view))

	// Once its block is disconnected it is welcome again.
	block := h.g.Tip()
	require.NoError(t, h.chain.DisconnectTip())
	h.g.SetTip(fmt.Sprintf("b%d", h.chain.BestHeight()))
	h.pool.Unconfirm(block.Transactions)
	_, state = h.pool.MaybeAcceptTransaction(parent, false)
	require.Nil(t, state)
	require.Equal(t, 2, h.pool.Count())
	require.NoError(t, h.pool.Check())
}

func TestRemoveForBlockConflicts(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	out := h.g.OldestCoinbaseOut()
	poolTx := h.g.CreateSpendTx(&out, 1000)
	poolChild := h.spendChild(poolTx, 1000)
	h.accept(poolTx)
	h.accept(poolChild)

	// A block confirms a different spend of the same output.
	h.mine(h.g.CreateSpendTx(&out, 5000))

	require.Zero(t, h.pool.Count())
	require.Equal(t, []chainhash.Hash{poolTx.TxHash(), poolChild.TxHash()},
		h.removed(RemovedConflict))
	require.Empty(t, h.pool.outpoints)
	require.NoError(t, h.pool.Check())
}

func TestJoinSplitAdmission(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(4)

	emptyAnchor := h.chain.ShieldedAnchor()
	chainNfs := [wire.NumJoinSplitInputs]chainhash.Hash{
		chainhash.HashH([]byte("chain nf0")),
		chainhash.HashH([]byte("chain nf1")),
	}
	out := h.g.OldestCoinbaseOut()
	h.mine(h.g.CreateJoinSplitTx(&out, emptyAnchor, chainNfs, 1000))
	newAnchor := h.chain.ShieldedAnchor()

	poolNfs := [wire.NumJoinSplitInputs]chainhash.Hash{
		chainhash.HashH([]byte("pool nf0")),
		chainhash.HashH([]byte("pool nf1")),
	}
	out = h.g.OldestCoinbaseOut()
	shielded := h.g.CreateJoinSplitTx(&out, newAnchor, poolNfs, 1000)
	h.accept(shielded)
	require.True(t, h.pool.IsNullifierSpent(&poolNfs[0]))
	require.NoError(t, h.pool.Check())

	// A nullifier already revealed in the pool.
	out = h.g.OldestCoinbaseOut()
	state := h.reject(h.g.CreateJoinSplitTx(&out, newAnchor, poolNfs, 1000),
		true)
	require.Equal(t, wire.RejectDuplicate, state.RejectCode)

	// A nullifier already revealed in the chain.
	state = h.reject(h.g.CreateJoinSplitTx(&out, newAnchor, chainNfs, 1000),
		true)
	require.Equal(t, ConsensusInvalid, state.Kind)
	requireChainRule(t, state, blockchain.ErrNullifierSpent)

	// An anchor the chain never produced.
	freshNfs := [wire.NumJoinSplitInputs]chainhash.Hash{
		chainhash.HashH([]byte("fresh nf0")),
		chainhash.HashH([]byte("fresh nf1")),
	}
	bogus := chainhash.HashH([]byte("not an anchor"))
	state = h.reject(h.g.CreateJoinSplitTx(&out, bogus, freshNfs, 1000),
		true)
	requireChainRule(t, state, blockchain.ErrUnknownAnchor)

	// Disconnecting the block that produced the anchor invalidates the
	// pool transaction proving against it.
	require.NoError(t, h.chain.DisconnectTip())
	require.Error(t, h.pool.Check())
	removed := h.pool.RemoveWithInvalidAnchor(newAnchor)
	require.Len(t, removed, 1)
	require.Equal(t, shielded.TxHash(), removed[0].Hash)
	require.False(t, h.pool.IsNullifierSpent(&poolNfs[0]))
	require.Empty(t, h.pool.nullifiers)
	require.NoError(t, h.pool.Check())
}

func TestRemoveConflictingNullifier(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(2)

	anchor := h.chain.ShieldedAnchor()
	nfs := [wire.NumJoinSplitInputs]chainhash.Hash{
		chainhash.HashH([]byte("nf0")),
		chainhash.HashH([]byte("nf1")),
	}
	out := h.g.OldestCoinbaseOut()
	h.accept(h.g.CreateJoinSplitTx(&out, anchor, nfs, 1000))

	// A block reveals the same nullifiers from another transaction.
	out = h.g.OldestCoinbaseOut()
	h.mine(h.g.CreateJoinSplitTx(&out, anchor, nfs, 1000))

	require.Zero(t, h.pool.Count())
	require.Len(t, h.removed(RemovedConflict), 1)
	require.Empty(t, h.pool.nullifiers)
}

func TestRemoveCoinbaseSpends(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	parent := h.spend(1000)
	child := h.spendChild(parent, 1000)
	h.accept(parent)
	h.accept(child)

	// The coinbase of block 1 is immature for block 100 again.
	disconnected := h.chain.BestHeight()
	require.NoError(t, h.chain.DisconnectTip())
	require.Empty(t, h.pool.RemoveCoinbaseSpends(disconnected+1))
	removed := h.pool.RemoveCoinbaseSpends(disconnected)
	require.Len(t, removed, 2)
	require.Equal(t, parent.TxHash(), removed[0].Hash)
	require.Equal(t, child.TxHash(), removed[1].Hash)
	require.Len(t, h.removed(RemovedImmature), 2)
	require.NoError(t, h.pool.Check())
}

func TestLimitSize(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(3)

	low := h.spend(1000)
	lowChild := h.spendChild(low, 30000)
	mid := h.spend(5000)
	high := h.spend(20000)
	for _, tx := range []*wire.MsgTx{low, lowChild, mid, high} {
		h.accept(tx)
	}

	usage := h.pool.totalUsage
	require.Empty(t, h.pool.LimitSize(usage))

	// The lowest fee rate goes first, taking its descendants along.
	evicted := h.pool.LimitSize(usage - 1)
	require.Equal(t, []chainhash.Hash{low.TxHash(), lowChild.TxHash()},
		evicted)
	require.Equal(t, 2, h.pool.Count())
	require.Len(t, h.removed(RemovedSizeLimit), 2)

	// A fee delta counts toward the fee rate.
	h.pool.Prioritise(ptr(mid.TxHash()), 0, 100000)
	evicted = h.pool.LimitSize(h.pool.totalUsage - 1)
	require.Equal(t, []chainhash.Hash{high.TxHash()}, evicted)

	require.Len(t, h.pool.LimitSize(0), 1)
	require.Zero(t, h.pool.Count())
	require.NoError(t, h.pool.Check())
}

// TestLimitSizeCountsPrioritisations ensures the eviction target is measured
// the same way DynamicMemoryUsage reports it, prioritisation table included.
func TestLimitSizeCountsPrioritisations(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(2)

	low, high := h.spend(1000), h.spend(20000)
	h.accept(low)
	h.accept(high)

	// Adjustments for transactions the pool has never seen still take up
	// room.
	for i := 0; i < 2; i++ {
		hash := chainhash.HashH([]byte{byte(i)})
		h.pool.Prioritise(&hash, 1, 0)
	}
	entries := h.pool.totalUsage
	usage := h.pool.DynamicMemoryUsage()
	require.Greater(t, usage, entries)

	// The entries alone fit, the table pushes the pool over.
	evicted := h.pool.LimitSize(entries)
	require.Equal(t, []chainhash.Hash{low.TxHash()}, evicted)
	require.LessOrEqual(t, h.pool.DynamicMemoryUsage(), entries)
	require.Equal(t, 1, h.pool.Count())

	require.Empty(t, h.pool.LimitSize(h.pool.DynamicMemoryUsage()))
	require.NoError(t, h.pool.Check())
}

func TestAcceptPoolFull(t *testing.T) {
	policy := testPolicy()
	policy.MaxPoolUsage = 1
	h := newPoolHarness(t, policy, false)
	h.mature(1)

	state := h.reject(h.spend(1000), true)
	require.Equal(t, ResourceExhausted, state.Kind)
	require.Equal(t, wire.RejectInsufficientFee, state.RejectCode)
	require.EqualValues(t, banScoreResource, state.BanScore)
	require.Zero(t, h.pool.Count())
}

func TestPrioritise(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	hash := chainhash.HashH([]byte("prioritised"))

	version := h.pool.PoolVersion()
	h.pool.Prioritise(&hash, 100, 500)
	h.pool.Prioritise(&hash, 50, -200)
	require.Equal(t, version+2, h.pool.PoolVersion())

	priority, fee := h.pool.ApplyDeltas(&hash)
	require.Equal(t, 150.0, priority)
	require.Equal(t, int64(300), fee)

	h.pool.ClearPrioritisation(&hash)
	priority, fee = h.pool.ApplyDeltas(&hash)
	require.Zero(t, priority)
	require.Zero(t, fee)
}

// TestMiningDescsCarryDeltas ensures the adjustments reach the template
// builder in the same snapshot as the descriptors.
func TestMiningDescsCarryDeltas(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(2)

	boosted, plain := h.spend(1000), h.spend(1000)
	h.accept(boosted)
	h.accept(plain)
	h.pool.Prioritise(ptr(boosted.TxHash()), 25, 4000)

	descs := h.pool.MiningDescs()
	require.Len(t, descs, 2)
	for _, desc := range descs {
		switch desc.Hash {
		case boosted.TxHash():
			require.Equal(t, 25.0, desc.PriorityDelta)
			require.Equal(t, int64(4000), desc.FeeDelta)
			require.Equal(t, int64(1000), desc.Fee)
		case plain.TxHash():
			require.Zero(t, desc.PriorityDelta)
			require.Zero(t, desc.FeeDelta)
		default:
			t.Fatalf("unexpected descriptor %v", desc.Hash)
		}
	}

	// Later adjustments leave the snapshot alone and never leak into
	// the pool entry.
	h.pool.Prioritise(ptr(plain.TxHash()), 0, 700)
	for _, desc := range descs {
		if desc.Hash == plain.TxHash() {
			require.Zero(t, desc.FeeDelta)
		}
	}
	entry, err := h.pool.FetchTxDesc(ptr(boosted.TxHash()))
	require.NoError(t, err)
	require.Zero(t, entry.FeeDelta)
}

// TestNotificationsCallIntoPool ensures subscribers are notified after the
// pool lock is released and see the change they are told about.
func TestNotificationsCallIntoPool(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	type seen struct {
		typ     NotificationType
		present bool
		count   int
	}
	var got []seen
	h.pool.Subscribe(func(n *Notification) {
		var hash chainhash.Hash
		switch data := n.Data.(type) {
		case *TxDesc:
			hash = data.Hash
		case *TxRemovedData:
			hash = data.Desc.Hash
		}
		got = append(got, seen{
			typ:     n.Type,
			present: h.pool.HaveTransaction(&hash),
			count:   h.pool.Count(),
		})
	})

	parent := h.spend(1000)
	child := h.spendChild(parent, 1000)

	var states []*ValidationState
	var removed []*TxDesc
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tx := range []*wire.MsgTx{parent, child} {
			_, state := h.pool.MaybeAcceptTransaction(tx, true)
			states = append(states, state)
		}
		removed = h.pool.RemoveTransaction(parent, true)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pool blocked while sending notifications")
	}
	require.Equal(t, []*ValidationState{nil, nil}, states)
	require.Len(t, removed, 2)

	require.Equal(t, []seen{
		{NTTxAccepted, true, 1},
		{NTTxAccepted, true, 2},
		{NTTxRemoved, false, 0},
		{NTTxRemoved, false, 0},
	}, got)
}

func TestCheckDetectsCorruption(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	tx := h.spend(1000)
	h.accept(tx)
	require.NoError(t, h.pool.Check())

	var assert AssertError
	h.pool.totalTxSize++
	require.ErrorAs(t, h.pool.Check(), &assert)
	h.pool.totalTxSize--

	op := tx.TxIn[0].PreviousOutPoint
	txD := h.pool.outpoints[op]
	delete(h.pool.outpoints, op)
	require.ErrorAs(t, h.pool.Check(), &assert)
	h.pool.outpoints[op] = txD
	require.NoError(t, h.pool.Check())

	state := NewValidationState(h.pool.Check())
	require.Nil(t, state)
}

func TestAddrIndex(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), true)
	h.mature(1)

	out := h.g.OldestCoinbaseOut()
	tx := h.g.CreateSpendTx(&out, 1000)
	txD := h.accept(tx)

	addr, ok := addressOf(h.g.PayScript())
	require.True(t, ok)
	require.Equal(t, AddrTypePubKeyHash, addr.Type)

	deltas, ok := h.pool.AddrDeltas([]Address{addr})
	require.True(t, ok)
	require.Len(t, deltas, 2, spew.Sdump(deltas))

	receipt, spend := deltas[0], deltas[1]
	require.False(t, receipt.Key.Spending)
	require.Equal(t, int64(out.Amount())-1000, receipt.Amount)
	require.True(t, spend.Key.Spending)
	require.Equal(t, -int64(out.Amount()), spend.Amount)
	require.Equal(t, out.PrevOut(), spend.PrevOut)
	require.Equal(t, txD.Added.Unix(), spend.Time)

	info, ok := h.pool.SpentInfo(out.PrevOut())
	require.True(t, ok)
	require.Equal(t, SpentInfo{
		TxHash:      txD.Hash,
		InputIndex:  0,
		BlockHeight: -1,
		Amount:      int64(out.Amount()),
		Address:     addr,
	}, info)

	h.pool.RemoveTransaction(tx, true)
	deltas, ok = h.pool.AddrDeltas([]Address{addr})
	require.True(t, ok)
	require.Empty(t, deltas)
	_, ok = h.pool.SpentInfo(out.PrevOut())
	require.False(t, ok)
	require.Empty(t, h.pool.addrIndex.deltas)
	require.Empty(t, h.pool.addrIndex.spentByTx)
}

func TestAddrIndexDisabled(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	_, ok := h.pool.AddrDeltas(nil)
	require.False(t, ok)
	_, ok = h.pool.SpentInfo(wire.OutPoint{})
	require.False(t, ok)
}

func TestCurrentPriority(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(1000, nil))
	txD := &TxDesc{TxDesc: mining.TxDesc{
		Tx:               tx,
		Height:           10,
		Fee:              100,
		ModifiedSize:     100,
		StartingPriority: 5,
	}}

	require.Equal(t, 5.0, txD.CurrentPriority(9))
	require.Equal(t, 5.0, txD.CurrentPriority(10))
	require.Equal(t, 27.0, txD.CurrentPriority(12))
}

func TestPoolEstimates(t *testing.T) {
	h := newPoolHarness(t, testPolicy(), false)
	h.mature(1)

	// Estimates need a few blocks first.
	_, err := h.pool.EstimateFee(1)
	require.Error(t, err)

	tx := h.spend(10000)
	h.accept(tx)
	h.mine(tx)
	h.mine()
	h.mine()

	rate, err := h.pool.EstimateFee(1)
	require.NoError(t, err)
	require.Equal(t, NewSatoshiPerByte(10000, uint32(tx.SerializeSize())),
		rate)
	_, err = h.pool.EstimatePriority(1)
	require.NoError(t, err)

	noEstimator := New(&Config{Chain: h.chain})
	_, err = noEstimator.EstimateFee(1)
	require.ErrorIs(t, err, errNoEstimator)
}

// ptr returns a pointer to a copy of hash.
func ptr(hash chainhash.Hash) *chainhash.Hash {
	return &hash
}
