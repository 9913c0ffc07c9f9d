// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining_test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// delta is an operator adjustment of a source transaction.
type delta struct {
	priority float64
	fee      int64
}

// fakeTxSource is a TxSource holding a fixed list of transactions.
type fakeTxSource struct {
	mtx     sync.Mutex
	descs   []*mining.TxDesc
	deltas  map[chainhash.Hash]delta
	version uint64
	updated time.Time
}

func newFakeTxSource() *fakeTxSource {
	return &fakeTxSource{deltas: make(map[chainhash.Hash]delta)}
}

func (s *fakeTxSource) add(tx *wire.MsgTx, fee int64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	size := tx.SerializeSize()
	s.descs = append(s.descs, &mining.TxDesc{
		Tx:           tx,
		Hash:         tx.TxHash(),
		Added:        time.Now(),
		Fee:          fee,
		FeePerKB:     mining.FeeRate(fee, size),
		Size:         size,
		ModifiedSize: mining.CalcModifiedSize(tx),
	})
	s.version++
	s.updated = time.Now()
}

func (s *fakeTxSource) prioritise(hash chainhash.Hash, d delta) {
	s.mtx.Lock()
	s.deltas[hash] = d
	s.mtx.Unlock()
}

func (s *fakeTxSource) LastUpdated() time.Time {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.updated
}

func (s *fakeTxSource) PoolVersion() uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.version
}

func (s *fakeTxSource) MiningDescs() []*mining.TxDesc {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	descs := make([]*mining.TxDesc, 0, len(s.descs))
	for _, desc := range s.descs {
		snap := *desc
		d := s.deltas[desc.Hash]
		snap.PriorityDelta, snap.FeeDelta = d.priority, d.fee
		descs = append(descs, &snap)
	}
	return descs
}

// racingTxSource prioritises a transaction as soon as a snapshot of its
// source has been taken.
type racingTxSource struct {
	*fakeTxSource
	hash chainhash.Hash
	d    delta
}

func (s *racingTxSource) MiningDescs() []*mining.TxDesc {
	descs := s.fakeTxSource.MiningDescs()
	s.prioritise(s.hash, s.d)
	return descs
}

// mockVerifier is an InputVerifier whose answers are set by the test.
type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyInputs(tx *wire.MsgTx,
	prevOuts txscript.PrevOutputFetcher, flags txscript.ScriptFlags) (int, error) {

	args := m.Called(tx, prevOuts, flags)
	return args.Int(0), args.Error(1)
}

// templateHarness couples a chain and its block generator with a template
// generator drawing from a fake transaction source.
type templateHarness struct {
	t      *testing.T
	g      *chaingen.Generator
	chain  *blockchain.MemChain
	source *fakeTxSource
	gen    *mining.BlkTmplGenerator
}

func newTemplateHarness(t *testing.T, policy mining.Policy,
	verifier blockchain.InputVerifier) *templateHarness {

	t.Helper()

	params := &chaincfg.RegressionNetParams
	g, err := chaingen.MakeGenerator(params)
	require.NoError(t, err)

	chain, err := blockchain.New(&blockchain.Config{
		ChainParams: params,
		Verifier:    txscript.NewVerifier(),
	})
	require.NoError(t, err)

	if verifier == nil {
		verifier = txscript.NewVerifier()
	}
	source := newFakeTxSource()
	gen := mining.NewBlkTmplGenerator(&mining.Config{
		Policy:     policy,
		TxSource:   source,
		Chain:      chain,
		TimeSource: blockchain.NewMedianTime(),
		Verifier:   verifier,
	})

	return &templateHarness{
		t:      t,
		g:      &g,
		chain:  chain,
		source: source,
		gen:    gen,
	}
}

// advance connects n generated blocks to the chain.
func (h *templateHarness) advance(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("b%d", h.g.TipHeight()+1)
		block := h.g.NextBlock(name, nil)
		require.NoError(h.t, h.chain.ConnectBlock(block,
			blockchain.BFNone))
	}
}

// mature connects enough blocks for the first n coinbases to be spendable.
func (h *templateHarness) mature(n int) {
	h.advance(int(h.chain.ChainParams().CoinbaseMaturity) + n - 1)
}

// spend returns a transaction spending the oldest unspent coinbase.
func (h *templateHarness) spend(fee btcutil.Amount) *wire.MsgTx {
	out := h.g.OldestCoinbaseOut()
	return h.g.CreateSpendTx(&out, fee)
}

// coinbaseValue sums the outputs of the coinbase of block.
func coinbaseValue(block *wire.MsgBlock) int64 {
	var total int64
	for _, txOut := range block.Transactions[0].TxOut {
		total += txOut.Value
	}
	return total
}

func TestNewBlockTemplateEmptyPool(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.advance(3)

	payScript := h.g.PayScript()
	tmpl, err := h.gen.NewBlockTemplate(payScript)
	require.NoError(t, err)

	params := h.chain.ChainParams()
	block := tmpl.Block
	require.Len(t, block.Transactions, 1)
	require.Equal(t, int32(4), tmpl.Height)
	require.Equal(t, blockchain.CalcBlockSubsidy(4, params),
		coinbaseValue(block))
	require.Equal(t, []int64{0}, tmpl.Fees)
	require.True(t, tmpl.ValidPayAddress)
	require.Equal(t, payScript, block.Transactions[0].TxOut[0].PkScript)

	// The header extends the tip at the required difficulty, after the
	// median time of the tip.
	tip := h.chain.Tip()
	header := &block.Header
	require.Equal(t, tip.BlockHash(), header.PrevBlock)
	require.True(t, header.Timestamp.After(
		blockchain.CalcPastMedianTime(tip)))
	require.Equal(t, blockchain.CalcNextRequiredDifficulty(tip,
		header.Timestamp, params), header.Bits)
	require.Equal(t, blockchain.CalcMerkleRoot(block.Transactions),
		header.MerkleRoot)

	// The coinbase commits to the height.
	heightScript, err := txscript.NewScriptBuilder().AddInt64(4).Script()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(
		block.Transactions[0].TxIn[0].SignatureScript, heightScript))

	// Without a pay script the coinbase can be redeemed by anyone.
	tmpl, err = h.gen.NewBlockTemplate(nil)
	require.NoError(t, err)
	require.False(t, tmpl.ValidPayAddress)
	require.Equal(t, []byte{txscript.OP_TRUE},
		tmpl.Block.Transactions[0].TxOut[0].PkScript)
}

func TestNewBlockTemplateDependencies(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.mature(1)

	parent := h.spend(1000)
	out := chaingen.MakeSpendableOutForTx(parent, mining.UnminedHeight, 0)
	child := h.g.CreateSpendTx(&out, 2000)

	// A transaction spending an output nobody has is left out.
	ghost := wire.NewMsgTx(wire.TxVersion)
	ghost.AddTxOut(wire.NewTxOut(5000, h.g.PayScript()))
	missing := chaingen.MakeSpendableOutForTx(ghost, mining.UnminedHeight, 0)
	orphan := h.g.CreateSpendTx(&missing, 1000)

	// The child is offered before its parent.
	h.source.add(orphan, 1000)
	h.source.add(child, 2000)
	h.source.add(parent, 1000)

	tmpl, err := h.gen.NewBlockTemplate(h.g.PayScript())
	require.NoError(t, err)

	txns := tmpl.Block.Transactions
	require.Len(t, txns, 3)
	require.Equal(t, parent.TxHash(), txns[1].TxHash())
	require.Equal(t, child.TxHash(), txns[2].TxHash())
	require.Equal(t, []int64{-3000, 1000, 2000}, tmpl.Fees)
	require.Len(t, tmpl.SigOpCounts, 3)

	subsidy := blockchain.CalcBlockSubsidy(tmpl.Height,
		h.chain.ChainParams())
	require.Equal(t, subsidy+3000, coinbaseValue(tmpl.Block))

	// The template connects to the chain.
	require.NoError(t, h.chain.CheckConnectBlockTemplate(tmpl.Block))
}

func TestNewBlockTemplateDependencyBeforeSize(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.mature(1)

	// The parent pays well but is large, the child spending it pays
	// little but is small.
	out := h.g.OldestCoinbaseOut()
	prevOut := out.PrevOut()
	parent := wire.NewMsgTx(wire.TxVersion)
	parent.AddTxIn(&wire.TxIn{
		PreviousOutPoint: prevOut,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	const (
		numOutputs  = 40
		smallOutput = 1000
		parentFee   = 20000
		childFee    = 200
	)
	bigOutput := int64(out.Amount()) - parentFee -
		(numOutputs-1)*smallOutput
	parent.AddTxOut(wire.NewTxOut(bigOutput, h.g.PayScript()))
	for i := 1; i < numOutputs; i++ {
		parent.AddTxOut(wire.NewTxOut(smallOutput, h.g.PayScript()))
	}
	require.NoError(t, h.g.SignTx(parent))

	parentOut := chaingen.MakeSpendableOutForTx(parent,
		mining.UnminedHeight, 0)
	child := h.g.CreateSpendTx(&parentOut, childFee)

	parentSize, childSize := parent.SerializeSize(), child.SerializeSize()
	require.Greater(t, parentFee/parentSize, 10)
	require.Less(t, childFee/childSize, 2)
	require.Greater(t, parentSize, 1000+childSize+1)

	h.source.add(child, childFee)
	h.source.add(parent, parentFee)

	newGen := func(maxSize uint32) *mining.BlkTmplGenerator {
		policy := mining.DefaultPolicy()
		policy.BlockPrioritySize = 0
		policy.BlockMaxSize = maxSize
		return mining.NewBlkTmplGenerator(&mining.Config{
			Policy:     policy,
			TxSource:   h.source,
			Chain:      h.chain,
			TimeSource: blockchain.NewMedianTime(),
			Verifier:   txscript.NewVerifier(),
		})
	}

	// With room for both the parent goes first.
	tmpl, err := newGen(mining.DefaultBlockMaxSize).NewBlockTemplate(nil)
	require.NoError(t, err)
	txns := tmpl.Block.Transactions
	require.Len(t, txns, 3)
	require.Equal(t, parent.TxHash(), txns[1].TxHash())
	require.Equal(t, child.TxHash(), txns[2].TxHash())

	// Room for the child alone does not let it in ahead of its parent.
	tmpl, err = newGen(uint32(1000 + childSize + 1)).NewBlockTemplate(nil)
	require.NoError(t, err)
	require.Len(t, tmpl.Block.Transactions, 1)
	require.Equal(t, []int64{0}, tmpl.Fees)
}

func TestNewBlockTemplateSizeLimit(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.mature(2)

	first, second := h.spend(1000), h.spend(1000)
	policy := mining.DefaultPolicy()
	policy.BlockMaxSize = uint32(1000 + first.SerializeSize() + 1)
	gen := mining.NewBlkTmplGenerator(&mining.Config{
		Policy:     policy,
		TxSource:   h.source,
		Chain:      h.chain,
		TimeSource: blockchain.NewMedianTime(),
		Verifier:   txscript.NewVerifier(),
	})
	h.source.add(first, 1000)
	h.source.add(second, 1000)

	tmpl, err := gen.NewBlockTemplate(nil)
	require.NoError(t, err)
	require.Len(t, tmpl.Block.Transactions, 2)
}

func TestNewBlockTemplateFeeOrder(t *testing.T) {
	policy := mining.DefaultPolicy()
	policy.BlockPrioritySize = 0
	h := newTemplateHarness(t, policy, nil)
	h.mature(4)

	cheap, pricey := h.spend(1000), h.spend(5000)
	free, favored := h.spend(0), h.spend(0)
	h.source.add(cheap, 1000)
	h.source.add(pricey, 5000)
	h.source.add(free, 0)
	h.source.add(favored, 0)

	// An operator priority boost exempts a transaction from the minimum
	// fee rate without changing the fee it pays.
	h.source.prioritise(favored.TxHash(), delta{priority: 1})

	tmpl, err := h.gen.NewBlockTemplate(nil)
	require.NoError(t, err)

	txns := tmpl.Block.Transactions
	require.Len(t, txns, 4)
	require.Equal(t, pricey.TxHash(), txns[1].TxHash())
	require.Equal(t, cheap.TxHash(), txns[2].TxHash())
	require.Equal(t, favored.TxHash(), txns[3].TxHash())
	require.Equal(t, int64(0), tmpl.Fees[3])
}

func TestNewBlockTemplateFeeDelta(t *testing.T) {
	policy := mining.DefaultPolicy()
	policy.BlockPrioritySize = 0
	h := newTemplateHarness(t, policy, nil)
	h.mature(2)

	low, high := h.spend(1000), h.spend(2000)
	h.source.add(low, 1000)
	h.source.add(high, 2000)

	// A fee delta moves the cheaper transaction ahead.
	h.source.prioritise(low.TxHash(), delta{fee: 5000})

	tmpl, err := h.gen.NewBlockTemplate(nil)
	require.NoError(t, err)

	txns := tmpl.Block.Transactions
	require.Len(t, txns, 3)
	require.Equal(t, low.TxHash(), txns[1].TxHash())
	require.Equal(t, []int64{-3000, 1000, 2000}, tmpl.Fees)
}

// TestNewBlockTemplateDeltaSnapshot ensures a prioritisation landing while a
// template is being built does not mix into the transactions already taken.
func TestNewBlockTemplateDeltaSnapshot(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.mature(2)

	low, high := h.spend(1000), h.spend(2000)
	h.source.add(low, 1000)
	h.source.add(high, 2000)

	policy := mining.DefaultPolicy()
	policy.BlockPrioritySize = 0
	source := &racingTxSource{
		fakeTxSource: h.source,
		hash:         low.TxHash(),
		d:            delta{fee: 5000},
	}
	gen := mining.NewBlkTmplGenerator(&mining.Config{
		Policy:     policy,
		TxSource:   source,
		Chain:      h.chain,
		TimeSource: blockchain.NewMedianTime(),
		Verifier:   txscript.NewVerifier(),
	})

	// The first template sees the pool before the fee delta.
	tmpl, err := gen.NewBlockTemplate(nil)
	require.NoError(t, err)
	txns := tmpl.Block.Transactions
	require.Len(t, txns, 3)
	require.Equal(t, high.TxHash(), txns[1].TxHash())
	require.Equal(t, low.TxHash(), txns[2].TxHash())

	// The next one picks it up.
	tmpl, err = gen.NewBlockTemplate(nil)
	require.NoError(t, err)
	txns = tmpl.Block.Transactions
	require.Len(t, txns, 3)
	require.Equal(t, low.TxHash(), txns[1].TxHash())
}

func TestNewBlockTemplateInvalid(t *testing.T) {
	verifier := &mockVerifier{}
	verifier.On("VerifyInputs", mock.Anything, mock.Anything,
		mock.Anything).Return(0, nil)

	h := newTemplateHarness(t, mining.DefaultPolicy(), verifier)
	h.mature(1)

	// Changing an output after signing breaks the signature, which only
	// the chain notices.
	tx := h.spend(1000)
	tx.TxOut[0].Value -= 1000
	h.source.add(tx, 2000)

	_, err := h.gen.NewBlockTemplate(nil)
	var merr mining.MiningRuleError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, mining.ErrTemplateInvalid, merr.ErrorCode)

	var rerr blockchain.RuleError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, blockchain.ErrScriptValidation, rerr.ErrorCode)
	verifier.AssertCalled(t, "VerifyInputs", tx, mock.Anything,
		txscript.MandatoryVerifyFlags)
}

func TestUpdateExtraNonce(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.advance(1)

	tmpl, err := h.gen.NewBlockTemplate(nil)
	require.NoError(t, err)
	block := tmpl.Block
	oldRoot := block.Header.MerkleRoot

	require.NoError(t, mining.UpdateExtraNonce(block, tmpl.Height, 42))
	want, err := txscript.NewScriptBuilder().AddInt64(int64(tmpl.Height)).
		AddInt64(42).Script()
	require.NoError(t, err)
	require.Equal(t, want, block.Transactions[0].TxIn[0].SignatureScript)
	require.NotEqual(t, oldRoot, block.Header.MerkleRoot)
	require.Equal(t, blockchain.CalcMerkleRoot(block.Transactions),
		block.Header.MerkleRoot)

	// The block with the new extra nonce is still valid.
	require.NoError(t, h.chain.CheckConnectBlockTemplate(block))
}

func TestUpdateBlockTime(t *testing.T) {
	h := newTemplateHarness(t, mining.DefaultPolicy(), nil)
	h.advance(2)

	tmpl, err := h.gen.NewBlockTemplate(nil)
	require.NoError(t, err)
	header := &tmpl.Block.Header
	built := header.Timestamp

	// The timestamp only moves forward.
	header.Timestamp = built.Add(time.Hour)
	require.NoError(t, h.gen.UpdateBlockTime(tmpl.Block))
	require.Equal(t, built.Add(time.Hour), header.Timestamp)

	header.Timestamp = blockchain.CalcPastMedianTime(h.chain.Tip())
	require.NoError(t, h.gen.UpdateBlockTime(tmpl.Block))
	require.False(t, header.Timestamp.Before(built))
	require.Equal(t, blockchain.CalcNextRequiredDifficulty(h.chain.Tip(),
		header.Timestamp, h.chain.ChainParams()), header.Bits)

	// A block for an old tip cannot be refreshed.
	h.advance(1)
	err = h.gen.UpdateBlockTime(tmpl.Block)
	var merr mining.MiningRuleError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, mining.ErrStaleTemplate, merr.ErrorCode)
}
