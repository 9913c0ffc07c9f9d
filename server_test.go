// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/blockchain/chaingen"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/mempool"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// serverHarness couples a server with a generator producing the blocks of
// its chain.
type serverHarness struct {
	t *testing.T
	g *chaingen.Generator
	s *server
}

func newServerHarness(t *testing.T, feeEstimator *mempool.FeeEstimator) *serverHarness {
	t.Helper()

	cfg := newTestConfig(t)
	require.NoError(t, finishConfig(cfg))

	s, err := newServer(cfg, feeEstimator)
	require.NoError(t, err)

	g, err := chaingen.MakeGenerator(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return &serverHarness{t: t, g: &g, s: s}
}

// accept generates the named block and connects it to the server chain.
func (h *serverHarness) accept(name string, spend *chaingen.SpendableOut,
	mungers ...func(*wire.MsgBlock)) *wire.MsgBlock {

	h.t.Helper()
	block := h.g.NextBlock(name, spend, mungers...)
	require.NoError(h.t, h.s.chain.ConnectBlock(block, blockchain.BFNone),
		"block %s", name)
	return block
}

// mature connects enough blocks for the first coinbase to be spendable.
func (h *serverHarness) mature() {
	maturity := int(h.s.chainParams.CoinbaseMaturity)
	for i := 1; i <= maturity; i++ {
		h.accept(fmt.Sprintf("b%d", i), nil)
	}
}

// mockPool replaces the pool notified by the server with a mock.
func (h *serverHarness) mockPool() *mempool.MockTxMempool {
	pool := &mempool.MockTxMempool{}
	h.s.txMemPool = pool
	return pool
}

func TestServerBlockNotifications(t *testing.T) {
	h := newServerHarness(t, nil)
	pool := h.mockPool()

	pool.On("RemoveForBlock", mock.Anything, mock.Anything).Return()
	h.mature()
	out := h.g.OldestCoinbaseOut()
	block := h.accept("spend", &out)
	pool.AssertCalled(t, "RemoveForBlock", block.Transactions, int32(101))

	pool.On("Unconfirm", block.Transactions).Return().Once()
	pool.On("MaybeAcceptTransaction", block.Transactions[1], false).
		Return(nil, nil).Once()
	pool.On("RemoveCoinbaseSpends", int32(101)).Return(nil).Once()

	require.NoError(t, h.s.chain.DisconnectTip())
	pool.AssertExpectations(t)

	// The block revealed no commitments, so its anchor is still valid.
	pool.AssertNotCalled(t, "RemoveWithInvalidAnchor", mock.Anything)

	// The coinbase never goes back to the pool.
	pool.AssertNotCalled(t, "MaybeAcceptTransaction",
		block.Transactions[0], mock.Anything)
}

func TestServerDisconnectInvalidatesAnchor(t *testing.T) {
	h := newServerHarness(t, nil)
	pool := h.mockPool()

	pool.On("RemoveForBlock", mock.Anything, mock.Anything).Return()
	h.mature()

	emptyAnchor := h.s.chain.ShieldedAnchor()
	nullifiers := [wire.NumJoinSplitInputs]chainhash.Hash{
		chainhash.HashH([]byte("nf0")),
		chainhash.HashH([]byte("nf1")),
	}
	out := h.g.OldestCoinbaseOut()
	shield := h.g.CreateJoinSplitTx(&out, emptyAnchor, nullifiers, 1000)
	block := h.accept("shield", nil, chaingen.AdditionalTx(shield))
	anchor := h.s.chain.ShieldedAnchor()
	require.NotEqual(t, emptyAnchor, anchor)

	rejected := &mempool.ValidationState{
		Kind:       mempool.ConsensusInvalid,
		RejectCode: wire.RejectInvalid,
		Reason:     "rejected",
	}
	pool.On("Unconfirm", block.Transactions).Return().Once()
	pool.On("MaybeAcceptTransaction", shield, false).
		Return(nil, rejected).Once()
	pool.On("RemoveWithInvalidAnchor", anchor).Return(nil).Once()
	pool.On("RemoveCoinbaseSpends", int32(101)).Return(nil).Once()

	require.NoError(t, h.s.chain.DisconnectTip())
	pool.AssertExpectations(t)
}

func TestServerReorgRestoresTransactions(t *testing.T) {
	estimator := newEstimator()
	h := newServerHarness(t, estimator)
	h.mature()

	out := h.g.OldestCoinbaseOut()
	block := h.accept("spend", &out)
	spendHash := block.Transactions[1].TxHash()
	require.False(t, h.s.txMemPool.HaveTransaction(&spendHash))

	// The spend goes back to the pool once its block is disconnected and
	// leaves it again when the block is connected once more.
	require.NoError(t, h.s.chain.DisconnectTip())
	require.True(t, h.s.txMemPool.HaveTransaction(&spendHash))
	require.NoError(t, h.s.txMemPool.Check())

	require.NoError(t, h.s.chain.ConnectBlock(block, blockchain.BFNone))
	require.False(t, h.s.txMemPool.HaveTransaction(&spendHash))
	require.Zero(t, h.s.txMemPool.Count())
}

func TestServerRefreshTemplate(t *testing.T) {
	h := newServerHarness(t, nil)
	require.NoError(t, h.s.payouts.AddAddr(testMiningAddr(t)))
	h.mature()

	h.s.refreshTemplate()
	template, err := h.s.templates.Template(h.s.payouts.NextScript())
	require.NoError(t, err)
	require.Equal(t, int32(101), template.Height)
	require.True(t, template.ValidPayAddress)
}

func TestServerGenerate(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.MiningAddrs = []string{testMiningAddr(t)}
	cfg.Generate = true
	require.NoError(t, finishConfig(cfg))

	s, err := newServer(cfg, newEstimator())
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool {
		return s.chain.BestHeight() >= 2
	}, 30*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	require.False(t, s.cpuMiner.IsMining())

	// Stopping twice is harmless.
	require.NoError(t, s.Stop())
}
