// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"time"

	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/mock"
)

// MockTxMempool is a mock implementation of the TxMempool interface.
type MockTxMempool struct {
	mock.Mock
}

// Ensure the MockTxMempool implements the TxMemPool interface.
var _ TxMempool = (*MockTxMempool)(nil)

// LastUpdated returns the last time a transaction was added to or removed from
// the source pool.
func (m *MockTxMempool) LastUpdated() time.Time {
	args := m.Called()
	return args.Get(0).(time.Time)
}

// PoolVersion returns the pool change counter.
func (m *MockTxMempool) PoolVersion() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

// TxDescs returns a slice of descriptors for all the transactions in the pool.
func (m *MockTxMempool) TxDescs() []*TxDesc {
	args := m.Called()
	return args.Get(0).([]*TxDesc)
}

// Count returns the number of transactions in the main pool.
func (m *MockTxMempool) Count() int {
	args := m.Called()
	return args.Get(0).(int)
}

// HaveTransaction returns whether or not the passed transaction already exists
// in the pool.
func (m *MockTxMempool) HaveTransaction(hash *chainhash.Hash) bool {
	args := m.Called(hash)
	return args.Get(0).(bool)
}

// MaybeAcceptTransaction validates tx and adds it to the pool.
func (m *MockTxMempool) MaybeAcceptTransaction(tx *wire.MsgTx,
	isNew bool) (*TxDesc, *ValidationState) {

	args := m.Called(tx, isNew)

	var (
		txD   *TxDesc
		state *ValidationState
	)
	if args.Get(0) != nil {
		txD = args.Get(0).(*TxDesc)
	}
	if args.Get(1) != nil {
		state = args.Get(1).(*ValidationState)
	}
	return txD, state
}

// RemoveForBlock removes the transactions confirmed by the block at height.
func (m *MockTxMempool) RemoveForBlock(txs []*wire.MsgTx, height int32) {
	m.Called(txs, height)
}

// Unconfirm allows the transactions of a disconnected block back into the
// pool.
func (m *MockTxMempool) Unconfirm(txs []*wire.MsgTx) {
	m.Called(txs)
}

// RemoveWithInvalidAnchor removes the transactions proving against anchor.
func (m *MockTxMempool) RemoveWithInvalidAnchor(
	anchor chainhash.Hash) []*TxDesc {

	args := m.Called(anchor)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*TxDesc)
}

// RemoveCoinbaseSpends removes the transactions whose inputs became
// unavailable.
func (m *MockTxMempool) RemoveCoinbaseSpends(height int32) []*TxDesc {
	args := m.Called(height)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*TxDesc)
}

// LimitSize evicts transactions until the pool fits in maxUsage bytes.
func (m *MockTxMempool) LimitSize(maxUsage int64) []chainhash.Hash {
	args := m.Called(maxUsage)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]chainhash.Hash)
}

// Check verifies the internal consistency of the pool.
func (m *MockTxMempool) Check() error {
	args := m.Called()
	return args.Error(0)
}

// MiningDescs returns a slice of mining descriptors for all the transactions
// in the source pool.
func (m *MockTxMempool) MiningDescs() []*mining.TxDesc {
	args := m.Called()
	return args.Get(0).([]*mining.TxDesc)
}
