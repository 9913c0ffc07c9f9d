// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"sort"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// AddrType identifies the script form an indexed address was paid with.
type AddrType uint8

const (
	// AddrTypeNone marks outputs that pay no indexable address.
	AddrTypeNone AddrType = 0

	// AddrTypePubKeyHash is a pay-to-pubkey-hash (or pay-to-pubkey)
	// address.
	AddrTypePubKeyHash AddrType = 1

	// AddrTypeScriptHash is a pay-to-script-hash address.
	AddrTypeScriptHash AddrType = 2
)

// Address identifies an indexed address by its type and hash160.
type Address struct {
	Type AddrType
	Hash [20]byte
}

// addressOf returns the indexable address pkScript pays to.
func addressOf(pkScript []byte) (Address, bool) {
	class, hash := txscript.ExtractAddressHash(pkScript)
	var addr Address
	switch class {
	case txscript.PubKeyHashTy:
		addr.Type = AddrTypePubKeyHash
	case txscript.ScriptHashTy:
		addr.Type = AddrTypeScriptHash
	default:
		return addr, false
	}
	copy(addr.Hash[:], hash)
	return addr, true
}

// AddrDeltaKey locates one balance change of an address: an output of
// TxHash paying it, or an input of TxHash spending from it.
type AddrDeltaKey struct {
	Address
	TxHash   chainhash.Hash
	Index    uint32
	Spending bool
}

// AddrDelta is a balance change of an address caused by a pool transaction.
// Spends carry a negative Amount and the outpoint they consume.
type AddrDelta struct {
	Key     AddrDeltaKey
	Amount  int64
	Time    int64
	PrevOut wire.OutPoint
}

// SpentInfo describes the pool transaction input that spends an outpoint.
type SpentInfo struct {
	TxHash      chainhash.Hash
	InputIndex  uint32
	BlockHeight int32
	Amount      int64
	Address     Address
}

// addrIndex holds the optional address and spent indices of the pool.  It
// must only be used with the pool lock held.
type addrIndex struct {
	deltas     map[Address]map[AddrDeltaKey]AddrDelta
	deltasByTx map[chainhash.Hash][]AddrDeltaKey
	spent      map[wire.OutPoint]SpentInfo
	spentByTx  map[chainhash.Hash][]wire.OutPoint
}

func newAddrIndex() *addrIndex {
	return &addrIndex{
		deltas:     make(map[Address]map[AddrDeltaKey]AddrDelta),
		deltasByTx: make(map[chainhash.Hash][]AddrDeltaKey),
		spent:      make(map[wire.OutPoint]SpentInfo),
		spentByTx:  make(map[chainhash.Hash][]wire.OutPoint),
	}
}

func (idx *addrIndex) addDelta(delta AddrDelta) {
	byAddr, ok := idx.deltas[delta.Key.Address]
	if !ok {
		byAddr = make(map[AddrDeltaKey]AddrDelta)
		idx.deltas[delta.Key.Address] = byAddr
	}
	byAddr[delta.Key] = delta
	idx.deltasByTx[delta.Key.TxHash] = append(
		idx.deltasByTx[delta.Key.TxHash], delta.Key)
}

// addTx indexes the inputs and outputs of desc.  Inputs whose spent output
// view does not hold are skipped by the address index and recorded without
// an address by the spent index.
func (idx *addrIndex) addTx(desc *TxDesc, view *blockchain.UtxoViewpoint) {
	tx := desc.Tx
	added := desc.Added.Unix()

	for i, txIn := range tx.TxIn {
		var prevOut *wire.TxOut
		if view != nil {
			prevOut = view.FetchPrevOutput(txIn.PreviousOutPoint)
		}

		info := SpentInfo{
			TxHash:      desc.Hash,
			InputIndex:  uint32(i),
			BlockHeight: -1,
		}
		if prevOut != nil {
			info.Amount = prevOut.Value
			if addr, ok := addressOf(prevOut.PkScript); ok {
				info.Address = addr
				idx.addDelta(AddrDelta{
					Key: AddrDeltaKey{
						Address:  addr,
						TxHash:   desc.Hash,
						Index:    uint32(i),
						Spending: true,
					},
					Amount:  -prevOut.Value,
					Time:    added,
					PrevOut: txIn.PreviousOutPoint,
				})
			}
		}
		idx.spent[txIn.PreviousOutPoint] = info
		idx.spentByTx[desc.Hash] = append(idx.spentByTx[desc.Hash],
			txIn.PreviousOutPoint)
	}

	for i, txOut := range tx.TxOut {
		addr, ok := addressOf(txOut.PkScript)
		if !ok {
			continue
		}
		idx.addDelta(AddrDelta{
			Key: AddrDeltaKey{
				Address: addr,
				TxHash:  desc.Hash,
				Index:   uint32(i),
			},
			Amount: txOut.Value,
			Time:   added,
		})
	}
}

// removeTx drops every index entry added for the transaction.
func (idx *addrIndex) removeTx(txHash *chainhash.Hash) {
	for _, key := range idx.deltasByTx[*txHash] {
		byAddr := idx.deltas[key.Address]
		delete(byAddr, key)
		if len(byAddr) == 0 {
			delete(idx.deltas, key.Address)
		}
	}
	delete(idx.deltasByTx, *txHash)

	for _, op := range idx.spentByTx[*txHash] {
		delete(idx.spent, op)
	}
	delete(idx.spentByTx, *txHash)
}

// addrDeltas returns the deltas of the given addresses ordered by address,
// then transaction, then index with receipts before spends.
func (idx *addrIndex) addrDeltas(addrs []Address) []AddrDelta {
	var result []AddrDelta
	for _, addr := range addrs {
		start := len(result)
		for _, delta := range idx.deltas[addr] {
			result = append(result, delta)
		}
		batch := result[start:]
		sort.Slice(batch, func(i, j int) bool {
			a, b := batch[i].Key, batch[j].Key
			if c := bytes.Compare(a.TxHash[:], b.TxHash[:]); c != 0 {
				return c < 0
			}
			if a.Index != b.Index {
				return a.Index < b.Index
			}
			return !a.Spending && b.Spending
		})
	}
	return result
}
