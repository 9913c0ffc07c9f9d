// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"reflect"
	"unsafe"

	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Approximate per-element overhead of the pool indices, used when accounting
// for the memory an entry pins beyond the transaction itself.
const (
	// mapEntryOverhead approximates the bucket and pointer cost of one map
	// element.
	mapEntryOverhead = 48

	outpointKeySize = int64(unsafe.Sizeof(wire.OutPoint{}))
	hashKeySize     = int64(unsafe.Sizeof(chainhash.Hash{}))
)

// dynamicMemUsage returns the number of bytes reachable from v, including the
// value itself.  Pointers are followed, and the backing arrays of slices and
// the elements of maps are counted.
func dynamicMemUsage(v reflect.Value) uintptr {
	t := v.Type()
	bytes := t.Size()

	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			bytes += dynamicMemUsage(v.Elem())
		}

	case reflect.Slice:
		// Byte slices are by far the most common, so skip walking
		// them element by element.
		if t.Elem().Kind() == reflect.Uint8 {
			bytes += uintptr(v.Cap())
			break
		}
		for i := 0; i < v.Len(); i++ {
			bytes += dynamicMemUsage(v.Index(i))
		}

	case reflect.Array:
		// The elements are already part of t.Size(); only what they
		// point at is added.
		if t.Elem().Kind() == reflect.Uint8 {
			break
		}
		for i := 0; i < v.Len(); i++ {
			bytes += dynamicMemUsage(v.Index(i)) - t.Elem().Size()
		}

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			bytes += dynamicMemUsage(iter.Key())
			bytes += dynamicMemUsage(iter.Value())
		}

	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := v.Field(i)
			switch f.Kind() {
			case reflect.Pointer, reflect.Interface, reflect.Slice,
				reflect.Map, reflect.Array, reflect.Struct:

				bytes += dynamicMemUsage(f) - f.Type().Size()
			}
		}
	}

	return bytes
}

// txMemUsage returns the memory a pool entry for tx costs: the transaction
// itself plus one element in every index it is recorded in.
func txMemUsage(tx *wire.MsgTx) int64 {
	usage := int64(dynamicMemUsage(reflect.ValueOf(tx)))

	// ByIdentity.
	usage += hashKeySize + mapEntryOverhead

	// BySpentOutput.
	usage += int64(len(tx.TxIn)) * (outpointKeySize + mapEntryOverhead)

	// ByNullifier.
	usage += int64(2*len(tx.JoinSplits)) * (hashKeySize + mapEntryOverhead)
	return usage
}
