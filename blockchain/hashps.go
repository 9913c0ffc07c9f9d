// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"

	"github.com/btcpsuite/btcpd/chaincfg"
)

// DefaultHashPSLookup is the number of blocks CalcNetworkHashPS averages over
// when the caller does not pick a window.
const DefaultHashPSLookup = 120

// CalcNetworkHashPS estimates the hashes per second of the network from the
// work and the time span of the lookup blocks ending at tip.  A lookup of
// zero or less averages over one difficulty averaging window.  The lookup is
// capped at the height of tip, and zero is returned when the blocks span no
// time.
func CalcNetworkHashPS(tip HeaderCtx, lookup int32,
	params *chaincfg.Params) int64 {

	if tip == nil || tip.Height() == 0 {
		return 0
	}
	if lookup <= 0 {
		lookup = params.PowAveragingWindow
	}
	if lookup > tip.Height() {
		lookup = tip.Height()
	}

	minTime := tip.Timestamp()
	maxTime := minTime
	totalWork := new(big.Int)
	node := tip
	for i := int32(0); i < lookup; i++ {
		totalWork.Add(totalWork, CalcWork(node.Bits()))
		node = node.Parent()
		if ts := node.Timestamp(); ts < minTime {
			minTime = ts
		} else if ts > maxTime {
			maxTime = ts
		}
	}

	if minTime == maxTime {
		return 0
	}
	hashesPerSec := totalWork.Div(totalWork, big.NewInt(maxTime-minTime))
	if !hashesPerSec.IsInt64() {
		return 0
	}
	return hashesPerSec.Int64()
}
