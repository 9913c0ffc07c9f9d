// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/btcpsuite/btcpd/chaincfg"
)

// CalcBlockSubsidy returns the subsidy amount a block at the provided height
// should have.  The subsidy ramps up linearly over the slow start interval
// and is then cut in half every SubsidyReductionInterval blocks, with the
// halving schedule shifted by half the slow start interval.
func CalcBlockSubsidy(height int32, params *chaincfg.Params) int64 {
	subsidy := params.BaseSubsidy
	slowStart := params.SubsidySlowStartInterval

	// Linear ramp during the slow start.  The second half rounds the
	// height up so the ramp reaches the full subsidy at slowStart.
	if height < slowStart/2 {
		subsidy /= int64(slowStart)
		return subsidy * int64(height)
	}
	if height < slowStart {
		subsidy /= int64(slowStart)
		return subsidy * int64(height+1)
	}

	if params.SubsidyReductionInterval == 0 {
		return subsidy
	}
	halvings := (height - params.SubsidySlowStartShift()) /
		params.SubsidyReductionInterval

	// Force the subsidy to zero when the right shift is undefined.
	if halvings >= 64 {
		return 0
	}
	return subsidy >> uint(halvings)
}

// FoundersReward returns the founders share of the subsidy at height along
// with the script it must be paid to.  The amount is zero and the script nil
// when no founders reward is due.
func FoundersReward(height int32, params *chaincfg.Params) (int64, []byte) {
	script := params.FoundersRewardScriptAtHeight(height)
	if script == nil {
		return 0, nil
	}
	return CalcBlockSubsidy(height, params) / 5, script
}
