// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"time"

	"github.com/btcpsuite/btcpd/chaincfg"
)

const (
	// lwmaMaxSolveTimeFactor bounds a single solve time counted by the
	// linearly weighted moving average, in target spacings.
	lwmaMaxSolveTimeFactor = 6

	// movingAverageDampening is the divisor applied to the deviation of
	// the actual timespan from the expected one.
	movingAverageDampening = 4
)

// powLimitForHeight returns the proof of work limit in force for a block at
// the given height.
func powLimitForHeight(height int32, params *chaincfg.Params) *big.Int {
	if params.IsForkEnabled(height) {
		return params.PowLimit
	}
	return params.PrePowLimit
}

// IncreaseDifficultyBy divides the target encoded by bits by multiplier and
// returns the result in compact form, never exceeding the network proof of
// work limit.  Compact rounding makes the increase approximate.
func IncreaseDifficultyBy(bits uint32, multiplier int64,
	params *chaincfg.Params) uint32 {

	target := targetFromCompact(bits)
	target.Div(target, big.NewInt(multiplier))
	if target.Cmp(params.PowLimit) > 0 {
		target.Set(params.PowLimit)
	}
	return BigToCompact(target)
}

// CalcNextRequiredDifficulty calculates the required difficulty for the block
// after lastNode.  newBlockTime is the timestamp of the candidate block; the
// zero time means no candidate is known, which disables the transitional
// levels that follow the proof of work parameter change.
//
// The regime is selected by height in a fixed order: the proof of work limit
// for the genesis block, the transitional levels for the
// PowAveragingWindow blocks starting at EquihashParamsUpdateHeight, the
// linearly weighted moving average above LwmaHeight, the limit around the
// fork window edges, and the dampened moving average otherwise.
//
// This function is safe for concurrent access as long as the headers reachable
// from lastNode are not modified.
func CalcNextRequiredDifficulty(lastNode HeaderCtx, newBlockTime time.Time,
	params *chaincfg.Params) uint32 {

	// Genesis block.
	if lastNode == nil {
		return BigToCompact(powLimitForHeight(0, params))
	}

	nextHeight := lastNode.Height() + 1
	powLimit := powLimitForHeight(nextHeight, params)
	powLimitBits := BigToCompact(powLimit)

	// Allow progressively easier fixed difficulties while the network
	// adjusts to the new proof of work parameters.
	updateHeight := params.EquihashParamsUpdateHeight
	if !newBlockTime.IsZero() && nextHeight >= updateHeight &&
		int64(nextHeight)-int64(updateHeight) <
			int64(params.PowAveragingWindow) {

		spacing := params.TargetSpacing()
		blockTime := newBlockTime.Unix()
		lastTime := lastNode.Timestamp()
		switch {
		case blockTime > lastTime+spacing*12:
			log.Debugf("Transitional level 1 difficulty %08x at "+
				"height %d", powLimitBits, nextHeight)
			return powLimitBits

		case blockTime > lastTime+spacing*6:
			bits := IncreaseDifficultyBy(powLimitBits, 128, params)
			log.Debugf("Transitional level 2 difficulty %08x at "+
				"height %d", bits, nextHeight)
			return bits

		case blockTime > lastTime+spacing*2:
			bits := IncreaseDifficultyBy(powLimitBits, 256, params)
			log.Debugf("Transitional level 3 difficulty %08x at "+
				"height %d", bits, nextHeight)
			return bits
		}
	}

	if lastNode.Height() > params.LwmaHeight {
		return calcLwmaRequiredDifficulty(lastNode, params)
	}

	// The first block after the fork window and the first fork block both
	// restart at the limit.
	window := params.PowAveragingWindow
	if !params.IsForkBlock(nextHeight) &&
		params.IsForkBlock(nextHeight-window) {

		return powLimitBits
	}
	if params.IsForkBlock(nextHeight) &&
		!params.IsForkBlock(nextHeight-window) {

		return powLimitBits
	}

	// Sum the targets of the averaging window, ending up at the block
	// before it.
	total := new(big.Int)
	firstNode := lastNode
	for i := int32(0); firstNode != nil && i < window; i++ {
		total.Add(total, targetFromCompact(firstNode.Bits()))
		firstNode = firstNode.Parent()
	}

	// Not enough blocks for a full window.
	if firstNode == nil {
		return powLimitBits
	}

	total.And(total, uint256Mask)
	avgTarget := total.Div(total, big.NewInt(int64(window)))
	return calcMovingAverageDifficulty(avgTarget,
		CalcPastMedianTime(lastNode).Unix(),
		CalcPastMedianTime(firstNode).Unix(), params, powLimit)
}

// calcMovingAverageDifficulty rescales avgTarget by the dampened and clamped
// ratio of the actual window timespan to the expected one.
func calcMovingAverageDifficulty(avgTarget *big.Int, lastMedianTime,
	firstMedianTime int64, params *chaincfg.Params, powLimit *big.Int) uint32 {

	// Use medians to prevent time-warp attacks.
	expected := params.AveragingWindowTimespan()
	actual := lastMedianTime - firstMedianTime
	log.Tracef("Actual timespan %d before dampening", actual)
	actual = expected + (actual-expected)/movingAverageDampening
	log.Tracef("Actual timespan %d before bounds", actual)

	if actual < params.MinActualTimespan() {
		actual = params.MinActualTimespan()
	}
	if actual > params.MaxActualTimespan() {
		actual = params.MaxActualTimespan()
	}

	// The division happens first so the product stays within 256 bits.
	// The multiplier is truncated to 32 bits like the reference
	// arithmetic.
	newTarget := new(big.Int).Div(avgTarget, big.NewInt(expected))
	newTarget.Mul(newTarget, big.NewInt(int64(uint32(actual))))
	newTarget.And(newTarget, uint256Mask)
	if newTarget.Cmp(powLimit) > 0 {
		newTarget.Set(powLimit)
	}

	// The new target logging is intentionally converting the bits back to
	// a number instead of using newTarget since conversion to the compact
	// representation loses precision.
	newTargetBits := BigToCompact(newTarget)
	log.Debugf("Old average target %08x (%064x)", BigToCompact(avgTarget),
		avgTarget)
	log.Debugf("New target %08x (%064x)", newTargetBits,
		CompactToBig(newTargetBits))
	log.Debugf("Actual timespan %v, target timespan %v",
		time.Duration(actual)*time.Second,
		time.Duration(expected)*time.Second)

	return newTargetBits
}

// calcLwmaRequiredDifficulty computes the linearly weighted moving average
// target over the LwmaAveragingWindow blocks ending at lastNode.  Recent solve
// times weigh more, every solve time is forced positive and capped at
// lwmaMaxSolveTimeFactor target spacings, and each target is divided by the
// weight normaliser before summing so the product cannot overflow.
func calcLwmaRequiredDifficulty(lastNode HeaderCtx,
	params *chaincfg.Params) uint32 {

	spacing := params.TargetSpacing()
	n := int64(params.LwmaAveragingWindow)
	k := n * (n + 1) * spacing / 2
	height := int64(lastNode.Height())

	prevNode := lastNode.RelativeAncestorCtx(int32(n))
	if height < n || prevNode == nil {
		return BigToCompact(params.PowLimit)
	}
	prevTimestamp := prevNode.Timestamp()

	// Gather the window oldest first.
	nodes := make([]HeaderCtx, n)
	iterNode := lastNode
	for i := n - 1; i >= 0; i-- {
		nodes[i] = iterNode
		iterNode = iterNode.Parent()
	}

	bigN := big.NewInt(n)
	bigK := big.NewInt(k)
	avgTarget := new(big.Int)
	var weightedSolveTimes, weight int64
	for _, node := range nodes {
		// Solve times are kept positive by moving the timestamp forward
		// rather than by clamping the difference.
		thisTimestamp := node.Timestamp()
		if thisTimestamp <= prevTimestamp {
			thisTimestamp = prevTimestamp + 1
		}

		solveTime := thisTimestamp - prevTimestamp
		if solveTime > lwmaMaxSolveTimeFactor*spacing {
			solveTime = lwmaMaxSolveTimeFactor * spacing
		}
		prevTimestamp = thisTimestamp

		weight++
		weightedSolveTimes += solveTime * weight

		target := targetFromCompact(node.Bits())
		target.Div(target, bigN)
		target.Div(target, bigK)
		avgTarget.Add(avgTarget, target)
	}

	nextTarget := avgTarget.Mul(avgTarget,
		big.NewInt(int64(uint32(weightedSolveTimes))))
	nextTarget.And(nextTarget, uint256Mask)
	if nextTarget.Cmp(params.PowLimit) > 0 {
		nextTarget.Set(params.PowLimit)
	}

	nextBits := BigToCompact(nextTarget)
	log.Debugf("LWMA difficulty %08x at height %d (weighted solve "+
		"times %d)", nextBits, height+1, weightedSolveTimes)
	return nextBits
}
