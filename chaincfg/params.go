// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// These variables are the chain proof-of-work limit parameters for each default
// network.
var (
	// bigOne is 1 represented as a big.Int.  It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a block can have for
	// the main network.  It is the value 2^243 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 243), bigOne)

	// testNetPowLimit is the highest proof of work value a block can have
	// for the test network.  It is the value 2^251 - 1.
	testNetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 251), bigOne)

	// regressionPowLimit is the highest proof of work value a block can
	// have for the regression test network.  It is 0x0f repeated 32 times.
	regressionPowLimit = func() *big.Int {
		b := make([]byte, 32)
		for i := range b {
			b[i] = 0x0f
		}
		return new(big.Int).SetBytes(b)
	}()
)

const (
	// COIN is the number of base units in one coin.
	COIN = 100000000

	// disabledHeight marks a height based rule as never activating.
	disabledHeight = math.MaxInt32
)

// Params defines a network by its parameters.  These parameters may be
// used by applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.BitcoinNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256 once the fork is enabled.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// PrePowLimit is the proof of work limit in force up to and including
	// ForkStartHeight.
	PrePowLimit *big.Int

	// PowAveragingWindow is the number of blocks whose targets are averaged
	// by the moving average retarget.
	PowAveragingWindow int32

	// PowMaxAdjustDown and PowMaxAdjustUp bound the retarget step in
	// percent of the averaging window timespan.
	PowMaxAdjustDown int64
	PowMaxAdjustUp   int64

	// TargetTimePerBlock is the desired amount of time to generate each
	// block.
	TargetTimePerBlock time.Duration

	// EquihashParamsUpdateHeight is the height at which the proof of work
	// parameters changed.  The PowAveragingWindow blocks starting at this
	// height may use the transitional difficulty levels.
	EquihashParamsUpdateHeight int32

	// LwmaHeight is the last height retargeted by the moving average.
	// Blocks built on a parent above it use the linearly weighted moving
	// average with a window of LwmaAveragingWindow blocks.
	LwmaHeight          int32
	LwmaAveragingWindow int32

	// ForkStartHeight and ForkHeightRange delimit the fork blocks, which
	// are the heights in (ForkStartHeight, ForkStartHeight+ForkHeightRange].
	ForkStartHeight int32
	ForkHeightRange int32

	// BaseSubsidy is the block subsidy before any halving.
	BaseSubsidy int64

	// SubsidySlowStartInterval is the number of blocks over which the
	// subsidy ramps up linearly.
	SubsidySlowStartInterval int32

	// SubsidyReductionInterval is the interval of blocks before the subsidy
	// is reduced.
	SubsidyReductionInterval int32

	// CoinbaseMaturity is the number of blocks required before newly mined
	// coins can be spent.
	CoinbaseMaturity uint16

	// FoundersRewardScripts lists the scripts that receive the founders
	// share of the subsidy, rotated evenly over the founders reward
	// period.  An empty list disables the founders reward.
	FoundersRewardScripts [][]byte

	// PubKeyHashAddrID and ScriptHashAddrID are the two byte base58
	// prefixes of pay-to-pubkey-hash and pay-to-script-hash addresses.
	PubKeyHashAddrID [2]byte
	ScriptHashAddrID [2]byte

	// RequireStandard enforces the standardness rules on admission.
	RequireStandard bool

	// MineBlocksOnDemand lets the template refresh loop build a template
	// immediately instead of waiting for the staleness window.
	MineBlocksOnDemand bool

	// DefaultConsistencyChecks runs the mempool consistency check after
	// every mutation.
	DefaultConsistencyChecks bool
}

// AveragingWindowTimespan is the expected duration of PowAveragingWindow
// blocks in seconds.
func (p *Params) AveragingWindowTimespan() int64 {
	return int64(p.PowAveragingWindow) * p.TargetSpacing()
}

// MinActualTimespan is the lower clamp applied to the dampened timespan.
func (p *Params) MinActualTimespan() int64 {
	return (p.AveragingWindowTimespan() * (100 - p.PowMaxAdjustUp)) / 100
}

// MaxActualTimespan is the upper clamp applied to the dampened timespan.
func (p *Params) MaxActualTimespan() int64 {
	return (p.AveragingWindowTimespan() * (100 + p.PowMaxAdjustDown)) / 100
}

// TargetSpacing returns TargetTimePerBlock in whole seconds.
func (p *Params) TargetSpacing() int64 {
	return int64(p.TargetTimePerBlock / time.Second)
}

// IsForkBlock returns whether height falls within the fork block range.
func (p *Params) IsForkBlock(height int32) bool {
	return height > p.ForkStartHeight &&
		int64(height) <= int64(p.ForkStartHeight)+int64(p.ForkHeightRange)
}

// IsForkEnabled returns whether the post fork rules apply at height.
func (p *Params) IsForkEnabled(height int32) bool {
	return height > p.ForkStartHeight
}

// SubsidySlowStartShift is the height offset that the halving schedule is
// shifted by to account for the slow start.
func (p *Params) SubsidySlowStartShift() int32 {
	return p.SubsidySlowStartInterval / 2
}

// LastFoundersRewardBlockHeight is the last height paying a founders reward.
func (p *Params) LastFoundersRewardBlockHeight() int32 {
	return p.SubsidyReductionInterval + p.SubsidySlowStartShift() - 1
}

// FoundersRewardScriptAtHeight returns the script receiving the founders
// reward at height.  It returns nil when no founders reward is due.
func (p *Params) FoundersRewardScriptAtHeight(height int32) []byte {
	maxHeight := p.LastFoundersRewardBlockHeight()
	if len(p.FoundersRewardScripts) == 0 || height <= 0 || height > maxHeight {
		return nil
	}

	n := int64(len(p.FoundersRewardScripts))
	changeInterval := (int64(maxHeight) + n) / n
	return p.FoundersRewardScripts[int64(height)/changeInterval]
}

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Name:         "mainnet",
	Net:          wire.MainNet,
	DefaultPort:  "7933",
	GenesisBlock: &genesisBlock,
	GenesisHash:  &genesisHash,

	PowLimit:                   mainPowLimit,
	PowLimitBits:               0x1f07ffff,
	PrePowLimit:                mainPowLimit,
	PowAveragingWindow:         17,
	PowMaxAdjustDown:           32,
	PowMaxAdjustUp:             16,
	TargetTimePerBlock:         time.Second * 150,
	EquihashParamsUpdateHeight: 1100000,
	LwmaHeight:                 1200000,
	LwmaAveragingWindow:        45,
	ForkStartHeight:            1000000,
	ForkHeightRange:            65000,

	BaseSubsidy:              1250000000,
	SubsidySlowStartInterval: 2,
	SubsidyReductionInterval: 840000,
	CoinbaseMaturity:         100,

	PubKeyHashAddrID: [2]byte{0x13, 0x25},
	ScriptHashAddrID: [2]byte{0x13, 0xaf},

	RequireStandard: true,
}

// TestNet3Params defines the network parameters for the test network.
var TestNet3Params = Params{
	Name:         "testnet3",
	Net:          wire.TestNet,
	DefaultPort:  "17933",
	GenesisBlock: &testNetGenesisBlock,
	GenesisHash:  &testNetGenesisHash,

	PowLimit:                   testNetPowLimit,
	PowLimitBits:               0x2007ffff,
	PrePowLimit:                testNetPowLimit,
	PowAveragingWindow:         17,
	PowMaxAdjustDown:           32,
	PowMaxAdjustUp:             16,
	TargetTimePerBlock:         time.Second * 150,
	EquihashParamsUpdateHeight: 400,
	LwmaHeight:                 500,
	LwmaAveragingWindow:        45,
	ForkStartHeight:            10,
	ForkHeightRange:            300,

	BaseSubsidy:              1250000000,
	SubsidySlowStartInterval: 2,
	SubsidyReductionInterval: 840000,
	CoinbaseMaturity:         100,

	PubKeyHashAddrID: [2]byte{0x19, 0x58},
	ScriptHashAddrID: [2]byte{0x19, 0xe0},

	RequireStandard: true,
}

// RegressionNetParams defines the network parameters for the regression test
// network.  Retargeting is effectively disabled because both adjustment
// bounds are zero, and the transitional and LWMA regimes never activate.
var RegressionNetParams = Params{
	Name:         "regtest",
	Net:          wire.RegTest,
	DefaultPort:  "17944",
	GenesisBlock: &regTestGenesisBlock,
	GenesisHash:  &regTestGenesisHash,

	PowLimit:                   regressionPowLimit,
	PowLimitBits:               0x200f0f0f,
	PrePowLimit:                regressionPowLimit,
	PowAveragingWindow:         17,
	PowMaxAdjustDown:           0,
	PowMaxAdjustUp:             0,
	TargetTimePerBlock:         time.Second * 150,
	EquihashParamsUpdateHeight: disabledHeight,
	LwmaHeight:                 disabledHeight,
	LwmaAveragingWindow:        45,
	ForkStartHeight:            0,
	ForkHeightRange:            0,

	BaseSubsidy:              1250000000,
	SubsidySlowStartInterval: 0,
	SubsidyReductionInterval: 840000,
	CoinbaseMaturity:         100,

	PubKeyHashAddrID: [2]byte{0x19, 0x58},
	ScriptHashAddrID: [2]byte{0x19, 0xe0},

	MineBlocksOnDemand:       true,
	DefaultConsistencyChecks: true,
}

// ErrUnknownNet describes an error where the requested network is not one
// of the networks known to this package.
var ErrUnknownNet = errors.New("unknown network")

// ParamsForName returns the parameters of the network with the given name.
func ParamsForName(name string) (*Params, error) {
	switch name {
	case MainNetParams.Name:
		return &MainNetParams, nil
	case TestNet3Params.Name:
		return &TestNet3Params, nil
	case RegressionNetParams.Name:
		return &RegressionNetParams, nil
	}
	return nil, ErrUnknownNet
}
