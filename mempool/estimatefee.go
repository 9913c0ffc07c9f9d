// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// estimateFeeDepth is the maximum number of blocks before a transaction
	// is confirmed that we want to track.
	estimateFeeDepth = 25

	// estimateFeeBinSize is the number of txs stored in each bin.
	estimateFeeBinSize = 100

	// estimateFeeMaxReplacements is the max number of replacements that
	// can be made by the txs found in a given block.
	estimateFeeMaxReplacements = 10

	// DefaultEstimateFeeMaxRollback is the default number of rollbacks
	// allowed by the fee estimator for orphaned blocks.
	DefaultEstimateFeeMaxRollback = 2

	// DefaultEstimateFeeMinRegisteredBlocks is the default minimum
	// number of blocks which must be observed by the fee estimator before
	// it will provide fee estimations.
	DefaultEstimateFeeMinRegisteredBlocks = 3

	// estimateFeeSaveVersion is the version of the saved estimator state.
	estimateFeeSaveVersion = 1
)

// SatoshiPerByte is number with units of satoshis per byte.
type SatoshiPerByte float64

// ToSatoshiPerKb returns a float value that represents the given
// SatoshiPerByte converted to satoshis per kb.
func (rate SatoshiPerByte) ToSatoshiPerKb() float64 {
	// If our rate is the error value, return that.
	if rate == SatoshiPerByte(-1.0) {
		return -1.0
	}

	return float64(rate) * 1000
}

// Fee returns the fee for a transaction of a given size for
// the given fee rate.
func (rate SatoshiPerByte) Fee(size uint32) btcutil.Amount {
	// If our rate is the error value, return that.
	if rate == SatoshiPerByte(-1) {
		return btcutil.Amount(-1)
	}

	return btcutil.Amount(float64(rate) * float64(size))
}

// NewSatoshiPerByte creates a SatoshiPerByte from an Amount and a
// size in bytes.
func NewSatoshiPerByte(fee btcutil.Amount, size uint32) SatoshiPerByte {
	return SatoshiPerByte(float64(fee) / float64(size))
}

// observation is a confirmed transaction as seen by the estimator: the value
// it is binned by, which is a fee rate or a priority, and the heights it
// entered the pool and got mined at.
type observation struct {
	hash     chainhash.Hash
	value    float64
	observed int32
	mined    int32
}

// estimateKind selects the fee rate or the priority bins.
type estimateKind int

const (
	kindFee estimateKind = iota
	kindPriority
	numEstimateKinds
)

// estimateBins holds observations by the number of blocks they waited for
// confirmation.
type estimateBins [estimateFeeDepth][]*observation

// binChange records one bin slot written by RegisterBlock.  A nil prev means
// the observation was appended.
type binChange struct {
	kind estimateKind
	bin  int
	slot int
	prev *observation
}

// registeredBlock has the height of a block and the bin changes its
// transactions made.  It is used if Rollback is called to reverse the effect
// of registering a block.
type registeredBlock struct {
	height  int32
	changes []binChange
}

// FeeEstimator manages the data necessary to create fee and priority
// estimations.  Only transactions which spent no pool outputs when they were
// accepted are counted, since a transaction waiting on its parent says
// nothing about the fee it needed.  It is safe for concurrent access.
type FeeEstimator struct {
	maxRollback uint32
	binSize     int

	// The maximum number of replacements that can be made in a single
	// bin per block. Default is estimateFeeMaxReplacements
	maxReplacements int

	// The minimum number of blocks that can be registered with the fee
	// estimator before it will provide answers.
	minRegisteredBlocks uint32

	// minRelayTxFee separates transactions that paid for their
	// confirmation from those that relied on their priority.
	minRelayTxFee btcutil.Amount

	sync.Mutex

	// The last known height.
	lastKnownHeight     int32
	numBlocksRegistered uint32
	bins                [numEstimateKinds]estimateBins

	// The cached estimates.
	cached [numEstimateKinds][]float64

	// Recently registered blocks, which allows us to revert in case of an
	// orphaned block.
	dropped []registeredBlock
}

// NewFeeEstimator creates a FeeEstimator for which at most maxRollback blocks
// can be unregistered and which returns an error unless minRegisteredBlocks
// have been registered with it.  Confirmed transactions paying at least
// minRelayTxFee per kB feed the fee estimates, the others feed the priority
// estimates when their priority qualified them as free.
func NewFeeEstimator(maxRollback, minRegisteredBlocks uint32,
	minRelayTxFee btcutil.Amount) *FeeEstimator {

	return &FeeEstimator{
		maxRollback:         maxRollback,
		minRegisteredBlocks: minRegisteredBlocks,
		minRelayTxFee:       minRelayTxFee,
		lastKnownHeight:     mining.UnminedHeight,
		binSize:             estimateFeeBinSize,
		maxReplacements:     estimateFeeMaxReplacements,
		dropped:             make([]registeredBlock, 0, maxRollback),
	}
}

// classify returns which bins the pool entry confirmed at height belongs in.
func (ef *FeeEstimator) classify(desc *TxDesc, height int32) (estimateKind, float64, bool) {
	if desc.FeePerKB >= int64(ef.minRelayTxFee) && desc.Fee > 0 {
		rate := NewSatoshiPerByte(btcutil.Amount(desc.Fee),
			uint32(desc.Size))
		return kindFee, float64(rate), true
	}
	if priority := desc.CurrentPriority(height); mining.AllowFree(priority) {
		return kindPriority, priority, true
	}
	return 0, 0, false
}

// RegisterBlock informs the fee estimator of a new block at height whose
// transactions left the pool as descs.
func (ef *FeeEstimator) RegisterBlock(height int32, descs []*TxDesc) error {
	ef.Lock()
	defer ef.Unlock()

	// The previous sorted lists are invalid, so delete them.
	ef.cached = [numEstimateKinds][]float64{}

	if ef.lastKnownHeight != mining.UnminedHeight {
		switch {
		case height > ef.lastKnownHeight+1:
			return fmt.Errorf("intermediate block not recorded; "+
				"current height is %d; new height is %d",
				ef.lastKnownHeight, height)

		// A reorganization deeper than the rollback history.  The
		// history no longer matches the chain.
		case height <= ef.lastKnownHeight:
			log.Debugf("Fee estimator at height %d registered "+
				"block %d without rollback", ef.lastKnownHeight,
				height)
			ef.dropped = ef.dropped[:0]
		}
	}

	// Update the last known height.
	ef.lastKnownHeight = height
	ef.numBlocksRegistered++

	// Count the number of replacements we make per bin so that we don't
	// replace too many.
	var replacementCounts [numEstimateKinds][estimateFeeDepth]int

	registered := registeredBlock{height: height}
	for _, desc := range descs {
		if !desc.HadNoDependencies {
			continue
		}

		blocksToConfirm := int(height - desc.Height - 1)
		if blocksToConfirm < 0 || blocksToConfirm >= estimateFeeDepth {
			continue
		}

		kind, value, ok := ef.classify(desc, height)
		if !ok {
			continue
		}

		// Make sure we do not replace too many transactions per block.
		if replacementCounts[kind][blocksToConfirm] == ef.maxReplacements {
			continue
		}
		replacementCounts[kind][blocksToConfirm]++

		o := &observation{
			hash:     desc.Hash,
			value:    value,
			observed: desc.Height,
			mined:    height,
		}

		// Replace a random element once the bin is full.
		bin := ef.bins[kind][blocksToConfirm]
		change := binChange{kind: kind, bin: blocksToConfirm}
		if len(bin) == ef.binSize {
			change.slot = rand.Intn(ef.binSize)
			change.prev = bin[change.slot]
			bin[change.slot] = o
		} else {
			change.slot = len(bin)
			ef.bins[kind][blocksToConfirm] = append(bin, o)
		}
		registered.changes = append(registered.changes, change)
	}

	// Add the block to the rollback history.
	if ef.maxRollback == 0 {
		return nil
	}
	if uint32(len(ef.dropped)) == ef.maxRollback {
		ef.dropped = append(ef.dropped[1:], registered)
	} else {
		ef.dropped = append(ef.dropped, registered)
	}

	return nil
}

// Rollback unregisters the recently registered blocks down to and including
// the one at height.  This can be used to reverse the effect of disconnected
// blocks on the fee estimator.  The maximum number of rollbacks allowed is
// given by maxRollback.
func (ef *FeeEstimator) Rollback(height int32) error {
	ef.Lock()
	defer ef.Unlock()

	// Find this block in the stack of recent registered blocks.
	n := -1
	for i := len(ef.dropped) - 1; i >= 0; i-- {
		if ef.dropped[i].height == height {
			n = len(ef.dropped) - i
			break
		}
	}
	if n == -1 {
		return errors.New("no such block was recently registered")
	}

	for i := 0; i < n; i++ {
		ef.rollback()
	}
	return nil
}

// rollback undoes the most recently registered block.
func (ef *FeeEstimator) rollback() {
	ef.cached = [numEstimateKinds][]float64{}

	last := len(ef.dropped) - 1
	registered := ef.dropped[last]
	ef.dropped = ef.dropped[:last]

	// Undo the changes in reverse so that every appended observation is
	// the last of its bin when it is removed.
	for i := len(registered.changes) - 1; i >= 0; i-- {
		change := registered.changes[i]
		bin := ef.bins[change.kind][change.bin]
		if change.prev == nil {
			bin[change.slot] = nil
			ef.bins[change.kind][change.bin] = bin[:change.slot]
			continue
		}
		bin[change.slot] = change.prev
	}

	ef.numBlocksRegistered--
	ef.lastKnownHeight = registered.height - 1
}

// estimateSet is the sorted set of every observed value of one kind along
// with the number of observations in each bin.
type estimateSet struct {
	values []float64
	bin    [estimateFeeDepth]uint32
}

// newEstimateSet creates a temporary data structure that can be used to find
// all estimates of one kind.
func newEstimateSet(bins *estimateBins) *estimateSet {
	set := &estimateSet{}
	capacity := 0
	for i, b := range bins {
		set.bin[i] = uint32(len(b))
		capacity += len(b)
	}

	set.values = make([]float64, 0, capacity)
	for _, b := range bins {
		for _, o := range b {
			set.values = append(set.values, o.value)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(set.values)))
	return set
}

// estimate returns the median value among the transactions that were
// confirmed in confirmations blocks, counted from the highest value down.
func (set *estimateSet) estimate(confirmations int) float64 {
	if confirmations <= 0 {
		return math.Inf(1)
	}
	if confirmations > estimateFeeDepth {
		return 0
	}

	var min, max uint32
	for i := 0; i < confirmations-1; i++ {
		min += set.bin[i]
	}
	max = min + set.bin[confirmations-1]

	// We don't have any transactions!
	if min == 0 && max == 0 {
		return 0
	}
	return set.values[(min+max-1)/2]
}

// estimate returns the cached estimate of the given kind for numBlocks,
// computing the estimates when needed.  The caller must hold the lock.
func (ef *FeeEstimator) estimate(kind estimateKind, numBlocks uint32) (float64, error) {
	// If the number of registered blocks is below the minimum, return
	// an error.
	if ef.numBlocksRegistered < ef.minRegisteredBlocks {
		return -1, errors.New("not enough blocks have been observed")
	}

	if numBlocks == 0 {
		return -1, errors.New("cannot confirm transaction in zero blocks")
	}

	if numBlocks > estimateFeeDepth {
		return -1, fmt.Errorf("can only estimate fees for up to %d "+
			"blocks from now", estimateFeeDepth)
	}

	// If there are no cached results, generate them.
	if ef.cached[kind] == nil {
		set := newEstimateSet(&ef.bins[kind])
		estimates := make([]float64, estimateFeeDepth)
		for i := range estimates {
			estimates[i] = set.estimate(i + 1)
		}
		ef.cached[kind] = estimates
	}

	return ef.cached[kind][int(numBlocks)-1], nil
}

// EstimateFee estimates the fee per byte to have a tx confirmed a given
// number of blocks from now.
func (ef *FeeEstimator) EstimateFee(numBlocks uint32) (SatoshiPerByte, error) {
	ef.Lock()
	defer ef.Unlock()

	rate, err := ef.estimate(kindFee, numBlocks)
	return SatoshiPerByte(rate), err
}

// EstimatePriority estimates the priority a free transaction needs to be
// confirmed a given number of blocks from now.
func (ef *FeeEstimator) EstimatePriority(numBlocks uint32) (float64, error) {
	ef.Lock()
	defer ef.Unlock()

	return ef.estimate(kindPriority, numBlocks)
}

// FeeEstimatorState represents a saved FeeEstimator that can be
// restored with data from an earlier session of the program.
type FeeEstimatorState []byte

// estimatorHeader is the fixed part of a saved estimator.
type estimatorHeader struct {
	Version             uint32
	MaxRollback         uint32
	BinSize             uint32
	MaxReplacements     uint32
	MinRegisteredBlocks uint32
	MinRelayTxFee       int64
	LastKnownHeight     int32
	NumBlocksRegistered uint32
}

// savedObservation is the encoding of an observation.
type savedObservation struct {
	Hash     chainhash.Hash
	Value    float64
	Observed int32
	Mined    int32
}

// Save records the current state of the FeeEstimator to a []byte that
// can be restored later.  The rollback history is not saved.
func (ef *FeeEstimator) Save() FeeEstimatorState {
	ef.Lock()
	defer ef.Unlock()

	var w bytes.Buffer
	header := estimatorHeader{
		Version:             estimateFeeSaveVersion,
		MaxRollback:         ef.maxRollback,
		BinSize:             uint32(ef.binSize),
		MaxReplacements:     uint32(ef.maxReplacements),
		MinRegisteredBlocks: ef.minRegisteredBlocks,
		MinRelayTxFee:       int64(ef.minRelayTxFee),
		LastKnownHeight:     ef.lastKnownHeight,
		NumBlocksRegistered: ef.numBlocksRegistered,
	}

	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&w, binary.LittleEndian, &header)
	for kind := range ef.bins {
		for _, bin := range ef.bins[kind] {
			_ = binary.Write(&w, binary.LittleEndian, uint32(len(bin)))
			for _, o := range bin {
				_ = binary.Write(&w, binary.LittleEndian,
					&savedObservation{
						Hash:     o.hash,
						Value:    o.value,
						Observed: o.observed,
						Mined:    o.mined,
					})
			}
		}
	}

	return FeeEstimatorState(w.Bytes())
}

// RestoreFeeEstimator takes a FeeEstimatorState that was previously
// returned by Save and restores it to a FeeEstimator
func RestoreFeeEstimator(data FeeEstimatorState) (*FeeEstimator, error) {
	r := bytes.NewReader(data)

	var header estimatorHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("unable to read fee estimator header: "+
			"%v", err)
	}
	if header.Version != estimateFeeSaveVersion {
		return nil, fmt.Errorf("incorrect version: expected %d found %d",
			estimateFeeSaveVersion, header.Version)
	}
	if header.BinSize == 0 {
		return nil, errors.New("fee estimator bin size is zero")
	}

	ef := &FeeEstimator{
		maxRollback:         header.MaxRollback,
		binSize:             int(header.BinSize),
		maxReplacements:     int(header.MaxReplacements),
		minRegisteredBlocks: header.MinRegisteredBlocks,
		minRelayTxFee:       btcutil.Amount(header.MinRelayTxFee),
		lastKnownHeight:     header.LastKnownHeight,
		numBlocksRegistered: header.NumBlocksRegistered,
		dropped:             make([]registeredBlock, 0, header.MaxRollback),
	}

	for kind := range ef.bins {
		for i := range ef.bins[kind] {
			var count uint32
			if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
				return nil, fmt.Errorf("unable to read bin "+
					"size: %v", err)
			}
			if count > header.BinSize {
				return nil, fmt.Errorf("bin holds %d "+
					"observations, more than the bin size "+
					"%d", count, header.BinSize)
			}

			bin := make([]*observation, 0, count)
			for j := uint32(0); j < count; j++ {
				var saved savedObservation
				err := binary.Read(r, binary.LittleEndian, &saved)
				if err != nil {
					return nil, fmt.Errorf("unable to read "+
						"observation: %v", err)
				}
				bin = append(bin, &observation{
					hash:     saved.Hash,
					value:    saved.Value,
					observed: saved.Observed,
					mined:    saved.Mined,
				})
			}
			ef.bins[kind][i] = bin
		}
	}

	if _, err := r.ReadByte(); err != io.EOF {
		return nil, errors.New("trailing data after fee estimator state")
	}
	return ef, nil
}
