// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cpuminer

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// maxNonce is the largest value of the search counter spread over the
	// nonce bytes the template leaves cleared.
	maxNonce = ^uint32(0) // 2^32 - 1

	// maxExtraNonce is the maximum value an extra nonce used in a coinbase
	// transaction can be.
	maxExtraNonce = ^uint64(0) // 2^64 - 1

	// hpsUpdateSecs is the number of seconds to wait in between each
	// update to the hashes per second monitor.
	hpsUpdateSecs = 10

	// hashUpdateSecs is the number of seconds each worker waits in between
	// notifying the speed monitor with how many hashes have been completed
	// while they are actively searching for a solution.
	hashUpdateSecs = 15

	// staleTemplateAge is how long a worker keeps solving a template after
	// the transaction pool changed.
	staleTemplateAge = time.Minute
)

var (
	// defaultNumWorkers is the default number of workers to use for mining
	// and is based on the number of processor cores.
	defaultNumWorkers = uint32(runtime.NumCPU())

	// ErrAlreadyMining is returned by GenerateNBlocks while the miner is
	// running.
	ErrAlreadyMining = errors.New("the CPU miner is already running")

	// ErrNoPayoutScripts is returned by GenerateNBlocks when there is no
	// payout address to mine to.
	ErrNoPayoutScripts = errors.New("no mining addresses configured")
)

// Config is a descriptor containing the cpu miner configuration.
type Config struct {
	// BlockTemplateGenerator refreshes the time and difficulty of the
	// templates being solved and supplies the chain and transaction
	// source used to detect stale work.
	BlockTemplateGenerator *mining.BlkTmplGenerator

	// Templates serves the block templates the miner attempts to solve.
	Templates *mining.TemplateCache

	// Payouts provides the scripts the generated blocks pay to.
	Payouts PayoutSource

	// ProcessBlock defines the function to call with any solved blocks.
	// It typically must run the provided block through the same set of
	// rules and handling as any other block.
	ProcessBlock func(*wire.MsgBlock, blockchain.BehaviorFlags) error
}

// CPUMiner provides facilities for solving blocks (mining) using the CPU in
// a concurrency-safe manner.  It consists of two main goroutines, a speed
// monitor and a controller for worker goroutines which generate and solve
// blocks.  The number of workers can be set via SetNumWorkers, but the
// default is based on the number of processor cores in the system.
//
// Blocks are solved by searching for a header hash at or below the target of
// the header bits.  The solution field of the header is left empty.
type CPUMiner struct {
	sync.Mutex
	g                 *mining.BlkTmplGenerator
	cfg               Config
	numWorkers        uint32
	started           bool
	discreteMining    bool
	submitBlockLock   sync.Mutex
	wg                sync.WaitGroup
	workerWg          sync.WaitGroup
	updateNumWorkers  chan struct{}
	queryHashesPerSec chan float64
	updateHashes      chan uint64
	speedMonitorQuit  chan struct{}
	quit              chan struct{}
}

// speedMonitor handles tracking the number of hashes per second the mining
// process is performing.  It must be run as a goroutine.
func (m *CPUMiner) speedMonitor() {
	log.Tracef("CPU miner speed monitor started")

	var hashesPerSec float64
	var totalHashes uint64
	ticker := time.NewTicker(time.Second * hpsUpdateSecs)
	defer ticker.Stop()

out:
	for {
		select {
		case numHashes := <-m.updateHashes:
			totalHashes += numHashes

		case <-ticker.C:
			curHashesPerSec := float64(totalHashes) / hpsUpdateSecs
			if hashesPerSec == 0 {
				hashesPerSec = curHashesPerSec
			}
			hashesPerSec = (hashesPerSec + curHashesPerSec) / 2
			totalHashes = 0
			if hashesPerSec != 0 {
				log.Debugf("Hash speed: %6.0f kilohashes/s",
					hashesPerSec/1000)
			}

		case m.queryHashesPerSec <- hashesPerSec:

		case <-m.speedMonitorQuit:
			break out
		}
	}

	m.wg.Done()
	log.Tracef("CPU miner speed monitor done")
}

// submitBlock connects a solved block after making sure it still extends the
// chain tip.
func (m *CPUMiner) submitBlock(block *wire.MsgBlock) bool {
	m.submitBlockLock.Lock()
	defer m.submitBlockLock.Unlock()

	// A new block may have shown up while the solution was being found.
	tipHash := m.g.Chain().Tip().BlockHash()
	if block.Header.PrevBlock != tipHash {
		log.Debugf("Block submitted via CPU miner with previous "+
			"block %s is stale", block.Header.PrevBlock)
		return false
	}

	if err := m.cfg.ProcessBlock(block, blockchain.BFNone); err != nil {
		// Anything other than a rule violation is an unexpected error,
		// so log that error as an internal error.
		var rerr blockchain.RuleError
		if !errors.As(err, &rerr) {
			log.Errorf("Unexpected error while processing "+
				"block submitted via CPU miner: %v", err)
			return false
		}

		log.Debugf("Block submitted via CPU miner rejected: %v", err)
		return false
	}

	coinbaseTx := block.Transactions[0].TxOut[0]
	log.Infof("Block submitted via CPU miner accepted (hash %s, "+
		"amount %v)", block.BlockHash(), btcutil.Amount(coinbaseTx.Value))
	return true
}

// putNonce spreads the search counter over the two leading and two trailing
// bytes of the header nonce, which block templates leave cleared.
func putNonce(nonce *chainhash.Hash, n uint32) {
	nonce[0] = byte(n)
	nonce[1] = byte(n >> 8)
	nonce[chainhash.HashSize-2] = byte(n >> 16)
	nonce[chainhash.HashSize-1] = byte(n >> 24)
}

// randomUint64 returns a cryptographically random uint64 value.
func randomUint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// solveBlock attempts to find some combination of a nonce, extra nonce, and
// current timestamp which makes the passed block hash to a value less than the
// target difficulty.  The timestamp is updated periodically and the passed
// block is modified with all tweaks during this process.  This means that
// when the function returns true, the block is ready for submission.
//
// This function will return early with false when conditions that trigger a
// stale block such as a new block showing up or periodically when there are
// new transactions and enough time has elapsed without finding a solution.
func (m *CPUMiner) solveBlock(msgBlock *wire.MsgBlock, blockHeight int32,
	ticker *time.Ticker, quit chan struct{}) bool {

	// Choose a random extra nonce offset for this block template and
	// worker.
	enOffset, err := randomUint64()
	if err != nil {
		log.Errorf("Unexpected error while generating random "+
			"extra nonce offset: %v", err)
		enOffset = 0
	}

	header := &msgBlock.Header
	targetDifficulty := blockchain.CompactToBig(header.Bits)

	lastGenerated := time.Now()
	lastPoolVersion := m.g.TxSource().PoolVersion()
	hashesCompleted := uint64(0)

	// The entire extra nonce range is iterated and the offset is added
	// relying on overflow wrapping around 0.
	for extraNonce := uint64(0); extraNonce < maxExtraNonce; extraNonce++ {
		err := mining.UpdateExtraNonce(msgBlock, blockHeight,
			extraNonce+enOffset)
		if err != nil {
			log.Errorf("Unable to update the extra nonce: %v", err)
			return false
		}

		for i := uint32(0); ; i++ {
			select {
			case <-quit:
				return false

			case <-ticker.C:
				m.updateHashes <- hashesCompleted
				hashesCompleted = 0

				// The current block is stale if the best block
				// has changed.
				tipHash := m.g.Chain().Tip().BlockHash()
				if header.PrevBlock != tipHash {
					return false
				}

				// The current block is stale if the pool
				// changed since the template was generated and
				// it has been solved on for a while.
				if lastPoolVersion != m.g.TxSource().PoolVersion() &&
					time.Since(lastGenerated) > staleTemplateAge {

					return false
				}

				if err := m.g.UpdateBlockTime(msgBlock); err != nil {
					return false
				}
				targetDifficulty = blockchain.CompactToBig(header.Bits)

			default:
			}

			// Each hash is a double sha256, so count two hashes
			// per attempt.
			putNonce(&header.Nonce, i)
			hash := header.BlockHash()
			hashesCompleted += 2

			if blockchain.HashToBig(&hash).Cmp(targetDifficulty) <= 0 {
				m.updateHashes <- hashesCompleted
				return true
			}
			if i == maxNonce {
				break
			}
		}
	}

	return false
}

// nextTemplate returns a template to solve paying to the next payout script.
// It grabs the block submission lock so it does not build on a block that is
// in the process of becoming stale.
func (m *CPUMiner) nextTemplate() (*mining.BlockTemplate, error) {
	m.submitBlockLock.Lock()
	defer m.submitBlockLock.Unlock()

	template, err := m.cfg.Templates.Template(m.cfg.Payouts.NextScript())
	if err != nil {
		log.Errorf("Failed to create new block template: %v", err)
		return nil, err
	}
	return template, nil
}

// generateBlocks is a worker that is controlled by the miningWorkerController.
// It is self contained in that it creates block templates and attempts to solve
// them while detecting when it is performing stale work and reacting
// accordingly by generating a new block template.  When a block is solved, it
// is submitted.
//
// It must be run as a goroutine.
func (m *CPUMiner) generateBlocks(quit chan struct{}) {
	log.Tracef("Starting generate blocks worker")

	// Start a ticker which is used to signal checks for stale work and
	// updates to the speed monitor.
	ticker := time.NewTicker(time.Second * hashUpdateSecs)
	defer ticker.Stop()
out:
	for {
		select {
		case <-quit:
			break out
		default:
		}

		if m.cfg.Payouts.NumScripts() == 0 {
			time.Sleep(time.Second)
			continue
		}

		template, err := m.nextTemplate()
		if err != nil {
			time.Sleep(time.Second)
			continue
		}

		if m.solveBlock(template.Block, template.Height, ticker, quit) {
			m.submitBlock(template.Block)
		}
	}

	m.workerWg.Done()
	log.Tracef("Generate blocks worker done")
}

// miningWorkerController launches the worker goroutines that are used to
// generate block templates and solve them.  It also provides the ability to
// dynamically adjust the number of running worker goroutines.
//
// It must be run as a goroutine.
func (m *CPUMiner) miningWorkerController() {
	var runningWorkers []chan struct{}
	launchWorkers := func(numWorkers uint32) {
		for i := uint32(0); i < numWorkers; i++ {
			quit := make(chan struct{})
			runningWorkers = append(runningWorkers, quit)

			m.workerWg.Add(1)
			go m.generateBlocks(quit)
		}
	}

	runningWorkers = make([]chan struct{}, 0, m.numWorkers)
	launchWorkers(m.numWorkers)

out:
	for {
		select {
		case <-m.updateNumWorkers:
			numRunning := uint32(len(runningWorkers))
			if m.numWorkers == numRunning {
				continue
			}

			if m.numWorkers > numRunning {
				launchWorkers(m.numWorkers - numRunning)
				continue
			}

			// Signal the most recently created goroutines to exit.
			for i := numRunning - 1; i >= m.numWorkers; i-- {
				close(runningWorkers[i])
				runningWorkers[i] = nil
				runningWorkers = runningWorkers[:i]
			}

		case <-m.quit:
			for _, quit := range runningWorkers {
				close(quit)
			}
			break out
		}
	}

	// Workers send updates to the speed monitor, so it stops last.
	m.workerWg.Wait()
	close(m.speedMonitorQuit)
	m.wg.Done()
}

// Start begins the CPU mining process as well as the speed monitor used to
// track hashing metrics.  Calling this function when the CPU miner has
// already been started will have no effect.
//
// This function is safe for concurrent access.
func (m *CPUMiner) Start() {
	m.Lock()
	defer m.Unlock()

	if m.started || m.discreteMining {
		return
	}

	m.quit = make(chan struct{})
	m.speedMonitorQuit = make(chan struct{})
	m.wg.Add(2)
	go m.speedMonitor()
	go m.miningWorkerController()

	m.started = true
	log.Infof("CPU miner started with %d %s", m.numWorkers,
		pickNoun(int(m.numWorkers), "worker", "workers"))
}

// Stop gracefully stops the mining process by signalling all workers, and the
// speed monitor to quit.  Calling this function when the CPU miner has not
// already been started will have no effect.
//
// This function is safe for concurrent access.
func (m *CPUMiner) Stop() {
	m.Lock()
	defer m.Unlock()

	if !m.started || m.discreteMining {
		return
	}

	close(m.quit)
	m.wg.Wait()
	m.started = false
	log.Infof("CPU miner stopped")
}

// IsMining returns whether or not the CPU miner has been started and is
// therefore currently mining.
//
// This function is safe for concurrent access.
func (m *CPUMiner) IsMining() bool {
	m.Lock()
	defer m.Unlock()

	return m.started
}

// HashesPerSecond returns the number of hashes per second the mining process
// is performing.  0 is returned if the miner is not currently running.
//
// This function is safe for concurrent access.
func (m *CPUMiner) HashesPerSecond() float64 {
	m.Lock()
	defer m.Unlock()

	if !m.started {
		return 0
	}

	return <-m.queryHashesPerSec
}

// SetNumWorkers sets the number of workers to create which solve blocks.  Any
// negative values will cause a default number of workers to be used which is
// based on the number of processor cores in the system.  A value of 0 will
// cause all CPU mining to be stopped.
//
// This function is safe for concurrent access.
func (m *CPUMiner) SetNumWorkers(numWorkers int32) {
	if numWorkers == 0 {
		m.Stop()
	}

	// Stop does its own locking.
	m.Lock()
	defer m.Unlock()

	if numWorkers < 0 {
		m.numWorkers = defaultNumWorkers
	} else {
		m.numWorkers = uint32(numWorkers)
	}

	if m.started && !m.discreteMining {
		m.updateNumWorkers <- struct{}{}
	}
}

// NumWorkers returns the number of workers which are running to solve blocks.
//
// This function is safe for concurrent access.
func (m *CPUMiner) NumWorkers() int32 {
	m.Lock()
	defer m.Unlock()

	return int32(m.numWorkers)
}

// GenerateNBlocks generates the requested number of blocks on the calling
// goroutine.  It creates block templates and attempts to solve them while
// detecting stale work, submitting every solved block.  The hashes of the
// generated blocks are returned.
func (m *CPUMiner) GenerateNBlocks(n uint32) ([]*chainhash.Hash, error) {
	m.Lock()
	if m.started || m.discreteMining {
		m.Unlock()
		return nil, ErrAlreadyMining
	}
	if m.cfg.Payouts.NumScripts() == 0 {
		m.Unlock()
		return nil, ErrNoPayoutScripts
	}

	m.started = true
	m.discreteMining = true

	m.speedMonitorQuit = make(chan struct{})
	m.wg.Add(1)
	go m.speedMonitor()

	m.Unlock()

	log.Tracef("Generating %d blocks", n)

	defer func() {
		m.Lock()
		close(m.speedMonitorQuit)
		m.wg.Wait()
		m.started = false
		m.discreteMining = false
		m.Unlock()
	}()

	ticker := time.NewTicker(time.Second * hashUpdateSecs)
	defer ticker.Stop()

	blockHashes := make([]*chainhash.Hash, 0, n)
	for uint32(len(blockHashes)) < n {
		template, err := m.nextTemplate()
		if err != nil {
			return blockHashes, err
		}

		if !m.solveBlock(template.Block, template.Height, ticker, nil) {
			continue
		}
		if m.submitBlock(template.Block) {
			hash := template.Block.BlockHash()
			blockHashes = append(blockHashes, &hash)
		}
	}

	log.Tracef("Generated %d blocks", len(blockHashes))
	return blockHashes, nil
}

// New returns a new instance of a CPU miner for the provided configuration.
// Use Start to begin the mining process.  See the documentation for CPUMiner
// type for more details.
func New(cfg *Config) *CPUMiner {
	return &CPUMiner{
		g:                 cfg.BlockTemplateGenerator,
		cfg:               *cfg,
		numWorkers:        defaultNumWorkers,
		updateNumWorkers:  make(chan struct{}),
		queryHashesPerSec: make(chan float64),
		updateHashes:      make(chan uint64),
	}
}
