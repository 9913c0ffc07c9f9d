// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/internal/log"
	"github.com/btcpsuite/btcpd/mempool"
	"github.com/btcpsuite/btcpd/mining"
	"github.com/btcpsuite/btcpd/mining/cpuminer"
	"github.com/btcpsuite/btcpd/txscript"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/davecgh/go-spew/spew"
)

// server ties the chain, the transaction pool, the block template cache and
// the CPU miner together.  It keeps the pool and the templates in step with
// the chain tip and periodically refreshes the cached template.
type server struct {
	started  int32
	shutdown int32

	cfg          *config
	chainParams  *chaincfg.Params
	chain        *blockchain.MemChain
	txMemPool    mempool.TxMempool
	feeEstimator *mempool.FeeEstimator
	generator    *mining.BlkTmplGenerator
	templates    *mining.TemplateCache
	payouts      *cpuminer.AddrSource
	cpuMiner     *cpuminer.CPUMiner

	// refresh is signalled when the template should be rebuilt before
	// the next tick.
	refresh chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
}

// handleBlockchainNotification keeps the pool, the fee estimator and the
// template cache consistent with the connected and disconnected blocks of the
// chain.
func (s *server) handleBlockchainNotification(notification *blockchain.Notification) {
	switch notification.Type {
	case blockchain.NTBlockConnected:
		data, ok := notification.Data.(*blockchain.BlockNtfnsData)
		if !ok {
			log.BtpdLog.Warnf("Chain connected notification is not " +
				"block data.")
			break
		}

		// Remove the confirmed transactions and their conflicts.  The
		// pool passes its entries on to the fee estimator.
		s.txMemPool.RemoveForBlock(data.Block.Transactions, data.Height)
		s.templates.NotifyTipChanged()

		if s.chainParams.MineBlocksOnDemand {
			s.signalRefresh()
		}

	case blockchain.NTBlockDisconnected:
		data, ok := notification.Data.(*blockchain.BlockNtfnsData)
		if !ok {
			log.BtpdLog.Warnf("Chain disconnected notification is " +
				"not block data.")
			break
		}
		block := data.Block

		// The transactions of the block may enter the pool again.  The
		// coinbase never does.
		s.txMemPool.Unconfirm(block.Transactions)
		for _, tx := range block.Transactions[1:] {
			_, state := s.txMemPool.MaybeAcceptTransaction(tx, false)
			if state != nil {
				log.BtpdLog.Debugf("Dropped disconnected "+
					"transaction %v: %v", tx.TxHash(), state)
			}
		}

		// The commitment root produced by the block is gone unless an
		// earlier block produced the same one.
		anchor := blockchain.NextAnchor(s.chain.ShieldedAnchor(), block)
		if !s.chain.HasAnchor(&anchor) {
			removed := s.txMemPool.RemoveWithInvalidAnchor(anchor)
			if len(removed) > 0 {
				log.BtpdLog.Debugf("Removed %d %s proving against "+
					"anchor %v", len(removed),
					log.PickNoun(uint64(len(removed)),
						"transaction", "transactions"),
					anchor)
			}
		}
		s.txMemPool.RemoveCoinbaseSpends(data.Height)

		if s.feeEstimator != nil {
			err := s.feeEstimator.Rollback(data.Height)
			if err != nil {
				log.BtpdLog.Debugf("Fee estimator rollback of "+
					"block %d: %v", data.Height, err)
			}
		}
		s.templates.NotifyTipChanged()
	}
}

// signalRefresh asks the refresh handler to rebuild the template without
// waiting for the next tick.
func (s *server) signalRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// refreshTemplate runs the periodic pool maintenance and brings the cached
// template up to date.
func (s *server) refreshTemplate() {
	if s.cfg.CheckMempool {
		if err := s.txMemPool.Check(); err != nil {
			log.BtpdLog.Errorf("Transaction pool consistency check "+
				"failed: %v", err)
		}
	}

	if maxUsage := s.cfg.mempoolPolicy().MaxPoolUsage; maxUsage > 0 {
		evicted := s.txMemPool.LimitSize(maxUsage)
		if len(evicted) > 0 {
			log.BtpdLog.Infof("Evicted %d %s to fit the pool in %d "+
				"bytes", len(evicted),
				log.PickNoun(uint64(len(evicted)), "transaction",
					"transactions"), maxUsage)
		}
	}

	var payToScript []byte
	if s.payouts != nil {
		payToScript = s.payouts.NextScript()
	}
	template, err := s.templates.Template(payToScript)
	if err != nil {
		log.BtpdLog.Warnf("Unable to refresh block template: %v", err)
		return
	}
	log.BtpdLog.Tracef("Block template at height %d: %v", template.Height,
		log.NewLogClosure(func() string {
			return spew.Sdump(template.Block.Header)
		}))
}

// refreshHandler refreshes the cached template every TemplateRefresh and
// whenever it is signalled.
//
// It must be run as a goroutine.
func (s *server) refreshHandler() {
	ticker := time.NewTicker(s.cfg.TemplateRefresh)
	defer ticker.Stop()

out:
	for {
		select {
		case <-ticker.C:
			s.refreshTemplate()

		case <-s.refresh:
			s.refreshTemplate()

		case <-s.quit:
			break out
		}
	}

	s.wg.Done()
}

// processBlock connects a block produced by the CPU miner to the chain.
func (s *server) processBlock(block *wire.MsgBlock,
	flags blockchain.BehaviorFlags) error {

	return s.chain.ConnectBlock(block, flags)
}

// Start begins the template refresh and, when generation is enabled, the CPU
// miner.
func (s *server) Start() {
	// Already started?
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	log.BtpdLog.Trace("Starting server")

	s.wg.Add(1)
	go s.refreshHandler()

	// Start the CPU miner if generation is enabled.
	if s.cfg.Generate {
		s.cpuMiner.SetNumWorkers(s.cfg.GenProcLimit)
		s.cpuMiner.Start()
	}
}

// Stop gracefully shuts down the server and waits for its goroutines to
// finish.
func (s *server) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		log.BtpdLog.Infof("Server is already in the process of " +
			"shutting down")
		return nil
	}

	log.BtpdLog.Warnf("Server shutting down")

	// Stop the CPU miner if needed.
	s.cpuMiner.Stop()

	// Signal the remaining goroutines to quit.
	close(s.quit)
	s.wg.Wait()
	return nil
}

// newServer returns a server on the genesis block of the configured network.
// The fee estimator may be nil, in which case no fees are estimated.
func newServer(cfg *config, feeEstimator *mempool.FeeEstimator) (*server, error) {
	timeSource := blockchain.NewMedianTime()
	chain, err := blockchain.New(&blockchain.Config{
		ChainParams: cfg.params,
		Verifier:    txscript.NewVerifier(),
		Proofs:      blockchain.DisabledProofVerifier{},
		TimeSource:  timeSource,
	})
	if err != nil {
		return nil, err
	}

	txPool := mempool.New(&mempool.Config{
		Policy:       cfg.mempoolPolicy(),
		Chain:        chain,
		Verifier:     txscript.NewVerifier(),
		Proofs:       blockchain.DisabledProofVerifier{},
		FeeEstimator: feeEstimator,
		AddrIndex:    cfg.AddrIndex,
	})

	generator := mining.NewBlkTmplGenerator(&mining.Config{
		Policy:     cfg.miningPolicy(),
		TxSource:   txPool,
		Chain:      chain,
		TimeSource: timeSource,
		Verifier:   txscript.NewVerifier(),
		Proofs:     blockchain.DisabledProofVerifier{},
	})
	templates := mining.NewTemplateCache(generator)

	payouts, err := cpuminer.NewAddrSource(cfg.params, cfg.payouts)
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:          cfg,
		chainParams:  cfg.params,
		chain:        chain,
		txMemPool:    txPool,
		feeEstimator: feeEstimator,
		generator:    generator,
		templates:    templates,
		payouts:      payouts,
		refresh:      make(chan struct{}, 1),
		quit:         make(chan struct{}),
	}
	s.cpuMiner = cpuminer.New(&cpuminer.Config{
		BlockTemplateGenerator: generator,
		Templates:              templates,
		Payouts:                payouts,
		ProcessBlock:           s.processBlock,
	})
	chain.Subscribe(s.handleBlockchainNotification)

	return s, nil
}
