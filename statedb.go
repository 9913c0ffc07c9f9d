// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/btcpsuite/btcpd/internal/log"
	"github.com/btcpsuite/btcpd/mempool"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	// stateDbName is the directory under the data directory holding the
	// node state kept between runs.
	stateDbName = "state"

	// estimateFeeKey is the key of the saved fee estimator state.
	estimateFeeKey = "estimatefee"
)

// stateDB is the leveldb store of the node state that outlives a run.
type stateDB struct {
	db *leveldb.DB
}

// openStateDB opens, creating it when missing, the state store of the data
// directory.
func openStateDB(dataDir string) (*stateDB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dataDir, stateDbName)
	db, err := leveldb.OpenFile(dbPath, &opt.Options{
		Strict: opt.DefaultStrict,
	})
	if err != nil {
		return nil, err
	}
	log.BtpdLog.Debugf("Opened state database %s", dbPath)
	return &stateDB{db: db}, nil
}

// Close closes the store.
func (s *stateDB) Close() error {
	return s.db.Close()
}

// loadFeeEstimator restores the saved fee estimator, or returns a new one
// when nothing was saved or the saved state cannot be restored.  The saved
// state is deleted so that it is never restored twice.
func (s *stateDB) loadFeeEstimator(minRelayTxFee btcutil.Amount) (*mempool.FeeEstimator, error) {
	newEstimator := func() *mempool.FeeEstimator {
		return mempool.NewFeeEstimator(
			mempool.DefaultEstimateFeeMaxRollback,
			mempool.DefaultEstimateFeeMinRegisteredBlocks,
			minRelayTxFee)
	}

	state, err := s.db.Get([]byte(estimateFeeKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return newEstimator(), nil
	}
	if err != nil {
		return nil, err
	}

	estimator, err := mempool.RestoreFeeEstimator(state)
	if err != nil {
		log.BtpdLog.Errorf("Failed to restore fee estimator %v", err)
		estimator = newEstimator()
	}

	if err := s.db.Delete([]byte(estimateFeeKey), nil); err != nil {
		return nil, err
	}
	return estimator, nil
}

// saveFeeEstimator stores the state of the fee estimator.
func (s *stateDB) saveFeeEstimator(estimator *mempool.FeeEstimator) error {
	return s.db.Put([]byte(estimateFeeKey), estimator.Save(),
		&opt.WriteOptions{Sync: true})
}
