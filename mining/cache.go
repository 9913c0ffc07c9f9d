// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// DefaultTemplateStaleness is how long a cached template is served
	// after the pool changed before it is rebuilt.
	DefaultTemplateStaleness = 5 * time.Second

	// DefaultLongPollPoolDelay is how long a long poll waits before
	// transaction pool changes alone end it.
	DefaultLongPollPoolDelay = time.Minute

	// DefaultLongPollPoolInterval is how often a long poll checks the
	// transaction pool once the delay has passed.
	DefaultLongPollPoolInterval = 10 * time.Second
)

// TemplateCache serves block templates from a generator, rebuilding them when
// the chain tip changes, or when the transaction pool changed and the cached
// template is older than the staleness interval.  It also lets callers wait
// for a change that would produce a different template.
//
// TemplateCache is safe for concurrent access.
type TemplateCache struct {
	generator *BlkTmplGenerator

	// Staleness, PoolDelay and PoolInterval default to the package
	// constants when zero.
	Staleness    time.Duration
	PoolDelay    time.Duration
	PoolInterval time.Duration

	// now returns the current time.
	now func() time.Time

	mtx         sync.Mutex
	template    *BlockTemplate
	payToScript []byte
	tipHash     chainhash.Hash
	poolVersion uint64
	built       time.Time

	// tipChanged is closed and replaced every time NotifyTipChanged is
	// called.
	tipChanged chan struct{}
}

// NewTemplateCache returns an empty template cache backed by generator.
func NewTemplateCache(generator *BlkTmplGenerator) *TemplateCache {
	return &TemplateCache{
		generator:  generator,
		now:        time.Now,
		tipChanged: make(chan struct{}),
	}
}

func (c *TemplateCache) staleness() time.Duration {
	if c.Staleness == 0 {
		return DefaultTemplateStaleness
	}
	return c.Staleness
}

// Template returns a copy of the cached template paying to payToScript,
// building a new one when there is none, when the chain tip moved, or when
// the transaction pool changed and the cached template is older than the
// staleness interval.
func (c *TemplateCache) Template(payToScript []byte) (*BlockTemplate, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	tipHash := c.generator.Chain().Tip().BlockHash()
	poolVersion := c.generator.TxSource().PoolVersion()
	now := c.now()

	if c.template != nil && c.tipHash == tipHash &&
		bytes.Equal(c.payToScript, payToScript) &&
		(c.poolVersion == poolVersion ||
			now.Sub(c.built) <= c.staleness()) {

		return c.template.Copy(), nil
	}

	template, err := c.generator.NewBlockTemplate(payToScript)
	if err != nil {
		return nil, err
	}
	c.template = template
	c.payToScript = append([]byte(nil), payToScript...)
	c.tipHash = template.Block.Header.PrevBlock
	c.poolVersion = poolVersion
	c.built = now

	log.Debugf("Cached block template at height %d (long poll id %s)",
		template.Height, c.longPollID())
	return template.Copy(), nil
}

// LongPollID returns the identifier of the cached template, which combines
// the tip it extends with the pool version it was built from.  It is empty
// when nothing is cached.
func (c *TemplateCache) LongPollID() string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.template == nil {
		return ""
	}
	return c.longPollID()
}

// longPollID must be called with the lock held.
func (c *TemplateCache) longPollID() string {
	return LongPollID(&c.tipHash, c.poolVersion)
}

// LongPollID formats the long poll identifier for a template that extends
// tipHash and was built from the given pool version.
func LongPollID(tipHash *chainhash.Hash, poolVersion uint64) string {
	return fmt.Sprintf("%s%d", tipHash, poolVersion)
}

// parseLongPollID splits a long poll identifier into its tip hash and pool
// version.
func parseLongPollID(id string) (*chainhash.Hash, uint64, error) {
	const hashLen = chainhash.HashSize * 2
	if len(id) <= hashLen {
		return nil, 0, fmt.Errorf("long poll id %q is too short", id)
	}
	tipHash, err := chainhash.NewHashFromStr(id[:hashLen])
	if err != nil {
		return nil, 0, err
	}
	var poolVersion uint64
	if _, err := fmt.Sscanf(id[hashLen:], "%d", &poolVersion); err != nil {
		return nil, 0, fmt.Errorf("long poll id %q has a bad pool "+
			"version: %v", id, err)
	}
	return tipHash, poolVersion, nil
}

// NotifyTipChanged wakes up every caller blocked in WaitForChange.  It must
// be called whenever the chain tip changes.
func (c *TemplateCache) NotifyTipChanged() {
	c.mtx.Lock()
	close(c.tipChanged)
	c.tipChanged = make(chan struct{})
	c.mtx.Unlock()
}

// WaitForChange blocks until the chain tip no longer matches the one encoded
// in id or, once the pool delay has passed, until the transaction pool
// version differs from the encoded one.  It returns the context error when
// ctx is done first.
func (c *TemplateCache) WaitForChange(ctx context.Context, id string) error {
	tipHash, poolVersion, err := parseLongPollID(id)
	if err != nil {
		return err
	}

	poolDelay := c.PoolDelay
	if poolDelay == 0 {
		poolDelay = DefaultLongPollPoolDelay
	}
	poolInterval := c.PoolInterval
	if poolInterval == 0 {
		poolInterval = DefaultLongPollPoolInterval
	}

	chain := c.generator.Chain()
	txSource := c.generator.TxSource()
	poolTimer := time.NewTimer(poolDelay)
	defer poolTimer.Stop()

	for {
		c.mtx.Lock()
		tipChanged := c.tipChanged
		c.mtx.Unlock()

		if chain.Tip().BlockHash() != *tipHash {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tipChanged:

		case <-poolTimer.C:
			if txSource.PoolVersion() != poolVersion {
				return nil
			}
			poolTimer.Reset(poolInterval)
		}
	}
}
