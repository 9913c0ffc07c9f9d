// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cpuminer

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcpsuite/btcpd/txscript"
)

// PayoutSource provides the scripts mined blocks pay to.  Implementations
// must be safe for concurrent access.
type PayoutSource interface {
	// NextScript returns the payout script of the next block.
	NextScript() []byte

	// NumScripts returns the number of available payout scripts.
	NumScripts() int
}

// AddrSource is a PayoutSource backed by a set of base58 addresses of one
// network.  Each block pays to one of them chosen at random.
type AddrSource struct {
	params *chaincfg.Params

	mu      sync.RWMutex
	addrs   []string
	scripts [][]byte
}

// Ensure AddrSource implements PayoutSource.
var _ PayoutSource = (*AddrSource)(nil)

// NewAddrSource returns an address source for the network holding the passed
// addresses.  It fails on the first address that cannot be decoded or that
// is listed twice.
func NewAddrSource(params *chaincfg.Params, addrs []string) (*AddrSource, error) {
	s := &AddrSource{params: params}
	for _, addr := range addrs {
		if err := s.AddAddr(addr); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NextScript returns the payout script of a random address, or nil when the
// source is empty.
func (s *AddrSource) NextScript() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.scripts) == 0 {
		return nil
	}
	return s.scripts[rand.Intn(len(s.scripts))]
}

// NumScripts returns the number of addresses in the source.
func (s *AddrSource) NumScripts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scripts)
}

// Addrs returns the addresses of the source.
func (s *AddrSource) Addrs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.addrs...)
}

// AddAddr adds an address to the source.
func (s *AddrSource) AddAddr(addr string) error {
	script, err := txscript.PayToAddrScript(addr, s.params)
	if err != nil {
		return fmt.Errorf("mining address %q: %w", addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.addrs {
		if a == addr {
			return fmt.Errorf("duplicate mining address %q", addr)
		}
	}
	s.addrs = append(s.addrs, addr)
	s.scripts = append(s.scripts, script)
	return nil
}

// RemoveAddr removes an address from the source.
func (s *AddrSource) RemoveAddr(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.addrs {
		if a != addr {
			continue
		}
		s.addrs = append(s.addrs[:i], s.addrs[i+1:]...)
		s.scripts = append(s.scripts[:i], s.scripts[i+1:]...)
		return nil
	}
	return fmt.Errorf("mining address %q not found", addr)
}
