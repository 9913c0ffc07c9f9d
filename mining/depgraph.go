// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// depGraph tracks the candidates of a block template that spend outputs of
// other pool transactions which have not been selected yet.  Candidates are
// referred to by their index in items, so growing the graph never
// invalidates what waiters holds.
type depGraph struct {
	// items holds every waiting candidate, indexed by its id.
	items []*txPrioItem

	// unmet holds, for each id, the number of distinct parent transactions
	// that still have to be selected.
	unmet []int

	// waiters maps the hash of a parent transaction to the ids of the
	// candidates waiting on it.
	waiters map[chainhash.Hash][]int
}

// newDepGraph returns an empty dependency graph.
func newDepGraph() *depGraph {
	return &depGraph{
		waiters: make(map[chainhash.Hash][]int),
	}
}

// add records item as waiting on every parent in dependsOn and returns its id.
func (g *depGraph) add(item *txPrioItem, dependsOn map[chainhash.Hash]struct{}) int {
	id := len(g.items)
	g.items = append(g.items, item)
	g.unmet = append(g.unmet, len(dependsOn))
	for parent := range dependsOn {
		g.waiters[parent] = append(g.waiters[parent], id)
	}
	return id
}

// satisfy marks the parent transaction as selected and returns the candidates
// whose last unmet parent it was, in the order they were added.
func (g *depGraph) satisfy(parent chainhash.Hash) []*txPrioItem {
	ids, ok := g.waiters[parent]
	if !ok {
		return nil
	}
	delete(g.waiters, parent)

	var ready []*txPrioItem
	for _, id := range ids {
		g.unmet[id]--
		if g.unmet[id] == 0 {
			ready = append(ready, g.items[id])
		}
	}
	return ready
}

// waitingOn returns the candidates that wait on parent.
func (g *depGraph) waitingOn(parent chainhash.Hash) []*txPrioItem {
	ids := g.waiters[parent]
	items := make([]*txPrioItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, g.items[id])
	}
	return items
}

// pending returns the number of candidates still waiting on a parent.
func (g *depGraph) pending() int {
	n := 0
	for _, count := range g.unmet {
		if count > 0 {
			n++
		}
	}
	return n
}
