// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mining assembles candidate blocks from the transactions of a pool.

Overview

A BlkTmplGenerator draws transactions from a TxSource, usually the mempool,
and orders them by priority until the high-priority area of the block is full
and then by fee per kilobyte.  Transactions that spend outputs of other pool
transactions wait until all of their parents are selected.  Each selected
transaction is checked against a working view of the unspent outputs so the
resulting block connects to the tip of the chain, which is verified before
the template is returned.

A TemplateCache sits in front of a generator and serves the same template
until the chain tip moves, or the pool changes and the template ages past the
staleness interval.  Its long poll identifiers let callers block until a
different template would be produced.

Policy collects the size and fee limits applied during selection, along with
the priority helpers shared with the mempool.
*/
package mining
