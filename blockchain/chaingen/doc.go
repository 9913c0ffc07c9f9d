// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package chaingen provides facilities for generating a full chain of blocks.

Overview

Many consensus-related tests require a chain of valid blocks with contextual
information such as the height pushed by each coinbase, the founders reward,
the required difficulty and spendable, properly signed outputs.  Generating
such a chain by hand is tedious and error prone.

This package provides a generator that keeps track of the necessary state and
generates and solves blocks accordingly while allowing the caller to
manipulate the blocks via munge functions.  Every coinbase pays a
pay-to-pubkey-hash script of a key held by the generator, so the spends it
creates carry real signatures.
*/
package chaingen
