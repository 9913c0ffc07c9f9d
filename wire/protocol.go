// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
)

// BitcoinNet represents which network a message belongs to.
type BitcoinNet uint32

// Constants used to indicate the message network.  They are the four
// message start bytes read as a little endian uint32.
const (
	// MainNet represents the main network.
	MainNet BitcoinNet = 0xedb2eaa8

	// TestNet represents the test network.
	TestNet BitcoinNet = 0xc7c10af6

	// RegTest represents the regression test network.
	RegTest BitcoinNet = 0x5f3fe8aa
)

// bnStrings is a map of networks back to their constant names for pretty
// printing.
var bnStrings = map[BitcoinNet]string{
	MainNet: "MainNet",
	TestNet: "TestNet",
	RegTest: "RegTest",
}

// String returns the BitcoinNet in human-readable form.
func (n BitcoinNet) String() string {
	if s, ok := bnStrings[n]; ok {
		return s
	}

	return fmt.Sprintf("Unknown BitcoinNet (%d)", uint32(n))
}
