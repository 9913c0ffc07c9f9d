// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sampleconfig provides a single constant that contains the contents of
the sample configuration file for btcpd.  It is written as the default
configuration file on first run so the file documents every option.
*/
package sampleconfig
