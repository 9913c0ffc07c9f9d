// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"errors"
	"fmt"

	"github.com/btcpsuite/btcpd/chaincfg"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// ErrUnknownAddressType describes an error where an address cannot be decoded
// as a pay-to-pubkey-hash or pay-to-script-hash address of the network.
var ErrUnknownAddressType = errors.New("unknown address type")

// EncodeAddress returns the base58check encoding of a pay-to-pubkey-hash or
// pay-to-script-hash address carrying the 20 byte hash.  The two byte
// network prefix of the class is placed in front of the hash.
func EncodeAddress(class ScriptClass, hash []byte,
	params *chaincfg.Params) (string, error) {

	if len(hash) != 20 {
		return "", fmt.Errorf("address hash must be 20 bytes, got %d",
			len(hash))
	}

	var prefix [2]byte
	switch class {
	case PubKeyHashTy:
		prefix = params.PubKeyHashAddrID
	case ScriptHashTy:
		prefix = params.ScriptHashAddrID
	default:
		return "", ErrUnknownAddressType
	}

	payload := make([]byte, 0, 1+len(hash))
	payload = append(payload, prefix[1])
	payload = append(payload, hash...)
	return base58.CheckEncode(payload, prefix[0]), nil
}

// DecodeAddress decodes a base58check address of the network into its class
// and 20 byte hash.
func DecodeAddress(addr string, params *chaincfg.Params) (ScriptClass, []byte, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return NonStandardTy, nil, fmt.Errorf("decoded address is of "+
			"unknown format: %v", err)
	}
	if len(payload) != 21 {
		return NonStandardTy, nil, ErrUnknownAddressType
	}

	prefix := [2]byte{version, payload[0]}
	switch prefix {
	case params.PubKeyHashAddrID:
		return PubKeyHashTy, payload[1:], nil
	case params.ScriptHashAddrID:
		return ScriptHashTy, payload[1:], nil
	}
	return NonStandardTy, nil, ErrUnknownAddressType
}

// PayToAddrScript returns the script paying to a base58check address of the
// network.
func PayToAddrScript(addr string, params *chaincfg.Params) ([]byte, error) {
	class, hash, err := DecodeAddress(addr, params)
	if err != nil {
		return nil, err
	}
	if class == ScriptHashTy {
		return PayToScriptHashScript(hash)
	}
	return PayToPubKeyHashScript(hash)
}
