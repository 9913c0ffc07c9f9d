// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScriptClasses(t *testing.T) {
	t.Parallel()

	hash := bytes.Repeat([]byte{0x11}, 20)
	pubKey := append([]byte{0x02}, bytes.Repeat([]byte{0x22}, 32)...)

	p2pkh, err := PayToPubKeyHashScript(hash)
	require.NoError(t, err)
	p2sh, err := PayToScriptHashScript(hash)
	require.NoError(t, err)
	p2pk, err := PayToPubKeyScript(pubKey)
	require.NoError(t, err)
	nullData, err := NullDataScript([]byte("hello"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		script []byte
		class  ScriptClass
	}{
		{"p2pkh", p2pkh, PubKeyHashTy},
		{"p2sh", p2sh, ScriptHashTy},
		{"p2pk", p2pk, PubKeyTy},
		{"nulldata", nullData, NullDataTy},
		{"empty", nil, NonStandardTy},
		{"malformed", []byte{OP_DATA_20, 0x01}, NonStandardTy},
	}
	for _, test := range tests {
		require.Equal(t, test.class, GetScriptClass(test.script),
			test.name)
	}

	require.True(t, IsPayToScriptHash(p2sh))
	require.False(t, IsPayToScriptHash(p2pkh))

	_, err = NullDataScript(make([]byte, MaxDataCarrierSize+1))
	require.True(t, IsErrorCode(err, ErrUnsupportedScript))
	_, err = PayToPubKeyHashScript(hash[:19])
	require.Error(t, err)
}

func TestExtractAddressHash(t *testing.T) {
	t.Parallel()

	hash := bytes.Repeat([]byte{0x33}, 20)
	p2pkh, err := PayToPubKeyHashScript(hash)
	require.NoError(t, err)
	class, got := ExtractAddressHash(p2pkh)
	require.Equal(t, PubKeyHashTy, class)
	require.Equal(t, hash, got)

	p2sh, err := PayToScriptHashScript(hash)
	require.NoError(t, err)
	class, got = ExtractAddressHash(p2sh)
	require.Equal(t, ScriptHashTy, class)
	require.Equal(t, hash, got)

	class, got = ExtractAddressHash([]byte{OP_RETURN})
	require.Equal(t, NonStandardTy, class)
	require.Nil(t, got)
}

func TestSigOpCounts(t *testing.T) {
	t.Parallel()

	hash := bytes.Repeat([]byte{0x44}, 20)
	p2pkh, err := PayToPubKeyHashScript(hash)
	require.NoError(t, err)
	require.Equal(t, 1, GetSigOpCount(p2pkh))

	pubKey := append([]byte{0x03}, bytes.Repeat([]byte{0x55}, 32)...)
	multi, err := NewScriptBuilder().AddOp(OP_1).AddData(pubKey).
		AddData(pubKey).AddOp(OP_1 + 1).AddOp(OP_CHECKMULTISIG).Script()
	require.NoError(t, err)

	// The legacy count assumes the maximum number of keys while the
	// precise count reads the key count.
	require.Equal(t, MaxPubKeysPerMultiSig, GetSigOpCount(multi))
	require.Equal(t, 2, GetPreciseSigOpCount(nil, multi, true))

	p2sh, err := PayToScriptHashScript(hash)
	require.NoError(t, err)
	sigScript, err := NewScriptBuilder().AddOp(OP_0).AddData(multi).Script()
	require.NoError(t, err)
	require.Equal(t, 2, GetPreciseSigOpCount(sigScript, p2sh, true))
	require.Equal(t, 0, GetPreciseSigOpCount(sigScript, p2sh, false))
}

func TestAddInt64Encoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		val  int64
		want []byte
	}{
		{0, []byte{OP_0}},
		{1, []byte{OP_1}},
		{16, []byte{OP_16}},
		{-1, []byte{OP_1NEGATE}},
		{17, []byte{OP_DATA_1, 0x11}},
		{128, []byte{0x02, 0x80, 0x00}},
		{500000, []byte{0x03, 0x20, 0xa1, 0x07}},
	}
	for _, test := range tests {
		got, err := NewScriptBuilder().AddInt64(test.val).Script()
		require.NoError(t, err)
		require.Equal(t, test.want, got, "value %d", test.val)
	}
}
