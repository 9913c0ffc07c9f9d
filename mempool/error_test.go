// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"testing"

	"github.com/btcpsuite/btcpd/blockchain"
	"github.com/btcpsuite/btcpd/wire"
	"github.com/stretchr/testify/require"
)

func TestNewValidationState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		kind     ErrorKind
		code     wire.RejectCode
		reason   string
		banScore uint32
	}{
		{
			name:   "policy",
			err:    txRuleError(wire.RejectInsufficientFee, "low fee"),
			kind:   PolicyRejection,
			code:   wire.RejectInsufficientFee,
			reason: "low fee",
		},
		{
			name:     "pool full",
			err:      poolFullError("mempool full"),
			kind:     ResourceExhausted,
			code:     wire.RejectInsufficientFee,
			reason:   "mempool full",
			banScore: banScoreResource,
		},
		{
			name: "bad proof",
			err: chainRuleError(blockchain.RuleError{
				ErrorCode:   blockchain.ErrBadProof,
				Description: "proof does not verify",
			}),
			kind:     ConsensusInvalid,
			code:     wire.RejectInvalid,
			reason:   blockchain.ErrBadProof.RejectReason(),
			banScore: banScoreConsensus,
		},
		{
			name: "missing input",
			err: chainRuleError(blockchain.RuleError{
				ErrorCode:   blockchain.ErrMissingTxOut,
				Description: "missing",
			}),
			kind:   ConsensusInvalid,
			code:   wire.RejectInvalid,
			reason: blockchain.ErrMissingTxOut.RejectReason(),
		},
		{
			name: "unwrapped chain error",
			err: blockchain.RuleError{
				ErrorCode:   blockchain.ErrDuplicateTx,
				Description: "duplicate",
			},
			kind:   ConsensusInvalid,
			code:   wire.RejectDuplicate,
			reason: blockchain.ErrDuplicateTx.RejectReason(),
		},
		{
			name:   "broken invariant",
			err:    AssertError("bad index"),
			kind:   InconsistentState,
			code:   wire.RejectInvalid,
			reason: "mempool assertion failed: bad index",
		},
		{
			name:   "unknown",
			err:    errors.New("boom"),
			kind:   ConsensusInvalid,
			code:   wire.RejectInvalid,
			reason: "boom",
		},
	}

	for _, test := range tests {
		state := NewValidationState(test.err)
		require.NotNil(t, state, test.name)
		require.Equal(t, test.kind, state.Kind, test.name)
		require.Equal(t, test.code, state.RejectCode, test.name)
		require.Equal(t, test.reason, state.Reason, test.name)
		require.Equal(t, test.banScore, state.BanScore, test.name)
		require.Equal(t, test.err, state.Err, test.name)
	}

	require.Nil(t, NewValidationState(nil))
}

func TestErrToRejectErr(t *testing.T) {
	t.Parallel()

	code, reason := ErrToRejectErr(nil)
	require.Equal(t, wire.RejectInvalid, code)
	require.Equal(t, "rejected", reason)

	code, reason = ErrToRejectErr(errors.New("boom"))
	require.Equal(t, wire.RejectInvalid, code)
	require.Equal(t, "rejected: boom", reason)

	code, reason = ErrToRejectErr(txRuleError(wire.RejectDust, "dust"))
	require.Equal(t, wire.RejectDust, code)
	require.Equal(t, "dust", reason)

	code, _ = ErrToRejectErr(chainRuleError(blockchain.RuleError{
		ErrorCode: blockchain.ErrUnfinalizedTx,
	}))
	require.Equal(t, wire.RejectNonstandard, code)
}

func TestErrorKindStringer(t *testing.T) {
	t.Parallel()

	require.Equal(t, "PolicyRejection", PolicyRejection.String())
	require.Equal(t, "InconsistentState", InconsistentState.String())
	require.Equal(t, "Unknown ErrorKind (42)", ErrorKind(42).String())
	require.Equal(t, "conflict", RemovedConflict.String())
	require.Equal(t, "NTTxRemoved", NTTxRemoved.String())
}
