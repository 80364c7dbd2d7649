// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func TestScoreAboveThreshold(t *testing.T) {
	require := require.New(t)

	var got scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/score", r.URL.Path)
		require.NoError(json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Assessment{Score: 0.91, Flagged: true, Reason: "sanctioned counterparty"})
	}))
	defer server.Close()

	o := NewOracle(server.URL, uint256.NewInt(1_000_000), time.Second, log.NewNoOpLogger())

	assessment := o.Score(context.Background(), "ethereum", "dytallix", "0xaa", "0xs", "dx1r", uint256.NewInt(2_000_000))
	require.NotNil(assessment)
	require.True(assessment.Flagged)
	require.InDelta(0.91, assessment.Score, 1e-9)
	require.Equal("2000000", got.Amount)
	require.Equal("ethereum", got.SourceChain)
}

func TestScoreBelowThresholdSkipsOracle(t *testing.T) {
	require := require.New(t)

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	o := NewOracle(server.URL, uint256.NewInt(1_000_000), time.Second, log.NewNoOpLogger())

	require.Nil(o.Score(context.Background(), "ethereum", "dytallix", "0xaa", "0xs", "dx1r", uint256.NewInt(5)))
	require.False(called)
}

func TestScoreOracleDownProceedsUnscored(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close() // connection refused

	o := NewOracle(server.URL, nil, 100*time.Millisecond, log.NewNoOpLogger())
	require.Nil(o.Score(context.Background(), "ethereum", "dytallix", "0xaa", "0xs", "dx1r", uint256.NewInt(2_000_000)))
}

func TestScoreUnconfigured(t *testing.T) {
	require := require.New(t)

	o := NewOracle("", nil, time.Second, log.NewNoOpLogger())
	require.Nil(o.Score(context.Background(), "ethereum", "dytallix", "0xaa", "0xs", "dx1r", uint256.NewInt(2_000_000)))
}
