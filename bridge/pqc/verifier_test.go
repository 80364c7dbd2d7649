// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pqc

import (
	"crypto/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/mldsa"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/dytallix/interop/bridge/payload"
)

func testHash(t *testing.T) payload.Hash {
	t.Helper()
	h, err := payload.HashTransfer(&payload.Transfer{
		SourceChain: "ethereum",
		DestChain:   "dytallix",
		AssetID:     "ETH",
		Amount:      uint256.NewInt(5),
		Sender:      "0xabc",
		Recipient:   "dtx1abc",
		Nonce:       1,
	})
	require.NoError(t, err)
	return h
}

func TestVerifyRoundTrip(t *testing.T) {
	require := require.New(t)

	v, err := NewVerifier(log.NewNoOpLogger(), AlgorithmMLDSA65)
	require.NoError(err)

	priv, err := mldsa.GenerateKey(rand.Reader, mldsa.MLDSA65)
	require.NoError(err)

	hash := testHash(t)
	sig, err := priv.Sign(rand.Reader, hash[:], nil)
	require.NoError(err)

	require.NoError(v.Verify(hash, sig, priv.PublicKey.Bytes(), AlgorithmMLDSA65))
}

func TestVerifyFailsClosed(t *testing.T) {
	require := require.New(t)

	v, err := NewVerifier(log.NewNoOpLogger(), AlgorithmMLDSA65)
	require.NoError(err)

	priv, err := mldsa.GenerateKey(rand.Reader, mldsa.MLDSA65)
	require.NoError(err)

	hash := testHash(t)
	sig, err := priv.Sign(rand.Reader, hash[:], nil)
	require.NoError(err)
	pub := priv.PublicKey.Bytes()

	// Algorithm mismatch
	err = v.Verify(hash, sig, pub, AlgorithmMLDSA87)
	require.ErrorIs(err, ErrAlgorithmMismatch)

	// Truncated key
	err = v.Verify(hash, sig, pub[:len(pub)-1], AlgorithmMLDSA65)
	require.ErrorIs(err, ErrInvalidPublicKey)

	// Truncated signature
	err = v.Verify(hash, sig[:len(sig)-1], pub, AlgorithmMLDSA65)
	require.ErrorIs(err, ErrInvalidSignature)

	// Corrupted signature
	bad := make([]byte, len(sig))
	copy(bad, sig)
	bad[0] ^= 0xff
	err = v.Verify(hash, bad, pub, AlgorithmMLDSA65)
	require.ErrorIs(err, ErrVerificationFailed)

	// Signature over a different payload hash
	other := hash
	other[0] ^= 0x01
	err = v.Verify(other, sig, pub, AlgorithmMLDSA65)
	require.ErrorIs(err, ErrVerificationFailed)
}

func TestVerifyWrongSignerKey(t *testing.T) {
	require := require.New(t)

	v, err := NewVerifier(log.NewNoOpLogger(), AlgorithmMLDSA65)
	require.NoError(err)

	signer, err := mldsa.GenerateKey(rand.Reader, mldsa.MLDSA65)
	require.NoError(err)
	other, err := mldsa.GenerateKey(rand.Reader, mldsa.MLDSA65)
	require.NoError(err)

	hash := testHash(t)
	sig, err := signer.Sign(rand.Reader, hash[:], nil)
	require.NoError(err)

	err = v.Verify(hash, sig, other.PublicKey.Bytes(), AlgorithmMLDSA65)
	require.ErrorIs(err, ErrVerificationFailed)
}

func TestNewVerifierUnknownAlgorithm(t *testing.T) {
	_, err := NewVerifier(log.NewNoOpLogger(), 99)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
