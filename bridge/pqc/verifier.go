// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pqc wraps the post-quantum signature primitive used by bridge
// validators. The bridge core only ever verifies; key generation and signing
// happen inside each validator's key holder, outside this trust boundary.
package pqc

import (
	"errors"

	"github.com/luxfi/crypto/mldsa"
	"github.com/luxfi/log"

	"github.com/dytallix/interop/bridge/payload"
)

// Algorithm identifiers, fixed per deployment.
const (
	AlgorithmMLDSA44 uint32 = 1 // NIST Level 2 (128-bit security)
	AlgorithmMLDSA65 uint32 = 2 // NIST Level 3 (192-bit security)
	AlgorithmMLDSA87 uint32 = 3 // NIST Level 5 (256-bit security)
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrAlgorithmMismatch    = errors.New("signature algorithm mismatch")
	ErrInvalidPublicKey     = errors.New("invalid public key")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrVerificationFailed   = errors.New("signature verification failed")
)

// Verifier validates individual validator signatures over payload hashes
// with a fixed ML-DSA (Dilithium family) mode. Verification is pure: no key
// material is held and no state is mutated.
type Verifier struct {
	log              log.Logger
	algorithmVersion uint32
	mode             mldsa.Mode
}

// NewVerifier returns a verifier pinned to the given algorithm version.
func NewVerifier(logger log.Logger, algorithmVersion uint32) (*Verifier, error) {
	var mode mldsa.Mode
	switch algorithmVersion {
	case AlgorithmMLDSA44:
		mode = mldsa.MLDSA44
	case AlgorithmMLDSA65:
		mode = mldsa.MLDSA65
	case AlgorithmMLDSA87:
		mode = mldsa.MLDSA87
	default:
		return nil, ErrUnsupportedAlgorithm
	}

	return &Verifier{
		log:              logger,
		algorithmVersion: algorithmVersion,
		mode:             mode,
	}, nil
}

// Algorithm returns the pinned algorithm version.
func (v *Verifier) Algorithm() uint32 {
	return v.algorithmVersion
}

// Verify checks a single validator signature over a payload hash. It fails
// closed: malformed signatures, wrong-length keys, and algorithm mismatches
// are all errors, never a silent pass.
func (v *Verifier) Verify(hash payload.Hash, signature []byte, publicKey []byte, algorithm uint32) error {
	if algorithm != v.algorithmVersion {
		return ErrAlgorithmMismatch
	}
	if len(publicKey) != mldsa.GetPublicKeySize(v.mode) {
		return ErrInvalidPublicKey
	}
	if len(signature) != mldsa.GetSignatureSize(v.mode) {
		return ErrInvalidSignature
	}

	pub, err := mldsa.PublicKeyFromBytes(publicKey, v.mode)
	if err != nil {
		return ErrInvalidPublicKey
	}

	if !pub.VerifySignature(hash[:], signature) {
		return ErrVerificationFailed
	}
	return nil
}

// PublicKeySize returns the expected public key length for the pinned mode.
func (v *Verifier) PublicKeySize() int {
	return mldsa.GetPublicKeySize(v.mode)
}

// SignatureSize returns the expected signature length for the pinned mode.
func (v *Verifier) SignatureSize() int {
	return mldsa.GetSignatureSize(v.mode)
}
