// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/luxfi/log"

	"github.com/dytallix/interop/bridge/config"
)

var _ ChainConnector = (*CosmosConnector)(nil)

// CosmosConnector adapts a Cosmos/IBC chain. Tendermint-style consensus
// gives instant finality, so one confirmation suffices; transfers land as
// IBC voucher denoms on the destination side.
type CosmosConnector struct {
	base
}

// NewCosmos returns a connector over the given backend.
func NewCosmos(cfg *config.ChainConfig, backend Backend, logger log.Logger) (*CosmosConnector, error) {
	b, err := newBase(cfg, backend, logger, config.KindCosmos)
	if err != nil {
		return nil, err
	}
	return &CosmosConnector{base: b}, nil
}

func (c *CosmosConnector) ExecuteMintOrUnlock(ctx context.Context, req *MintRequest) (string, error) {
	if err := c.ValidateAddress(req.Recipient); err != nil {
		return "", Fatal(err)
	}
	return c.executeMintOrUnlock(ctx, req)
}

// ValidateAddress requires a bech32 account address (hrp1data).
func (c *CosmosConnector) ValidateAddress(addr string) error {
	sep := strings.LastIndexByte(addr, '1')
	if sep < 1 || len(addr) < 8 || len(addr) > 90 {
		return fmt.Errorf("%w: %q is not bech32", ErrInvalidAddress, addr)
	}
	for _, r := range addr[sep+1:] {
		if !strings.ContainsRune("qpzry9x8gf2tvdw0s3jn54khce6mua7l", r) {
			return fmt.Errorf("%w: %q has invalid bech32 data", ErrInvalidAddress, addr)
		}
	}
	return nil
}

// ValidateAssetID requires a bank denom or an ibc/<64-hex> voucher denom.
func (c *CosmosConnector) ValidateAssetID(assetID string) error {
	if c.cfg.AssetIDFormat != config.AssetFormatIBCDenom {
		return fmt.Errorf("%w: chain %s configured with format %q", ErrInvalidAssetID, c.cfg.ChainID, c.cfg.AssetIDFormat)
	}
	if hash, ok := strings.CutPrefix(assetID, "ibc/"); ok {
		if len(hash) != 64 || !isUpperHex(hash) {
			return fmt.Errorf("%w: %q is not an ibc voucher denom", ErrInvalidAssetID, assetID)
		}
		return nil
	}
	if len(assetID) < 3 || len(assetID) > 128 {
		return fmt.Errorf("%w: %q denom length out of range", ErrInvalidAssetID, assetID)
	}
	for _, r := range assetID {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '/' || r == '-':
		default:
			return fmt.Errorf("%w: %q is not a valid denom", ErrInvalidAssetID, assetID)
		}
	}
	return nil
}

func isUpperHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
