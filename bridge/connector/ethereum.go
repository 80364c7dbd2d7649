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

var _ ChainConnector = (*EthereumConnector)(nil)

// EthereumConnector adapts an Ethereum-family chain. Finality is
// probabilistic, so the configured confirmation depth is the deepest of the
// supported chains.
type EthereumConnector struct {
	base
}

// NewEthereum returns a connector over the given backend.
func NewEthereum(cfg *config.ChainConfig, backend Backend, logger log.Logger) (*EthereumConnector, error) {
	b, err := newBase(cfg, backend, logger, config.KindEthereum)
	if err != nil {
		return nil, err
	}
	return &EthereumConnector{base: b}, nil
}

func (c *EthereumConnector) ExecuteMintOrUnlock(ctx context.Context, req *MintRequest) (string, error) {
	if err := c.ValidateAddress(req.Recipient); err != nil {
		return "", Fatal(err)
	}
	return c.executeMintOrUnlock(ctx, req)
}

// ValidateAddress requires a 0x-prefixed 20-byte hex account address.
func (c *EthereumConnector) ValidateAddress(addr string) error {
	if !isHexBytes(addr, 20) {
		return fmt.Errorf("%w: %q is not a 20-byte hex address", ErrInvalidAddress, addr)
	}
	return nil
}

// ValidateAssetID requires a 0x-prefixed 20-byte hex contract address.
func (c *EthereumConnector) ValidateAssetID(assetID string) error {
	if c.cfg.AssetIDFormat != config.AssetFormatHexContract {
		return fmt.Errorf("%w: chain %s configured with format %q", ErrInvalidAssetID, c.cfg.ChainID, c.cfg.AssetIDFormat)
	}
	if !isHexBytes(assetID, 20) {
		return fmt.Errorf("%w: %q is not a 20-byte hex contract", ErrInvalidAssetID, assetID)
	}
	return nil
}

func isHexBytes(s string, n int) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*n {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
