// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package connector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/luxfi/log"

	"github.com/dytallix/interop/bridge/config"
)

var _ ChainConnector = (*PolkadotConnector)(nil)

const ss58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// PolkadotConnector adapts a Polkadot/Substrate chain. GRANDPA finalizes in
// a small bounded number of blocks; assets are pallet-assets indices.
type PolkadotConnector struct {
	base
}

// NewPolkadot returns a connector over the given backend.
func NewPolkadot(cfg *config.ChainConfig, backend Backend, logger log.Logger) (*PolkadotConnector, error) {
	b, err := newBase(cfg, backend, logger, config.KindPolkadot)
	if err != nil {
		return nil, err
	}
	return &PolkadotConnector{base: b}, nil
}

func (c *PolkadotConnector) ExecuteMintOrUnlock(ctx context.Context, req *MintRequest) (string, error) {
	if err := c.ValidateAddress(req.Recipient); err != nil {
		return "", Fatal(err)
	}
	return c.executeMintOrUnlock(ctx, req)
}

// ValidateAddress requires an SS58-encoded account id.
func (c *PolkadotConnector) ValidateAddress(addr string) error {
	if len(addr) < 46 || len(addr) > 48 {
		return fmt.Errorf("%w: %q has invalid ss58 length", ErrInvalidAddress, addr)
	}
	for _, r := range addr {
		if !strings.ContainsRune(ss58Alphabet, r) {
			return fmt.Errorf("%w: %q is not ss58", ErrInvalidAddress, addr)
		}
	}
	return nil
}

// ValidateAssetID requires a numeric pallet-assets index.
func (c *PolkadotConnector) ValidateAssetID(assetID string) error {
	if c.cfg.AssetIDFormat != config.AssetFormatAssetIndex {
		return fmt.Errorf("%w: chain %s configured with format %q", ErrInvalidAssetID, c.cfg.ChainID, c.cfg.AssetIDFormat)
	}
	if _, err := strconv.ParseUint(assetID, 10, 32); err != nil {
		return fmt.Errorf("%w: %q is not an asset index", ErrInvalidAssetID, assetID)
	}
	return nil
}
