// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package risk scores large transfers against an external risk oracle.
// The oracle is advisory: if it is unreachable or times out, the transfer
// proceeds unscored.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
)

// Assessment is the oracle's verdict for one transfer.
type Assessment struct {
	Score   float64 `json:"score"`
	Flagged bool    `json:"flagged"`
	Reason  string  `json:"reason,omitempty"`
}

type scoreRequest struct {
	SourceChain string `json:"sourceChain"`
	DestChain   string `json:"destChain"`
	AssetID     string `json:"assetId"`
	Amount      string `json:"amount"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
}

// Oracle is an HTTP client for the risk scoring service.
type Oracle struct {
	endpoint   string
	threshold  *uint256.Int
	httpClient *http.Client
	log        log.Logger
}

// NewOracle returns an oracle client. Only transfers at or above threshold
// are scored; an empty endpoint disables scoring entirely.
func NewOracle(endpoint string, threshold *uint256.Int, timeout time.Duration, logger log.Logger) *Oracle {
	return &Oracle{
		endpoint:  endpoint,
		threshold: threshold,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger,
	}
}

// Score queries the oracle for the given transfer. It returns nil when the
// transfer is below the scoring threshold, the oracle is not configured, or
// the oracle could not be reached.
func (o *Oracle) Score(ctx context.Context, sourceChain, destChain, assetID, sender, recipient string, amount *uint256.Int) *Assessment {
	if o.endpoint == "" || amount == nil {
		return nil
	}
	if o.threshold != nil && amount.Lt(o.threshold) {
		return nil
	}

	assessment, err := o.query(ctx, scoreRequest{
		SourceChain: sourceChain,
		DestChain:   destChain,
		AssetID:     assetID,
		Amount:      amount.Dec(),
		Sender:      sender,
		Recipient:   recipient,
	})
	if err != nil {
		o.log.Warn("risk oracle unavailable, proceeding unscored",
			log.String("sourceChain", sourceChain),
			log.Err(err),
		)
		return nil
	}
	return assessment
}

func (o *Oracle) query(ctx context.Context, req scoreRequest) (*Assessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var assessment Assessment
	if err := json.Unmarshal(respBody, &assessment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &assessment, nil
}
