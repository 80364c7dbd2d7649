// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"encoding/hex"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/ids"

	"github.com/dytallix/interop/utils/json"
)

// Service provides the bridge JSON-RPC endpoints.
type Service struct {
	mgr *Manager
}

// NewService returns a new Service instance.
func NewService(mgr *Manager) *Service {
	return &Service{mgr: mgr}
}

// RegisterService registers the bridge RPC handlers.
func (m *Manager) RegisterService(server *rpc.Server) error {
	return server.RegisterService(&Service{mgr: m}, "bridge")
}

// GetTransactionArgs are the arguments for bridge.getTransaction.
type GetTransactionArgs struct {
	TxID string `json:"txId"`
}

// TransactionReply is the RPC view of a transfer.
type TransactionReply struct {
	TxID            string       `json:"txId"`
	SourceChain     string       `json:"sourceChain"`
	DestChain       string       `json:"destChain"`
	SourceTxRef     string       `json:"sourceTxRef"`
	Sender          string       `json:"sender"`
	Recipient       string       `json:"recipient"`
	AssetID         string       `json:"assetId"`
	Amount          string       `json:"amount"`
	Nonce           json.Uint64  `json:"nonce"`
	PayloadHash     string       `json:"payloadHash"`
	Status          string       `json:"status"`
	Signatures      int          `json:"signatures"`
	CreatedAtHeight json.Uint64  `json:"createdAtHeight"`
	DestTxRef       string       `json:"destTxRef,omitempty"`
	FailureReason   string       `json:"failureReason,omitempty"`
	RiskScore       json.Float64 `json:"riskScore,omitempty"`
}

// GetTransaction returns the current state of a transfer.
func (s *Service) GetTransaction(_ *http.Request, args *GetTransactionArgs, reply *TransactionReply) error {
	txID, err := ids.FromString(args.TxID)
	if err != nil {
		return err
	}
	tx, err := s.mgr.Transaction(txID)
	if err != nil {
		return err
	}

	reply.TxID = tx.ID.String()
	reply.SourceChain = tx.SourceChain
	reply.DestChain = tx.DestChain
	reply.SourceTxRef = tx.SourceTxRef
	reply.Sender = tx.Sender
	reply.Recipient = tx.Recipient
	reply.AssetID = tx.AssetID
	reply.Amount = tx.Amount.Dec()
	reply.Nonce = json.Uint64(tx.Nonce)
	reply.PayloadHash = hex.EncodeToString(tx.PayloadHash[:])
	reply.Status = tx.Status.String()
	reply.Signatures = len(tx.Signatures)
	reply.CreatedAtHeight = json.Uint64(tx.CreatedAtHeight)
	reply.DestTxRef = tx.DestTxRef
	reply.FailureReason = tx.FailureReason
	reply.RiskScore = json.Float64(tx.RiskScore)
	return nil
}

// SubmitSignatureArgs are the arguments for bridge.submitSignature.
type SubmitSignatureArgs struct {
	TxID        string `json:"txId"`
	ValidatorID string `json:"validatorId"`
	Signature   string `json:"signature"` // hex
}

// SubmitSignatureReply is the reply for bridge.submitSignature.
type SubmitSignatureReply struct {
	Status     string `json:"status"`
	Signatures int    `json:"signatures"`
}

// SubmitSignature verifies and records a validator's signature.
func (s *Service) SubmitSignature(r *http.Request, args *SubmitSignatureArgs, reply *SubmitSignatureReply) error {
	txID, err := ids.FromString(args.TxID)
	if err != nil {
		return err
	}
	validatorID, err := ids.NodeIDFromString(args.ValidatorID)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(args.Signature)
	if err != nil {
		return err
	}

	if err := s.mgr.SubmitSignature(r.Context(), txID, validatorID, sig); err != nil {
		return err
	}

	tx, err := s.mgr.Transaction(txID)
	if err != nil {
		return err
	}
	reply.Status = tx.Status.String()
	reply.Signatures = len(tx.Signatures)
	return nil
}

// CancelArgs are the arguments for bridge.cancel.
type CancelArgs struct {
	TxID   string `json:"txId"`
	Reason string `json:"reason"`
}

// CancelReply is the reply for bridge.cancel.
type CancelReply struct {
	Status string `json:"status"`
}

// Cancel fails a transfer before its threshold is met.
func (s *Service) Cancel(_ *http.Request, args *CancelArgs, reply *CancelReply) error {
	txID, err := ids.FromString(args.TxID)
	if err != nil {
		return err
	}
	if err := s.mgr.Cancel(txID, args.Reason); err != nil {
		return err
	}
	tx, err := s.mgr.Transaction(txID)
	if err != nil {
		return err
	}
	reply.Status = tx.Status.String()
	return nil
}

// ReverseArgs are the arguments for bridge.reverse.
type ReverseArgs struct {
	TxID string `json:"txId"`
}

// ReverseReply is the reply for bridge.reverse.
type ReverseReply struct {
	Status string `json:"status"`
}

// Reverse returns a failed transfer's custody to the source side.
func (s *Service) Reverse(_ *http.Request, args *ReverseArgs, reply *ReverseReply) error {
	txID, err := ids.FromString(args.TxID)
	if err != nil {
		return err
	}
	if err := s.mgr.Reverse(txID); err != nil {
		return err
	}
	tx, err := s.mgr.Transaction(txID)
	if err != nil {
		return err
	}
	reply.Status = tx.Status.String()
	return nil
}

// HaltArgs are the arguments for bridge.halt (empty).
type HaltArgs struct{}

// HaltReply is the reply for bridge.halt and bridge.resume.
type HaltReply struct {
	Halted bool `json:"halted"`
}

// Halt stops admission of new transfers.
func (s *Service) Halt(_ *http.Request, _ *HaltArgs, reply *HaltReply) error {
	if err := s.mgr.Halt(); err != nil {
		return err
	}
	reply.Halted = true
	return nil
}

// Resume re-enables admission of new transfers.
func (s *Service) Resume(_ *http.Request, _ *HaltArgs, reply *HaltReply) error {
	if err := s.mgr.Resume(); err != nil {
		return err
	}
	reply.Halted = false
	return nil
}

// RegisterValidatorArgs are the arguments for bridge.registerValidator.
type RegisterValidatorArgs struct {
	NodeID    string      `json:"nodeId"`
	PublicKey string      `json:"publicKey"` // hex
	Algorithm json.Uint32 `json:"algorithm"`
	Height    json.Uint64 `json:"height"`
}

// ValidatorReply is the reply for validator admin operations.
type ValidatorReply struct {
	NodeID string      `json:"nodeId"`
	Height json.Uint64 `json:"height"`
}

// RegisterValidator adds a validator to the signer set from the given
// height onward.
func (s *Service) RegisterValidator(_ *http.Request, args *RegisterValidatorArgs, reply *ValidatorReply) error {
	nodeID, err := ids.NodeIDFromString(args.NodeID)
	if err != nil {
		return err
	}
	publicKey, err := hex.DecodeString(args.PublicKey)
	if err != nil {
		return err
	}
	if err := s.mgr.registry.Register(nodeID, publicKey, uint32(args.Algorithm), uint64(args.Height)); err != nil {
		return err
	}
	reply.NodeID = args.NodeID
	reply.Height = args.Height
	return nil
}

// RevokeValidatorArgs are the arguments for bridge.revokeValidator.
type RevokeValidatorArgs struct {
	NodeID string      `json:"nodeId"`
	Height json.Uint64 `json:"height"`
}

// RevokeValidator removes a validator from the signer set from the given
// height onward. Transfers pinned to earlier heights still accept its
// signatures.
func (s *Service) RevokeValidator(_ *http.Request, args *RevokeValidatorArgs, reply *ValidatorReply) error {
	nodeID, err := ids.NodeIDFromString(args.NodeID)
	if err != nil {
		return err
	}
	if err := s.mgr.registry.Revoke(nodeID, uint64(args.Height)); err != nil {
		return err
	}
	reply.NodeID = args.NodeID
	reply.Height = args.Height
	return nil
}

// RotateValidatorKey replaces a validator's key from the given height
// onward.
func (s *Service) RotateValidatorKey(_ *http.Request, args *RegisterValidatorArgs, reply *ValidatorReply) error {
	nodeID, err := ids.NodeIDFromString(args.NodeID)
	if err != nil {
		return err
	}
	publicKey, err := hex.DecodeString(args.PublicKey)
	if err != nil {
		return err
	}
	if err := s.mgr.registry.Rotate(nodeID, publicKey, uint32(args.Algorithm), uint64(args.Height)); err != nil {
		return err
	}
	reply.NodeID = args.NodeID
	reply.Height = args.Height
	return nil
}

// SetThresholdArgs are the arguments for bridge.setThreshold.
type SetThresholdArgs struct {
	Threshold int         `json:"threshold"`
	Height    json.Uint64 `json:"height"`
}

// SetThresholdReply is the reply for bridge.setThreshold.
type SetThresholdReply struct {
	Threshold int         `json:"threshold"`
	Height    json.Uint64 `json:"height"`
}

// SetThreshold sets the signature threshold from the given height onward.
func (s *Service) SetThreshold(_ *http.Request, args *SetThresholdArgs, reply *SetThresholdReply) error {
	if err := s.mgr.registry.SetThreshold(args.Threshold, uint64(args.Height)); err != nil {
		return err
	}
	reply.Threshold = args.Threshold
	reply.Height = args.Height
	return nil
}

// GetStatsArgs are the arguments for bridge.getStats (empty).
type GetStatsArgs struct{}

// GetStatsReply is the reply for bridge.getStats.
type GetStatsReply struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Halted   bool           `json:"halted"`
}

// GetStats summarizes the bridge's current state.
func (s *Service) GetStats(_ *http.Request, _ *GetStatsArgs, reply *GetStatsReply) error {
	stats, err := s.mgr.Stats()
	if err != nil {
		return err
	}
	reply.Total = stats.Total
	reply.ByStatus = stats.ByStatus
	reply.Halted = stats.Halted
	return nil
}

// GetAuditArgs are the arguments for bridge.getAudit (empty).
type GetAuditArgs struct{}

// AuditEntryReply is one validator-set change.
type AuditEntryReply struct {
	Action      string      `json:"action"`
	ValidatorID string      `json:"validatorId,omitempty"`
	Height      json.Uint64 `json:"height"`
	Threshold   int         `json:"threshold,omitempty"`
}

// GetAuditReply is the reply for bridge.getAudit.
type GetAuditReply struct {
	Records []AuditEntryReply `json:"records"`
}

// GetAudit returns the ordered history of validator-set changes.
func (s *Service) GetAudit(_ *http.Request, _ *GetAuditArgs, reply *GetAuditReply) error {
	records, err := s.mgr.registry.Audit()
	if err != nil {
		return err
	}
	reply.Records = make([]AuditEntryReply, len(records))
	for i, rec := range records {
		reply.Records[i] = AuditEntryReply{
			Action:      rec.Action,
			ValidatorID: rec.ValidatorID.String(),
			Height:      json.Uint64(rec.Height),
			Threshold:   rec.Threshold,
		}
	}
	return nil
}
