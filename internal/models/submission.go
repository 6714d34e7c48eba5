package models

import (
	"fmt"
	"time"
)

// SubmissionState tracks one originating crosschain transaction through signing, submission and confirmation
type SubmissionState string

const (
	SubmissionStateDrafted        SubmissionState = "drafted"
	SubmissionStateSigned         SubmissionState = "signed"
	SubmissionStateSubmitted      SubmissionState = "submitted"
	SubmissionStateHashVerified   SubmissionState = "hash_verified"
	SubmissionStateHashMismatch   SubmissionState = "hash_mismatch"
	SubmissionStateReceiptPending SubmissionState = "receipt_pending"
	SubmissionStateCommitted      SubmissionState = "committed"
	SubmissionStateReverted       SubmissionState = "reverted"
	SubmissionStateTimeout        SubmissionState = "timeout"
	SubmissionStateRPCError       SubmissionState = "rpc_error"
)

var submissionTransitions = map[SubmissionState][]SubmissionState{
	SubmissionStateDrafted:        {SubmissionStateSigned},
	SubmissionStateSigned:         {SubmissionStateSubmitted, SubmissionStateRPCError},
	SubmissionStateSubmitted:      {SubmissionStateHashVerified, SubmissionStateHashMismatch, SubmissionStateRPCError},
	SubmissionStateHashVerified:   {SubmissionStateReceiptPending},
	SubmissionStateReceiptPending: {SubmissionStateCommitted, SubmissionStateReverted, SubmissionStateTimeout},
}

// IsTerminal reports whether no further transition is possible
func (s SubmissionState) IsTerminal() bool {
	_, ok := submissionTransitions[s]
	return !ok
}

// CanTransitionTo reports whether next is a legal successor of s
func (s SubmissionState) CanTransitionTo(next SubmissionState) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Submission is the in-memory record of one execute call. It is never persisted.
type Submission struct {
	ID          string                    `json:"id"` // UUID
	Type        CrosschainTransactionType `json:"type"`
	ChainID     string                    `json:"chain_id"`
	State       SubmissionState           `json:"state"`
	TxHash      string                    `json:"tx_hash,omitempty"`
	BlockNumber *uint64                   `json:"block_number,omitempty"`
	LastError   string                    `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// NewSubmission starts a record in the drafted state
func NewSubmission(id string, txType CrosschainTransactionType, chainID string) *Submission {
	now := time.Now()
	return &Submission{
		ID:        id,
		Type:      txType,
		ChainID:   chainID,
		State:     SubmissionStateDrafted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the record to next, stamping the relevant timestamps
func (s *Submission) Transition(next SubmissionState) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("illegal submission transition %s -> %s", s.State, next)
	}
	now := time.Now()
	s.State = next
	s.UpdatedAt = now
	switch next {
	case SubmissionStateSubmitted:
		s.SubmittedAt = &now
	case SubmissionStateCommitted, SubmissionStateReverted:
		s.ConfirmedAt = &now
	}
	return nil
}
