// Package events publishes submission lifecycle transitions to NATS
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"crosschain-core/internal/metrics"
	"crosschain-core/internal/models"

	"github.com/sirupsen/logrus"
)

// Publisher is satisfied by *nats.Conn and *clients.NATSClient
type Publisher interface {
	Publish(subject string, data []byte) error
}

// SubmissionEvent is the JSON payload of one transition
type SubmissionEvent struct {
	SubmissionID string    `json:"submission_id"`
	Type         string    `json:"type"`
	TypeTag      uint8     `json:"type_tag"`
	ChainID      string    `json:"chain_id"`
	State        string    `json:"state"`
	Terminal     bool      `json:"terminal"`
	TxHash       string    `json:"tx_hash,omitempty"`
	BlockNumber  *uint64   `json:"block_number,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SubmissionEventPublisher turns submission updates into NATS messages on <prefix>.<chainId>.<state>
type SubmissionEventPublisher struct {
	publisher Publisher
	prefix    string
	logger    *logrus.Logger
}

func NewSubmissionEventPublisher(publisher Publisher, prefix string, logger *logrus.Logger) *SubmissionEventPublisher {
	if prefix == "" {
		prefix = "crosschain"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SubmissionEventPublisher{publisher: publisher, prefix: prefix, logger: logger}
}

// Subject builds the subject a submission in state is published on
func Subject(prefix, chainID string, state models.SubmissionState) string {
	return fmt.Sprintf("%s.%s.%s", prefix, chainID, state)
}

// NewSubmissionEvent snapshots a submission
func NewSubmissionEvent(sub *models.Submission) SubmissionEvent {
	return SubmissionEvent{
		SubmissionID: sub.ID,
		Type:         sub.Type.String(),
		TypeTag:      uint8(sub.Type),
		ChainID:      sub.ChainID,
		State:        string(sub.State),
		Terminal:     sub.State.IsTerminal(),
		TxHash:       sub.TxHash,
		BlockNumber:  sub.BlockNumber,
		Error:        sub.LastError,
		Timestamp:    sub.UpdatedAt,
	}
}

// SubmissionUpdated publishes the current state. Failures are logged and never affect the submission.
func (p *SubmissionEventPublisher) SubmissionUpdated(sub *models.Submission) {
	if p == nil || p.publisher == nil || sub == nil {
		return
	}
	subject := Subject(p.prefix, sub.ChainID, sub.State)
	log := p.logger.WithFields(logrus.Fields{
		"subject":       subject,
		"submission_id": sub.ID,
	})

	data, err := json.Marshal(NewSubmissionEvent(sub))
	if err != nil {
		metrics.NATSEventsPublished.WithLabelValues("error").Inc()
		log.WithError(err).Error("[SubmissionEvents] Failed to marshal event")
		return
	}
	if err := p.publisher.Publish(subject, data); err != nil {
		metrics.NATSEventsPublished.WithLabelValues("error").Inc()
		log.WithError(err).Warn("[SubmissionEvents] Failed to publish event")
		return
	}
	metrics.NATSEventsPublished.WithLabelValues("ok").Inc()
	log.Debug("[SubmissionEvents] Event published")
}
