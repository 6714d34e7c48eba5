package events

import (
	"encoding/json"
	"errors"
	"testing"

	"crosschain-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (r *recordingPublisher) Publish(subject string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return nil
}

func TestSubmissionUpdatedPublishesOnStateSubject(t *testing.T) {
	rec := &recordingPublisher{}
	pub := NewSubmissionEventPublisher(rec, "", nil)

	sub := models.NewSubmission("0b5a3c1e-0000-4000-8000-000000000001", models.OriginatingTransaction, "2018")
	require.NoError(t, sub.Transition(models.SubmissionStateSigned))
	pub.SubmissionUpdated(sub)

	require.Len(t, rec.subjects, 1)
	assert.Equal(t, "crosschain.2018.signed", rec.subjects[0])

	var event SubmissionEvent
	require.NoError(t, json.Unmarshal(rec.payloads[0], &event))
	assert.Equal(t, sub.ID, event.SubmissionID)
	assert.Equal(t, "ORIGINATING_TRANSACTION", event.Type)
	assert.Equal(t, uint8(0), event.TypeTag)
	assert.Equal(t, "signed", event.State)
	assert.False(t, event.Terminal)
}

func TestSubmissionUpdatedSwallowsPublishErrors(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("nats: connection closed")}
	pub := NewSubmissionEventPublisher(rec, "xc", nil)

	sub := models.NewSubmission("id", models.SinglechainDeployLockable, "5")
	assert.NotPanics(t, func() { pub.SubmissionUpdated(sub) })
	assert.Empty(t, rec.subjects)
}

func TestNilPublisherIsNoOp(t *testing.T) {
	var pub *SubmissionEventPublisher
	assert.NotPanics(t, func() { pub.SubmissionUpdated(models.NewSubmission("id", 0, "1")) })
	assert.Equal(t, "xc.1.committed", Subject("xc", "1", models.SubmissionStateCommitted))
}
