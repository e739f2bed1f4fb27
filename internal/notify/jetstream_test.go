package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	err      error
	calls    int
	subjects []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "REMINDERS", Sequence: uint64(f.calls)}, nil
}

func sampleReminder() Reminder {
	return Reminder{
		AppointmentID: uuid.New(),
		TenantID:      uuid.New(),
		Contact:       models.ContactInfo{Name: "Ada Lovelace", Phone: "+15550100", PreferredContact: "sms"},
		Tier:          models.TierHigh,
		Probability:   0.52,
		ScheduledTime: time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC),
		RequestedAt:   time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestJetStreamDispatcher_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	d := newJetStreamDispatcher(pub, "reminders.requested", nil)
	r := sampleReminder()

	require.NoError(t, d.Dispatch(context.Background(), r))
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "reminders.requested", pub.subjects[0])

	var got Reminder
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, EventReminderRequested, got.EventType)
	assert.Equal(t, r.AppointmentID, got.AppointmentID)
	assert.Equal(t, models.TierHigh, got.Tier)
	assert.Equal(t, "sms", got.Contact.PreferredContact)
}

func TestJetStreamDispatcher_WrapsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrNoResponders}
	d := newJetStreamDispatcher(pub, "reminders.requested", nil)

	err := d.Dispatch(context.Background(), sampleReminder())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDispatcherUnavailable))
	assert.True(t, errors.Is(err, nats.ErrNoResponders))
}

func TestJetStreamDispatcher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrTimeout}
	d := newJetStreamDispatcher(pub, "reminders.requested", nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, d.Dispatch(ctx, sampleReminder()), ErrDispatcherUnavailable)
	}

	err := d.Dispatch(ctx, sampleReminder())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, pub.calls, "open breaker must not reach the broker")
}

func TestJetStreamDispatcher_Close(t *testing.T) {
	closed := false
	d := newJetStreamDispatcher(&fakePublisher{}, "s", func() error {
		closed = true
		return nil
	})
	assert.NoError(t, d.Close())
	assert.True(t, closed)
	assert.NoError(t, newJetStreamDispatcher(&fakePublisher{}, "s", nil).Close())
}
