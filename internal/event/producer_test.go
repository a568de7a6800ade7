package event

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authservice/internal/domain"
	pkgkafka "github.com/utafrali/authservice/pkg/kafka"
	"github.com/utafrali/authservice/pkg/logger"
)

type recordingPublisher struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, event)
	return nil
}

func newTestProducer(pub publisher) (*Producer, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Producer{kafka: pub, logger: logger.NewWithWriter("auth-test", "debug", &buf)}, &buf
}

func TestProducer_PublishUserRegistered(t *testing.T) {
	pub := &recordingPublisher{}
	p, _ := newTestProducer(pub)

	user := &domain.User{
		ID:        5,
		Email:     "alice@example.com",
		FirstName: "Alice",
		Roles:     []domain.Role{{Name: domain.RoleUser}},
	}
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	require.NoError(t, p.PublishUserRegistered(ctx, user))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "auth.user.registered", pub.topics[0])

	ev := pub.events[0]
	assert.Equal(t, "5", ev.AggregateID)
	assert.Equal(t, AggregateTypeUser, ev.AggregateType)
	assert.Equal(t, "corr-1", ev.CorrelationID)

	var data UserRegisteredData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, int64(5), data.ID)
	assert.Equal(t, []string{"user"}, data.Roles)
}

func TestProducer_PublishSessionsRevoked(t *testing.T) {
	pub := &recordingPublisher{}
	p, _ := newTestProducer(pub)

	require.NoError(t, p.PublishSessionsRevoked(context.Background(), 9, 3))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "auth.sessions.revoked", pub.topics[0])

	var data SessionsRevokedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, int64(9), data.UserID)
	assert.Equal(t, int64(3), data.Revoked)
	assert.False(t, data.RevokedAt.IsZero())
}

func TestProducer_PublishError(t *testing.T) {
	p, _ := newTestProducer(&recordingPublisher{err: errors.New("broker down")})

	err := p.PublishSessionsRevoked(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish auth.sessions.revoked event")
}

func TestProducer_DisabledDropsEvents(t *testing.T) {
	var buf bytes.Buffer
	p := NewProducer(nil, logger.NewWithWriter("auth-test", "debug", &buf))

	require.NoError(t, p.PublishUserRegistered(context.Background(), &domain.User{ID: 1}))
	assert.Contains(t, buf.String(), "event publishing disabled")
}
