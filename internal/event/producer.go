package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/utafrali/authservice/internal/domain"
	pkgkafka "github.com/utafrali/authservice/pkg/kafka"
	"github.com/utafrali/authservice/pkg/logger"
)

// Kafka topics for auth domain events.
var (
	TopicUserRegistered  = pkgkafka.Topic("user", "registered")
	TopicSessionsRevoked = pkgkafka.Topic("sessions", "revoked")
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from this service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for an auth.user.registered event.
type UserRegisteredData struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

// SessionsRevokedData is the payload for an auth.sessions.revoked event.
type SessionsRevokedData struct {
	UserID    int64     `json:"user_id"`
	Revoked   int64     `json:"revoked"`
	RevokedAt time.Time `json:"revoked_at"`
}

// publisher is the part of pkg/kafka.Producer used here.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer. A nil kafka publisher turns every
// publish into a debug log line, which is how the service runs with
// KAFKA_ENABLED=false.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	if kafka == nil {
		return &Producer{logger: logger}
	}
	return &Producer{kafka: kafka, logger: logger}
}

// PublishUserRegistered publishes an auth.user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     user.RoleNames(),
	}
	return p.publish(ctx, TopicUserRegistered, user.Subject(), data)
}

// PublishSessionsRevoked publishes an auth.sessions.revoked event after a
// logout from all devices.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, userID, revoked int64) error {
	data := SessionsRevokedData{
		UserID:    userID,
		Revoked:   revoked,
		RevokedAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicSessionsRevoked, strconv.FormatInt(userID, 10), data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	if p.kafka == nil {
		p.logger.DebugContext(ctx, "event publishing disabled, dropping event",
			slog.String("topic", topic),
			slog.String("aggregate_id", aggregateID),
		)
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.InfoContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
