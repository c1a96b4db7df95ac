package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, subject string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Debug("stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("subject", subject),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(TopicUserRegistered, event.Username, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)))
	return nil
}

func (p *StubPublisher) PublishUserUpdated(_ context.Context, event domain.UserUpdatedEvent) error {
	p.logEvent(TopicUserUpdated, event.Username, event.UpdatedAt,
		zap.String("previous_username", event.PreviousUsername))
	return nil
}

func (p *StubPublisher) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	p.logEvent(TopicUserDeleted, event.Username, event.DeletedAt)
	return nil
}

func (p *StubPublisher) PublishPasswordRecoveryRequested(_ context.Context, event domain.PasswordRecoveryRequestedEvent) error {
	p.logEvent(TopicPasswordRecoveryRequested, event.Username, event.RequestedAt,
		zap.String("destination", event.MaskedDestination),
		zap.Bool("custom_code", event.CustomCode))
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(TopicPasswordChanged, event.Username, event.ChangedAt,
		zap.String("reason", event.Reason))
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
