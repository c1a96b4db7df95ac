package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	TopicUserRegistered            = "usermanager.user.registered"
	TopicUserUpdated               = "usermanager.user.updated"
	TopicUserDeleted               = "usermanager.user.deleted"
	TopicPasswordRecoveryRequested = "usermanager.password.recovery_requested"
	TopicPasswordChanged           = "usermanager.password.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Subject   string           `json:"subject,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subject string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Subject:   subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(subject),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		Username     string         `json:"username"`
		Email        string         `json:"email"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		Username:     event.Username,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicUserRegistered, event.Username, event.RegisteredAt, payload)
}

func (p *EventPublisher) PublishUserUpdated(ctx context.Context, event domain.UserUpdatedEvent) error {
	payload := struct {
		PreviousUsername string         `json:"previous_username"`
		Username         string         `json:"username"`
		Email            string         `json:"email"`
		UpdatedAt        time.Time      `json:"updated_at"`
		Metadata         map[string]any `json:"metadata,omitempty"`
	}{
		PreviousUsername: event.PreviousUsername,
		Username:         event.Username,
		Email:            event.Email,
		UpdatedAt:        event.UpdatedAt.UTC(),
		Metadata:         event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicUserUpdated, event.Username, event.UpdatedAt, payload)
}

func (p *EventPublisher) PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error {
	payload := struct {
		Username  string         `json:"username"`
		DeletedAt time.Time      `json:"deleted_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		Username:  event.Username,
		DeletedAt: event.DeletedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicUserDeleted, event.Username, event.DeletedAt, payload)
}

func (p *EventPublisher) PublishPasswordRecoveryRequested(ctx context.Context, event domain.PasswordRecoveryRequestedEvent) error {
	payload := struct {
		Username          string         `json:"username"`
		MaskedDestination string         `json:"masked_destination"`
		RequestedAt       time.Time      `json:"requested_at"`
		ExpiresAt         time.Time      `json:"expires_at"`
		CustomCode        bool           `json:"custom_code"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		Username:          event.Username,
		MaskedDestination: event.MaskedDestination,
		RequestedAt:       event.RequestedAt.UTC(),
		ExpiresAt:         event.ExpiresAt.UTC(),
		CustomCode:        event.CustomCode,
		IPAddress:         event.IPAddress,
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicPasswordRecoveryRequested, event.Username, event.RequestedAt, payload)
}

func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		Username  string         `json:"username"`
		ChangedAt time.Time      `json:"changed_at"`
		ChangedBy string         `json:"changed_by"`
		Reason    string         `json:"reason"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		Username:  event.Username,
		ChangedAt: event.ChangedAt.UTC(),
		ChangedBy: event.ChangedBy,
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicPasswordChanged, event.Username, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
