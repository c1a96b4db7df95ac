package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
)

// LoggingMailer records recovery dispatches without delivering them. Used when no SMTP relay is configured.
type LoggingMailer struct {
	logger *zap.Logger
}

var _ port.RecoveryMailer = (*LoggingMailer)(nil)

func NewLoggingMailer(log *zap.Logger) *LoggingMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingMailer{logger: log}
}

func (m *LoggingMailer) SendRecoveryCode(ctx context.Context, email domain.RecoveryEmail) error {
	if _, err := RenderRecoveryEmail(email.Template, email.Username, email.Code); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("to", logger.MaskEmail(email.To)),
		zap.String("username", email.Username),
		zap.Time("expires_at", email.ExpiresAt),
		zap.Bool("custom_template", email.Template != ""),
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}

	m.logger.Info("recovery email dispatch skipped: smtp not configured", fields...)
	return nil
}
