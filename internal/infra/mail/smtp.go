package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/config"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
)

// ErrDelivery wraps every failure to hand a message to the SMTP server.
var ErrDelivery = errors.New("mail: delivery failed")

// SMTPSender delivers recovery codes through an authenticated SMTP relay.
type SMTPSender struct {
	cfg    config.SMTPSettings
	logger *zap.Logger
	send   func(ctx context.Context, msg *gomail.Msg) error
}

var _ port.RecoveryMailer = (*SMTPSender)(nil)

func NewSMTPSender(cfg config.SMTPSettings, log *zap.Logger) *SMTPSender {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SMTPSender{cfg: cfg, logger: log}
	s.send = s.dialAndSend
	return s
}

// Configured reports whether credentials for the relay are present.
func (s *SMTPSender) Configured() bool {
	return strings.TrimSpace(s.cfg.Host) != "" && strings.TrimSpace(s.cfg.SenderEmail) != ""
}

func (s *SMTPSender) SendRecoveryCode(ctx context.Context, email domain.RecoveryEmail) error {
	body, err := RenderRecoveryEmail(email.Template, email.Username, email.Code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	msg, err := s.buildMessage(email.To, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	start := time.Now()
	if err := s.send(ctx, msg); err != nil {
		logger.WithContext(ctx).Warn("recovery email delivery failed",
			zap.String("to", logger.MaskEmail(email.To)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	logger.WithContext(ctx).Info("recovery email sent",
		zap.String("to", logger.MaskEmail(email.To)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *SMTPSender) buildMessage(to, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(s.cfg.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)
	return msg, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.SenderEmail),
		gomail.WithPassword(s.cfg.Password),
	}
	if s.cfg.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.cfg.Timeout))
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	return client.DialAndSendWithContext(ctx, msg)
}
