// Package alerting surfaces manual-intervention conditions. When a
// compensating action fails the system can no longer restore consistency by
// itself; the alert is the hand-off to an operator, not a retry loop.
package alerting

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/observability/telemetry"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type Config struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	OpsEmail       string
}

type Service struct {
	repo   ports.AlertRepository
	email  *sendgrid.Client
	config Config
	log    *zap.Logger
}

func NewService(repo ports.AlertRepository, config Config, log *zap.Logger) ports.AlertService {
	s := &Service{
		repo:   repo,
		config: config,
		log:    log,
	}
	if config.SendGridAPIKey != "" && config.OpsEmail != "" {
		s.email = sendgrid.NewSendClient(config.SendGridAPIKey)
	}
	return s
}

// Raise persists the alert and notifies operations. It never returns an
// error: the caller is already on a failure path and the log line is the
// floor of what must happen.
func (s *Service) Raise(ctx context.Context, alert domain.Alert) {
	telemetry.CompensationAlertsTotal.Inc()

	s.log.Error("MANUAL INTERVENTION REQUIRED",
		zap.String("alert_id", alert.ID),
		zap.String("saga", alert.Saga),
		zap.String("action", alert.Action),
		zap.String("session_id", alert.SessionID),
		zap.String("station_id", alert.StationID),
		zap.String("message", alert.Message),
	)

	if err := s.repo.Save(ctx, &alert); err != nil {
		s.log.Error("Failed to persist alert", zap.String("alert_id", alert.ID), zap.Error(err))
	}

	if s.email == nil {
		return
	}
	if err := s.sendEmail(ctx, alert); err != nil {
		s.log.Error("Failed to email alert", zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

func (s *Service) sendEmail(ctx context.Context, alert domain.Alert) error {
	from := mail.NewEmail(s.config.FromName, s.config.FromEmail)
	to := mail.NewEmail("", s.config.OpsEmail)
	subject := fmt.Sprintf("[%s] compensation failure in %s", alert.Severity, alert.Saga)
	body := fmt.Sprintf(
		"Alert %s\nSaga: %s\nAction: %s\nSession: %s\nStation: %s\n\n%s\n",
		alert.ID, alert.Saga, alert.Action, alert.SessionID, alert.StationID, alert.Message,
	)

	message := mail.NewSingleEmail(from, subject, to, body, "")
	response, err := s.email.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid error: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
