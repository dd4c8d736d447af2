// Package mailer defines the outbound email seam. Delivery is
// delegated to a downstream worker via the message bus; the service
// itself never speaks SMTP. In development the log implementation
// prints the message instead.
package mailer

import (
	"context"
	"fmt"
	"sync"

	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
)

// EmailSender sends the transactional emails the credential and leave
// flows depend on.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, email, name, code string) error
	SendPasswordResetCode(ctx context.Context, email, name, code string) error
	SendSetupInvitation(ctx context.Context, email, name, setupURL string) error
	SendLeaveDecision(ctx context.Context, email, name, leaveType, status, startDate, endDate string) error
}

// EmailRequestedEvent is the payload published for each outbound email.
const EventEmailRequested = "email.requested"

// EmailMessage is the wire payload for a single outbound email.
type EmailMessage struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	ToName   string            `json:"to_name"`
	Vars     map[string]string `json:"vars"`
}

// EventMailer publishes email requests to the message bus.
type EventMailer struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
	// Serializes sends for a single process so OTP emails for the same
	// address cannot race past the cooldown check.
	mu sync.Mutex
}

// NewEventMailer creates a mailer backed by the event bus.
func NewEventMailer(pub messaging.EventPublisher, log *logger.Logger) *EventMailer {
	return &EventMailer{publisher: pub, logger: log}
}

func (m *EventMailer) send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.publisher.Publish(ctx, EventEmailRequested, msg); err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}

	m.logger.Debug().
		Str("template", msg.Template).
		Str("to", msg.To).
		Msg("email enqueued")
	return nil
}

func (m *EventMailer) SendVerificationCode(ctx context.Context, email, name, code string) error {
	return m.send(ctx, EmailMessage{
		Template: "verification_code",
		To:       email,
		ToName:   name,
		Vars:     map[string]string{"code": code},
	})
}

func (m *EventMailer) SendPasswordResetCode(ctx context.Context, email, name, code string) error {
	return m.send(ctx, EmailMessage{
		Template: "password_reset_code",
		To:       email,
		ToName:   name,
		Vars:     map[string]string{"code": code},
	})
}

func (m *EventMailer) SendSetupInvitation(ctx context.Context, email, name, setupURL string) error {
	return m.send(ctx, EmailMessage{
		Template: "setup_invitation",
		To:       email,
		ToName:   name,
		Vars:     map[string]string{"setup_url": setupURL},
	})
}

func (m *EventMailer) SendLeaveDecision(ctx context.Context, email, name, leaveType, status, startDate, endDate string) error {
	return m.send(ctx, EmailMessage{
		Template: "leave_decision",
		To:       email,
		ToName:   name,
		Vars: map[string]string{
			"leave_type": leaveType,
			"status":     status,
			"start_date": startDate,
			"end_date":   endDate,
		},
	})
}

// LogMailer writes emails to the log. Default in development, and the
// fallback when messaging is disabled.
type LogMailer struct {
	logger *logger.Logger
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{logger: log}
}

func (m *LogMailer) log(template, email string, vars map[string]string) error {
	ev := m.logger.Info().Str("template", template).Str("to", email)
	for k, v := range vars {
		ev = ev.Str(k, v)
	}
	ev.Msg("email (log only)")
	return nil
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, email, name, code string) error {
	return m.log("verification_code", email, map[string]string{"code": code})
}

func (m *LogMailer) SendPasswordResetCode(ctx context.Context, email, name, code string) error {
	return m.log("password_reset_code", email, map[string]string{"code": code})
}

func (m *LogMailer) SendSetupInvitation(ctx context.Context, email, name, setupURL string) error {
	return m.log("setup_invitation", email, map[string]string{"setup_url": setupURL})
}

func (m *LogMailer) SendLeaveDecision(ctx context.Context, email, name, leaveType, status, startDate, endDate string) error {
	return m.log("leave_decision", email, map[string]string{
		"leave_type": leaveType,
		"status":     status,
		"start_date": startDate,
		"end_date":   endDate,
	})
}
