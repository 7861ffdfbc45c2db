package notifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

// Message is one notification to deliver. Email is optional; when empty only
// the in-app entry is written.
type Message struct {
	UserID  uuid.UUID
	Email   string
	Type    enums.NotificationType
	Title   string
	Body    string
	Link    string
}

// Outcome reports per-channel delivery results. Notification delivery is
// best effort: callers log the outcome but never roll back committed
// financial state because of it.
type Outcome struct {
	InAppErr error
	EmailErr error
}

// Failed reports whether any channel failed.
func (o Outcome) Failed() bool {
	return o.InAppErr != nil || o.EmailErr != nil
}

// Err collapses the per-channel failures into one error, nil when clean.
func (o Outcome) Err() error {
	return multierr.Combine(o.InAppErr, o.EmailErr)
}

// Service fans one message out to the in-app inbox and email.
type Service interface {
	Deliver(ctx context.Context, msg Message) Outcome
}

type service struct {
	repo   Repository
	mailer Mailer
	log    *logger.Logger
}

type ServiceParams struct {
	Repo   Repository
	Mailer Mailer
	Logger *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	// Mailer may be nil; dev environments run without SMTP.
	return &service{
		repo:   params.Repo,
		mailer: params.Mailer,
		log:    params.Logger,
	}, nil
}

func (s *service) Deliver(ctx context.Context, msg Message) Outcome {
	var outcome Outcome

	if msg.UserID == uuid.Nil || !msg.Type.IsValid() {
		outcome.InAppErr = fmt.Errorf("invalid notification message: user=%s type=%q", msg.UserID, msg.Type)
		return outcome
	}

	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  msg.UserID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Body,
	}
	if msg.Link != "" {
		link := msg.Link
		notification.Link = &link
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		outcome.InAppErr = fmt.Errorf("storing notification: %w", err)
	}

	if msg.Email != "" {
		if s.mailer == nil {
			s.log.Warn(s.log.WithField(ctx, "notification_type", msg.Type.String()), "mailer not configured, skipping email")
		} else if err := s.mailer.Send(ctx, msg.Email, msg.Title, msg.Body); err != nil {
			outcome.EmailErr = err
		}
	}

	if outcome.Failed() {
		s.log.Error(s.log.WithField(ctx, "notification_type", msg.Type.String()), "notification delivery incomplete", outcome.Err())
	}
	return outcome
}
