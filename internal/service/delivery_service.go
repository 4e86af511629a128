package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/pkg/jobs"
)

// DeliveryMessage carries everything a mailer needs to deliver a recorded
// send. The body is the embedded copy, never a live lookup, so what goes out
// matches what the ledger says went out.
type DeliveryMessage struct {
	SendID        string
	To            string
	RecipientName string
	Subject       string
	Message       string
	Title         string
	Content       string
	Version       int
}

// Mailer delivers a single message over some channel.
type Mailer interface {
	Send(ctx context.Context, msg DeliveryMessage) error
}

// LogMailer is the default mailer. It logs the delivery instead of talking to
// an SMTP relay, which is enough for development and CI environments.
type LogMailer struct {
	From   string
	Logger *zap.Logger
}

// Send logs the outbound message.
func (m *LogMailer) Send(_ context.Context, msg DeliveryMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("delivering proposal email",
		zap.String("send_id", msg.SendID),
		zap.String("from", m.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("version", msg.Version))
	return nil
}

// DeliveryService pushes EMAIL sends through a background worker queue.
// Dispatch is best-effort on top of the committed ledger row; a failed
// delivery never unwinds the send record.
type DeliveryService struct {
	queue  *jobs.Queue
	mailer Mailer
	logger *zap.Logger
}

// NewDeliveryService builds the service and its queue.
func NewDeliveryService(mailer Mailer, logger *zap.Logger, cfg jobs.QueueConfig) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DeliveryService{mailer: mailer, logger: logger}
	s.queue = jobs.NewQueue("proposal-delivery", s.handle, cfg)
	return s
}

// Start launches the delivery workers.
func (s *DeliveryService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains and stops the delivery workers.
func (s *DeliveryService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues an email delivery for a recorded send.
func (s *DeliveryService) Dispatch(send *models.ProposalSend) error {
	msg := DeliveryMessage{
		SendID:        send.ID,
		To:            send.SentTo,
		RecipientName: send.RecipientName,
		Subject:       send.Subject,
		Message:       send.Message,
		Title:         send.EmbeddedTitle,
		Content:       send.EmbeddedContent,
		Version:       send.Version,
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      send.ID,
		Type:    "proposal_email",
		Payload: msg,
	})
}

func (s *DeliveryService) handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(DeliveryMessage)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("deliver send %s: %w", msg.SendID, err)
	}
	return nil
}
