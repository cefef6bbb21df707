package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"calpilot/internal/google"
)

// Mailer sends a multipart report email. Satisfied by
// *google.MailClient.
type Mailer interface {
	Send(ctx context.Context, sender, replyTo, recipient, subject, textBody, htmlBody string, attachments []google.Attachment) (string, error)
}

// MailSink emails the report to the analyzed user, with the model's
// reasoning and the ICS digest attached.
type MailSink struct {
	logger *slog.Logger
	mailer Mailer
}

// NewMailSink creates a MailSink.
func NewMailSink(logger *slog.Logger, mailer Mailer) *MailSink {
	return &MailSink{logger: logger, mailer: mailer}
}

// Deliver sends the report as the user, to the user.
func (s *MailSink) Deliver(ctx context.Context, d Delivery) error {
	subject := fmt.Sprintf("Upcoming Calendar Issues - %s", time.Now().Format("2006-01-02"))

	attachments := []google.Attachment{
		{Filename: uuid.NewString() + ".reasoning.txt", Data: []byte(d.Reasoning)},
	}
	if d.ICS != "" {
		attachments = append(attachments, google.Attachment{
			Filename: uuid.NewString() + ".flagged-events.ics",
			Data:     []byte(d.ICS),
		})
	}

	msgID, err := s.mailer.Send(ctx, d.User, d.User, d.User, subject, d.Report.Text, d.Report.HTML, attachments)
	if err != nil {
		return fmt.Errorf("failed to deliver report to %s: %w", d.User, err)
	}
	s.logger.Info("Report delivered.", "user", d.User, "messageID", msgID)
	return nil
}

// LogSink prints the report instead of mailing it; the default when
// --sendmail is not set.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver logs both renderings of the report.
func (s *LogSink) Deliver(_ context.Context, d Delivery) error {
	s.logger.Info("HTML output follows.", "user", d.User)
	fmt.Println(d.Report.HTML)
	s.logger.Info("Text output follows.", "user", d.User)
	fmt.Println(d.Report.Text)
	return nil
}
