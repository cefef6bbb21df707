package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/textproto"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Attachment is a file attached to an outgoing report email.
type Attachment struct {
	Filename string
	Data     []byte
}

// MailClient delivers reports over Gmail, sending as the recipient via
// delegated credentials.
type MailClient struct {
	logger *slog.Logger
	creds  []byte
}

// NewMailClient creates a mail client from service account JSON.
func NewMailClient(logger *slog.Logger, creds []byte) *MailClient {
	return &MailClient{logger: logger, creds: creds}
}

// Send delivers a multipart/alternative email (plain text plus HTML)
// with optional attachments, impersonating the sender. It returns the
// Gmail message ID.
func (m *MailClient) Send(ctx context.Context, sender, replyTo, recipient, subject, textBody, htmlBody string, attachments []Attachment) (string, error) {
	cfg, err := google.JWTConfigFromJSON(m.creds, gmail.GmailSendScope)
	if err != nil {
		return "", fmt.Errorf("failed to parse service account credentials: %w", err)
	}
	cfg.Subject = sender
	service, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx)))
	if err != nil {
		return "", fmt.Errorf("failed to create gmail service: %w", err)
	}

	raw, err := buildMessage(sender, replyTo, recipient, subject, textBody, htmlBody, attachments)
	if err != nil {
		return "", fmt.Errorf("failed to build mail message: %w", err)
	}

	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	response, err := service.Users.Messages.Send("me", message).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send mail to %s: %w", recipient, err)
	}
	m.logger.Info("Email sent.", "recipient", recipient, "messageID", response.Id)
	return response.Id, nil
}

// buildMessage assembles the RFC 2822 message: a multipart/mixed
// envelope holding a multipart/alternative text+HTML body and base64
// encoded attachments.
func buildMessage(sender, replyTo, recipient, subject, textBody, htmlBody string, attachments []Attachment) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	if replyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", replyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)
	textPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(textBody)); err != nil {
		return nil, err
	}
	htmlPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/html; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}

	bodyPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write(altBuf.Bytes()); err != nil {
		return nil, err
	}

	for _, att := range attachments {
		part, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/octet-stream"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", att.Filename)},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(base64.StdEncoding.EncodeToString(att.Data))); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
