package notify

import (
	"context"
	"log/slog"
	"strings"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers one message. Callers log failures; nothing here retries.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer only logs. It is used when SMTP is not configured.
type LogMailer struct {
	Log *slog.Logger
}

func (l LogMailer) Send(ctx context.Context, m Message) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	names := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		names = append(names, a.Filename)
	}
	log.InfoContext(ctx, "mail (not sent, smtp disabled)",
		"to", m.To, "subject", m.Subject, "attachments", strings.Join(names, ","))
	return nil
}
