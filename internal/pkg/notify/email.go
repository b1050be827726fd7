package notify

import (
	"context"
)

// Mailer is satisfied by mail.SMTPMailer.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// EmailSender renders a template and hands it to a Mailer.
type EmailSender struct {
	mailer Mailer
}

func NewEmailSender(m Mailer) *EmailSender {
	return &EmailSender{mailer: m}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	out, err := render(msg.Template, msg.Context)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg.Recipient, out.Subject, out.HTML, out.Text)
}
