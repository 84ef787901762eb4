package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
	"github.com/yuin/goldmark"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// =============================================================================
// EMAIL CHANNEL
// =============================================================================

// emailChannel sends drafts as multipart mail: rendered HTML with the raw
// markdown as the plaintext part.
type emailChannel struct {
	cfg *config.Config
	// send dials SMTP; tests swap it for a recorder.
	send func(ctx context.Context, ec config.EmailConfig, msg *mail.Msg) error
}

func newEmailChannel(cfg *config.Config) *emailChannel {
	return &emailChannel{cfg: cfg, send: smtpSend}
}

func (e *emailChannel) Name() string { return library.ChannelEmail }

func (e *emailChannel) Publish(ctx context.Context, draft *library.Draft, dryRun bool) (*Receipt, error) {
	ec := e.cfg.Publish.Email
	markdown, err := draftMarkdown(draft)
	if err != nil {
		return nil, err
	}

	if dryRun {
		return &Receipt{
			Channel: e.Name(),
			DryRun:  true,
			Summary: fmt.Sprintf("email: would send %q to %s",
				emailSubject(ec, draft), strings.Join(ec.To, ", ")),
		}, nil
	}
	if !ec.IsConfigured() {
		return nil, errors.New("email is not configured (set publish.email host, from and to)")
	}

	ref := uuid.NewString()
	msg, err := buildEmail(ec, draft, markdown, ref)
	if err != nil {
		return nil, err
	}
	if err := e.send(ctx, ec, msg); err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}
	logging.Publish("Email %q sent to %d recipients", emailSubject(ec, draft), len(ec.To))
	return &Receipt{
		Channel:     e.Name(),
		ExternalRef: ref,
		Summary:     fmt.Sprintf("email: sent to %s", strings.Join(ec.To, ", ")),
	}, nil
}

func emailSubject(ec config.EmailConfig, draft *library.Draft) string {
	subject := draft.Title
	if subject == "" {
		subject = draft.Topic
	}
	if ec.SubjectPrefix != "" {
		subject = ec.SubjectPrefix + " " + subject
	}
	return subject
}

// buildEmail assembles the message. The message ID doubles as the
// publication's external ref so a resend is traceable in mail logs.
func buildEmail(ec config.EmailConfig, draft *library.Draft, markdown, ref string) (*mail.Msg, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render email html: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(ec.From); err != nil {
		return nil, fmt.Errorf("bad from address %q: %w", ec.From, err)
	}
	if err := msg.To(ec.To...); err != nil {
		return nil, fmt.Errorf("bad recipient: %w", err)
	}
	msg.SetMessageIDWithValue(ref)
	msg.Subject(emailSubject(ec, draft))
	msg.SetBodyString(mail.TypeTextPlain, markdown)
	msg.AddAlternativeString(mail.TypeTextHTML, emailHTML(draft.Title, body.String()))
	return msg, nil
}

// emailHTML wraps the converted body in a minimal shell so clients render
// readable line lengths.
func emailHTML(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="margin:0;padding:24px;font-family:Georgia,serif;line-height:1.6;color:#1a1a1a">
<div style="max-width:640px;margin:0 auto">
%s</div>
</body></html>
`, html.EscapeString(title), body)
}

func smtpSend(ctx context.Context, ec config.EmailConfig, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(ec.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if ec.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(ec.Username),
			mail.WithPassword(ec.Password),
		)
	}
	client, err := mail.NewClient(ec.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
