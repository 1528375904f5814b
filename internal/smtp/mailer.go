package smtp

import (
	"bytes"
	"time"

	"github.com/cradoe/leverpad/assets"
	"github.com/cradoe/leverpad/internal/funcs"

	"github.com/wneessen/go-mail"

	htmlTemplate "html/template"
	textTemplate "text/template"
)

const defaultTimeout = 10 * time.Second

type MailClient interface {
	DialAndSend(...*mail.Msg) error
}

type MailerInterface interface {
	Send(recipient string, data any, patterns ...string) error
}

type Mailer struct {
	client    MailClient
	from      string
	retryWait time.Duration
}

func NewMailer(host string, port int, username, password, from string) (*Mailer, error) {
	client, err := mail.NewClient(
		host,
		mail.WithTimeout(defaultTimeout),
		mail.WithPort(port),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.NoTLS),
	)
	if err != nil {
		return nil, err
	}

	return NewMailerWithClient(client, from), nil
}

func NewMailerWithClient(client MailClient, from string) *Mailer {
	return &Mailer{
		client:    client,
		from:      from,
		retryWait: 2 * time.Second,
	}
}

// Send renders the "subject", "plainBody" and optional "htmlBody" templates
// from the embedded emails directory and delivers the message, retrying
// twice on failure.
func (m *Mailer) Send(recipient string, data any, patterns ...string) error {
	paths := make([]string, len(patterns))
	for i := range patterns {
		paths[i] = "emails/" + patterns[i]
	}
	msg := mail.NewMsg()

	if err := msg.To(recipient); err != nil {
		return err
	}

	if err := msg.From(m.from); err != nil {
		return err
	}

	ts, err := textTemplate.New("").Funcs(funcs.TemplateFuncs).ParseFS(assets.EmbeddedFiles, paths...)
	if err != nil {
		return err
	}

	subject := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(subject, "subject", data); err != nil {
		return err
	}

	msg.Subject(subject.String())

	plainBody := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(plainBody, "plainBody", data); err != nil {
		return err
	}

	msg.SetBodyString(mail.TypeTextPlain, plainBody.String())

	if ts.Lookup("htmlBody") != nil {
		ts, err := htmlTemplate.New("").Funcs(funcs.TemplateFuncs).ParseFS(assets.EmbeddedFiles, paths...)
		if err != nil {
			return err
		}

		htmlBody := new(bytes.Buffer)
		if err := ts.ExecuteTemplate(htmlBody, "htmlBody", data); err != nil {
			return err
		}

		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody.String())
	}

	for i := 1; i <= 3; i++ {
		err = m.client.DialAndSend(msg)

		if err == nil {
			return nil
		}

		if i != 3 {
			time.Sleep(m.retryWait)
		}
	}

	return err
}
