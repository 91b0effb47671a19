package mailer

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(
		`Hi {{.Name}},

Welcome to Reawakened! Your account is ready.

Grace and peace,
The Reawakened team
`))

	verifyTmpl = template.Must(template.New("verify").Parse(
		`Hi {{.Name}},

Please confirm your email address by opening the link below:

{{.Link}}

This link expires in 24 hours. If you did not create an account, you can ignore this email.
`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`Hi {{.Name}},

We received a request to reset your password. Open the link below to choose a new one:

{{.Link}}

This link expires in 1 hour. If you did not ask for a reset, you can ignore this email; your password will not change.
`))
)

// Notifier renders the account emails and queues them on a Dispatcher.
type Notifier struct {
	Dispatcher *Dispatcher
	BaseURL    string
}

// DisplayName title-cases first/last name, falling back to the local part
// of the address.
func DisplayName(email, firstName, lastName string) string {
	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return cases.Title(language.English).String(name)
}

func (n Notifier) SendWelcome(to, displayName string) error {
	return n.enqueue(to, displayName, "Welcome to Reawakened", welcomeTmpl, "")
}

func (n Notifier) SendVerification(to, displayName, token string) error {
	return n.enqueue(to, displayName, "Confirm your email address", verifyTmpl, n.link("/verify-email", token))
}

func (n Notifier) SendPasswordReset(to, displayName, token string) error {
	return n.enqueue(to, displayName, "Reset your Reawakened password", resetTmpl, n.link("/reset-password", token))
}

func (n Notifier) link(path, token string) string {
	return strings.TrimRight(n.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (n Notifier) enqueue(to, name, subject string, tmpl *template.Template, link string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Name, Link string }{name, link}); err != nil {
		return fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	n.Dispatcher.Enqueue(Message{To: to, Name: name, Subject: subject, Body: buf.String()})
	return nil
}
