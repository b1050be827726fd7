package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
)

type rendered struct {
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

var templates = map[string]templateSet{
	TemplateRenewalReminder: {
		subject: template.Must(template.New("subject").Parse(
			`Reminder: {{.name}} renews on {{.due_date}}`)),
		text: template.Must(template.New("text").Parse(
			`Hi {{.recipient_name}},

your subscription "{{.name}}" ({{.cost}} {{.currency}}, {{.frequency}}) is due on {{.due_date}}.
{{if .days_left}}That is in {{.days_left}} day(s).{{end}}

You can renew, snooze or reschedule it from your dashboard.`)),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(
			`<p>Hi {{.recipient_name}},</p>
<p>your subscription <strong>{{.name}}</strong> ({{.cost}} {{.currency}}, {{.frequency}}) is due on <strong>{{.due_date}}</strong>.{{if .days_left}} That is in {{.days_left}} day(s).{{end}}</p>
<p>You can renew, snooze or reschedule it from your dashboard.</p>`)),
	},
}

func render(name string, data map[string]string) (*rendered, error) {
	set, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("notify: unknown template %q", name)
	}
	var subject, text, html bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return nil, err
	}
	if err := set.text.Execute(&text, data); err != nil {
		return nil, err
	}
	if err := set.html.Execute(&html, data); err != nil {
		return nil, err
	}
	return &rendered{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}
