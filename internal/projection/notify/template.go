package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Projection {{.State}}]
Run: {{.RunID}}
Configuration: {{.ConfigID}}
Scenario: {{.ScenarioID}}
Horizon: {{.StartDate}} - {{.EndDate}}
Days Recorded: {{.DaysRecorded}}
{{- if .ErrorKind }}
Error: {{.ErrorKind}} in {{.Component}} on {{.FailedDate}}
Detail: {{.Error}}
{{- end }}
{{- if .NPV }}
NPV: {{.NPV}}
IRR: {{.IRR}}
Payback: {{.Payback}}
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	State        string
	RunID        string
	ConfigID     string
	ScenarioID   string
	StartDate    string
	EndDate      string
	DaysRecorded int
	ErrorKind    string
	Component    string
	FailedDate   string
	Error        string
	NPV          string
	IRR          string
	Payback      string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("projection-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("projection template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
