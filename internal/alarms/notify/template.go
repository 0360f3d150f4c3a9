package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Anomaly {{.SeverityLabel}}]
Machine: {{.Machine}}
Mode: {{.Mode}}
Temperature: {{.Temperature}}
Vibration: {{.Vibration}}
Efficiency: {{.Efficiency}}
Reading Time: {{.Timestamp}}
Reasons: {{.Reasons}}
Suggestion: {{.Suggestion}}
{{ if .DashboardURL }}
Dashboard: {{.DashboardURL}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Machine       string
	MachineID     int
	Mode          string
	Temperature   string
	Vibration     string
	Efficiency    string
	Timestamp     string
	Severity      string
	SeverityLabel string
	Reasons       string
	Suggestion    string
	DashboardURL  string
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
	parsed, err := template.New("anomaly-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("anomaly template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
