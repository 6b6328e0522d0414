package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

// TemplateFile is the YAML shape of a mail template file:
//
//	subject: "Confirm your {{.Snaps}} snaps"
//	html: |
//	  <a href="{{.Link}}">Confirm</a>
type TemplateFile struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
}

// TemplateData is what a template can reference.
type TemplateData struct {
	Link  string
	URL   string
	Snaps int
	Email string
}

// Template renders the verification email.
type Template struct {
	subject *texttemplate.Template
	html    *template.Template
}

const (
	defaultSubject = "Confirm your {{.Snaps}} snaps for {{.URL}}"
	defaultHTML    = `<p>Someone (hopefully you) gave <strong>{{.Snaps}}</strong> snaps to <code>{{.URL}}</code>.</p>
<p><a href="{{.Link}}">Click here to confirm</a>. Your snaps are only counted once confirmed.</p>
<p>If this wasn't you, ignore this email.</p>`
)

// DefaultTemplate returns the built-in verification email.
func DefaultTemplate() *Template {
	t, err := ParseTemplate(TemplateFile{Subject: defaultSubject, HTML: defaultHTML})
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTemplate reads a YAML template file. An empty path returns the default.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail template: %w", err)
	}

	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mail template yaml: %w", err)
	}

	return ParseTemplate(file)
}

// ParseTemplate compiles a subject and HTML body. Both are required.
func ParseTemplate(file TemplateFile) (*Template, error) {
	if strings.TrimSpace(file.Subject) == "" || strings.TrimSpace(file.HTML) == "" {
		return nil, fmt.Errorf("mail template needs both subject and html")
	}

	// the subject is a header, not HTML
	subject, err := texttemplate.New("subject").Parse(file.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject template: %w", err)
	}
	html, err := template.New("html").Parse(file.HTML)
	if err != nil {
		return nil, fmt.Errorf("invalid html template: %w", err)
	}

	return &Template{subject: subject, html: html}, nil
}

// Render produces the subject line and HTML body.
func (t *Template) Render(data TemplateData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	body = buf.String()

	buf.Reset()
	if err := t.subject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = strings.Join(strings.Fields(buf.String()), " ")

	return subject, body, nil
}
