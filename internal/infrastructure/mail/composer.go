package mail

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template is the subject and body source of one email kind
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// TemplateSet holds a template per message kind
type TemplateSet struct {
	Welcome    Template `yaml:"welcome"`
	Reminder   Template `yaml:"reminder"`
	Thankyou   Template `yaml:"thankyou"`
	Escalation Template `yaml:"escalation"`
}

// LoadTemplates reads a template set from a YAML file. An empty path returns
// the built-in templates.
func LoadTemplates(path string) (*TemplateSet, error) {
	data := defaultTemplates
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read templates file: %w", err)
		}
	}

	var set TemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal templates: %w", err)
	}
	return &set, nil
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// TemplateComposer implements port.MessageComposer with text/template
type TemplateComposer struct {
	templates map[entity.MessageKind]compiled
}

var _ port.MessageComposer = (*TemplateComposer)(nil)

// NewTemplateComposer parses every template of the set up front
func NewTemplateComposer(set *TemplateSet) (*TemplateComposer, error) {
	c := &TemplateComposer{templates: make(map[entity.MessageKind]compiled, 4)}

	for kind, tpl := range map[entity.MessageKind]Template{
		entity.MessageWelcome:    set.Welcome,
		entity.MessageReminder:   set.Reminder,
		entity.MessageThankyou:   set.Thankyou,
		entity.MessageEscalation: set.Escalation,
	} {
		if tpl.Subject == "" || tpl.Body == "" {
			return nil, fmt.Errorf("template %s is missing subject or body", kind)
		}
		subject, err := template.New(string(kind) + ".subject").Option("missingkey=error").Parse(tpl.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s subject: %w", kind, err)
		}
		body, err := template.New(string(kind) + ".body").Option("missingkey=error").Parse(tpl.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s body: %w", kind, err)
		}
		c.templates[kind] = compiled{subject: subject, body: body}
	}

	return c, nil
}

// NewDefaultComposer returns a composer over the built-in templates
func NewDefaultComposer() *TemplateComposer {
	set, err := LoadTemplates("")
	if err != nil {
		panic(err)
	}
	c, err := NewTemplateComposer(set)
	if err != nil {
		panic(err)
	}
	return c
}

// templateData is what templates see
type templateData struct {
	Employee           entity.Employee
	RemindersSent      int
	ReminderLimit      int
	RemainingReminders int
	FormFillDeadline   string
	ReminderInterval   string
	Task               *entity.FollowUpTask
}

// Compose renders the email of the given kind. The recipient is always the employee.
func (c *TemplateComposer) Compose(ctx context.Context, kind entity.MessageKind, state entity.OnboardingState) (port.Message, error) {
	tpl, ok := c.templates[kind]
	if !ok {
		return port.Message{}, fmt.Errorf("no template for message kind %s", kind)
	}

	remaining := state.ReminderLimit - state.RemindersSent
	if remaining < 0 {
		remaining = 0
	}
	data := templateData{
		Employee:           state.Employee,
		RemindersSent:      state.RemindersSent,
		ReminderLimit:      state.ReminderLimit,
		RemainingReminders: remaining,
		FormFillDeadline:   state.FormFillDeadline.String(),
		ReminderInterval:   state.ReminderInterval.String(),
		Task:               state.FollowUpTask,
	}

	subject, err := render(tpl.subject, data)
	if err != nil {
		return port.Message{}, err
	}
	body, err := render(tpl.body, data)
	if err != nil {
		return port.Message{}, err
	}

	return port.Message{
		To:      state.Employee.Email,
		Subject: subject,
		Body:    body,
	}, nil
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
