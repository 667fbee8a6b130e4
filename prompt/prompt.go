// Package prompt turns named input variables into the role based message list
// sent to a model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hupe1980/chainkit/core"
	"github.com/hupe1980/chainkit/internal/util"
)

// Role aliases accepted in message templates. "human" and "ai" map to "user"
// and "assistant".
var roleAliases = map[string]string{
	"human":     "user",
	"user":      "user",
	"ai":        "assistant",
	"assistant": "assistant",
	"system":    "system",
}

// MessageTemplate is a single (role, template) pair.
type MessageTemplate struct {
	Role     string
	Template string
}

// ChatTemplate renders a fixed sequence of message templates.
//
// Two placeholder styles are supported. Templates containing "{{" are rendered
// with text/template (variables as {{.name}}); all others use single brace
// placeholders such as {content}.
type ChatTemplate struct {
	messages []MessageTemplate
}

// FromMessages builds a ChatTemplate from role/template pairs.
//
// Example:
//
//	tmpl, err := prompt.FromMessages(
//	    prompt.MessageTemplate{Role: "human", Template: "{content}"},
//	)
func FromMessages(messages ...MessageTemplate) (*ChatTemplate, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("prompt: at least one message template is required")
	}
	out := make([]MessageTemplate, len(messages))
	for i, m := range messages {
		role, ok := roleAliases[strings.ToLower(m.Role)]
		if !ok {
			return nil, fmt.Errorf("prompt: unknown role %q", m.Role)
		}
		out[i] = MessageTemplate{Role: role, Template: m.Template}
	}
	return &ChatTemplate{messages: out}, nil
}

// MustFromMessages is like FromMessages but panics on error.
func MustFromMessages(messages ...MessageTemplate) *ChatTemplate {
	t, err := FromMessages(messages...)
	if err != nil {
		panic(err)
	}
	return t
}

// Human is a shorthand for a user message template.
func Human(template string) MessageTemplate { return MessageTemplate{Role: "user", Template: template} }

// System is a shorthand for a system message template.
func System(template string) MessageTemplate { return MessageTemplate{Role: "system", Template: template} }

// InputVariables lists the single brace variables referenced by the template
// in first-seen order.
func (t *ChatTemplate) InputVariables() []string {
	seen := map[string]bool{}
	var vars []string
	for _, m := range t.messages {
		for _, name := range util.Placeholders(m.Template) {
			if !seen[name] {
				seen[name] = true
				vars = append(vars, name)
			}
		}
	}
	return vars
}

// FormatMessages renders every message template with vars.
func (t *ChatTemplate) FormatMessages(vars map[string]any) ([]core.Content, error) {
	contents := make([]core.Content, 0, len(t.messages))
	for _, m := range t.messages {
		text, err := render(m.Template, vars)
		if err != nil {
			return nil, err
		}
		contents = append(contents, core.NewTextContent(m.Role, text))
	}
	return contents, nil
}

func render(tmpl string, vars map[string]any) (string, error) {
	out, err := util.RenderTemplate(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}
	return out, nil
}
