// Package prompt renders the (system, user) message pairs sent to LLM
// providers. Templates are pure string formatting with no I/O; every
// variable a template references must be supplied or Build fails.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// Messages is one rendered prompt: the system framing plus the user
// request.
type Messages struct {
	System string
	User   string
}

// TemplateNotFoundError is returned by Build for unregistered names.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("prompt template %q is not registered", e.Name)
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

// Builder holds named prompt templates. The zero value is unusable;
// NewBuilder registers the built-in templates.
type Builder struct {
	templates map[string]compiled
}

// NewBuilder returns a Builder with the built-in templates (contract,
// contract_fix, code, fix) registered.
func NewBuilder() *Builder {
	b := &Builder{templates: make(map[string]compiled)}

	// Built-in templates are compiled at startup; a parse failure here
	// is a programming error.
	mustRegister(b, TemplateContract, contractSystem, contractUser)
	mustRegister(b, TemplateContractFix, contractFixSystem, contractFixUser)
	mustRegister(b, TemplateCode, codeSystem, codeUser)
	mustRegister(b, TemplateFix, fixSystem, fixUser)
	return b
}

func mustRegister(b *Builder, name, system, user string) {
	if err := b.Register(name, system, user); err != nil {
		panic(fmt.Sprintf("registering built-in template %s: %v", name, err))
	}
}

// Register adds or replaces a named template pair. Both parts use Go
// text/template syntax and fail at Build time when a referenced
// variable is missing.
func (b *Builder) Register(name, system, user string) error {
	sys, err := template.New(name + ".system").Option("missingkey=error").Parse(system)
	if err != nil {
		return fmt.Errorf("parsing system template %s: %w", name, err)
	}
	usr, err := template.New(name + ".user").Option("missingkey=error").Parse(user)
	if err != nil {
		return fmt.Errorf("parsing user template %s: %w", name, err)
	}
	b.templates[name] = compiled{system: sys, user: usr}
	return nil
}

// Build renders the named template with vars. Unknown names return a
// [*TemplateNotFoundError]; a template referencing a variable missing
// from vars returns the template engine's execution error.
func (b *Builder) Build(name string, vars any) (Messages, error) {
	tmpl, ok := b.templates[name]
	if !ok {
		return Messages{}, &TemplateNotFoundError{Name: name}
	}

	system, err := render(tmpl.system, vars)
	if err != nil {
		return Messages{}, fmt.Errorf("rendering %s system message: %w", name, err)
	}
	user, err := render(tmpl.user, vars)
	if err != nil {
		return Messages{}, fmt.Errorf("rendering %s user message: %w", name, err)
	}
	return Messages{System: system, User: user}, nil
}

// Names returns the registered template names, for diagnostics.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.templates))
	for name := range b.templates {
		names = append(names, name)
	}
	return names
}

func render(t *template.Template, vars any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
