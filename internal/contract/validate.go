package contract

import (
	"fmt"
	"strings"
)

// ValidationError reports contract invariant violations. When the
// contract came out of a model response, Raw carries the original
// response text so callers can build a corrective re-prompt.
type ValidationError struct {
	Raw    string
	Issues []string
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "invalid contract"
	case 1:
		return "invalid contract: " + e.Issues[0]
	default:
		return fmt.Sprintf("invalid contract: %d issues, first: %s", len(e.Issues), e.Issues[0])
	}
}

// Validate checks the contract invariants and returns a
// [*ValidationError] listing every violation, or nil when the contract
// is well formed. It does not mutate the contract; apply
// [Contract.Normalize] after a successful Validate.
func (c *Contract) Validate() error {
	var issues []string

	if strings.TrimSpace(c.App.Name) == "" {
		issues = append(issues, "app.name must not be empty")
	}

	if len(c.Entities) == 0 {
		issues = append(issues, "contract declares no entities")
	}

	seenEntities := map[string]bool{}
	for _, e := range c.Entities {
		issues = append(issues, validateEntity(e, seenEntities)...)
	}

	// Cross-references resolve against declared entity names.
	for _, e := range c.Entities {
		for _, r := range e.Relations {
			if strings.TrimSpace(r.Entity) == "" {
				issues = append(issues, fmt.Sprintf("entity %q: relation %q names no target entity", e.Name, r.Name))
				continue
			}
			if _, ok := c.Entity(r.Entity); !ok {
				issues = append(issues, fmt.Sprintf("entity %q: relation %q references unknown entity %q", e.Name, r.Name, r.Entity))
			}
			if r.Kind != "" && r.Kind != RelationHasOne && r.Kind != RelationHasMany && r.Kind != RelationBelongsTo {
				issues = append(issues, fmt.Sprintf("entity %q: relation %q has unknown kind %q", e.Name, r.Name, r.Kind))
			}
		}
	}

	seenResources := map[string]bool{}
	for _, r := range c.API.Resources {
		issues = append(issues, validateResource(c, r, seenResources)...)
	}

	for i, in := range c.Instructions {
		if strings.TrimSpace(in.Text) == "" {
			issues = append(issues, fmt.Sprintf("instructions[%d] has empty text", i))
		}
		if in.Priority != "" && !in.Priority.Valid() {
			issues = append(issues, fmt.Sprintf("instructions[%d] has unknown priority %q (want must, should, or may)", i, in.Priority))
		}
	}

	seenAssertions := map[string]bool{}
	for i, a := range c.Assertions {
		issues = append(issues, validateAssertion(i, a, seenAssertions)...)
	}

	if c.Acceptance.MinCoverage < 0 || c.Acceptance.MinCoverage > 100 {
		issues = append(issues, fmt.Sprintf("acceptance.minCoverage %v is outside 0..100", c.Acceptance.MinCoverage))
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

func validateEntity(e Entity, seen map[string]bool) []string {
	var issues []string

	if strings.TrimSpace(e.Name) == "" {
		issues = append(issues, "entity with empty name")
		return issues
	}
	key := strings.ToLower(e.Name)
	if seen[key] {
		issues = append(issues, fmt.Sprintf("duplicate entity %q", e.Name))
	}
	seen[key] = true

	if len(e.Fields) == 0 {
		issues = append(issues, fmt.Sprintf("entity %q declares no fields", e.Name))
	}

	seenFields := map[string]bool{}
	for _, f := range e.Fields {
		if strings.TrimSpace(f.Name) == "" {
			issues = append(issues, fmt.Sprintf("entity %q: field with empty name", e.Name))
			continue
		}
		fkey := strings.ToLower(f.Name)
		if seenFields[fkey] {
			issues = append(issues, fmt.Sprintf("entity %q: duplicate field %q", e.Name, f.Name))
		}
		seenFields[fkey] = true

		if !f.Type.Valid() {
			issues = append(issues, fmt.Sprintf("entity %q: field %q has unknown type %q (want one of %s)",
				e.Name, f.Name, f.Type, joinTypes()))
		}
		if isGeneratedName(f.Name) && !f.Annotations.Generated {
			issues = append(issues, fmt.Sprintf("entity %q: field %q is auto-generated and must not be declared writable", e.Name, f.Name))
		}
	}
	return issues
}

func validateResource(c *Contract, r Resource, seen map[string]bool) []string {
	var issues []string

	if strings.TrimSpace(r.Name) == "" {
		issues = append(issues, "api resource with empty name")
	} else {
		key := strings.ToLower(r.Name)
		if seen[key] {
			issues = append(issues, fmt.Sprintf("duplicate api resource %q", r.Name))
		}
		seen[key] = true
	}

	if strings.TrimSpace(r.Entity) == "" {
		issues = append(issues, fmt.Sprintf("api resource %q names no entity", r.Name))
	} else if _, ok := c.Entity(r.Entity); !ok {
		issues = append(issues, fmt.Sprintf("api resource %q references unknown entity %q", r.Name, r.Entity))
	}

	for _, op := range r.Operations {
		if !op.Valid() {
			issues = append(issues, fmt.Sprintf("api resource %q has unknown operation %q", r.Name, op))
		}
	}
	return issues
}

func validateAssertion(i int, a Assertion, seen map[string]bool) []string {
	var issues []string

	if strings.TrimSpace(a.ID) == "" {
		issues = append(issues, fmt.Sprintf("assertions[%d] has empty id", i))
	} else {
		if seen[a.ID] {
			issues = append(issues, fmt.Sprintf("duplicate assertion id %q", a.ID))
		}
		seen[a.ID] = true
	}

	if !a.Check.Type.Valid() {
		issues = append(issues, fmt.Sprintf("assertion %q has unknown check type %q", a.ID, a.Check.Type))
	}
	switch a.Check.Type {
	case CheckFileExists, CheckDirExists:
		if strings.TrimSpace(a.Check.Path) == "" {
			issues = append(issues, fmt.Sprintf("assertion %q: %s check needs a path", a.ID, a.Check.Type))
		}
	case CheckFileContains:
		if strings.TrimSpace(a.Check.Path) == "" {
			issues = append(issues, fmt.Sprintf("assertion %q: file_contains check needs a path", a.ID))
		}
		if a.Check.Pattern == "" {
			issues = append(issues, fmt.Sprintf("assertion %q: file_contains check needs a pattern", a.ID))
		}
	}

	if a.Severity != "" && !a.Severity.Valid() {
		issues = append(issues, fmt.Sprintf("assertion %q has unknown severity %q", a.ID, a.Severity))
	}
	return issues
}

func isGeneratedName(name string) bool {
	for _, g := range GeneratedFieldNames() {
		if strings.EqualFold(name, g) {
			return true
		}
	}
	return false
}

func joinTypes() string {
	types := FieldTypes()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
