package contract

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// ParseMarkdown builds a contract from a markdown definition document.
// The expected layout is a level-1 title (the app name) followed by an
// optional description paragraph and an "Entities" section containing
// one level-3 heading per entity, each followed by a field table with
// Field, Type, Required, Unique, and Auto columns.
//
// Markdown covers the definition layer only: API resources are derived
// from the entities (one resource per entity, full operation set) and
// the generation and validation layers take their defaults.
func ParseMarkdown(source []byte) (*Contract, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(source))

	var c Contract
	section := ""
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(nodeText(v, source))
			switch v.Level {
			case 1:
				if c.App.Name == "" {
					c.App.Name = title
				}
			case 2:
				section = strings.ToLower(title)
			case 3:
				if section == "entities" {
					c.Entities = append(c.Entities, Entity{Name: title})
				}
			}
		case *ast.Paragraph:
			if section == "" && c.App.Name != "" && c.App.Description == "" {
				c.App.Description = strings.TrimSpace(nodeText(v, source))
			}
		case *east.Table:
			if section == "entities" && len(c.Entities) > 0 {
				e := &c.Entities[len(c.Entities)-1]
				e.Fields = append(e.Fields, parseFieldTable(v, source)...)
			}
		}
	}

	for _, e := range c.Entities {
		c.API.Resources = append(c.API.Resources, Resource{
			Name:   pluralize(e.Name),
			Entity: e.Name,
		})
	}

	return finish(&c, string(source))
}

// fieldColumns maps recognized header labels to field table columns.
var fieldColumns = map[string]string{
	"field":     "name",
	"name":      "name",
	"type":      "type",
	"required":  "required",
	"unique":    "unique",
	"auto":      "generated",
	"generated": "generated",
}

func parseFieldTable(table *east.Table, source []byte) []Field {
	var columns []string
	var fields []Field

	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		cells := cellTexts(row, source)
		if _, ok := row.(*east.TableHeader); ok {
			columns = make([]string, len(cells))
			for i, cell := range cells {
				columns[i] = fieldColumns[strings.ToLower(cell)]
			}
			continue
		}

		var f Field
		for i, cell := range cells {
			if i >= len(columns) {
				break
			}
			switch columns[i] {
			case "name":
				f.Name = cell
			case "type":
				f.Type = parseFieldType(cell)
			case "required":
				f.Annotations.Required = truthy(cell)
			case "unique":
				f.Annotations.Unique = truthy(cell)
			case "generated":
				f.Annotations.Generated = truthy(cell)
			}
		}
		if f.Name != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func cellTexts(row ast.Node, source []byte) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		cells = append(cells, strings.TrimSpace(nodeText(cell, source)))
	}
	return cells
}

// nodeText collects the plain text content beneath a node.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// parseFieldType canonicalizes a type cell against the vocabulary,
// matching case-insensitively. Unknown types pass through verbatim so
// validation can report them.
func parseFieldType(s string) FieldType {
	for _, t := range FieldTypes() {
		if strings.EqualFold(s, string(t)) {
			return t
		}
	}
	return FieldType(s)
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "x", "✓", "✔":
		return true
	}
	return false
}

// pluralize derives a resource name from an entity name.
func pluralize(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "s"):
		return lower
	case len(lower) > 1 && strings.HasSuffix(lower, "y") && !isVowel(lower[len(lower)-2]):
		return lower[:len(lower)-1] + "ies"
	default:
		return lower + "s"
	}
}

func isVowel(b byte) bool {
	return strings.ContainsRune("aeiou", rune(b))
}

// Markdown renders the contract as a human-readable document. The
// output parses back via [ParseMarkdown] into the same definition
// layer.
func Markdown(c *Contract) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", c.App.Name)
	if c.App.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", c.App.Description)
	}

	fmt.Fprintf(&sb, "## Tech Stack\n\n")
	fmt.Fprintf(&sb, "- Framework: %s\n", c.TechStack.Framework)
	fmt.Fprintf(&sb, "- Language: %s\n", c.TechStack.Language)
	fmt.Fprintf(&sb, "- Runtime: %s\n", c.TechStack.Runtime)
	fmt.Fprintf(&sb, "- Port: %d\n\n", c.TechStack.Port)

	fmt.Fprintf(&sb, "## Entities\n\n")
	for _, e := range c.Entities {
		fmt.Fprintf(&sb, "### %s\n\n", e.Name)
		sb.WriteString("| Field | Type | Required | Unique | Auto |\n")
		sb.WriteString("|-------|------|----------|--------|------|\n")
		for _, f := range e.Fields {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				f.Name, f.Type,
				yesNo(f.Annotations.Required), yesNo(f.Annotations.Unique), yesNo(f.Annotations.Generated))
		}
		sb.WriteString("\n")
		for _, r := range e.Relations {
			fmt.Fprintf(&sb, "- %s %s %s\n", r.Kind, r.Entity, r.Name)
		}
		if len(e.Relations) > 0 {
			sb.WriteString("\n")
		}
	}

	if len(c.API.Resources) > 0 {
		fmt.Fprintf(&sb, "## API\n\n")
		fmt.Fprintf(&sb, "Version %s, prefix `%s`.\n\n", c.API.Version, c.API.Prefix)
		for _, r := range c.API.Resources {
			ops := make([]string, len(r.Operations))
			for i, op := range r.Operations {
				ops[i] = string(op)
			}
			fmt.Fprintf(&sb, "- `%s` (%s): %s\n", r.Name, r.Entity, strings.Join(ops, ", "))
		}
		sb.WriteString("\n")
	}

	if len(c.Instructions) > 0 {
		fmt.Fprintf(&sb, "## Instructions\n\n")
		for _, in := range c.Instructions {
			fmt.Fprintf(&sb, "- %s\n", in.Line())
		}
		sb.WriteString("\n")
	}

	if len(c.Assertions) > 0 {
		fmt.Fprintf(&sb, "## Assertions\n\n")
		for _, a := range c.Assertions {
			fmt.Fprintf(&sb, "- `%s`: %s %s", a.ID, a.Check.Type, a.Check.Path)
			if a.Check.Pattern != "" {
				fmt.Fprintf(&sb, " ~ %q", a.Check.Pattern)
			}
			fmt.Fprintf(&sb, " (%s)\n", a.Severity)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
