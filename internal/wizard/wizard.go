// Package wizard collects project settings interactively and renders
// the starter files written by evolve init.
package wizard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/evolvehq/evolve/internal/contract"
)

// ProjectSpec holds all fields collected during the interactive wizard.
type ProjectSpec struct {
	AppName       string
	Description   string
	Providers     []string
	MaxIterations int
	Output        string
	SkipStages    []string
	CacheEnabled  bool
}

// ConfigFileName is the project file the wizard writes.
const ConfigFileName = ".evolve.yaml"

// ExampleContractName is the starter contract the wizard writes.
const ExampleContractName = "example.contract.json"

var appNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ValidateAppName enforces the kebab-case naming the generated project
// and its files use.
func ValidateAppName(name string) error {
	if name == "" {
		return fmt.Errorf("app name is required")
	}
	if !appNameRe.MatchString(name) {
		return fmt.Errorf("app name %q must be kebab-case (lowercase letters, digits, hyphens)", name)
	}
	return nil
}

const configTemplate = `# evolve project configuration.
providers:
  order: [{{ join .Providers ", " }}]
defaults:
  max_iterations: {{ .MaxIterations }}
  output: {{ .Output }}
{{- if .SkipStages }}
pipeline:
  skip: [{{ join .SkipStages ", " }}]
{{- end }}
cache:
  enabled: {{ .CacheEnabled }}
`

// Run drives an interactive huh form to collect project settings.
// If initialName is non-empty, it pre-populates the app name field.
func Run(in io.Reader, out io.Writer, initialName string) (*ProjectSpec, error) {
	var (
		name          = initialName
		description   string
		providers     = []string{"openai", "ollama"}
		iterationsRaw = "5"
		output        = "app"
		skipRaw       string
		cacheEnabled  bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("App name").
				Description("A kebab-case name for the application to evolve").
				Placeholder("notes-api").
				Value(&name).
				Validate(func(s string) error {
					return ValidateAppName(strings.TrimSpace(s))
				}),
			huh.NewInput().
				Title("Description").
				Description("One line on what the application should do").
				Placeholder("A REST API for notes").
				Value(&description),
			huh.NewMultiSelect[string]().
				Title("Providers").
				Description("Tried in order until one answers").
				Options(
					huh.NewOption("openai", "openai").Selected(true),
					huh.NewOption("ollama", "ollama").Selected(true),
					huh.NewOption("copilot", "copilot"),
					huh.NewOption("static (canned responses, no network)", "static"),
				).
				Value(&providers),
			huh.NewInput().
				Title("Max iterations").
				Description("Code generation attempts before giving up").
				Value(&iterationsRaw).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 || n > 20 {
						return fmt.Errorf("enter a number between 1 and 20")
					}
					return nil
				}),
			huh.NewInput().
				Title("Output directory").
				Description("Where generated applications land").
				Value(&output).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("output directory is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Stages to skip").
				Description("Comma-separated validation stages, empty for none").
				Placeholder("security, runtime").
				Value(&skipRaw),
			huh.NewConfirm().
				Title("Enable response cache?").
				Description("Replays identical prompts from disk").
				Value(&cacheEnabled),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	iterations, _ := strconv.Atoi(strings.TrimSpace(iterationsRaw))
	return &ProjectSpec{
		AppName:       strings.TrimSpace(name),
		Description:   strings.TrimSpace(description),
		Providers:     providers,
		MaxIterations: iterations,
		Output:        strings.TrimSpace(output),
		SkipStages:    splitAndTrim(skipRaw),
		CacheEnabled:  cacheEnabled,
	}, nil
}

// GenerateConfigYAML renders an .evolve.yaml from the given spec.
func GenerateConfigYAML(spec *ProjectSpec) (string, error) {
	tmpl, err := template.New("config").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(configTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// GenerateExampleContract builds a minimal valid contract seeded with
// the app name, for users who prefer editing a contract over prompting.
func GenerateExampleContract(spec *ProjectSpec) (string, error) {
	c := &contract.Contract{
		App: contract.App{
			Name:        spec.AppName,
			Version:     "0.1.0",
			Description: spec.Description,
		},
		Entities: []contract.Entity{
			{
				Name: "Item",
				Fields: []contract.Field{
					{Name: "name", Type: contract.TypeString, Annotations: contract.Annotations{Required: true}},
					{Name: "done", Type: contract.TypeBoolean},
				},
			},
		},
		API: contract.API{
			Version: "v1",
			Prefix:  "/api",
			Resources: []contract.Resource{
				{Name: "items", Entity: "Item", Operations: contract.AllOperations()},
			},
		},
		Instructions: []contract.Instruction{
			{Priority: contract.PriorityMust, Text: "Return JSON responses with appropriate status codes."},
		},
		TechStack: contract.TechStack{
			Framework: "express",
			Language:  "javascript",
			Runtime:   "node",
			Port:      3000,
		},
		Assertions: []contract.Assertion{
			{
				ID:       "manifest",
				Check:    contract.Check{Type: contract.CheckFileExists, Path: "package.json"},
				Severity: contract.SeverityError,
				Message:  "generated project must declare its dependencies",
			},
		},
		Acceptance: contract.Acceptance{TestsMustPass: true},
	}

	return contract.FormatJSON(c)
}

// WriteFiles writes the config and example contract into dir, creating
// it as needed. Existing files are refused unless force is set; the
// returned paths are the files actually written.
func WriteFiles(dir string, spec *ProjectSpec, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %q: %w", dir, err)
	}

	configPath := filepath.Join(dir, ConfigFileName)
	contractPath := filepath.Join(dir, ExampleContractName)
	if !force {
		for _, p := range []string{configPath, contractPath} {
			if _, err := os.Stat(p); err == nil {
				return nil, fmt.Errorf("%s already exists; re-run with --force to overwrite", p)
			}
		}
	}

	configYAML, err := GenerateConfigYAML(spec)
	if err != nil {
		return nil, err
	}
	exampleJSON, err := GenerateExampleContract(spec)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", ConfigFileName, err)
	}
	if err := os.WriteFile(contractPath, []byte(exampleJSON), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", ExampleContractName, err)
	}
	return []string{configPath, contractPath}, nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
