package prompt

// Built-in template names.
const (
	TemplateContract    = "contract"
	TemplateContractFix = "contract_fix"
	TemplateCode        = "code"
	TemplateFix         = "fix"
)

// ContractVars feeds the contract template.
type ContractVars struct {
	// Prompt is the user's natural-language application description.
	Prompt string
}

// ContractFixVars feeds the contract_fix template, which re-prompts
// after a malformed or invalid contract response.
type ContractFixVars struct {
	Prompt string
	// RawOutput is the previous, rejected LLM output.
	RawOutput string
	// Issues lists what was wrong with RawOutput.
	Issues []string
}

// CodeVars feeds the code template.
type CodeVars struct {
	AppName      string
	ContractJSON string
	Framework    string
	Language     string
	Runtime      string
	Port         int
	// Instructions are the contract's generation instructions rendered
	// as "MUST/SHOULD/MAY: text" lines.
	Instructions []string
}

// FixFile is one previously generated file embedded in a fix prompt.
type FixFile struct {
	Path    string
	Content string
}

// FixVars feeds the fix template, which embeds validation errors as
// correction context for a code regeneration round.
type FixVars struct {
	AppName      string
	ContractJSON string
	Files        []FixFile
	// Errors are the failing stages' findings, one line per error in
	// the form "stage: file: message".
	Errors []string
}

const contractSystem = `You are a software architect. You translate application ideas into a precise JSON contract that downstream code generators consume.

The contract is a single JSON object with this shape:
- "app": {"name", "version", "description"}
- "entities": list of {"name", "fields": [{"name", "type", "annotations": {"required", "unique", "generated"}}], "relations": [{"name", "entity", "kind"}]}
- "api": {"version", "prefix", "resources": [{"name", "entity", "operations"}]}
- "instructions": list of {"target", "priority" ("must"|"should"|"may"), "text"}
- "techStack": {"framework", "language", "runtime", "port"}
- "assertions": list of {"id", "check": {"type", "path"}, "severity", "message"}
- "acceptance": {"testsMustPass", "minCoverage", "lintClean"}

Field types must be one of: UUID, String, Text, Int, Float, Boolean, DateTime, Email, URL, Phone, Money.
Do not include id, createdAt, or updatedAt fields; those are generated automatically.
Every api resource must reference an entity defined in "entities".`

const contractUser = `Create the contract for this application:

{{.Prompt}}

Respond with exactly one JSON object and no other text.`

const contractFixSystem = contractSystem

const contractFixUser = `Create the contract for this application:

{{.Prompt}}

Your previous response was rejected:
{{range .Issues}}- {{.}}
{{end}}
Previous response:
{{.RawOutput}}

Correct these problems and respond with exactly one JSON object and no other text.`

const codeSystem = `You are a senior backend engineer. You implement complete, runnable backends from a JSON contract.

Output rules:
- Emit every file as a fenced code block.
- The first line inside each block is a path comment, for example:
  // path: api/server.js
  The path is relative to the project root and uses forward slashes.
- Generate complete files, never fragments or diffs.
- Include a dependency manifest appropriate for the stack (for example package.json).
- Implement every entity, every api resource operation, and persistence for all declared fields.`

const codeUser = `Implement the backend for "{{.AppName}}" using {{.Framework}} ({{.Language}} on {{.Runtime}}), listening on port {{.Port}}.

Contract:
{{.ContractJSON}}
{{if .Instructions}}
Additional instructions:
{{range .Instructions}}- {{.}}
{{end}}{{end}}
Emit all project files now as fenced code blocks with path comments.`

const fixSystem = codeSystem

const fixUser = `The backend you generated for "{{.AppName}}" failed validation.

Contract:
{{.ContractJSON}}

Current files:
{{range .Files}}--- {{.Path}} ---
{{.Content}}

{{end}}Validation errors:
{{range .Errors}}- {{.}}
{{end}}
Regenerate the complete corrected files. Emit every file you change as a fenced code block with a path comment; unchanged files may be omitted.`
