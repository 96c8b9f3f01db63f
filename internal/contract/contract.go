// Package contract defines the application contract: the structured
// specification of the target application that the contract generator
// produces and the code generator consumes. A contract combines three
// layers in one object: definition (app, entities, api), generation
// (instructions, techStack), and validation (assertions, acceptance).
package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default values applied by [Contract.Normalize] when a field is unset.
const (
	DefaultAppVersion = "0.1.0"
	DefaultAPIVersion = "v1"
	DefaultAPIPrefix  = "/api"
	DefaultFramework  = "express"
	DefaultLanguage   = "javascript"
	DefaultRuntime    = "node"
	DefaultPort       = 3000
)

// FieldType is the type of an entity field, drawn from a fixed vocabulary.
type FieldType string

const (
	TypeUUID     FieldType = "UUID"
	TypeString   FieldType = "String"
	TypeText     FieldType = "Text"
	TypeInt      FieldType = "Int"
	TypeFloat    FieldType = "Float"
	TypeBoolean  FieldType = "Boolean"
	TypeDateTime FieldType = "DateTime"
	TypeEmail    FieldType = "Email"
	TypeURL      FieldType = "URL"
	TypePhone    FieldType = "Phone"
	TypeMoney    FieldType = "Money"
)

// FieldTypes returns the full field type vocabulary.
func FieldTypes() []FieldType {
	return []FieldType{
		TypeUUID, TypeString, TypeText, TypeInt, TypeFloat, TypeBoolean,
		TypeDateTime, TypeEmail, TypeURL, TypePhone, TypeMoney,
	}
}

// Valid reports whether t is part of the field type vocabulary.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// GeneratedFieldNames lists the field names reserved for automatically
// generated values. They are implicitly required on every entity and
// must not be declared as ordinary writable fields.
func GeneratedFieldNames() []string {
	return []string{"id", "createdAt", "updatedAt"}
}

// Annotations qualify how an entity field behaves.
type Annotations struct {
	Required  bool `json:"required,omitempty" yaml:"required,omitempty"`
	Unique    bool `json:"unique,omitempty" yaml:"unique,omitempty"`
	Generated bool `json:"generated,omitempty" yaml:"generated,omitempty"`
}

// Field is one attribute of an entity.
type Field struct {
	Name        string      `json:"name" yaml:"name"`
	Type        FieldType   `json:"type" yaml:"type"`
	Annotations Annotations `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// RelationKind describes the direction and cardinality of a relation.
type RelationKind string

const (
	RelationHasOne    RelationKind = "hasOne"
	RelationHasMany   RelationKind = "hasMany"
	RelationBelongsTo RelationKind = "belongsTo"
)

// Relation links one entity to another.
type Relation struct {
	Name   string       `json:"name" yaml:"name"`
	Entity string       `json:"entity" yaml:"entity"`
	Kind   RelationKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Entity is one domain object of the target application.
type Entity struct {
	Name      string     `json:"name" yaml:"name"`
	Fields    []Field    `json:"fields" yaml:"fields"`
	Relations []Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Field returns the entity field with the given name, matching
// case-insensitively.
func (e *Entity) Field(name string) (*Field, bool) {
	for i := range e.Fields {
		if strings.EqualFold(e.Fields[i].Name, name) {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// Operation is one CRUD operation exposed on an API resource.
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// AllOperations returns every supported resource operation, in route
// registration order.
func AllOperations() []Operation {
	return []Operation{OpList, OpGet, OpCreate, OpUpdate, OpDelete}
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpList, OpGet, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Resource is one API surface backed by an entity.
type Resource struct {
	Name       string      `json:"name" yaml:"name"`
	Entity     string      `json:"entity" yaml:"entity"`
	Operations []Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// API describes the HTTP surface of the target application.
type API struct {
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
	Prefix    string     `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Resources []Resource `json:"resources" yaml:"resources"`
}

// Priority ranks how binding a generation instruction is.
type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityMay    Priority = "may"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityMust, PriorityShould, PriorityMay:
		return true
	}
	return false
}

// Instruction is a free-form generation directive aimed at a target
// (for example "api" or "tests").
type Instruction struct {
	Target   string   `json:"target,omitempty" yaml:"target,omitempty"`
	Priority Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	Text     string   `json:"text" yaml:"text"`
}

// Line renders the instruction as a single "PRIORITY: text" prompt line.
func (in Instruction) Line() string {
	p := in.Priority
	if p == "" {
		p = PriorityShould
	}
	if in.Target != "" {
		return fmt.Sprintf("%s (%s): %s", strings.ToUpper(string(p)), in.Target, in.Text)
	}
	return fmt.Sprintf("%s: %s", strings.ToUpper(string(p)), in.Text)
}

// TechStack pins the backend technology of the generated application.
type TechStack struct {
	Framework string `json:"framework" yaml:"framework"`
	Language  string `json:"language" yaml:"language"`
	Runtime   string `json:"runtime" yaml:"runtime"`
	Port      int    `json:"port" yaml:"port"`
}

// CheckType identifies the kind of filesystem check an assertion runs.
type CheckType string

const (
	CheckFileExists   CheckType = "file_exists"
	CheckDirExists    CheckType = "dir_exists"
	CheckFileContains CheckType = "file_contains"
)

// Valid reports whether t is a known check type.
func (t CheckType) Valid() bool {
	switch t {
	case CheckFileExists, CheckDirExists, CheckFileContains:
		return true
	}
	return false
}

// Check is the concrete test an assertion performs against the
// generated output directory.
type Check struct {
	Type CheckType `json:"type" yaml:"type"`
	Path string    `json:"path,omitempty" yaml:"path,omitempty"`
	// Pattern is the substring or regular expression a file_contains
	// check looks for.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Severity grades assertion findings. Only error-level findings block
// the validation pipeline.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning
}

// Assertion is one contract-level expectation about the generated
// application, verified by the validation pipeline.
type Assertion struct {
	ID       string   `json:"id" yaml:"id"`
	Check    Check    `json:"check" yaml:"check"`
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Acceptance holds the session-level acceptance criteria.
type Acceptance struct {
	TestsMustPass bool    `json:"testsMustPass,omitempty" yaml:"testsMustPass,omitempty"`
	MinCoverage   float64 `json:"minCoverage,omitempty" yaml:"minCoverage,omitempty"`
	LintClean     bool    `json:"lintClean,omitempty" yaml:"lintClean,omitempty"`
}

// App identifies the target application.
type App struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Contract is the single interchange format between the contract
// generator and the code generator. It is produced once per evolution
// session and treated as immutable for the duration of the run; only
// an explicit fix request may replace it.
type Contract struct {
	App          App           `json:"app" yaml:"app"`
	Entities     []Entity      `json:"entities" yaml:"entities"`
	API          API           `json:"api" yaml:"api"`
	Instructions []Instruction `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	TechStack    TechStack     `json:"techStack" yaml:"techStack"`
	Assertions   []Assertion   `json:"assertions,omitempty" yaml:"assertions,omitempty"`
	Acceptance   Acceptance    `json:"acceptance" yaml:"acceptance"`
}

// Entity returns the entity with the given name, matching
// case-insensitively.
func (c *Contract) Entity(name string) (*Entity, bool) {
	for i := range c.Entities {
		if strings.EqualFold(c.Entities[i].Name, name) {
			return &c.Entities[i], true
		}
	}
	return nil, false
}

// InstructionLines renders every instruction via [Instruction.Line].
func (c *Contract) InstructionLines() []string {
	if len(c.Instructions) == 0 {
		return nil
	}
	lines := make([]string, 0, len(c.Instructions))
	for _, in := range c.Instructions {
		lines = append(lines, in.Line())
	}
	return lines
}

// Normalize fills unset optional fields with defaults and appends the
// generated fields (id, createdAt, updatedAt) to every entity that
// does not already declare them. It is called after [Contract.Validate]
// succeeds; the result is stable under repeated application.
func (c *Contract) Normalize() {
	if c.App.Version == "" {
		c.App.Version = DefaultAppVersion
	}
	if c.API.Version == "" {
		c.API.Version = DefaultAPIVersion
	}
	if c.API.Prefix == "" {
		c.API.Prefix = DefaultAPIPrefix
	}
	if c.TechStack.Framework == "" {
		c.TechStack.Framework = DefaultFramework
	}
	if c.TechStack.Language == "" {
		c.TechStack.Language = DefaultLanguage
	}
	if c.TechStack.Runtime == "" {
		c.TechStack.Runtime = DefaultRuntime
	}
	if c.TechStack.Port == 0 {
		c.TechStack.Port = DefaultPort
	}

	for i := range c.Entities {
		ensureGeneratedFields(&c.Entities[i])
		for j := range c.Entities[i].Relations {
			if c.Entities[i].Relations[j].Kind == "" {
				c.Entities[i].Relations[j].Kind = RelationHasMany
			}
		}
	}

	for i := range c.API.Resources {
		if len(c.API.Resources[i].Operations) == 0 {
			c.API.Resources[i].Operations = AllOperations()
		}
	}

	for i := range c.Instructions {
		if c.Instructions[i].Priority == "" {
			c.Instructions[i].Priority = PriorityShould
		}
	}

	for i := range c.Assertions {
		if c.Assertions[i].Severity == "" {
			c.Assertions[i].Severity = SeverityError
		}
	}
}

// ensureGeneratedFields inserts id at the front and createdAt/updatedAt
// at the end of the entity's field list, skipping names the entity
// already declares.
func ensureGeneratedFields(e *Entity) {
	if _, ok := e.Field("id"); !ok {
		id := Field{
			Name:        "id",
			Type:        TypeUUID,
			Annotations: Annotations{Required: true, Unique: true, Generated: true},
		}
		e.Fields = append([]Field{id}, e.Fields...)
	}
	for _, name := range []string{"createdAt", "updatedAt"} {
		if _, ok := e.Field(name); ok {
			continue
		}
		e.Fields = append(e.Fields, Field{
			Name:        name,
			Type:        TypeDateTime,
			Annotations: Annotations{Required: true, Generated: true},
		})
	}
}

// FormatJSON renders the contract as indented JSON, the canonical
// on-disk and prompt-embedding form.
func FormatJSON(c *Contract) (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding contract: %w", err)
	}
	return string(b), nil
}
