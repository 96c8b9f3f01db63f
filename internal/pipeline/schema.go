package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/evolvehq/evolve/internal/contract"
)

// SchemaStage re-validates the governing contract against the contract
// schema and its invariants, and flags drift between the active
// contract and the contract.json written to the output directory.
type SchemaStage struct{}

var _ Stage = (*SchemaStage)(nil)

func (*SchemaStage) Name() string { return "schema" }

func (*SchemaStage) Run(_ context.Context, vc *Context) StageResult {
	var sr StageResult

	if vc.Contract == nil {
		sr.Errors = append(sr.Errors, Finding{Message: "no contract in validation context"})
		return sr
	}

	text, err := contract.FormatJSON(vc.Contract)
	if err != nil {
		sr.Errors = append(sr.Errors, Finding{Message: err.Error()})
		return sr
	}
	for _, msg := range contract.SchemaErrors([]byte(text)) {
		sr.Errors = append(sr.Errors, Finding{Message: "contract " + msg})
	}

	if err := vc.Contract.Validate(); err != nil {
		var ve *contract.ValidationError
		if errors.As(err, &ve) {
			for _, issue := range ve.Issues {
				sr.Errors = append(sr.Errors, Finding{Message: "contract: " + issue})
			}
		} else {
			sr.Errors = append(sr.Errors, Finding{Message: err.Error()})
		}
	}

	// A stale contract.json on disk misleads anyone reading the output
	// directory; it is not fatal.
	diskPath := filepath.Join(vc.OutputDir, "contract.json")
	if data, err := os.ReadFile(diskPath); err == nil {
		if string(data) != text+"\n" && string(data) != text {
			sr.Warnings = append(sr.Warnings, Finding{
				File:    "contract.json",
				Message: "contract.json on disk differs from the active contract",
			})
		}
	}
	return sr
}
