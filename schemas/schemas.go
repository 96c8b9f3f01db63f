// Package schemas embeds the JSON Schema documents shipped with evolve.
package schemas

import _ "embed"

// ContractSchemaJSON is the JSON Schema for application contracts,
// whether produced by the contract generator or supplied by users.
//
//go:embed contract.schema.json
var ContractSchemaJSON string
