package api

import (
	"encoding/json"
	"strings"

	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const backendSpecSchemaURL = "backend_spec.json"

const backendSpecSchema = `{
  "type": "object",
  "properties": {
    "provider": {"type": "string", "minLength": 1},
    "model": {"type": "string"}
  },
  "required": ["provider", "model"],
  "additionalProperties": false
}`

func compileBackendSpecSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(backendSpecSchemaURL, strings.NewReader(backendSpecSchema)); err != nil {
		return nil, eris.Wrap(err, "add backend_spec schema")
	}
	schema, err := compiler.Compile(backendSpecSchemaURL)
	if err != nil {
		return nil, eris.Wrap(err, "compile backend_spec schema")
	}
	return schema, nil
}

// parseBackendSpec decodes and validates the backend_spec form field,
// e.g. {"provider": "ollama", "model": "gemma3"}.
func (s *Server) parseBackendSpec(raw string) (llm.Spec, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return llm.Spec{}, eris.Wrap(err, "decode")
	}
	if err := s.specSchema.Validate(v); err != nil {
		return llm.Spec{}, eris.Wrap(err, "validate")
	}
	var spec llm.Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return llm.Spec{}, eris.Wrap(err, "decode")
	}
	return spec, nil
}
