package enhance

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[Kind]*jsonschema.Schema
	schemasErr  error
)

func compiledSchema(kind Kind) (*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = map[Kind]*jsonschema.Schema{}
		for kind, file := range map[Kind]string{KindPrune: "schemas/prune.json", KindSubstitute: "schemas/substitute.json"} {
			data, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", file, err)
				return
			}
			schema, err := jsonschema.NewCompiler().Compile(data)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", file, err)
				return
			}
			schemas[kind] = schema
		}
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	return schemas[kind], nil
}

func validatePayload(kind Kind, payload []byte) error {
	schema, err := compiledSchema(kind)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%s payload is not JSON", kind)
	}
	result := schema.ValidateJSON(payload)
	if !result.IsValid() {
		return fmt.Errorf("%s payload failed schema validation: %v", kind, result.Errors)
	}
	return nil
}

// DecodePrune validates and decodes a prune enhancement payload.
func DecodePrune(payload []byte) (internal.PruneEnhancement, error) {
	var out internal.PruneEnhancement
	if err := validatePayload(KindPrune, payload); err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode prune payload: %w", err)
	}
	if out.SafetyFlags == nil {
		out.SafetyFlags = []string{}
	}
	return out, nil
}

// DecodeSubstitute validates and decodes a substitute enhancement payload.
func DecodeSubstitute(payload []byte) (internal.SubstituteEnhancement, error) {
	var out internal.SubstituteEnhancement
	if err := validatePayload(KindSubstitute, payload); err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode substitute payload: %w", err)
	}
	if out.SafetyFlags == nil {
		out.SafetyFlags = []string{}
	}
	return out, nil
}
