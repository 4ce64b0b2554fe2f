package llm

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"fieldnote/internal/domain"
)

// outputSchemas holds the compiled schemas for model output validation,
// keyed the same way the prompts are selected.
type outputSchemas struct {
	classify  *jsonschema.Schema
	job       *jsonschema.Schema
	knowledge *jsonschema.Schema
}

func compileOutputSchemas() (*outputSchemas, error) {
	compiler := jsonschema.NewCompiler()

	compile := func(name, raw string) (*jsonschema.Schema, error) {
		s, err := compiler.Compile([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		return s, nil
	}

	var schemas outputSchemas
	var err error
	if schemas.classify, err = compile("classify", classifySchema); err != nil {
		return nil, err
	}
	if schemas.job, err = compile("job", jobSchema); err != nil {
		return nil, err
	}
	if schemas.knowledge, err = compile("knowledge", knowledgeSchema); err != nil {
		return nil, err
	}
	return &schemas, nil
}

// forIntent selects the extraction schema. Only called for intents where
// Intent.NeedsExtraction holds.
func (s *outputSchemas) forIntent(intent domain.Intent) *jsonschema.Schema {
	if intent == domain.IntentJobToBeDone {
		return s.job
	}
	return s.knowledge
}

// validateOutput checks raw model output against a schema before any
// unmarshal into domain types. Model output is untrusted even when the API
// enforced a response format.
func validateOutput(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: model returned invalid JSON: %v", domain.ErrBadClassification, err)
	}
	result := schema.Validate(v)
	if !result.IsValid() {
		return fmt.Errorf("%w: model output violates schema: %s", domain.ErrBadClassification, result.Error())
	}
	return nil
}
