package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaJSON reflects T into a JSON schema for embedding in agent
// instructions, so structured replies can be demanded and parsed.
func SchemaJSON[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	data, err := json.Marshal(reflector.Reflect(&v))
	if err != nil {
		// Reflection over a static Go type; failure is a programming error.
		panic(fmt.Sprintf("reflect schema: %v", err))
	}
	return string(data)
}

// ParseJSONReply extracts the JSON object from a model reply and
// unmarshals it into v. Models occasionally wrap JSON in code fences or
// prose; everything outside the outermost braces is ignored.
func ParseJSONReply(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return fmt.Errorf("reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("unmarshal reply JSON: %w", err)
	}
	return nil
}
