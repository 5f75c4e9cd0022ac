package headerprofile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// profileSchema constrains the persisted profile shape; hand-edited
// profiles are the expected failure source.
const profileSchema = `{
	"type": "object",
	"required": ["version", "domains"],
	"properties": {
		"version": {"type": "integer", "minimum": 1},
		"domains": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["commonHeaders", "requestCount"],
				"properties": {
					"commonHeaders": {
						"type": "object",
						"additionalProperties": {
							"type": "object",
							"required": ["value", "category"],
							"properties": {
								"value": {"type": "string"},
								"category": {"enum": ["auth", "context", "standard", "custom"]},
								"seenCount": {"type": "integer", "minimum": 0}
							}
						}
					},
					"requestCount": {"type": "integer", "minimum": 0}
				}
			}
		},
		"endpointOverrides": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"additionalProperties": {"type": "string"}
			}
		}
	}
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(profileSchema), &doc); err != nil {
			compileErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("headerprofile.json", doc); err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = compiler.Compile("headerprofile.json")
	})
	return compiledSchema, compileErr
}

var printer = message.NewPrinter(language.English)

// validateProfile returns human-readable validation messages, empty when
// the document conforms.
func validateProfile(data []byte) []string {
	schema, err := compiled()
	if err != nil {
		return []string{fmt.Sprintf("schema compile: %s", err)}
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return []string{fmt.Sprintf("invalid JSON: %s", err)}
	}
	err = schema.Validate(value)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		msgs := make(map[string]bool)
		collectErrors(ve, msgs)
		out := make([]string, 0, len(msgs))
		for m := range msgs {
			out = append(out, m)
		}
		return out
	}
	return []string{err.Error()}
}

func collectErrors(err *jsonschema.ValidationError, out map[string]bool) {
	if err.ErrorKind != nil && len(err.Causes) == 0 {
		msg := err.ErrorKind.LocalizedString(printer)
		if !strings.HasPrefix(msg, "$ref ") && !strings.HasPrefix(msg, "doesn't validate with") {
			path := "/" + strings.Join(err.InstanceLocation, "/")
			out[path+": "+msg] = true
		}
	}
	for _, cause := range err.Causes {
		collectErrors(cause, out)
	}
}
