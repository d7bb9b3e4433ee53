package export

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lurkhq/lurk/engine/domain"
)

// optionsSchema constrains per-format export options. Unknown option keys are
// rejected so typos fail before the run starts.
const optionsSchema = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"properties": {
			"pretty":   {"type": "boolean"},
			"compress": {"type": "boolean"}
		},
		"additionalProperties": false
	}
}`

// ValidateOptions checks the raw per-format option map against the schema.
func ValidateOptions(raw map[string]map[string]any) []error {
	if len(raw) == 0 {
		return nil
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return []error{domain.Wrap(domain.KindConfiguration, "encode export_config", err)}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(optionsSchema),
		gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return []error{domain.Wrap(domain.KindConfiguration, "validate export_config", err)}
	}
	var errs []error
	for _, desc := range result.Errors() {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration,
			fmt.Sprintf("export_config: %s", desc)))
	}
	return errs
}

// OptionsFor extracts one format's Options from the raw map.
func OptionsFor(raw map[string]map[string]any, format string) Options {
	var opts Options
	if m, ok := raw[format]; ok {
		if v, ok := m["pretty"].(bool); ok {
			opts.Pretty = v
		}
		if v, ok := m["compress"].(bool); ok {
			opts.Compress = v
		}
	}
	return opts
}
