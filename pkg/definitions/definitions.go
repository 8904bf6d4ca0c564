// Package definitions loads automation rules and workflows from YAML or JSON documents.
package definitions

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/operion-automation/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDefinition = errors.New("invalid definition")

//go:embed schemas/definitions.json
var definitionsSchema []byte

var (
	schemaLoader = gojsonschema.NewBytesLoader(definitionsSchema)
	validate     = validator.New(validator.WithRequiredStructEnabled())
)

// Definitions is the document shape accepted by Parse and Load.
type Definitions struct {
	Rules     []models.AutomationRule `yaml:"rules"     validate:"dive"`
	Workflows []models.Workflow       `yaml:"workflows" validate:"dive"`
}

// Load reads a single definitions file.
func Load(path string) (Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("failed to read definitions %s: %w", path, err)
	}

	defs, err := Parse(data)
	if err != nil {
		return Definitions{}, fmt.Errorf("%s: %w", path, err)
	}

	return defs, nil
}

// LoadDir reads every .yaml, .yml and .json file in dir in lexical order and
// concatenates their definitions.
func LoadDir(dir string) (Definitions, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Definitions{}, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(paths)

	var all Definitions

	for _, path := range paths {
		defs, err := Load(path)
		if err != nil {
			return Definitions{}, err
		}

		all.Rules = append(all.Rules, defs.Rules...)
		all.Workflows = append(all.Workflows, defs.Workflows...)
	}

	return all, all.check()
}

// Parse decodes a YAML or JSON document, validates it against the embedded
// JSON Schema and then against the model constraints.
func Parse(data []byte) (Definitions, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Definitions{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if raw == nil {
		return Definitions{}, nil
	}

	if err := validateSchema(raw); err != nil {
		return Definitions{}, err
	}

	var defs Definitions

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&defs); err != nil {
		return Definitions{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := validate.Struct(defs); err != nil {
		return Definitions{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return defs, defs.check()
}

func validateSchema(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}

		return fmt.Errorf("%w: schema validation failed: %s", ErrInvalidDefinition, strings.Join(errs, "; "))
	}

	return nil
}

// check enforces cross-record constraints: unique ids, unique step ids and
// step edges that point at existing steps.
func (d Definitions) check() error {
	rules := make(map[string]bool, len(d.Rules))
	for _, rule := range d.Rules {
		if rules[rule.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidDefinition, rule.ID)
		}

		rules[rule.ID] = true
	}

	workflows := make(map[string]bool, len(d.Workflows))
	for _, wf := range d.Workflows {
		if workflows[wf.ID] {
			return fmt.Errorf("%w: duplicate workflow id %q", ErrInvalidDefinition, wf.ID)
		}

		workflows[wf.ID] = true

		steps := make(map[string]bool, len(wf.Steps))
		for _, step := range wf.Steps {
			if steps[step.ID] {
				return fmt.Errorf("%w: workflow %q has duplicate step id %q", ErrInvalidDefinition, wf.ID, step.ID)
			}

			steps[step.ID] = true
		}

		for _, step := range wf.Steps {
			for _, next := range []string{step.OnSuccess, step.OnFailure} {
				if next != "" && !steps[next] {
					return fmt.Errorf("%w: workflow %q step %q references unknown step %q",
						ErrInvalidDefinition, wf.ID, step.ID, next)
				}
			}
		}
	}

	return nil
}
