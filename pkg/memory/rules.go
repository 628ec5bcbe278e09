// Package memory implements the fixed named-memory documents: the
// dependency hierarchy between memory names, content-quality gating, and
// the write path that validates, embeds, and persists documents.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Memory names. The set is fixed and forms a dependency DAG: three
// intermediate memories build on the foundational brief, and the active
// work memory builds on all three.
const (
	NameProjectBrief   = "projectbrief"
	NameProductContext = "productContext"
	NameSystemPatterns = "systemPatterns"
	NameTechContext    = "techContext"
	NameActiveContext  = "activeContext"
	NameProgress       = "progress"
	NameCodebaseMap    = "codebaseMap"
)

// Rule declares what one memory name requires. Rules are data, not logic,
// so the hierarchy and grading inputs are independently testable and
// tunable.
type Rule struct {
	DependsOn        []string `json:"dependsOn"`
	RequiredSections []string `json:"requiredSections"`
	MinLength        int      `json:"minLength"`
}

// Rules maps memory names to their rules.
type Rules map[string]Rule

// DefaultRules returns the built-in hierarchy and section requirements.
func DefaultRules() Rules {
	return Rules{
		NameProjectBrief: {
			RequiredSections: []string{"Overview", "Goals", "Scope"},
			MinLength:        200,
		},
		NameProductContext: {
			DependsOn:        []string{NameProjectBrief},
			RequiredSections: []string{"Problem", "Users", "Experience"},
			MinLength:        200,
		},
		NameSystemPatterns: {
			DependsOn:        []string{NameProjectBrief},
			RequiredSections: []string{"Architecture", "Patterns", "Decisions"},
			MinLength:        200,
		},
		NameTechContext: {
			DependsOn:        []string{NameProjectBrief},
			RequiredSections: []string{"Technologies", "Setup", "Constraints"},
			MinLength:        200,
		},
		NameActiveContext: {
			DependsOn:        []string{NameProductContext, NameSystemPatterns, NameTechContext},
			RequiredSections: []string{"Current Focus", "Recent Changes", "Next Steps"},
			MinLength:        150,
		},
		NameProgress: {
			DependsOn:        []string{NameActiveContext},
			RequiredSections: []string{"Completed", "In Progress", "Known Issues"},
			MinLength:        150,
		},
		// Generated from code indexing, so no authored-section demands.
		NameCodebaseMap: {
			MinLength: 20,
		},
	}
}

// Names returns the memory names in sorted order, for error messages.
func (r Rules) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the rule set itself: dependencies must reference known
// names and the graph must stay acyclic.
func (r Rules) Validate() error {
	for name, rule := range r {
		for _, dep := range rule.DependsOn {
			if _, ok := r[dep]; !ok {
				return fmt.Errorf("memory %q depends on unknown memory %q", name, dep)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("dependency cycle through memory %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range r[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for name := range r {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// rulesSchema validates externally supplied rules files.
const rulesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "minProperties": 1,
  "additionalProperties": {
    "type": "object",
    "properties": {
      "dependsOn": {
        "type": "array",
        "items": {"type": "string", "minLength": 1}
      },
      "requiredSections": {
        "type": "array",
        "items": {"type": "string", "minLength": 1}
      },
      "minLength": {
        "type": "integer",
        "minimum": 0
      }
    },
    "additionalProperties": false
  }
}`

// LoadRulesFile reads a custom rules file, validates it against the rules
// schema, and checks graph consistency.
func LoadRulesFile(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rulesSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate rules file: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("invalid rules file: %v", msgs)
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent rules file: %w", err)
	}
	return rules, nil
}
