package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MinPassingScore is the quality threshold below which writes are
// rejected with actionable guidance.
const MinPassingScore = 60

// DependencyError rejects a write whose declared dependencies are unmet.
// The missing names are listed exactly; they are never queued or
// auto-created.
type DependencyError struct {
	MemoryName string
	Missing    []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("memory %q requires these memories to exist first: %s",
		e.MemoryName, strings.Join(e.Missing, ", "))
}

// QualityError rejects content that graded below the minimum threshold.
type QualityError struct {
	MemoryName      string
	Score           int
	MissingSections []string
	Guidance        []string
	Example         string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("memory %q content scored %d/100 (minimum %d); missing sections: %s",
		e.MemoryName, e.Score, MinPassingScore, strings.Join(e.MissingSections, ", "))
}

// UnknownNameError rejects writes to names outside the fixed set.
type UnknownNameError struct {
	MemoryName string
	Known      []string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown memory name %q; valid names: %s",
		e.MemoryName, strings.Join(e.Known, ", "))
}

// Validator grades content against the per-name rules. Content is never
// truncated, padded, or auto-completed; failing content is rejected with
// guidance.
type Validator struct {
	rules Rules
}

// NewValidator creates a validator over the given rules.
func NewValidator(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// Rule returns the rule for a memory name.
func (v *Validator) Rule(name string) (Rule, bool) {
	rule, ok := v.rules[name]
	return rule, ok
}

// CheckName verifies the memory name belongs to the fixed set.
func (v *Validator) CheckName(name string) error {
	if _, ok := v.rules[name]; !ok {
		return &UnknownNameError{MemoryName: name, Known: v.rules.Names()}
	}
	return nil
}

// CheckDependencies verifies every declared dependency already exists.
func (v *Validator) CheckDependencies(name string, existing map[string]bool) error {
	rule := v.rules[name]
	var missing []string
	for _, dep := range rule.DependsOn {
		if !existing[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &DependencyError{MemoryName: name, Missing: missing}
	}
	return nil
}

var headerPattern = regexp.MustCompile(`(?m)^#{1,4}\s+\S`)

// CheckQuality grades content and rejects scores below MinPassingScore.
func (v *Validator) CheckQuality(name, content string) error {
	rule := v.rules[name]
	score, missing := v.grade(rule, content)
	if score >= MinPassingScore {
		return nil
	}

	guidance := make([]string, 0, len(missing))
	for _, section := range missing {
		guidance = append(guidance, fmt.Sprintf("add a %q section (## %s) describing it in a few sentences", section, section))
	}
	return &QualityError{
		MemoryName:      name,
		Score:           score,
		MissingSections: missing,
		Guidance:        guidance,
		Example:         exampleSkeleton(name, rule),
	}
}

// grade computes a 0-100 heuristic score from content length, structural
// header count, and required-section presence.
func (v *Validator) grade(rule Rule, content string) (int, []string) {
	score := 0

	// Length: up to 40 points, saturating at the rule's minimum length.
	minLength := rule.MinLength
	if minLength <= 0 {
		minLength = 1
	}
	lengthPts := len(content) * 40 / minLength
	if lengthPts > 40 {
		lengthPts = 40
	}
	score += lengthPts

	// Structure: 10 points per markdown header, up to 20.
	headers := len(headerPattern.FindAllString(content, -1))
	structurePts := headers * 10
	if structurePts > 20 {
		structurePts = 20
	}
	score += structurePts

	// Required sections: the remaining 40 points, split evenly.
	var missing []string
	if len(rule.RequiredSections) == 0 {
		score += 40
	} else {
		lower := strings.ToLower(content)
		present := 0
		for _, section := range rule.RequiredSections {
			if strings.Contains(lower, strings.ToLower(section)) {
				present++
			} else {
				missing = append(missing, section)
			}
		}
		score += present * 40 / len(rule.RequiredSections)
	}

	return score, missing
}

func exampleSkeleton(name string, rule Rule) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", name)
	for _, section := range rule.RequiredSections {
		fmt.Fprintf(&sb, "\n## %s\n\n...\n", section)
	}
	return sb.String()
}
