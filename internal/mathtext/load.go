package mathtext

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is returned when a rule file entry cannot be compiled.
var ErrInvalidRule = errors.New("invalid math rule")

// ruleFile is the on-disk shape of a rule extension file:
//
//	rules:
//	  - name: degrees
//	    pattern: '(\d+) ?deg\b'
//	    replacement: '${1}^{\circ}'
//	    position: before
//	disable: [set-in]
type ruleFile struct {
	Rules   []ruleSpec `yaml:"rules"`
	Disable []string   `yaml:"disable"`
}

type ruleSpec struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	SkipEscaped bool   `yaml:"skip_escaped"`
	Position    string `yaml:"position"`
}

// LoadRules reads a YAML rule file and merges it into the default table.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return ParseRules(data, DefaultRules())
}

// ParseRules merges the YAML rule document in data into base. Entries with
// position "before" run ahead of base, everything else runs after it.
// Names listed under disable are removed from the merged table.
func ParseRules(data []byte, base []Rule) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	var before, after []Rule
	for i, spec := range file.Rules {
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("custom-%d", i+1)
		}
		if spec.Pattern == "" {
			return nil, fmt.Errorf("%w: %s: empty pattern", ErrInvalidRule, spec.Name)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, spec.Name, err)
		}

		rule := Rule{
			Name:        spec.Name,
			Pattern:     re,
			Replacement: spec.Replacement,
			SkipEscaped: spec.SkipEscaped,
		}
		switch spec.Position {
		case "before":
			before = append(before, rule)
		case "", "after":
			after = append(after, rule)
		default:
			return nil, fmt.Errorf("%w: %s: unknown position %q", ErrInvalidRule, spec.Name, spec.Position)
		}
	}

	disabled := make(map[string]struct{}, len(file.Disable))
	for _, name := range file.Disable {
		disabled[name] = struct{}{}
	}

	merged := make([]Rule, 0, len(before)+len(base)+len(after))
	for _, group := range [][]Rule{before, base, after} {
		for _, r := range group {
			if _, off := disabled[r.Name]; off {
				continue
			}
			merged = append(merged, r)
		}
	}
	return merged, nil
}
