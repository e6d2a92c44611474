package parser

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LabelRule matches a label when every keyword is present in the lowercased line.
type LabelRule struct {
	Label    Label    `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// DefaultLabelRules returns the built-in rules in priority order.
// Two keyword profiles come first so "aggressive breakout" never falls through to a
// looser rule.
func DefaultLabelRules() []LabelRule {
	return []LabelRule{
		{Label: LabelAggressiveBreakout, Keywords: []string{"aggressive", "breakout"}},
		{Label: LabelConservativeBreakout, Keywords: []string{"conservative", "breakout"}},
		{Label: LabelAggressiveBreakdown, Keywords: []string{"aggressive", "breakdown"}},
		{Label: LabelConservativeBreakdown, Keywords: []string{"conservative", "breakdown"}},
		{Label: LabelRejection, Keywords: []string{"rejection"}},
		{Label: LabelBounceZone, Keywords: []string{"bounce"}},
		{Label: LabelBias, Keywords: []string{"bias"}},
	}
}

// ExpectedLabels are the tradeable profiles of the seven profile template.
var ExpectedLabels = []Label{
	LabelRejection,
	LabelAggressiveBreakout,
	LabelConservativeBreakout,
	LabelAggressiveBreakdown,
	LabelConservativeBreakdown,
	LabelBounceZone,
}

// TemplateSize is the number of profiles in the canonical template.
const TemplateSize = 7

// Classify returns the first matching label and the keywords of every matching rule.
func Classify(line string, rules []LabelRule) (*Label, []string) {
	lower := strings.ToLower(line)

	var winner *Label
	var keywords []string
	seen := make(map[string]bool)

	for i := range rules {
		rule := rules[i]
		if len(rule.Keywords) == 0 || !containsAll(lower, rule.Keywords) {
			continue
		}
		if winner == nil {
			label := rule.Label
			winner = &label
		}
		for _, kw := range rule.Keywords {
			if !seen[kw] {
				seen[kw] = true
				keywords = append(keywords, kw)
			}
		}
	}

	return winner, keywords
}

func containsAll(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

type labelRulesFile struct {
	Labels []LabelRule `yaml:"labels"`
}

// LoadLabelRules reads label rules from a YAML file. The file order is the priority order.
func LoadLabelRules(filename string) ([]LabelRule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read label rules file: %w", err)
	}

	var file labelRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse label rules file: %w", err)
	}

	if len(file.Labels) == 0 {
		return nil, fmt.Errorf("label rules file %s has no labels", filename)
	}

	for i := range file.Labels {
		if file.Labels[i].Label == "" {
			return nil, fmt.Errorf("label rule %d has no label", i)
		}
		for j, kw := range file.Labels[i].Keywords {
			file.Labels[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}

	return file.Labels, nil
}
