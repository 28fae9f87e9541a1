package analysis

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.txt
var promptFS embed.FS

type PromptKind string

const (
	PromptDecisionAnalyzer PromptKind = "decision_analyzer"
	PromptOutcomePredictor PromptKind = "outcome_predictor"
	PromptEmotionAnalyzer  PromptKind = "emotional_analyzer"
	PromptRiskAnalyzer     PromptKind = "risk_analyzer"
	PromptValuesMapper     PromptKind = "values_mapper"
)

var promptKinds = []PromptKind{
	PromptDecisionAnalyzer,
	PromptOutcomePredictor,
	PromptEmotionAnalyzer,
	PromptRiskAnalyzer,
	PromptValuesMapper,
}

// Prompts maps each analysis kind to its instruction template.
type Prompts map[PromptKind]string

// DefaultPrompts returns the embedded templates.
func DefaultPrompts() Prompts {
	out := make(Prompts, len(promptKinds))
	for _, kind := range promptKinds {
		data, err := promptFS.ReadFile("prompts/" + string(kind) + ".txt")
		if err != nil {
			panic(fmt.Sprintf("missing embedded prompt %s: %v", kind, err))
		}
		out[kind] = strings.TrimSpace(string(data))
	}
	return out
}

// LoadPrompts returns the embedded templates with any overrides from the YAML
// file at path applied. An empty path yields the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	for key, text := range overrides {
		kind := PromptKind(key)
		if _, ok := prompts[kind]; !ok {
			return nil, fmt.Errorf("unknown prompt %q", key)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt %q is empty", key)
		}
		prompts[kind] = strings.TrimSpace(text)
	}
	return prompts, nil
}

// Compose joins a template and the user input into the final request text.
func Compose(template string, input string) string {
	return template + "\n\nUser Input: " + input + "\n\nPlease respond with valid JSON only, no additional text or formatting."
}
