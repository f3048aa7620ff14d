package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Answers maps form-field labels to configured answer values, split by
// input kind. Keys are stored lowercased; matching against them is the
// resolver's concern.
type Answers struct {
	Text     map[string]string `yaml:"text"`
	Radio    map[string]string `yaml:"radio"`
	Dropdown map[string]string `yaml:"dropdown"`
}

// LoadAnswers reads the answer-set YAML. A missing file yields an empty
// (but usable) answer set: unresolved required fields then surface as
// skipped postings rather than a startup error.
func LoadAnswers(path string) (*Answers, error) {
	a := &Answers{
		Text:     map[string]string{},
		Radio:    map[string]string{},
		Dropdown: map[string]string{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read answers %s: %w", path, err)
	}

	var raw Answers
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse answers %s: %v", ErrInvalid, path, err)
	}

	for k, v := range raw.Text {
		a.Text[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for k, v := range raw.Radio {
		a.Radio[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for k, v := range raw.Dropdown {
		a.Dropdown[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return a, nil
}
