package heuristics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSet is the YAML shape of a heuristics override file. Any section left
// empty keeps the built-in default.
type fileSet struct {
	Columns        map[string][]string `yaml:"columns"`
	Tables         map[string][]string `yaml:"tables"`
	Topics         []TopicCategory     `yaml:"topics"`
	SeizureCleanup []string            `yaml:"seizure_cleanup"`
	Affirmative    []string            `yaml:"affirmative"`
	Unclassified   string              `yaml:"unclassified"`
}

// LoadFile reads a YAML override file on top of Default. An empty path returns the defaults.
func LoadFile(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read heuristics file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays YAML data on Default.
func Parse(data []byte) (*Set, error) {
	var fs fileSet
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to parse heuristics: %w", err)
	}

	set := Default()
	for k, v := range fs.Columns {
		if len(v) > 0 {
			set.Columns[Field(k)] = v
		}
	}
	for k, v := range fs.Tables {
		if len(v) > 0 {
			set.Tables[TableKind(k)] = v
		}
	}
	if len(fs.Topics) > 0 {
		set.Topics = fs.Topics
	}
	if len(fs.SeizureCleanup) > 0 {
		res, err := compileAll(fs.SeizureCleanup)
		if err != nil {
			return nil, err
		}
		set.SeizureCleanup = res
	}
	if len(fs.Affirmative) > 0 {
		set.Affirmative = fs.Affirmative
	}
	if fs.Unclassified != "" {
		set.Unclassified = fs.Unclassified
	}
	return set, nil
}
