package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a named, reproducible degradation preset an operator can
// apply in one call instead of issuing individual fault commands.
type Scenario struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	DelayMS     int64  `yaml:"delay_ms" json:"delay_ms"`
	HeldCount   int    `yaml:"held_count" json:"held_count"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads the scenario presets from a YAML file. A missing
// path yields an empty, valid set.
func LoadScenarios(path string) ([]Scenario, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadScenarios path=%s: %w", path, err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("op=config.LoadScenarios path=%s: %w", path, err)
	}
	for _, s := range f.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("op=config.LoadScenarios path=%s: scenario without a name", path)
		}
		if s.DelayMS < 0 || s.HeldCount < 0 {
			return nil, fmt.Errorf("op=config.LoadScenarios path=%s scenario=%s: negative fault values", path, s.Name)
		}
	}
	return f.Scenarios, nil
}
