package config

import (
	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/v2"
)

// yamlParser adapts goccy/go-yaml to koanf's Parser interface.
type yamlParser struct{}

// YAML returns a koanf parser for YAML config files.
func YAML() koanf.Parser {
	return &yamlParser{}
}

func (p *yamlParser) Unmarshal(b []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *yamlParser) Marshal(m map[string]any) ([]byte, error) {
	return yaml.Marshal(m)
}
