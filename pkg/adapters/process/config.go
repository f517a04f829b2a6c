package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is one allow-listed command exposed as an action.
type Config struct {
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Command     string            `yaml:"command" json:"command" validate:"required"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
}

// ConfigFile is the layout of an actions file.
type ConfigFile struct {
	Actions []Config `yaml:"actions" json:"actions"`
}

// LoadConfigs reads an actions file (YAML, or JSON by extension). A missing
// file yields no actions.
func LoadConfigs(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read actions file: %w", err)
	}

	var file ConfigFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse actions file %s: %w", path, err)
	}

	out := file.Actions[:0]
	for _, c := range file.Actions {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
