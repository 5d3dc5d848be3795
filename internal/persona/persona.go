// Package persona loads the system preamble the dispatcher prepends to
// every prompt. Presets live in a YAML file so operators can reword the
// bot without rebuilding it.
package persona

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Default is the preamble used when no preset file is configured.
const Default = "You are a helpful AI assistant. Provide concise responses."

// Persona is one named system preamble preset.
type Persona struct {
	Name     string `yaml:"name"`
	Preamble string `yaml:"preamble"`
}

type presetFile struct {
	Personas []Persona `yaml:"personas"`
}

// Load reads the preset file and returns the preamble for the named
// persona. A missing file is not an error; the built-in default applies.
func Load(path, name string, logger *slog.Logger) (string, error) {
	if path == "" {
		return Default, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("persona file does not exist, using default", "path", path)
			return Default, nil
		}
		return "", fmt.Errorf("read persona file: %w", err)
	}

	var presets presetFile
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return "", fmt.Errorf("parse persona file %s: %w", path, err)
	}

	if name == "" && len(presets.Personas) > 0 {
		return presets.Personas[0].Preamble, nil
	}
	for _, p := range presets.Personas {
		if p.Name == name {
			logger.Info("loaded persona", "name", p.Name, "path", path)
			return p.Preamble, nil
		}
	}

	return "", fmt.Errorf("persona %q not found in %s", name, path)
}
