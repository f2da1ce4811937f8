package config

import (
	"fmt"
	"os"

	"github.com/flanksource/commons/logger"
	"gopkg.in/yaml.v3"
)

// Load reads Options from a YAML file. Missing file is not an error: the
// caller gets zero-value Options and is expected to fall back to defaults,
// mirroring the teacher's config/parser.go tolerance for absent config.
func Load(path string) (*Options, error) {
	opts := &Options{}
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("no config file at %s, using defaults", path)
			return opts, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return opts, nil
}
