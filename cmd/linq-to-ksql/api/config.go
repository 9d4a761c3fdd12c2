package api

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/logging"
)

type Config struct {
	ListenAddr  string         `yaml:"listenAddr"`
	SchemaDir   string         `yaml:"schemaDir"`
	SchemaFiles []string       `yaml:"schemaFiles"`
	EmitChanges bool           `yaml:"emitChanges"`
	Log         logging.Config `yaml:"log"`
}

// LoadConfig reads a YAML configuration file. An empty path yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	c.SchemaDir = strings.TrimSpace(c.SchemaDir)
	if c.SchemaDir == "" && len(c.SchemaFiles) == 0 {
		c.SchemaDir = "./schemas"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
