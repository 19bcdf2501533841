package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/goseam/internal/backend/blobstore"
	"github.com/jo-hoe/goseam/internal/backend/outpainting"
	"github.com/jo-hoe/goseam/internal/continuity"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type ServiceConfig struct {
	Port           int                 `yaml:"port"`
	PublicBaseURL  string              `yaml:"publicBaseURL"`
	Database       Database            `yaml:"database"`
	BlobStore      blobstore.Config    `yaml:"blobStore"`
	Model          outpainting.Config  `yaml:"model"`
	Editor         continuity.Settings `yaml:"editor"`
	ImportCommands []CommandConfig     `yaml:"importCommands"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "goseam.db"
	}
	if c.BlobStore.Type == "" {
		c.BlobStore.Type = "filesystem"
	}
	if c.BlobStore.Type == "filesystem" && c.BlobStore.Directory == "" {
		c.BlobStore.Directory = "data/blobs"
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "disabled"
	}
	c.Editor = c.Editor.WithDefaults()
}

func (c *ServiceConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.BlobStore.Type == "redis" && c.BlobStore.Address == "" {
		return fmt.Errorf("blobStore.address is required for redis")
	}
	if err := c.Editor.Validate(); err != nil {
		return fmt.Errorf("invalid editor settings: %w", err)
	}
	// Validate commands
	if err := validateCommands(c.ImportCommands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
