// Package config loads stegcrypt settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/xob0t/stegcrypt/pkg/imageio"
	"github.com/xob0t/stegcrypt/pkg/keystore"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "stegcrypt.yaml"

type Config struct {
	KeyFile      string `yaml:"keyFile"`
	LogLevel     string `yaml:"logLevel"`
	StrictLength bool   `yaml:"strictLength"`

	Output struct {
		Format string `yaml:"format"`
	} `yaml:"output"`

	Preview struct {
		Size int `yaml:"size"`
	} `yaml:"preview"`

	Server struct {
		Addr        string `yaml:"addr"`
		MaxUploadMB int    `yaml:"maxUploadMB"`
	} `yaml:"server"`

	Cover struct {
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		Color  string `yaml:"color"`
		Noise  bool   `yaml:"noise"`
	} `yaml:"cover"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path. A missing file yields Default(); a file
// that exists but cannot be parsed is an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefaults()

	if _, err := imageio.ParseFormat(c.Output.Format); err != nil {
		return Config{}, fmt.Errorf("config %s: output.format: %w", path, err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.KeyFile == "" {
		c.KeyFile = keystore.DefaultPath
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Output.Format == "" {
		c.Output.Format = string(imageio.PNG)
	}
	if c.Preview.Size <= 0 {
		c.Preview.Size = imageio.DefaultThumbnail
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 32
	}
	if c.Cover.Width <= 0 {
		c.Cover.Width = 640
	}
	if c.Cover.Height <= 0 {
		c.Cover.Height = 480
	}
	if c.Cover.Color == "" {
		c.Cover.Color = "random"
	}
}
