// Package config loads the optional readpflash.yaml project file and
// applies environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/readpflash/internal/firmware"
)

const Filename = "readpflash.yaml"

type Config struct {
	// Kernel is the binary name cargo produces under target/<triple>/release.
	Kernel       string `yaml:"kernel"`
	ConfigExt    string `yaml:"configExt"`
	ActiveConfig string `yaml:"activeConfig"`
	Image        string `yaml:"image"`

	Tools    Tools    `yaml:"tools"`
	Emulator Emulator `yaml:"emulator"`
	Firmware Firmware `yaml:"firmware"`
}

type Tools struct {
	Cargo   string `yaml:"cargo"`
	Objcopy string `yaml:"objcopy"`
}

type Emulator struct {
	Prefix    string   `yaml:"prefix"`
	Memory    string   `yaml:"memory"`
	SMP       int      `yaml:"smp"`
	ExtraArgs []string `yaml:"extraArgs,omitempty"`
}

type Firmware struct {
	Paths []string `yaml:"paths,omitempty"`
}

func (c *Config) normalize() {
	if c.Kernel == "" {
		c.Kernel = "arceos-readpflash"
	}
	if c.ConfigExt == "" {
		c.ConfigExt = "toml"
	}
	if c.ActiveConfig == "" {
		c.ActiveConfig = ".axconfig.toml"
	}
	if c.Image == "" {
		c.Image = "pflash.img"
	}
	if c.Tools.Cargo == "" {
		c.Tools.Cargo = "cargo"
	}
	if c.Tools.Objcopy == "" {
		c.Tools.Objcopy = "rust-objcopy"
	}
	if c.Emulator.Prefix == "" {
		c.Emulator.Prefix = "qemu"
	}
	if c.Emulator.Memory == "" {
		c.Emulator.Memory = "128M"
	}
	if c.Emulator.SMP == 0 {
		c.Emulator.SMP = 1
	}
	if len(c.Firmware.Paths) == 0 {
		c.Firmware.Paths = append([]string(nil), firmware.DefaultSearchPaths...)
	}
}

func (c *Config) applyEnv() {
	c.Tools.Cargo = env.Str("READPFLASH_CARGO", c.Tools.Cargo)
	c.Tools.Objcopy = env.Str("READPFLASH_OBJCOPY", c.Tools.Objcopy)
	c.Emulator.Prefix = env.Str("READPFLASH_QEMU_PREFIX", c.Emulator.Prefix)
	c.Emulator.Memory = env.Str("READPFLASH_MEMORY", c.Emulator.Memory)
	c.Emulator.SMP = env.Int("READPFLASH_SMP", c.Emulator.SMP)
	if env.Has("READPFLASH_BIOS") {
		c.Firmware.Paths = append([]string{env.Str("READPFLASH_BIOS")}, c.Firmware.Paths...)
	}
}

func (c *Config) validate() error {
	if c.Emulator.SMP < 1 {
		return fmt.Errorf("emulator.smp must be at least 1, got %d", c.Emulator.SMP)
	}
	if filepath.Base(c.Image) != c.Image {
		return fmt.Errorf("image must be a file name, got %q", c.Image)
	}
	if filepath.Base(c.ActiveConfig) != c.ActiveConfig {
		return fmt.Errorf("activeConfig must be a file name, got %q", c.ActiveConfig)
	}
	return nil
}

// Default returns the built-in configuration with environment overrides.
func Default() Config {
	var c Config
	c.normalize()
	c.applyEnv()
	return c
}

// Load reads path, or <root>/readpflash.yaml when path is empty. A missing
// default file is not an error; a missing explicit path is.
func Load(root, path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, Filename)
	}

	var c Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	c.normalize()
	c.applyEnv()
	if err := c.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Write stores c as YAML, for scaffolding a project file.
func Write(path string, c Config) error {
	c.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&c); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
