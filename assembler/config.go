package assembler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/retroasm/xasm8/cpu"
)

// Config is a YAML run configuration:
//
//	cpu: 6809
//	dialect: flex
//	origin: 0x100
//	include: [lib]
//	format: srec
//	sources: [main.asm]
//	output: main.s19
type Config struct {
	CPU     string   `yaml:"cpu"`
	Dialect string   `yaml:"dialect"`
	Origin  uint16   `yaml:"origin"`
	Include []string `yaml:"include"`
	Format  string   `yaml:"format"`
	Listing bool     `yaml:"listing"`
	Sources []string `yaml:"sources"`
	Output  string   `yaml:"output"`
}

// LoadConfig reads and parses a configuration file.
func LoadConfig(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(src, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// Options validates the configuration and converts it to assembler
// options. Missing fields fall back to 6502/FLEX.
func (c *Config) Options() (Options, error) {
	cpuName := c.CPU
	if cpuName == "" {
		cpuName = "6502"
	}
	family, err := cpu.ParseFamily(cpuName)
	if err != nil {
		return Options{}, err
	}
	dialectName := c.Dialect
	if dialectName == "" {
		dialectName = "flex"
	}
	dialect, err := ParseDialect(dialectName)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Family:      family,
		Dialect:     dialect,
		Origin:      c.Origin,
		IncludeDirs: c.Include,
	}, nil
}
