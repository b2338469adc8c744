// Package config reads the YAML file of the command line host.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"gopkg.in/yaml.v2"
)

// DefaultFileName is looked up when no file is given.
const DefaultFileName = "enginedriver.yml"

// ErrNotFound is returned when the file exists in none of the searched locations.
var ErrNotFound = errors.New("config file not found")

// Config is the content of the YAML file. Zero values leave the engine defaults in place.
type Config struct {
	Driver       string   `yaml:"driver,omitempty"`
	Device       string   `yaml:"device,omitempty"`
	SampleRate   float64  `yaml:"sample_rate,omitempty"`
	BufferSize   uint32   `yaml:"buffer_size,omitempty"`
	ProcessMode  string   `yaml:"process_mode,omitempty"`
	ClientName   string   `yaml:"client_name,omitempty"`
	LogLevel     string   `yaml:"log_level,omitempty"`
	LogFile      string   `yaml:"log_file,omitempty"`
	MIDIBackend  string   `yaml:"midi_backend,omitempty"`
	MIDIInputs   []string `yaml:"midi_inputs,omitempty"`
	MIDIOutputs  []string `yaml:"midi_outputs,omitempty"`
	LoopbackMIDI []string `yaml:"loopback_midi,omitempty"`

	XrunReportInterval time.Duration `yaml:"xrun_report_interval,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Driver:             "Dummy",
		ProcessMode:        contracts.ProcessModeContinuousRack.String(),
		XrunReportInterval: 5 * time.Second,
	}
}

// Resolve finds fileName. Absolute paths and "~/" paths are used as given; other names are
// searched next to the executable, in the working directory and in ~/.config/enginedriver.
func Resolve(fileName string) (string, error) {
	if filepath.IsAbs(fileName) {
		return existing(fileName)
	}

	if strings.HasPrefix(fileName, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not find user home dir: %w", err)
		}
		return existing(filepath.Join(homeDir, fileName[2:]))
	}

	var candidates []string
	if binPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(binPath), fileName))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, fileName))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "enginedriver", fileName))
	}

	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, fileName)
}

func existing(path string) (string, error) {
	if !fileExists(path) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return path, nil
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && !stat.IsDir()
}

// Load resolves and decodes fileName over Default.
func Load(fileName string) (Config, error) {
	path, err := Resolve(fileName)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Mode(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Mode returns the configured process mode.
func (c Config) Mode() (contracts.ProcessMode, error) {
	if c.ProcessMode == "" {
		return contracts.ProcessModeContinuousRack, nil
	}
	mode, ok := contracts.ParseProcessMode(c.ProcessMode)
	if !ok {
		return 0, fmt.Errorf("%w: %q", contracts.ErrInvalidProcessMode, c.ProcessMode)
	}
	return mode, nil
}

// Options maps the configuration onto engine options. The MIDI back-end is not included since
// opening it needs a logger; see MIDIBackend.
func (c Config) Options() []contracts.Option {
	opts := []contracts.Option{
		contracts.WithAudioDevice(c.Device),
		contracts.WithSampleRate(c.SampleRate),
		contracts.WithBufferSize(c.BufferSize),
		contracts.WithClientName(c.ClientName),
		contracts.WithLogLevel(contracts.ParseLogLevel(c.LogLevel)),
	}

	if mode, err := c.Mode(); err == nil {
		opts = append(opts, contracts.WithProcessMode(mode))
	}
	if c.LogFile != "" {
		opts = append(opts, contracts.WithLogFile(c.LogFile))
	}
	if len(c.LoopbackMIDI) > 0 {
		opts = append(opts, contracts.WithLoopbackFilter(c.LoopbackMIDI...))
	}
	return opts
}

// Save writes c as YAML to path.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
