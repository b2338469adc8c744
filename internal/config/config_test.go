package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

func TestParse(t *testing.T) {
	data := []byte(`
driver: ALSA
device: "Scarlett 2i2, USB Audio"
sample_rate: 48000
buffer_size: 128
process_mode: patchbay
midi_inputs: [Keystation]
midi_outputs: [Synth]
xrun_report_interval: 2s
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Driver != "ALSA" || cfg.Device != "Scarlett 2i2, USB Audio" {
		t.Errorf("Unexpected device selection %q/%q", cfg.Driver, cfg.Device)
	}
	if cfg.SampleRate != 48000 || cfg.BufferSize != 128 {
		t.Errorf("Unexpected format %v/%d", cfg.SampleRate, cfg.BufferSize)
	}
	if mode, _ := cfg.Mode(); mode != contracts.ProcessModePatchbay {
		t.Errorf("Expected patchbay mode, got %v", mode)
	}
	if len(cfg.MIDIInputs) != 1 || cfg.MIDIOutputs[0] != "Synth" {
		t.Errorf("Unexpected MIDI endpoints %v %v", cfg.MIDIInputs, cfg.MIDIOutputs)
	}
	if cfg.XrunReportInterval != 2*time.Second {
		t.Errorf("Unexpected xrun interval %v", cfg.XrunReportInterval)
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("device: Built-in\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Driver != Default().Driver || cfg.XrunReportInterval != Default().XrunReportInterval {
		t.Errorf("Defaults lost: %+v", cfg)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown process mode", "process_mode: modular\n", contracts.ErrInvalidProcessMode},
		{"unknown field", "sample_rat: 44100\n", nil},
		{"wrong type", "buffer_size: big\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadAbsolutePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yml")

	cfg := Default()
	cfg.Device = "Dummy Device, Synthetic Clock"
	cfg.BufferSize = 256
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Device != cfg.Device || loaded.BufferSize != 256 {
		t.Errorf("Unexpected config %+v", loaded)
	}
}

func TestResolveWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if err := os.WriteFile(filepath.Join(dir, "local.yml"), []byte("driver: Dummy\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := Resolve("local.yml")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if filepath.Base(path) != "local.yml" {
		t.Errorf("Unexpected path %q", path)
	}
}

func TestResolveMissing(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yml")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := Resolve("definitely-not-here-7f3a.yml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestOptions(t *testing.T) {
	cfg := Config{
		Device:       "Built-in",
		SampleRate:   48000,
		BufferSize:   64,
		ProcessMode:  "patchbay",
		ClientName:   "studio",
		LogLevel:     "debug",
		LogFile:      "/tmp/engine.log",
		LoopbackMIDI: []string{"Midi Through"},
	}

	var options contracts.EngineOptions
	for _, opt := range cfg.Options() {
		opt(&options)
	}

	if options.AudioDevice != "Built-in" || options.SampleRate != 48000 || options.BufferSize != 64 {
		t.Errorf("Unexpected device options %+v", options)
	}
	if options.ProcessMode != contracts.ProcessModePatchbay || options.ClientName != "studio" {
		t.Errorf("Unexpected engine options %+v", options)
	}
	if options.LogLevel != contracts.DebugLevel || options.LogFilePath != "/tmp/engine.log" {
		t.Errorf("Unexpected log options %+v", options)
	}
	if len(options.LoopbackNames) != 1 {
		t.Errorf("Unexpected loopback names %v", options.LoopbackNames)
	}
}
