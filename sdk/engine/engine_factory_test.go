package engine

import (
	"errors"
	"testing"

	"github.com/leandrodaf/enginedriver/internal/driver/dummy"
	"github.com/leandrodaf/enginedriver/internal/logger"
	"github.com/leandrodaf/enginedriver/internal/midi/midivirtual"
	"github.com/leandrodaf/enginedriver/internal/patchbay"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

func TestApplyDefaultOptions(t *testing.T) {
	options := applyDefaultOptions(contracts.WithLogger(logger.NewNopLogger()))

	if options.ClientName != DefaultClientName {
		t.Errorf("Expected client name %q, got %q", DefaultClientName, options.ClientName)
	}
	if options.SampleRate != DefaultSampleRate || options.BufferSize != DefaultBufferSize {
		t.Errorf("Unexpected defaults %v/%d", options.SampleRate, options.BufferSize)
	}
	if options.ProcessMode != contracts.ProcessModeContinuousRack {
		t.Errorf("Expected rack mode, got %v", options.ProcessMode)
	}
	if options.TransportMode != contracts.TransportModeInternal {
		t.Errorf("Expected internal transport, got %v", options.TransportMode)
	}
	if options.Graph == nil {
		t.Error("Expected a default graph")
	}
	if len(options.LoopbackNames) != len(patchbay.DefaultLoopbackNames) {
		t.Errorf("Expected default loopback names, got %v", options.LoopbackNames)
	}
	if options.MIDIBackend != nil {
		t.Error("MIDI back-end is chosen by NewEngine")
	}
}

func TestApplyDefaultOptionsKeepsExplicitValues(t *testing.T) {
	options := applyDefaultOptions(
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithClientName("studio"),
		contracts.WithSampleRate(48000),
		contracts.WithBufferSize(128),
		contracts.WithProcessMode(contracts.ProcessModePatchbay),
		contracts.WithLoopbackFilter("Midi Through"),
	)

	if options.ClientName != "studio" || options.SampleRate != 48000 || options.BufferSize != 128 {
		t.Errorf("Explicit values overridden: %+v", options)
	}
	if options.ProcessMode != contracts.ProcessModePatchbay {
		t.Errorf("Expected patchbay mode, got %v", options.ProcessMode)
	}
	if len(options.LoopbackNames) != 1 || options.LoopbackNames[0] != "Midi Through" {
		t.Errorf("Unexpected loopback names %v", options.LoopbackNames)
	}
}

func TestNewMIDIBackend(t *testing.T) {
	nop := logger.NewNopLogger()

	backend, err := NewMIDIBackend(midivirtual.Name, nop, "test")
	if err != nil || backend.Name() != midivirtual.Name {
		t.Errorf("Expected the virtual back-end, got %v (%v)", backend, err)
	}

	if _, err := NewMIDIBackend("bogus", nop, "test"); !errors.Is(err, contracts.ErrInvalidMIDIBackend) {
		t.Errorf("Expected ErrInvalidMIDIBackend, got %v", err)
	}
}

func TestNewEngineUnknownDriver(t *testing.T) {
	_, err := NewEngine("ASIO", contracts.WithLogger(logger.NewNopLogger()))
	if !errors.Is(err, contracts.ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}
}

func TestNewEngineDummyLifecycle(t *testing.T) {
	var started []contracts.Notification
	e, err := NewEngine(dummy.TypeName,
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithMIDIBackend(midivirtual.New()),
		contracts.WithHostObserver(contracts.ObserverFunc(func(n contracts.Notification) {
			if n.Opcode == contracts.OpcodeEngineStarted {
				started = append(started, n)
			}
		})),
	)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := e.Init(DefaultClientName); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !e.IsRunning() || e.DriverName() != dummy.TypeName {
		t.Errorf("Expected a running %s engine", dummy.TypeName)
	}
	if e.BufferSize() != DefaultBufferSize || e.SampleRate() != DefaultSampleRate {
		t.Errorf("Unexpected effective values %d/%v", e.BufferSize(), e.SampleRate())
	}
	if len(started) != 1 {
		t.Errorf("Expected one EngineStarted notification, got %d", len(started))
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if e.IsRunning() {
		t.Error("Engine still running after Close")
	}
}

func TestDeviceInfoOfDummy(t *testing.T) {
	info, err := DeviceInfo(dummy.TypeName, dummy.DefaultSpec.Name)
	if err != nil {
		t.Fatalf("DeviceInfo failed: %v", err)
	}
	if !info.Hints.Has(contracts.HintVariableBufferSize | contracts.HintVariableSampleRate) {
		t.Errorf("Unexpected hints %b", info.Hints)
	}
	if info.SampleRates[len(info.SampleRates)-1] != 0 {
		t.Errorf("Sample rates must be 0-terminated, got %v", info.SampleRates)
	}

	names, err := DeviceNames(dummy.TypeName)
	if err != nil || len(names) == 0 {
		t.Errorf("Expected dummy devices, got %v (%v)", names, err)
	}
}
