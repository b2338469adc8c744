// Package engine builds engine drivers and answers capability queries about the audio back-ends
// available on this system.
package engine

import (
	"fmt"
	"runtime"
	"sync"

	_ "github.com/leandrodaf/enginedriver/internal/driver/dummy"
	_ "github.com/leandrodaf/enginedriver/internal/driver/malgodrv"

	"github.com/leandrodaf/enginedriver/internal/driver"
	core "github.com/leandrodaf/enginedriver/internal/engine"
	"github.com/leandrodaf/enginedriver/internal/midi/mididarwin"
	"github.com/leandrodaf/enginedriver/internal/midi/midirtmidi"
	"github.com/leandrodaf/enginedriver/internal/midi/midivirtual"
	"github.com/leandrodaf/enginedriver/internal/midi/midiwindows"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"go.uber.org/multierr"
)

type midiInitializer func(logger contracts.Logger, clientName string) (contracts.MIDIBackend, error)

// midiBackends maps back-end names to their initializers.
var midiBackends = map[string]midiInitializer{
	midirtmidi.Name: func(logger contracts.Logger, _ string) (contracts.MIDIBackend, error) {
		return midirtmidi.New(logger)
	},
	mididarwin.Name: mididarwin.New, // macOS (Darwin) CoreMIDI.
	midiwindows.Name: func(logger contracts.Logger, _ string) (contracts.MIDIBackend, error) {
		return midiwindows.New(logger) // Windows multimedia API.
	},
	midivirtual.Name: func(contracts.Logger, string) (contracts.MIDIBackend, error) {
		return midivirtual.New(), nil
	},
}

// midiBackendsByOS maps OS names to the MIDI back-end used when none is configured. Other
// systems use rtmidi.
var midiBackendsByOS = map[string]string{
	"darwin":  mididarwin.Name,
	"windows": midiwindows.Name,
}

// DefaultMIDIBackendName returns the MIDI back-end used on the running system.
func DefaultMIDIBackendName() string {
	if name, exists := midiBackendsByOS[runtime.GOOS]; exists {
		return name
	}
	return midirtmidi.Name
}

// NewMIDIBackend opens the MIDI back-end called name. An empty name selects the back-end of
// the running system.
func NewMIDIBackend(name string, logger contracts.Logger, clientName string) (contracts.MIDIBackend, error) {
	if name == "" {
		name = DefaultMIDIBackendName()
	}
	if initializer, exists := midiBackends[name]; exists {
		return initializer(logger, clientName)
	}
	return nil, fmt.Errorf("%w: %s", contracts.ErrInvalidMIDIBackend, name)
}

// NewEngine creates an engine rendering through the audio back-end driverName.
//
// When no MIDI back-end is given, the one of the running system is opened and released by
// Close; if it cannot be opened the engine runs with no MIDI endpoints. An engine built here
// is single use: create a new one after Close.
func NewEngine(driverName string, opts ...contracts.Option) (contracts.Engine, error) {
	options := applyDefaultOptions(opts...)
	driver.SetLogger(options.Logger)

	drv, err := driver.Default().Lookup(driverName)
	if err != nil {
		return nil, err
	}

	var owned contracts.MIDIBackend
	if options.MIDIBackend == nil {
		owned, err = NewMIDIBackend("", options.Logger, options.ClientName)
		if err != nil {
			options.Logger.Warn("MIDI back-end unavailable, running without MIDI",
				options.Logger.Field().String("backend", DefaultMIDIBackendName()),
				options.Logger.Field().Error("error", err))
			owned = midivirtual.New()
		}
		options.MIDIBackend = owned
	}

	e := core.New(drv, options)
	if owned == nil {
		return e, nil
	}
	return &ownedBackendEngine{Engine: e, backend: owned}, nil
}

// ownedBackendEngine releases the MIDI back-end NewEngine opened on its behalf.
type ownedBackendEngine struct {
	*core.Engine
	backend contracts.MIDIBackend
	once    sync.Once
}

func (e *ownedBackendEngine) Close() error {
	err := e.Engine.Close()
	e.once.Do(func() {
		err = multierr.Append(err, e.backend.Close())
	})
	return err
}

// DriverNames lists the audio back-ends available on this system, sorted by name.
func DriverNames() []string {
	return driver.Default().DriverNames()
}

// DeviceNames lists the devices of an audio back-end.
func DeviceNames(driverName string) ([]string, error) {
	return driver.Default().DeviceNames(driverName)
}

// DeviceInfo returns the capabilities of a device.
func DeviceInfo(driverName, deviceName string) (contracts.DriverDeviceInfo, error) {
	return driver.Default().DeviceInfo(driverName, deviceName)
}

// ShowDeviceControlPanel opens the vendor panel of a device not in use by an engine.
func ShowDeviceControlPanel(driverName, deviceName string) bool {
	return driver.Default().ShowDeviceControlPanel(driverName, deviceName)
}

// Shutdown releases every audio back-end. The next query instantiates them again.
func Shutdown() error {
	return driver.Shutdown()
}
