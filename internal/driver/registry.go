// Package driver is the process-wide device-type registry.
//
// Back-ends register a Factory from their init function. The first query instantiates every
// registered back-end exactly once, even under concurrent first use; Shutdown releases them and
// a later query instantiates them again.
package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"go.uber.org/multierr"
)

// ExcludedTypeName is never offered: the JACK bridge is handled outside this driver.
const ExcludedTypeName = "JACK"

// Factory instantiates one back-end. Returning an error hides the back-end, which is how
// back-ends unavailable on the running system drop out of the list.
type Factory func() (contracts.DeviceDriver, error)

// Registry holds the registered factories and the instantiated back-ends.
type Registry struct {
	mu          sync.Mutex
	factories   map[string]Factory
	logger      contracts.Logger
	initialized bool
	drivers     []contracts.DeviceDriver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// SetLogger sets the logger used to report back-ends that failed to instantiate.
func (r *Registry) SetLogger(logger contracts.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// initIfNeeded instantiates every back-end once. Caller holds r.mu.
func (r *Registry) initIfNeeded() {
	if r.initialized {
		return
	}
	r.initialized = true

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		if name != ExcludedTypeName {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		drv, err := r.factories[name]()
		if err != nil {
			if r.logger != nil {
				r.logger.Debug("Audio back-end unavailable",
					r.logger.Field().String("driver", name),
					r.logger.Field().Error("error", err))
			}
			continue
		}
		if drv == nil || drv.TypeName() == ExcludedTypeName {
			continue
		}
		r.drivers = append(r.drivers, drv)
	}
}

// Drivers returns the instantiated back-ends sorted by type name.
func (r *Registry) Drivers() []contracts.DeviceDriver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initIfNeeded()
	return append([]contracts.DeviceDriver(nil), r.drivers...)
}

// DriverNames returns the type names of the available back-ends.
func (r *Registry) DriverNames() []string {
	drivers := r.Drivers()
	names := make([]string, len(drivers))
	for i, drv := range drivers {
		names[i] = drv.TypeName()
	}
	return names
}

// Lookup returns the back-end named driverName after rescanning its devices.
func (r *Registry) Lookup(driverName string) (contracts.DeviceDriver, error) {
	for _, drv := range r.Drivers() {
		if drv.TypeName() == driverName {
			drv.ScanForDevices()
			return drv, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", contracts.ErrUnknownDriver, driverName)
}

// DeviceNames lists the devices of driverName.
func (r *Registry) DeviceNames(driverName string) ([]string, error) {
	drv, err := r.Lookup(driverName)
	if err != nil {
		return nil, err
	}
	return drv.DeviceNames(), nil
}

// DeviceInfo returns the capabilities of one device. Devices that do not advertise buffer
// sizes or sample rates get the fallback lists. Both lists are 0-terminated.
func (r *Registry) DeviceInfo(driverName, deviceName string) (contracts.DriverDeviceInfo, error) {
	drv, err := r.Lookup(driverName)
	if err != nil {
		return contracts.DriverDeviceInfo{}, err
	}

	dev := drv.CreateDevice(deviceName)
	if dev == nil {
		return contracts.DriverDeviceInfo{}, fmt.Errorf("%w: %s", contracts.ErrDeviceOpenFailed, deviceName)
	}
	defer dev.Close()

	info := contracts.DriverDeviceInfo{
		Hints: contracts.HintVariableBufferSize | contracts.HintVariableSampleRate,
	}
	if dev.HasControlPanel() {
		info.Hints |= contracts.HintHasControlPanel
	}

	if sizes := dev.AvailableBufferSizes(); len(sizes) > 0 {
		info.BufferSizes = append(append(make([]uint32, 0, len(sizes)+1), sizes...), 0)
	} else {
		info.BufferSizes = append([]uint32(nil), contracts.FallbackBufferSizes...)
	}

	if rates := dev.AvailableSampleRates(); len(rates) > 0 {
		info.SampleRates = append(append(make([]float64, 0, len(rates)+1), rates...), 0)
	} else {
		info.SampleRates = append([]float64(nil), contracts.FallbackSampleRates...)
	}

	return info, nil
}

// ShowDeviceControlPanel opens the vendor panel of a device that is not in use by an engine.
func (r *Registry) ShowDeviceControlPanel(driverName, deviceName string) bool {
	drv, err := r.Lookup(driverName)
	if err != nil {
		return false
	}

	dev := drv.CreateDevice(deviceName)
	if dev == nil {
		return false
	}
	defer dev.Close()

	return dev.ShowControlPanel()
}

// Shutdown releases every instantiated back-end. It is a no-op when nothing was instantiated.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil
	}

	var err error
	for _, drv := range r.drivers {
		err = multierr.Append(err, drv.Close())
	}

	r.drivers = nil
	r.initialized = false
	return err
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the process-wide registry. Back-ends call it from init.
func Register(name string, factory Factory) { defaultRegistry.Register(name, factory) }

// SetLogger sets the logger of the process-wide registry.
func SetLogger(logger contracts.Logger) { defaultRegistry.SetLogger(logger) }

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Shutdown releases the back-ends of the process-wide registry.
func Shutdown() error { return defaultRegistry.Shutdown() }
