// Package dummy is a device driver without hardware. Its devices run a synthetic clock: either a
// ticker firing once per period, or manual ticks driven by the caller, which is what tests use.
package dummy

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/enginedriver/internal/driver"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

func init() {
	driver.Register(TypeName, func() (contracts.DeviceDriver, error) {
		return New(), nil
	})
}

// TypeName is the driver name reported to the device-type registry.
const TypeName = "Dummy"

// ErrNotOpen is returned when starting a device that has not been opened.
var ErrNotOpen = errors.New("dummy device is not open")

// DeviceSpec describes one synthetic device.
type DeviceSpec struct {
	Name         string
	Inputs       int
	Outputs      int
	BufferSizes  []uint32
	SampleRates  []float64
	ControlPanel bool
}

// DefaultSpec is the device every driver exposes unless configured otherwise.
var DefaultSpec = DeviceSpec{
	Name:        "Dummy Device, Synthetic Clock",
	Inputs:      2,
	Outputs:     2,
	BufferSizes: []uint32{64, 128, 256, 512, 1024},
	SampleRates: []float64{44100, 48000},
}

// OpenHook can veto an Open call; a non-nil error makes the open fail.
type OpenHook func(device string, sampleRate float64, bufferSize uint32) error

// Option configures a Driver.
type Option func(*Driver)

// WithDevices replaces the device list.
func WithDevices(specs ...DeviceSpec) Option {
	return func(d *Driver) {
		d.specs = specs
	}
}

// WithDefaultIndex sets the default device index, -1 for none.
func WithDefaultIndex(index int) Option {
	return func(d *Driver) {
		d.defaultIndex = index
	}
}

// WithManualClock disables the ticker; the caller drives periods with Device.Tick.
func WithManualClock() Option {
	return func(d *Driver) {
		d.manual = true
	}
}

// WithOpenHook installs a hook consulted on every Open.
func WithOpenHook(hook OpenHook) Option {
	return func(d *Driver) {
		d.openHook = hook
	}
}

// Driver is the synthetic device driver.
type Driver struct {
	mu           sync.Mutex
	specs        []DeviceSpec
	defaultIndex int
	manual       bool
	openHook     OpenHook
	devices      []*Device
}

// New creates a driver exposing DefaultSpec unless WithDevices is given.
func New(opts ...Option) *Driver {
	d := &Driver{specs: []DeviceSpec{DefaultSpec}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TypeName implements contracts.DeviceDriver.
func (d *Driver) TypeName() string {
	return TypeName
}

// ScanForDevices implements contracts.DeviceDriver. The device list is static.
func (d *Driver) ScanForDevices() {}

// DeviceNames implements contracts.DeviceDriver.
func (d *Driver) DeviceNames() []string {
	names := make([]string, len(d.specs))
	for i, spec := range d.specs {
		names[i] = spec.Name
	}
	return names
}

// DefaultDeviceIndex implements contracts.DeviceDriver.
func (d *Driver) DefaultDeviceIndex() int {
	if d.defaultIndex >= len(d.specs) {
		return -1
	}
	return d.defaultIndex
}

// CreateDevice implements contracts.DeviceDriver.
func (d *Driver) CreateDevice(name string) contracts.AudioDevice {
	for _, spec := range d.specs {
		if spec.Name != name {
			continue
		}

		dev := &Device{spec: spec, manual: d.manual, openHook: d.openHook}
		d.mu.Lock()
		d.devices = append(d.devices, dev)
		d.mu.Unlock()
		return dev
	}
	return nil
}

// LastDevice returns the most recently created device, nil when none was created.
func (d *Driver) LastDevice() *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.devices) == 0 {
		return nil
	}
	return d.devices[len(d.devices)-1]
}

// Close implements contracts.DeviceDriver and closes every device created by the driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	devices := d.devices
	d.devices = nil
	d.mu.Unlock()

	for _, dev := range devices {
		dev.Close()
	}
	return nil
}

// Device is a synthetic audio device.
type Device struct {
	spec     DeviceSpec
	manual   bool
	openHook OpenHook

	// tickMu serialises periods with Stop so Stop returns only after the callback ceased.
	tickMu sync.Mutex
	mu     sync.Mutex

	open       bool
	playing    bool
	bufferSize uint32
	sampleRate float64
	callback   contracts.AudioCallback
	inputs     [][]float32
	outputs    [][]float32

	stop chan struct{}
	done chan struct{}

	xruns   atomic.Int64
	periods atomic.Uint64
	closes  atomic.Int32
}

// Name implements contracts.AudioDevice.
func (d *Device) Name() string {
	return d.spec.Name
}

// InputChannelNames implements contracts.AudioDevice.
func (d *Device) InputChannelNames() []string {
	return channelNames("Input", d.spec.Inputs)
}

// OutputChannelNames implements contracts.AudioDevice.
func (d *Device) OutputChannelNames() []string {
	return channelNames("Output", d.spec.Outputs)
}

func channelNames(prefix string, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return names
}

// Open implements contracts.AudioDevice. Requested values are snapped to the closest
// advertised ones, the way real hardware does.
func (d *Device) Open(inputChannels, outputChannels int, sampleRate float64, bufferSize uint32) error {
	if d.openHook != nil {
		if err := d.openHook(d.spec.Name, sampleRate, bufferSize); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing {
		return errors.New("dummy device is playing")
	}

	d.bufferSize = snapBufferSize(d.spec.BufferSizes, bufferSize)
	d.sampleRate = snapSampleRate(d.spec.SampleRates, sampleRate)
	d.inputs = makeBuffers(min(inputChannels, d.spec.Inputs), d.bufferSize)
	d.outputs = makeBuffers(min(outputChannels, d.spec.Outputs), d.bufferSize)
	d.open = true
	return nil
}

func makeBuffers(channels int, frames uint32) [][]float32 {
	buffers := make([][]float32, channels)
	for i := range buffers {
		buffers[i] = make([]float32, frames)
	}
	return buffers
}

func snapBufferSize(available []uint32, requested uint32) uint32 {
	if len(available) == 0 {
		return requested
	}

	best := available[0]
	for _, size := range available {
		if absDiff(size, requested) < absDiff(best, requested) {
			best = size
		}
	}
	return best
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func snapSampleRate(available []float64, requested float64) float64 {
	if len(available) == 0 {
		return requested
	}

	best := available[0]
	for _, rate := range available {
		if math.Abs(rate-requested) < math.Abs(best-requested) {
			best = rate
		}
	}
	return best
}

// Close implements contracts.AudioDevice.
func (d *Device) Close() {
	d.closes.Add(1)
	d.Stop()

	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

// IsOpen implements contracts.AudioDevice.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Start implements contracts.AudioDevice.
func (d *Device) Start(callback contracts.AudioCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return ErrNotOpen
	}
	if d.playing {
		return nil
	}

	d.callback = callback
	d.playing = true

	if d.manual {
		return nil
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	period := time.Duration(float64(d.bufferSize) / d.sampleRate * float64(time.Second))
	go d.run(period, d.stop, d.done)
	return nil
}

func (d *Device) run(period time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			started := time.Now()
			d.Tick()
			if time.Since(started) > period {
				d.xruns.Add(1)
			}
		}
	}
}

// Stop implements contracts.AudioDevice. It returns after the callback has ceased.
func (d *Device) Stop() {
	d.mu.Lock()
	if !d.playing {
		d.mu.Unlock()
		return
	}
	d.playing = false
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	// Wait for a manual tick in flight.
	d.tickMu.Lock()
	d.callback = nil
	d.tickMu.Unlock()
}

// IsPlaying implements contracts.AudioDevice.
func (d *Device) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Tick runs one period with the configured buffer size. It reports false when the device is
// not playing.
func (d *Device) Tick() bool {
	return d.TickFrames(d.CurrentBufferSize())
}

// TickFrames runs one period announcing nframes to the callback, which lets tests deliver a
// period length the engine did not configure.
func (d *Device) TickFrames(nframes uint32) bool {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	d.mu.Lock()
	playing, callback := d.playing, d.callback
	inputs, outputs := d.inputs, d.outputs
	d.mu.Unlock()

	if !playing || callback == nil {
		return false
	}

	callback.Process(inputs, outputs, nframes)
	d.periods.Add(1)
	return true
}

// SetInput fills input channel ch with value.
func (d *Device) SetInput(ch int, value float32) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if ch < 0 || ch >= len(d.inputs) {
		return
	}
	for i := range d.inputs[ch] {
		d.inputs[ch][i] = value
	}
}

// Output returns a copy of output channel ch as left by the last period.
func (d *Device) Output(ch int) []float32 {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if ch < 0 || ch >= len(d.outputs) {
		return nil
	}
	return append([]float32(nil), d.outputs[ch]...)
}

// Periods returns how many periods have been rendered.
func (d *Device) Periods() uint64 {
	return d.periods.Load()
}

// CloseCount returns how many times Close was called on the device.
func (d *Device) CloseCount() int {
	return int(d.closes.Load())
}

// ResetXruns sets the hardware xrun counter back to 0, as drivers do when a device is reopened.
func (d *Device) ResetXruns() {
	d.xruns.Store(0)
}

// InjectXruns bumps the hardware xrun counter.
func (d *Device) InjectXruns(n int) {
	d.xruns.Add(int64(n))
}

// ReportError forwards a device error to the registered callback.
func (d *Device) ReportError(message string) {
	d.mu.Lock()
	callback := d.callback
	d.mu.Unlock()

	if callback != nil {
		callback.DeviceError(message)
	}
}

// CurrentBufferSize implements contracts.AudioDevice.
func (d *Device) CurrentBufferSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferSize
}

// CurrentSampleRate implements contracts.AudioDevice.
func (d *Device) CurrentSampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// AvailableBufferSizes implements contracts.AudioDevice.
func (d *Device) AvailableBufferSizes() []uint32 {
	return append([]uint32(nil), d.spec.BufferSizes...)
}

// AvailableSampleRates implements contracts.AudioDevice.
func (d *Device) AvailableSampleRates() []float64 {
	return append([]float64(nil), d.spec.SampleRates...)
}

// XrunCount implements contracts.AudioDevice.
func (d *Device) XrunCount() int {
	return int(d.xruns.Load())
}

// HasControlPanel implements contracts.AudioDevice.
func (d *Device) HasControlPanel() bool {
	return d.spec.ControlPanel
}

// ShowControlPanel implements contracts.AudioDevice. There is nothing to show.
func (d *Device) ShowControlPanel() bool {
	return d.spec.ControlPanel
}
