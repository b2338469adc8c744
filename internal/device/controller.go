// Package device owns the audio device handle and its Closed -> Open -> Playing state machine.
package device

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"go.uber.org/multierr"
)

// State of the device handle.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StatePlaying:
		return "playing"
	}
	return "closed"
}

// Changes reports which effective values a reconfiguration changed.
type Changes struct {
	BufferSize bool
	SampleRate bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.BufferSize || c.SampleRate
}

// ChangeFunc is invoked by Reconfigure after the device reopened and before playback restarts.
// It runs with the controller locked and must not call its lifecycle methods.
type ChangeFunc func(bufferSize uint32, sampleRate float64, changes Changes)

// Controller is the exclusive owner of one audio device. Lifecycle calls are expected to be
// serialised by the caller; the getters are safe from any goroutine.
type Controller struct {
	mu     sync.Mutex
	driver contracts.DeviceDriver
	logger contracts.Logger

	device   contracts.AudioDevice
	callback contracts.AudioCallback
	inputs   int
	outputs  int

	state      atomic.Int32
	bufferSize atomic.Uint32
	sampleRate atomic.Uint64

	xrunBaseline int64
}

// NewController returns a closed controller creating its devices through driver.
func NewController(driver contracts.DeviceDriver, logger contracts.Logger) *Controller {
	return &Controller{driver: driver, logger: logger}
}

// Open selects deviceName, or the driver default when empty, and opens it with every input and
// output channel enabled. The device may snap sampleRate and bufferSize; the effective values are
// available from SampleRate and BufferSize afterwards.
func (c *Controller) Open(deviceName string, sampleRate float64, bufferSize uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		return fmt.Errorf("%w: device %q is already open", contracts.ErrDeviceOpenFailed, c.device.Name())
	}

	if deviceName == "" {
		names := c.driver.DeviceNames()
		if index := c.driver.DefaultDeviceIndex(); index >= 0 && index < len(names) {
			deviceName = names[index]
		}
	}
	if deviceName == "" {
		return contracts.ErrNoDeviceSelected
	}

	dev := c.driver.CreateDevice(deviceName)
	if dev == nil {
		return fmt.Errorf("%w: %s", contracts.ErrDeviceOpenFailed, deviceName)
	}

	inputs, outputs := len(dev.InputChannelNames()), len(dev.OutputChannelNames())
	if outputs <= 0 {
		dev.Close()
		return fmt.Errorf("%w: %s", contracts.ErrDeviceHasNoOutputs, deviceName)
	}

	if err := dev.Open(inputs, outputs, sampleRate, bufferSize); err != nil {
		dev.Close()
		return fmt.Errorf("%w: %v", contracts.ErrDeviceConfigFailed, err)
	}

	c.device = dev
	c.xrunBaseline = 0
	c.inputs, c.outputs = inputs, outputs
	c.storeEffective()
	c.state.Store(int32(StateOpen))

	c.logger.Info("Audio device opened",
		c.logger.Field().String("device", deviceName),
		c.logger.Field().Uint32("bufferSize", c.BufferSize()),
		c.logger.Field().Float64("sampleRate", c.SampleRate()))
	return nil
}

func (c *Controller) storeEffective() {
	c.bufferSize.Store(c.device.CurrentBufferSize())
	c.sampleRate.Store(math.Float64bits(c.device.CurrentSampleRate()))
}

// Start registers callback and starts the device thread.
func (c *Controller) Start(callback contracts.AudioCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return contracts.ErrNotRunning
	}

	c.callback = callback
	if err := c.device.Start(callback); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrDeviceConfigFailed, err)
	}
	c.state.Store(int32(StatePlaying))
	return nil
}

// Stop halts the device thread and returns once the callback ceased. The device stays open.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil && c.device.IsPlaying() {
		c.device.Stop()
	}
	if c.device != nil {
		c.state.Store(int32(StateOpen))
	}
}

// Close stops playback and releases the device. It is safe to call on a closed controller.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
}

func (c *Controller) close() {
	if c.device == nil {
		return
	}

	if c.device.IsPlaying() {
		c.device.Stop()
	}
	if c.device.IsOpen() {
		c.device.Close()
	}

	c.logger.Info("Audio device closed", c.logger.Field().String("device", c.device.Name()))

	c.device = nil
	c.callback = nil
	c.xrunBaseline = 0
	c.state.Store(int32(StateClosed))
}

// Reconfigure reopens the playing device with new parameters and restarts it.
//
// When the new parameters are refused the previous ones are restored and playback resumes; the
// returned error wraps contracts.ErrDeviceConfigFailed. When the rollback fails too the device
// is released, the controller is Closed and the error wraps contracts.ErrReconfigureFatal.
//
// onChange, when not nil, runs before playback restarts and only if an effective value differs
// from the previous one.
func (c *Controller) Reconfigure(bufferSize uint32, sampleRate float64, onChange ChangeFunc) (Changes, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil || State(c.state.Load()) != StatePlaying {
		return Changes{}, contracts.ErrNotPlaying
	}

	prevBufferSize, prevSampleRate := c.BufferSize(), c.SampleRate()
	prevXruns := c.hardwareXruns()

	if c.device.IsPlaying() {
		c.device.Stop()
	}
	if c.device.IsOpen() {
		c.device.Close()
	}
	c.state.Store(int32(StateOpen))

	if err := c.device.Open(c.inputs, c.outputs, sampleRate, bufferSize); err != nil {
		c.logger.Warn("Device refused new parameters, rolling back",
			c.logger.Field().Uint32("bufferSize", bufferSize),
			c.logger.Field().Float64("sampleRate", sampleRate),
			c.logger.Field().Error("error", err))

		if rollbackErr := c.device.Open(c.inputs, c.outputs, prevSampleRate, prevBufferSize); rollbackErr != nil {
			c.logger.Error("Device rollback failed", c.logger.Field().Error("error", rollbackErr))
			c.close()
			return Changes{}, fmt.Errorf("%w: %v", contracts.ErrReconfigureFatal, multierr.Combine(err, rollbackErr))
		}

		c.storeEffective()
		c.rebaseXruns(prevXruns)
		if startErr := c.restart(); startErr != nil {
			return Changes{}, startErr
		}
		return Changes{}, fmt.Errorf("%w: %v", contracts.ErrDeviceConfigFailed, err)
	}

	c.storeEffective()
	c.rebaseXruns(prevXruns)

	changes := Changes{
		BufferSize: c.BufferSize() != prevBufferSize,
		SampleRate: c.SampleRate() != prevSampleRate,
	}
	if changes.Any() && onChange != nil {
		onChange(c.BufferSize(), c.SampleRate(), changes)
	}

	return changes, c.restart()
}

func (c *Controller) restart() error {
	if err := c.device.Start(c.callback); err != nil {
		c.logger.Error("Device restart failed", c.logger.Field().Error("error", err))
		c.close()
		return fmt.Errorf("%w: %v", contracts.ErrReconfigureFatal, err)
	}
	c.state.Store(int32(StatePlaying))
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// IsOpen reports whether a device is held open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device != nil && c.device.IsOpen()
}

// BufferSize returns the effective buffer size. It is read by the render thread.
func (c *Controller) BufferSize() uint32 {
	return c.bufferSize.Load()
}

// SampleRate returns the effective sample rate.
func (c *Controller) SampleRate() float64 {
	return math.Float64frombits(c.sampleRate.Load())
}

// DeviceName returns the name of the held device, empty when closed.
func (c *Controller) DeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return ""
	}
	return c.device.Name()
}

// ChannelNames returns the input and output channel names of the held device.
func (c *Controller) ChannelNames() (inputs, outputs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil, nil
	}
	return c.device.InputChannelNames(), c.device.OutputChannelNames()
}

// ShowControlPanel opens the vendor control panel when the device has one.
func (c *Controller) ShowControlPanel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil || !c.device.HasControlPanel() {
		return false
	}
	return c.device.ShowControlPanel()
}

// XrunCount returns the xruns counted by the hardware since the last ClearXruns.
func (c *Controller) XrunCount() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if delta := c.hardwareXruns() - c.xrunBaseline; delta > 0 {
		return uint32(delta)
	}
	return 0
}

// rebaseXruns keeps the count since the last clear when reopening the device reset the hardware
// counter below prev. Caller holds c.mu.
func (c *Controller) rebaseXruns(prev int64) {
	if hw := c.hardwareXruns(); hw < prev {
		c.xrunBaseline -= prev - hw
	}
}

// ClearXruns moves the baseline to the current hardware count.
func (c *Controller) ClearXruns() {
	c.mu.Lock()
	c.xrunBaseline = c.hardwareXruns()
	c.mu.Unlock()
}

func (c *Controller) hardwareXruns() int64 {
	if c.device == nil {
		return 0
	}
	if xruns := c.device.XrunCount(); xruns > 0 {
		return int64(xruns)
	}
	return 0
}
