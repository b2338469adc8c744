// Package engine composes the device controller, the MIDI endpoint manager, the event queue,
// the patchbay registry and the processing graph into a contracts.Engine.
//
// Lifecycle calls (Init, Close, SetBufferSizeAndSampleRate, PatchbayRefresh and the external
// port calls) are expected to come from one control goroutine at a time. Process and
// DeviceError run on the device thread.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/enginedriver/internal/device"
	"github.com/leandrodaf/enginedriver/internal/eventqueue"
	"github.com/leandrodaf/enginedriver/internal/midiio"
	"github.com/leandrodaf/enginedriver/internal/patchbay"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"go.uber.org/multierr"
)

// Engine is the audio/MIDI engine driver.
type Engine struct {
	options    contracts.EngineOptions
	logger     contracts.Logger
	driverName string

	controller *device.Controller
	events     *eventqueue.Queue
	midi       *midiio.Manager
	patchbay   *patchbay.Registry
	graph      contracts.Graph

	running    atomic.Bool
	frame      atomic.Uint64
	clientName string

	// Render-thread state, allocated once.
	eventsIn     []contracts.EngineEvent
	eventsOut    []contracts.EngineEvent
	periodStart  uint64
	periodLength uint32
	eventCount   int
	drainFn      func(contracts.RawMIDIEvent) bool

	errMu     sync.Mutex
	lastError string
}

var _ contracts.Engine = (*Engine)(nil)

// New returns a closed engine rendering through drv. opts must carry a Logger, a MIDIBackend
// and a Graph.
func New(drv contracts.DeviceDriver, opts contracts.EngineOptions) *Engine {
	e := &Engine{
		options:    opts,
		logger:     opts.Logger,
		driverName: drv.TypeName(),
		controller: device.NewController(drv, opts.Logger),
		events:     eventqueue.New(eventqueue.DefaultCapacity),
		patchbay:   patchbay.NewRegistry(opts.LoopbackNames),
		graph:      opts.Graph,
		eventsIn:   make([]contracts.EngineEvent, contracts.MaxEventCount),
		eventsOut:  make([]contracts.EngineEvent, contracts.MaxEventCount),
	}
	e.midi = midiio.NewManager(opts.MIDIBackend, e.events, e.frame.Load, opts.Logger)
	e.drainFn = e.drainEvent
	return e
}

// Init opens the configured device, creates the graph with the device channel counts, starts
// rendering and announces the external topology.
func (e *Engine) Init(clientName string) error {
	if clientName == "" {
		return e.fail(contracts.ErrEmptyClientName)
	}
	if e.running.Load() {
		return e.fail(contracts.ErrAlreadyRunning)
	}

	mode := e.options.ProcessMode
	if mode != contracts.ProcessModeContinuousRack && mode != contracts.ProcessModePatchbay {
		return e.fail(fmt.Errorf("%w: %s", contracts.ErrInvalidProcessMode, mode))
	}

	if err := e.controller.Open(e.options.AudioDevice, e.options.SampleRate, e.options.BufferSize); err != nil {
		return e.fail(err)
	}

	ins, outs := e.controller.ChannelNames()
	if err := e.graph.Create(uint32(len(ins)), uint32(len(outs))); err != nil {
		e.controller.Close()
		return e.fail(fmt.Errorf("create graph: %w", err))
	}
	e.graph.BufferSizeChanged(e.controller.BufferSize())
	e.graph.SampleRateChanged(e.controller.SampleRate())

	e.clientName = clientName
	e.frame.Store(0)

	if err := e.controller.Start(e); err != nil {
		e.graph.Destroy()
		e.controller.Close()
		return e.fail(err)
	}
	e.running.Store(true)

	if err := e.PatchbayRefresh(true, false, false); err != nil {
		e.logger.Warn("Initial patchbay refresh failed", e.logger.Field().Error("error", err))
	}
	if mode == contracts.ProcessModePatchbay {
		e.refreshExternal(false, false)
	}

	e.logger.Info("Engine started",
		e.logger.Field().String("driver", e.driverName),
		e.logger.Field().String("device", e.controller.DeviceName()),
		e.logger.Field().String("processMode", mode.String()),
		e.logger.Field().Uint32("bufferSize", e.controller.BufferSize()),
		e.logger.Field().Float64("sampleRate", e.controller.SampleRate()))

	e.emit(true, true, contracts.Notification{
		Opcode:   contracts.OpcodeEngineStarted,
		Value1:   int(mode),
		Value2:   int(e.options.TransportMode),
		Value3:   int(e.controller.BufferSize()),
		ValueF:   e.controller.SampleRate(),
		ValueStr: e.driverName,
	})
	return nil
}

// Close stops rendering, destroys the graph and releases every MIDI endpoint and the device.
// It is safe to call on a closed engine.
func (e *Engine) Close() error {
	wasRunning := e.running.Swap(false)

	e.controller.Stop()
	err := e.release()
	e.controller.Close()

	if wasRunning {
		e.logger.Info("Engine stopped", e.logger.Field().String("driver", e.driverName))
		e.emit(true, true, contracts.Notification{Opcode: contracts.OpcodeEngineStopped})
	}
	return err
}

// release tears down everything but the device, which must no longer be rendering.
func (e *Engine) release() error {
	if e.graph.IsReady() {
		e.graph.Destroy()
	}

	var err error
	err = multierr.Append(err, e.midi.CloseAll())
	e.patchbay.Clear()
	return err
}

// IsRunning reports whether the device is rendering through this engine.
func (e *Engine) IsRunning() bool {
	return e.running.Load() && e.controller.State() == device.StatePlaying
}

// IsOffline reports false; this engine only renders in real time.
func (e *Engine) IsOffline() bool {
	return false
}

// DriverName returns the type name of the device driver.
func (e *Engine) DriverName() string {
	return e.driverName
}

// ClientName returns the name passed to Init.
func (e *Engine) ClientName() string {
	return e.clientName
}

// BufferSize returns the effective buffer size.
func (e *Engine) BufferSize() uint32 {
	return e.controller.BufferSize()
}

// SampleRate returns the effective sample rate.
func (e *Engine) SampleRate() float64 {
	return e.controller.SampleRate()
}

// FramePosition returns the absolute render frame at the start of the next period.
func (e *Engine) FramePosition() uint64 {
	return e.frame.Load()
}

// SetBufferSizeAndSampleRate reopens the device with new parameters. The graph and the
// observers only learn about values that actually changed. When the rollback fails as well,
// the engine is torn down and the error wraps contracts.ErrReconfigureFatal.
func (e *Engine) SetBufferSizeAndSampleRate(bufferSize uint32, sampleRate float64) error {
	if !e.running.Load() {
		return e.fail(contracts.ErrNotRunning)
	}

	changes, err := e.controller.Reconfigure(bufferSize, sampleRate, func(bs uint32, sr float64, changes device.Changes) {
		if changes.BufferSize {
			e.graph.BufferSizeChanged(bs)
		}
		if changes.SampleRate {
			e.graph.SampleRateChanged(sr)
		}
	})

	if errors.Is(err, contracts.ErrReconfigureFatal) {
		e.running.Store(false)
		e.logger.Error("Engine closed after failed reconfiguration", e.logger.Field().Error("error", err))
		err = multierr.Append(err, e.release())
		e.emit(true, true, contracts.Notification{Opcode: contracts.OpcodeEngineStopped})
		return e.fail(err)
	}
	if err != nil {
		return e.fail(err)
	}

	if changes.BufferSize {
		e.emit(true, true, contracts.Notification{
			Opcode: contracts.OpcodeBufferSizeChanged,
			Value1: int(e.controller.BufferSize()),
		})
	}
	if changes.SampleRate {
		e.emit(true, true, contracts.Notification{
			Opcode: contracts.OpcodeSampleRateChanged,
			ValueF: e.controller.SampleRate(),
		})
	}
	return nil
}

// ShowDeviceControlPanel opens the vendor panel of the running device.
func (e *Engine) ShowDeviceControlPanel() bool {
	return e.controller.ShowControlPanel()
}

// TotalXruns returns the xruns reported by the device since the last ClearXruns.
func (e *Engine) TotalXruns() uint32 {
	return e.controller.XrunCount()
}

// ClearXruns resets the xrun count.
func (e *Engine) ClearXruns() {
	e.controller.ClearXruns()
}

// ReportXruns sends the current xrun count to the host.
func (e *Engine) ReportXruns() {
	e.emit(true, false, contracts.Notification{Opcode: contracts.OpcodeXruns, Value1: int(e.TotalXruns())})
}

// ConnectExternalGraphPort connects an external endpoint to the engine. Audio connection types
// are handled by the graph; for the MIDI types portName is the endpoint name.
func (e *Engine) ConnectExternalGraphPort(connectionType contracts.ConnectionType, portID uint32, portName string) bool {
	switch connectionType {
	case contracts.ConnectionAudioIn1, contracts.ConnectionAudioIn2, contracts.ConnectionAudioOut1, contracts.ConnectionAudioOut2:
		return e.graph.ConnectExternalAudio(connectionType, portID, portName)

	case contracts.ConnectionMIDIInput, contracts.ConnectionMIDIOutput:
		connect := e.midi.ConnectInput
		if connectionType == contracts.ConnectionMIDIOutput {
			connect = e.midi.ConnectOutput
		}
		if err := connect(portName); err != nil {
			e.logger.Warn("MIDI connect failed",
				e.logger.Field().String("port", portName),
				e.logger.Field().Error("error", err))
			return false
		}
		return true
	}

	e.logger.Warn("Invalid connection type", e.logger.Field().Int("type", int(connectionType)))
	return false
}

// DisconnectExternalGraphPort undoes ConnectExternalGraphPort. It reports false when nothing
// matching is connected.
func (e *Engine) DisconnectExternalGraphPort(connectionType contracts.ConnectionType, portID uint32, portName string) bool {
	switch connectionType {
	case contracts.ConnectionAudioIn1, contracts.ConnectionAudioIn2, contracts.ConnectionAudioOut1, contracts.ConnectionAudioOut2:
		return e.graph.DisconnectExternalAudio(connectionType, portID, portName)
	case contracts.ConnectionMIDIInput:
		return e.midi.Disconnect(contracts.MIDIIn, portName)
	case contracts.ConnectionMIDIOutput:
		return e.midi.Disconnect(contracts.MIDIOut, portName)
	}

	e.logger.Warn("Invalid connection type", e.logger.Field().Int("type", int(connectionType)))
	return false
}

// OpenMIDIEndpoints returns the open MIDI inputs and outputs in connection order.
func (e *Engine) OpenMIDIEndpoints() (ins, outs []contracts.DeviceInfo) {
	return e.midi.OpenInputs(), e.midi.OpenOutputs()
}

// Patchbay exposes the external port and connection registry.
func (e *Engine) Patchbay() *patchbay.Registry {
	return e.patchbay
}

// LastError returns the message of the last configuration or fatal error.
func (e *Engine) LastError() string {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastError
}

func (e *Engine) fail(err error) error {
	e.errMu.Lock()
	e.lastError = err.Error()
	e.errMu.Unlock()
	return err
}

// emit routes n to the host and/or the external observer.
func (e *Engine) emit(sendHost, sendExternal bool, n contracts.Notification) {
	if sendHost && e.options.HostObserver != nil {
		e.options.HostObserver.Notify(n)
	}
	if sendExternal && e.options.ExternalObserver != nil {
		e.options.ExternalObserver.Notify(n)
	}
}
