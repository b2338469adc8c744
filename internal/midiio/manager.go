// Package midiio owns the MIDI endpoints opened by the engine.
//
// Inputs deliver on a back-end thread straight into the event queue's pending side. Each output
// has its own delivery goroutine fed by a bounded channel, so the render thread never waits on a
// native send. The output set is guarded by a mutex distinct from the event queue's.
package midiio

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/enginedriver/internal/eventqueue"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"go.uber.org/multierr"
)

// OutputQueueSize is the number of messages buffered per output before the render thread drops.
const OutputQueueSize = 512

// Clock returns the absolute render frame used to stamp incoming messages.
type Clock func() uint64

type inputPort struct {
	info   contracts.DeviceInfo
	handle contracts.MIDIInput
}

type outMessage struct {
	size     uint8
	data     [contracts.MIDIDataSize]byte
	position float64
}

type outputPort struct {
	info   contracts.DeviceInfo
	handle contracts.MIDIOutput
	queue  chan outMessage
	done   chan struct{}
}

// Manager opens, tracks and closes MIDI endpoints.
type Manager struct {
	logger  contracts.Logger
	backend contracts.MIDIBackend
	events  *eventqueue.Queue
	clock   Clock

	inMu sync.Mutex
	ins  []*inputPort

	outMu sync.Mutex
	outs  []*outputPort
}

// NewManager returns a manager opening endpoints through backend. Input messages are stamped
// with clock and appended to events.
func NewManager(backend contracts.MIDIBackend, events *eventqueue.Queue, clock Clock, logger contracts.Logger) *Manager {
	return &Manager{logger: logger, backend: backend, events: events, clock: clock}
}

// Backend returns the back-end endpoints are opened through.
func (m *Manager) Backend() contracts.MIDIBackend {
	return m.backend
}

// ConnectInput opens the first enumerable input named name and starts delivery.
func (m *Manager) ConnectInput(name string) error {
	infos, err := m.backend.Inputs()
	if err != nil {
		return err
	}

	info, ok := find(infos, name)
	if !ok {
		return fmt.Errorf("%w: input %q", contracts.ErrEndpointNotFound, name)
	}

	handle, err := m.backend.OpenInput(info.Identifier, m.handleInput)
	if err != nil {
		return fmt.Errorf("open MIDI input %q: %w", name, err)
	}
	if err := handle.Start(); err != nil {
		return multierr.Append(fmt.Errorf("start MIDI input %q: %w", name, err), handle.Stop())
	}

	m.inMu.Lock()
	m.ins = append(m.ins, &inputPort{info: info, handle: handle})
	m.inMu.Unlock()

	m.logger.Info("MIDI input connected",
		m.logger.Field().String("name", info.Name),
		m.logger.Field().String("identifier", info.Identifier))
	return nil
}

// handleInput runs on the back-end thread of an input endpoint.
func (m *Manager) handleInput(data []byte) {
	event, ok := contracts.NewRawMIDIEvent(m.clock(), data)
	if !ok {
		return
	}
	m.events.Append(event)
}

// ConnectOutput opens the first enumerable output named name and starts its delivery goroutine.
func (m *Manager) ConnectOutput(name string) error {
	infos, err := m.backend.Outputs()
	if err != nil {
		return err
	}

	info, ok := find(infos, name)
	if !ok {
		return fmt.Errorf("%w: output %q", contracts.ErrEndpointNotFound, name)
	}

	handle, err := m.backend.OpenOutput(info.Identifier)
	if err != nil {
		return fmt.Errorf("open MIDI output %q: %w", name, err)
	}

	port := &outputPort{
		info:   info,
		handle: handle,
		queue:  make(chan outMessage, OutputQueueSize),
		done:   make(chan struct{}),
	}
	go m.deliver(port)

	m.outMu.Lock()
	m.outs = append(m.outs, port)
	m.outMu.Unlock()

	m.logger.Info("MIDI output connected",
		m.logger.Field().String("name", info.Name),
		m.logger.Field().String("identifier", info.Identifier))
	return nil
}

func (m *Manager) deliver(port *outputPort) {
	defer close(port.done)

	var buf [contracts.MIDIDataSize]byte
	for msg := range port.queue {
		n := copy(buf[:], msg.data[:msg.size])
		if err := port.handle.Send(buf[:n]); err != nil {
			m.logger.Debug("MIDI output send failed",
				m.logger.Field().String("name", port.info.Name),
				m.logger.Field().Float64("position", msg.position),
				m.logger.Field().Error("error", err))
		}
	}
}

func find(infos []contracts.DeviceInfo, name string) (contracts.DeviceInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return contracts.DeviceInfo{}, false
}

// Disconnect closes the first open endpoint named name. It reports false when none is open.
func (m *Manager) Disconnect(direction contracts.MIDIDirection, name string) bool {
	if direction == contracts.MIDIIn {
		return m.disconnectInput(name)
	}
	return m.disconnectOutput(name)
}

func (m *Manager) disconnectInput(name string) bool {
	m.inMu.Lock()
	defer m.inMu.Unlock()

	for i, port := range m.ins {
		if port.info.Name != name {
			continue
		}

		if err := port.handle.Stop(); err != nil {
			m.logger.Warn("Failed to stop MIDI input",
				m.logger.Field().String("name", name),
				m.logger.Field().Error("error", err))
		}
		m.ins = append(m.ins[:i], m.ins[i+1:]...)
		return true
	}
	return false
}

func (m *Manager) disconnectOutput(name string) bool {
	m.outMu.Lock()
	var port *outputPort
	for i, p := range m.outs {
		if p.info.Name == name {
			port = p
			m.outs = append(m.outs[:i], m.outs[i+1:]...)
			break
		}
	}
	m.outMu.Unlock()

	if port == nil {
		return false
	}

	if err := m.stopOutput(port); err != nil {
		m.logger.Warn("Failed to close MIDI output",
			m.logger.Field().String("name", name),
			m.logger.Field().Error("error", err))
	}
	return true
}

// stopOutput ends the delivery goroutine, waits for it and releases the handle. The port must
// already be unlinked from m.outs so the render thread cannot enqueue into the closed channel.
func (m *Manager) stopOutput(port *outputPort) error {
	close(port.queue)
	<-port.done
	return port.handle.Close()
}

// BeginDispatch acquires the output mutex for a fan-out pass and returns the number of open
// outputs. Every call must be paired with EndDispatch.
func (m *Manager) BeginDispatch() int {
	m.outMu.Lock()
	return len(m.outs)
}

// Dispatch queues data on every open output. position is the event's fractional position inside
// the period. A full output queue drops the message. Caller holds the dispatch lock.
func (m *Manager) Dispatch(data []byte, position float64) {
	if len(data) == 0 || len(data) > contracts.MIDIDataSize {
		return
	}

	msg := outMessage{size: uint8(len(data)), position: position}
	copy(msg.data[:], data)

	for _, port := range m.outs {
		select {
		case port.queue <- msg:
		default:
		}
	}
}

// EndDispatch releases the output mutex.
func (m *Manager) EndDispatch() {
	m.outMu.Unlock()
}

// OpenInputs returns the open input endpoints in connection order.
func (m *Manager) OpenInputs() []contracts.DeviceInfo {
	m.inMu.Lock()
	defer m.inMu.Unlock()

	infos := make([]contracts.DeviceInfo, len(m.ins))
	for i, port := range m.ins {
		infos[i] = port.info
	}
	return infos
}

// OpenOutputs returns the open output endpoints in connection order.
func (m *Manager) OpenOutputs() []contracts.DeviceInfo {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	infos := make([]contracts.DeviceInfo, len(m.outs))
	for i, port := range m.outs {
		infos[i] = port.info
	}
	return infos
}

// CloseAll stops and releases every input and drops the events they queued, then unlinks every
// output and releases it once pending messages were delivered.
func (m *Manager) CloseAll() error {
	var err error

	m.inMu.Lock()
	for _, port := range m.ins {
		err = multierr.Append(err, port.handle.Stop())
	}
	m.ins = nil
	m.inMu.Unlock()
	m.events.Clear()

	m.outMu.Lock()
	outs := m.outs
	m.outs = nil
	m.outMu.Unlock()

	for _, port := range outs {
		err = multierr.Append(err, m.stopOutput(port))
	}
	return err
}
