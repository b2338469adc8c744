// Package midivirtual is an in-memory MIDI back-end. Endpoints are added by the caller,
// input messages are injected by hand and output messages are recorded.
package midivirtual

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// Name identifies this back-end in configuration files.
const Name = "virtual"

var (
	// ErrUnknownEndpoint is returned when opening an identifier that was never added.
	ErrUnknownEndpoint = errors.New("unknown virtual endpoint")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("virtual endpoint closed")
)

// Backend is the in-memory back-end. The zero value is not usable; call New.
type Backend struct {
	mu      sync.Mutex
	inputs  []contracts.DeviceInfo
	outputs []contracts.DeviceInfo

	openInputs  map[string]*Input
	openOutputs map[string]*Output
	sent        map[string][][]byte
}

// New returns an empty back-end.
func New() *Backend {
	return &Backend{
		openInputs:  make(map[string]*Input),
		openOutputs: make(map[string]*Output),
		sent:        make(map[string][][]byte),
	}
}

// Name implements contracts.MIDIBackend.
func (b *Backend) Name() string {
	return Name
}

// AddInput makes an input endpoint visible.
func (b *Backend) AddInput(name, identifier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs = append(b.inputs, contracts.DeviceInfo{Name: name, Identifier: identifier})
}

// AddOutput makes an output endpoint visible.
func (b *Backend) AddOutput(name, identifier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs = append(b.outputs, contracts.DeviceInfo{Name: name, Identifier: identifier})
}

// Unplug removes an endpoint from the enumeration. Open handles stay valid.
func (b *Backend) Unplug(identifier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs = without(b.inputs, identifier)
	b.outputs = without(b.outputs, identifier)
}

func without(infos []contracts.DeviceInfo, identifier string) []contracts.DeviceInfo {
	kept := infos[:0]
	for _, info := range infos {
		if info.Identifier != identifier {
			kept = append(kept, info)
		}
	}
	return kept
}

// Inputs implements contracts.MIDIBackend.
func (b *Backend) Inputs() ([]contracts.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]contracts.DeviceInfo(nil), b.inputs...), nil
}

// Outputs implements contracts.MIDIBackend.
func (b *Backend) Outputs() ([]contracts.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]contracts.DeviceInfo(nil), b.outputs...), nil
}

// OpenInput implements contracts.MIDIBackend.
func (b *Backend) OpenInput(identifier string, handler contracts.MIDIInputHandler) (contracts.MIDIInput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !contains(b.inputs, identifier) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, identifier)
	}

	in := &Input{backend: b, identifier: identifier, handler: handler}
	b.openInputs[identifier] = in
	return in, nil
}

// OpenOutput implements contracts.MIDIBackend.
func (b *Backend) OpenOutput(identifier string) (contracts.MIDIOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !contains(b.outputs, identifier) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, identifier)
	}

	out := &Output{backend: b, identifier: identifier}
	b.openOutputs[identifier] = out
	return out, nil
}

func contains(infos []contracts.DeviceInfo, identifier string) bool {
	for _, info := range infos {
		if info.Identifier == identifier {
			return true
		}
	}
	return false
}

// Close implements contracts.MIDIBackend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openInputs = make(map[string]*Input)
	b.openOutputs = make(map[string]*Output)
	return nil
}

// Inject delivers data to the open, started input with identifier on the calling goroutine.
// It reports whether a handler received it.
func (b *Backend) Inject(identifier string, data []byte) bool {
	b.mu.Lock()
	in := b.openInputs[identifier]
	b.mu.Unlock()

	if in == nil {
		return false
	}
	return in.deliver(data)
}

// Sent returns a copy of the messages sent to the output with identifier.
func (b *Backend) Sent(identifier string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.sent[identifier]...)
}

// OpenCount returns the number of open input and output handles.
func (b *Backend) OpenCount() (inputs, outputs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.openInputs), len(b.openOutputs)
}

// Input is an open virtual input.
type Input struct {
	backend    *Backend
	identifier string
	handler    contracts.MIDIInputHandler

	mu      sync.Mutex
	started bool
	stopped bool
}

// Start implements contracts.MIDIInput.
func (in *Input) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped {
		return ErrClosed
	}
	in.started = true
	return nil
}

// Stop implements contracts.MIDIInput. A delivery in flight completes before Stop returns.
func (in *Input) Stop() error {
	in.mu.Lock()
	in.started = false
	in.stopped = true
	in.mu.Unlock()

	in.backend.mu.Lock()
	if in.backend.openInputs[in.identifier] == in {
		delete(in.backend.openInputs, in.identifier)
	}
	in.backend.mu.Unlock()
	return nil
}

func (in *Input) deliver(data []byte) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return false
	}
	in.handler(data)
	return true
}

// Output is an open virtual output.
type Output struct {
	backend    *Backend
	identifier string

	mu     sync.Mutex
	closed bool
}

// Send implements contracts.MIDIOutput.
func (out *Output) Send(data []byte) error {
	out.mu.Lock()
	closed := out.closed
	out.mu.Unlock()
	if closed {
		return ErrClosed
	}

	out.backend.mu.Lock()
	out.backend.sent[out.identifier] = append(out.backend.sent[out.identifier], append([]byte(nil), data...))
	out.backend.mu.Unlock()
	return nil
}

// Close implements contracts.MIDIOutput.
func (out *Output) Close() error {
	out.mu.Lock()
	out.closed = true
	out.mu.Unlock()

	out.backend.mu.Lock()
	if out.backend.openOutputs[out.identifier] == out {
		delete(out.backend.openOutputs, out.identifier)
	}
	out.backend.mu.Unlock()
	return nil
}
