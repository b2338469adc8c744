// Package midirtmidi is the portable MIDI back-end built on gomidi's rtmidi driver.
package midirtmidi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Name identifies this back-end in configuration files.
const Name = "rtmidi"

// ErrPortNotFound is returned when an identifier does not match an enumerated port.
var ErrPortNotFound = errors.New("rtmidi port not found")

// Backend enumerates and opens ports through rtmidi.
type Backend struct {
	mu     sync.Mutex
	logger contracts.Logger
	drv    *rtmididrv.Driver
}

// New creates the rtmidi driver.
func New(logger contracts.Logger) (contracts.MIDIBackend, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &Backend{logger: logger, drv: drv}, nil
}

// Name implements contracts.MIDIBackend.
func (b *Backend) Name() string {
	return Name
}

// identifier combines the port number and name, since names are not unique.
func identifier(port drivers.Port) string {
	return fmt.Sprintf("%d:%s", port.Number(), port.String())
}

// Inputs implements contracts.MIDIBackend.
func (b *Backend) Inputs() ([]contracts.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ins, err := b.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI inputs: %w", err)
	}

	infos := make([]contracts.DeviceInfo, len(ins))
	for i, in := range ins {
		infos[i] = contracts.DeviceInfo{Name: in.String(), Identifier: identifier(in)}
	}
	return infos, nil
}

// Outputs implements contracts.MIDIBackend.
func (b *Backend) Outputs() ([]contracts.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	outs, err := b.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI outputs: %w", err)
	}

	infos := make([]contracts.DeviceInfo, len(outs))
	for i, out := range outs {
		infos[i] = contracts.DeviceInfo{Name: out.String(), Identifier: identifier(out)}
	}
	return infos, nil
}

// OpenInput implements contracts.MIDIBackend. Delivery starts with Start.
func (b *Backend) OpenInput(id string, handler contracts.MIDIInputHandler) (contracts.MIDIInput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ins, err := b.drv.Ins()
	if err != nil {
		return nil, err
	}

	for _, in := range ins {
		if identifier(in) != id {
			continue
		}
		if err := in.Open(); err != nil {
			return nil, fmt.Errorf("open %q: %w", in.String(), err)
		}
		return &input{logger: b.logger, port: in, handler: handler}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPortNotFound, id)
}

// OpenOutput implements contracts.MIDIBackend.
func (b *Backend) OpenOutput(id string) (contracts.MIDIOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	outs, err := b.drv.Outs()
	if err != nil {
		return nil, err
	}

	for _, out := range outs {
		if identifier(out) != id {
			continue
		}
		if err := out.Open(); err != nil {
			return nil, fmt.Errorf("open %q: %w", out.String(), err)
		}
		return &output{port: out}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPortNotFound, id)
}

// Close implements contracts.MIDIBackend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drv.Close()
}

type input struct {
	mu      sync.Mutex
	logger  contracts.Logger
	port    drivers.In
	handler contracts.MIDIInputHandler
	stopFn  func()
}

func (in *input) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.stopFn != nil {
		return nil
	}

	stop, err := midi.ListenTo(in.port, func(msg midi.Message, _ int32) {
		in.handler(msg)
	}, midi.HandleError(func(listenErr error) {
		in.logger.Warn("MIDI listener error",
			in.logger.Field().String("port", in.port.String()),
			in.logger.Field().Error("error", listenErr))
	}))
	if err != nil {
		return fmt.Errorf("listen %q: %w", in.port.String(), err)
	}

	in.stopFn = stop
	return nil
}

func (in *input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.stopFn != nil {
		in.stopFn()
		in.stopFn = nil
	}
	return in.port.Close()
}

type output struct {
	port drivers.Out
}

func (out *output) Send(data []byte) error {
	return out.port.Send(data)
}

func (out *output) Close() error {
	return out.port.Close()
}
