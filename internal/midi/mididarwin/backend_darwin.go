//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrInvalidMIDIDevice   = errors.New("invalid MIDI device")
	ErrMIDIConnectionError = errors.New("error connecting to MIDI device")
	ErrCreateInputPort     = errors.New("error creating input port")
	ErrCreateOutputPort    = errors.New("error creating output port")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// Backend manages MIDI endpoints through CoreMIDI.
type Backend struct {
	logger contracts.Logger
	client coremidi.Client
}

// New creates the CoreMIDI client the endpoints are opened with.
func New(logger contracts.Logger, clientName string) (contracts.MIDIBackend, error) {
	client, err := coremidi.NewClient(clientName)
	if err != nil {
		return nil, err
	}
	logger.Info("MIDI client successfully created", logger.Field().String("client", clientName))

	return &Backend{logger: logger, client: client}, nil
}

// Name implements contracts.MIDIBackend.
func (b *Backend) Name() string {
	return Name
}

// Inputs implements contracts.MIDIBackend.
func (b *Backend) Inputs() ([]contracts.DeviceInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}

	devices := make([]contracts.DeviceInfo, len(sources))
	for i, source := range sources {
		entity := source.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         source.Name(),
			Identifier:   fmt.Sprintf("%d:%s", i, source.Name()),
			EntityName:   entity.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return devices, nil
}

// Outputs implements contracts.MIDIBackend.
func (b *Backend) Outputs() ([]contracts.DeviceInfo, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}

	devices := make([]contracts.DeviceInfo, len(destinations))
	for i, destination := range destinations {
		entity := destination.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         destination.Name(),
			Identifier:   fmt.Sprintf("%d:%s", i, destination.Name()),
			EntityName:   entity.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return devices, nil
}

// OpenInput implements contracts.MIDIBackend. The source is connected on Start.
func (b *Backend) OpenInput(identifier string, handler contracts.MIDIInputHandler) (contracts.MIDIInput, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error retrieving MIDI sources: %w", err)
	}

	for i, source := range sources {
		if fmt.Sprintf("%d:%s", i, source.Name()) != identifier {
			continue
		}

		in := &input{logger: b.logger, source: source, handler: handler}
		in.port, err = coremidi.NewInputPort(b.client, source.Name(), in.handleMIDIMessage)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateInputPort, err)
		}
		return in, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidMIDIDevice, identifier)
}

// OpenOutput implements contracts.MIDIBackend.
func (b *Backend) OpenOutput(identifier string) (contracts.MIDIOutput, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error retrieving MIDI destinations: %w", err)
	}

	for i, destination := range destinations {
		if fmt.Sprintf("%d:%s", i, destination.Name()) != identifier {
			continue
		}

		port, err := coremidi.NewOutputPort(b.client, destination.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
		}
		return &output{port: port, destination: destination}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidMIDIDevice, identifier)
}

// Close implements contracts.MIDIBackend.
func (b *Backend) Close() error {
	return nil
}

type input struct {
	logger   contracts.Logger
	source   coremidi.Source
	port     coremidi.InputPort
	handler  contracts.MIDIInputHandler
	mu       sync.Mutex
	portConn internalPortConnection
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func (in *input) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.portConn != nil {
		return nil
	}

	conn, err := in.port.Connect(in.source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}
	in.portConn = conn
	return nil
}

// handleMIDIMessage runs on the CoreMIDI thread.
func (in *input) handleMIDIMessage(_ coremidi.Source, packet coremidi.Packet) {
	in.wg.Add(1)
	defer in.wg.Done()

	in.handler(packet.Data)
}

// Stop disconnects the source and waits for deliveries in flight. It runs once.
func (in *input) Stop() error {
	in.stopOnce.Do(func() {
		in.mu.Lock()
		defer in.mu.Unlock()

		if in.portConn != nil {
			in.portConn.Disconnect()
			in.portConn = nil
		}
		in.wg.Wait()
	})
	return nil
}

type output struct {
	mu          sync.Mutex
	port        coremidi.OutputPort
	destination coremidi.Destination
}

func (out *output) Send(data []byte) error {
	out.mu.Lock()
	defer out.mu.Unlock()

	packet := coremidi.NewPacket(data, 0)
	return packet.Send(&out.port, &out.destination)
}

func (out *output) Close() error {
	return nil
}
