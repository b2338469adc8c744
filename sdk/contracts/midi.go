package contracts

// MIDIDirection tells inputs and outputs apart.
type MIDIDirection uint8

const (
	// MIDIIn is an endpoint the engine receives MIDI from.
	MIDIIn MIDIDirection = iota
	// MIDIOut is an endpoint the engine sends MIDI to.
	MIDIOut
)

func (d MIDIDirection) String() string {
	if d == MIDIOut {
		return "out"
	}
	return "in"
}

// MIDIInputHandler is called by a MIDI back-end for every message received on an input.
// It runs on a back-end owned thread.
type MIDIInputHandler func(data []byte)

// MIDIInput is an opened native MIDI input handle.
type MIDIInput interface {
	Start() error
	// Stop stops delivery and releases the native handle. After Stop returns the handler
	// is never called again.
	Stop() error
}

// MIDIOutput is an opened native MIDI output handle.
type MIDIOutput interface {
	Send(data []byte) error
	Close() error
}

// MIDIBackend enumerates and opens system MIDI endpoints.
type MIDIBackend interface {
	Name() string
	Inputs() ([]DeviceInfo, error)
	Outputs() ([]DeviceInfo, error)
	OpenInput(identifier string, handler MIDIInputHandler) (MIDIInput, error)
	OpenOutput(identifier string) (MIDIOutput, error)
	Close() error
}
