package contracts

// Graph is the processing graph fed by the engine. It is an external collaborator: the engine
// only creates it, drives it once per period and forwards topology and format changes.
type Graph interface {
	// Create allocates the graph for the given external channel counts.
	Create(audioIns, audioOuts uint32) error
	Destroy()
	IsReady() bool

	// Process renders one period. eventsIn is terminated by an EventNull entry or its length;
	// the graph writes produced events to eventsOut, terminating early with EventNull.
	Process(inputs, outputs [][]float32, eventsIn, eventsOut []EngineEvent, nframes uint32)

	BufferSizeChanged(bufferSize uint32)
	SampleRateChanged(sampleRate float64)

	// ConnectExternalAudio and DisconnectExternalAudio handle the audio connection types of
	// ConnectExternalGraphPort; MIDI connection types never reach the graph.
	ConnectExternalAudio(connectionType ConnectionType, portID uint32, portName string) bool
	DisconnectExternalAudio(connectionType ConnectionType, portID uint32, portName string) bool
}

// InternalRefresher is implemented by graphs that keep their own patchbay model, used in
// patchbay mode when the external view is not requested.
type InternalRefresher interface {
	RefreshInternal(sendHost, sendExternal bool) error
}

// ConnectionType selects which external endpoint a connect/disconnect request is about.
type ConnectionType uint32

const (
	ConnectionNull ConnectionType = iota
	ConnectionAudioIn1
	ConnectionAudioIn2
	ConnectionAudioOut1
	ConnectionAudioOut2
	ConnectionMIDIInput
	ConnectionMIDIOutput
)

// External patchbay groups.
const (
	GroupNull uint32 = iota
	GroupEngine
	GroupAudioIn
	GroupAudioOut
	GroupMIDIIn
	GroupMIDIOut
)

// Ports of the engine's own patchbay group.
const (
	EnginePortNull uint32 = iota
	EnginePortAudioIn1
	EnginePortAudioIn2
	EnginePortAudioOut1
	EnginePortAudioOut2
	EnginePortMIDIIn
	EnginePortMIDIOut
)
