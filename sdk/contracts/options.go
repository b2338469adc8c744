package contracts

// ProcessMode selects how the processing graph is organised.
type ProcessMode int

const (
	ProcessModeSingleClient ProcessMode = iota
	ProcessModeMultipleClients
	// ProcessModeContinuousRack chains processors in a fixed rack.
	ProcessModeContinuousRack
	// ProcessModePatchbay exposes a free-form patchbay graph.
	ProcessModePatchbay
	ProcessModeBridge
)

func (m ProcessMode) String() string {
	switch m {
	case ProcessModeSingleClient:
		return "single-client"
	case ProcessModeMultipleClients:
		return "multiple-clients"
	case ProcessModeContinuousRack:
		return "rack"
	case ProcessModePatchbay:
		return "patchbay"
	case ProcessModeBridge:
		return "bridge"
	}
	return "unknown"
}

// ParseProcessMode maps a configuration string to a ProcessMode.
func ParseProcessMode(name string) (ProcessMode, bool) {
	for mode := ProcessModeSingleClient; mode <= ProcessModeBridge; mode++ {
		if mode.String() == name {
			return mode, true
		}
	}
	return 0, false
}

// TransportMode selects the transport source. This driver always runs the internal transport.
type TransportMode int

const (
	TransportModeDisabled TransportMode = iota
	TransportModeInternal
)

// EngineOptions defines the configuration consumed by the engine driver.
type EngineOptions struct {
	Logger           Logger      // Logger for logging events and errors.
	LogLevel         LogLevel    // Level of logging to use.
	LogFilePath      string      // File path for logging if file logging is enabled.
	ClientName       string      // Name the engine registers under.
	AudioDevice      string      // Requested device name, empty selects the driver default.
	SampleRate       float64     // Requested sample rate.
	BufferSize       uint32      // Requested buffer size in frames.
	ProcessMode      ProcessMode // Must be ProcessModeContinuousRack or ProcessModePatchbay.
	TransportMode    TransportMode
	MIDIBackend      MIDIBackend // Back-end used to enumerate and open MIDI endpoints.
	Graph            Graph       // Processing graph driven by the render callback.
	HostObserver     Observer    // Receives notifications flagged for the host.
	ExternalObserver Observer    // Receives notifications flagged for the external observer.
	LoopbackNames    []string    // MIDI endpoint names hidden from the patchbay.
}

// Option is a function that modifies EngineOptions.
type Option func(*EngineOptions)

// WithLogger sets the logger for the engine.
func WithLogger(l Logger) Option {
	return func(opts *EngineOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the engine.
func WithLogLevel(level LogLevel) Option {
	return func(opts *EngineOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile sends the log output to a file.
func WithLogFile(path string) Option {
	return func(opts *EngineOptions) {
		opts.LogFilePath = path
	}
}

// WithClientName sets the name the engine registers under.
func WithClientName(name string) Option {
	return func(opts *EngineOptions) {
		opts.ClientName = name
	}
}

// WithAudioDevice selects the audio device by name.
func WithAudioDevice(name string) Option {
	return func(opts *EngineOptions) {
		opts.AudioDevice = name
	}
}

// WithSampleRate sets the requested sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(opts *EngineOptions) {
		opts.SampleRate = sampleRate
	}
}

// WithBufferSize sets the requested buffer size in frames.
func WithBufferSize(bufferSize uint32) Option {
	return func(opts *EngineOptions) {
		opts.BufferSize = bufferSize
	}
}

// WithProcessMode sets the process mode.
func WithProcessMode(mode ProcessMode) Option {
	return func(opts *EngineOptions) {
		opts.ProcessMode = mode
	}
}

// WithMIDIBackend overrides the MIDI back-end chosen for the current OS.
func WithMIDIBackend(backend MIDIBackend) Option {
	return func(opts *EngineOptions) {
		opts.MIDIBackend = backend
	}
}

// WithGraph sets the processing graph.
func WithGraph(graph Graph) Option {
	return func(opts *EngineOptions) {
		opts.Graph = graph
	}
}

// WithHostObserver sets the host notification receiver.
func WithHostObserver(observer Observer) Option {
	return func(opts *EngineOptions) {
		opts.HostObserver = observer
	}
}

// WithExternalObserver sets the external notification receiver.
func WithExternalObserver(observer Observer) Option {
	return func(opts *EngineOptions) {
		opts.ExternalObserver = observer
	}
}

// WithLoopbackFilter replaces the list of MIDI endpoint names hidden from the patchbay.
func WithLoopbackFilter(names ...string) Option {
	return func(opts *EngineOptions) {
		opts.LoopbackNames = names
	}
}
