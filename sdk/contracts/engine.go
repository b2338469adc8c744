package contracts

// Engine is the audio/MIDI engine driver.
type Engine interface {
	// Init opens the configured device, creates the graph and starts rendering.
	Init(clientName string) error
	// Close stops rendering and releases the device and every MIDI endpoint. Safe to call twice.
	Close() error
	IsRunning() bool
	IsOffline() bool
	DriverName() string

	BufferSize() uint32
	SampleRate() float64
	// SetBufferSizeAndSampleRate reconfigures a running engine. errors.Is(err, ErrReconfigureFatal)
	// means the engine is closed and must be reinitialized.
	SetBufferSizeAndSampleRate(bufferSize uint32, sampleRate float64) error
	ShowDeviceControlPanel() bool

	TotalXruns() uint32
	ClearXruns()
	// ReportXruns sends the current xrun count to the host observer.
	ReportXruns()

	PatchbayRefresh(sendHost, sendExternal, external bool) error
	ConnectExternalGraphPort(connectionType ConnectionType, portID uint32, portName string) bool
	DisconnectExternalGraphPort(connectionType ConnectionType, portID uint32, portName string) bool

	LastError() string
}
