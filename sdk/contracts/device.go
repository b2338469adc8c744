package contracts

// AudioCallback receives the real-time notifications of a playing AudioDevice.
//
// Process is invoked once per period on the device's own thread. inputs and outputs hold one
// slice per channel; neither is owned by the callback and both are only valid for the duration
// of the call.
type AudioCallback interface {
	Process(inputs, outputs [][]float32, nframes uint32)
	DeviceError(message string)
}

// AudioDevice is one opened (or openable) hardware or virtual audio device.
type AudioDevice interface {
	Name() string
	InputChannelNames() []string
	OutputChannelNames() []string

	// Open configures the device with all listed channels enabled. The device may snap the
	// requested values to the closest ones it supports.
	Open(inputChannels, outputChannels int, sampleRate float64, bufferSize uint32) error
	Close()
	IsOpen() bool

	// Start registers the callback and starts the device thread.
	Start(callback AudioCallback) error
	// Stop halts the device thread. It does not return until the callback has ceased.
	Stop()
	IsPlaying() bool

	CurrentBufferSize() uint32
	CurrentSampleRate() float64
	AvailableBufferSizes() []uint32
	AvailableSampleRates() []float64

	// XrunCount is a monotonic hardware counter; negative means unsupported.
	XrunCount() int

	HasControlPanel() bool
	ShowControlPanel() bool
}

// DeviceDriver is one audio back-end type (ALSA, CoreAudio, Dummy, ...).
type DeviceDriver interface {
	TypeName() string
	ScanForDevices()
	DeviceNames() []string
	// DefaultDeviceIndex returns -1 when there is no default device.
	DefaultDeviceIndex() int
	// CreateDevice returns nil when the device cannot be created.
	CreateDevice(name string) AudioDevice
	Close() error
}
