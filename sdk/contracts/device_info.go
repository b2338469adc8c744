package contracts

// DeviceInfo contains information about a MIDI endpoint as enumerated by a MIDI back-end.
type DeviceInfo struct {
	Name         string // Display name, not guaranteed unique.
	Identifier   string // Stable low-level identifier used to open the endpoint.
	Manufacturer string // Device manufacturer, when the back-end reports one.
	EntityName   string // Name of the entity to which the endpoint belongs.
}

// DeviceHints is a bit set describing what a device allows to be changed.
type DeviceHints uint32

const (
	// HintVariableBufferSize marks devices whose buffer size can be chosen.
	HintVariableBufferSize DeviceHints = 1 << iota
	// HintVariableSampleRate marks devices whose sample rate can be chosen.
	HintVariableSampleRate
	// HintHasControlPanel marks devices with a vendor control panel.
	HintHasControlPanel
)

// Has reports whether every bit in h2 is set.
func (h DeviceHints) Has(h2 DeviceHints) bool {
	return h&h2 == h2
}

// DriverDeviceInfo is the capability set of one audio device.
//
// BufferSizes and SampleRates are 0-terminated, matching the capability query surface
// consumed by front-ends that iterate until the terminator.
type DriverDeviceInfo struct {
	Hints       DeviceHints
	BufferSizes []uint32
	SampleRates []float64
}

// FallbackBufferSizes is reported when a device does not advertise discrete buffer sizes.
var FallbackBufferSizes = []uint32{16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 0}

// FallbackSampleRates is reported when a device does not advertise sample rates.
var FallbackSampleRates = []float64{22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000, 0}
