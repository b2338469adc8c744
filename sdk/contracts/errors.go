package contracts

import "errors"

// Configuration errors. The engine stays closed and the call can be retried with corrected input.
var (
	ErrInvalidProcessMode = errors.New("invalid process mode")
	ErrNoDeviceSelected   = errors.New("audio device has not been selected yet and a default one is not available")
	ErrDeviceOpenFailed   = errors.New("failed to create device")
	ErrDeviceConfigFailed = errors.New("failed to configure device")
	ErrDeviceHasNoOutputs = errors.New("selected device does not have any outputs")
	ErrUnknownDriver      = errors.New("unknown audio driver")
	ErrEmptyClientName    = errors.New("client name must not be empty")
	ErrInvalidMIDIBackend = errors.New("unknown MIDI back-end")
)

// ErrReconfigureFatal means both the new parameters and the rollback failed. The engine is
// closed and must be torn down and initialized again.
var ErrReconfigureFatal = errors.New("device reconfiguration failed and rollback was impossible")

var (
	ErrNotPlaying            = errors.New("device is not playing")
	ErrNotRunning            = errors.New("engine is not running")
	ErrAlreadyRunning        = errors.New("engine is already running")
	ErrGraphNotReady         = errors.New("processing graph is not ready")
	ErrEndpointNotFound      = errors.New("MIDI endpoint not found")
	ErrInvalidConnectionType = errors.New("invalid external connection type")
)
