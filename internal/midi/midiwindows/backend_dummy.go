//go:build !windows
// +build !windows

package midiwindows

import (
	"errors"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// ErrUnsupportedPlatform is returned by New on systems without winmm.
var ErrUnsupportedPlatform = errors.New("winmm MIDI is only available on Windows")

// New fails on non-Windows systems.
func New(logger contracts.Logger) (contracts.MIDIBackend, error) {
	logger.Debug("winmm MIDI back-end requested on a non-Windows system")
	return nil, ErrUnsupportedPlatform
}
