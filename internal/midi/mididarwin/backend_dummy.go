//go:build !darwin
// +build !darwin

package mididarwin

import (
	"errors"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// ErrUnsupportedPlatform is returned by New on systems without CoreMIDI.
var ErrUnsupportedPlatform = errors.New("CoreMIDI is only available on macOS")

// New fails on non-macOS systems.
func New(logger contracts.Logger, clientName string) (contracts.MIDIBackend, error) {
	logger.Debug("CoreMIDI back-end requested on a non-macOS system", logger.Field().String("client", clientName))
	return nil, ErrUnsupportedPlatform
}
