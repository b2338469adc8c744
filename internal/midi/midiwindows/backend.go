// Package midiwindows is the winmm MIDI back-end. On other systems New fails with
// ErrUnsupportedPlatform.
package midiwindows

// Name identifies this back-end in configuration files.
const Name = "winmm"

// shortMessageLength returns the length of a channel or system common message from its status byte.
func shortMessageLength(status byte) int {
	switch {
	case status >= 0xF8, status == 0xF6:
		return 1
	case status == 0xF1, status == 0xF3:
		return 2
	case status >= 0xF0:
		return 3
	case status&0xF0 == 0xC0, status&0xF0 == 0xD0:
		return 2
	}
	return 3
}
