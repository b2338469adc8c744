// Package mididarwin is the CoreMIDI back-end. On other systems New fails with
// ErrUnsupportedPlatform.
package mididarwin

// Name identifies this back-end in configuration files.
const Name = "coremidi"
