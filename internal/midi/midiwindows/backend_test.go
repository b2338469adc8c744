package midiwindows

import "testing"

func TestShortMessageLength(t *testing.T) {
	tests := map[byte]int{
		0x90: 3, // note on
		0x80: 3, // note off
		0xB3: 3, // control change
		0xC0: 2, // program change
		0xD5: 2, // channel pressure
		0xE0: 3, // pitch bend
		0xF1: 2, // time code quarter frame
		0xF2: 3, // song position
		0xF3: 2, // song select
		0xF6: 1, // tune request
		0xF8: 1, // clock
		0xFE: 1, // active sensing
	}

	for status, want := range tests {
		if got := shortMessageLength(status); got != want {
			t.Errorf("shortMessageLength(0x%X) = %d, want %d", status, got, want)
		}
	}
}
