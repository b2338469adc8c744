package contracts

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"
)

const (
	// MaxEventCount is the fixed capacity of the per-period input and output event buffers.
	MaxEventCount = 2048
	// MIDIDataSize is the largest MIDI message stored inline in an event.
	MIDIDataSize = 4
)

// Channel voice status bytes, without the channel nibble.
const (
	statusControlChange uint8 = 0xB0
	statusProgramChange uint8 = 0xC0
)

// Controller numbers with a dedicated control event type.
const (
	ccBankSelect  uint8 = 0x00
	ccAllSoundOff uint8 = 0x78
	ccAllNotesOff uint8 = 0x7B
)

// RawMIDIEvent is a MIDI message captured on an input endpoint, stamped with the absolute
// render frame at which it arrived.
type RawMIDIEvent struct {
	Time uint64
	Size uint8
	Data [MIDIDataSize]byte
}

// NewRawMIDIEvent copies data into a RawMIDIEvent. It reports false for empty messages and
// messages that do not fit inline.
func NewRawMIDIEvent(time uint64, data []byte) (RawMIDIEvent, bool) {
	if len(data) == 0 || len(data) > MIDIDataSize {
		return RawMIDIEvent{}, false
	}

	event := RawMIDIEvent{Time: time, Size: uint8(len(data))}
	copy(event.Data[:], data)
	return event, true
}

// EngineEventType is the kind of an EngineEvent.
type EngineEventType uint8

const (
	// EventNull terminates a scan of a fixed-size event buffer.
	EventNull EngineEventType = iota
	// EventControl is a control event (parameter, bank, program, panic).
	EventControl
	// EventMIDI is a raw MIDI message.
	EventMIDI
)

// ControlEventType is the kind of an EventControl.
type ControlEventType uint8

const (
	ControlNull ControlEventType = iota
	ControlParameter
	ControlMIDIBank
	ControlMIDIProgram
	ControlAllSoundOff
	ControlAllNotesOff
)

// ControlEvent carries a normalized control value. Value is in [0, 1] for parameters.
type ControlEvent struct {
	Type  ControlEventType
	Param uint16
	Value float32
}

// MIDIEvent is a raw MIDI message stored inline.
type MIDIEvent struct {
	Port uint8
	Size uint8
	Data [MIDIDataSize]byte
}

// EngineEvent is the unit exchanged with the processing graph. Time is a frame offset inside
// the current period.
type EngineEvent struct {
	Type    EngineEventType
	Time    uint32
	Channel uint8
	Ctrl    ControlEvent
	MIDI    MIDIEvent
}

func (e EngineEvent) String() string {
	switch e.Type {
	case EventControl:
		return fmt.Sprintf("Control{type:%d, ch:%d, param:%d, value:%.3f, time:%d}",
			e.Ctrl.Type, e.Channel, e.Ctrl.Param, e.Ctrl.Value, e.Time)
	case EventMIDI:
		return fmt.Sprintf("MIDI{ch:%d, data:% X, time:%d}", e.Channel, e.MIDI.Data[:e.MIDI.Size], e.Time)
	}
	return "Null"
}

// FillFromMIDIData decodes a MIDI message into e. Controller and program changes become
// control events; everything else is kept as a raw MIDI event. The event time is left untouched.
func (e *EngineEvent) FillFromMIDIData(data []byte, port uint8) {
	e.Ctrl = ControlEvent{}
	e.MIDI = MIDIEvent{}

	if len(data) == 0 {
		e.Type = EventNull
		return
	}

	var channel, controller, value, program uint8
	msg := midi.Message(data)

	switch {
	case msg.GetControlChange(&channel, &controller, &value):
		e.Type = EventControl
		e.Channel = channel

		switch controller {
		case ccBankSelect:
			e.Ctrl = ControlEvent{Type: ControlMIDIBank, Param: uint16(value)}
		case ccAllSoundOff:
			e.Ctrl = ControlEvent{Type: ControlAllSoundOff}
		case ccAllNotesOff:
			e.Ctrl = ControlEvent{Type: ControlAllNotesOff}
		default:
			e.Ctrl = ControlEvent{Type: ControlParameter, Param: uint16(controller), Value: float32(value) / 127}
		}

	case msg.GetProgramChange(&channel, &program):
		e.Type = EventControl
		e.Channel = channel
		e.Ctrl = ControlEvent{Type: ControlMIDIProgram, Param: uint16(program)}

	default:
		e.Type = EventMIDI
		if data[0] < 0xF0 {
			e.Channel = data[0] & 0x0F
		} else {
			e.Channel = 0
		}

		size := len(data)
		if size > MIDIDataSize {
			size = MIDIDataSize
		}
		e.MIDI.Port = port
		e.MIDI.Size = uint8(size)
		copy(e.MIDI.Data[:], data[:size])
	}
}

// ConvertToMIDIData encodes a control event as MIDI bytes into buf and returns the size written.
// It returns 0 for control events that have no MIDI representation. It does not allocate.
func (c ControlEvent) ConvertToMIDIData(channel uint8, buf *[MIDIDataSize]byte) uint8 {
	status := channel & 0x0F

	switch c.Type {
	case ControlParameter:
		if c.Param >= uint16(ccAllSoundOff) || c.Param == uint16(ccBankSelect) {
			return 0
		}
		value := math.Round(float64(c.Value) * 127)
		value = math.Max(0, math.Min(127, value))
		return controlChange(buf, status, uint8(c.Param), uint8(value))
	case ControlMIDIBank:
		return controlChange(buf, status, ccBankSelect, uint8(c.Param&0x7F))
	case ControlMIDIProgram:
		buf[0] = statusProgramChange | status
		buf[1] = uint8(c.Param & 0x7F)
		return 2
	case ControlAllSoundOff:
		return controlChange(buf, status, ccAllSoundOff, 0)
	case ControlAllNotesOff:
		return controlChange(buf, status, ccAllNotesOff, 0)
	}
	return 0
}

func controlChange(buf *[MIDIDataSize]byte, status, controller, value uint8) uint8 {
	buf[0] = statusControlChange | status
	buf[1] = controller
	buf[2] = value
	return 3
}
