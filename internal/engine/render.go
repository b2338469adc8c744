package engine

import (
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// NormalizeEventTime maps an absolute frame time to an offset inside the period starting at
// periodStart. Events from before the period land on 0. Events at or after its end land on the
// last frame and future reports true.
func NormalizeEventTime(time, periodStart uint64, periodLength uint32) (offset uint32, future bool) {
	switch {
	case time < periodStart:
		return 0, false
	case time >= periodStart+uint64(periodLength):
		return periodLength - 1, true
	}
	return uint32(time - periodStart), false
}

// Process implements contracts.AudioCallback. It runs on the device thread once per period and
// does not allocate unless an event has to be logged.
func (e *Engine) Process(inputs, outputs [][]float32, nframes uint32) {
	for _, out := range outputs {
		clear(out)
	}

	if bufferSize := e.controller.BufferSize(); nframes != bufferSize {
		e.logger.Error("Period length does not match the configured buffer size",
			e.logger.Field().Uint32("nframes", nframes),
			e.logger.Field().Uint32("bufferSize", bufferSize))
		return
	}
	if nframes == 0 || !e.graph.IsReady() {
		return
	}

	clear(e.eventsIn)
	clear(e.eventsOut)

	e.periodStart = e.frame.Load()
	e.periodLength = nframes
	e.eventCount = 0
	e.events.TryDrain(e.drainFn)

	e.graph.Process(inputs, outputs, e.eventsIn, e.eventsOut, nframes)

	e.dispatchOutput(nframes)

	e.frame.Add(uint64(nframes))
}

// drainEvent converts one queued input message. Events past the per-period cap are dropped.
func (e *Engine) drainEvent(raw contracts.RawMIDIEvent) bool {
	if e.eventCount >= len(e.eventsIn) {
		return false
	}

	offset, future := NormalizeEventTime(raw.Time, e.periodStart, e.periodLength)
	if future {
		e.logger.Warn("MIDI event in the future",
			e.logger.Field().Uint64("time", raw.Time),
			e.logger.Field().Uint64("periodStart", e.periodStart),
			e.logger.Field().Uint32("periodLength", e.periodLength))
	}

	event := &e.eventsIn[e.eventCount]
	event.FillFromMIDIData(raw.Data[:raw.Size], 0)
	event.Time = offset
	e.eventCount++
	return true
}

// dispatchOutput fans the events produced by the graph out to every open MIDI output.
func (e *Engine) dispatchOutput(nframes uint32) {
	defer e.midi.EndDispatch()
	if e.midi.BeginDispatch() == 0 {
		return
	}

	var buf [contracts.MIDIDataSize]byte
	for i := range e.eventsOut {
		event := &e.eventsOut[i]
		position := float64(event.Time) / float64(nframes)

		switch event.Type {
		case contracts.EventNull:
			return
		case contracts.EventControl:
			if size := event.Ctrl.ConvertToMIDIData(event.Channel, &buf); size > 0 {
				e.midi.Dispatch(buf[:size], position)
			}
		case contracts.EventMIDI:
			e.midi.Dispatch(event.MIDI.Data[:event.MIDI.Size], position)
		}
	}
}

// DeviceError implements contracts.AudioCallback.
func (e *Engine) DeviceError(message string) {
	e.logger.Error("Audio device error", e.logger.Field().String("error", message))
	e.errMu.Lock()
	e.lastError = message
	e.errMu.Unlock()
	e.emit(true, true, contracts.Notification{Opcode: contracts.OpcodeError, ValueStr: message})
}
