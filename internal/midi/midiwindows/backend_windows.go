//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type (
	HMIDIIN  windows.Handle
	HMIDIOUT windows.Handle
)

// Constants for callback flags
const (
	CALLBACK_NULL     = 0x00000000 // No callback
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

// Struct representing MIDI input device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

// Struct representing MIDI output device capabilities
type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

// Load the winmm.dll library and required functions
var (
	winmm                 = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs  = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps  = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen        = winmm.NewProc("midiInOpen")
	procMidiInStart       = winmm.NewProc("midiInStart")
	procMidiInStop        = winmm.NewProc("midiInStop")
	procMidiInClose       = winmm.NewProc("midiInClose")
	procMidiOutGetNumDevs = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen       = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg   = winmm.NewProc("midiOutShortMsg")
	procMidiOutClose      = winmm.NewProc("midiOutClose")
)

// ErrLongMessage is returned for messages that do not fit a winmm short message.
var ErrLongMessage = errors.New("winmm back-end only sends short MIDI messages")

// midiInCallbackPtr is shared by every input: windows.NewCallback slots are never released.
var (
	callbackOnce      sync.Once
	midiInCallbackPtr uintptr

	inputsMu  sync.RWMutex
	inputs    = make(map[uintptr]*input)
	nextInput uintptr
)

// Backend enumerates and opens winmm MIDI devices.
type Backend struct {
	logger contracts.Logger
}

// New creates the winmm back-end.
func New(logger contracts.Logger) (contracts.MIDIBackend, error) {
	if err := winmm.Load(); err != nil {
		return nil, fmt.Errorf("load winmm.dll: %w", err)
	}
	callbackOnce.Do(func() {
		midiInCallbackPtr = windows.NewCallback(midiInCallback)
	})
	logger.Info("MIDI back-end created for Windows")
	return &Backend{logger: logger}, nil
}

// Name implements contracts.MIDIBackend.
func (b *Backend) Name() string {
	return Name
}

// Inputs implements contracts.MIDIBackend.
func (b *Backend) Inputs() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiInGetNumDevs.Call()
	numDevices := uint32(r0)

	devices := make([]contracts.DeviceInfo, 0, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(uintptr(i), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
		if r1 != 0 {
			b.logger.Warn("Failed to get information for MIDI input", b.logger.Field().Uint32("index", i))
			continue
		}
		devices = append(devices, deviceInfo(i, caps.szPname[:], caps.wMid, caps.wPid))
	}
	return devices, nil
}

// Outputs implements contracts.MIDIBackend.
func (b *Backend) Outputs() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	numDevices := uint32(r0)

	devices := make([]contracts.DeviceInfo, 0, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiOutCaps
		r1, _, _ := procMidiOutGetDevCaps.Call(uintptr(i), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
		if r1 != 0 {
			b.logger.Warn("Failed to get information for MIDI output", b.logger.Field().Uint32("index", i))
			continue
		}
		devices = append(devices, deviceInfo(i, caps.szPname[:], caps.wMid, caps.wPid))
	}
	return devices, nil
}

func deviceInfo(index uint32, pname []uint16, mid, pid uint16) contracts.DeviceInfo {
	name := windows.UTF16ToString(pname)
	return contracts.DeviceInfo{
		Name:         name,
		Identifier:   fmt.Sprintf("%d:%s", index, name),
		EntityName:   name,
		Manufacturer: fmt.Sprintf("MID: %d PID: %d", mid, pid),
	}
}

func deviceIndex(identifier string) (uintptr, error) {
	index, _, ok := strings.Cut(identifier, ":")
	if !ok {
		return 0, fmt.Errorf("malformed identifier %q", identifier)
	}
	id, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed identifier %q: %w", identifier, err)
	}
	return uintptr(id), nil
}

// OpenInput implements contracts.MIDIBackend.
func (b *Backend) OpenInput(identifier string, handler contracts.MIDIInputHandler) (contracts.MIDIInput, error) {
	deviceID, err := deviceIndex(identifier)
	if err != nil {
		return nil, err
	}

	in := &input{logger: b.logger, handler: handler}

	inputsMu.Lock()
	nextInput++
	in.key = nextInput
	inputs[in.key] = in
	inputsMu.Unlock()

	r1, _, callErr := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&in.handle)),
		deviceID,
		midiInCallbackPtr,
		in.key,
		uintptr(CALLBACK_FUNCTION|MIDI_IO_STATUS),
	)
	if r1 != 0 {
		in.unregister()
		return nil, fmt.Errorf("failed to open MIDI input %s: %v", identifier, callErr)
	}
	return in, nil
}

// OpenOutput implements contracts.MIDIBackend.
func (b *Backend) OpenOutput(identifier string) (contracts.MIDIOutput, error) {
	deviceID, err := deviceIndex(identifier)
	if err != nil {
		return nil, err
	}

	out := &output{}
	r1, _, callErr := procMidiOutOpen.Call(uintptr(unsafe.Pointer(&out.handle)), deviceID, 0, 0, CALLBACK_NULL)
	if r1 != 0 {
		return nil, fmt.Errorf("failed to open MIDI output %s: %v", identifier, callErr)
	}
	return out, nil
}

// Close implements contracts.MIDIBackend.
func (b *Backend) Close() error {
	return nil
}

type input struct {
	logger  contracts.Logger
	handler contracts.MIDIInputHandler
	handle  HMIDIIN
	key     uintptr

	// mu is held while the handler runs so Stop waits for a delivery in flight.
	mu      sync.Mutex
	started bool
}

func (in *input) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	r1, _, err := procMidiInStart.Call(uintptr(in.handle))
	if r1 != 0 {
		return fmt.Errorf("failed to start MIDI input: %v", err)
	}
	in.started = true
	return nil
}

func (in *input) Stop() error {
	in.mu.Lock()
	in.started = false
	in.mu.Unlock()

	r1, _, err := procMidiInStop.Call(uintptr(in.handle))
	if r1 != 0 {
		return fmt.Errorf("failed to stop MIDI input: %v", err)
	}
	r1, _, err = procMidiInClose.Call(uintptr(in.handle))
	if r1 != 0 {
		return fmt.Errorf("failed to close MIDI input: %v", err)
	}

	in.unregister()
	return nil
}

func (in *input) unregister() {
	inputsMu.Lock()
	delete(inputs, in.key)
	inputsMu.Unlock()
}

// midiInCallback processes incoming MIDI messages for every open input.
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	inputsMu.RLock()
	in := inputs[dwInstance]
	inputsMu.RUnlock()
	if in == nil {
		return 0
	}

	switch wMsg {
	case MIM_DATA, MIM_MOREDATA:
		status := byte(dwParam1 & 0xFF)
		msg := [3]byte{status, byte((dwParam1 >> 8) & 0xFF), byte((dwParam1 >> 16) & 0xFF)}

		in.mu.Lock()
		if in.started {
			in.handler(msg[:shortMessageLength(status)])
		}
		in.mu.Unlock()
	case MIM_ERROR, MIM_LONGERROR:
		in.logger.Error(fmt.Sprintf("MIDI error: msg=0x%X", wMsg))
	}

	return 0
}

type output struct {
	mu     sync.Mutex
	handle HMIDIOUT
}

func (out *output) Send(data []byte) error {
	if len(data) == 0 || len(data) > 3 {
		return ErrLongMessage
	}

	var packed uintptr
	for i, b := range data {
		packed |= uintptr(b) << (8 * i)
	}

	out.mu.Lock()
	defer out.mu.Unlock()

	r1, _, err := procMidiOutShortMsg.Call(uintptr(out.handle), packed)
	if r1 != 0 {
		return fmt.Errorf("failed to send MIDI message: %v", err)
	}
	return nil
}

func (out *output) Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()

	r1, _, err := procMidiOutClose.Call(uintptr(out.handle))
	if r1 != 0 {
		return fmt.Errorf("failed to close MIDI output: %v", err)
	}
	return nil
}
