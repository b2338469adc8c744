// Package patchbay keeps the external view of the engine's audio and MIDI endpoints.
//
// The registry is rebuilt wholesale on every refresh: it is cleared, repopulated from a
// Topology snapshot and its connection records re-derived. It never holds a mix of old and
// new topology.
package patchbay

import (
	"fmt"
	"strings"
	"sync"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// DefaultLoopbackNames lists MIDI endpoints created by ALSA/JACK bridges that would loop the
// engine back into itself.
var DefaultLoopbackNames = []string{"a2jmidid - port"}

// PortDescriptor is one external endpoint exposed to the graph layer.
type PortDescriptor struct {
	Group      uint32
	Port       uint32
	Name       string
	Identifier string
}

// Connection links (GroupA, PortA) to (GroupB, PortB).
type Connection struct {
	ID     uint32
	GroupA uint32
	PortA  uint32
	GroupB uint32
	PortB  uint32
}

// String formats the connection as "groupA:portA:groupB:portB".
func (c Connection) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", c.GroupA, c.PortA, c.GroupB, c.PortB)
}

// Topology is a snapshot of everything a refresh needs.
type Topology struct {
	ClientName   string
	DeviceName   string
	AudioIns     []string
	AudioOuts    []string
	MIDIIns      []contracts.DeviceInfo
	MIDIOuts     []contracts.DeviceInfo
	OpenMIDIIns  []contracts.DeviceInfo
	OpenMIDIOuts []contracts.DeviceInfo
}

// Emitter delivers a notification to the host and/or external observer.
type Emitter func(sendHost, sendExternal bool, n contracts.Notification)

// Registry is the canonical mapping of external endpoints to port ids and their connections.
type Registry struct {
	mu            sync.RWMutex
	loopbackNames []string

	audioIns  []PortDescriptor
	audioOuts []PortDescriptor
	midiIns   []PortDescriptor
	midiOuts  []PortDescriptor

	connections      []Connection
	lastConnectionID uint32
}

// NewRegistry returns an empty registry hiding MIDI endpoints whose name is in loopbackNames.
func NewRegistry(loopbackNames []string) *Registry {
	return &Registry{loopbackNames: loopbackNames}
}

// Refresh rebuilds the registry from topo. When sendHost or sendExternal is set, the clients
// and ports are announced through emit before connections. A connection-added notification is
// emitted for every derived connection record regardless, routed by the same flags.
//
// emit runs after the registry is unlocked, so observers may query it.
func (r *Registry) Refresh(topo Topology, sendHost, sendExternal bool, emit Emitter) {
	pending := r.rebuild(topo, sendHost || sendExternal)

	if emit == nil {
		return
	}
	for _, n := range pending {
		emit(sendHost, sendExternal, n)
	}
}

// rebuild repopulates the registry under the write lock and returns the notifications to send.
func (r *Registry) rebuild(topo Topology, announce bool) []contracts.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()

	for i, name := range topo.AudioIns {
		r.audioIns = append(r.audioIns, PortDescriptor{Group: contracts.GroupAudioIn, Port: uint32(i + 1), Name: name})
	}
	for i, name := range topo.AudioOuts {
		r.audioOuts = append(r.audioOuts, PortDescriptor{Group: contracts.GroupAudioOut, Port: uint32(i + 1), Name: name})
	}
	r.midiIns = r.midiPorts(contracts.GroupMIDIIn, topo.MIDIIns)
	r.midiOuts = r.midiPorts(contracts.GroupMIDIOut, topo.MIDIOuts)

	var pending []contracts.Notification
	if announce {
		pending = r.announce(DeviceLabel(topo.DeviceName), topo.ClientName, pending)
	}

	for _, in := range topo.OpenMIDIIns {
		portID, ok := r.portIDFromIdentifier(true, in.Identifier)
		if !ok {
			continue
		}
		pending = r.addConnection(contracts.GroupMIDIIn, portID, contracts.GroupEngine, contracts.EnginePortMIDIIn, pending)
	}

	for _, out := range topo.OpenMIDIOuts {
		portID, ok := r.portIDFromIdentifier(false, out.Identifier)
		if !ok {
			continue
		}
		pending = r.addConnection(contracts.GroupEngine, contracts.EnginePortMIDIOut, contracts.GroupMIDIOut, portID, pending)
	}

	return pending
}

// Clear drops every descriptor and connection record. The connection id counter is kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.clear()
	r.mu.Unlock()
}

func (r *Registry) clear() {
	r.audioIns = r.audioIns[:0]
	r.audioOuts = r.audioOuts[:0]
	r.midiIns = r.midiIns[:0]
	r.midiOuts = r.midiOuts[:0]
	r.connections = r.connections[:0]
}

// midiPorts numbers endpoints by enumeration index; hidden loopback endpoints keep their slot.
func (r *Registry) midiPorts(group uint32, infos []contracts.DeviceInfo) []PortDescriptor {
	var ports []PortDescriptor
	for i, info := range infos {
		if r.isLoopback(info.Name) {
			continue
		}
		ports = append(ports, PortDescriptor{Group: group, Port: uint32(i + 1), Name: info.Name, Identifier: info.Identifier})
	}
	return ports
}

func (r *Registry) isLoopback(name string) bool {
	for _, loopback := range r.loopbackNames {
		if name == loopback {
			return true
		}
	}
	return false
}

func (r *Registry) announce(label, clientName string, pending []contracts.Notification) []contracts.Notification {
	client := func(group uint32, name string) {
		pending = append(pending, contracts.Notification{Opcode: contracts.OpcodePatchbayClientAdded, ID: group, ValueStr: name})
	}
	port := func(group, portID, hints uint32, name string) {
		pending = append(pending, contracts.Notification{
			Opcode:   contracts.OpcodePatchbayPortAdded,
			ID:       group,
			Value1:   int(portID),
			Value2:   int(hints),
			ValueStr: name,
		})
	}

	client(contracts.GroupEngine, clientName)
	port(contracts.GroupEngine, contracts.EnginePortAudioIn1, contracts.PortIsInput|contracts.PortIsAudio, "audio-in1")
	port(contracts.GroupEngine, contracts.EnginePortAudioIn2, contracts.PortIsInput|contracts.PortIsAudio, "audio-in2")
	port(contracts.GroupEngine, contracts.EnginePortAudioOut1, contracts.PortIsAudio, "audio-out1")
	port(contracts.GroupEngine, contracts.EnginePortAudioOut2, contracts.PortIsAudio, "audio-out2")
	port(contracts.GroupEngine, contracts.EnginePortMIDIIn, contracts.PortIsInput|contracts.PortIsMIDI, "midi-in")
	port(contracts.GroupEngine, contracts.EnginePortMIDIOut, contracts.PortIsMIDI, "midi-out")

	// External capture ports are sources, so they are announced as outputs of their group.
	client(contracts.GroupAudioIn, fmt.Sprintf("Capture (%s)", label))
	for _, p := range r.audioIns {
		port(p.Group, p.Port, contracts.PortIsAudio, p.Name)
	}

	client(contracts.GroupAudioOut, fmt.Sprintf("Playback (%s)", label))
	for _, p := range r.audioOuts {
		port(p.Group, p.Port, contracts.PortIsInput|contracts.PortIsAudio, p.Name)
	}

	client(contracts.GroupMIDIIn, "Readable MIDI ports")
	for _, p := range r.midiIns {
		port(p.Group, p.Port, contracts.PortIsMIDI, p.Name)
	}

	client(contracts.GroupMIDIOut, "Writable MIDI ports")
	for _, p := range r.midiOuts {
		port(p.Group, p.Port, contracts.PortIsInput|contracts.PortIsMIDI, p.Name)
	}
	return pending
}

func (r *Registry) addConnection(groupA, portA, groupB, portB uint32, pending []contracts.Notification) []contracts.Notification {
	r.lastConnectionID++
	conn := Connection{ID: r.lastConnectionID, GroupA: groupA, PortA: portA, GroupB: groupB, PortB: portB}
	r.connections = append(r.connections, conn)

	return append(pending, contracts.Notification{
		Opcode:   contracts.OpcodePatchbayConnectionAdded,
		ID:       conn.ID,
		ValueStr: conn.String(),
	})
}

func (r *Registry) portIDFromIdentifier(isInput bool, identifier string) (uint32, bool) {
	ports := r.midiOuts
	if isInput {
		ports = r.midiIns
	}

	for _, p := range ports {
		if p.Identifier == identifier {
			return p.Port, true
		}
	}
	return 0, false
}

// PortIDFromIdentifier looks up a MIDI port by its stable identifier.
func (r *Registry) PortIDFromIdentifier(isInput bool, identifier string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.portIDFromIdentifier(isInput, identifier)
}

// AudioIns returns a copy of the audio-in descriptors.
func (r *Registry) AudioIns() []PortDescriptor { return r.snapshot(&r.audioIns) }

// AudioOuts returns a copy of the audio-out descriptors.
func (r *Registry) AudioOuts() []PortDescriptor { return r.snapshot(&r.audioOuts) }

// MIDIIns returns a copy of the midi-in descriptors.
func (r *Registry) MIDIIns() []PortDescriptor { return r.snapshot(&r.midiIns) }

// MIDIOuts returns a copy of the midi-out descriptors.
func (r *Registry) MIDIOuts() []PortDescriptor { return r.snapshot(&r.midiOuts) }

func (r *Registry) snapshot(ports *[]PortDescriptor) []PortDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PortDescriptor(nil), (*ports)...)
}

// Connections returns a copy of the connection records.
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Connection(nil), r.connections...)
}

// LastConnectionID returns the highest connection id handed out so far.
func (r *Registry) LastConnectionID() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastConnectionID
}

// DeviceLabel strips everything from the first ", " so "Scarlett 2i2, USB Audio" becomes
// "Scarlett 2i2".
func DeviceLabel(deviceName string) string {
	label, _, _ := strings.Cut(deviceName, ", ")
	return label
}
