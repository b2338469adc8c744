// Package graph holds the processing graph the engine host runs when no other graph is supplied.
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

type audioLink struct {
	connectionType contracts.ConnectionType
	portID         uint32
}

// Passthrough copies every input channel to the output channel of the same index and echoes the
// input events to the output event buffer.
type Passthrough struct {
	logger contracts.Logger

	ready     atomic.Bool
	audioIns  uint32
	audioOuts uint32

	bufferSize atomic.Uint32
	sampleRate atomic.Value

	mu        sync.Mutex
	links     map[audioLink]string
	refreshes int
}

// NewPassthrough returns a graph that still has to be created.
func NewPassthrough(logger contracts.Logger) *Passthrough {
	return &Passthrough{logger: logger, links: make(map[audioLink]string)}
}

// Create implements contracts.Graph.
func (p *Passthrough) Create(audioIns, audioOuts uint32) error {
	p.audioIns, p.audioOuts = audioIns, audioOuts
	p.ready.Store(true)
	p.logger.Debug("Passthrough graph created",
		p.logger.Field().Uint32("audioIns", audioIns),
		p.logger.Field().Uint32("audioOuts", audioOuts))
	return nil
}

// Destroy implements contracts.Graph.
func (p *Passthrough) Destroy() {
	p.ready.Store(false)

	p.mu.Lock()
	clear(p.links)
	p.mu.Unlock()
}

// IsReady implements contracts.Graph.
func (p *Passthrough) IsReady() bool {
	return p.ready.Load()
}

// Process implements contracts.Graph.
func (p *Passthrough) Process(inputs, outputs [][]float32, eventsIn, eventsOut []contracts.EngineEvent, nframes uint32) {
	for ch := 0; ch < len(inputs) && ch < len(outputs); ch++ {
		copy(outputs[ch][:nframes], inputs[ch][:nframes])
	}

	for i := 0; i < len(eventsIn) && i < len(eventsOut); i++ {
		if eventsIn[i].Type == contracts.EventNull {
			break
		}
		eventsOut[i] = eventsIn[i]
	}
}

// BufferSizeChanged implements contracts.Graph.
func (p *Passthrough) BufferSizeChanged(bufferSize uint32) {
	p.bufferSize.Store(bufferSize)
}

// SampleRateChanged implements contracts.Graph.
func (p *Passthrough) SampleRateChanged(sampleRate float64) {
	p.sampleRate.Store(sampleRate)
}

// ConnectExternalAudio implements contracts.Graph. portID is 1-based and must name an existing
// channel of the direction the connection type refers to.
func (p *Passthrough) ConnectExternalAudio(connectionType contracts.ConnectionType, portID uint32, portName string) bool {
	if !p.validPort(connectionType, portID) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.links[audioLink{connectionType, portID}] = portName
	return true
}

// DisconnectExternalAudio implements contracts.Graph.
func (p *Passthrough) DisconnectExternalAudio(connectionType contracts.ConnectionType, portID uint32, _ string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	link := audioLink{connectionType, portID}
	if _, ok := p.links[link]; !ok {
		return false
	}
	delete(p.links, link)
	return true
}

func (p *Passthrough) validPort(connectionType contracts.ConnectionType, portID uint32) bool {
	if portID == 0 {
		return false
	}

	switch connectionType {
	case contracts.ConnectionAudioIn1, contracts.ConnectionAudioIn2:
		return portID <= p.audioIns
	case contracts.ConnectionAudioOut1, contracts.ConnectionAudioOut2:
		return portID <= p.audioOuts
	}
	return false
}

// Links returns how many external audio connections are held.
func (p *Passthrough) Links() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}

// RefreshInternal implements contracts.InternalRefresher. The passthrough has no internal ports,
// so only the request is counted.
func (p *Passthrough) RefreshInternal(sendHost, sendExternal bool) error {
	p.mu.Lock()
	p.refreshes++
	p.mu.Unlock()

	p.logger.Debug("Internal patchbay refresh",
		p.logger.Field().Bool("sendHost", sendHost),
		p.logger.Field().Bool("sendExternal", sendExternal))
	return nil
}

// Refreshes returns how many internal refreshes were requested.
func (p *Passthrough) Refreshes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes
}
