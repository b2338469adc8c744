package engine

import (
	"github.com/leandrodaf/enginedriver/internal/patchbay"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// PatchbayRefresh rebuilds the external topology. In rack mode, or when external is set, the
// external registry is rebuilt; otherwise a graph with its own patchbay refreshes it.
func (e *Engine) PatchbayRefresh(sendHost, sendExternal, external bool) error {
	if !e.graph.IsReady() {
		return contracts.ErrGraphNotReady
	}

	if e.options.ProcessMode == contracts.ProcessModeContinuousRack || external {
		e.refreshExternal(sendHost, sendExternal)
		return nil
	}

	if refresher, ok := e.graph.(contracts.InternalRefresher); ok {
		return refresher.RefreshInternal(sendHost, sendExternal)
	}
	return nil
}

func (e *Engine) refreshExternal(sendHost, sendExternal bool) {
	ins, outs := e.controller.ChannelNames()
	topo := patchbay.Topology{
		ClientName: e.clientName,
		DeviceName: e.controller.DeviceName(),
		AudioIns:   ins,
		AudioOuts:  outs,
	}

	backend := e.midi.Backend()

	var err error
	if topo.MIDIIns, err = backend.Inputs(); err != nil {
		e.logger.Warn("Failed to enumerate MIDI inputs", e.logger.Field().Error("error", err))
	}
	if topo.MIDIOuts, err = backend.Outputs(); err != nil {
		e.logger.Warn("Failed to enumerate MIDI outputs", e.logger.Field().Error("error", err))
	}
	topo.OpenMIDIIns, topo.OpenMIDIOuts = e.OpenMIDIEndpoints()

	e.patchbay.Refresh(topo, sendHost, sendExternal, e.emit)
}
