package engine

import (
	"github.com/leandrodaf/enginedriver/internal/graph"
	"github.com/leandrodaf/enginedriver/internal/logger"
	"github.com/leandrodaf/enginedriver/internal/patchbay"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// Defaults applied by applyDefaultOptions.
const (
	DefaultClientName = "enginedriver"
	DefaultSampleRate = 44100
	DefaultBufferSize = 512
)

// applyDefaultOptions sets default values for EngineOptions if not explicitly provided.
//
// The zero ProcessMode selects ProcessModeContinuousRack and the transport is always internal.
// A MIDI back-end is not chosen here, see NewEngine.
func applyDefaultOptions(opts ...contracts.Option) contracts.EngineOptions {
	options := &contracts.EngineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	options.Logger.SetLevel(options.LogLevel)
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}

	if options.ClientName == "" {
		options.ClientName = DefaultClientName
	}
	if options.SampleRate <= 0 {
		options.SampleRate = DefaultSampleRate
	}
	if options.BufferSize == 0 {
		options.BufferSize = DefaultBufferSize
	}
	if options.ProcessMode == contracts.ProcessModeSingleClient {
		options.ProcessMode = contracts.ProcessModeContinuousRack
	}
	options.TransportMode = contracts.TransportModeInternal

	if options.Graph == nil {
		options.Graph = graph.NewPassthrough(options.Logger)
	}
	if options.LoopbackNames == nil {
		options.LoopbackNames = patchbay.DefaultLoopbackNames
	}

	return *options
}
