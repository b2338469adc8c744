package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leandrodaf/enginedriver/internal/driver/dummy"
	"github.com/leandrodaf/enginedriver/internal/graph"
	"github.com/leandrodaf/enginedriver/internal/logger"
	"github.com/leandrodaf/enginedriver/internal/midi/midivirtual"
	"github.com/leandrodaf/enginedriver/internal/midiio"
	"github.com/leandrodaf/enginedriver/internal/patchbay"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

var scenarioSpec = dummy.DeviceSpec{
	Name:        "Scenario, Synthetic",
	Inputs:      2,
	Outputs:     2,
	BufferSizes: []uint32{64, 128, 256, 512},
	SampleRates: []float64{44100},
}

type recorder struct {
	mu    sync.Mutex
	notes []contracts.Notification
}

func (r *recorder) Notify(n contracts.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all(op contracts.Opcode) []contracts.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found []contracts.Notification
	for _, n := range r.notes {
		if n.Opcode == op {
			found = append(found, n)
		}
	}
	return found
}

// recordingGraph passes audio and events through and remembers what it was given.
type recordingGraph struct {
	*graph.Passthrough

	periods     int
	frames      uint32
	lastIn      []contracts.EngineEvent
	emit        []contracts.EngineEvent
	bufferSizes []uint32
	sampleRates []float64
}

func (g *recordingGraph) Process(inputs, outputs [][]float32, eventsIn, eventsOut []contracts.EngineEvent, nframes uint32) {
	g.periods++
	g.frames = nframes

	g.lastIn = g.lastIn[:0]
	for _, ev := range eventsIn {
		if ev.Type == contracts.EventNull {
			break
		}
		g.lastIn = append(g.lastIn, ev)
	}

	g.Passthrough.Process(inputs, outputs, eventsIn, eventsOut, nframes)
	copy(eventsOut, g.emit)
}

func (g *recordingGraph) BufferSizeChanged(bufferSize uint32) {
	g.bufferSizes = append(g.bufferSizes, bufferSize)
}

func (g *recordingGraph) SampleRateChanged(sampleRate float64) {
	g.sampleRates = append(g.sampleRates, sampleRate)
}

type fixture struct {
	engine  *Engine
	driver  *dummy.Driver
	backend *midivirtual.Backend
	graph   *recordingGraph
	host    *recorder
}

func newFixture(t *testing.T, mode contracts.ProcessMode, opts ...dummy.Option) *fixture {
	t.Helper()

	opts = append([]dummy.Option{dummy.WithDevices(scenarioSpec), dummy.WithManualClock()}, opts...)
	drv := dummy.New(opts...)

	backend := midivirtual.New()
	backend.AddInput("Keystation", "in-1")
	backend.AddInput("a2jmidid - port", "in-2")
	backend.AddOutput("Synth", "out-1")

	nop := logger.NewNopLogger()
	f := &fixture{
		driver:  drv,
		backend: backend,
		graph:   &recordingGraph{Passthrough: graph.NewPassthrough(nop)},
		host:    &recorder{},
	}
	f.engine = New(drv, contracts.EngineOptions{
		Logger:        nop,
		ProcessMode:   mode,
		TransportMode: contracts.TransportModeInternal,
		SampleRate:    44100,
		BufferSize:    256,
		MIDIBackend:   backend,
		Graph:         f.graph,
		HostObserver:  f.host,
		LoopbackNames: patchbay.DefaultLoopbackNames,
	})
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

func (f *fixture) start(t *testing.T) *dummy.Device {
	t.Helper()
	if err := f.engine.Init("test-client"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return f.driver.LastDevice()
}

func TestScenarioOpenRenderReconfigure(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	started := f.host.all(contracts.OpcodeEngineStarted)
	if len(started) != 1 {
		t.Fatalf("Expected one EngineStarted, got %d", len(started))
	}
	n := started[0]
	if n.Value1 != int(contracts.ProcessModeContinuousRack) || n.Value2 != int(contracts.TransportModeInternal) ||
		n.Value3 != 256 || n.ValueF != 44100 || n.ValueStr != dummy.TypeName {
		t.Errorf("Unexpected EngineStarted payload %+v", n)
	}
	if !f.engine.IsRunning() || f.engine.IsOffline() {
		t.Error("Expected a running real-time engine")
	}

	if !dev.Tick() || f.graph.frames != 256 {
		t.Fatalf("Expected a 256 frame period, got %d", f.graph.frames)
	}

	if err := f.engine.SetBufferSizeAndSampleRate(512, 44100); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}

	if got := f.host.all(contracts.OpcodeBufferSizeChanged); len(got) != 1 || got[0].Value1 != 512 {
		t.Errorf("Expected one BufferSizeChanged(512), got %+v", got)
	}
	if got := f.host.all(contracts.OpcodeSampleRateChanged); len(got) != 0 {
		t.Errorf("Sample rate did not change, got %+v", got)
	}
	if len(f.graph.sampleRates) != 1 || f.graph.bufferSizes[len(f.graph.bufferSizes)-1] != 512 {
		t.Errorf("Graph not told about the new buffer size only: %v %v", f.graph.bufferSizes, f.graph.sampleRates)
	}

	if !dev.Tick() || f.graph.frames != 512 {
		t.Errorf("Expected a 512 frame period, got %d", f.graph.frames)
	}
	if f.engine.FramePosition() != 256+512 {
		t.Errorf("Unexpected frame position %d", f.engine.FramePosition())
	}
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name       string
		mode       contracts.ProcessMode
		clientName string
		opts       []dummy.Option
		want       error
	}{
		{"bridge mode", contracts.ProcessModeBridge, "c", nil, contracts.ErrInvalidProcessMode},
		{"single client mode", contracts.ProcessModeSingleClient, "c", nil, contracts.ErrInvalidProcessMode},
		{"empty client name", contracts.ProcessModePatchbay, "", nil, contracts.ErrEmptyClientName},
		{"no default device", contracts.ProcessModeContinuousRack, "c", []dummy.Option{dummy.WithDefaultIndex(5)}, contracts.ErrNoDeviceSelected},
		{"device refuses", contracts.ProcessModeContinuousRack, "c", []dummy.Option{dummy.WithOpenHook(func(string, float64, uint32) error {
			return errors.New("busy")
		})}, contracts.ErrDeviceConfigFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mode, tt.opts...)

			err := f.engine.Init(tt.clientName)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if f.engine.IsRunning() {
				t.Error("Engine must stay closed")
			}
			if f.engine.LastError() == "" {
				t.Error("Expected the last error to be set")
			}
			if f.graph.IsReady() {
				t.Error("Graph must not be created")
			}
		})
	}
}

func TestInitTwice(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	f.start(t)

	if err := f.engine.Init("again"); !errors.Is(err, contracts.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestPeriodLengthMismatchRendersSilence(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)
	dev.SetInput(0, 0.5)

	dev.TickFrames(128)
	if f.graph.periods != 0 {
		t.Error("Graph must not run for a mismatched period")
	}
	for i, v := range dev.Output(0) {
		if v != 0 {
			t.Fatalf("Expected silence, frame %d = %v", i, v)
		}
	}
	if f.engine.FramePosition() != 0 {
		t.Errorf("Frame position must not advance, got %d", f.engine.FramePosition())
	}

	dev.Tick()
	if out := dev.Output(0); out[0] != 0.5 || out[255] != 0.5 {
		t.Errorf("Expected passthrough after a valid period, got %v..%v", out[0], out[255])
	}
}

func TestPassthroughWithoutMIDIEndpoints(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)
	dev.SetInput(0, 0.25)
	dev.SetInput(1, -0.5)

	for period := 0; period < 3; period++ {
		dev.Tick()

		if len(f.graph.lastIn) != 0 {
			t.Errorf("Period %d: expected no input events, got %v", period, f.graph.lastIn)
		}
		if out := dev.Output(0); out[10] != 0.25 {
			t.Errorf("Period %d: left channel %v", period, out[10])
		}
		if out := dev.Output(1); out[10] != -0.5 {
			t.Errorf("Period %d: right channel %v", period, out[10])
		}
	}

	if f.engine.FramePosition() != 3*256 {
		t.Errorf("Expected frame position %d, got %d", 3*256, f.engine.FramePosition())
	}
}

func TestMIDIInputReachesGraph(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	if !f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIInput, 0, "Keystation") {
		t.Fatal("Expected MIDI input to connect")
	}

	dev.Tick()
	f.backend.Inject("in-1", []byte{0x90, 60, 100})
	f.backend.Inject("in-1", []byte{0xB0, 7, 127})
	dev.Tick()

	if len(f.graph.lastIn) != 2 {
		t.Fatalf("Expected 2 input events, got %v", f.graph.lastIn)
	}
	note, ctrl := f.graph.lastIn[0], f.graph.lastIn[1]
	if note.Type != contracts.EventMIDI || note.Time != 0 || note.MIDI.Data[1] != 60 {
		t.Errorf("Unexpected note event %v", note)
	}
	if ctrl.Type != contracts.EventControl || ctrl.Ctrl.Type != contracts.ControlParameter || ctrl.Ctrl.Param != 7 {
		t.Errorf("Unexpected control event %v", ctrl)
	}

	dev.Tick()
	if len(f.graph.lastIn) != 0 {
		t.Errorf("Events must be consumed once, got %v", f.graph.lastIn)
	}
}

func TestQueuedEventOffsets(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)
	dev.Tick() // period now starts at 256

	for _, at := range []uint64{100, 266, 511, 512, 9000} {
		event, _ := contracts.NewRawMIDIEvent(at, []byte{0x90, 60, 1})
		f.engine.events.Append(event)
	}
	dev.Tick()

	want := []uint32{0, 10, 255, 255, 255}
	if len(f.graph.lastIn) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(f.graph.lastIn))
	}
	for i, ev := range f.graph.lastIn {
		if ev.Time != want[i] {
			t.Errorf("Event %d: expected offset %d, got %d", i, want[i], ev.Time)
		}
	}
}

func TestInputEventsAreCappedPerPeriod(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	for i := 0; i < contracts.MaxEventCount+100; i++ {
		event, _ := contracts.NewRawMIDIEvent(0, []byte{0xF8})
		f.engine.events.Append(event)
	}
	dev.Tick()

	if len(f.graph.lastIn) != contracts.MaxEventCount {
		t.Errorf("Expected %d events, got %d", contracts.MaxEventCount, len(f.graph.lastIn))
	}
	if f.engine.events.Pending() != 0 {
		t.Errorf("Overflow must be dropped, %d still pending", f.engine.events.Pending())
	}
}

func TestOutputEventsFanOut(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	if !f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, "Synth") {
		t.Fatal("Expected MIDI output to connect")
	}

	var note, volume, program, silent contracts.EngineEvent
	note.FillFromMIDIData([]byte{0x90, 60, 100}, 0)
	volume = contracts.EngineEvent{Type: contracts.EventControl, Time: 128, Channel: 1,
		Ctrl: contracts.ControlEvent{Type: contracts.ControlParameter, Param: 7, Value: 1}}
	program = contracts.EngineEvent{Type: contracts.EventControl, Time: 200, Channel: 2,
		Ctrl: contracts.ControlEvent{Type: contracts.ControlMIDIProgram, Param: 5}}
	silent = contracts.EngineEvent{Type: contracts.EventControl, Ctrl: contracts.ControlEvent{Type: contracts.ControlNull}}
	f.graph.emit = []contracts.EngineEvent{note, volume, silent, program, {}, note}

	dev.Tick()

	if !f.engine.DisconnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, "Synth") {
		t.Fatal("Expected MIDI output to disconnect")
	}

	sent := f.backend.Sent("out-1")
	want := [][]byte{{0x90, 60, 100}, {0xB1, 7, 127}, {0xC2, 5}}
	if len(sent) != len(want) {
		t.Fatalf("Expected %d messages, got % X", len(want), sent)
	}
	for i := range want {
		if string(sent[i]) != string(want[i]) {
			t.Errorf("Message %d: expected % X, got % X", i, want[i], sent[i])
		}
	}
}

func TestInputEchoedToOutput(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIInput, 0, "Keystation")
	f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, "Synth")

	f.backend.Inject("in-1", []byte{0x80, 64, 0})
	dev.Tick()

	if err := f.engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sent := f.backend.Sent("out-1"); len(sent) != 1 || sent[0][0] != 0x80 {
		t.Errorf("Expected the note off to be echoed, got % X", sent)
	}
}

func TestOpenCloseLeavesNothingBehind(t *testing.T) {
	for _, bufferSize := range scenarioSpec.BufferSizes {
		f := newFixture(t, contracts.ProcessModeContinuousRack)
		f.engine.options.BufferSize = bufferSize
		dev := f.start(t)

		if f.engine.BufferSize() != bufferSize {
			t.Errorf("Expected buffer size %d, got %d", bufferSize, f.engine.BufferSize())
		}

		f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIInput, 0, "Keystation")
		f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, "Synth")
		if err := f.engine.PatchbayRefresh(false, false, true); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}

		if err := f.engine.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := f.engine.Close(); err != nil {
			t.Fatalf("Second close failed: %v", err)
		}

		if f.engine.IsRunning() || dev.IsOpen() || f.graph.IsReady() {
			t.Errorf("%d: engine, device or graph still alive", bufferSize)
		}
		if ins, outs := f.backend.OpenCount(); ins != 0 || outs != 0 {
			t.Errorf("%d: leaked %d inputs and %d outputs", bufferSize, ins, outs)
		}
		pb := f.engine.Patchbay()
		if len(pb.AudioIns())+len(pb.AudioOuts())+len(pb.MIDIIns())+len(pb.MIDIOuts())+len(pb.Connections()) != 0 {
			t.Errorf("%d: patchbay records left behind", bufferSize)
		}
		if got := f.host.all(contracts.OpcodeEngineStopped); len(got) != 1 {
			t.Errorf("%d: expected one EngineStopped, got %d", bufferSize, len(got))
		}
	}
}

// patchbayReader looks up the registry from inside Notify, like a host mirroring the topology.
type patchbayReader struct {
	engine *Engine
	inputs atomic.Int32
}

func (p *patchbayReader) Notify(n contracts.Notification) {
	if n.Opcode == contracts.OpcodePatchbayPortAdded && n.ID == contracts.GroupMIDIIn {
		p.inputs.Store(int32(len(p.engine.Patchbay().MIDIIns())))
	}
}

func TestObserverMayQueryPatchbayDuringRefresh(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	f.start(t)

	reader := &patchbayReader{engine: f.engine}
	f.engine.options.ExternalObserver = reader

	done := make(chan error, 1)
	go func() { done <- f.engine.PatchbayRefresh(false, true, false) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PatchbayRefresh blocked while the observer queried the patchbay")
	}

	if got := reader.inputs.Load(); got != 1 {
		t.Errorf("Expected the observer to see 1 visible MIDI input, got %d", got)
	}
}

func TestPatchbayRefreshRack(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	f.start(t)
	f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIInput, 0, "Keystation")
	f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, "Synth")

	f.host.mu.Lock()
	f.host.notes = nil
	f.host.mu.Unlock()

	if err := f.engine.PatchbayRefresh(true, false, false); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	pb := f.engine.Patchbay()
	first := [][]patchbay.PortDescriptor{pb.AudioIns(), pb.AudioOuts(), pb.MIDIIns(), pb.MIDIOuts()}
	if len(first[0]) != 2 || len(first[1]) != 2 {
		t.Errorf("Expected 2 audio ports per direction, got %d/%d", len(first[0]), len(first[1]))
	}
	if len(first[2]) != 1 || first[2][0].Name != "Keystation" {
		t.Errorf("Loopback input must be hidden, got %v", first[2])
	}

	conns := f.host.all(contracts.OpcodePatchbayConnectionAdded)
	if len(conns) != 2 || conns[0].ValueStr != "4:1:1:5" || conns[1].ValueStr != "1:6:5:1" {
		t.Errorf("Unexpected connection notifications %+v", conns)
	}
	if clients := f.host.all(contracts.OpcodePatchbayClientAdded); len(clients) != 5 || clients[1].ValueStr != "Capture (Scenario)" {
		t.Errorf("Unexpected client notifications %+v", clients)
	}

	lastID := pb.LastConnectionID()
	if err := f.engine.PatchbayRefresh(false, false, false); err != nil {
		t.Fatalf("Second refresh failed: %v", err)
	}
	second := [][]patchbay.PortDescriptor{pb.AudioIns(), pb.AudioOuts(), pb.MIDIIns(), pb.MIDIOuts()}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("Sequence %d changed length", i)
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Errorf("Sequence %d port %d changed: %v -> %v", i, j, first[i][j], second[i][j])
			}
		}
	}
	if pb.LastConnectionID() != lastID+2 {
		t.Errorf("Connection ids must keep increasing, got %d after %d", pb.LastConnectionID(), lastID)
	}
}

func TestPatchbayModeDelegatesToGraph(t *testing.T) {
	f := newFixture(t, contracts.ProcessModePatchbay)
	f.start(t)

	if f.graph.Refreshes() != 1 {
		t.Errorf("Expected the graph to refresh once during init, got %d", f.graph.Refreshes())
	}
	if len(f.engine.Patchbay().AudioOuts()) != 2 {
		t.Error("Expected init to fill the external registry silently")
	}
	if got := f.host.all(contracts.OpcodePatchbayClientAdded); len(got) != 0 {
		t.Errorf("External refresh during init must be silent, got %d notifications", len(got))
	}

	if err := f.engine.PatchbayRefresh(true, true, true); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if f.graph.Refreshes() != 1 {
		t.Error("External refresh must not reach the graph")
	}
	if got := f.host.all(contracts.OpcodePatchbayClientAdded); len(got) != 5 {
		t.Errorf("Expected 5 clients announced, got %d", len(got))
	}
}

func TestPatchbayRefreshRequiresGraph(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)

	if err := f.engine.PatchbayRefresh(true, true, true); !errors.Is(err, contracts.ErrGraphNotReady) {
		t.Errorf("Expected ErrGraphNotReady, got %v", err)
	}
}

func TestReconfigureRollback(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack, dummy.WithOpenHook(func(_ string, _ float64, bufferSize uint32) error {
		if bufferSize == 128 {
			return errors.New("unsupported period")
		}
		return nil
	}))
	dev := f.start(t)

	err := f.engine.SetBufferSizeAndSampleRate(128, 44100)
	if !errors.Is(err, contracts.ErrDeviceConfigFailed) {
		t.Fatalf("Expected ErrDeviceConfigFailed, got %v", err)
	}
	if !f.engine.IsRunning() || f.engine.BufferSize() != 256 {
		t.Errorf("Expected rollback to 256 and playback, got running=%v bs=%d", f.engine.IsRunning(), f.engine.BufferSize())
	}
	if f.engine.LastError() == "" {
		t.Error("Expected the last error to be set")
	}
	if got := f.host.all(contracts.OpcodeBufferSizeChanged); len(got) != 0 {
		t.Errorf("Rollback must not notify, got %+v", got)
	}
	if !dev.Tick() || f.graph.frames != 256 {
		t.Error("Expected rendering to resume at 256 frames")
	}
}

func TestReconfigureFatal(t *testing.T) {
	var opens atomic.Int32
	f := newFixture(t, contracts.ProcessModeContinuousRack, dummy.WithOpenHook(func(string, float64, uint32) error {
		if opens.Add(1) > 1 {
			return errors.New("device gone")
		}
		return nil
	}))
	f.start(t)
	f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIInput, 0, "Keystation")

	err := f.engine.SetBufferSizeAndSampleRate(512, 44100)
	if !errors.Is(err, contracts.ErrReconfigureFatal) {
		t.Fatalf("Expected ErrReconfigureFatal, got %v", err)
	}
	if f.engine.IsRunning() || f.graph.IsReady() {
		t.Error("Engine must be torn down")
	}
	if ins, _ := f.backend.OpenCount(); ins != 0 {
		t.Errorf("MIDI inputs leaked: %d", ins)
	}
	if got := f.host.all(contracts.OpcodeEngineStopped); len(got) != 1 {
		t.Errorf("Expected one EngineStopped, got %d", len(got))
	}
	if err := f.engine.Close(); err != nil {
		t.Errorf("Close after fatal failed: %v", err)
	}
}

func TestReconfigureRequiresRunningEngine(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)

	if err := f.engine.SetBufferSizeAndSampleRate(512, 44100); !errors.Is(err, contracts.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestDeviceErrorNotifies(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	dev.ReportError("device unplugged")

	got := f.host.all(contracts.OpcodeError)
	if len(got) != 1 || got[0].ValueStr != "device unplugged" {
		t.Errorf("Expected an Error notification, got %+v", got)
	}
	if f.engine.LastError() != "device unplugged" {
		t.Errorf("Unexpected last error %q", f.engine.LastError())
	}
}

func TestXruns(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)

	dev.InjectXruns(3)
	if f.engine.TotalXruns() != 3 {
		t.Errorf("Expected 3 xruns, got %d", f.engine.TotalXruns())
	}

	f.engine.ReportXruns()
	if got := f.host.all(contracts.OpcodeXruns); len(got) != 1 || got[0].Value1 != 3 {
		t.Errorf("Expected an Xruns(3) notification, got %+v", got)
	}

	f.engine.ClearXruns()
	if f.engine.TotalXruns() != 0 {
		t.Errorf("Expected 0 after clear, got %d", f.engine.TotalXruns())
	}
}

func TestExternalPortRouting(t *testing.T) {
	f := newFixture(t, contracts.ProcessModePatchbay)
	f.start(t)

	tests := []struct {
		name           string
		connect        bool
		connectionType contracts.ConnectionType
		portID         uint32
		portName       string
		want           bool
	}{
		{"audio in to graph", true, contracts.ConnectionAudioIn1, 1, "Input 1", true},
		{"audio out beyond device", true, contracts.ConnectionAudioOut1, 9, "Output 9", false},
		{"unknown MIDI input", true, contracts.ConnectionMIDIInput, 0, "Nope", false},
		{"invalid type", true, contracts.ConnectionNull, 0, "x", false},
		{"audio in disconnect", false, contracts.ConnectionAudioIn1, 1, "Input 1", true},
		{"audio in disconnect twice", false, contracts.ConnectionAudioIn1, 1, "Input 1", false},
		{"MIDI input not open", false, contracts.ConnectionMIDIInput, 0, "Keystation", false},
		{"MIDI output not open", false, contracts.ConnectionMIDIOutput, 0, "Synth", false},
	}

	for _, tt := range tests {
		var got bool
		if tt.connect {
			got = f.engine.ConnectExternalGraphPort(tt.connectionType, tt.portID, tt.portName)
		} else {
			got = f.engine.DisconnectExternalGraphPort(tt.connectionType, tt.portID, tt.portName)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestNormalizeEventTime(t *testing.T) {
	const start, length = 1024, 256

	for k := uint64(0); k < length; k++ {
		if offset, future := NormalizeEventTime(start+k, start, length); offset != uint32(k) || future {
			t.Fatalf("k=%d: got offset %d future=%v", k, offset, future)
		}
	}

	tests := []struct {
		time       uint64
		wantOffset uint32
		wantFuture bool
	}{
		{0, 0, false},
		{start - 1, 0, false},
		{start + length, length - 1, true},
		{start + 10*length, length - 1, true},
	}
	for _, tt := range tests {
		offset, future := NormalizeEventTime(tt.time, start, length)
		if offset != tt.wantOffset || future != tt.wantFuture {
			t.Errorf("time %d: got (%d, %v), want (%d, %v)", tt.time, offset, future, tt.wantOffset, tt.wantFuture)
		}
	}
}

func TestRenderDoesNotAllocate(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)
	dev := f.start(t)
	f.graph.lastIn = make([]contracts.EngineEvent, 0, contracts.MaxEventCount)

	dev.Tick()
	if allocs := testing.AllocsPerRun(100, func() { dev.Tick() }); allocs != 0 {
		t.Errorf("Expected an allocation-free period, got %v allocs", allocs)
	}
}

// discardBackend opens outputs that drop every message without allocating.
type discardBackend struct {
	*midivirtual.Backend
}

type discardOutput struct{}

func (discardBackend) OpenOutput(string) (contracts.MIDIOutput, error) { return discardOutput{}, nil }
func (discardOutput) Send([]byte) error { return nil }
func (discardOutput) Close() error { return nil }

func TestRenderWithControlOutputDoesNotAllocate(t *testing.T) {
	f := newFixture(t, contracts.ProcessModeContinuousRack)

	sink := discardBackend{Backend: midivirtual.New()}
	sink.AddOutput("Sink", "sink-1")
	f.engine.midi = midiio.NewManager(sink, f.engine.events, f.engine.frame.Load, logger.NewNopLogger())

	dev := f.start(t)
	if !f.engine.ConnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, "Sink") {
		t.Fatal("Expected MIDI output to connect")
	}

	var note contracts.EngineEvent
	note.FillFromMIDIData([]byte{0x90, 60, 100}, 0)
	f.graph.emit = []contracts.EngineEvent{
		{Type: contracts.EventControl, Time: 10, Channel: 1,
			Ctrl: contracts.ControlEvent{Type: contracts.ControlParameter, Param: 7, Value: 0.5}},
		{Type: contracts.EventControl, Time: 20, Channel: 2,
			Ctrl: contracts.ControlEvent{Type: contracts.ControlMIDIProgram, Param: 5}},
		{Type: contracts.EventControl, Time: 30,
			Ctrl: contracts.ControlEvent{Type: contracts.ControlAllNotesOff}},
		note,
		{},
	}
	f.graph.lastIn = make([]contracts.EngineEvent, 0, contracts.MaxEventCount)

	dev.Tick()
	if allocs := testing.AllocsPerRun(100, func() { dev.Tick() }); allocs != 0 {
		t.Errorf("Expected an allocation-free period with control output, got %v allocs", allocs)
	}
}
