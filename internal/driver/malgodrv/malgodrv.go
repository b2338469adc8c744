// Package malgodrv exposes miniaudio back-ends (ALSA, PulseAudio, CoreAudio, WASAPI, DirectSound)
// as device drivers.
package malgodrv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/leandrodaf/enginedriver/internal/driver"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

const bytesPerSample = 4

type backend struct {
	typeName string
	backend  malgo.Backend
}

// backendsByOS lists the miniaudio back-ends offered on each operating system.
var backendsByOS = map[string][]backend{
	"linux":   {{"ALSA", malgo.BackendAlsa}, {"PulseAudio", malgo.BackendPulseaudio}},
	"darwin":  {{"CoreAudio", malgo.BackendCoreaudio}},
	"windows": {{"Windows Audio", malgo.BackendWasapi}, {"DirectSound", malgo.BackendDsound}},
}

func init() {
	for _, b := range backendsByOS[runtime.GOOS] {
		driver.Register(b.typeName, func() (contracts.DeviceDriver, error) {
			return New(b.typeName, b.backend)
		})
	}
}

// Driver is one miniaudio back-end.
type Driver struct {
	typeName string
	ctx      *malgo.AllocatedContext

	mu       sync.Mutex
	playback []malgo.DeviceInfo
	capture  []malgo.DeviceInfo
}

// New initializes a miniaudio context restricted to backend.
func New(typeName string, b malgo.Backend) (*Driver, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{b}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init %s context: %w", typeName, err)
	}

	d := &Driver{typeName: typeName, ctx: ctx}
	d.ScanForDevices()
	return d, nil
}

// TypeName implements contracts.DeviceDriver.
func (d *Driver) TypeName() string {
	return d.typeName
}

// ScanForDevices implements contracts.DeviceDriver.
func (d *Driver) ScanForDevices() {
	playback, _ := d.ctx.Devices(malgo.Playback)
	capture, _ := d.ctx.Devices(malgo.Capture)

	d.mu.Lock()
	d.playback, d.capture = playback, capture
	d.mu.Unlock()
}

// DeviceNames implements contracts.DeviceDriver. Only playback devices are listed; a capture
// device of the same name is opened alongside in duplex mode.
func (d *Driver) DeviceNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, len(d.playback))
	for i, info := range d.playback {
		names[i] = info.Name()
	}
	return names
}

// DefaultDeviceIndex implements contracts.DeviceDriver.
func (d *Driver) DefaultDeviceIndex() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, info := range d.playback {
		if info.IsDefault != 0 {
			return i
		}
	}
	if len(d.playback) > 0 {
		return 0
	}
	return -1
}

// CreateDevice implements contracts.DeviceDriver.
func (d *Driver) CreateDevice(name string) contracts.AudioDevice {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev := &Device{ctx: d.ctx, name: name}
	found := false
	for _, info := range d.playback {
		if info.Name() == name {
			dev.playback = d.detail(malgo.Playback, info)
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	for _, info := range d.capture {
		if info.Name() == name {
			capture := d.detail(malgo.Capture, info)
			dev.capture = &capture
			break
		}
	}
	return dev
}

// detail queries the full format list, which enumeration leaves empty on some back-ends.
func (d *Driver) detail(kind malgo.DeviceType, info malgo.DeviceInfo) malgo.DeviceInfo {
	full, err := d.ctx.DeviceInfo(kind, info.ID, malgo.Shared)
	if err != nil {
		return info
	}
	return full
}

// Close implements contracts.DeviceDriver.
func (d *Driver) Close() error {
	if err := d.ctx.Uninit(); err != nil {
		return err
	}
	d.ctx.Free()
	return nil
}

// Device is one miniaudio playback device, with its capture counterpart when present.
type Device struct {
	ctx      *malgo.AllocatedContext
	name     string
	playback malgo.DeviceInfo
	capture  *malgo.DeviceInfo

	mu         sync.Mutex
	device     *malgo.Device
	playing    atomic.Bool
	callback   atomic.Pointer[callbackHolder]
	bufferSize uint32
	sampleRate float64

	inputs  [][]float32
	outputs [][]float32
}

type callbackHolder struct {
	cb contracts.AudioCallback
}

// Name implements contracts.AudioDevice.
func (d *Device) Name() string {
	return d.name
}

// InputChannelNames implements contracts.AudioDevice.
func (d *Device) InputChannelNames() []string {
	if d.capture == nil {
		return nil
	}
	return channelNames("Capture", channelCount(*d.capture))
}

// OutputChannelNames implements contracts.AudioDevice.
func (d *Device) OutputChannelNames() []string {
	return channelNames("Playback", channelCount(d.playback))
}

func channelCount(info malgo.DeviceInfo) int {
	channels := 0
	for i := 0; i < int(info.FormatCount) && i < len(info.Formats); i++ {
		channels = max(channels, int(info.Formats[i].Channels))
	}
	if channels == 0 {
		return 2
	}
	return channels
}

func channelNames(prefix string, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return names
}

// Open implements contracts.AudioDevice.
func (d *Device) Open(inputChannels, outputChannels int, sampleRate float64, bufferSize uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return errors.New("device already open")
	}

	kind := malgo.Playback
	if d.capture != nil && inputChannels > 0 {
		kind = malgo.Duplex
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(math.Round(sampleRate))
	cfg.PeriodSizeInFrames = bufferSize
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(outputChannels)
	cfg.Playback.DeviceID = d.playback.ID.Pointer()
	if kind == malgo.Duplex {
		cfg.Capture.Format = malgo.FormatF32
		cfg.Capture.Channels = uint32(inputChannels)
		cfg.Capture.DeviceID = d.capture.ID.Pointer()
	} else {
		inputChannels = 0
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.process,
		Stop: d.stopped,
	})
	if err != nil {
		return err
	}

	d.device = dev
	d.bufferSize = bufferSize
	d.sampleRate = float64(cfg.SampleRate)
	d.inputs = planar(inputChannels, bufferSize)
	d.outputs = planar(outputChannels, bufferSize)
	return nil
}

func planar(channels int, frames uint32) [][]float32 {
	buffers := make([][]float32, channels)
	for i := range buffers {
		buffers[i] = make([]float32, frames)
	}
	return buffers
}

// process runs on the miniaudio thread.
func (d *Device) process(output, input []byte, frameCount uint32) {
	holder := d.callback.Load()
	if holder == nil || frameCount > d.bufferSize {
		clear(output)
		return
	}

	deinterleave(d.inputs, input, frameCount)
	holder.cb.Process(d.inputs, d.outputs, frameCount)
	interleave(output, d.outputs, frameCount)
}

func deinterleave(dst [][]float32, src []byte, frames uint32) {
	channels := len(dst)
	for frame := 0; frame < int(frames); frame++ {
		for ch := 0; ch < channels; ch++ {
			offset := (frame*channels + ch) * bytesPerSample
			if offset+bytesPerSample > len(src) {
				dst[ch][frame] = 0
				continue
			}
			dst[ch][frame] = math.Float32frombits(binary.LittleEndian.Uint32(src[offset:]))
		}
	}
}

func interleave(dst []byte, src [][]float32, frames uint32) {
	channels := len(src)
	for frame := 0; frame < int(frames); frame++ {
		for ch := 0; ch < channels; ch++ {
			offset := (frame*channels + ch) * bytesPerSample
			if offset+bytesPerSample > len(dst) {
				return
			}
			binary.LittleEndian.PutUint32(dst[offset:], math.Float32bits(src[ch][frame]))
		}
	}
}

// stopped is called by miniaudio whenever the device stops, including when it is unplugged.
func (d *Device) stopped() {
	if !d.playing.Load() {
		return
	}
	if holder := d.callback.Load(); holder != nil {
		holder.cb.DeviceError(fmt.Sprintf("audio device %q stopped unexpectedly", d.name))
	}
}

// Close implements contracts.AudioDevice.
func (d *Device) Close() {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
}

// IsOpen implements contracts.AudioDevice.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device != nil
}

// Start implements contracts.AudioDevice.
func (d *Device) Start(callback contracts.AudioCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return errors.New("device is not open")
	}

	d.callback.Store(&callbackHolder{cb: callback})
	if err := d.device.Start(); err != nil {
		d.callback.Store(nil)
		return err
	}
	d.playing.Store(true)
	return nil
}

// Stop implements contracts.AudioDevice. miniaudio returns once the data callback has finished.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.playing.Swap(false) || d.device == nil {
		return
	}
	_ = d.device.Stop()
	d.callback.Store(nil)
}

// IsPlaying implements contracts.AudioDevice.
func (d *Device) IsPlaying() bool {
	return d.playing.Load()
}

// CurrentBufferSize implements contracts.AudioDevice.
func (d *Device) CurrentBufferSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferSize
}

// CurrentSampleRate implements contracts.AudioDevice.
func (d *Device) CurrentSampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// AvailableBufferSizes implements contracts.AudioDevice. miniaudio accepts any period size, so
// no discrete list is advertised.
func (d *Device) AvailableBufferSizes() []uint32 {
	return nil
}

// AvailableSampleRates implements contracts.AudioDevice.
func (d *Device) AvailableSampleRates() []float64 {
	seen := make(map[uint32]bool)
	var rates []float64
	for i := 0; i < int(d.playback.FormatCount) && i < len(d.playback.Formats); i++ {
		rate := d.playback.Formats[i].SampleRate
		if rate == 0 || seen[rate] {
			continue
		}
		seen[rate] = true
		rates = append(rates, float64(rate))
	}
	sort.Float64s(rates)
	return rates
}

// XrunCount implements contracts.AudioDevice. miniaudio does not count xruns.
func (d *Device) XrunCount() int {
	return -1
}

// HasControlPanel implements contracts.AudioDevice.
func (d *Device) HasControlPanel() bool {
	return false
}

// ShowControlPanel implements contracts.AudioDevice.
func (d *Device) ShowControlPanel() bool {
	return false
}
