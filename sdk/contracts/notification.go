package contracts

// Opcode identifies the kind of a Notification.
type Opcode uint32

const (
	OpcodeNull Opcode = iota
	// OpcodeEngineStarted: Value1 process mode, Value2 transport mode, Value3 buffer size,
	// ValueF sample rate, ValueStr driver name.
	OpcodeEngineStarted
	OpcodeEngineStopped
	// OpcodeSampleRateChanged: ValueF new sample rate.
	OpcodeSampleRateChanged
	// OpcodeBufferSizeChanged: Value1 new buffer size.
	OpcodeBufferSizeChanged
	// OpcodeXruns: Value1 xrun count since the last clear.
	OpcodeXruns
	// OpcodeError: ValueStr device error message.
	OpcodeError
	// OpcodePatchbayClientAdded: ID group, ValueStr group name.
	OpcodePatchbayClientAdded
	// OpcodePatchbayPortAdded: ID group, Value1 port, Value2 port hints, ValueStr port name.
	OpcodePatchbayPortAdded
	// OpcodePatchbayConnectionAdded: ID connection, ValueStr "groupA:portA:groupB:portB".
	OpcodePatchbayConnectionAdded
)

func (o Opcode) String() string {
	switch o {
	case OpcodeEngineStarted:
		return "EngineStarted"
	case OpcodeEngineStopped:
		return "EngineStopped"
	case OpcodeSampleRateChanged:
		return "SampleRateChanged"
	case OpcodeBufferSizeChanged:
		return "BufferSizeChanged"
	case OpcodeXruns:
		return "Xruns"
	case OpcodeError:
		return "Error"
	case OpcodePatchbayClientAdded:
		return "PatchbayClientAdded"
	case OpcodePatchbayPortAdded:
		return "PatchbayPortAdded"
	case OpcodePatchbayConnectionAdded:
		return "PatchbayConnectionAdded"
	}
	return "Null"
}

// Port hints carried in OpcodePatchbayPortAdded.Value2.
const (
	PortIsInput uint32 = 1 << iota
	PortIsAudio
	PortIsMIDI
)

// Notification is one message emitted by the engine to a host or external observer.
type Notification struct {
	Opcode   Opcode
	ID       uint32
	Value1   int
	Value2   int
	Value3   int
	ValueF   float64
	ValueStr string
}

// Observer receives engine notifications. Notify may be called from the control thread or,
// for OpcodeError, from the device thread.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n Notification)

// Notify calls f(n).
func (f ObserverFunc) Notify(n Notification) {
	f(n)
}
