package audio

// Source selects which side of the endpoint a stream captures.
type Source int

const (
	// SourceLoopback taps the audio the system is playing (render side).
	SourceLoopback Source = iota
	// SourceInput captures from a microphone or line input.
	SourceInput
)

func (s Source) String() string {
	if s == SourceLoopback {
		return "loopback"
	}
	return "input"
}

// Device describes a selectable audio endpoint.
type Device struct {
	ID      string
	Name    string
	Default bool
}

// StreamSpec identifies the endpoint a stream should open. An empty
// DeviceID means the backend default for the given source.
type StreamSpec struct {
	DeviceID string
	Source   Source
}

// StreamInfo is the negotiated format of an open stream. It is fixed for
// the stream's lifetime.
type StreamInfo struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// DataFunc receives one hardware delivery of raw interleaved PCM. It runs
// on the backend's audio thread and must not block.
type DataFunc func(raw []byte)

// Stream is an open (but not necessarily started) hardware stream.
// Close stops delivery; the backend guarantees no DataFunc invocation is
// in flight once Close returns.
type Stream interface {
	Info() StreamInfo
	Start(fn DataFunc) error
	Close() error
}

// Driver opens capture streams on a particular audio backend.
type Driver interface {
	Name() string
	Devices(src Source) ([]Device, error)
	Open(spec StreamSpec) (Stream, error)
	Close() error
}
