package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/systap/systap/internal/resample"
)

// State is the lifecycle phase of a Session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	}
	return "unknown"
}

const (
	// DefaultTargetRate is the output sample rate of every session.
	DefaultTargetRate = 16000
	// DefaultChunkSize is the desired number of samples per output chunk.
	DefaultChunkSize = 1024

	// ringBlocks sizes the ring buffer as a multiple of the converter's
	// input block, absorbing jitter in hardware delivery sizes.
	ringBlocks = 4
)

// Options configures a capture start.
type Options struct {
	DeviceID   string
	Source     Source
	TargetRate int // 0 means DefaultTargetRate
	ChunkSize  int // 0 means DefaultChunkSize
}

// Session owns at most one open hardware stream and the conversion
// pipeline attached to it. Start and Stop are reference counted: the
// stream opens on the first Start and closes when the last holder calls
// Stop. Output chunks are broadcast to every subscriber of the bus.
//
// The mutex guards lifecycle transitions only. The audio callback owns
// its buffers outright and never takes the lock.
type Session struct {
	drv Driver
	log zerolog.Logger
	bus *Bus

	mu     sync.Mutex
	state  State
	refs   int
	stream Stream
	pipe   *pipeline
}

// NewSession creates an idle session on the given driver.
func NewSession(drv Driver, log zerolog.Logger) *Session {
	return &Session{
		drv: drv,
		log: log.With().Str("component", "session").Logger(),
		bus: NewBus(),
	}
}

// Subscribe attaches a new chunk consumer. Subscriptions are independent
// of the stream lifecycle: they may be taken before the first Start and
// survive across stops.
func (s *Session) Subscribe(buffer int) *Subscription {
	return s.bus.Subscribe(buffer)
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refs reports the number of active start holders.
func (s *Session) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Start opens the hardware stream on first use; subsequent calls while
// active only increment the reference count. Any failure during the
// transition leaves the session idle and is returned to the caller; it is
// never retried internally.
func (s *Session) Start(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		s.refs++
		s.log.Debug().Int("refs", s.refs).Msg("Capture already active, sharing stream")
		return nil
	}

	s.state = StateStarting
	stream, pipe, err := s.openLocked(opts)
	if err != nil {
		s.state = StateIdle
		return err
	}

	s.stream = stream
	s.pipe = pipe
	s.refs = 1
	s.state = StateActive
	info := stream.Info()
	s.log.Info().
		Str("source", opts.Source.String()).
		Int("rate", info.SampleRate).
		Int("channels", info.Channels).
		Str("format", info.Format.String()).
		Int("block_in", pipe.conv.InputLen()).
		Int("block_out", pipe.conv.OutputLen()).
		Msg("Capture started")
	return nil
}

func (s *Session) openLocked(opts Options) (Stream, *pipeline, error) {
	target := opts.TargetRate
	if target == 0 {
		target = DefaultTargetRate
	}
	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}

	stream, err := s.drv.Open(StreamSpec{DeviceID: opts.DeviceID, Source: opts.Source})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s stream: %w", opts.Source, err)
	}

	info := stream.Info()
	pipe, err := newPipeline(info, target, chunk, s.bus)
	if err != nil {
		stream.Close()
		return nil, nil, err
	}

	if err := stream.Start(pipe.process); err != nil {
		stream.Close()
		return nil, nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	return stream, pipe, nil
}

// Stop releases one reference. When the count reaches zero the hardware
// stream is closed, which halts callback delivery before any buffer is
// released. A Stop with no active reference is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		s.log.Debug().Msg("Stop requested but capture not running")
		return
	}
	s.refs--
	if s.refs > 0 {
		s.log.Debug().Int("refs", s.refs).Msg("Capture still held by other consumers")
		return
	}

	// Closing the stream is the ownership boundary: the backend
	// guarantees no callback runs once Close returns, so the pipeline
	// buffers may be dropped afterwards.
	if err := s.stream.Close(); err != nil {
		s.log.Error().Err(err).Msg("Stream close reported an error")
	}
	overruns := s.pipe.overruns.Load()
	if overruns > 0 {
		s.log.Warn().Int64("samples", overruns).Msg("Ring buffer overruns during capture")
	}
	s.stream = nil
	s.pipe = nil
	s.state = StateIdle
	s.log.Info().Msg("Capture stopped")
}

// pipeline performs the per-delivery work inside the audio callback:
// decode to float, downmix to mono, buffer, and convert fixed blocks to
// 16 kHz chunks for the bus. All slices are sized at construction; the
// only steady-state allocation is the published chunk, which all
// subscribers share read-only.
type pipeline struct {
	info     StreamInfo
	bus      *Bus
	conv     *resample.Converter
	ring     *Ring
	decoded  []float32
	mono     []float32
	block    []float32
	overruns atomic.Int64
}

func newPipeline(info StreamInfo, targetRate, chunkSize int, bus *Bus) (*pipeline, error) {
	if info.SampleRate <= 0 {
		return nil, fmt.Errorf("stream reported invalid sample rate %d", info.SampleRate)
	}
	if info.Channels <= 0 {
		return nil, fmt.Errorf("stream reported invalid channel count %d", info.Channels)
	}

	conv, err := resample.New(info.SampleRate, targetRate, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create converter: %w", err)
	}

	// Scratch sized for a generous hardware delivery; a larger delivery
	// is processed in slices rather than grown.
	scratchFrames := info.SampleRate / 4

	return &pipeline{
		info:    info,
		bus:     bus,
		conv:    conv,
		ring:    NewRing(ringBlocks * conv.InputLen()),
		decoded: make([]float32, scratchFrames*info.Channels),
		mono:    make([]float32, scratchFrames),
		block:   make([]float32, conv.InputLen()),
	}, nil
}

// process handles one hardware delivery. Runs on the audio thread.
func (p *pipeline) process(raw []byte) {
	frameBytes := p.info.Format.Bytes() * p.info.Channels
	for len(raw) > 0 {
		take := len(raw)
		if limit := len(p.decoded) * p.info.Format.Bytes(); take > limit {
			take = limit
		}
		// Keep whole frames together across slices.
		take -= take % frameBytes
		if take == 0 {
			return
		}
		p.ingest(raw[:take])
		raw = raw[take:]
	}
}

func (p *pipeline) ingest(raw []byte) {
	n := decodeFloat32(p.decoded, raw, p.info.Format)
	frames := downmixInto(p.mono, p.decoded[:n], p.info.Channels)

	for _, v := range p.mono[:frames] {
		if !p.ring.Push(v) {
			p.overruns.Add(1)
		}
	}

	need := p.conv.InputLen()
	for p.ring.Len() >= need {
		p.ring.Pop(p.block)
		out, err := p.conv.Convert(p.block)
		if err != nil || len(out) == 0 {
			continue
		}
		chunk := make([]int16, len(out))
		encodeS16(chunk, out)
		p.bus.Publish(chunk)
	}
}
