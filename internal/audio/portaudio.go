package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const portAudioFrames = 512

type portAudioDriver struct {
	log zerolog.Logger
}

// NewPortAudio creates the PortAudio-backed driver. It only supports
// input devices; loopback capture needs the miniaudio backend.
func NewPortAudio(log zerolog.Logger) (Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioDriver{log: log.With().Str("component", "portaudio").Logger()}, nil
}

func (d *portAudioDriver) Name() string { return "portaudio" }

func (d *portAudioDriver) Devices(src Source) ([]Device, error) {
	if src == SourceLoopback {
		return nil, fmt.Errorf("portaudio backend does not support loopback capture")
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultDevice, _ := portaudio.DefaultInputDevice()
	result := make([]Device, 0, len(devices))
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      dev.Name,
				Name:    dev.Name,
				Default: dev == defaultDevice,
			})
		}
	}
	return result, nil
}

func (d *portAudioDriver) Open(spec StreamSpec) (Stream, error) {
	if spec.Source == SourceLoopback {
		return nil, fmt.Errorf("portaudio backend does not support loopback capture")
	}

	var device *portaudio.DeviceInfo
	if spec.DeviceID == "" {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate devices: %w", err)
		}
		for _, dev := range devices {
			if dev.Name == spec.DeviceID {
				device = dev
				break
			}
		}
	}
	if device == nil {
		return nil, fmt.Errorf("device not found: %s", spec.DeviceID)
	}

	channels := device.MaxInputChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		return nil, fmt.Errorf("device has no input channels: %s", device.Name)
	}
	rate := int(device.DefaultSampleRate)

	buffer := make([]int16, portAudioFrames*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: portAudioFrames,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioStream{
		stream: stream,
		buf:    buffer,
		raw:    make([]byte, len(buffer)*2),
		info: StreamInfo{
			SampleRate: rate,
			Channels:   channels,
			Format:     FormatS16,
		},
		log:  d.log,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

func (d *portAudioDriver) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// portAudioStream adapts PortAudio's blocking read API to the callback
// contract: a dedicated goroutine reads fixed frames and plays the role
// of the audio thread.
type portAudioStream struct {
	stream *portaudio.Stream
	buf    []int16
	raw    []byte
	info   StreamInfo
	log    zerolog.Logger

	started   bool
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *portAudioStream) Info() StreamInfo { return s.info }

func (s *portAudioStream) Start(fn DataFunc) error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.started = true

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.quit:
				return
			default:
			}
			if err := s.stream.Read(); err != nil {
				// Runtime stream error: delivery ends here; a new
				// Start is needed to resume.
				select {
				case <-s.quit:
				default:
					s.log.Error().Err(err).Msg("Stream read failed")
				}
				return
			}
			for i, v := range s.buf {
				binary.LittleEndian.PutUint16(s.raw[i*2:], uint16(v))
			}
			fn(s.raw)
		}
	}()
	return nil
}

func (s *portAudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.started {
			close(s.quit)
			s.stream.Abort()
			<-s.done
		}
		err = s.stream.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return nil
}
