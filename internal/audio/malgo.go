package audio

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

type malgoDriver struct {
	ctx *malgo.AllocatedContext
	log zerolog.Logger
}

// NewMiniaudio creates the miniaudio-backed driver. It is the only
// backend that can tap the render side of an endpoint (WASAPI/CoreAudio
// loopback) in addition to regular input capture.
func NewMiniaudio(log zerolog.Logger) (Driver, error) {
	mlog := log.With().Str("component", "miniaudio").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		mlog.Debug().Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}
	return &malgoDriver{ctx: ctx, log: mlog}, nil
}

func (d *malgoDriver) Name() string { return "miniaudio" }

func (d *malgoDriver) Devices(src Source) ([]Device, error) {
	// Loopback taps playback endpoints, so enumerate the render side.
	kind := malgo.Capture
	if src == SourceLoopback {
		kind = malgo.Playback
	}
	infos, err := d.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:      info.Name(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func (d *malgoDriver) Open(spec StreamSpec) (Stream, error) {
	var cfg malgo.DeviceConfig
	if spec.Source == SourceLoopback {
		cfg = malgo.DefaultDeviceConfig(malgo.Loopback)
	} else {
		cfg = malgo.DefaultDeviceConfig(malgo.Capture)
	}
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 2
	// SampleRate 0 keeps the device's native rate; the negotiated value
	// is read back from the device after init.
	cfg.SampleRate = 0
	cfg.Alsa.NoMMap = 1

	if spec.DeviceID != "" {
		kind := malgo.Capture
		if spec.Source == SourceLoopback {
			kind = malgo.Playback
		}
		infos, err := d.ctx.Devices(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == spec.DeviceID {
				id := info.ID
				cfg.Capture.DeviceID = id.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("device not found: %s", spec.DeviceID)
		}
	}

	st := &malgoStream{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if fn := st.fn.Load(); fn != nil {
				(*fn)(pInput)
			}
		},
		Stop: func() {
			d.log.Debug().Msg("Device delivery stopped")
		},
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	st.dev = dev
	st.info = StreamInfo{
		SampleRate: int(dev.SampleRate()),
		Channels:   2,
		Format:     FormatF32,
	}
	return st, nil
}

func (d *malgoDriver) Close() error {
	if err := d.ctx.Uninit(); err != nil {
		return fmt.Errorf("failed to release miniaudio context: %w", err)
	}
	d.ctx.Free()
	return nil
}

type malgoStream struct {
	dev  *malgo.Device
	info StreamInfo
	fn   atomic.Pointer[DataFunc]
}

func (s *malgoStream) Info() StreamInfo { return s.info }

func (s *malgoStream) Start(fn DataFunc) error {
	s.fn.Store(&fn)
	if err := s.dev.Start(); err != nil {
		s.fn.Store(nil)
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	// Uninit stops the device and joins the audio thread; no data
	// callback is in flight once it returns.
	s.dev.Uninit()
	s.fn.Store(nil)
	return nil
}
