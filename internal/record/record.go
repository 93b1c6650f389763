// Package record drains a capture subscription into a WAV file.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/systap/systap/internal/audio"
)

// Recorder writes every chunk from a subscription to a 16-bit mono WAV
// file until stopped.
type Recorder struct {
	log  zerolog.Logger
	path string
	rate int
	file *os.File
	enc  *wav.Encoder
	sub  *audio.Subscription
	quit chan struct{}
	done chan struct{}
}

// Start creates a timestamped WAV file in dir and begins draining sub
// into it on a background goroutine.
func Start(dir string, sampleRate int, sub *audio.Subscription, log zerolog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	path := filepath.Join(dir, "capture-"+time.Now().Format("20060102-150405")+".wav")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	r := &Recorder{
		log:  log.With().Str("component", "recorder").Logger(),
		path: path,
		rate: sampleRate,
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, 16, 1, 1),
		sub:  sub,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.loop()

	r.log.Info().Str("path", path).Int("rate", sampleRate).Msg("Recording started")
	return r, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			// Flush anything the bus delivered before we detached.
			for {
				select {
				case chunk := <-r.sub.C:
					r.write(chunk)
				default:
					return
				}
			}
		case chunk := <-r.sub.C:
			r.write(chunk)
		}
	}
}

func (r *Recorder) write(chunk []int16) {
	data := make([]int, len(chunk))
	for i, v := range chunk {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buf); err != nil {
		r.log.Error().Err(err).Msg("Failed to write recording chunk")
	}
}

// Stop detaches from the bus, flushes buffered chunks and finalizes the
// WAV header. It returns the finished file's path.
func (r *Recorder) Stop() (string, error) {
	r.sub.Cancel()
	close(r.quit)
	<-r.done

	if err := r.enc.Close(); err != nil {
		r.file.Close()
		return r.path, fmt.Errorf("failed to finalize recording: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return r.path, fmt.Errorf("failed to close recording file: %w", err)
	}
	r.log.Info().Str("path", r.path).Msg("Recording finished")
	return r.path, nil
}
