package record

import (
	"os"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/systap/systap/internal/audio"
)

func TestRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bus := audio.NewBus()
	sub := bus.Subscribe(8)

	rec, err := Start(dir, 16000, sub, zerolog.Nop())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	chunkA := []int16{0, 100, -100, 32767, -32767}
	chunkB := []int16{1, 2, 3}
	bus.Publish(chunkA)
	bus.Publish(chunkB)

	// Give the drain goroutine a moment; Stop flushes whatever is left.
	time.Sleep(10 * time.Millisecond)

	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if path != rec.Path() {
		t.Fatalf("Stop returned %q, Path says %q", path, rec.Path())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("recorder did not produce a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to decode recording: %v", err)
	}

	if buf.Format.SampleRate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", buf.Format.SampleRate)
	}
	if buf.Format.NumChannels != 1 {
		t.Errorf("expected mono, got %d channels", buf.Format.NumChannels)
	}

	want := append(append([]int16{}, chunkA...), chunkB...)
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i, v := range want {
		if buf.Data[i] != int(v) {
			t.Errorf("sample %d: expected %d, got %d", i, v, buf.Data[i])
		}
	}
}

func TestRecorderStopWithoutData(t *testing.T) {
	dir := t.TempDir()
	bus := audio.NewBus()
	sub := bus.Subscribe(4)

	rec, err := Start(dir, 16000, sub, zerolog.Nop())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := rec.Stop(); err != nil {
		t.Fatalf("stopping an empty recording failed: %v", err)
	}
}

func TestRecorderRejectsUnwritableDir(t *testing.T) {
	bus := audio.NewBus()
	sub := bus.Subscribe(4)
	defer sub.Cancel()

	if _, err := Start("/proc/no-such-dir", 16000, sub, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an unwritable directory")
	}
}
