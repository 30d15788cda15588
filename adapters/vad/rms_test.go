package vad

import (
	"encoding/binary"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/prakoso/voicecoach/domain/repositories"
)

func pcmFrame(amplitude int16, samples int) []byte {
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(amplitude))
	}
	return frame
}

func newStartedDetector(t *testing.T) *RMSDetector {
	t.Helper()
	d := NewRMSDetector(zaptest.NewLogger(t))
	if err := d.Initialize(repositories.AudioConfig{SampleRate: 16000, Encoding: "LINEAR16"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	d.Start()
	return d
}

func TestRMSDetectorSignalsOnset(t *testing.T) {
	d := newStartedDetector(t)
	defer d.Destroy()

	fired := 0
	d.OnSpeechStart(func() { fired++ })

	loud := pcmFrame(8000, 160)
	for i := 0; i < defaultOnsetFrames; i++ {
		if err := d.Process(loud); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	if fired != 1 {
		t.Fatalf("expected exactly one onset signal, got %d", fired)
	}

	// More loud frames while already triggered must not re-fire.
	for i := 0; i < 10; i++ {
		d.Process(loud)
	}
	if fired != 1 {
		t.Fatalf("onset re-fired without silence, count %d", fired)
	}
}

func TestRMSDetectorRearmsAfterHangover(t *testing.T) {
	d := newStartedDetector(t)
	defer d.Destroy()

	fired := 0
	d.OnSpeechStart(func() { fired++ })

	loud := pcmFrame(8000, 160)
	quiet := pcmFrame(10, 160)

	for i := 0; i < defaultOnsetFrames; i++ {
		d.Process(loud)
	}
	for i := 0; i < defaultHangoverFrames; i++ {
		d.Process(quiet)
	}
	for i := 0; i < defaultOnsetFrames; i++ {
		d.Process(loud)
	}

	if fired != 2 {
		t.Fatalf("expected onset to re-arm after hangover, got %d signals", fired)
	}
}

func TestRMSDetectorIgnoresQuietFrames(t *testing.T) {
	d := newStartedDetector(t)
	defer d.Destroy()

	fired := false
	d.OnSpeechStart(func() { fired = true })

	quiet := pcmFrame(10, 160)
	for i := 0; i < 100; i++ {
		d.Process(quiet)
	}

	if fired {
		t.Fatal("quiet frames triggered speech onset")
	}
}

func TestRMSDetectorCapabilityErrors(t *testing.T) {
	d := NewRMSDetector(zaptest.NewLogger(t))

	err := d.Initialize(repositories.AudioConfig{SampleRate: 16000, Encoding: "OGG_OPUS"})
	if !errors.Is(err, repositories.ErrCapabilityMissing) {
		t.Errorf("unsupported encoding: expected ErrCapabilityMissing, got %v", err)
	}

	err = d.Initialize(repositories.AudioConfig{SampleRate: 11025, Encoding: "LINEAR16"})
	if !errors.Is(err, repositories.ErrCapabilityMissing) {
		t.Errorf("unsupported sample rate: expected ErrCapabilityMissing, got %v", err)
	}
}

func TestRMSDetectorRejectsUnalignedFrame(t *testing.T) {
	d := newStartedDetector(t)
	defer d.Destroy()

	if err := d.Process([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("odd-length frame accepted")
	}
}

func TestRMSDetectorIgnoresFramesWhenPaused(t *testing.T) {
	d := newStartedDetector(t)
	defer d.Destroy()

	fired := false
	d.OnSpeechStart(func() { fired = true })

	d.Pause()
	loud := pcmFrame(8000, 160)
	for i := 0; i < 20; i++ {
		d.Process(loud)
	}

	if fired {
		t.Fatal("paused detector signalled onset")
	}
}
