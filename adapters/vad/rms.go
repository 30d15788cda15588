package vad

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

const (
	defaultThreshold = 0.02
	// Consecutive frames above threshold before speech onset is signalled.
	defaultOnsetFrames = 3
	// Frames below threshold before the detector re-arms for the next onset.
	defaultHangoverFrames = 25
)

var supportedSampleRates = map[int]bool{
	8000:  true,
	16000: true,
	24000: true,
	44100: true,
	48000: true,
}

// RMSDetector detects speech onset from the root-mean-square energy of PCM16
// frames. It only signals onset; transcription is the recognizer's job.
type RMSDetector struct {
	logger *zap.Logger

	mu          sync.Mutex
	threshold   float64
	onsetFrames int
	initialized bool
	running     bool

	activeStreak int
	quietStreak  int
	triggered    bool

	onSpeechStart func()
}

var _ repositories.SpeechDetector = (*RMSDetector)(nil)

// NewRMSDetector creates an energy-based speech detector.
func NewRMSDetector(logger *zap.Logger) *RMSDetector {
	return &RMSDetector{
		logger:      logger,
		threshold:   defaultThreshold,
		onsetFrames: defaultOnsetFrames,
	}
}

// SetThreshold overrides the energy threshold in [0,1].
func (d *RMSDetector) SetThreshold(threshold float64) {
	d.mu.Lock()
	d.threshold = threshold
	d.mu.Unlock()
}

// Initialize validates the audio capability. Unsupported encodings and sample
// rates are permanent failures: the caller must change capture settings, not
// retry.
func (d *RMSDetector) Initialize(config repositories.AudioConfig) error {
	if config.Encoding != "" && config.Encoding != "LINEAR16" {
		return fmt.Errorf("%w: encoding %q is not supported, need LINEAR16",
			repositories.ErrCapabilityMissing, config.Encoding)
	}
	if config.SampleRate != 0 && !supportedSampleRates[config.SampleRate] {
		return fmt.Errorf("%w: sample rate %d is not supported",
			repositories.ErrCapabilityMissing, config.SampleRate)
	}

	d.mu.Lock()
	d.initialized = true
	d.activeStreak = 0
	d.quietStreak = 0
	d.triggered = false
	d.mu.Unlock()

	d.logger.Info("Speech detector initialized",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))
	return nil
}

// Start arms detection.
func (d *RMSDetector) Start() {
	d.mu.Lock()
	d.running = d.initialized
	d.mu.Unlock()
}

// Pause suspends detection; frames are ignored until Start.
func (d *RMSDetector) Pause() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Destroy releases the detector. Re-use requires Initialize again.
func (d *RMSDetector) Destroy() {
	d.mu.Lock()
	d.initialized = false
	d.running = false
	d.activeStreak = 0
	d.quietStreak = 0
	d.triggered = false
	d.mu.Unlock()
}

// OnSpeechStart registers the onset callback.
func (d *RMSDetector) OnSpeechStart(fn func()) {
	d.mu.Lock()
	d.onSpeechStart = fn
	d.mu.Unlock()
}

// Process feeds one PCM16 little-endian frame to the detector.
func (d *RMSDetector) Process(frame []byte) error {
	if len(frame)%2 != 0 {
		return fmt.Errorf("frame length %d is not PCM16 aligned", len(frame))
	}

	energy := rms(frame)

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}

	var fire func()
	if energy >= d.threshold {
		d.activeStreak++
		d.quietStreak = 0
		if !d.triggered && d.activeStreak >= d.onsetFrames {
			d.triggered = true
			fire = d.onSpeechStart
		}
	} else {
		d.activeStreak = 0
		if d.triggered {
			d.quietStreak++
			if d.quietStreak >= defaultHangoverFrames {
				// Long enough silence: re-arm for the next onset.
				d.triggered = false
				d.quietStreak = 0
			}
		}
	}
	d.mu.Unlock()

	if fire != nil {
		fire()
	}
	return nil
}

// rms computes normalized root-mean-square energy of a PCM16 frame.
func rms(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(frame); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i : i+2]))
		normalized := float64(sample) / math.MaxInt16
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}
