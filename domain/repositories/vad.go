package repositories

import "errors"

// ErrCapabilityMissing marks a permanent detector initialization failure: a
// platform prerequisite is absent and retrying will not help.
var ErrCapabilityMissing = errors.New("platform capability missing")

// SpeechDetector turns a continuous audio stream into discrete speech-start
// signals. Implementations do not transcribe; they only detect onset.
type SpeechDetector interface {
	// Initialize validates platform capabilities for the given audio format.
	// Failures wrapping ErrCapabilityMissing are permanent and must not be
	// retried automatically.
	Initialize(config AudioConfig) error
	// Start arms detection. Process calls before Start (or after Pause) are
	// ignored.
	Start()
	// Pause suspends detection without releasing resources.
	Pause()
	// Destroy releases all resources. The detector is unusable afterwards.
	Destroy()
	// Process feeds one audio frame to the detector.
	Process(frame []byte) error
	// OnSpeechStart registers the callback fired when speech onset is detected.
	OnSpeechStart(fn func())
}
