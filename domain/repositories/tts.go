package repositories

import "context"

// SynthesisOptions tune one synthesis request. Zero values mean the
// synthesizer's defaults.
type SynthesisOptions struct {
	Voice string `json:"voice,omitempty"`
	Rate  string `json:"rate,omitempty"`
	Pitch string `json:"pitch,omitempty"`
}

// SpeechSynthesizer abstracts a text-to-speech service. Synthesize returns the
// complete audio payload for one text unit.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) ([]byte, error)
}

// AudioPlayer is the playback sink for synthesized speech. Play blocks until
// the payload has finished playing or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}
