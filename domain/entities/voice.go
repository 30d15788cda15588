package entities

// VoiceStatus is the user-facing state of the voice interaction controller.
type VoiceStatus string

const (
	// VoiceStatusIdle means the microphone is armed but nothing is being recognized.
	VoiceStatusIdle VoiceStatus = "idle"
	// VoiceStatusListening means the recognizer is actively consuming speech.
	VoiceStatusListening VoiceStatus = "listening"
	// VoiceStatusThinking means a transcript was submitted and the first
	// response chunk has not arrived yet.
	VoiceStatusThinking VoiceStatus = "thinking"
	// VoiceStatusSpeaking means synthesized audio is playing.
	VoiceStatusSpeaking VoiceStatus = "speaking"
	// VoiceStatusStopped means the voice subsystem is torn down. Re-entry
	// requires an explicit start.
	VoiceStatusStopped VoiceStatus = "stopped"
)

func (s VoiceStatus) String() string {
	return string(s)
}
