package orchestration

import "github.com/koscakluka/ema-voice/core/turn"

// Snapshot is a point-in-time copy of the orchestrator state.
type Snapshot struct {
	State           turn.State
	VoiceMode       bool
	VoiceDisabled   bool
	SpeakingEnabled bool
	// Degraded is set while voice mode runs without level metering.
	Degraded bool
	Level    float64

	UtteranceID   string
	Committed     string
	Interim       string
	AwaitingReply bool
	PlaybackJobID string
	// CoolingDown is set during the echo cool-down after playback drained.
	CoolingDown bool
}

func (o *Orchestrator) snapshot() Snapshot {
	return Snapshot{
		State:           o.state,
		VoiceMode:       o.voiceMode,
		VoiceDisabled:   o.voiceUnsupported != nil,
		SpeakingEnabled: o.speakingEnabled,
		Degraded:        o.microphone.degraded,
		Level:           o.microphone.level,
		UtteranceID:     o.utterance.ID,
		Committed:       o.utterance.Committed,
		Interim:         o.utterance.Interim,
		AwaitingReply:   o.pendingSend != "",
		PlaybackJobID:   o.jobID,
		CoolingDown:     o.cooling,
	}
}
