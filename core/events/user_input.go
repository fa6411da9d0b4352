package events

const (
	// KindUserLevelSampled identifies a microphone level sample.
	KindUserLevelSampled Kind = "user_input.level_sampled"
	// KindUserTranscriptInterimUpdated identifies mutable interim transcript updates.
	KindUserTranscriptInterimUpdated Kind = "user_input.transcript_interim_updated"
	// KindUserTranscriptSegment identifies finalized append-only transcript segments.
	KindUserTranscriptSegment Kind = "user_input.transcript_segment"
	// KindUserTranscriptCommittedUpdated identifies committed transcript snapshots.
	KindUserTranscriptCommittedUpdated Kind = "user_input.transcript_committed_updated"
	// KindUserUtteranceSubmitted identifies the handoff of an utterance to the send function.
	KindUserUtteranceSubmitted Kind = "user_input.utterance_submitted"
	// KindUserBargeIn identifies the user talking over assistant playback.
	KindUserBargeIn Kind = "user_input.barge_in"
)

// UserLevelSampled carries a smoothed microphone level.
type UserLevelSampled struct {
	Base
	Level          float64
	AboveThreshold bool
}

// NewUserLevelSampled creates a level sampled event.
func NewUserLevelSampled(level float64, aboveThreshold bool, opts ...BaseOption) UserLevelSampled {
	return UserLevelSampled{Base: NewBase(KindUserLevelSampled, opts...), Level: level, AboveThreshold: aboveThreshold}
}

// UserTranscriptInterimUpdated carries the current interim hypothesis. An
// empty transcript clears the previous one.
type UserTranscriptInterimUpdated struct {
	Base
	Transcript string
}

// NewUserTranscriptInterimUpdated creates an interim transcript update event.
func NewUserTranscriptInterimUpdated(transcript string, opts ...BaseOption) UserTranscriptInterimUpdated {
	return UserTranscriptInterimUpdated{Base: NewBase(KindUserTranscriptInterimUpdated, opts...), Transcript: transcript}
}

// UserTranscriptSegment carries a finalized transcript segment.
type UserTranscriptSegment struct {
	Base
	Segment string
}

// NewUserTranscriptSegment creates a finalized transcript segment event.
func NewUserTranscriptSegment(segment string, opts ...BaseOption) UserTranscriptSegment {
	return UserTranscriptSegment{Base: NewBase(KindUserTranscriptSegment, opts...), Segment: segment}
}

// UserTranscriptCommittedUpdated carries the committed transcript of the
// current utterance after a segment was appended.
type UserTranscriptCommittedUpdated struct {
	Base
	Transcript string
}

// NewUserTranscriptCommittedUpdated creates a committed transcript snapshot event.
func NewUserTranscriptCommittedUpdated(transcript string, opts ...BaseOption) UserTranscriptCommittedUpdated {
	return UserTranscriptCommittedUpdated{Base: NewBase(KindUserTranscriptCommittedUpdated, opts...), Transcript: transcript}
}

// UserUtteranceSubmitted carries the text handed to the send function.
type UserUtteranceSubmitted struct {
	Base
	UtteranceID string
	Text        string
}

// NewUserUtteranceSubmitted creates an utterance submitted event.
func NewUserUtteranceSubmitted(utteranceID, text string, opts ...BaseOption) UserUtteranceSubmitted {
	return UserUtteranceSubmitted{Base: NewBase(KindUserUtteranceSubmitted, opts...), UtteranceID: utteranceID, Text: text}
}

// UserBargeIn marks the user interrupting assistant playback.
type UserBargeIn struct {
	Base
	JobID string
}

// NewUserBargeIn creates a barge-in event.
func NewUserBargeIn(jobID string, opts ...BaseOption) UserBargeIn {
	return UserBargeIn{Base: NewBase(KindUserBargeIn, opts...), JobID: jobID}
}
