package events

const (
	// KindAssistantPlaybackStarted identifies playback start for a reply.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackChunkFailed identifies a chunk the engine failed to render.
	KindAssistantPlaybackChunkFailed Kind = "assistant_playback.chunk_failed"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
	// KindAssistantPlaybackCancelled identifies playback stopped before completion.
	KindAssistantPlaybackCancelled Kind = "assistant_playback.cancelled"
)

// AssistantPlaybackStarted marks the start of reply playback.
type AssistantPlaybackStarted struct {
	Base
	JobID string
}

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted(jobID string, opts ...BaseOption) AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted, opts...), JobID: jobID}
}

// AssistantPlaybackChunkFailed carries a swallowed chunk failure.
type AssistantPlaybackChunkFailed struct {
	Base
	JobID string
	Index int
	Err   error
}

// NewAssistantPlaybackChunkFailed creates a chunk failed event.
func NewAssistantPlaybackChunkFailed(jobID string, index int, err error, opts ...BaseOption) AssistantPlaybackChunkFailed {
	return AssistantPlaybackChunkFailed{Base: NewBase(KindAssistantPlaybackChunkFailed, opts...), JobID: jobID, Index: index, Err: err}
}

// AssistantPlaybackEnded marks that every chunk of a reply was played.
type AssistantPlaybackEnded struct {
	Base
	JobID string
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(jobID string, opts ...BaseOption) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded, opts...), JobID: jobID}
}

// AssistantPlaybackCancelled marks playback stopped by barge-in, a newer
// reply or voice mode being turned off.
type AssistantPlaybackCancelled struct {
	Base
	JobID string
}

// NewAssistantPlaybackCancelled creates an assistant playback cancelled event.
func NewAssistantPlaybackCancelled(jobID string, opts ...BaseOption) AssistantPlaybackCancelled {
	return AssistantPlaybackCancelled{Base: NewBase(KindAssistantPlaybackCancelled, opts...), JobID: jobID}
}
