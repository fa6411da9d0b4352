package orchestration

import "github.com/koscakluka/ema-voice/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newEventEmitter(opts OrchestrateOptions) eventEmitter {
	callbacks := newCallbackEventEmitter(opts)
	if opts.eventHandler == nil {
		return callbacks
	}

	return func(event events.Event) {
		opts.eventHandler(event)
		callbacks(event)
	}
}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.TurnStateChanged:
			if opts.onStateChanged != nil {
				opts.onStateChanged(typedEvent.To)
			}
		case events.UserLevelSampled:
			if opts.onLevel != nil {
				opts.onLevel(typedEvent.Level, typedEvent.AboveThreshold)
			}
		case events.UserTranscriptInterimUpdated:
			if opts.onInterimTranscript != nil {
				opts.onInterimTranscript(typedEvent.Transcript)
			}
		case events.UserTranscriptSegment:
			if opts.onTranscriptSegment != nil {
				opts.onTranscriptSegment(typedEvent.Segment)
			}
		case events.UserTranscriptCommittedUpdated:
			if opts.onCommittedTranscript != nil {
				opts.onCommittedTranscript(typedEvent.Transcript)
			}
		case events.UserUtteranceSubmitted:
			if opts.onUtteranceSubmitted != nil {
				opts.onUtteranceSubmitted(typedEvent.Text)
			}
		case events.UserBargeIn:
			if opts.onBargeIn != nil {
				opts.onBargeIn()
			}
		case events.AssistantReplyReceived:
			if opts.onReply != nil {
				opts.onReply(typedEvent.Reply, typedEvent.Err)
			}
		case events.AssistantPlaybackStarted:
			if opts.onPlaybackStarted != nil {
				opts.onPlaybackStarted()
			}
		case events.AssistantPlaybackEnded:
			if opts.onPlaybackEnded != nil {
				opts.onPlaybackEnded()
			}
		case events.AssistantPlaybackCancelled:
			if opts.onPlaybackCancelled != nil {
				opts.onPlaybackCancelled()
			}
		case events.VoiceFailed:
			if opts.onVoiceError != nil {
				opts.onVoiceError(typedEvent.Err, typedEvent.Degraded)
			}
		}
	}
}
