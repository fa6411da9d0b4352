// Package events defines the typed turn-taking event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - turn_state.*
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - voice.*
//
// Semantics used across the package:
//
//   - Segment: append-only text piece emitted in recognition order.
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Ended: lifecycle boundary indicating completion.
//
// turn_state events
//
//   - TurnStateChanged (turn_state.changed): the controller moved between
//     idle, listening, processing and speaking.
//
// user_input events
//
//   - UserLevelSampled (user_input.level_sampled): smoothed microphone level
//     and speech/silence flag.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable interim hypothesis.
//   - UserTranscriptSegment (user_input.transcript_segment): finalized,
//     append-only transcript segment.
//   - UserTranscriptCommittedUpdated (user_input.transcript_committed_updated):
//     committed transcript snapshot of the current utterance.
//   - UserUtteranceSubmitted (user_input.utterance_submitted): utterance handed
//     to the send function.
//   - UserBargeIn (user_input.barge_in): user spoke over playback.
//
// assistant_response events
//
//   - AssistantReplyReceived (assistant_response.reply_received): reply or
//     failure text for a submitted utterance.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): first chunk of a
//     reply started.
//   - AssistantPlaybackChunkFailed (assistant_playback.chunk_failed): a chunk
//     failed and was skipped.
//   - AssistantPlaybackEnded (assistant_playback.ended): every chunk played.
//   - AssistantPlaybackCancelled (assistant_playback.cancelled): playback
//     stopped early.
//
// voice events
//
//   - VoiceFailed (voice.failed): permission or unsupported failure of a voice
//     capability, reported once.
package events
