package events

// KindAssistantReplyReceived identifies the reply to a submitted utterance.
const KindAssistantReplyReceived Kind = "assistant_response.reply_received"

// AssistantReplyReceived carries the reply to a submitted utterance. When
// the send function failed, Reply is the user-facing failure text and Err
// the failure.
type AssistantReplyReceived struct {
	Base
	UtteranceID string
	Reply       string
	Err         error
}

// NewAssistantReplyReceived creates a reply received event.
func NewAssistantReplyReceived(utteranceID, reply string, err error, opts ...BaseOption) AssistantReplyReceived {
	return AssistantReplyReceived{Base: NewBase(KindAssistantReplyReceived, opts...), UtteranceID: utteranceID, Reply: reply, Err: err}
}
