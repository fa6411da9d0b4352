package events

import "github.com/koscakluka/ema-voice/core/turn"

// KindTurnStateChanged identifies a turn state transition.
const KindTurnStateChanged Kind = "turn_state.changed"

// TurnStateChanged carries a turn state transition.
type TurnStateChanged struct {
	Base
	From turn.State
	To   turn.State
}

// NewTurnStateChanged creates a turn state changed event.
func NewTurnStateChanged(from, to turn.State, opts ...BaseOption) TurnStateChanged {
	return TurnStateChanged{Base: NewBase(KindTurnStateChanged, opts...), From: from, To: to}
}
