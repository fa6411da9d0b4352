package orchestration

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

type utterance struct {
	ID string
	// Committed only grows within one utterance.
	Committed    string
	Interim      string
	LastActivity time.Time
}

func (u utterance) text() string {
	return joinFragments(u.Committed, u.Interim)
}

// joinFragments appends fragment to text, inserting a space unless one of
// them already provides it.
func joinFragments(text, fragment string) string {
	switch {
	case text == "":
		return fragment
	case fragment == "":
		return text
	}

	last, _ := utf8.DecodeLastRuneInString(text)
	first, _ := utf8.DecodeRuneInString(fragment)
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return text + fragment
	}
	return text + " " + fragment
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// timer is a cancelable one-shot whose fires carry a token, so a fire that
// raced with stop or a re-arm can be recognized and dropped on the loop.
type timer struct {
	token   uint64
	pending clockwork.Timer
}

func (t *timer) arm(clock clockwork.Clock, delay time.Duration, fire func(token uint64)) {
	t.stop()
	token := t.token
	t.pending = clock.AfterFunc(delay, func() { fire(token) })
}

func (t *timer) stop() {
	t.token++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// fired consumes a fire. It reports false for stale tokens.
func (t *timer) fired(token uint64) bool {
	if t.pending == nil || token != t.token {
		return false
	}
	t.pending = nil
	return true
}
