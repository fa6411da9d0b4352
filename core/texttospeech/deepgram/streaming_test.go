package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const testAPIKey = "test-key"

func TestNewSynthesizerRejectsUnknownVoice(t *testing.T) {
	if _, err := NewSynthesizer(&fakeOutput{}, WithVoice("robot")); err == nil {
		t.Fatalf("expected unknown voice to be rejected")
	}
}

func TestSpeakWithoutAPIKeyIsUnsupported(t *testing.T) {
	synthesizer, err := NewSynthesizer(&fakeOutput{}, WithAPIKey(""))
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}

	if err := synthesizer.Speak(context.Background(), "hello"); !errors.Is(err, capability.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestSpeakPlaysAudioAndEndsAfterPlayback(t *testing.T) {
	messages := make(chan websocketMessage, 8)
	server := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var msg websocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			messages <- msg
			if msg.Type == "Flush" {
				conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
				conn.WriteJSON(websocketMessage{Type: "Flushed"})
			}
		}
	})

	output := &fakeOutput{}
	synthesizer := newTestSynthesizer(t, server, output)
	defer synthesizer.Close()

	ended := make(chan error, 1)
	if err := synthesizer.Speak(context.Background(), "Hi! How can I help?",
		texttospeech.WithEndedCallback(func(err error) { ended <- err }),
	); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	select {
	case err := <-ended:
		if err != nil {
			t.Fatalf("expected clean end, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected ended callback")
	}

	if got := output.played(); got != 4 {
		t.Fatalf("expected 4 bytes played, got %d", got)
	}

	first := <-messages
	if first.Type != "Speak" || first.Text != "Hi! How can I help?" {
		t.Fatalf("expected speak message first, got %+v", first)
	}
	if second := <-messages; second.Type != "Flush" {
		t.Fatalf("expected flush message second, got %+v", second)
	}
}

func TestCancelClearsWithoutEnding(t *testing.T) {
	cleared := make(chan struct{}, 1)
	server := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var msg websocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "Clear" {
				cleared <- struct{}{}
			}
		}
	})

	output := &fakeOutput{}
	synthesizer := newTestSynthesizer(t, server, output)
	defer synthesizer.Close()

	var endedCalls atomic.Int32
	if err := synthesizer.Speak(context.Background(), "A long reply.",
		texttospeech.WithEndedCallback(func(error) { endedCalls.Add(1) }),
	); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	if err := synthesizer.Cancel(); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if err := synthesizer.Cancel(); err != nil {
		t.Fatalf("expected second cancel to be a no-op, got %v", err)
	}

	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatalf("expected clear message to reach the server")
	}
	if got := output.clears.Load(); got != 1 {
		t.Fatalf("expected output cleared once, got %d", got)
	}
	if got := endedCalls.Load(); got != 0 {
		t.Fatalf("expected no ended callback after cancel, got %d", got)
	}
}

func TestCancelDoesNotWaitForConnection(t *testing.T) {
	dialing := make(chan struct{}, 1)
	release := make(chan struct{})
	received := make(chan websocketMessage, 4)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dialing <- struct{}{}
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg websocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	t.Cleanup(server.Close)

	synthesizer := newTestSynthesizer(t, server, &fakeOutput{})
	defer synthesizer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	spoken := make(chan error, 1)
	go func() { spoken <- synthesizer.Speak(ctx, "Hello.") }()

	select {
	case <-dialing:
	case <-time.After(time.Second):
		t.Fatalf("expected a connection attempt")
	}

	cancelled := make(chan error, 1)
	go func() { cancelled <- synthesizer.Cancel() }()
	select {
	case err := <-cancelled:
		if err != nil {
			t.Fatalf("expected cancel to succeed, got %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected cancel to return while connecting")
	}

	cancel()
	close(release)
	select {
	case err := <-spoken:
		if err == nil {
			t.Fatalf("expected the cancelled utterance to be dropped")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected speak to return")
	}
	select {
	case msg := <-received:
		t.Fatalf("expected nothing sent for a cancelled utterance, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDroppedConnectionEndsUtteranceWithError(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var msg websocketMessage
			if err := conn.ReadJSON(&msg); err != nil || msg.Type == "Flush" {
				break
			}
		}
		conn.Close()
	})

	synthesizer := newTestSynthesizer(t, server, &fakeOutput{})
	defer synthesizer.Close()

	ended := make(chan error, 1)
	if err := synthesizer.Speak(context.Background(), "Hello.",
		texttospeech.WithEndedCallback(func(err error) { ended <- err }),
	); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	select {
	case err := <-ended:
		if !errors.Is(err, capability.ErrTransient) {
			t.Fatalf("expected transient error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected ended callback")
	}
}

func newTestServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token "+testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestSynthesizer(t *testing.T, server *httptest.Server, output AudioOutput) *Synthesizer {
	t.Helper()

	synthesizer, err := NewSynthesizer(output,
		WithAPIKey(testAPIKey),
		WithSpeakURL("ws"+strings.TrimPrefix(server.URL, "http")),
	)
	if err != nil {
		t.Fatalf("expected synthesizer, got %v", err)
	}
	return synthesizer
}

type fakeOutput struct {
	mu    sync.Mutex
	audio []byte

	clears atomic.Int32
}

func (o *fakeOutput) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (o *fakeOutput) SendAudio(audio []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audio = append(o.audio, audio...)
	return nil
}

func (o *fakeOutput) ClearBuffer() {
	o.clears.Add(1)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audio = nil
}

func (o *fakeOutput) Mark(mark string, callback func(string)) error {
	go callback(mark)
	return nil
}

func (o *fakeOutput) played() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.audio)
}
