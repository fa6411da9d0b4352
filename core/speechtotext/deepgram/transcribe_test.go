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
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

const testAPIKey = "test-key"

func TestStartWithoutAPIKeyIsUnsupported(t *testing.T) {
	recognizer := NewRecognizer(WithAPIKey(""))

	err := recognizer.Start(context.Background())
	if !errors.Is(err, capability.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestStartWithUnsupportedEncodingIsUnsupported(t *testing.T) {
	recognizer := NewRecognizer(WithAPIKey(testAPIKey))

	err := recognizer.Start(context.Background(), speechtotext.WithEncodingInfo(audio.EncodingInfo{
		SampleRate: 44100,
		Format:     audio.EncodingLinear16,
	}))
	if !errors.Is(err, capability.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestStartWithRejectedKeyIsPermissionError(t *testing.T) {
	server := newTestServer(t, func(*websocket.Conn, *http.Request) {})
	recognizer := NewRecognizer(WithAPIKey("wrong-key"), WithListenURL(wsURL(server)))

	err := recognizer.Start(context.Background())
	if !errors.Is(err, capability.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestResultsAreReportedAsUpdates(t *testing.T) {
	var query atomic.Value
	server := newTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		query.Store(r.URL.Query())
		writeResults(t, conn, false, "hello")
		writeResults(t, conn, true, "hello there")
		writeResults(t, conn, true, "")
		drain(conn)
	})

	var mu sync.Mutex
	var updates []speechtotext.Update
	recognizer := NewRecognizer(WithAPIKey(testAPIKey), WithListenURL(wsURL(server)))
	err := recognizer.Start(context.Background(), speechtotext.WithUpdateCallback(func(update speechtotext.Update) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, update)
	}))
	if err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	defer recognizer.Stop()

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if updates[0].Interim != "hello" || len(updates[0].Final) != 0 {
		t.Fatalf("expected interim update first, got %+v", updates[0])
	}
	if len(updates[1].Final) != 1 || updates[1].Final[0] != "hello there" || updates[1].Interim != "" {
		t.Fatalf("expected final update second, got %+v", updates[1])
	}
	if len(updates[2].Final) != 0 || updates[2].Interim != "" {
		t.Fatalf("expected empty final to clear interim, got %+v", updates[2])
	}

	params := query.Load().(interface{ Get(string) string })
	if got := params.Get("model"); got != defaultModel {
		t.Fatalf("expected model %q, got %q", defaultModel, got)
	}
	if got := params.Get("encoding"); got != "linear16" {
		t.Fatalf("expected linear16 encoding, got %q", got)
	}
	if got := params.Get("sample_rate"); got != "16000" {
		t.Fatalf("expected 16000 sample rate, got %q", got)
	}
}

func TestSendAudioReachesServer(t *testing.T) {
	received := make(chan []byte, 1)
	server := newTestServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				received <- msg
			}
		}
	})

	recognizer := NewRecognizer(WithAPIKey(testAPIKey), WithListenURL(wsURL(server)))
	if err := recognizer.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	defer recognizer.Stop()

	if err := recognizer.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}

	select {
	case msg := <-received:
		if len(msg) != 4 {
			t.Fatalf("expected 4 bytes, got %d", len(msg))
		}
	case <-time.After(time.Second):
		t.Fatalf("expected audio to reach the server")
	}
}

func TestRemoteCloseCallsEndedCallback(t *testing.T) {
	testCases := []struct {
		name          string
		close         func(conn *websocket.Conn)
		wantTransient bool
	}{
		{
			name: "normal closure",
			close: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				drain(conn)
			},
		},
		{
			name:          "dropped connection",
			close:         func(conn *websocket.Conn) { conn.Close() },
			wantTransient: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := newTestServer(t, func(conn *websocket.Conn, _ *http.Request) {
				testCase.close(conn)
			})

			ended := make(chan error, 1)
			recognizer := NewRecognizer(WithAPIKey(testAPIKey), WithListenURL(wsURL(server)))
			err := recognizer.Start(context.Background(), speechtotext.WithEndedCallback(func(err error) {
				ended <- err
			}))
			if err != nil {
				t.Fatalf("expected start to succeed, got %v", err)
			}

			select {
			case err := <-ended:
				if testCase.wantTransient && !errors.Is(err, capability.ErrTransient) {
					t.Fatalf("expected transient error, got %v", err)
				}
				if !testCase.wantTransient && err != nil {
					t.Fatalf("expected clean end, got %v", err)
				}
			case <-time.After(time.Second):
				t.Fatalf("expected ended callback")
			}

			if err := recognizer.SendAudio([]byte{0, 0}); !errors.Is(err, errNotStarted) {
				t.Fatalf("expected send after end to fail with not started, got %v", err)
			}
		})
	}
}

func TestStopDoesNotCallEndedCallback(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn, _ *http.Request) { drain(conn) })

	var endedCalls atomic.Int32
	recognizer := NewRecognizer(WithAPIKey(testAPIKey), WithListenURL(wsURL(server)))
	err := recognizer.Start(context.Background(), speechtotext.WithEndedCallback(func(error) {
		endedCalls.Add(1)
	}))
	if err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	if err := recognizer.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if err := recognizer.Stop(); err != nil {
		t.Fatalf("expected second stop to be a no-op, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := endedCalls.Load(); got != 0 {
		t.Fatalf("expected no ended callback after stop, got %d", got)
	}
}

func newTestServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeResults(t *testing.T, conn *websocket.Conn, isFinal bool, transcript string) {
	t.Helper()

	msg := map[string]any{
		"type":     "Results",
		"is_final": isFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": transcript}},
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Errorf("failed to write results: %v", err)
	}
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
