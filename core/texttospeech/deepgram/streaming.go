package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type utterance struct {
	id      uint64
	options texttospeech.UtteranceOptions
}

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

var errUtteranceReplaced = errors.New("utterance replaced while connecting")

func speakMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

// Speak starts rendering text, replacing any utterance still playing. It
// returns once the text was handed to Deepgram; the ended callback reports
// when playback finished. The connection is dialed without holding the
// synthesizer, so Cancel does not wait for it. An utterance cancelled while
// connecting is dropped and ctx's error returned.
func (s *Synthesizer) Speak(ctx context.Context, text string, opts ...texttospeech.UtteranceOption) error {
	options := texttospeech.NewUtteranceOptions(opts...)

	if s.apiKey == "" {
		return capability.NewUnsupportedError(capability.Synthesizer, errors.New("deepgram api key not found"))
	}
	if s.output == nil {
		return capability.NewUnsupportedError(capability.Synthesizer, errors.New("no audio output configured"))
	}

	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.current != nil {
		s.current = nil
		s.output.ClearBuffer()
		if err := s.write(s.conn, clearMsg); err != nil {
			logger.DebugContext(ctx, "failed to clear previous utterance", "error", err)
		}
	}

	s.nextID++
	current := &utterance{id: s.nextID, options: options}
	s.current = current

	reconnect := s.conn == nil || s.connRate != options.Rate
	if reconnect && s.conn != nil {
		if err := s.closeConnLocked(); err != nil {
			logger.DebugContext(ctx, "failed to close previous speak stream", "error", err)
		}
	}
	s.mu.Unlock()

	var conn *websocket.Conn
	if reconnect {
		var err error
		if conn, err = s.connectWebsocket(ctx, options.Rate); err != nil {
			s.mu.Lock()
			if s.current == current {
				s.current = nil
			}
			s.mu.Unlock()
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != current || ctx.Err() != nil {
		if s.current == current {
			s.current = nil
		}
		if conn != nil {
			conn.Close()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return errUtteranceReplaced
	}

	if conn != nil {
		if err := s.closeConnLocked(); err != nil {
			logger.DebugContext(ctx, "failed to close superseded speak stream", "error", err)
		}
		s.conn = conn
		s.connRate = options.Rate
		go s.processIncomingMessages(conn)
	}

	if err := s.write(s.conn, speakMsg(text)); err != nil {
		s.current = nil
		return capability.NewTransientDeviceError(capability.Synthesizer, fmt.Errorf("failed to send text: %w", err))
	}
	if err := s.write(s.conn, flushMsg); err != nil {
		s.current = nil
		return capability.NewTransientDeviceError(capability.Synthesizer, fmt.Errorf("failed to flush text: %w", err))
	}
	return nil
}

// Cancel stops the current utterance immediately. Its ended callback is not
// called. Cancel without an utterance is a no-op.
func (s *Synthesizer) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	s.current = nil
	s.output.ClearBuffer()

	// Still connecting: Speak drops the utterance once the dial returns.
	if s.conn == nil {
		return nil
	}
	if err := s.write(s.conn, clearMsg); err != nil {
		return fmt.Errorf("failed to send clear message: %w", err)
	}
	return nil
}

func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	return s.closeConnLocked()
}

func (s *Synthesizer) closeConnLocked() error {
	conn := s.conn
	s.conn = nil
	if conn == nil {
		return nil
	}

	if err := s.write(conn, closeMsg); err != nil {
		if aggressiveCloseErr := conn.Close(); aggressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", errors.Join(err, aggressiveCloseErr))
		}
	}
	return nil
}

func (s *Synthesizer) connectWebsocket(ctx context.Context, rate float64) (*websocket.Conn, error) {
	speakUrl, err := url.Parse(s.speakURL)
	if err != nil {
		return nil, capability.NewUnsupportedError(capability.Synthesizer, fmt.Errorf("invalid speak url: %w", err))
	}

	encodingInfo := s.output.EncodingInfo()
	urlValues := speakUrl.Query()
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(s.voice))
	if rate != texttospeech.DefaultRate {
		urlValues.Set("speed", strconv.FormatFloat(rate, 'f', 2, 64))
	}
	speakUrl.RawQuery = urlValues.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, speakUrl.String(),
		http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, capability.NewPermissionError(capability.Synthesizer,
				fmt.Errorf("deepgram rejected credentials: %s", resp.Status))
		}
		return nil, capability.NewTransientDeviceError(capability.Synthesizer,
			fmt.Errorf("failed to open socket connection to deepgram: %w", err))
	}

	return conn, nil
}

func (s *Synthesizer) write(conn *websocket.Conn, msg websocketMessage) error {
	if conn == nil {
		return errors.New("websocket connection closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

func (s *Synthesizer) processIncomingMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			current := s.conn == conn
			var pending *utterance
			if current {
				s.conn = nil
				pending = s.current
				s.current = nil
			}
			s.mu.Unlock()
			conn.Close()

			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("deepgram speak stream ended", "error", err)
			}
			if pending != nil {
				pending.options.EndedCallback(capability.NewTransientDeviceError(capability.Synthesizer, err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.mu.Lock()
			playing := s.conn == conn && s.current != nil
			s.mu.Unlock()
			if playing && len(msg) > 0 {
				if err := s.output.SendAudio(msg); err != nil {
					logger.Warn("failed to play synthesized audio", "error", err)
				}
			}

		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				s.markEnd(conn)
			case "Warning", "Error":
				logger.Warn("deepgram speak message", "type", parsedMsg.Type, "message", string(msg))
			}
		}
	}
}

// markEnd finishes the current utterance once the output played everything
// received so far.
func (s *Synthesizer) markEnd(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn || s.current == nil {
		s.mu.Unlock()
		return
	}
	id := s.current.id
	s.mu.Unlock()

	if err := s.output.Mark(strconv.FormatUint(id, 10), func(string) { s.finish(id) }); err != nil {
		logger.Warn("failed to mark end of utterance", "error", err)
		go s.finish(id)
	}
}

func (s *Synthesizer) finish(id uint64) {
	s.mu.Lock()
	if s.current == nil || s.current.id != id {
		s.mu.Unlock()
		return
	}
	ended := s.current
	s.current = nil
	s.mu.Unlock()

	ended.options.EndedCallback(nil)
}
