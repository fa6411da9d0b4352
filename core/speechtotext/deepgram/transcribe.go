package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

var errNotStarted = errors.New("deepgram recognizer not started")

// Start opens a streaming connection. A missing API key or an encoding
// Deepgram cannot take is reported as a [capability.UnsupportedError], a
// rejected key as a [capability.PermissionError]. Any other connection
// failure is transient.
func (r *Recognizer) Start(ctx context.Context, opts ...speechtotext.RecognitionOption) error {
	options := speechtotext.NewRecognitionOptions(opts...)

	if r.apiKey == "" {
		return capability.NewUnsupportedError(capability.Recognizer, errors.New("deepgram api key not found"))
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return capability.NewUnsupportedError(capability.Recognizer, fmt.Errorf("invalid encoding: %w", err))
	}

	if err := r.Stop(); err != nil {
		logger.DebugContext(ctx, "failed to close previous deepgram stream", "error", err)
	}

	conn, err := r.connectWebsocket(ctx, connectionOptions{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format,
		language:   options.Language,
	})
	if err != nil {
		return err
	}

	keepAliveCtx, cancelKeepAlive := context.WithCancel(context.Background())

	r.connMu.Lock()
	r.conn = conn
	r.lastAudioTs = r.clock.Now()
	r.cancelKeepAlive = cancelKeepAlive
	r.connMu.Unlock()

	go r.keepAlive(keepAliveCtx, conn)
	go r.readAndProcessMessages(conn, options)

	return nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string
	language   string
}

func (r *Recognizer) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	listenUrl, err := url.Parse(r.listenURL)
	if err != nil {
		return nil, capability.NewUnsupportedError(capability.Recognizer, fmt.Errorf("invalid listen url: %w", err))
	}

	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", r.model)
	queryParams.Set("language", options.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	listenUrl.RawQuery = queryParams.Encode()

	conn, resp, err := r.dialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, capability.NewPermissionError(capability.Recognizer,
				fmt.Errorf("deepgram rejected credentials: %s", resp.Status))
		}
		return nil, capability.NewTransientDeviceError(capability.Recognizer,
			fmt.Errorf("failed to open socket connection to deepgram: %w", err))
	}

	return conn, nil
}

// SendAudio forwards one captured frame.
func (r *Recognizer) SendAudio(audio []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return errNotStarted
	}

	r.lastAudioTs = r.clock.Now()
	if err := r.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Stop closes the stream. It is a no-op when the recognizer is not running,
// and the ended callback of the closed stream is not called.
func (r *Recognizer) Stop() error {
	r.connMu.Lock()
	conn := r.conn
	r.conn = nil
	if r.cancelKeepAlive != nil {
		r.cancelKeepAlive()
		r.cancelKeepAlive = nil
	}

	var errs []error
	if conn != nil {
		if err := conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			errs = append(errs, fmt.Errorf("failed to close deepgram stream: %w", err))
		}
	}
	r.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close deepgram socket: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Recognizer) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := r.clock.NewTicker(r.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.sendKeepAlive(conn)
		}
	}
}

func (r *Recognizer) sendKeepAlive(conn *websocket.Conn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn != conn || r.clock.Since(r.lastAudioTs) < r.keepAliveInterval {
		return
	}

	if err := conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		logger.Warn("failed to write keepalive to deepgram", "error", err)
	}
}

func (r *Recognizer) readAndProcessMessages(conn *websocket.Conn, options speechtotext.RecognitionOptions) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			r.connMu.Lock()
			current := r.conn == conn
			if current {
				r.conn = nil
				if r.cancelKeepAlive != nil {
					r.cancelKeepAlive()
					r.cancelKeepAlive = nil
				}
			}
			r.connMu.Unlock()
			conn.Close()

			if !current {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				options.EndedCallback(nil)
				return
			}
			logger.Warn("deepgram stream ended", "error", err)
			options.EndedCallback(capability.NewTransientDeviceError(capability.Recognizer, err))
			return
		}
		if msgType != websocket.BinaryMessage {
			r.processMessage(msg, options)
		}
	}
}

func (r *Recognizer) processMessage(msg []byte, options speechtotext.RecognitionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return
		}

		var transcript string
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		if msgResp.IsFinal {
			update := speechtotext.Update{}
			if transcript != "" {
				update.Final = []string{transcript}
			}
			options.UpdateCallback(update)
		} else if transcript != "" {
			options.UpdateCallback(speechtotext.Update{Interim: transcript})
		}

	case api.TypeResponse("Error"):
		logger.Warn("deepgram reported an error", "message", string(msg))
	}
}
