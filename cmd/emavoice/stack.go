package main

import (
	"fmt"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/amplitude"
	"github.com/koscakluka/ema-voice/core/assistant/backend"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/audio/portaudio"
	"github.com/koscakluka/ema-voice/core/audio/wavfile"
	stt "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	tts "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-voice/internal/config"
	"github.com/rs/zerolog"
)

// stack owns everything the orchestrator was built from.
type stack struct {
	orchestrator    *orchestration.Orchestrator
	voiceAvailable  bool
	speechAvailable bool

	closers []func()
}

func (s *stack) Close() {
	s.orchestrator.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStack(cfg *config.Config, logger zerolog.Logger) (*stack, error) {
	s := &stack{}

	timings, err := cfg.OrchestrationTimings()
	if err != nil {
		return nil, err
	}

	assistant := backend.NewClient(
		backend.WithEndpoint(cfg.BackendURL),
		backend.WithAPIKey(cfg.BackendAPIKey),
		backend.WithDeveloperEmail(cfg.DeveloperEmail),
		backend.WithBusinessContext(cfg.BusinessContext),
	)

	opts := []orchestration.OrchestratorOption{
		orchestration.WithSendFunc(assistant.Send),
		orchestration.WithTimings(timings),
		orchestration.WithLanguage(cfg.Language),
		orchestration.WithSpeechRate(cfg.SpeechRate),
		orchestration.WithMaxChunkLength(cfg.MaxChunkLength),
		orchestration.WithBargeIn(cfg.BargeIn),
		orchestration.WithSpokenErrors(cfg.SpokenErrors),
	}

	if !cfg.VoiceAvailable() {
		logger.Warn().Msg("DEEPGRAM_API_KEY is not set, voice mode is unavailable")
		s.orchestrator = orchestration.NewOrchestrator(opts...)
		return s, nil
	}

	var speaker *miniaudio.Client
	if speaker, err = miniaudio.NewClient(miniaudio.WithLogCallback(func(message string) {
		logger.Debug().Str("source", "miniaudio").Msg(message)
	})); err != nil {
		logger.Warn().Err(err).Msg("audio unavailable, replies will not be spoken")
		speaker = nil
	} else {
		s.closers = append(s.closers, speaker.Close)
	}

	device, err := openInput(cfg, speaker)
	if err != nil {
		logger.Warn().Err(err).Str("audio_backend", cfg.AudioBackend).Msg("microphone unavailable, voice mode is disabled")
	} else {
		if closer, ok := device.(interface{ Terminate() error }); ok {
			s.closers = append(s.closers, func() { _ = closer.Terminate() })
		}
		recognizer := stt.NewRecognizer(
			stt.WithAPIKey(cfg.DeepgramAPIKey),
			stt.WithModel(cfg.DeepgramModel),
		)
		opts = append(opts,
			orchestration.WithRecognizer(recognizer),
			orchestration.WithAudioInput(device, amplitude.WithThreshold(cfg.LevelThreshold)),
		)
		s.voiceAvailable = true
	}

	if speaker != nil {
		synthesizer, err := tts.NewSynthesizer(speaker.Playback(),
			tts.WithAPIKey(cfg.DeepgramAPIKey),
			tts.WithVoice(tts.Voice(cfg.DeepgramVoice)),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("speech synthesis unavailable, replies will not be spoken")
		} else {
			s.closers = append(s.closers, func() { _ = synthesizer.Close() })
			opts = append(opts, orchestration.WithSynthesizer(synthesizer))
			s.speechAvailable = true
		}
	}

	s.orchestrator = orchestration.NewOrchestrator(opts...)
	return s, nil
}

func openInput(cfg *config.Config, speaker *miniaudio.Client) (amplitude.Device, error) {
	switch cfg.AudioBackend {
	case config.AudioBackendWAV:
		return wavfile.Open(cfg.WAVInput, wavfile.WithLoop(true))
	case config.AudioBackendPortaudio:
		return portaudio.NewClient(0)
	default:
		if speaker == nil {
			return nil, fmt.Errorf("miniaudio is not available")
		}
		return speaker.Capture(), nil
	}
}
