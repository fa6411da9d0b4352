// Package config loads the demo binary's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jinzhu/copier"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	orchestration "github.com/koscakluka/ema-voice/core"
)

const (
	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
	AudioBackendWAV       = "wav"
)

type Config struct {
	// Assistant backend
	BackendURL      string `envconfig:"BACKEND_URL" default:"http://localhost:8080/chat"`
	BackendAPIKey   string `envconfig:"BACKEND_API_KEY"`
	DeveloperEmail  string `envconfig:"DEVELOPER_EMAIL"`
	BusinessContext string `envconfig:"BUSINESS_CONTEXT"`

	// Deepgram speech services. Without a key voice mode is unavailable and
	// replies are only shown.
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-3"`
	DeepgramVoice  string `envconfig:"DEEPGRAM_VOICE" default:"aura-2-thalia-en"`
	Language       string `envconfig:"RECOGNITION_LANGUAGE" default:"en-US"`

	// Audio
	AudioBackend   string  `envconfig:"AUDIO_BACKEND" default:"miniaudio"`
	WAVInput       string  `envconfig:"WAV_INPUT"`
	LevelThreshold float64 `envconfig:"LEVEL_THRESHOLD" default:"0.04"`

	// Turn taking
	Timings        Timings `envconfig:"TIMING"`
	SpeechRate     float64 `envconfig:"SPEECH_RATE" default:"1.0"`
	MaxChunkLength int     `envconfig:"MAX_CHUNK_LENGTH" default:"200"`
	BargeIn        bool    `envconfig:"BARGE_IN" default:"true"`
	SpokenErrors   bool    `envconfig:"SPOKEN_ERRORS" default:"true"`

	// Observability
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile     string `envconfig:"LOG_FILE" default:"emavoice.log"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Timings mirrors [orchestration.Timings]. Keys are prefixed with TIMING_.
type Timings struct {
	SilenceTimeout  time.Duration `envconfig:"SILENCE_TIMEOUT" default:"1500ms"`
	EchoCooldown    time.Duration `envconfig:"ECHO_COOLDOWN" default:"800ms"`
	RestartBackoff  time.Duration `envconfig:"RESTART_BACKOFF" default:"100ms"`
	InterChunkDelay time.Duration `envconfig:"INTER_CHUNK_DELAY" default:"300ms"`
}

// Load reads a .env file if there is one, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads the environment only.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{AudioBackendMiniaudio, AudioBackendPortaudio, AudioBackendWAV}, c.AudioBackend) {
		errs = append(errs, fmt.Errorf("AUDIO_BACKEND must be one of miniaudio, portaudio or wav, got %q", c.AudioBackend))
	}
	if c.AudioBackend == AudioBackendWAV && c.WAVInput == "" {
		errs = append(errs, errors.New("WAV_INPUT is required with AUDIO_BACKEND=wav"))
	}
	if c.SpeechRate <= 0 {
		errs = append(errs, fmt.Errorf("SPEECH_RATE must be positive, got %v", c.SpeechRate))
	}
	if c.MaxChunkLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CHUNK_LENGTH must be positive, got %d", c.MaxChunkLength))
	}
	if c.LevelThreshold <= 0 || c.LevelThreshold >= 1 {
		errs = append(errs, fmt.Errorf("LEVEL_THRESHOLD must be between 0 and 1, got %v", c.LevelThreshold))
	}
	if c.Timings.SilenceTimeout <= 0 || c.Timings.EchoCooldown < 0 || c.Timings.InterChunkDelay < 0 {
		errs = append(errs, errors.New("TIMING_SILENCE_TIMEOUT must be positive and the other timings not negative"))
	}
	return errors.Join(errs...)
}

// VoiceAvailable reports whether speech services are configured.
func (c *Config) VoiceAvailable() bool {
	return c.DeepgramAPIKey != ""
}

func (c *Config) OrchestrationTimings() (orchestration.Timings, error) {
	timings := orchestration.DefaultTimings()
	if err := copier.Copy(&timings, &c.Timings); err != nil {
		return timings, fmt.Errorf("failed to map timings: %w", err)
	}
	return timings, nil
}
