// Command emavoice is a terminal chat with the customer care assistant that
// can be spoken to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/internal/config"
	"github.com/koscakluka/ema-voice/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "emavoice: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logFile, err := observability.OpenLogFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := observability.NewLogger(logFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := observability.Serve(ctx, cfg.MetricsAddr, registry); err != nil {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	logger.Info().
		Str("backend_url", cfg.BackendURL).
		Str("audio_backend", cfg.AudioBackend).
		Bool("voice_available", stack.voiceAvailable).
		Bool("speech_available", stack.speechAvailable).
		Msg("emavoice starting")

	program := tea.NewProgram(newModel(stack.orchestrator, stack.voiceAvailable), tea.WithAltScreen(), tea.WithContext(ctx))

	logEvent := observability.EventLogger(logger)
	stack.orchestrator.Orchestrate(ctx, orchestration.WithEventHandler(func(event events.Event) {
		metrics.Observe(event)
		logEvent(event)
		program.Send(eventMsg{event: event})
	}))

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
