package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/archive"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/observability"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/internal/config"
	"github.com/koscakluka/ema-realtime/internal/httpapi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.APIKey == "" {
		return realtime.ErrMissingAPIKey
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)
	eventLog := events.NewLog(cfg.EventLogCapacity)

	var (
		store     *archive.Store
		exporters archive.MultiExporter
	)
	if cfg.ArchivePath != "" {
		store, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("archive init failed: %w", err)
		}
		defer store.Close()
		exporters = append(exporters, store)
	}
	if cfg.ExportDir != "" {
		exporters = append(exporters, archive.DirExporter{Dir: cfg.ExportDir})
	}

	devices, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("audio backend unavailable: %w", err)
	}
	defer devices.close()

	info := cfg.EncodingInfo()
	capture := orchestration.NewCaptureSession(devices.capture,
		orchestration.WithCaptureEncoding(info),
		orchestration.WithCaptureBlockSize(cfg.BlockSize),
	)
	playback := orchestration.NewPlaybackStream(devices.playback,
		orchestration.WithPlaybackEncoding(info),
		orchestration.WithRenderedCallback(metrics.Rendered),
	)

	reconcilerOpts := []conversations.ReconcilerOption{
		conversations.WithAudioSink(playback),
		conversations.WithSampleRate(realtime.WireSampleRate),
		conversations.WithCompletedCallback(func(item conversations.Item) {
			metrics.ItemCompleted(string(item.Role))
			if store == nil {
				return
			}
			if err := store.SaveItem(context.Background(), item); err != nil {
				logger.Warn("failed to archive item", "item_id", item.ID, "error", err)
			}
		}),
	}
	if len(exporters) > 0 {
		reconcilerOpts = append(reconcilerOpts, conversations.WithExporter(countingExporter{exporters, metrics}))
	}
	reconciler := conversations.NewReconciler(reconcilerOpts...)

	errs := make(chan error, 16)
	controller := orchestration.NewController(capture, playback, reconciler,
		orchestration.WithSessionConfig(cfg.SessionConfig()),
		orchestration.WithEventLog(eventLog),
		orchestration.WithMetrics(metrics),
		orchestration.WithErrorCallback(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
		orchestration.WithToolResultCallback(func(event events.ToolResultReady) {
			logger.Info("tool result submitted", "call_id", event.CallID)
		}),
	)
	defer controller.Close(context.Background())

	dial := func(ctx context.Context) error {
		client, err := realtime.Dial(ctx, cfg.RealtimeConfig(),
			realtime.WithEventHook(func(source events.Source, eventType string) {
				eventLog.Record(source, eventType)
				metrics.WireEvent(string(source), eventType)
			}),
		)
		if err != nil {
			return err
		}
		if err := controller.Connect(ctx, client); err != nil {
			_ = client.Close()
			return err
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout+5*time.Second)
	err = dial(ctx)
	cancel()
	if err != nil {
		var deviceErr *audio.DeviceError
		if errors.As(err, &deviceErr) {
			return fmt.Errorf("audio device unavailable: %s", deviceErr.Kind)
		}
		return fmt.Errorf("connect failed: %w", err)
	}

	if cfg.MetricsAddr != "" {
		var clips httpapi.ClipSource
		if store != nil {
			clips = store
		}
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           httpapi.New(controller, clips, metrics, func() string { return controller.State().String() }).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	program := tea.NewProgram(newModel(controller, cfg, errs, dial), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal ui failed: %w", err)
	}
	return nil
}

// countingExporter records the result of every export.
type countingExporter struct {
	next    conversations.Exporter
	metrics *observability.Metrics
}

func (e countingExporter) Export(ctx context.Context, itemID string, container []byte) error {
	err := e.next.Export(ctx, itemID, container)
	e.metrics.ClipExported(err)
	return err
}

// slog's default handler would write over the terminal ui
var logger = otelslog.NewLogger("github.com/koscakluka/ema-realtime/cmd/ema-realtime")
