package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

const (
	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
)

// Config contains the runtime settings of the terminal client.
type Config struct {
	RealtimeURL   string
	APIKey        string
	Model         string
	DialTimeout   time.Duration
	Voice         string
	Instructions  string
	TurnMode      realtime.TurnMode
	Transcription bool

	AudioBackend string
	// SampleRate is the device rate. Audio is resampled to
	// realtime.WireSampleRate for the remote.
	SampleRate int
	BlockSize  int

	ArchivePath      string
	ExportDir        string
	MetricsAddr      string
	MetricsNamespace string
	EventLogCapacity int

	// Speakers are the ids selectable with the number keys.
	Speakers []string
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		RealtimeURL:      envOrDefault("REALTIME_URL", realtime.DefaultURL),
		APIKey:           strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:            envOrDefault("REALTIME_MODEL", realtime.DefaultModel),
		DialTimeout:      10 * time.Second,
		Voice:            envOrDefault("REALTIME_VOICE", "alloy"),
		Instructions:     strings.TrimSpace(os.Getenv("REALTIME_INSTRUCTIONS")),
		Transcription:    true,
		AudioBackend:     strings.ToLower(envOrDefault("AUDIO_BACKEND", BackendMiniaudio)),
		SampleRate:       audio.DefaultSampleRate,
		BlockSize:        audio.DefaultBlockSize,
		ArchivePath:      strings.TrimSpace(os.Getenv("ARCHIVE_PATH")),
		ExportDir:        strings.TrimSpace(os.Getenv("EXPORT_DIR")),
		MetricsAddr:      strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		MetricsNamespace: envOrDefault("METRICS_NAMESPACE", "ema_realtime"),
		EventLogCapacity: 200,
		Speakers:         listFromEnv("SPEAKERS", []string{"1", "2", "3", "4"}),
	}

	var err error
	cfg.DialTimeout, err = durationFromEnv("DIAL_TIMEOUT", cfg.DialTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRate, err = intFromEnv("AUDIO_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.BlockSize, err = intFromEnv("AUDIO_BLOCK_SIZE", cfg.BlockSize)
	if err != nil {
		return Config{}, err
	}
	cfg.EventLogCapacity, err = intFromEnv("EVENT_LOG_CAPACITY", cfg.EventLogCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.Transcription, err = boolFromEnv("TRANSCRIPTION_ENABLED", cfg.Transcription)
	if err != nil {
		return Config{}, err
	}
	cfg.TurnMode, err = realtime.ParseTurnMode(envOrDefault("TURN_MODE", string(realtime.TurnModeManual)))
	if err != nil {
		return Config{}, fmt.Errorf("TURN_MODE parse error: %w", err)
	}

	switch cfg.AudioBackend {
	case BackendMiniaudio, BackendPortaudio:
	default:
		return Config{}, fmt.Errorf("AUDIO_BACKEND must be %s or %s", BackendMiniaudio, BackendPortaudio)
	}
	if cfg.SampleRate < 8000 || cfg.SampleRate > 96000 {
		return Config{}, fmt.Errorf("AUDIO_SAMPLE_RATE must be between 8000 and 96000")
	}
	if cfg.BlockSize <= 0 {
		return Config{}, fmt.Errorf("AUDIO_BLOCK_SIZE must be positive")
	}
	if cfg.DialTimeout <= 0 {
		return Config{}, fmt.Errorf("DIAL_TIMEOUT must be positive")
	}
	if cfg.EventLogCapacity <= 0 {
		return Config{}, fmt.Errorf("EVENT_LOG_CAPACITY must be positive")
	}
	if len(cfg.Speakers) > 9 {
		return Config{}, fmt.Errorf("SPEAKERS must list at most 9 ids")
	}

	return cfg, nil
}

// SessionConfig is the initial remote session derived from cfg.
func (c Config) SessionConfig() realtime.SessionConfig {
	return realtime.SessionConfig{
		SampleRate:           realtime.WireSampleRate,
		TurnMode:             c.TurnMode,
		TranscriptionEnabled: c.Transcription,
		Instructions:         c.Instructions,
		Voice:                c.Voice,
	}
}

func (c Config) RealtimeConfig() realtime.Config {
	return realtime.Config{
		URL:         c.RealtimeURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		DialTimeout: c.DialTimeout,
	}
}

func (c Config) EncodingInfo() audio.EncodingInfo {
	info := audio.GetDefaultEncodingInfo()
	info.SampleRate = c.SampleRate
	return info
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func listFromEnv(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
