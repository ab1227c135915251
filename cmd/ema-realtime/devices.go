package main

import (
	"context"
	"fmt"

	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/audio/miniaudio"
	"github.com/koscakluka/ema-realtime/core/audio/portaudio"
	"github.com/koscakluka/ema-realtime/internal/config"
)

// backend adapts one audio library to the device openers of the capture
// session and the playback stream.
type backend struct {
	name     string
	capture  orchestration.CaptureOpener
	playback orchestration.PlaybackOpener
	close    func() error
}

func openBackend(cfg config.Config) (*backend, error) {
	switch cfg.AudioBackend {
	case config.BackendPortaudio:
		client, err := portaudio.NewClient(cfg.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("portaudio: %w", err)
		}
		return &backend{
			name: config.BackendPortaudio,
			capture: func(ctx context.Context, info audio.EncodingInfo) (orchestration.CaptureDevice, error) {
				device, err := client.OpenCapture(ctx, info)
				if err != nil {
					return nil, err
				}
				return device, nil
			},
			playback: func(ctx context.Context, info audio.EncodingInfo) (orchestration.PlaybackDevice, error) {
				device, err := client.OpenPlayback(ctx, info)
				if err != nil {
					return nil, err
				}
				return device, nil
			},
			close: client.Close,
		}, nil

	default:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("miniaudio: %w", err)
		}
		return &backend{
			name: config.BackendMiniaudio,
			capture: func(ctx context.Context, info audio.EncodingInfo) (orchestration.CaptureDevice, error) {
				device, err := client.OpenCapture(ctx, info)
				if err != nil {
					return nil, err
				}
				return device, nil
			},
			playback: func(ctx context.Context, info audio.EncodingInfo) (orchestration.PlaybackDevice, error) {
				device, err := client.OpenPlayback(ctx, info)
				if err != nil {
					return nil, err
				}
				return device, nil
			},
			close: client.Close,
		}, nil
	}
}
