package orchestration

import (
	"context"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/observability"
)

// uplink moves captured frames off the device thread and streams them to the
// remote in order. Frames are dropped when the remote falls behind.
type uplink struct {
	frames chan audio.Frame
	done   chan struct{}
	exited chan struct{}
}

func startUplink(remote Remote, buffer int, metrics *observability.Metrics) *uplink {
	u := &uplink{
		frames: make(chan audio.Frame, buffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	worker := panicSafeNamedWorker("uplink", func(ctx context.Context) error {
		for {
			select {
			case <-u.done:
				return nil
			case frame := <-u.frames:
				if err := remote.AppendInputAudio(ctx, frame); err != nil {
					logger.DebugContext(ctx, "failed to send captured audio", "error", err)
					continue
				}
				metrics.FrameCaptured()
			}
		}
	})

	go func() {
		defer close(u.exited)
		if err := worker(context.Background()); err != nil {
			logger.Error("uplink stopped", "error", err)
		}
	}()
	return u
}

// send runs on the capture device thread and never blocks.
func (u *uplink) send(frame audio.Frame) {
	select {
	case u.frames <- frame:
	default:
		logger.Warn("dropping captured frame, remote is behind", "samples", frame.Len())
	}
}

func (u *uplink) stop() {
	if u == nil {
		return
	}
	close(u.done)
	<-u.exited
}
