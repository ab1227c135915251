package audio

import "time"

const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	DefaultFormat     = "linear16"

	// DefaultBlockSize is the number of samples in one captured frame.
	DefaultBlockSize = 2048
	// DefaultFFTSize is the window used by frequency snapshots.
	DefaultFFTSize = 2048
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// Duration returns the play time of n samples per channel.
func (e EncodingInfo) Duration(samples int) time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / float64(e.SampleRate) * float64(time.Second))
}

// Samples returns how many samples per channel fit in the duration.
func (e EncodingInfo) Samples(d time.Duration) int {
	return int(float64(d) / float64(time.Second) * float64(e.SampleRate))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	case EncodingFloat32:
		return 4
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFloat32  encodingFormat = "float32"
)

// Frame is a block of mono PCM16 samples at a given sample rate.
type Frame struct {
	Samples    []int16
	SampleRate int
}

func (f Frame) Len() int { return len(f.Samples) }

func (f Frame) Duration() time.Duration {
	return EncodingInfo{SampleRate: f.SampleRate}.Duration(len(f.Samples))
}
