package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Spectrum holds normalized magnitude per frequency bin, lowest first.
type Spectrum struct {
	Values []float64
}

// ZeroSpectrum is reported when there is nothing to analyse.
func ZeroSpectrum() Spectrum {
	return Spectrum{Values: []float64{0}}
}

func (s Spectrum) IsZero() bool {
	for _, v := range s.Values {
		if v != 0 {
			return false
		}
	}
	return true
}

// Decibels converts magnitudes to dBFS, clamped at floor.
func (s Spectrum) Decibels(floor float64) []float64 {
	out := make([]float64, len(s.Values))
	for i, v := range s.Values {
		db := floor
		if v > 0 {
			db = 20 * math.Log10(v)
		}
		out[i] = math.Max(floor, db)
	}
	return out
}

// Bands averages bins into n bands of equal width.
func (s Spectrum) Bands(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if len(s.Values) == 0 {
		return out
	}
	for band := range n {
		start := band * len(s.Values) / n
		end := (band + 1) * len(s.Values) / n
		if end <= start {
			end = start + 1
		}
		if end > len(s.Values) {
			out[band] = 0
			continue
		}
		sum := 0.0
		for _, v := range s.Values[start:end] {
			sum += v
		}
		out[band] = sum / float64(end-start)
	}
	return out
}

// Analyser keeps the most recent samples written by an audio callback and
// produces frequency snapshots on demand. Writers and readers may run on
// different goroutines.
type Analyser struct {
	mu      sync.Mutex
	size    int
	ring    []float64
	next    int
	written int

	fftMu sync.Mutex
	fft   *fourier.FFT
}

func NewAnalyser(fftSize int) *Analyser {
	if fftSize <= 1 {
		fftSize = DefaultFFTSize
	}
	return &Analyser{
		size: fftSize,
		ring: make([]float64, fftSize),
		fft:  fourier.NewFFT(fftSize),
	}
}

func (a *Analyser) WritePCM16(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		if s < 0 {
			a.pushLocked(float64(s) / 32768)
		} else {
			a.pushLocked(float64(s) / 32767)
		}
	}
}

func (a *Analyser) WriteFloat(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.pushLocked(float64(s))
	}
}

func (a *Analyser) pushLocked(v float64) {
	a.ring[a.next] = v
	a.next = (a.next + 1) % a.size
	if a.written < a.size {
		a.written++
	}
}

func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.next = 0
	a.written = 0
}

// Snapshot windows the latest samples and returns size/2 magnitude bins.
// It never blocks waiting for audio.
func (a *Analyser) Snapshot() Spectrum {
	a.mu.Lock()
	if a.written == 0 {
		a.mu.Unlock()
		return ZeroSpectrum()
	}
	seq := make([]float64, a.size)
	// oldest sample first; missing history stays zero
	for i := range a.size {
		seq[i] = a.ring[(a.next+i)%a.size]
	}
	a.mu.Unlock()

	window.Hann(seq)
	a.fftMu.Lock()
	coeffs := a.fft.Coefficients(nil, seq)
	a.fftMu.Unlock()

	values := make([]float64, a.size/2)
	scale := 2 / float64(a.size)
	for i := range values {
		values[i] = cmplx.Abs(coeffs[i]) * scale
	}
	return Spectrum{Values: values}
}
