package audio

import (
	"math"
	"testing"
)

func TestAnalyserSnapshotIsZeroWithoutSamples(t *testing.T) {
	a := NewAnalyser(64)

	got := a.Snapshot()
	if len(got.Values) != 1 || got.Values[0] != 0 {
		t.Fatalf("expected zero spectrum, got %v", got.Values)
	}
}

func TestAnalyserSnapshotFindsTone(t *testing.T) {
	const size = 256
	a := NewAnalyser(size)

	tone := make([]float32, size)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*16*float64(i)/size))
	}
	a.WriteFloat(tone)

	got := a.Snapshot()
	if len(got.Values) != size/2 {
		t.Fatalf("expected %d bins, got %d", size/2, len(got.Values))
	}
	peak := 0
	for i, v := range got.Values {
		if v > got.Values[peak] {
			peak = i
		}
	}
	if peak != 16 {
		t.Fatalf("expected peak at bin 16, got %d", peak)
	}
}

func TestAnalyserResetReturnsToZero(t *testing.T) {
	a := NewAnalyser(32)
	a.WritePCM16([]int16{1000, -1000, 1000})
	if a.Snapshot().IsZero() {
		t.Fatalf("expected non-zero spectrum after writes")
	}

	a.Reset()
	if !a.Snapshot().IsZero() {
		t.Fatalf("expected zero spectrum after reset")
	}
}

func TestSpectrumBandsAndDecibels(t *testing.T) {
	s := Spectrum{Values: []float64{1, 1, 0.1, 0.1}}

	bands := s.Bands(2)
	if len(bands) != 2 || bands[0] != 1 || math.Abs(bands[1]-0.1) > 1e-9 {
		t.Fatalf("expected [1 0.1], got %v", bands)
	}

	db := Spectrum{Values: []float64{1, 0}}.Decibels(-90)
	if db[0] != 0 || db[1] != -90 {
		t.Fatalf("expected [0 -90], got %v", db)
	}
}
