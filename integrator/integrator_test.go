package integrator

import (
	"math"
	"testing"
	"time"
)

func TestConstantPowerIntegratesToExpectedEnergy(t *testing.T) {
	const p = 1000.0 // 1 kW
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	i := New()
	n := 30
	step := 2 * time.Second
	for k := 0; k < n; k++ {
		i.UpdatePower(p, start.Add(time.Duration(k)*step), true)
	}

	elapsed := time.Duration(n-1) * step
	want := p * elapsed.Hours()
	if got := i.Value(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Value() = %v, want %v (diff %v)", got, want, got-want)
	}
}

func TestAbsentSampleDoesNotAnchor(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := New()

	i.UpdatePower(0, start, false)
	i.UpdatePower(0, start.Add(2*time.Second), false)
	i.UpdatePower(500, start.Add(4*time.Second), true)

	if got := i.Value(); got != 0 {
		t.Errorf("Value() = %v, want 0 after two absent samples then one valid sample", got)
	}
}

func TestGapBeyondCeilingResetsContinuity(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := New()

	i.UpdatePower(1000, start, true)
	i.UpdatePower(1000, start.Add(20*time.Second), true) // beyond 10s ceiling
	if got := i.Value(); got != 0 {
		t.Errorf("Value() = %v, want 0 (gap should discard continuity)", got)
	}
}

func TestBidirectionalMonotonicAndNonNegative(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBidirectional()

	samples := []float64{500, -300, 0, 200, -100, 100}
	var lastPos, lastNeg float64
	for k, p := range samples {
		b.UpdatePower(p, start.Add(time.Duration(k)*2*time.Second), true)
		pos, neg := b.PositiveWh(), b.NegativeWh()
		if pos < 0 || neg < 0 {
			t.Fatalf("negative accumulator value: pos=%v neg=%v", pos, neg)
		}
		if pos < lastPos-1e-9 || neg < lastNeg-1e-9 {
			t.Fatalf("accumulator decreased: pos %v->%v neg %v->%v", lastPos, pos, lastNeg, neg)
		}
		lastPos, lastNeg = pos, neg
	}
}

func TestBidirectionalZeroCrossingPreservesTimeline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBidirectional()

	b.UpdatePower(1000, start, true)
	b.UpdatePower(-1000, start.Add(2*time.Second), true)

	if got := b.PositiveWh(); got <= 0 {
		t.Errorf("PositiveWh() = %v, want > 0 from the trapezoid down to zero", got)
	}
	if got := b.NegativeWh(); got <= 0 {
		t.Errorf("NegativeWh() = %v, want > 0 from the trapezoid up from zero", got)
	}
}

func TestResetClearsState(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := New()
	i.UpdatePower(1000, start, true)
	i.UpdatePower(1000, start.Add(2*time.Second), true)
	i.Reset()
	if i.Value() != 0 {
		t.Errorf("Value() after Reset = %v, want 0", i.Value())
	}
	// next sample after reset must not integrate against the pre-reset prev
	i.UpdatePower(1000, start.Add(4*time.Second), true)
	if i.Value() != 0 {
		t.Errorf("Value() = %v, want 0 for first sample after reset", i.Value())
	}
}
