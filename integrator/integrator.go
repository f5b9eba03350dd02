// Package integrator implements trapezoidal integration of instantaneous
// power samples into running watt-hour accumulators.
package integrator

import "time"

// maxContinuityGap is the ceiling on the delta between two consecutive
// samples that are still treated as continuous. A gap wider than this
// discards continuity and the new sample becomes the new "first" sample.
const maxContinuityGap = 10 * time.Second

// sample is an internal (power, timestamp) pair.
type sample struct {
	power float64
	at    time.Time
	valid bool
}

// Integrator accumulates watt-hours for a single direction-independent
// quantity (e.g. solar power, which is never negative).
type Integrator struct {
	wh   float64
	prev sample
}

// New returns a zeroed Integrator.
func New() *Integrator {
	return &Integrator{}
}

// UpdatePower folds one (power, timestamp) sample into the accumulator.
// An absent sample (ok=false) leaves the accumulator unchanged and does not
// anchor the next trapezoid — the following valid sample is treated as the
// first.
func (i *Integrator) UpdatePower(p float64, t time.Time, ok bool) {
	if !ok {
		i.prev = sample{}
		return
	}

	if i.prev.valid && t.After(i.prev.at) {
		delta := t.Sub(i.prev.at)
		if delta <= maxContinuityGap {
			avg := (p + i.prev.power) / 2
			i.wh += avg * delta.Hours()
		}
	}

	i.prev = sample{power: p, at: t, valid: true}
}

// Value returns the accumulated watt-hours.
func (i *Integrator) Value() float64 {
	return i.wh
}

// Reset clears all accumulated state, including the last-sample anchor.
func (i *Integrator) Reset() {
	i.wh = 0
	i.prev = sample{}
}

// Bidirectional splits a signed power series into two independent
// non-negative accumulators — one per sign — that share a common timeline
// so neither stalls while the sign is steady.
type Bidirectional struct {
	positive *Integrator
	negative *Integrator
}

// NewBidirectional returns a zeroed Bidirectional integrator.
func NewBidirectional() *Bidirectional {
	return &Bidirectional{positive: New(), negative: New()}
}

// UpdatePower feeds a signed sample to both sub-accumulators: whichever
// side is inactive receives an explicit zero at the same timestamp so its
// timeline does not go stale.
func (b *Bidirectional) UpdatePower(p float64, t time.Time, ok bool) {
	if !ok {
		b.positive.UpdatePower(0, t, false)
		b.negative.UpdatePower(0, t, false)
		return
	}

	switch {
	case p > 0:
		b.positive.UpdatePower(p, t, true)
		b.negative.UpdatePower(0, t, true)
	case p < 0:
		b.negative.UpdatePower(-p, t, true)
		b.positive.UpdatePower(0, t, true)
	default:
		b.positive.UpdatePower(0, t, true)
		b.negative.UpdatePower(0, t, true)
	}
}

// PositiveWh returns the accumulated watt-hours on the positive side.
func (b *Bidirectional) PositiveWh() float64 {
	return b.positive.Value()
}

// NegativeWh returns the accumulated watt-hours on the negative side.
func (b *Bidirectional) NegativeWh() float64 {
	return b.negative.Value()
}

// Reset clears both sub-accumulators.
func (b *Bidirectional) Reset() {
	b.positive.Reset()
	b.negative.Reset()
}
