package engine

import "time"

// DefaultMeterWindow is how far back throughput is averaged.
const DefaultMeterWindow = 7 * time.Second

const meterResolution = 100 * time.Millisecond

type sample struct {
	at       time.Time
	progress uint64
}

// Meter measures throughput over a sliding window of progress samples.
type Meter struct {
	window  time.Duration
	samples []sample
}

// NewMeter returns a meter averaging over window.
func NewMeter(window time.Duration) *Meter {
	if window <= 0 {
		window = DefaultMeterWindow
	}
	return &Meter{window: window}
}

// Observe records progress at now. Samples closer together than the meter
// resolution are merged.
func (m *Meter) Observe(now time.Time, progress uint64) {
	s := sample{at: now, progress: progress}
	if n := len(m.samples); n > 1 && now.Sub(m.samples[n-2].at) < meterResolution {
		m.samples[n-1] = s
	} else {
		m.samples = append(m.samples, s)
	}

	cut := 0
	for cut < len(m.samples)-1 && now.Sub(m.samples[cut].at) > m.window {
		cut++
	}
	if cut > 0 {
		m.samples = append(m.samples[:0], m.samples[cut:]...)
	}
}

// Rate returns bytes per second across the window, 0 until two samples
// have been seen.
func (m *Meter) Rate() uint64 {
	if len(m.samples) < 2 {
		return 0
	}
	first, last := m.samples[0], m.samples[len(m.samples)-1]
	elapsed := last.at.Sub(first.at)
	if elapsed <= 0 || last.progress < first.progress {
		return 0
	}
	return uint64(float64(last.progress-first.progress) / elapsed.Seconds())
}

// Reset drops all samples.
func (m *Meter) Reset() {
	m.samples = m.samples[:0]
}
