package ui

import "strings"

// sparkRunes are the block characters used for sparkline bars, from
// lowest to highest.
var sparkRunes = [...]rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps a fixed-size ring of throughput samples and renders
// them as a row of block characters scaled against the peak value.
type Sparkline struct {
	buf  []float64
	next int // next write position in buf
	n    int // total samples ever added
	peak float64
}

// NewSparkline returns a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{buf: make([]float64, capacity)}
}

// Add records a sample, evicting the oldest once the ring is full.
func (s *Sparkline) Add(value float64) {
	s.buf[s.next] = value
	s.next = (s.next + 1) % len(s.buf)
	s.n++

	if value > s.peak {
		s.peak = value
	}
	// The peak only ratchets up on Add; rescan once per full wrap so
	// old spikes eventually stop flattening the chart.
	if s.n%len(s.buf) == 0 {
		s.rescale()
	}
}

func (s *Sparkline) rescale() {
	s.peak = 1
	for _, v := range s.buf {
		if v > s.peak {
			s.peak = v
		}
	}
}

// ordered returns the buffered samples oldest first.
func (s *Sparkline) ordered() []float64 {
	if s.n < len(s.buf) {
		return s.buf[:s.n]
	}
	out := make([]float64, 0, len(s.buf))
	out = append(out, s.buf[s.next:]...)
	out = append(out, s.buf[:s.next]...)
	return out
}

// Render draws the sparkline at its full capacity.
func (s *Sparkline) Render() string {
	return s.RenderWithWidth(len(s.buf))
}

// RenderWithWidth draws the most recent width samples. Positions with
// no sample yet render as spaces so the chart grows left to right.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width > len(s.buf) {
		width = len(s.buf)
	}

	samples := s.ordered()
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	peak := s.peak
	if peak <= 0 {
		peak = 1
	}

	var b strings.Builder
	b.Grow(width * 3) // block runes are 3 bytes in UTF-8
	for _, v := range samples {
		level := int(v / peak * float64(len(sparkRunes)-1))
		if level < 0 {
			level = 0
		}
		if level > len(sparkRunes)-1 {
			level = len(sparkRunes) - 1
		}
		b.WriteRune(sparkRunes[level])
	}
	for i := len(samples); i < width; i++ {
		b.WriteRune(' ')
	}
	return b.String()
}

// Clear discards all samples.
func (s *Sparkline) Clear() {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.next = 0
	s.n = 0
	s.peak = 0
}

// Count returns how many samples have been added.
func (s *Sparkline) Count() int {
	return s.n
}

// Max returns the peak value the chart is currently scaled against.
func (s *Sparkline) Max() float64 {
	return s.peak
}
