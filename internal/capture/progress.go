package capture

import (
	"sync"
	"time"
)

// Progress bounds
const (
	ProgressComplete = 100.0
	progressCeiling  = 95.0
)

// NextProgress returns the simulated progress one tick after current.
// It slows down as it climbs and never passes 95 on its own.
func NextProgress(current float64) float64 {
	switch {
	case current < 50:
		return current + 3
	case current < 70:
		return current + 2
	case current < 90:
		return current + 1
	case current < progressCeiling:
		return min(current+0.5, progressCeiling)
	default:
		return current
	}
}

// ProgressSimulator produces a synthetic progress value while an extraction is in flight.
// Every Start begins a new generation; ticks from an older generation are ignored.
type ProgressSimulator struct {
	interval time.Duration
	onTick   func(float64)

	mu    sync.Mutex
	value float64
	gen   uint64
	stop  chan struct{}
}

// NewProgressSimulator creates a simulator ticking every interval. onTick, if set,
// is called without locks held after each natural advance.
func NewProgressSimulator(interval time.Duration, onTick func(float64)) *ProgressSimulator {
	return &ProgressSimulator{
		interval: interval,
		onTick:   onTick,
	}
}

// Start resets progress to 0 and begins ticking
func (p *ProgressSimulator) Start() {
	p.mu.Lock()
	p.halt()
	p.gen++
	p.value = 0
	stop := make(chan struct{})
	p.stop = stop
	gen := p.gen
	p.mu.Unlock()

	go p.run(gen, stop)
}

// Complete jumps to 100 and stops ticking. It is idempotent.
func (p *ProgressSimulator) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halt()
	p.gen++
	p.value = ProgressComplete
}

// Stop halts ticking and keeps the current value
func (p *ProgressSimulator) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halt()
	p.gen++
}

// Reset halts ticking and returns progress to 0
func (p *ProgressSimulator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halt()
	p.gen++
	p.value = 0
}

// Value returns the current progress in [0,100]
func (p *ProgressSimulator) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// running reports whether the simulator is ticking
func (p *ProgressSimulator) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// halt must be called with mu held
func (p *ProgressSimulator) halt() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *ProgressSimulator) run(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !p.tick(gen) {
				return
			}
		}
	}
}

// tick advances one step if gen is still current
func (p *ProgressSimulator) tick(gen uint64) bool {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return false
	}
	prev := p.value
	p.value = NextProgress(prev)
	next := p.value
	p.mu.Unlock()

	if next != prev && p.onTick != nil {
		p.onTick(next)
	}
	return true
}
