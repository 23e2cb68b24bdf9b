package redfish

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PacerSettings configures request pacing towards the service.
type PacerSettings struct {
	// Requests per Window feed a token bucket; zero disables it.
	Requests int
	Window   time.Duration
	// Delay is the minimum gap between two requests.
	Delay time.Duration
}

// Pacer spaces out requests so small BMCs are not overwhelmed. A mockup run
// talks to a single host, so one bucket covers everything.
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter

	mu   sync.Mutex
	last time.Time
}

// NewPacer returns nil when no pacing is configured; a nil Pacer never waits.
func NewPacer(s PacerSettings) *Pacer {
	if s.Delay <= 0 && (s.Requests <= 0 || s.Window <= 0) {
		return nil
	}
	p := &Pacer{delay: s.Delay}
	if s.Requests > 0 && s.Window > 0 {
		interval := s.Window / time.Duration(s.Requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		p.limiter = rate.NewLimiter(rate.Every(interval), s.Requests)
	}
	return p
}

// Wait blocks until the next request may be sent.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var sleep time.Duration
	p.mu.Lock()
	if p.delay > 0 && !p.last.IsZero() {
		if rest := p.last.Add(p.delay).Sub(time.Now()); rest > 0 {
			sleep = rest
		}
	}
	p.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}
