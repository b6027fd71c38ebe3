package vision

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type PacerConfig struct {
	CallDelay         time.Duration // pause after every model call
	ErrorDelay        time.Duration // shorter pause after a failed call
	RequestsPerMinute float64       // ceiling shared by every build using this pacer; 0 disables it
}

// Pacer owns the request scheduling policy of the vision model. The limiter
// bounds the request rate across concurrent builds sharing one credential;
// the fixed delays space out calls within a single build.
type Pacer struct {
	config  PacerConfig
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewPacer(config PacerConfig) *Pacer {
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(config.RequestsPerMinute / 60)
	}
	return &Pacer{
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
	}
}

// WithSleep replaces the delay function, letting tests observe pacing
// without waiting.
func (p *Pacer) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Pacer {
	p.sleep = sleep
	return p
}

// Before blocks until the shared limiter admits another request.
func (p *Pacer) Before(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// After applies the inter-call delay for a call that finished with err.
func (p *Pacer) After(ctx context.Context, err error) error {
	d := p.config.CallDelay
	if err != nil {
		d = p.config.ErrorDelay
	}
	if d <= 0 {
		return nil
	}
	return p.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
