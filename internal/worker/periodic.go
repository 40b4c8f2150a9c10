package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Periodic runs a task on a fixed interval until its context is cancelled.
type Periodic struct {
	Name     string
	Interval time.Duration
	Task     func(ctx context.Context) error
	Logger   *zerolog.Logger
}

func (p *Periodic) Run(ctx context.Context) {
	if p.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Task(ctx); err != nil && p.Logger != nil {
				p.Logger.Warn().Err(err).Str("task", p.Name).Msg("periodic task failed")
			}
		}
	}
}
