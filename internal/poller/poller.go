// Package poller drives fixed-interval observation of in-flight render jobs
// until they settle, the attempt budget runs out, or the caller cancels.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"podium/internal/artifact"
	"podium/internal/config"
	"podium/internal/logging"
	"podium/internal/services"
)

// Observe reports the current state of one job.
type Observe func(ctx context.Context) (artifact.Observation, error)

// Poller repeatedly invokes an Observe func until the observation turns
// terminal. Polling runs at a fixed interval; there is no backoff because the
// engine treats state reads as cheap.
type Poller struct {
	interval     time.Duration
	maxAttempts  int
	maxTransient int
	logger       *slog.Logger
}

// New builds a Poller from the configured polling bounds.
func New(cfg *config.Config, logger *slog.Logger) *Poller {
	return &Poller{
		interval:     time.Duration(cfg.Polling.IntervalSeconds) * time.Second,
		maxAttempts:  cfg.Polling.MaxAttempts,
		maxTransient: cfg.Polling.MaxTransientFailures,
		logger:       logging.NewComponentLogger(logger, "poller"),
	}
}

// Await polls observe until it reports a terminal state. It returns
// ErrTimeout once the attempt budget is exhausted and gives up early when
// observe fails more than the transient tolerance in a row. Non-transient
// observe errors abort immediately. Cancellation of ctx is honored between
// attempts.
func (p *Poller) Await(ctx context.Context, observe Observe) (artifact.Observation, error) {
	transientRun := 0
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		obs, err := observe(ctx)
		switch {
		case err == nil:
			transientRun = 0
			if obs.Terminal() {
				return obs, nil
			}
		case services.IsTransient(err):
			transientRun++
			p.logger.Warn("transient poll failure",
				logging.Int("attempt", attempt),
				logging.Int("consecutive", transientRun),
				logging.Error(err))
			if transientRun > p.maxTransient {
				return artifact.Observation{}, services.Wrap(services.ErrTransient, "poller", "await",
					fmt.Sprintf("%d consecutive transient failures", transientRun), err)
			}
		default:
			return artifact.Observation{}, err
		}

		if attempt == p.maxAttempts {
			break
		}
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return artifact.Observation{}, ctx.Err()
		case <-timer.C:
		}
	}
	return artifact.Observation{}, services.Wrap(services.ErrTimeout, "poller", "await",
		fmt.Sprintf("job not settled after %d attempts", p.maxAttempts), nil)
}
