// Package poller re-fetches the selected target board on an interval so
// observers see changes made outside this service.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gotham_viewer/viewer-go/internal/sequence"
	"gotham_viewer/viewer-go/internal/targetgw"
)

const maxBackoff = 5 * time.Minute

// Refresher is the part of the target gateway the poller drives.
// *targetgw.Controller satisfies it.
type Refresher interface {
	RefreshTargets(delay time.Duration) (*sequence.Run, error)
}

type Poller struct {
	log      zerolog.Logger
	targets  Refresher
	interval time.Duration
}

type Options struct {
	// Interval between refreshes. Zero or negative disables polling.
	Interval time.Duration
}

func New(log zerolog.Logger, targets Refresher, opts Options) *Poller {
	return &Poller{
		log:      log.With().Str("component", "poller").Logger(),
		targets:  targets,
		interval: opts.Interval,
	}
}

// Run refreshes the board every interval until ctx is done. Failed refreshes
// back off exponentially; having no board selected is not a failure.
func (p *Poller) Run(ctx context.Context) {
	if p == nil || p.targets == nil || p.interval <= 0 {
		return
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		outcome, err := p.refreshOnce(ctx)
		switch {
		case err != nil:
			return
		case outcome == sequence.Failed || outcome == sequence.Aborted:
			consecutiveFailures++
			p.log.Warn().Str("outcome", string(outcome)).Int("failures", consecutiveFailures).Msg("board refresh did not complete")
		default:
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(p.interval, consecutiveFailures))
	}
}

// refreshOnce starts one refresh and waits for it. A nil error with an empty
// outcome means there was nothing to refresh.
func (p *Poller) refreshOnce(ctx context.Context) (sequence.Outcome, error) {
	run, err := p.targets.RefreshTargets(0)
	if err != nil {
		if errors.Is(err, targetgw.ErrMissingBoard) {
			return "", nil
		}
		p.log.Error().Err(err).Msg("board refresh failed to start")
		return sequence.Failed, nil
	}
	return run.Wait(ctx)
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
