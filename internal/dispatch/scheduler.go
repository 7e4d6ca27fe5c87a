package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DispatchDue dispatches every scheduled campaign whose send time is at or
// before now, one after another. Campaigns that were claimed elsewhere or
// have no pending recipients are skipped. It returns the number of runs
// started.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := d.store.ListDueCampaigns(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due campaigns: %w", err)
	}

	var (
		started int
		errs    []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		res, err := d.Dispatch(ctx, id)
		if res.Status != "" {
			started++
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrEmptyAudience):
			d.log.Info().Err(err).Str("campaign_id", id).Msg("scheduled campaign skipped")
		default:
			d.log.Error().Err(err).Str("campaign_id", id).Msg("scheduled dispatch failed")
			errs = append(errs, fmt.Errorf("campaign %s: %w", id, err))
		}
	}
	return started, errors.Join(errs...)
}

// RunScheduler calls DispatchDue every interval until ctx is done.
func (d *Dispatcher) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Info().Dur("interval", interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("scheduler stopped")
			return
		case now := <-ticker.C:
			if n, err := d.DispatchDue(ctx, now); err != nil {
				d.log.Error().Err(err).Int("started", n).Msg("scheduler tick finished with errors")
			} else if n > 0 {
				d.log.Info().Int("started", n).Msg("scheduler tick dispatched campaigns")
			}
		}
	}
}
