package trader

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/internal/execution"
)

// Run repeats RunCycle every PollingInterval until ctx is done or the
// emergency stop is raised. maxCycles <= 0 means no limit. Cancellation is a
// clean exit; the emergency stop is returned so the caller can report it.
func (t *Trader) Run(ctx context.Context, maxCycles int, onCycle func(CycleReport)) error {
	interval := t.settings.PollingInterval
	if interval <= 0 {
		interval = DefaultSettings().PollingInterval
	}
	log.Info().
		Strs("watchlist", t.settings.Watchlist).
		Dur("interval", interval).
		Bool("auto_place", t.settings.AutoPlace).
		Msg("Trading loop started")

	for n := 1; ; n++ {
		report, err := t.RunCycle(ctx)
		if onCycle != nil {
			onCycle(report)
		}
		switch {
		case errors.Is(err, execution.ErrEmergencyStop):
			log.Warn().Str("stop_file", t.settings.StopFile).Msg("Emergency stop active, halting")
			return err
		case ctx.Err() != nil:
			log.Info().Msg("Trading loop stopped")
			return nil
		case err != nil:
			return err
		}
		if maxCycles > 0 && n >= maxCycles {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Trading loop stopped")
			return nil
		}
	}
}
