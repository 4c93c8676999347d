package market

import (
	"context"

	"github.com/sawpanic/condorrun/internal/net/ratelimit"
)

const snapshotKey = "_snapshot"

// LimitedSource throttles calls to the underlying source per symbol
type LimitedSource struct {
	next    Source
	limiter *ratelimit.Limiter
}

func NewLimitedSource(next Source, rps float64, burst int) *LimitedSource {
	return &LimitedSource{next: next, limiter: ratelimit.NewLimiter(rps, burst)}
}

func (l *LimitedSource) Spot(ctx context.Context, symbol string) (float64, error) {
	if err := l.limiter.Wait(ctx, symbol); err != nil {
		return 0, err
	}
	return l.next.Spot(ctx, symbol)
}

func (l *LimitedSource) ImpliedVolatility(ctx context.Context, symbol string) (float64, error) {
	if err := l.limiter.Wait(ctx, symbol); err != nil {
		return 0, err
	}
	return l.next.ImpliedVolatility(ctx, symbol)
}

func (l *LimitedSource) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := l.limiter.Wait(ctx, snapshotKey); err != nil {
		return Snapshot{}, err
	}
	return l.next.Snapshot(ctx)
}
