package sources

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Limited decorates an adapter with a token-bucket rate limit and a hard
// per-call timeout. Every concrete adapter is wrapped before it reaches the
// chain executor, so no call path can bypass the limits.
type Limited struct {
	adapter Adapter
	limiter *rate.Limiter
	timeout time.Duration
}

func NewLimited(adapter Adapter, perMinute int, timeout time.Duration) *Limited {
	// Zero or negative means unlimited.
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	return &Limited{
		adapter: adapter,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}
}

func (l *Limited) Name() string {
	return l.adapter.Name()
}

func (l *Limited) Find(ctx context.Context, target TargetDescriptor) ([]AcquisitionResult, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, Transient(err, "rate limiter wait interrupted")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	results, err := l.adapter.Find(ctx, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Transient(err, l.adapter.Name()+" timed out")
		}
		return nil, err
	}
	return results, nil
}
