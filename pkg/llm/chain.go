package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/ragbot/pkg/zlog"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// firstSuccess calls attempt for each provider in priority order and returns the
// first successful result. When every attempt fails the failures are aggregated
// into one ChainError labelled with stage.
func firstSuccess[T any](ctx context.Context, stage Stage, names []string, attempt func(ctx context.Context, i int) (T, error)) (T, error) {
	var zero T
	if len(names) == 0 {
		return zero, &StageError{Stage: stage, Err: ErrNoProvider}
	}

	failures := make([]*ProviderError, 0, len(names))
	for i, name := range names {
		result, err := attempt(ctx, i)
		if err == nil {
			if len(failures) > 0 {
				zlog.Info("provider fallback succeeded",
					zap.String("stage", string(stage)),
					zap.String("provider", name),
					zap.Int("failed_before", len(failures)))
			}
			return result, nil
		}

		pe := &ProviderError{Provider: name, Kind: classify(err), Err: err}
		failures = append(failures, pe)
		zlog.Warn("provider call failed",
			zap.String("stage", string(stage)),
			zap.String("provider", name),
			zap.String("kind", pe.Kind.String()),
			zap.Error(err))

		// the caller went away; trying the next provider is pointless
		if ctx.Err() != nil {
			break
		}
	}

	return zero, &StageError{Stage: stage, Err: &ChainError{Failures: failures}}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
