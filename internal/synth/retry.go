package synth

import "context"

// RetryPolicy wraps one synthesis attempt. Policies decide whether and when
// fn is called again.
type RetryPolicy interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// NoRetry calls fn exactly once.
type NoRetry struct{}

// Do implements RetryPolicy.
func (NoRetry) Do(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
