package stage

import "context"

// Flagger lets a computation mark the run for review. Flags are advisory and
// never stop the run.
type Flagger interface {
	Flag(reason string)
}

type flaggerKey struct{}

// WithFlagger stores f on the context handed to computations.
func WithFlagger(ctx context.Context, f Flagger) context.Context {
	if f == nil {
		return ctx
	}
	return context.WithValue(ctx, flaggerKey{}, f)
}

// FlagFromContext returns the run's Flagger, or one that discards flags.
func FlagFromContext(ctx context.Context) Flagger {
	if f, ok := ctx.Value(flaggerKey{}).(Flagger); ok {
		return f
	}
	return discardFlagger{}
}

type discardFlagger struct{}

func (discardFlagger) Flag(string) {}
