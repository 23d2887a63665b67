// Package live turns point-in-time queries into change streams by sampling
// them on a ticker and forwarding only values that differ from the last one.
package live

import (
	"context"
	"time"
)

// Sample is one element of a stream. Exactly one of Value or Err is meaningful.
type Sample[T any] struct {
	Value T
	Err   error
}

// Fetch reads the current value. ok=false means there is nothing to show
// right now and the tick produces no sample.
type Fetch[T any] func(ctx context.Context) (v T, ok bool, err error)

type Options[T any] struct {
	Interval time.Duration
	// Equal decides whether a fresh value repeats the previous one.
	Equal func(a, b T) bool
	// Done reports whether v is the last value of the stream. It is sent
	// before the stream closes.
	Done func(v T) bool
}

// Watch samples fetch immediately and then every Interval until ctx ends or
// Done matches. Errors are forwarded and sampling continues; the previous
// value is kept so an error does not reset change detection. The returned
// channel is closed when the loop exits.
func Watch[T any](ctx context.Context, fetch Fetch[T], opts Options[T]) <-chan Sample[T] {
	out := make(chan Sample[T])
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	go func() {
		defer close(out)

		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		var (
			last T
			seen bool
		)
		send := func(s Sample[T]) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			v, ok, err := fetch(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				if !send(Sample[T]{Err: err}) {
					return
				}
			case ok && (!seen || opts.Equal == nil || !opts.Equal(last, v)):
				last, seen = v, true
				if !send(Sample[T]{Value: v}) {
					return
				}
				if opts.Done != nil && opts.Done(v) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
