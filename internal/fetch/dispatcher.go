package fetch

import (
	"context"
	"iter"
	"log/slog"

	"github.com/ib-77/rop3/pkg/rop"
)

// Dispatcher routes each locator to the fetch strategy its host requires.
// It keeps no state between locators.
type Dispatcher struct {
	http   Fetcher
	drive  Fetcher
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher whose HTTP and Drive fetchers share opts.
func NewDispatcher(opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		http:   &HTTPFetcher{opts: o},
		drive:  &DriveFetcher{opts: o},
		logger: o.logger,
	}
}

// NewDispatcherWithFetchers creates a Dispatcher over custom strategies.
func NewDispatcherWithFetchers(http, drive Fetcher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{http: http, drive: drive, logger: logger}
}

// Fetch routes locator and delegates to the matching fetcher.
func (d *Dispatcher) Fetch(ctx context.Context, locator string) (*Result, error) {
	route, err := RouteOf(locator)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("dispatching locator", "locator", locator, "route", route.String())

	if route == RouteDrive {
		return d.drive.Fetch(ctx, locator)
	}
	return d.http.Fetch(ctx, locator)
}

// All yields exactly one Result per locator, in input order, fetching lazily.
// The first failure is yielded as (nil, err) and ends the sequence; results
// already yielded stay valid.
func (d *Dispatcher) All(ctx context.Context, locators iter.Seq[string]) iter.Seq2[*Result, error] {
	return sequence(ctx, locators, d.Fetch)
}

// Results is All expressed as a sequence of discriminated results. A failure
// caused by context cancellation is reported as a cancel result, any other
// failure as a fail result. The sequence ends after the first non-success.
func (d *Dispatcher) Results(ctx context.Context, locators iter.Seq[string]) iter.Seq[rop.Result[*Result]] {
	return func(yield func(rop.Result[*Result]) bool) {
		for res, err := range d.All(ctx, locators) {
			switch {
			case err == nil:
				if !yield(rop.Success(res)) {
					return
				}
			case rop.IsCancellationError(err):
				yield(rop.Cancel[*Result](err))
				return
			default:
				yield(rop.Fail[*Result](err))
				return
			}
		}
	}
}

var _ Fetcher = (*Dispatcher)(nil)
