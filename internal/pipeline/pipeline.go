package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/onlinereader/internal/fetch"
	"github.com/nao1215/onlinereader/internal/lines"
	"github.com/nao1215/onlinereader/internal/paragraph"
)

// Source resolves a sequence of locators into open streams.
// fetch.Dispatcher, fetch.HTTPFetcher and fetch.DriveFetcher all implement it.
type Source interface {
	All(ctx context.Context, locators iter.Seq[string]) iter.Seq2[*fetch.Result, error]
}

// Resource describes one fetched resource of a run.
type Resource struct {
	Name    string
	Locator string
	Route   fetch.Route
}

// Stats summarizes the most recent run.
type Stats struct {
	// Resources lists the fetched resources in fetch order.
	Resources []Resource

	// Lines is the number of lines read, blank ones included.
	Lines int

	// Paragraphs is the number of paragraphs emitted.
	Paragraphs int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration

	// Err is the error that ended the run, if any.
	Err error
}

// Pipeline composes fetching, line splitting and paragraph aggregation into
// one lazy sequence.
type Pipeline struct {
	source     Source
	aggregator *paragraph.Aggregator
	logger     *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a Pipeline reading from source and grouping with aggregator.
func New(source Source, aggregator *paragraph.Aggregator, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:     source,
		aggregator: aggregator,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Run fetches locators one at a time and yields their paragraphs.
//
// Nothing is fetched until the caller starts ranging. The first error from
// any stage is yielded once and ends the sequence. Run must not be ranged
// over concurrently because the aggregator holds per-run state.
func (p *Pipeline) Run(ctx context.Context, locators iter.Seq[string]) iter.Seq2[paragraph.Paragraph, error] {
	return func(yield func(paragraph.Paragraph, error) bool) {
		p.resetStats()
		start := time.Now()
		defer func() {
			p.mu.Lock()
			p.stats.Elapsed = time.Since(start)
			p.mu.Unlock()
		}()

		p.logger.Info("starting run")

		paragraphs := p.aggregator.Aggregate(p.countLines(lines.Split(p.observe(p.source.All(ctx, locators)))))
		for para, err := range paragraphs {
			if err != nil {
				p.logger.Error("run failed", "error", err)
				p.mu.Lock()
				p.stats.Err = err
				p.mu.Unlock()
				yield(paragraph.Paragraph{}, err)
				return
			}

			p.mu.Lock()
			p.stats.Paragraphs++
			p.mu.Unlock()
			p.logger.Debug("paragraph flushed", "key", para.Key, "bytes", len(para.Text))

			if !yield(para, nil) {
				p.logger.Debug("run stopped by consumer")
				return
			}
		}

		stats := p.Stats()
		p.logger.Info("run complete",
			"resources", len(stats.Resources),
			"paragraphs", stats.Paragraphs,
		)
	}
}

// Stats returns a copy of the statistics of the current or last run.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Resources = slices.Clone(p.stats.Resources)
	return s
}

func (p *Pipeline) resetStats() {
	p.mu.Lock()
	p.stats = Stats{}
	p.mu.Unlock()
}

// observe records and logs every resource as it is fetched.
func (p *Pipeline) observe(seq iter.Seq2[*fetch.Result, error]) iter.Seq2[*fetch.Result, error] {
	return func(yield func(*fetch.Result, error) bool) {
		for res, err := range seq {
			if err == nil {
				p.logger.Debug("fetched resource",
					"name", res.Name,
					"locator", res.Locator,
					"route", res.Route.String(),
				)
				p.mu.Lock()
				p.stats.Resources = append(p.stats.Resources, Resource{
					Name:    res.Name,
					Locator: res.Locator,
					Route:   res.Route,
				})
				p.mu.Unlock()
			}
			if !yield(res, err) {
				return
			}
		}
	}
}

func (p *Pipeline) countLines(seq iter.Seq2[paragraph.Line, error]) iter.Seq2[paragraph.Line, error] {
	return func(yield func(paragraph.Line, error) bool) {
		for line, err := range seq {
			if err == nil {
				p.mu.Lock()
				p.stats.Lines++
				p.mu.Unlock()
			}
			if !yield(line, err) {
				return
			}
		}
	}
}
