package scroll

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/es-scroll-stream/pkg/queue"
	"github.com/Sternrassler/es-scroll-stream/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hit is the source document of one search hit.
type Hit = json.RawMessage

// ProducerFactory fetches one page. An empty token requests the first page;
// any other token requests the page that follows it. The returned page's body
// is owned by the driver. Timeouts and retries are the factory's concern.
type ProducerFactory func(ctx context.Context, token string) (*response.Page, error)

// PageResult describes a page once all of its hits were delivered.
type PageResult struct {
	// Number is the 1-based position of the page within the run.
	Number int
	// Token is the token the page was requested with, empty for the first page.
	Token string
	// Next is the token of the page that was scheduled next, empty when the
	// page ended the run.
	Next string
	// ScrollID is the last token the page carried, whether it was used or not.
	ScrollID   string
	Hits       int
	StatusCode int
	Duration   time.Duration
}

// Config holds driver configuration.
type Config struct {
	// Parser locates hits and tokens. The zero value uses response.DefaultParser.
	Parser response.Parser

	// StartToken resumes a run from a previously returned token instead of
	// requesting the first page.
	StartToken string

	// StrictContinuation fails the run with ErrMissingToken when a page has
	// hits but no token. Otherwise such a page ends the run.
	StrictContinuation bool

	// OnPage is called from the drain goroutine after each page completed
	// and before the next page is fetched. A returned error fails the run.
	OnPage func(PageResult) error

	// RunID is attached to log events.
	RunID string
}

// DefaultConfig returns the configuration for Elasticsearch scroll responses.
func DefaultConfig() Config {
	return Config{
		Parser: response.DefaultParser(),
	}
}

// Driver runs one pagination: it fetches a page, streams its hits, and
// schedules the following page once the current one proved it has a
// successor. A Driver serves a single run.
type Driver struct {
	factory ProducerFactory
	config  Config
	queue   *queue.Queue[Hit]
	logger  zerolog.Logger

	once sync.Once
	out  *Output

	pages   atomic.Int64
	hits    atomic.Int64
	started time.Time
}

// New creates a driver. Nothing is fetched until Output is called.
func New(factory ProducerFactory, cfg Config) *Driver {
	if len(cfg.Parser.ItemsPath) == 0 && len(cfg.Parser.TokenPath) == 0 {
		cfg.Parser = response.DefaultParser()
	}

	logCtx := log.With().Str("component", "es-scroll")
	if cfg.RunID != "" {
		logCtx = logCtx.Str("run_id", cfg.RunID)
	}

	d := &Driver{
		factory: factory,
		config:  cfg,
		queue:   queue.New[Hit](),
		logger:  logCtx.Logger(),
	}
	d.queue.RegisterTransform(d.track)
	d.queue.RegisterTransform(d.instrument)
	return d
}

// Start creates a driver and returns its output.
func Start(ctx context.Context, factory ProducerFactory, cfg Config) *Output {
	return New(factory, cfg).Output(ctx)
}

// Output starts the run on the first call and returns the same Output on
// every call. ctx bounds the whole run, including in-flight requests.
func (d *Driver) Output(ctx context.Context) *Output {
	d.once.Do(func() {
		d.started = time.Now()

		if d.factory == nil {
			d.queue.RaiseError(ErrNilFactory)
		} else {
			d.enqueue(d.config.StartToken)
		}

		d.logger.Debug().
			Bool("resumed", d.config.StartToken != "").
			Msg("Starting scroll")

		d.out = &Output{Output: d.queue.Output(ctx), driver: d}
		go d.wait(d.out)
	})
	return d.out
}

func (d *Driver) enqueue(token string) bool {
	return d.queue.Enqueue(func(ctx context.Context) (queue.Producer[Hit], error) {
		return d.fetch(ctx, token)
	})
}

func (d *Driver) fetch(ctx context.Context, token string) (queue.Producer[Hit], error) {
	number := int(d.pages.Add(1))
	start := time.Now()

	page, err := d.factory(ctx, token)
	if err == nil && page == nil {
		err = response.ErrNilPage
	}
	if err != nil {
		return nil, &TransportError{Page: number, Err: err}
	}
	scrollPagesTotal.Inc()

	d.logger.Debug().
		Int("page", number).
		Int("status_code", page.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	return &pageProducer{
		number: number,
		token:  token,
		page:   page,
		parser: d.config.Parser,
		start:  start,
	}, nil
}

// track attaches a fresh tracker to each dequeued page. The tracker schedules
// the next page as soon as the current one produced a hit and a token.
func (d *Driver) track(p queue.Producer[Hit]) queue.Producer[Hit] {
	page, ok := p.(*pageProducer)
	if !ok {
		return p
	}

	page.tracker = NewTracker(func(token string) {
		page.scheduled = token
		if !d.enqueue(token) {
			d.logger.Debug().Int("page", page.number).Msg("Next page not scheduled, run is ending")
		}
	})

	return queue.ProducerFunc[Hit](func(ctx context.Context, emit func(Hit) error) error {
		err := page.Pipe(ctx, emit)
		if err == nil {
			err = d.complete(page)
		}
		if err != nil {
			d.queue.RaiseError(err)
		}
		return err
	})
}

// complete runs once a page delivered all of its hits.
func (d *Driver) complete(page *pageProducer) error {
	scrollPageHits.Observe(float64(page.hits))

	switch {
	case page.hits > 0 && page.next == "":
		if d.config.StrictContinuation {
			return fmt.Errorf("page %d: %w", page.number, ErrMissingToken)
		}
		scrollAnomaliesTotal.WithLabelValues("missing_token").Inc()
		d.logger.Warn().
			Int("page", page.number).
			Int("hits", page.hits).
			Msg("Page has hits but no continuation token, ending scroll")
	case page.hits == 0:
		d.logger.Debug().
			Int("page", page.number).
			Bool("token", page.next != "").
			Msg("Empty page, scroll exhausted")
	}

	if d.config.OnPage == nil {
		return nil
	}

	result := PageResult{
		Number:     page.number,
		Token:      page.token,
		Next:       page.scheduled,
		ScrollID:   page.next,
		Hits:       page.hits,
		StatusCode: page.page.StatusCode,
		Duration:   time.Since(page.start),
	}
	if err := d.config.OnPage(result); err != nil {
		return fmt.Errorf("page %d hook: %w", page.number, err)
	}
	return nil
}

// instrument records per-page metrics for any producer.
func (d *Driver) instrument(p queue.Producer[Hit]) queue.Producer[Hit] {
	return queue.ProducerFunc[Hit](func(ctx context.Context, emit func(Hit) error) error {
		start := time.Now()
		err := p.Pipe(ctx, func(h Hit) error {
			if err := emit(h); err != nil {
				return err
			}
			d.hits.Add(1)
			scrollHitsTotal.Inc()
			return nil
		})
		scrollPageDuration.Observe(time.Since(start).Seconds())
		return err
	})
}

// wait logs the outcome once the run ended.
func (d *Driver) wait(out *Output) {
	<-out.Done()

	event := d.logger.Info()
	result := "completed"
	if err := out.Err(); err != nil {
		kind := errorKind(err)
		scrollErrorsTotal.WithLabelValues(kind).Inc()
		result = "failed"

		event = d.logger.Warn().Err(err).Str("error_kind", kind)
		if kind == "canceled" {
			event = d.logger.Debug().Err(err)
		}
	}
	scrollRunsTotal.WithLabelValues(result).Inc()

	event.
		Int64("pages", d.pages.Load()).
		Int64("hits", d.hits.Load()).
		Dur("duration", time.Since(d.started)).
		Msgf("Scroll %s", result)
}

// pageProducer streams the hits of one fetched page.
type pageProducer struct {
	number int
	token  string
	page   *response.Page
	parser response.Parser
	start  time.Time

	tracker   *Tracker
	next      string
	scheduled string
	hits      int
}

// Pipe parses the page and emits its hits. Each hit is reported to the
// tracker after the consumer took it.
func (p *pageProducer) Pipe(ctx context.Context, emit func(Hit) error) error {
	return p.parser.Parse(ctx, p.page, response.HandlerFuncs{
		Token: func(token string) error {
			p.next = token
			if p.tracker != nil {
				p.tracker.OnToken(token)
			}
			return nil
		},
		Item: func(item json.RawMessage) error {
			if err := emit(item); err != nil {
				return err
			}
			p.hits++
			if p.tracker != nil {
				p.tracker.OnItem()
			}
			return nil
		},
	})
}

// Output is the ordered hit stream of a run.
//
//	out := scroll.Start(ctx, client.Fetch, scroll.DefaultConfig())
//	defer out.Close()
//	for out.Next() {
//		process(out.Hit())
//	}
//	if err := out.Err(); err != nil {
//		return err
//	}
type Output struct {
	*queue.Output[Hit]
	driver *Driver
}

// Hit returns the hit read by the last successful call to Next.
func (o *Output) Hit() Hit {
	return o.Item()
}

// Pages returns the number of pages requested so far.
func (o *Output) Pages() int {
	return int(o.driver.pages.Load())
}

// Hits returns the number of hits delivered so far.
func (o *Output) Hits() int {
	return int(o.driver.hits.Load())
}
