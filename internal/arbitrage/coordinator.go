// Package arbitrage composes two exchange clients. Each step reads both order
// books independently; what to do with them is left to a pluggable Decider.
package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exbitrage/internal/alert"
	"exbitrage/internal/core"
	"exbitrage/internal/exchange"
	"exbitrage/internal/logger"
)

const DefaultDepthLimit = 10

var ErrNoQuotes = errors.New("no order book available from any exchange")

// Decider receives every snapshot. Returning an error ends Run.
type Decider interface {
	Decide(ctx context.Context, snap Snapshot) error
}

type DeciderFunc func(ctx context.Context, snap Snapshot) error

func (f DeciderFunc) Decide(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// Recorder persists snapshots. A failing recorder is logged and does not stop the step.
type Recorder interface {
	Record(ctx context.Context, snap Snapshot) error
}

// NoopDecider observes and does nothing.
type NoopDecider struct{}

func (NoopDecider) Decide(context.Context, Snapshot) error { return nil }

type Options struct {
	// SymbolA and SymbolB are the market names in each exchange's own notation.
	SymbolA    string
	SymbolB    string
	DepthLimit int
	MinSpread  decimal.Decimal
	Decider    Decider
	Recorder   Recorder
	Alerter    alert.Alerter
	Logger     *logger.Log
}

// Coordinator borrows its two clients; it never closes or reconfigures them.
type Coordinator struct {
	legs      [2]leg
	limit     int
	minSpread decimal.Decimal
	decider   Decider
	recorder  Recorder
	alerter   alert.Alerter
	log       *logger.Entry

	mu      sync.Mutex
	failing [2]bool
}

type leg struct {
	ex     exchange.Exchange
	symbol string
}

func New(a, b exchange.Exchange, opts Options) (*Coordinator, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("two exchanges are required")
	}
	limit := opts.DepthLimit
	if limit <= 0 {
		limit = DefaultDepthLimit
	}
	decider := opts.Decider
	if decider == nil {
		decider = NoopDecider{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Coordinator{
		legs:      [2]leg{{ex: a, symbol: opts.SymbolA}, {ex: b, symbol: opts.SymbolB}},
		limit:     limit,
		minSpread: opts.MinSpread,
		decider:   decider,
		recorder:  opts.Recorder,
		alerter:   opts.Alerter,
		log:       log.WithComponent("arbitrage"),
	}, nil
}

// Step fetches both books concurrently. A failing exchange is recorded in its
// Quote and does not affect the other. The error is non-nil only when both
// fetches fail or the decider fails.
func (c *Coordinator) Step(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{ID: uuid.NewString(), At: time.Now().UTC(), MinSpread: c.minSpread}
	var wg sync.WaitGroup
	for i := range c.legs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap.Quotes[i] = c.fetch(ctx, c.legs[i])
		}(i)
	}
	wg.Wait()

	log := c.log.WithField("snapshot_id", snap.ID)
	var errs []error
	for i, q := range snap.Quotes {
		c.track(i, q)
		if q.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q.Exchange, q.Err))
			log.WithError(q.Err).WithField("exchange", q.Exchange).Warn("order book unavailable")
		}
	}
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, snap); err != nil {
			log.WithError(err).Warn("record snapshot failed")
		}
	}
	if len(errs) == len(snap.Quotes) {
		return snap, errors.Join(append([]error{ErrNoQuotes}, errs...)...)
	}
	if spread, ok := snap.BestSpread(); ok {
		entry := log.WithFields(logger.Fields{
			"buy_on":  spread.BuyOn,
			"ask":     spread.Ask.String(),
			"sell_on": spread.SellOn,
			"bid":     spread.Bid.String(),
			"spread":  spread.Relative.StringFixed(6),
		})
		if _, hit := snap.Opportunity(); hit {
			entry.WithField("min_spread", snap.MinSpread.String()).Info("spread above threshold")
		} else {
			entry.Debug("snapshot")
		}
	}
	if err := c.decider.Decide(ctx, snap); err != nil {
		return snap, fmt.Errorf("decide: %w", err)
	}
	return snap, nil
}

func (c *Coordinator) fetch(ctx context.Context, l leg) Quote {
	started := time.Now()
	book, err := l.ex.OrderBook(ctx, l.symbol, c.limit)
	return Quote{
		Exchange: l.ex.Name(),
		Symbol:   l.symbol,
		Book:     book,
		Err:      err,
		Latency:  time.Since(started),
	}
}

// track alerts on transitions only, so a down exchange raises one alert and one recovery.
func (c *Coordinator) track(i int, q Quote) {
	c.mu.Lock()
	was := c.failing[i]
	c.failing[i] = q.Err != nil
	c.mu.Unlock()
	if c.alerter == nil || was == (q.Err != nil) {
		return
	}
	if q.Err != nil {
		c.alerter.Alert("orderbook_failed", map[string]string{
			"exchange": q.Exchange,
			"symbol":   q.Symbol,
			"error":    q.Err.Error(),
		})
		return
	}
	c.alerter.Alert("orderbook_recovered", map[string]string{
		"exchange": q.Exchange,
		"symbol":   q.Symbol,
	})
}

// Run steps every interval until ctx ends. Fetch failures are logged and the
// loop continues; a decider error stops it.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	c.log.WithFields(logger.Fields{
		"exchange_a": c.legs[0].ex.Name(),
		"exchange_b": c.legs[1].ex.Name(),
		"interval":   interval.String(),
	}).Info("coordinator started")
	defer c.log.Info("coordinator stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, ErrNoQuotes) {
				return err
			}
			c.log.WithError(err).Warn("step failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Quote is one exchange's side of a snapshot.
type Quote struct {
	Exchange string
	Symbol   string
	Book     core.OrderBook
	Err      error
	Latency  time.Duration
}

func (q Quote) OK() bool { return q.Err == nil }
