// Package store persists coordinator snapshots under a state directory: the
// latest one as an atomically replaced JSON file, and every one in a daily
// JSON-lines journal.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"exbitrage/internal/arbitrage"
	"exbitrage/internal/core"
	"exbitrage/internal/logger"
)

type SnapshotRecord struct {
	ID     string        `json:"id"`
	At     time.Time     `json:"at"`
	Quotes []QuoteRecord `json:"quotes"`
	Spread *SpreadRecord `json:"spread,omitempty"`
}

type QuoteRecord struct {
	Exchange  string           `json:"exchange"`
	Symbol    string           `json:"symbol"`
	Error     string           `json:"error,omitempty"`
	LatencyMs int64            `json:"latency_ms"`
	BestBid   *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk   *decimal.Decimal `json:"best_ask,omitempty"`
	Bids      int              `json:"bids"`
	Asks      int              `json:"asks"`
}

type SpreadRecord struct {
	BuyOn       string          `json:"buy_on"`
	Ask         decimal.Decimal `json:"ask"`
	SellOn      string          `json:"sell_on"`
	Bid         decimal.Decimal `json:"bid"`
	Relative    decimal.Decimal `json:"relative"`
	MinSpread   decimal.Decimal `json:"min_spread"`
	Opportunity bool            `json:"opportunity"`
}

type Options struct {
	// Journal appends every snapshot to snapshots/<date>.jsonl.
	Journal bool
	Logger  *logger.Log
}

type Store struct {
	root    string
	journal bool
	log     *logger.Entry
	mu      sync.Mutex
}

var _ arbitrage.Recorder = (*Store)(nil)

func New(root string, opts Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{root: root, journal: opts.Journal, log: log.WithComponent("store")}, nil
}

// Record implements arbitrage.Recorder.
func (s *Store) Record(_ context.Context, snap arbitrage.Snapshot) error {
	rec := NewSnapshotRecord(snap)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeJSONAtomic(s.latestPath(), rec); err != nil {
		return err
	}
	if !s.journal {
		return nil
	}
	return s.appendJournal(rec)
}

func (s *Store) LoadLatest() (SnapshotRecord, bool, error) {
	data, err := os.ReadFile(s.latestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotRecord{}, false, nil
		}
		return SnapshotRecord{}, false, err
	}
	var rec SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return SnapshotRecord{}, false, err
	}
	return rec, true, nil
}

func NewSnapshotRecord(snap arbitrage.Snapshot) SnapshotRecord {
	rec := SnapshotRecord{ID: snap.ID, At: snap.At, Quotes: make([]QuoteRecord, 0, len(snap.Quotes))}
	for _, q := range snap.Quotes {
		qr := QuoteRecord{
			Exchange:  q.Exchange,
			Symbol:    q.Symbol,
			LatencyMs: q.Latency.Milliseconds(),
			Bids:      len(q.Book.Bids),
			Asks:      len(q.Book.Asks),
		}
		if q.Err != nil {
			qr.Error = q.Err.Error()
		}
		qr.BestBid = extreme(q.Book.Bids, decimal.Decimal.GreaterThan)
		qr.BestAsk = extreme(q.Book.Asks, decimal.Decimal.LessThan)
		rec.Quotes = append(rec.Quotes, qr)
	}
	if sp, ok := snap.BestSpread(); ok {
		_, hit := snap.Opportunity()
		rec.Spread = &SpreadRecord{
			BuyOn:       sp.BuyOn,
			Ask:         sp.Ask,
			SellOn:      sp.SellOn,
			Bid:         sp.Bid,
			Relative:    sp.Relative,
			MinSpread:   snap.MinSpread,
			Opportunity: hit,
		}
	}
	return rec
}

func extreme(levels []core.Level, better func(decimal.Decimal, decimal.Decimal) bool) *decimal.Decimal {
	if len(levels) == 0 {
		return nil
	}
	best := levels[0].Rate
	for _, l := range levels[1:] {
		if better(l.Rate, best) {
			best = l.Rate
		}
	}
	return &best
}

func (s *Store) appendJournal(rec SnapshotRecord) error {
	dir := filepath.Join(s.root, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	path := filepath.Join(dir, at.UTC().Format("2006-01-02")+".jsonl")
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Store) latestPath() string {
	return filepath.Join(s.root, "latest_snapshot.json")
}

// writeJSONAtomic writes through a temp file and rename so readers never see a partial file.
func (s *Store) writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	s.syncDir(dir)
	return nil
}

func (s *Store) syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		s.log.WithError(err).WithField("dir", dir).Warn("directory fsync skipped")
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		s.log.WithError(err).WithField("dir", dir).Warn("directory fsync failed")
	}
}
