package arbitrage

import (
	"time"

	"github.com/shopspring/decimal"

	"exbitrage/internal/core"
)

type Snapshot struct {
	ID     string
	At     time.Time
	Quotes [2]Quote
	// MinSpread is the coordinator's relative spread threshold for this step.
	MinSpread decimal.Decimal
}

// Spread pairs the cheapest ask on one exchange with the richest bid on the other.
type Spread struct {
	BuyOn  string
	Ask    decimal.Decimal
	SellOn string
	Bid    decimal.Decimal
	// Relative is (Bid - Ask) / Ask; negative when no profitable cross exists.
	Relative decimal.Decimal
}

// BestSpread only crosses different exchanges. ok is false unless both quotes
// carry a usable top of book.
func (s Snapshot) BestSpread() (Spread, bool) {
	var (
		best  Spread
		found bool
	)
	for i, buy := range s.Quotes {
		sell := s.Quotes[1-i]
		if !buy.OK() || !sell.OK() {
			continue
		}
		ask, okAsk := lowestAsk(buy.Book)
		bid, okBid := highestBid(sell.Book)
		if !okAsk || !okBid || !ask.IsPositive() {
			continue
		}
		rel := bid.Sub(ask).Div(ask)
		if !found || rel.GreaterThan(best.Relative) {
			best = Spread{BuyOn: buy.Exchange, Ask: ask, SellOn: sell.Exchange, Bid: bid, Relative: rel}
			found = true
		}
	}
	return best, found
}

// Opportunity returns the best spread when it is positive and reaches MinSpread.
func (s Snapshot) Opportunity() (Spread, bool) {
	best, ok := s.BestSpread()
	if !ok || !best.Relative.IsPositive() || best.Relative.LessThan(s.MinSpread) {
		return Spread{}, false
	}
	return best, true
}

// Order books keep the exchange's row order, so the extremes are searched rather than assumed.
func lowestAsk(book core.OrderBook) (decimal.Decimal, bool) {
	if len(book.Asks) == 0 {
		return decimal.Zero, false
	}
	best := book.Asks[0].Rate
	for _, l := range book.Asks[1:] {
		if l.Rate.LessThan(best) {
			best = l.Rate
		}
	}
	return best, true
}

func highestBid(book core.OrderBook) (decimal.Decimal, bool) {
	if len(book.Bids) == 0 {
		return decimal.Zero, false
	}
	best := book.Bids[0].Rate
	for _, l := range book.Bids[1:] {
		if l.Rate.GreaterThan(best) {
			best = l.Rate
		}
	}
	return best, true
}
