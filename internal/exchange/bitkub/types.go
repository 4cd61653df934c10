package bitkub

import (
	"fmt"

	"github.com/shopspring/decimal"

	"exbitrage/internal/core"
)

// depthResponse rows are [rate, amount].
type depthResponse struct {
	Asks []orderRow `json:"asks"`
	Bids []orderRow `json:"bids"`
}

// orderRow is one array-encoded row; bids/asks lists use
// [index, timestamp, volume, rate, amount].
type orderRow []decimal.Decimal

func (d depthResponse) orderBook() (core.OrderBook, error) {
	bids, err := normalizeDepthRows(d.Bids)
	if err != nil {
		return core.OrderBook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := normalizeDepthRows(d.Asks)
	if err != nil {
		return core.OrderBook{}, fmt.Errorf("asks: %w", err)
	}
	return core.OrderBook{Bids: bids, Asks: asks}, nil
}

func normalizeDepthRows(rows []orderRow) ([]core.Level, error) {
	out := make([]core.Level, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%w: row %d has %d fields, want 2", core.ErrMalformedRow, i, len(row))
		}
		out = append(out, core.Level{Rate: row[0], Amount: row[1]})
	}
	return out, nil
}

func normalizeOrderRows(rows []orderRow) ([]core.Level, error) {
	out := make([]core.Level, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("%w: row %d has %d fields, want 5", core.ErrMalformedRow, i, len(row))
		}
		out = append(out, core.Level{
			Rate:   row[3],
			Amount: row[4],
			Volume: decimal.NullDecimal{Decimal: row[2], Valid: true},
		})
	}
	return out, nil
}

// TickerEvent is one message of the market.ticker websocket stream.
type TickerEvent struct {
	Stream         string          `json:"stream"`
	ID             int64           `json:"id"`
	Last           decimal.Decimal `json:"last"`
	LowestAsk      decimal.Decimal `json:"lowestAsk"`
	LowestAskSize  decimal.Decimal `json:"lowestAskSize"`
	HighestBid     decimal.Decimal `json:"highestBid"`
	HighestBidSize decimal.Decimal `json:"highestBidSize"`
	Change         decimal.Decimal `json:"change"`
	PercentChange  decimal.Decimal `json:"percentChange"`
	BaseVolume     decimal.Decimal `json:"baseVolume"`
	QuoteVolume    decimal.Decimal `json:"quoteVolume"`
	High24hr       decimal.Decimal `json:"high24hr"`
	Low24hr        decimal.Decimal `json:"low24hr"`
	IsFrozen       int             `json:"isFrozen"`
}
