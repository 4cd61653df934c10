package satang

import (
	"github.com/shopspring/decimal"

	"exbitrage/internal/core"
)

type ordersResponse struct {
	Bid []priceLevel `json:"bid"`
	Ask []priceLevel `json:"ask"`
}

type priceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

func (o ordersResponse) orderBook() core.OrderBook {
	return core.OrderBook{Bids: levels(o.Bid), Asks: levels(o.Ask)}
}

func levels(in []priceLevel) []core.Level {
	out := make([]core.Level, 0, len(in))
	for _, l := range in {
		out = append(out, core.Level{Rate: l.Price, Amount: l.Amount})
	}
	return out
}
