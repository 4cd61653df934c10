package exchange

import (
	"context"

	"exbitrage/internal/core"
)

// Exchange is the capability set the arbitrage coordinator composes over.
type Exchange interface {
	Name() string
	Ticker(ctx context.Context, symbol string) (Result, error)
	OrderBook(ctx context.Context, symbol string, limit int) (core.OrderBook, error)
	Balance(ctx context.Context) (Result, error)
	PlaceBuyOrder(ctx context.Context, req core.OrderRequest) (Result, error)
	PlaceSellOrder(ctx context.Context, req core.OrderRequest) (Result, error)
}
