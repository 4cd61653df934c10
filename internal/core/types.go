package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"exbitrage/internal/numeric"
)

type Side string

type OrderType string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// Credentials are injected into a client at construction and kept for its lifetime.
type Credentials struct {
	UserID string
	Key    string
	Secret string
}

// String never prints the secret.
func (c Credentials) String() string {
	secret := ""
	if c.Secret != "" {
		secret = "[redacted]"
	}
	return fmt.Sprintf("{UserID:%s Key:%s Secret:%s}", c.UserID, c.Key, secret)
}

func (c Credentials) GoString() string { return c.String() }

func (c Credentials) Complete() bool {
	return c.Key != "" && c.Secret != ""
}

// OrderRequest describes one order. Rate stays unset for market orders.
type OrderRequest struct {
	Symbol string
	Amount numeric.Value
	Rate   numeric.Value
	Side   Side
	Type   OrderType
}

func NewOrderRequest(symbol string, side Side, typ OrderType, amount, rate numeric.Value) (OrderRequest, error) {
	req := OrderRequest{
		Symbol: strings.TrimSpace(symbol),
		Amount: amount,
		Rate:   rate,
		Side:   Side(strings.ToLower(strings.TrimSpace(string(side)))),
		Type:   OrderType(strings.ToLower(strings.TrimSpace(string(typ)))),
	}
	if req.Type == "" {
		req.Type = Limit
	}
	if err := req.Validate(); err != nil {
		return OrderRequest{}, err
	}
	return req, nil
}

func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidOrder)
	}
	switch r.Side {
	case Buy, Sell:
	default:
		return fmt.Errorf("%w: side must be buy or sell, got %q", ErrInvalidOrder, r.Side)
	}
	switch r.Type {
	case Limit, Market:
	default:
		return fmt.Errorf("%w: type must be limit or market, got %q", ErrInvalidOrder, r.Type)
	}
	if !r.Amount.IsSet() {
		return fmt.Errorf("%w: amount required", ErrInvalidOrder)
	}
	amount, err := r.Amount.Decimal()
	if err != nil {
		return fmt.Errorf("%w: amount: %w", ErrInvalidOrder, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidOrder, r.Amount.Raw())
	}
	if r.Type == Market {
		if r.Rate.IsSet() {
			return fmt.Errorf("%w: market orders take no rate", ErrInvalidOrder)
		}
		return nil
	}
	if !r.Rate.IsSet() {
		return fmt.Errorf("%w: rate required for limit orders", ErrInvalidOrder)
	}
	rate, err := r.Rate.Decimal()
	if err != nil {
		return fmt.Errorf("%w: rate: %w", ErrInvalidOrder, err)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("%w: rate must be positive, got %s", ErrInvalidOrder, r.Rate.Raw())
	}
	return nil
}

// Level is one order book row. Volume is only filled when the source carries it.
type Level struct {
	Rate   decimal.Decimal     `json:"rate"`
	Amount decimal.Decimal     `json:"amount"`
	Volume decimal.NullDecimal `json:"volume"`
}

// OrderBook keeps rows in the order the exchange returned them.
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}
