package core

import "errors"

var (
	// ErrInvalidOrder indicates an order request failed local validation.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrMalformedRow indicates an order book row had an unexpected shape.
	ErrMalformedRow = errors.New("malformed order book row")
)
