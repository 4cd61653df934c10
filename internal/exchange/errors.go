package exchange

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotSupported indicates the exchange has no endpoint for the operation.
	ErrNotSupported = errors.New("operation not supported by exchange")
	// ErrTransportFailure matches any TransportError.
	ErrTransportFailure = errors.New("transport failure")
	// ErrExchangeLogical matches any LogicalError.
	ErrExchangeLogical = errors.New("exchange logical error")
	// ErrEmptyResult is returned when decoding a result that carries no payload.
	ErrEmptyResult = errors.New("empty result")
)

// TransportError carries the raw non-2xx response.
type TransportError struct {
	Exchange   string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s http error %d: %s", e.Exchange, e.StatusCode, strings.TrimSpace(string(e.Body)))
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}

// LogicalError is a 2xx response whose exchange error indicator signals failure.
type LogicalError struct {
	Exchange string
	Body     []byte
}

func (e *LogicalError) Error() string {
	return fmt.Sprintf("%s api error: %s", e.Exchange, strings.TrimSpace(string(e.Body)))
}

func (e *LogicalError) Is(target error) bool {
	return target == ErrExchangeLogical
}

func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if !errors.As(err, &te) {
		return nil, false
	}
	return te, true
}

// ErrMissingCredentials is returned by private operations on a client built without key/secret.
var ErrMissingCredentials = errors.New("api key/secret required")
