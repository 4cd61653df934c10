package exchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"exbitrage/internal/transport"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeLogicalError: transport succeeded, exchange reported an error. Payload is the full body.
	OutcomeLogicalError
	// OutcomeEmpty: non-2xx swallowed under FailureSilent.
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeLogicalError:
		return "logical_error"
	case OutcomeEmpty:
		return "empty"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one exchange call.
type Result struct {
	Exchange   string
	Outcome    Outcome
	Payload    json.RawMessage
	StatusCode int
}

func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

func (r Result) Empty() bool { return r.Outcome == OutcomeEmpty }

// Err converts a logical error outcome into a *LogicalError; nil otherwise.
func (r Result) Err() error {
	if r.Outcome != OutcomeLogicalError {
		return nil
	}
	return &LogicalError{Exchange: r.Exchange, Body: r.Payload}
}

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error {
	if r.Outcome == OutcomeEmpty || len(r.Payload) == 0 {
		return ErrEmptyResult
	}
	return json.Unmarshal(r.Payload, v)
}

// FailurePolicy decides what a non-2xx response turns into.
type FailurePolicy string

const (
	// FailureSilent turns non-2xx responses into an empty result with no error.
	FailureSilent FailurePolicy = "silent"
	// FailureRaise turns non-2xx responses into a *TransportError.
	FailureRaise FailurePolicy = "raise"
)

// PolicyFor gives the historical default: raise in debug mode, stay silent otherwise.
func PolicyFor(debug bool) FailurePolicy {
	if debug {
		return FailureRaise
	}
	return FailureSilent
}

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailureSilent, FailureRaise:
		return p, nil
	default:
		return "", fmt.Errorf("failure policy must be silent or raise, got %q", s)
	}
}

// Indicator inspects a 2xx body. ok=false marks an exchange-reported error;
// payload is what the caller receives on success.
type Indicator func(body []byte) (payload json.RawMessage, ok bool)

// Normalize maps a transport response onto a Result according to policy.
func Normalize(name string, resp *transport.Response, policy FailurePolicy, indicate Indicator) (Result, error) {
	if resp == nil {
		return Result{}, fmt.Errorf("%s: nil response", name)
	}
	if !resp.OK() {
		if policy == FailureRaise {
			return Result{}, &TransportError{
				Exchange:   name,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       resp.Body,
			}
		}
		return Result{Exchange: name, Outcome: OutcomeEmpty, StatusCode: resp.StatusCode}, nil
	}
	body := json.RawMessage(resp.Body)
	if indicate == nil {
		return Result{Exchange: name, Outcome: OutcomeSuccess, Payload: body, StatusCode: resp.StatusCode}, nil
	}
	payload, ok := indicate(resp.Body)
	if !ok {
		return Result{Exchange: name, Outcome: OutcomeLogicalError, Payload: body, StatusCode: resp.StatusCode}, nil
	}
	return Result{Exchange: name, Outcome: OutcomeSuccess, Payload: payload, StatusCode: resp.StatusCode}, nil
}
