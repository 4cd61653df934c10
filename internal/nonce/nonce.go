// Package nonce derives request nonces from the wall clock.
//
// Nothing here guarantees uniqueness: two requests signed within the same clock
// unit get the same nonce and the exchange may reject the second as a replay.
// Callers that sign in tight loops have to space their calls themselves.
package nonce

import "time"

type Source interface {
	Next() int64
}

// Func adapts a plain function to Source.
type Func func() int64

func (f Func) Next() int64 { return f() }

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Seconds yields whole unix seconds.
func Seconds(clock Clock) Source {
	return Func(func() int64 { return clock.now().Unix() })
}

// Millis yields unix milliseconds.
func Millis(clock Clock) Source {
	return Func(func() int64 { return clock.now().UnixMilli() })
}

// Fixed always yields v.
func Fixed(v int64) Source {
	return Func(func() int64 { return v })
}
