package bitkub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const streamReadTimeout = 60 * time.Second

// StreamTicker subscribes to market.ticker.<symbol> and delivers events until ctx
// ends or the connection drops. The error channel carries at most the terminal error.
func (c *Client) StreamTicker(ctx context.Context, symbol string) (<-chan TickerEvent, <-chan error, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = strings.ToLower(DefaultSymbol)
	}
	if c.streamURL == "" {
		return nil, nil, errors.New("stream url required")
	}
	endpoint := c.streamURL + "/market.ticker." + symbol
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	log := c.log.WithField("stream", "market.ticker."+symbol)
	log.Info("ticker stream connected")

	events := make(chan TickerEvent)
	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(done)
		defer close(events)
		defer conn.Close()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("ticker stream closed")
					errCh <- err
				}
				return
			}
			for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
				if line == "" {
					continue
				}
				var ev TickerEvent
				if err := json.Unmarshal([]byte(line), &ev); err != nil {
					log.WithError(err).Debug("skip undecodable ticker message")
					continue
				}
				if ev.Stream == "" {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, errCh, nil
}
