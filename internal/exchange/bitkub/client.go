// Package bitkub is the REST and websocket client for the Bitkub exchange.
// Private calls sign a canonical JSON body with HMAC-SHA256 and send the key in
// the X-BTK-APIKEY header.
package bitkub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"exbitrage/internal/core"
	"exbitrage/internal/exchange"
	"exbitrage/internal/logger"
	"exbitrage/internal/nonce"
	"exbitrage/internal/numeric"
	"exbitrage/internal/signing"
	"exbitrage/internal/transport"
)

const (
	Name             = "bitkub"
	DefaultBaseURL   = "https://api.bitkub.com/api"
	DefaultStreamURL = "wss://api.bitkub.com/websocket-api"
	DefaultSymbol    = "THB_BTC"
	DefaultLimit     = 10

	apiKeyHeader = "X-BTK-APIKEY"
)

type Options struct {
	Credentials core.Credentials
	BaseURL     string
	StreamURL   string
	Transport   transport.Options
	// Policy defaults to exchange.PolicyFor(Transport.Debug).
	Policy exchange.FailurePolicy
	// Nonces defaults to whole unix seconds.
	Nonces nonce.Source
	Logger *logger.Log
}

type Client struct {
	creds     core.Credentials
	baseURL   string
	streamURL string
	http      *transport.Client
	signer    *signing.JSONBodySigner
	policy    exchange.FailurePolicy
	log       *logger.Entry
}

var _ exchange.Exchange = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = log
	}
	httpClient, err := transport.New(opts.Transport)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	streamURL := strings.TrimRight(strings.TrimSpace(opts.StreamURL), "/")
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	policy := opts.Policy
	if policy == "" {
		policy = exchange.PolicyFor(opts.Transport.Debug)
	}
	nonces := opts.Nonces
	if nonces == nil {
		nonces = nonce.Seconds(nil)
	}
	return &Client{
		creds:     opts.Credentials,
		baseURL:   baseURL,
		streamURL: streamURL,
		http:      httpClient,
		signer:    signing.NewJSONBodySigner(opts.Credentials.Secret, nonces),
		policy:    policy,
		log:       log.WithComponent(Name),
	}, nil
}

func (c *Client) Name() string { return Name }

// Ticker returns every market when symbol is empty.
func (c *Client) Ticker(ctx context.Context, symbol string) (exchange.Result, error) {
	path := "/market/ticker"
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		path += "?" + url.Values{"sym": {strings.ToUpper(symbol)}}.Encode()
	}
	return c.call(ctx, http.MethodGet, path, nil, marketIndicator)
}

// Depth returns the raw depth result ({"asks": [[rate, amount]...], "bids": ...}).
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (exchange.Result, error) {
	return c.call(ctx, http.MethodGet, "/market/depth?"+marketQuery(symbol, limit), nil, marketIndicator)
}

func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (core.OrderBook, error) {
	res, err := c.Depth(ctx, symbol, limit)
	if err != nil {
		return core.OrderBook{}, err
	}
	if err := res.Err(); err != nil {
		return core.OrderBook{}, err
	}
	if res.Empty() {
		return core.OrderBook{}, nil
	}
	var depth depthResponse
	if err := res.Decode(&depth); err != nil {
		return core.OrderBook{}, fmt.Errorf("bitkub depth: %w", err)
	}
	return depth.orderBook()
}

// Bids lists open buy orders as (rate, amount, volume) rows.
func (c *Client) Bids(ctx context.Context, symbol string, limit int) ([]core.Level, error) {
	return c.orderList(ctx, "/market/bids?"+marketQuery(symbol, limit))
}

// Asks lists open sell orders as (rate, amount, volume) rows.
func (c *Client) Asks(ctx context.Context, symbol string, limit int) ([]core.Level, error) {
	return c.orderList(ctx, "/market/asks?"+marketQuery(symbol, limit))
}

func (c *Client) orderList(ctx context.Context, path string) ([]core.Level, error) {
	res, err := c.call(ctx, http.MethodGet, path, nil, marketIndicator)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	if res.Empty() {
		return nil, nil
	}
	var rows []orderRow
	if err := res.Decode(&rows); err != nil {
		return nil, fmt.Errorf("bitkub order list: %w", err)
	}
	return normalizeOrderRows(rows)
}

func (c *Client) Balance(ctx context.Context) (exchange.Result, error) {
	return c.signedPost(ctx, "/market/balances", map[string]any{})
}

func (c *Client) PlaceBuyOrder(ctx context.Context, req core.OrderRequest) (exchange.Result, error) {
	return c.placeOrder(ctx, "/market/place-bid", core.Buy, req)
}

func (c *Client) PlaceSellOrder(ctx context.Context, req core.OrderRequest) (exchange.Result, error) {
	return c.placeOrder(ctx, "/market/place-ask", core.Sell, req)
}

func (c *Client) placeOrder(ctx context.Context, path string, side core.Side, req core.OrderRequest) (exchange.Result, error) {
	params, err := orderParams(side, req)
	if err != nil {
		return exchange.Result{}, err
	}
	return c.signedPost(ctx, path, params)
}

// orderParams builds sym/amt/rat/typ. Amount and rate are canonicalized because
// the exchange rejects padded values such as 0.10000000 or 1000.00.
func orderParams(side core.Side, req core.OrderRequest) (map[string]any, error) {
	if req.Side == "" {
		req.Side = side
	}
	if req.Side != side {
		return nil, fmt.Errorf("%w: %s request sent to %s endpoint", core.ErrInvalidOrder, req.Side, side)
	}
	if req.Type == "" {
		req.Type = core.Limit
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	amt, err := numeric.Canonicalize(req.Amount)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"sym": strings.ToUpper(req.Symbol),
		"amt": amt,
		"typ": string(core.Limit),
	}
	if req.Type == core.Market {
		params["typ"] = string(core.Market)
	}
	if req.Rate.IsSet() {
		rat, err := numeric.Canonicalize(req.Rate)
		if err != nil {
			return nil, err
		}
		params["rat"] = rat
	}
	return params, nil
}

func (c *Client) signedPost(ctx context.Context, path string, params map[string]any) (exchange.Result, error) {
	if !c.creds.Complete() {
		return exchange.Result{}, exchange.ErrMissingCredentials
	}
	payload, err := c.signer.Sign(params)
	if err != nil {
		return exchange.Result{}, err
	}
	return c.call(ctx, http.MethodPost, path, payload.Body, accountIndicator)
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, indicate exchange.Indicator) (exchange.Result, error) {
	var headers http.Header
	if body != nil {
		headers = c.headers()
	}
	resp, err := c.http.Do(ctx, method, c.baseURL+path, headers, body)
	if err != nil {
		return exchange.Result{}, fmt.Errorf("bitkub %s %s: %w", method, path, err)
	}
	res, err := exchange.Normalize(Name, resp, c.policy, indicate)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("request failed")
		return exchange.Result{}, err
	}
	switch res.Outcome {
	case exchange.OutcomeLogicalError:
		c.log.WithFields(logger.Fields{"path": path, "body": string(res.Payload)}).Warn("exchange reported error")
	case exchange.OutcomeEmpty:
		c.log.WithFields(logger.Fields{"path": path, "status": res.StatusCode}).Warn("non-2xx response swallowed")
	}
	return res, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	h.Set(apiKeyHeader, c.creds.Key)
	return h
}

func marketQuery(symbol string, limit int) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return url.Values{"sym": {symbol}, "lmt": {strconv.Itoa(limit)}}.Encode()
}

// marketIndicator serves the public endpoints. Ticker and depth answer without
// an "error" field, so such bodies pass through whole.
func marketIndicator(body []byte) (json.RawMessage, bool) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return json.RawMessage(body), true
	}
	if _, ok := env["error"]; !ok {
		return json.RawMessage(body), true
	}
	return accountIndicator(body)
}

// accountIndicator serves signed calls: only "error": 0 is a success and yields
// "result". A missing field or a non-JSON body is an exchange error.
func accountIndicator(body []byte) (json.RawMessage, bool) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	raw, ok := env["error"]
	if !ok {
		return nil, false
	}
	var code int
	if err := json.Unmarshal(raw, &code); err != nil || code != 0 {
		return nil, false
	}
	result, ok := env["result"]
	if !ok {
		return json.RawMessage("null"), true
	}
	return result, true
}
