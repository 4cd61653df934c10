// Package satang is the REST client for Satang Pro. Private calls sign a sorted
// key=value string with HMAC-SHA512; the digest travels in the Signature header.
package satang

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"exbitrage/internal/core"
	"exbitrage/internal/exchange"
	"exbitrage/internal/logger"
	"exbitrage/internal/nonce"
	"exbitrage/internal/signing"
	"exbitrage/internal/transport"
)

const (
	Name           = "satang"
	DefaultBaseURL = "https://api.satang.pro/api"
	DefaultPair    = "btc_thb"
	AuthScheme     = "TDAX-API"
)

type Options struct {
	Credentials core.Credentials
	BaseURL     string
	Transport   transport.Options
	Policy      exchange.FailurePolicy
	// Nonces defaults to unix milliseconds.
	Nonces nonce.Source
	Logger *logger.Log
}

type Client struct {
	creds   core.Credentials
	baseURL string
	http    *transport.Client
	signer  *signing.QueryStringSigner
	nonces  nonce.Source
	policy  exchange.FailurePolicy
	log     *logger.Entry
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
	policy := opts.Policy
	if policy == "" {
		policy = exchange.PolicyFor(opts.Transport.Debug)
	}
	nonces := opts.Nonces
	if nonces == nil {
		nonces = nonce.Millis(nil)
	}
	return &Client{
		creds:   opts.Credentials,
		baseURL: baseURL,
		http:    httpClient,
		signer:  signing.NewQueryStringSigner(AuthScheme, opts.Credentials.Key, opts.Credentials.Secret),
		nonces:  nonces,
		policy:  policy,
		log:     log.WithComponent(Name),
	}, nil
}

func (c *Client) Name() string { return Name }

// Ticker is not offered by this client.
func (c *Client) Ticker(ctx context.Context, symbol string) (exchange.Result, error) {
	return exchange.Result{}, fmt.Errorf("%s ticker: %w", Name, exchange.ErrNotSupported)
}

// OrderBook returns the open orders of a pair. The endpoint has no depth
// parameter, so limit is ignored.
func (c *Client) OrderBook(ctx context.Context, pair string, limit int) (core.OrderBook, error) {
	res, err := c.Orders(ctx, pair)
	if err != nil {
		return core.OrderBook{}, err
	}
	if res.Empty() {
		return core.OrderBook{}, nil
	}
	var book ordersResponse
	if err := res.Decode(&book); err != nil {
		return core.OrderBook{}, fmt.Errorf("satang orders: %w", err)
	}
	return book.orderBook(), nil
}

// Orders returns the raw order book body.
func (c *Client) Orders(ctx context.Context, pair string) (exchange.Result, error) {
	path := "/orders/?" + url.Values{"pair": {normalizePair(pair)}}.Encode()
	return c.call(ctx, http.MethodGet, path, nil, nil)
}

// User returns the account record, balances included.
func (c *Client) User(ctx context.Context) (exchange.Result, error) {
	if !c.creds.Complete() || c.creds.UserID == "" {
		return exchange.Result{}, exchange.ErrMissingCredentials
	}
	path := "/users/" + url.PathEscape(c.creds.UserID)
	return c.call(ctx, http.MethodGet, path, c.signer.Headers(""), nil)
}

func (c *Client) Balance(ctx context.Context) (exchange.Result, error) {
	return c.User(ctx)
}

func (c *Client) PlaceBuyOrder(ctx context.Context, req core.OrderRequest) (exchange.Result, error) {
	return c.placeOrder(ctx, core.Buy, req)
}

func (c *Client) PlaceSellOrder(ctx context.Context, req core.OrderRequest) (exchange.Result, error) {
	return c.placeOrder(ctx, core.Sell, req)
}

func (c *Client) placeOrder(ctx context.Context, side core.Side, req core.OrderRequest) (exchange.Result, error) {
	if !c.creds.Complete() {
		return exchange.Result{}, exchange.ErrMissingCredentials
	}
	params, err := orderParams(side, req)
	if err != nil {
		return exchange.Result{}, err
	}
	params["nonce"] = strconv.FormatInt(c.nonces.Next(), 10)
	payload := signing.QueryString(params)
	headers := c.signer.Headers(payload)
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.call(ctx, http.MethodPost, "/orders/", headers, []byte(payload))
}

// orderParams passes amount and price through as the caller wrote them.
func orderParams(side core.Side, req core.OrderRequest) (map[string]string, error) {
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
	params := map[string]string{
		"pair":   normalizePair(req.Symbol),
		"amount": req.Amount.Raw(),
		"side":   string(side),
		"type":   string(req.Type),
	}
	if req.Rate.IsSet() {
		params["price"] = req.Rate.Raw()
	}
	return params, nil
}

func (c *Client) call(ctx context.Context, method, path string, headers http.Header, body []byte) (exchange.Result, error) {
	resp, err := c.http.Do(ctx, method, c.baseURL+path, headers, body)
	if err != nil {
		return exchange.Result{}, fmt.Errorf("satang %s %s: %w", method, path, err)
	}
	res, err := exchange.Normalize(Name, resp, c.policy, nil)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("request failed")
		return exchange.Result{}, err
	}
	if res.Empty() {
		c.log.WithFields(logger.Fields{"path": path, "status": res.StatusCode}).Warn("non-2xx response swallowed")
	}
	return res, nil
}

func normalizePair(pair string) string {
	pair = strings.ToLower(strings.TrimSpace(pair))
	if pair == "" {
		return DefaultPair
	}
	return pair
}
