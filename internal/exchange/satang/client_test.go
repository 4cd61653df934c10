package satang

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"exbitrage/internal/core"
	"exbitrage/internal/exchange"
	"exbitrage/internal/logger"
	"exbitrage/internal/nonce"
	"exbitrage/internal/numeric"
)

const (
	emptySignature = "7ae1488448ca3f85f10ae0bbe6aacc2444c57f6afbbc862f0926babf02d73d7dc3398f95c70d753f53d8ae5fdbfaad0dd56dcee292cf168c948df2658553298f"
	testNonce      = 1700000000123
)

type capturedRequest struct {
	method string
	uri    string
	header http.Header
	body   string
}

func newTestServer(t *testing.T, status int, response string, seen *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*seen = capturedRequest{method: r.Method, uri: r.URL.RequestURI(), header: r.Header.Clone(), body: string(body)}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, policy exchange.FailurePolicy) *Client {
	t.Helper()
	c, err := NewClient(Options{
		Credentials: core.Credentials{UserID: "42", Key: "satang-key", Secret: "satang-secret"},
		BaseURL:     baseURL + "/api",
		Policy:      policy,
		Nonces:      nonce.Fixed(testNonce),
		Logger:      logger.Discard(),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestOrderBookMapsPriceLevels(t *testing.T) {
	var seen capturedRequest
	srv := newTestServer(t, http.StatusOK,
		`{"bid":[{"price":"174629","amount":"0.00010107"},{"price":"174000","amount":"1"}],"ask":[{"price":"175000","amount":"0.5"}]}`, &seen)
	c := newTestClient(t, srv.URL, exchange.FailureSilent)

	book, err := c.OrderBook(context.Background(), "BTC_THB", 5)
	if err != nil {
		t.Fatalf("OrderBook() error = %v", err)
	}
	if seen.method != http.MethodGet || seen.uri != "/api/orders/?pair=btc_thb" {
		t.Fatalf("request = %+v", seen)
	}
	if seen.header.Get("Signature") != "" {
		t.Fatalf("public request carried a signature")
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("book = %+v", book)
	}
	if !book.Bids[0].Rate.Equal(decimal.RequireFromString("174629")) ||
		!book.Bids[0].Amount.Equal(decimal.RequireFromString("0.00010107")) ||
		!book.Bids[1].Rate.Equal(decimal.RequireFromString("174000")) {
		t.Fatalf("bids = %+v", book.Bids)
	}
	if !book.Asks[0].Rate.Equal(decimal.RequireFromString("175000")) {
		t.Fatalf("asks = %+v", book.Asks)
	}
}

func TestUserSignsEmptyString(t *testing.T) {
	var seen capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"id":42,"wallets":{}}`, &seen)
	c := newTestClient(t, srv.URL, exchange.FailureSilent)

	res, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if seen.method != http.MethodGet || seen.uri != "/api/users/42" {
		t.Fatalf("request = %+v", seen)
	}
	if seen.header.Get("Authorization") != "TDAX-API satang-key" || seen.header.Get("Signature") != emptySignature {
		t.Fatalf("headers = %v", seen.header)
	}
	if !res.OK() || string(res.Payload) != `{"id":42,"wallets":{}}` {
		t.Fatalf("result = %+v", res)
	}
}

func TestPlaceBuyOrderSendsRawValues(t *testing.T) {
	var seen capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"id":7}`, &seen)
	c := newTestClient(t, srv.URL, exchange.FailureSilent)

	req := core.OrderRequest{
		Symbol: "BTC_THB",
		Amount: numeric.FromString("0.10000000"),
		Rate:   numeric.FromFloat(10000),
	}
	if _, err := c.PlaceBuyOrder(context.Background(), req); err != nil {
		t.Fatalf("PlaceBuyOrder() error = %v", err)
	}
	wantBody := "amount=0.10000000&nonce=1700000000123&pair=btc_thb&price=10000&side=buy&type=limit"
	wantSig := "192615ce214fb544e05115653670f1f3a2f314093c2b54cf22989eeec093d34516c80f3ff0ed657afefb0233a3c7aa92dd52cd04d913a7a1fe7ac56ea8b4fd92"
	if seen.method != http.MethodPost || seen.uri != "/api/orders/" || seen.body != wantBody {
		t.Fatalf("request = %+v, want body %s", seen, wantBody)
	}
	if seen.header.Get("Signature") != wantSig {
		t.Fatalf("Signature = %s, want %s", seen.header.Get("Signature"), wantSig)
	}
}

func TestPlaceSellMarketOrderOmitsPrice(t *testing.T) {
	var seen capturedRequest
	srv := newTestServer(t, http.StatusOK, `{}`, &seen)
	c := newTestClient(t, srv.URL, exchange.FailureSilent)

	req := core.OrderRequest{Symbol: "eth_thb", Amount: numeric.FromString("0.5"), Type: core.Market}
	if _, err := c.PlaceSellOrder(context.Background(), req); err != nil {
		t.Fatalf("PlaceSellOrder() error = %v", err)
	}
	wantBody := "amount=0.5&nonce=1700000000123&pair=eth_thb&side=sell&type=market"
	wantSig := "051f2fc7cde4e8e94737ca083221f5e0a0e3604943f636c68ff0f3cae4e44617359aa79260c3d3d7d37f9e2e808bf1e454109bdd60ce001ec0684e80e200f33a"
	if seen.body != wantBody || seen.header.Get("Signature") != wantSig {
		t.Fatalf("request = %+v", seen)
	}
}

func TestTickerNotSupported(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", exchange.FailureSilent)
	if _, err := c.Ticker(context.Background(), "btc_thb"); !errors.Is(err, exchange.ErrNotSupported) {
		t.Fatalf("Ticker() error = %v, want ErrNotSupported", err)
	}
}

func TestErrorBodyIsSuccessOn2xx(t *testing.T) {
	var seen capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"message":"invalid nonce"}`, &seen)
	c := newTestClient(t, srv.URL, exchange.FailureRaise)

	res, err := c.Balance(context.Background())
	if err != nil || !res.OK() {
		t.Fatalf("Balance() = %+v, %v; want success", res, err)
	}
}

func TestNon2xxPolicies(t *testing.T) {
	var seen capturedRequest
	srv := newTestServer(t, http.StatusBadRequest, `{"message":"bad"}`, &seen)

	silent := newTestClient(t, srv.URL, exchange.FailureSilent)
	res, err := silent.Balance(context.Background())
	if err != nil || !res.Empty() {
		t.Fatalf("silent Balance() = %+v, %v; want empty result", res, err)
	}
	book, err := silent.OrderBook(context.Background(), "btc_thb", 0)
	if err != nil || len(book.Bids)+len(book.Asks) != 0 {
		t.Fatalf("silent OrderBook() = %+v, %v", book, err)
	}

	raise := newTestClient(t, srv.URL, exchange.FailureRaise)
	_, err = raise.Balance(context.Background())
	if !errors.Is(err, exchange.ErrTransportFailure) {
		t.Fatalf("raise Balance() error = %v, want ErrTransportFailure", err)
	}
	te, ok := exchange.AsTransportError(err)
	if !ok || te.StatusCode != http.StatusBadRequest || string(te.Body) != `{"message":"bad"}` {
		t.Fatalf("TransportError = %+v", te)
	}
}

func TestPrivateCallsNeedCredentials(t *testing.T) {
	c, err := NewClient(Options{
		BaseURL:     "http://127.0.0.1:1",
		Credentials: core.Credentials{Key: "k", Secret: "s"},
		Logger:      logger.Discard(),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.User(context.Background()); !errors.Is(err, exchange.ErrMissingCredentials) {
		t.Fatalf("User() without user id error = %v", err)
	}

	c, err = NewClient(Options{BaseURL: "http://127.0.0.1:1", Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	req := core.OrderRequest{Symbol: "btc_thb", Amount: numeric.FromString("1"), Rate: numeric.FromString("1")}
	if _, err := c.PlaceBuyOrder(context.Background(), req); !errors.Is(err, exchange.ErrMissingCredentials) {
		t.Fatalf("PlaceBuyOrder() error = %v, want ErrMissingCredentials", err)
	}
}

func TestPlaceOrderRejectsSideMismatch(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", exchange.FailureSilent)
	req := core.OrderRequest{Symbol: "btc_thb", Amount: numeric.FromString("1"), Rate: numeric.FromString("1"), Side: core.Buy}
	if _, err := c.PlaceSellOrder(context.Background(), req); !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("PlaceSellOrder() error = %v, want ErrInvalidOrder", err)
	}
}
