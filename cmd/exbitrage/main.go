package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"exbitrage/internal/alert"
	"exbitrage/internal/arbitrage"
	"exbitrage/internal/config"
	"exbitrage/internal/core"
	"exbitrage/internal/exchange"
	"exbitrage/internal/exchange/bitkub"
	"exbitrage/internal/exchange/satang"
	"exbitrage/internal/logger"
	"exbitrage/internal/numeric"
	"exbitrage/internal/store"
)

const usage = `usage: exbitrage [-config path] [-env path] <command> [flags]

commands:
  ticker   -exchange bitkub [-symbol THB_BTC]
  depth    -exchange bitkub|satang [-symbol] [-limit]
  bids     [-symbol] [-limit]            (bitkub)
  asks     [-symbol] [-limit]            (bitkub)
  balance  -exchange bitkub|satang
  buy      -exchange bitkub|satang -symbol -amount [-rate] [-type limit|market]
  sell     -exchange bitkub|satang -symbol -amount [-rate] [-type limit|market]
  stream   [-symbol]                     (bitkub ticker websocket)
  run                                    (arbitrage coordinator)
`

var errUsage = errors.New("usage")

type globalFlags struct {
	configPath string
	envPath    string
}

type command struct {
	name     string
	exchange string
	symbol   string
	limit    int
	amount   string
	rate     string
	typ      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global, cmd, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(global.envPath); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	cfg := config.Default()
	if global.configPath != "" {
		cfg, err = config.Load(global.configPath)
		if err != nil {
			return err
		}
	}
	log := logger.New()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAgeDays); err != nil {
		return err
	}
	logger.SetLogger(log)
	if cfg.Debug {
		log.WithComponent("main").Warn("debug mode: traffic goes through the intercepting proxy with TLS verification off")
	}
	return execute(ctx, cfg, cmd, log, stdout)
}

func parseArgs(args []string, stderr io.Writer) (globalFlags, command, error) {
	var g globalFlags
	fs := flag.NewFlagSet("exbitrage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "config yaml path (defaults apply when empty)")
	fs.StringVar(&g.envPath, "env", ".env", "dotenv file with exchange credentials")
	if err := fs.Parse(args); err != nil {
		return g, command{}, errUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return g, command{}, errUsage
	}
	cmd, err := parseCommand(rest[0], rest[1:], stderr)
	return g, cmd, err
}

func parseCommand(name string, args []string, stderr io.Writer) (command, error) {
	cmd := command{name: strings.ToLower(name)}
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	switch cmd.name {
	case "ticker", "depth", "balance", "buy", "sell":
		fs.StringVar(&cmd.exchange, "exchange", bitkub.Name, "bitkub or satang")
	case "bids", "asks", "stream", "run":
	default:
		return command{}, fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	switch cmd.name {
	case "ticker", "depth", "bids", "asks", "stream", "buy", "sell":
		fs.StringVar(&cmd.symbol, "symbol", "", "market symbol in the exchange's notation")
	}
	switch cmd.name {
	case "depth", "bids", "asks":
		fs.IntVar(&cmd.limit, "limit", 0, "number of rows")
	case "buy", "sell":
		fs.StringVar(&cmd.amount, "amount", "", "order amount")
		fs.StringVar(&cmd.rate, "rate", "", "limit price")
		fs.StringVar(&cmd.typ, "type", string(core.Limit), "limit or market")
	}
	if err := fs.Parse(args); err != nil {
		return command{}, errUsage
	}
	if fs.NArg() > 0 {
		return command{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	cmd.exchange = strings.ToLower(strings.TrimSpace(cmd.exchange))
	switch cmd.exchange {
	case "", bitkub.Name, satang.Name:
	default:
		return command{}, fmt.Errorf("unknown exchange %q", cmd.exchange)
	}
	if cmd.name == "ticker" && cmd.exchange == satang.Name {
		return command{}, fmt.Errorf("satang ticker: %w", exchange.ErrNotSupported)
	}
	if (cmd.name == "buy" || cmd.name == "sell") && (cmd.symbol == "" || cmd.amount == "") {
		return command{}, fmt.Errorf("%w: %s needs -symbol and -amount", errUsage, cmd.name)
	}
	return cmd, nil
}

func execute(ctx context.Context, cfg config.Config, cmd command, log *logger.Log, out io.Writer) error {
	switch cmd.name {
	case "bids", "asks", "stream":
		cmd.exchange = bitkub.Name
	case "run":
		return runCoordinator(ctx, cfg, log)
	}
	ex, err := newExchange(cmd.exchange, cfg, log)
	if err != nil {
		return err
	}
	switch cmd.name {
	case "ticker":
		return printResult(out, call(ex.Ticker(ctx, symbolOr(cmd.symbol, cfg, ex))))
	case "depth":
		book, err := ex.OrderBook(ctx, symbolOr(cmd.symbol, cfg, ex), limitOr(cmd.limit, cfg))
		if err != nil {
			return err
		}
		return printJSON(out, book)
	case "bids", "asks":
		bk := ex.(*bitkub.Client)
		list := bk.Bids
		if cmd.name == "asks" {
			list = bk.Asks
		}
		rows, err := list(ctx, symbolOr(cmd.symbol, cfg, ex), limitOr(cmd.limit, cfg))
		if err != nil {
			return err
		}
		return printJSON(out, rows)
	case "balance":
		return printResult(out, call(ex.Balance(ctx)))
	case "buy", "sell":
		side := core.Buy
		if cmd.name == "sell" {
			side = core.Sell
		}
		req, err := orderRequest(cmd, side)
		if err != nil {
			return err
		}
		place := ex.PlaceBuyOrder
		if side == core.Sell {
			place = ex.PlaceSellOrder
		}
		return printResult(out, call(place(ctx, req)))
	case "stream":
		return streamTicker(ctx, ex.(*bitkub.Client), symbolOr(cmd.symbol, cfg, ex), out)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd.name)
}

func orderRequest(cmd command, side core.Side) (core.OrderRequest, error) {
	var rate numeric.Value
	if strings.TrimSpace(cmd.rate) != "" {
		rate = numeric.FromString(cmd.rate)
	}
	return core.NewOrderRequest(cmd.symbol, side, core.OrderType(cmd.typ), numeric.FromString(cmd.amount), rate)
}

func newExchange(name string, cfg config.Config, log *logger.Log) (exchange.Exchange, error) {
	switch name {
	case bitkub.Name, "":
		return newBitkub(cfg, log)
	case satang.Name:
		return newSatang(cfg, log)
	}
	return nil, fmt.Errorf("unknown exchange %q", name)
}

func newBitkub(cfg config.Config, log *logger.Log) (*bitkub.Client, error) {
	return bitkub.NewClient(bitkub.Options{
		Credentials: config.CredentialsFromEnv(config.BitkubEnvPrefix),
		BaseURL:     cfg.Bitkub.RestBaseURL,
		StreamURL:   cfg.Bitkub.WSBaseURL,
		Transport:   cfg.TransportOptions(log),
		Policy:      cfg.FailurePolicy,
		Logger:      log,
	})
}

func newSatang(cfg config.Config, log *logger.Log) (*satang.Client, error) {
	return satang.NewClient(satang.Options{
		Credentials: config.CredentialsFromEnv(config.SatangEnvPrefix),
		BaseURL:     cfg.Satang.RestBaseURL,
		Transport:   cfg.TransportOptions(log),
		Policy:      cfg.FailurePolicy,
		Logger:      log,
	})
}

func symbolOr(symbol string, cfg config.Config, ex exchange.Exchange) string {
	if strings.TrimSpace(symbol) != "" {
		return symbol
	}
	if ex.Name() == satang.Name {
		return cfg.Satang.Pair
	}
	return cfg.Bitkub.Symbol
}

func limitOr(limit int, cfg config.Config) int {
	if limit > 0 {
		return limit
	}
	return cfg.Arbitrage.DepthLimit
}

type callResult struct {
	res exchange.Result
	err error
}

func call(res exchange.Result, err error) callResult {
	return callResult{res: res, err: err}
}

// printResult writes the payload. Logical errors are printed and also returned.
func printResult(out io.Writer, r callResult) error {
	if r.err != nil {
		return r.err
	}
	switch r.res.Outcome {
	case exchange.OutcomeEmpty:
		return fmt.Errorf("%s: %w (status %d)", r.res.Exchange, exchange.ErrEmptyResult, r.res.StatusCode)
	case exchange.OutcomeLogicalError:
		if err := printJSON(out, r.res.Payload); err != nil {
			return err
		}
		return r.res.Err()
	}
	return printJSON(out, r.res.Payload)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func streamTicker(ctx context.Context, client *bitkub.Client, symbol string, out io.Writer) error {
	events, errs, err := client.StreamTicker(ctx, symbol)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func runCoordinator(ctx context.Context, cfg config.Config, log *logger.Log) error {
	bk, err := newBitkub(cfg, log)
	if err != nil {
		return err
	}
	st, err := newSatang(cfg, log)
	if err != nil {
		return err
	}
	alerts := buildAlertManager(cfg, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := alerts.Close(closeCtx); err != nil {
			log.WithError(err).Warn("close alert manager failed")
		}
	}()
	opts := arbitrage.Options{
		SymbolA:    cfg.Bitkub.Symbol,
		SymbolB:    cfg.Satang.Pair,
		DepthLimit: cfg.Arbitrage.DepthLimit,
		MinSpread:  cfg.Arbitrage.MinSpread.Decimal,
		Alerter:    alerts,
		Logger:     log,
	}
	if cfg.State.Dir != "" {
		lock, err := store.AcquireLock(cfg.State.Dir, store.LockOptions{
			Takeover:   *cfg.State.LockTakeover,
			StaleAfter: time.Duration(cfg.State.LockStaleSec) * time.Second,
			Label:      bitkub.Name + ":" + cfg.Bitkub.Symbol + " " + satang.Name + ":" + cfg.Satang.Pair,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.WithError(err).Warn("release instance lock failed")
			}
		}()
		recorder, err := store.New(cfg.State.Dir, store.Options{Journal: cfg.State.Journal, Logger: log})
		if err != nil {
			return err
		}
		opts.Recorder = recorder
	}
	coord, err := arbitrage.New(bk, st, opts)
	if err != nil {
		return err
	}
	return coord.Run(ctx, cfg.Interval())
}

func buildAlertManager(cfg config.Config, log *logger.Log) *alert.Manager {
	var notifier alert.Notifier = alert.NewLogNotifier(log)
	if tg := cfg.Observability.Telegram; tg.Enabled {
		notifier = alert.NewTelegramNotifier(alert.TelegramOptions{
			BotToken: tg.BotToken,
			ChatID:   tg.ChatID,
			BaseURL:  tg.APIBaseURL,
			Timeout:  time.Duration(tg.TimeoutSec) * time.Second,
		})
	}
	return alert.NewManager(notifier, alert.Options{
		Environment:        string(cfg.Environment),
		QueueSize:          cfg.Observability.Alerts.QueueSize,
		DropReportInterval: time.Duration(cfg.Observability.Alerts.DropReportSec) * time.Second,
		Logger:             log,
	})
}
