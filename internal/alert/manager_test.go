package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"exbitrage/internal/logger"
)

type notifierSpy struct {
	block   <-chan struct{}
	entered chan struct{}
	once    sync.Once

	mu   sync.Mutex
	msgs []string
}

func (n *notifierSpy) Notify(ctx context.Context, msg string) error {
	if n.entered != nil {
		n.once.Do(func() { close(n.entered) })
	}
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

func (n *notifierSpy) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func closeManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestCloseFlushesQueuedAlerts(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager(spy, Options{Environment: "development", Logger: logger.Discard()})

	m.Alert("orderbook_failed", map[string]string{"exchange": "satang", "error": "timeout"})
	m.Alert("coordinator_stopped", nil)
	closeManager(t, m)

	msgs := spy.messages()
	if len(msgs) != 2 {
		t.Fatalf("notified count = %d, want 2", len(msgs))
	}
	first := msgs[0]
	for _, want := range []string{"[exbitrage] orderbook_failed", "environment: development", "error: timeout\n", "exchange: satang"} {
		if !strings.Contains(first+"\n", want) {
			t.Fatalf("message missing %q:\n%s", want, first)
		}
	}
	if strings.Index(first, "error:") > strings.Index(first, "exchange:") {
		t.Fatalf("fields not sorted:\n%s", first)
	}
}

func TestAlertAfterCloseIsIgnored(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager(spy, Options{Logger: logger.Discard()})
	closeManager(t, m)
	m.Alert("late", nil)
	closeManager(t, m)
	if n := len(spy.messages()); n != 0 {
		t.Fatalf("notified count = %d, want 0", n)
	}
}

func TestNilManagerIsNoop(t *testing.T) {
	m := NewManager(nil, Options{})
	if m != nil {
		t.Fatalf("NewManager(nil) = %v, want nil", m)
	}
	m.Alert("ignored", nil)
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", m.Dropped())
	}
}

func TestAlertDoesNotBlockWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	spy := &notifierSpy{block: block, entered: make(chan struct{})}
	m := NewManager(spy, Options{QueueSize: 1, Logger: logger.Discard()})

	m.Alert("seed", nil)
	select {
	case <-spy.entered:
	case <-time.After(time.Second):
		t.Fatalf("notifier did not enter blocked state")
	}
	m.Alert("queue_fill", nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Alert("spam", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("Alert() blocked on a full queue")
	}
	if got := m.Dropped(); got != 10 {
		t.Fatalf("Dropped() = %d, want 10", got)
	}

	close(block)
	closeManager(t, m)
	if n := len(spy.messages()); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
}

func TestDroppedReportIsLogged(t *testing.T) {
	base, hook := test.NewNullLogger()
	block := make(chan struct{})
	spy := &notifierSpy{block: block, entered: make(chan struct{})}
	m := NewManager(spy, Options{
		QueueSize:          1,
		DropReportInterval: 40 * time.Millisecond,
		Logger:             &logger.Log{Logger: base},
	})

	m.Alert("seed", nil)
	select {
	case <-spy.entered:
	case <-time.After(time.Second):
		t.Fatalf("notifier did not enter blocked state")
	}
	m.Alert("queue_fill", nil)
	for i := 0; i < 3; i++ {
		m.Alert("spam", nil)
	}

	deadline := time.Now().Add(time.Second)
	for !hasMessage(hook, "alerts dropped") {
		if time.Now().After(deadline) {
			t.Fatalf("missing dropped report, got %d entries", len(hook.AllEntries()))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !hasMessage(hook, "alert queue full, dropping") {
		t.Fatalf("missing first-drop warning")
	}

	close(block)
	closeManager(t, m)
}

func hasMessage(hook *test.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func TestDeliveryFailureIsLogged(t *testing.T) {
	base, hook := test.NewNullLogger()
	m := NewManager(failingNotifier{}, Options{Logger: &logger.Log{Logger: base}})
	m.Alert("boom", nil)
	closeManager(t, m)
	if !hasMessage(hook, "alert delivery failed") {
		t.Fatalf("delivery failure not logged")
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, string) error { return errors.New("offline") }

func TestTelegramNotifierPostsMessage(t *testing.T) {
	var gotPath string
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(TelegramOptions{BotToken: "123:abc", ChatID: "-100", BaseURL: srv.URL + "/"})
	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %s", gotPath)
	}
	if got.ChatID != "-100" || got.Text != "hello" {
		t.Fatalf("request = %+v", got)
	}
}

func TestTelegramNotifierReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(TelegramOptions{BotToken: "t", ChatID: "c", BaseURL: srv.URL})
	err := n.Notify(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("Notify() error = %v, want api error", err)
	}
}

func TestTelegramNotifierHidesTokenOnNetworkError(t *testing.T) {
	n := NewTelegramNotifier(TelegramOptions{BotToken: "secret-token", ChatID: "c", BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	err := n.Notify(context.Background(), "hello")
	if err == nil {
		t.Fatalf("Notify() error = nil, want network error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks bot token: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	base, hook := test.NewNullLogger()
	n := NewLogNotifier(&logger.Log{Logger: base})
	if err := n.Notify(context.Background(), "spread closed"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["alert"] != "spread closed" || entry.Data["component"] != "alert" {
		t.Fatalf("entry = %+v", entry)
	}
}
