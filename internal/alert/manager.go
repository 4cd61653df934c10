// Package alert delivers important coordinator events to an out-of-band
// channel. Alerts are queued and sent by a background worker, so raising one
// never blocks the caller; overflow is dropped and counted.
package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"exbitrage/internal/logger"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

type Alerter interface {
	Alert(event string, fields map[string]string)
}

const (
	DefaultQueueSize          = 128
	DefaultDropReportInterval = time.Minute

	sendTimeout = 20 * time.Second
)

type Options struct {
	// App and Environment head every message.
	App         string
	Environment string
	QueueSize   int
	// DropReportInterval <= 0 disables the periodic drop summary.
	DropReportInterval time.Duration
	Logger             *logger.Log
}

type Manager struct {
	app         string
	environment string
	notifier    Notifier
	log         *logger.Entry

	queue          chan event
	stop           chan struct{}
	done           chan struct{}
	reportInterval time.Duration

	dropped       uint64
	droppedWindow uint64

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type event struct {
	name   string
	fields map[string]string
	at     time.Time
}

var _ Alerter = (*Manager)(nil)

// NewManager starts the delivery worker. A nil notifier yields a nil Manager,
// whose methods are no-ops.
func NewManager(notifier Notifier, opts Options) *Manager {
	if notifier == nil {
		return nil
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	interval := opts.DropReportInterval
	if interval < 0 {
		interval = 0
	}
	app := strings.TrimSpace(opts.App)
	if app == "" {
		app = "exbitrage"
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	m := &Manager{
		app:            app,
		environment:    opts.Environment,
		notifier:       notifier,
		log:            log.WithComponent("alert"),
		queue:          make(chan event, size),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		reportInterval: interval,
	}
	m.wg.Add(1)
	go m.deliver()
	if interval > 0 {
		m.wg.Add(1)
		go m.reportLoop()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

// Alert queues an event. It never blocks; when the queue is full the event is dropped.
func (m *Manager) Alert(name string, fields map[string]string) {
	if m == nil {
		return
	}
	ev := event{name: name, fields: cloneFields(fields), at: time.Now().UTC()}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		total := atomic.AddUint64(&m.dropped, 1)
		if atomic.AddUint64(&m.droppedWindow, 1) == 1 {
			m.log.WithFields(logger.Fields{
				"event":         name,
				"dropped_total": total,
				"queue_cap":     cap(m.queue),
			}).Warn("alert queue full, dropping")
		}
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of alerts lost to a full queue.
func (m *Manager) Dropped() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.dropped)
}

func (m *Manager) deliver() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					m.reportDropped()
					return
				}
			}
		}
	}
}

func (m *Manager) reportLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reportDropped()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) reportDropped() {
	n := atomic.SwapUint64(&m.droppedWindow, 0)
	if n == 0 {
		return
	}
	m.log.WithFields(logger.Fields{
		"dropped_since_last": n,
		"dropped_total":      atomic.LoadUint64(&m.dropped),
		"queue_len":          len(m.queue),
	}).Warn("alerts dropped")
}

func (m *Manager) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.format(ev)); err != nil {
		m.log.WithError(err).WithField("event", ev.name).Error("alert delivery failed")
	}
}

func (m *Manager) format(ev event) string {
	lines := []string{
		"[" + m.app + "] " + ev.name,
		"time: " + ev.at.Format(time.RFC3339),
	}
	if m.environment != "" {
		lines = append(lines, "environment: "+m.environment)
	}
	keys := make([]string, 0, len(ev.fields))
	for k := range ev.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+ev.fields[k])
	}
	return strings.Join(lines, "\n")
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
