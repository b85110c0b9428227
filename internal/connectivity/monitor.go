// Package connectivity tracks backend reachability. It combines
// passive signals from the host platform with active HEAD probes of a
// health endpoint and publishes a tri-state status to subscribers.
package connectivity

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the tri-state reachability of the backend.
type Status string

const (
	StatusChecking Status = "checking"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
)

// Default probe settings, matching the configuration defaults.
const (
	DefaultProbeTimeout  = 5 * time.Second
	DefaultProbeInterval = 30 * time.Second
)

// Listener receives status transitions. The current status is
// delivered immediately upon subscribing.
type Listener func(Status)

// Monitor owns the connection status exclusively. It starts in
// StatusChecking, resolves via an initial probe, and thereafter moves
// between online and offline on platform signals and probe results.
type Monitor struct {
	healthURL     string
	probeTimeout  time.Duration
	probeInterval time.Duration
	httpClient    *http.Client
	log           *logrus.Entry

	mu        sync.Mutex
	status    Status
	listeners map[int]Listener
	nextID    int
	stopCh    chan struct{}
	closed    bool
}

// NewMonitor creates a monitor probing healthURL with HEAD requests.
// Call Start to run the initial probe and the periodic re-probe loop.
func NewMonitor(healthURL string, probeTimeout, probeInterval time.Duration) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	return &Monitor{
		healthURL:     healthURL,
		probeTimeout:  probeTimeout,
		probeInterval: probeInterval,
		httpClient:    &http.Client{Timeout: probeTimeout},
		log:           logrus.WithField("component", "connectivity"),
		status:        StatusChecking,
		listeners:     make(map[int]Listener),
		stopCh:        make(chan struct{}),
	}
}

// Start runs the initial probe and launches the periodic re-probe
// loop. Re-probing happens only while online, to detect silent
// degradation; while offline the monitor waits for NotifyOnline.
func (m *Monitor) Start() {
	m.resolveByProbe()
	go m.loop()
}

// Status returns the current connection status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online reports whether the backend is currently considered reachable.
func (m *Monitor) Online() bool {
	return m.Status() == StatusOnline
}

// Subscribe registers a listener, delivers the current status to it
// immediately, and returns an idempotent unsubscribe function.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	current := m.status
	m.mu.Unlock()

	deliver(fn, current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// NotifyOffline handles the platform's "went offline" signal. The
// transition is immediate; no probe is needed to distrust the network.
func (m *Monitor) NotifyOffline() {
	m.transition(StatusOffline)
}

// NotifyOnline handles the platform's "went online" signal. The
// platform's word is not trusted directly: status moves to checking
// and a probe decides.
func (m *Monitor) NotifyOnline() {
	m.transition(StatusChecking)
	m.resolveByProbe()
}

// Close stops the re-probe loop and detaches all listeners. Safe to
// call multiple times.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stopCh)
	m.listeners = make(map[int]Listener)
}

// Probe issues a single bounded-timeout HEAD request against the
// health endpoint. Any 2xx response counts as reachable.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.healthURL, nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.Status() == StatusOnline {
				m.resolveByProbe()
			}
		}
	}
}

// resolveByProbe runs a probe and settles the status to online or
// offline based on the result.
func (m *Monitor) resolveByProbe() {
	if m.Probe(context.Background()) {
		m.transition(StatusOnline)
	} else {
		m.transition(StatusOffline)
	}
}

// transition updates the status and notifies listeners if it changed.
func (m *Monitor) transition(next Status) {
	m.mu.Lock()
	if m.closed || m.status == next {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status = next
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("connection status changed")

	for _, fn := range listeners {
		deliver(fn, next)
	}
}

// deliver invokes a listener, isolating panics so one bad subscriber
// cannot break delivery to the others.
func deliver(fn Listener, s Status) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("component", "connectivity").
				WithField("panic", r).Warn("status listener panicked")
		}
	}()
	fn(s)
}
