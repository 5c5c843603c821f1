// Package connectivity tracks network reachability for the core.
//
// The platform layer feeds reachability transitions in through SetOnline;
// the monitor turns them into at most one callback per offline→online edge.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/snapnote-app/core/internal/logging"
)

// ProbeFunc checks whether the backend is reachable right now.
type ProbeFunc func(ctx context.Context) error

// Monitor exposes the current online state and fires edge callbacks on
// reconnect. It starts optimistically online so a cold app is not forced
// into offline mode before the first reachability signal arrives.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []func()

	probe      ProbeFunc
	probeDelay time.Duration
	probeTimer *time.Timer
}

// NewMonitor creates a Monitor. probe may be nil when no startup check is
// wanted (tests, desktop builds with their own reachability source).
func NewMonitor(probe ProbeFunc, probeDelay time.Duration) *Monitor {
	return &Monitor{
		online:     true,
		probe:      probe,
		probeDelay: probeDelay,
	}
}

// Online reports the current reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnReconnect registers a callback fired on each offline→online transition.
// Callbacks run on the goroutine that reported the transition and must not
// block; slow work belongs in the callback's own goroutine.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOnline records a reachability transition reported by the platform.
// Repeated online reports are no-ops even when the underlying network type
// changed; only a genuine offline→online edge notifies listeners.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var listeners []func()
	if online && !wasOnline {
		listeners = append(listeners, m.listeners...)
	}
	m.mu.Unlock()

	if online != wasOnline {
		logging.Info("connectivity changed", logging.Fields{"online": online})
	}
	for _, fn := range listeners {
		fn()
	}
}

// Start schedules the deferred startup reachability check. When the app
// starts already online with mutations queued from a prior session, no
// further transition would ever trigger a replay; this one-shot probe
// guarantees they are not stranded.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil || m.probeDelay <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeTimer != nil {
		return
	}
	m.probeTimer = time.AfterFunc(m.probeDelay, func() {
		m.runStartupProbe(ctx)
	})
}

// Stop cancels the startup probe if it has not fired yet.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeTimer != nil {
		m.probeTimer.Stop()
	}
}

func (m *Monitor) runStartupProbe(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.probe(probeCtx); err != nil {
		logging.Warn("startup reachability probe failed", logging.Fields{"error": err.Error()})
		m.SetOnline(false)
		return
	}

	// Reachable. Fire the listeners even though the state never left
	// "online": this is the kick that drains a queue inherited from a
	// previous session.
	m.mu.Lock()
	m.online = true
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()

	logging.Debug("startup reachability probe succeeded", nil)
	for _, fn := range listeners {
		fn()
	}
}
