package nntp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRequestTimeout = 60 * time.Second
	idleTimeout           = 5 * time.Minute
	failureThreshold      = 3
	backoffBase           = time.Second
	maxBackoff            = 60 * time.Second
	latencyEMAAlpha       = 0.1
)

// ErrPoolClosing is returned to queued requests when the pool shuts
// down.
var ErrPoolClosing = errors.New("Pool is closing")

// ProviderHealth is a snapshot of a pool's health accounting.
type ProviderHealth struct {
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastFailure         time.Time
	EMALatency          time.Duration
	BackoffUntil        *time.Time
}

type waiter struct {
	ch chan *Conn
}

// Pool manages connections to one provider: idle reuse, capped
// creation, queued acquisition, health tracking with backoff, and
// idle/keepalive maintenance.
type Pool struct {
	config ProviderConfig
	logger zerolog.Logger

	mu      sync.Mutex
	idle    []*Conn
	total   int
	waiters []*waiter
	closing bool

	health ProviderHealth

	requestTimeout time.Duration
	stopMaint      chan struct{}
	maintOnce      sync.Once
}

// NewPool creates a provider pool and starts its maintenance loop.
func NewPool(config ProviderConfig, logger zerolog.Logger) *Pool {
	if config.MaxConnections <= 0 {
		config.MaxConnections = 4
	}
	p := &Pool{
		config:         config,
		requestTimeout: defaultRequestTimeout,
		stopMaint:      make(chan struct{}),
		logger:         logger.With().Str("component", "nntp-pool").Str("provider", config.Name).Logger(),
	}
	go p.maintain()
	return p
}

// Config returns the provider configuration.
func (p *Pool) Config() ProviderConfig { return p.config }

// InBackoff reports whether the pool currently refuses requests.
func (p *Pool) InBackoff() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health.BackoffUntil != nil && time.Now().Before(*p.health.BackoffUntil)
}

// Health returns a snapshot copy.
func (p *Pool) Health() ProviderHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.health
	if h.BackoffUntil != nil {
		until := *h.BackoffUntil
		h.BackoffUntil = &until
	}
	return h
}

// Acquire returns a ready connection: an idle one, a new one under the
// cap, or by queuing until one frees up.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil, ErrPoolClosing
	}

	var busy []*Conn
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		switch conn.State() {
		case StateReady:
			p.idle = append(p.idle, busy...)
			p.mu.Unlock()
			return conn, nil
		case StateBusy:
			// Mid-keepalive; leave it pooled.
			busy = append(busy, conn)
		default:
			// Dead connection found in the idle list; drop it.
			p.total--
			conn.Close()
		}
	}
	p.idle = append(p.idle, busy...)

	if p.total < p.config.MaxConnections {
		p.total++
		p.mu.Unlock()

		conn := NewConn(p.config, p.logger)
		if err := conn.Connect(ctx); err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, err
		}
		return conn, nil
	}

	w := &waiter{ch: make(chan *Conn, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.requestTimeout)
	defer timer.Stop()

	select {
	case conn, ok := <-w.ch:
		if !ok {
			return nil, ErrPoolClosing
		}
		return conn, nil
	case <-timer.C:
		p.removeWaiter(w)
		return nil, errors.New("timed out waiting for a connection")
	case <-ctx.Done():
		p.removeWaiter(w)
		return nil, ctx.Err()
	}
}

// Release returns a connection to the pool, handing it straight to a
// waiter when one is queued. Broken connections are discarded.
func (p *Pool) Release(conn *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing || conn.State() != StateReady {
		p.discardLocked(conn)
		return
	}

	for len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		select {
		case w.ch <- conn:
			return
		default:
			// Waiter already gave up.
		}
	}
	p.idle = append(p.idle, conn)
}

// RecordSuccess resets failure accounting and folds the operation
// latency into the EMA.
func (p *Pool) RecordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.ConsecutiveFailures = 0
	p.health.BackoffUntil = nil
	p.health.LastSuccess = time.Now()
	if p.health.EMALatency == 0 {
		p.health.EMALatency = latency
	} else {
		p.health.EMALatency = time.Duration(
			latencyEMAAlpha*float64(latency) + (1-latencyEMAAlpha)*float64(p.health.EMALatency))
	}
}

// RecordFailure advances the failure counter for retryable errors
// only; not_found and fatal outcomes never enter the backoff
// accumulator.
func (p *Pool) RecordFailure(class string) {
	if class != ClassRetryable {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.ConsecutiveFailures++
	p.health.LastFailure = time.Now()
	if p.health.ConsecutiveFailures >= failureThreshold {
		delay := backoffBase << (p.health.ConsecutiveFailures - failureThreshold)
		if delay > maxBackoff || delay <= 0 {
			delay = maxBackoff
		}
		until := time.Now().Add(delay)
		p.health.BackoffUntil = &until
		p.logger.Warn().
			Int("failures", p.health.ConsecutiveFailures).
			Dur("backoff", delay).
			Msg("Provider entering backoff")
	}
}

// Close rejects queued requests and disconnects every connection.
func (p *Pool) Close() {
	p.maintOnce.Do(func() { close(p.stopMaint) })

	p.mu.Lock()
	p.closing = true
	waiters := p.waiters
	p.waiters = nil
	idle := p.idle
	p.idle = nil
	p.total = 0
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}
	for _, conn := range idle {
		conn.Close()
	}
	p.logger.Debug().Msg("Pool closed")
}

func (p *Pool) removeWaiter(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	// A connection may have been handed over concurrently; put it back.
	select {
	case conn, ok := <-w.ch:
		if ok && conn != nil {
			p.idle = append(p.idle, conn)
		}
	default:
	}
}

// discardLocked drops a connection from the pool's accounting.
func (p *Pool) discardLocked(conn *Conn) {
	p.total--
	if p.total < 0 {
		p.total = 0
	}
	go conn.Close()
}

// maintain closes idle connections past their timeout and issues
// keepalives inside a 5-minute ticker.
func (p *Pool) maintain() {
	ticker := time.NewTicker(keepaliveTickInt)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopMaint:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	p.mu.Lock()
	kept := p.idle[:0]
	var expired, keepalive []*Conn
	for _, conn := range p.idle {
		switch {
		case conn.State() != StateReady:
			p.total--
			expired = append(expired, conn)
		case time.Since(conn.LastUsed()) > idleTimeout:
			p.total--
			expired = append(expired, conn)
		default:
			kept = append(kept, conn)
			keepalive = append(keepalive, conn)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	for _, conn := range expired {
		conn.Close()
	}
	for _, conn := range keepalive {
		conn.Keepalive()
	}
}
