package requestor

import (
	"net/http"
	"sync"
	"time"
)

// poolEntry is one keep-alive client for a single origin (scheme+host+port).
type poolEntry struct {
	client   *http.Client
	lastUsed time.Time
}

// Pool is a process-wide registry of pooled HTTP clients, one per origin,
// bounded by configured connection count and pipelining depth and
// evicted after an idle TTL. Grounded on the background-ticker
// eviction idiom of a recording-retention cleanup loop.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry

	maxConnsPerHost int
	pipelining      int
	idleTTL         time.Duration
	requestTimeout  time.Duration

	stop chan struct{}
}

// NewPool creates a pool and starts its idle-eviction ticker. Call Close to
// stop the ticker and close all pooled clients' idle connections.
func NewPool(maxConnsPerHost, pipelining int, requestTimeout, idleTTL time.Duration) *Pool {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = 10
	}
	if pipelining <= 0 {
		pipelining = 1
	}
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	p := &Pool{
		entries:         make(map[string]*poolEntry),
		maxConnsPerHost: maxConnsPerHost,
		pipelining:      pipelining,
		idleTTL:         idleTTL,
		requestTimeout:  requestTimeout,
		stop:            make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// ClientFor returns the pooled *http.Client for origin, creating one if
// none exists yet.
func (p *Pool) ClientFor(origin string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[origin]
	if !ok {
		e = &poolEntry{
			client: &http.Client{
				Timeout: p.requestTimeout,
				Transport: &http.Transport{
					MaxConnsPerHost:     p.maxConnsPerHost,
					MaxIdleConnsPerHost: p.maxConnsPerHost,
					MaxIdleConns:        p.maxConnsPerHost * p.pipelining,
					IdleConnTimeout:     p.idleTTL,
				},
			},
		}
		p.entries[origin] = e
	}
	e.lastUsed = time.Now()
	return e.client
}

func (p *Pool) evictLoop() {
	ticker := time.NewTicker(p.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for origin, e := range p.entries {
		if now.Sub(e.lastUsed) > p.idleTTL {
			e.client.CloseIdleConnections()
			delete(p.entries, origin)
		}
	}
}

// Close stops the eviction ticker and closes all idle connections.
func (p *Pool) Close() {
	close(p.stop)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.client.CloseIdleConnections()
	}
}
