package lspproxy

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vraftls/vraftls/pkg/vmetrics"
)

// Pool holds at most one running Proxy per language, matching the teacher's
// pattern of process reuse across requests (spec.md §4.6). Concurrent
// first-requests for the same language are collapsed into a single spawn
// via singleflight.
type Pool struct {
	mu      sync.RWMutex
	proxies map[string]*Proxy
	spawn   singleflight.Group
	logger  zerolog.Logger
}

// NewPool returns an empty pool; processes are spawned lazily on first use.
func NewPool(logger zerolog.Logger) *Pool {
	return &Pool{proxies: make(map[string]*Proxy), logger: logger}
}

// GetOrSpawn returns the running proxy for lang, spawning it if this is the
// first request for that language.
func (p *Pool) GetOrSpawn(lang string) (*Proxy, error) {
	p.mu.RLock()
	proxy, ok := p.proxies[lang]
	p.mu.RUnlock()
	if ok {
		select {
		case <-proxy.done:
			// The previous process died; fall through and respawn.
		default:
			return proxy, nil
		}
	}

	v, err, _ := p.spawn.Do(lang, func() (any, error) {
		p.mu.RLock()
		existing, ok := p.proxies[lang]
		p.mu.RUnlock()
		if ok {
			select {
			case <-existing.done:
			default:
				return existing, nil
			}
		}

		spawned, err := Spawn(lang, p.logger)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.proxies[lang] = spawned
		p.mu.Unlock()
		vmetrics.AnalyzersRunning.WithLabelValues(lang).Inc()
		return spawned, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Proxy), nil
}

// Running returns every currently spawned proxy, in no particular order.
// Used for workspace-wide fan-out (spec.md §4.5's ScatterGather), where the
// request goes to every analyzer that might hold relevant state rather than
// to one document's owning proxy.
func (p *Pool) Running() []*Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Proxy, 0, len(p.proxies))
	for _, proxy := range p.proxies {
		out = append(out, proxy)
	}
	return out
}

// ShutdownAll shuts down every running proxy, used on gateway exit.
func (p *Pool) ShutdownAll(ctx context.Context) {
	p.mu.Lock()
	proxies := p.proxies
	p.proxies = make(map[string]*Proxy)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, proxy := range proxies {
		wg.Add(1)
		go func(pr *Proxy) {
			defer wg.Done()
			if err := pr.Shutdown(ctx); err != nil {
				p.logger.Warn().Err(err).Str("language", pr.Language()).Msg("language server shutdown reported error")
			}
			vmetrics.AnalyzersRunning.WithLabelValues(pr.Language()).Dec()
		}(proxy)
	}
	wg.Wait()
}
