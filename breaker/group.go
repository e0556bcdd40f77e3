package breaker

import "sync"

// Group lazily creates one breaker per dependency name so each
// downstream fails independently.
type Group struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a group; every breaker it creates shares cfg.
func NewGroup(cfg Config) *Group {
	return &Group{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (g *Group) Get(name string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[name]
	if !ok {
		b = New(name, g.cfg)
		g.breakers[name] = b
	}
	return b
}

// Do runs fn under the named breaker.
func (g *Group) Do(name string, fn func() error) error {
	return g.Get(name).Do(fn)
}
