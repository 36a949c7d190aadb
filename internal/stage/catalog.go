package stage

import (
	"sort"
	"strings"
	"sync"
)

// Catalog maps computation kinds to implementations.
type Catalog struct {
	mu    sync.RWMutex
	kinds map[string]Computation
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[string]Computation)}
}

// Builtins returns a catalog preloaded with the computations shipped with recflow.
func Builtins() *Catalog {
	c := NewCatalog()
	c.Register("passthrough", Func(passthrough))
	c.Register("detrend", Func(detrend))
	c.Register("lowpass", Func(lowpass))
	c.Register("resample", Func(resample))
	c.Register("rereference", Func(rereference))
	c.Register("bad_channels", Func(badChannels))
	c.Register("epochs", Func(epochs))
	return c
}

// Register adds or replaces a computation kind.
func (c *Catalog) Register(kind string, comp Computation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[normalizeKind(kind)] = comp
}

// Lookup returns the computation for kind.
func (c *Catalog) Lookup(kind string) (Computation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	comp, ok := c.kinds[normalizeKind(kind)]
	return comp, ok
}

// Has reports whether kind is registered.
func (c *Catalog) Has(kind string) bool {
	_, ok := c.Lookup(kind)
	return ok
}

// Kinds lists registered kinds in sorted order.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.kinds))
	for kind := range c.kinds {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
