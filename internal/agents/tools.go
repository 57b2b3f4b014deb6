package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is one entry in the dashboard's tool catalog.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Enabled     bool   `json:"enabled"`
}

// Catalog is the toggleable tool inventory. Safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewCatalog creates a Catalog seeded with the given tools.
func NewCatalog(tools ...Tool) *Catalog {
	c := &Catalog{tools: make(map[string]*Tool)}
	for _, t := range tools {
		cp := t
		c.tools[t.Name] = &cp
	}
	return c
}

// List returns every tool sorted by name.
func (c *Catalog) List(_ context.Context) []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Toggle flips the tool's enabled state, returning the new state.
func (c *Catalog) Toggle(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tools[name]
	if !ok {
		return false, fmt.Errorf("%w: tool %q", ErrNotFound, name)
	}
	t.Enabled = !t.Enabled
	return t.Enabled, nil
}

// Enabled reports whether the tool exists and is enabled.
func (c *Catalog) Enabled(_ context.Context, name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return ok && t.Enabled
}
