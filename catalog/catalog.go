// Package catalog holds the static, named query definitions served by the
// data endpoints.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/orian/clickguard/models"
)

// ErrUnknownQuery is returned by Lookup for names not in the catalog.
var ErrUnknownQuery = errors.New("unknown query")

// Catalog is a read-only set of query configs keyed by name. It is safe
// for concurrent use.
type Catalog struct {
	configs map[string]models.QueryConfig
	order   []string
}

// New builds a catalog from configs, keeping their order for listing.
// Names must be unique and non-empty, every config needs SQL or variants
// (not both), and variants must be sorted ascending by Since.
func New(configs []models.QueryConfig) (*Catalog, error) {
	c := &Catalog{
		configs: make(map[string]models.QueryConfig, len(configs)),
		order:   make([]string, 0, len(configs)),
	}
	for _, cfg := range configs {
		if err := check(cfg); err != nil {
			return nil, err
		}
		if _, dup := c.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("query %q defined twice", cfg.Name)
		}
		c.configs[cfg.Name] = cfg
		c.order = append(c.order, cfg.Name)
	}
	return c, nil
}

func check(cfg models.QueryConfig) error {
	if cfg.Name == "" {
		return errors.New("query config without a name")
	}
	switch {
	case cfg.SQL == "" && len(cfg.Variants) == 0:
		return fmt.Errorf("query %q has no SQL", cfg.Name)
	case cfg.SQL != "" && len(cfg.Variants) > 0:
		return fmt.Errorf("query %q has both SQL and variants", cfg.Name)
	}
	for i := 1; i < len(cfg.Variants); i++ {
		if models.Compare(cfg.Variants[i-1].Since, cfg.Variants[i].Since) >= 0 {
			return fmt.Errorf("query %q: variants not sorted by version at %s", cfg.Name, cfg.Variants[i].Since)
		}
	}
	return nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := New(definitions())
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return c
})

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog()
}

// GetQueryConfigByName returns the config registered under name.
func (c *Catalog) GetQueryConfigByName(name string) (models.QueryConfig, bool) {
	cfg, ok := c.configs[name]
	return cfg, ok
}

// Lookup is GetQueryConfigByName returning ErrUnknownQuery for a miss.
func (c *Catalog) Lookup(name string) (models.QueryConfig, error) {
	cfg, ok := c.configs[name]
	if !ok {
		return models.QueryConfig{}, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	return cfg, nil
}

// Names returns the query names in definition order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// All returns every config in definition order.
func (c *Catalog) All() []models.QueryConfig {
	out := make([]models.QueryConfig, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.configs[name])
	}
	return out
}
