package catalog

import (
	"io"
	"sync/atomic"
)

// Source produces a freshly loaded catalog.
type Source func() (*Catalog, error)

// FromFile returns a Source that reads path with LoadFile.
func FromFile(path string) Source {
	return func() (*Catalog, error) { return LoadFile(path) }
}

// FromJSON returns a Source that parses r once with LoadJSON.
func FromJSON(r io.Reader) Source {
	return func() (*Catalog, error) { return LoadJSON(r) }
}

// FromYAML returns a Source that parses r once with LoadYAML.
func FromYAML(r io.Reader) Source {
	return func() (*Catalog, error) { return LoadYAML(r) }
}

// Provider holds the current catalog. Readers always observe a complete
// catalog: a reload either swaps in the whole new table or leaves the
// previous one in place.
type Provider struct {
	current atomic.Pointer[Catalog]
}

// NewProvider creates a Provider serving c. A nil c serves an empty catalog.
func NewProvider(c *Catalog) *Provider {
	if c == nil {
		c = Empty()
	}
	p := &Provider{}
	p.current.Store(c)
	return p
}

// Current returns the catalog in effect.
func (p *Provider) Current() *Catalog { return p.current.Load() }

// Reload loads a catalog from src and swaps it in. On error the previous
// catalog stays current and the error is returned.
func (p *Provider) Reload(src Source) error {
	c, err := src()
	if err != nil {
		return err
	}
	p.current.Store(c)
	return nil
}
