package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

// Listener is notified with the new catalog when it first becomes available
// and every time its content changes.
type Listener func(model.Catalog)

// Provider holds the catalog currently known to the application.
type Provider struct {
	path string

	mu          sync.RWMutex
	current     model.Catalog
	fingerprint []byte
	loadedAt    time.Time
	listeners   []Listener
}

// NewProvider creates an empty provider. path is the workbook reloaded by
// Reload; it may be empty when the catalog is set programmatically.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Current returns the catalog, or nil when none has been loaded.
func (p *Provider) Current() model.Catalog {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Provider) LoadedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt
}

func (p *Provider) OnChange(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Set replaces the catalog and notifies listeners when the content differs
// from what was held before. It reports whether listeners were notified.
func (p *Provider) Set(c model.Catalog) (bool, error) {
	if c == nil {
		return false, ErrNoCatalog
	}
	fp, err := json.Marshal(c)
	if err != nil {
		return false, fmt.Errorf("failed to fingerprint catalog: %w", err)
	}

	p.mu.Lock()
	if p.current != nil && bytes.Equal(fp, p.fingerprint) {
		p.loadedAt = time.Now()
		p.mu.Unlock()
		return false, nil
	}
	first := p.current == nil
	p.current = c
	p.fingerprint = fp
	p.loadedAt = time.Now()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	logger.Info("Catalog updated", map[string]interface{}{
		"products": len(c),
		"first":    first,
	})
	for _, l := range listeners {
		l(c)
	}
	return true, nil
}

// Reload reads the workbook again and applies it with Set.
func (p *Provider) Reload() (bool, error) {
	if p.path == "" {
		return false, fmt.Errorf("%w: no catalog path configured", ErrNoCatalog)
	}

	c, report, err := LoadXLSX(p.path)
	if err != nil {
		return false, err
	}
	for _, w := range report.Warnings {
		logger.Warn("Catalog row skipped", map[string]interface{}{
			"path":   p.path,
			"detail": w,
		})
	}
	logger.Debug("Catalog workbook read", map[string]interface{}{
		"path":             p.path,
		"products":         report.Products,
		"kits":             report.Kits,
		"skipped_products": report.SkippedProducts,
		"skipped_kits":     report.SkippedKits,
	})
	return p.Set(c)
}

// Lookup finds the product to add to a cart. A non-empty kitCode selects one
// of the product's kit variants, converted to a kit product.
func (p *Provider) Lookup(productID, kitCode string) (model.Product, error) {
	c := p.Current()
	if c == nil {
		return model.Product{}, ErrNoCatalog
	}

	product, ok := c.FindProduct(strings.TrimSpace(productID))
	if !ok {
		return model.Product{}, ErrProductNotFound
	}
	if code := strings.TrimSpace(kitCode); code != "" {
		kit, ok := product.FindKit(code)
		if !ok {
			return model.Product{}, ErrKitNotFound
		}
		return product.AsKit(kit), nil
	}
	return product, nil
}
