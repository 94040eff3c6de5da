package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/app/repository"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

const persistTimeout = 5 * time.Second

// CartStore owns one buyer's cart: the ordered items, the globally selected
// payment term and the drawer flag. Operations never fail; invalid input is
// logged and ignored, and each operation either fully applies or leaves the
// state untouched. Calls are serialised.
type CartStore struct {
	mu sync.Mutex

	repo  repository.CartStateRepository
	log   *logger.Logger
	newID func() string

	items      []model.CartItem
	pending    []model.PendingEntry
	term       model.Term
	drawerOpen bool
}

type StoreOption func(*CartStore)

func WithLogger(l *logger.Logger) StoreOption {
	return func(s *CartStore) { s.log = l }
}

func WithIDGenerator(fn func() string) StoreOption {
	return func(s *CartStore) { s.newID = fn }
}

// NewCartStore loads the persisted cart, migrating older entries with catalog
// when one is given. A nil catalog keeps older entries pending until
// RebuildPrices is called with one.
func NewCartStore(repo repository.CartStateRepository, catalog model.Catalog, opts ...StoreOption) *CartStore {
	s := &CartStore{
		repo:  repo,
		log:   logger.Get(),
		newID: uuid.NewString,
		term:  model.DefaultTerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load(catalog)
	return s
}

func (s *CartStore) load(catalog model.Catalog) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	state, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Error("Failed to load persisted cart, starting empty", err)
		return
	}
	if state == nil {
		s.log.Debug("No persisted cart found")
		return
	}

	if t, ok := model.ParseTerm(state.SelectedTerm); ok {
		s.term = t
	} else if state.SelectedTerm != "" {
		s.log.Warn("Unknown persisted term, using default", map[string]interface{}{
			"term":    state.SelectedTerm,
			"default": model.DefaultTerm,
		})
	}
	s.drawerOpen = state.DrawerOpen

	items, pending, report := MigrateEntries(state.Items, catalog)
	s.logMigration(report)
	changed := report.Changed()

	if catalog != nil {
		rebuilt, rreport := RebuildPrices(items, catalog)
		items = rebuilt
		changed = changed || rreport.Changed()
	}

	s.items = items
	s.pending = pending

	s.log.Info("Cart restored", map[string]interface{}{
		"items":   len(s.items),
		"pending": len(s.pending),
		"term":    s.term,
	})

	if changed {
		s.persistLocked()
	}
}

func (s *CartStore) logMigration(report MigrationReport) {
	for _, d := range report.Dropped {
		s.log.Warn("Dropped persisted cart entry", map[string]interface{}{
			"item_id":    d.ID,
			"product_id": d.ProductID,
			"reason":     d.Reason,
		})
	}
	if report.Migrated > 0 || report.Pending > 0 || len(report.Dropped) > 0 {
		s.log.Info("Migrated persisted cart entries", map[string]interface{}{
			"total":    report.Total,
			"current":  report.Current,
			"migrated": report.Migrated,
			"pending":  report.Pending,
			"dropped":  len(report.Dropped),
		})
	}
}

// AddItem adds count of product to the cart, merging into an existing line
// with the same merge key. Kit variants merge on (product, kit code) and
// increment kitCount; unit products merge on (product, size, name) and
// increment quantity. term is the price context the buyer added under; only
// UpdateGlobalTerm changes the selected term. The drawer is opened.
func (s *CartStore) AddItem(product model.Product, size string, term model.Term, count int) {
	productID := strings.TrimSpace(product.ID)
	name := strings.TrimSpace(product.Name)
	isKit := product.IsKitVariant()
	kitCode := strings.TrimSpace(product.KitCode)

	fields := map[string]interface{}{
		"product_id": productID,
		"kit_code":   kitCode,
		"size":       size,
		"term":       term,
		"count":      count,
	}
	switch {
	case productID == "" || name == "":
		s.log.Warn("Ignoring add to cart: malformed product", fields)
		return
	case isKit && kitCode == "":
		s.log.Warn("Ignoring add to cart: kit product without kit code", fields)
		return
	case count < 1:
		s.log.Warn("Ignoring add to cart: count must be positive", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := cloneItems(s.items)

	kind := model.KindUnit
	if isKit {
		kind = model.KindKit
	}

	if idx := findByMergeKey(items, kind, productID, size, name, kitCode); idx >= 0 {
		existing := &items[idx]
		if existing.IsKit() {
			existing.KitCount += count
		} else {
			existing.Quantity += count
		}
		existing.Normalize()
		s.log.Debug("Merged into existing cart line", map[string]interface{}{
			"item_id":   existing.ID,
			"kind":      existing.Kind,
			"quantity":  existing.Quantity,
			"kit_count": existing.KitCount,
		})
	} else {
		prices, res := ResolvePrices(product, kind, kitCode)
		if res.Fallback {
			s.log.Warn("Could not resolve prices from catalog, using zero prices", fields)
		}
		item := model.CartItem{
			ID:        s.newID(),
			ProductID: productID,
			Name:      name,
			Image:     product.Image,
			Size:      size,
			Quantity:  count,
			Prices:    prices,
			Kind:      kind,
		}
		if isKit {
			item.Name = kitDisplayName(name)
			item.Quantity = 1
			item.KitCode = kitCode
			item.KitCount = count
			item.UnitsPerKit = res.UnitsPerKit
		}
		item.Normalize()
		items = append(items, item)
		s.log.Info("Cart item added", map[string]interface{}{
			"item_id":    item.ID,
			"product_id": item.ProductID,
			"kind":       item.Kind,
			"source":     res.Source,
		})
	}

	s.items = items
	s.drawerOpen = true
	s.persistLocked()
}

func findByMergeKey(items []model.CartItem, kind model.ItemKind, productID, size, name, kitCode string) int {
	for i, item := range items {
		if item.Kind != kind || item.ProductID != productID {
			continue
		}
		if kind == model.KindKit {
			if strings.EqualFold(item.KitCode, kitCode) {
				return i
			}
			continue
		}
		if item.Size == size && item.Name == name {
			return i
		}
	}
	return -1
}

// RemoveItem deletes the line with itemID. Unknown ids are ignored.
func (s *CartStore) RemoveItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(itemID)
}

func (s *CartStore) removeLocked(itemID string) {
	idx := s.indexOf(itemID)
	if idx < 0 {
		s.log.Debug("Ignoring remove: cart item not found", map[string]interface{}{
			"item_id": itemID,
		})
		return
	}

	items := make([]model.CartItem, 0, len(s.items)-1)
	items = append(items, cloneItems(s.items[:idx])...)
	items = append(items, cloneItems(s.items[idx+1:])...)
	s.items = items
	model.ShiftAfterRemoval(s.pending, idx)

	s.log.Info("Cart item removed", map[string]interface{}{
		"item_id": itemID,
	})
	s.persistLocked()
}

// UpdateQuantity sets the count that prices the line: quantity for unit lines,
// kitCount for kits (whose quantity stays 1). A quantity of zero or less
// removes the line.
func (s *CartStore) UpdateQuantity(itemID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.removeLocked(itemID)
		return
	}

	idx := s.indexOf(itemID)
	if idx < 0 {
		s.log.Warn("Ignoring quantity update: cart item not found", map[string]interface{}{
			"item_id":  itemID,
			"quantity": quantity,
		})
		return
	}

	items := cloneItems(s.items)
	item := &items[idx]
	if item.IsKit() {
		item.KitCount = quantity
		item.Quantity = 1
	} else {
		item.Quantity = quantity
	}
	item.Normalize()
	s.items = items

	s.log.Debug("Cart item quantity updated", map[string]interface{}{
		"item_id":   itemID,
		"kind":      item.Kind,
		"quantity":  item.Quantity,
		"kit_count": item.KitCount,
	})
	s.persistLocked()
}

// UpdateGlobalTerm selects the payment term for the whole cart and then runs
// the price rebuild pass with catalog. A nil catalog leaves prices as they are.
func (s *CartStore) UpdateGlobalTerm(term model.Term, catalog model.Catalog) {
	if !term.Valid() {
		s.log.Warn("Ignoring term change: unknown term", map[string]interface{}{
			"term": term,
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.term = term
	s.rebuildLocked(catalog)
	s.log.Info("Cart payment term updated", map[string]interface{}{
		"term": term,
	})
	s.persistLocked()
}

// RebuildPrices migrates pending older entries and replaces any invalid price
// maps using catalog. Running it twice with the same catalog changes nothing
// the second time.
func (s *CartStore) RebuildPrices(catalog model.Catalog) RebuildReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := s.rebuildLocked(catalog)
	if report.Changed() {
		s.persistLocked()
	}
	return report
}

// CatalogAvailable is called when the catalog is first loaded or refreshed.
func (s *CartStore) CatalogAvailable(catalog model.Catalog) RebuildReport {
	s.log.Debug("Catalog available, rebuilding cart prices", map[string]interface{}{
		"products": len(catalog),
	})
	return s.RebuildPrices(catalog)
}

func (s *CartStore) rebuildLocked(catalog model.Catalog) RebuildReport {
	if catalog == nil {
		return RebuildReport{Checked: len(s.items)}
	}

	items := cloneItems(s.items)
	pending := s.pending

	var migratedReport MigrationReport
	if len(pending) > 0 {
		items, pending, migratedReport = s.migratePending(items, catalog)
		s.logMigration(migratedReport)
	}

	rebuilt, report := RebuildPrices(items, catalog)
	report.Migrated = migratedReport.Migrated
	report.Dropped = len(migratedReport.Dropped)

	s.items = rebuilt
	s.pending = pending

	if report.Rebuilt > 0 || report.Unresolved > 0 {
		s.log.Info("Cart prices rebuilt", map[string]interface{}{
			"checked":    report.Checked,
			"rebuilt":    report.Rebuilt,
			"unresolved": report.Unresolved,
		})
	}
	return report
}

// migratePending converts pending entries with catalog, placing each migrated
// item where its entry sat among items.
func (s *CartStore) migratePending(items []model.CartItem, catalog model.Catalog) ([]model.CartItem, []model.PendingEntry, MigrationReport) {
	report := MigrationReport{Total: len(s.pending)}
	out := make([]model.CartItem, 0, len(items)+len(s.pending))
	var still []model.PendingEntry

	next := 0
	flush := func(upTo int) {
		for ; next < len(s.pending) && s.pending[next].Position <= upTo; next++ {
			migrated, waiting, r := MigrateEntries([]json.RawMessage{s.pending[next].Raw}, catalog)
			report.Current += r.Current
			report.Migrated += r.Migrated
			report.Pending += r.Pending
			report.Dropped = append(report.Dropped, r.Dropped...)
			for _, w := range waiting {
				still = append(still, model.PendingEntry{Position: len(out), Raw: w.Raw})
			}
			for _, m := range migrated {
				if s.indexIn(items, m.ID) >= 0 || s.indexIn(out, m.ID) >= 0 {
					m.ID = s.newID()
				}
				out = append(out, m)
			}
		}
	}
	for i, item := range items {
		flush(i)
		out = append(out, item)
	}
	flush(math.MaxInt)

	return out, still, report
}

// SetDrawerOpen records whether the cart drawer is visible.
func (s *CartStore) SetDrawerOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawerOpen == open {
		return
	}
	s.drawerOpen = open
	s.persistLocked()
}

func (s *CartStore) ToggleDrawer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawerOpen = !s.drawerOpen
	s.persistLocked()
}

// Clear empties the cart and removes its persisted records. The selected term
// is kept in memory.
func (s *CartStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.pending = nil

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.repo.Clear(ctx); err != nil {
		s.log.Error("Failed to remove persisted cart", err)
	}
	s.log.Info("Cart cleared")
}

// Items returns a copy of the cart lines in insertion order.
func (s *CartStore) Items() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// ItemCount is the number of distinct lines.
func (s *CartStore) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// PendingCount is the number of stored entries waiting for a catalog.
func (s *CartStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Total is the cart total under the selected term.
func (s *CartStore) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.items, s.term)
}

func (s *CartStore) TotalFor(term model.Term) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.items, term)
}

func (s *CartStore) SelectedTerm() model.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term
}

func (s *CartStore) DrawerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawerOpen
}

// Snapshot returns a deep copy of the whole state.
func (s *CartStore) Snapshot() model.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *CartStore) snapshotLocked() model.CartSnapshot {
	pending := make([]model.PendingEntry, len(s.pending))
	for i, p := range s.pending {
		pending[i] = model.PendingEntry{
			Position: p.Position,
			Raw:      append(json.RawMessage(nil), p.Raw...),
		}
	}
	return model.CartSnapshot{
		Items:        cloneItems(s.items),
		Pending:      pending,
		SelectedTerm: s.term,
		DrawerOpen:   s.drawerOpen,
	}
}

// persistLocked writes the current state. Failures are logged; the in-memory
// state stays authoritative.
func (s *CartStore) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.repo.Save(ctx, s.snapshotLocked()); err != nil {
		s.log.Error("Failed to persist cart, keeping in-memory state", err, map[string]interface{}{
			"items": len(s.items),
		})
	}
}

func (s *CartStore) indexOf(itemID string) int {
	return s.indexIn(s.items, itemID)
}

func (s *CartStore) indexIn(items []model.CartItem, itemID string) int {
	for i, item := range items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func cloneItems(items []model.CartItem) []model.CartItem {
	if items == nil {
		return nil
	}
	out := make([]model.CartItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
