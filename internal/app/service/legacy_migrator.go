package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
)

// Drop reasons reported by MigrateEntries.
const (
	DropUndecodable         = "undecodable"
	DropMissingProduct      = "missing_product_id"
	DropInvalidQuantity     = "invalid_quantity"
	DropProductNotInCatalog = "product_not_in_catalog"
	DropKitNotInCatalog     = "kit_not_in_catalog"
)

type DroppedEntry struct {
	ID        string
	ProductID string
	Reason    string
}

// MigrationReport summarises one MigrateEntries run.
type MigrationReport struct {
	Total    int
	Current  int
	Migrated int
	Pending  int
	Dropped  []DroppedEntry
}

// Changed reports whether the migrated state differs from what was stored.
func (r MigrationReport) Changed() bool {
	return r.Migrated > 0 || len(r.Dropped) > 0
}

// RebuildReport summarises one RebuildPrices run.
type RebuildReport struct {
	Checked    int
	Rebuilt    int
	Unresolved int
	Migrated   int
	Dropped    int
}

func (r RebuildReport) Changed() bool {
	return r.Rebuilt > 0 || r.Migrated > 0 || r.Dropped > 0
}

// flexString accepts JSON strings and numbers; older carts stored numeric ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts JSON numbers and numeric strings. A nil *flexInt means the
// field was absent. Values that are not whole numbers within int range decode
// as invalidCount, which every count check rejects.
type flexInt int

const invalidCount flexInt = -1

var (
	maxCount = decimal.NewFromInt(int64(math.MaxInt))
	minCount = decimal.NewFromInt(int64(math.MinInt))
)

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(string(s))
	if err != nil || !d.IsInteger() || d.GreaterThan(maxCount) || d.LessThan(minCount) {
		*f = invalidCount
		return nil
	}
	*f = flexInt(d.IntPart())
	return nil
}

// storedItem is the tolerant decoding of one persisted entry. It covers the
// current schema and the older shape that predates kind and prices.
type storedItem struct {
	ID              flexString                 `json:"id"`
	ProductID       flexString                 `json:"productId"`
	LegacyProductID flexString                 `json:"product_id"`
	Name            string                     `json:"name"`
	Image           string                     `json:"image"`
	Size            string                     `json:"size"`
	Quantity        *flexInt                   `json:"quantity"`
	Kind            string                     `json:"kind"`
	Prices          map[string]json.RawMessage `json:"prices"`

	KitCode       string   `json:"kitCode"`
	CodigoKit     string   `json:"codigo_kit"`
	KitCount      *flexInt `json:"kitCount"`
	QuantidadeKit *flexInt `json:"quantidade_kit"`
	KitQuantity   *flexInt `json:"kitQuantity"`
	UnitsPerKit   *flexInt `json:"unitsPerKit"`
	UnidadesKit   *flexInt `json:"unidades_kit"`
	IsKit         bool     `json:"isKit"`
	IsKitSnake    bool     `json:"is_kit"`
}

func (s storedItem) productID() string {
	if s.ProductID != "" {
		return string(s.ProductID)
	}
	return string(s.LegacyProductID)
}

func (s storedItem) kitCode() string {
	if s.KitCode != "" {
		return strings.TrimSpace(s.KitCode)
	}
	return strings.TrimSpace(s.CodigoKit)
}

func (s storedItem) kitCount() (int, bool) {
	for _, v := range []*flexInt{s.KitCount, s.QuantidadeKit, s.KitQuantity} {
		if v != nil {
			return int(*v), true
		}
	}
	return 0, false
}

func (s storedItem) unitsPerKit() int {
	for _, v := range []*flexInt{s.UnitsPerKit, s.UnidadesKit} {
		if v != nil && *v > 0 {
			return int(*v)
		}
	}
	return 0
}

func (s storedItem) kind() (model.ItemKind, bool) {
	switch model.ItemKind(strings.ToUpper(strings.TrimSpace(s.Kind))) {
	case model.KindUnit:
		return model.KindUnit, true
	case model.KindKit:
		return model.KindKit, true
	}
	return "", false
}

func (s storedItem) isCurrentSchema() bool {
	_, ok := s.kind()
	return ok && s.Prices != nil
}

func (s storedItem) looksLikeKit() bool {
	return s.IsKit || s.IsKitSnake || s.kitCode() != ""
}

// parseStoredPrices keeps the terms whose values decode as numbers. Values may
// be JSON numbers or quoted decimals.
func parseStoredPrices(raw map[string]json.RawMessage) model.Prices {
	out := model.Prices{}
	for key, val := range raw {
		term, ok := model.ParseTerm(key)
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
			continue
		}
		var d decimal.Decimal
		if err := d.UnmarshalJSON(val); err != nil {
			continue
		}
		out[term] = d
	}
	return out
}

// MigrateEntries turns persisted entries into validated cart items.
//
// Current-schema entries are normalised; a price map that is partial,
// non-numeric or negative becomes the zero placeholder so a later rebuild can
// resolve it. Older entries are reconstructed from catalog through
// ResolvePrices; when catalog is nil they are returned untouched as pending,
// positioned among the returned items as they were stored.
// Entries that cannot be reconstructed are dropped and listed in the report.
func MigrateEntries(entries []json.RawMessage, catalog model.Catalog) ([]model.CartItem, []model.PendingEntry, MigrationReport) {
	report := MigrationReport{Total: len(entries)}
	items := make([]model.CartItem, 0, len(entries))
	var pending []model.PendingEntry
	seen := make(map[string]bool, len(entries))

	for _, raw := range entries {
		var s storedItem
		if err := json.Unmarshal(raw, &s); err != nil {
			report.Dropped = append(report.Dropped, DroppedEntry{Reason: DropUndecodable})
			continue
		}

		if s.productID() == "" {
			report.Dropped = append(report.Dropped, DroppedEntry{ID: string(s.ID), Reason: DropMissingProduct})
			continue
		}

		var (
			item   model.CartItem
			reason string
		)
		if s.isCurrentSchema() {
			item, reason = fromCurrentSchema(s)
			if reason == "" {
				report.Current++
			}
		} else {
			if catalog == nil {
				pending = append(pending, model.PendingEntry{
					Position: len(items),
					Raw:      append(json.RawMessage(nil), raw...),
				})
				report.Pending++
				continue
			}
			item, reason = fromLegacySchema(s, catalog)
			if reason == "" {
				report.Migrated++
			}
		}
		if reason != "" {
			report.Dropped = append(report.Dropped, DroppedEntry{
				ID:        string(s.ID),
				ProductID: s.productID(),
				Reason:    reason,
			})
			continue
		}

		if item.ID == "" || seen[item.ID] {
			item.ID = uuid.NewString()
		}
		seen[item.ID] = true
		items = append(items, item)
	}

	return items, pending, report
}

func fromCurrentSchema(s storedItem) (model.CartItem, string) {
	kind, _ := s.kind()
	item := model.CartItem{
		ID:        string(s.ID),
		ProductID: s.productID(),
		Name:      s.Name,
		Image:     s.Image,
		Size:      s.Size,
		Kind:      kind,
	}

	if kind == model.KindKit {
		count, ok := s.kitCount()
		if !ok {
			count = 1
		}
		if count < 1 {
			return item, DropInvalidQuantity
		}
		item.KitCode = s.kitCode()
		item.KitCount = count
		item.UnitsPerKit = s.unitsPerKit()
		item.Name = kitDisplayName(item.Name)
	} else {
		if s.Quantity == nil || *s.Quantity < 1 {
			return item, DropInvalidQuantity
		}
		item.Quantity = int(*s.Quantity)
	}

	item.Prices = parseStoredPrices(s.Prices)
	if !item.Prices.Complete() {
		item.Prices = model.ZeroPrices()
	}
	item.Normalize()
	return item, ""
}

func fromLegacySchema(s storedItem, catalog model.Catalog) (model.CartItem, string) {
	productID := s.productID()

	if s.looksLikeKit() {
		code := s.kitCode()
		product, found := catalog.FindProduct(productID)
		if !found || (code != "" && !hasKit(product, code)) {
			owner, _, ok := catalog.FindKit(code)
			if !ok {
				return model.CartItem{}, DropKitNotInCatalog
			}
			product = owner
		}
		prices, res := ResolvePrices(product, model.KindKit, code)
		if res.Fallback {
			return model.CartItem{}, DropKitNotInCatalog
		}

		count, ok := s.kitCount()
		if !ok && s.Quantity != nil {
			count, ok = int(*s.Quantity), true
		}
		if !ok {
			count = 1
		}
		if count < 1 {
			return model.CartItem{}, DropInvalidQuantity
		}

		units := s.unitsPerKit()
		if units == 0 {
			units = res.UnitsPerKit
		}
		name := s.Name
		if name == "" {
			name = product.Name
		}
		if code == "" {
			code = product.KitCode
		}

		item := model.CartItem{
			ID:          string(s.ID),
			ProductID:   product.ID,
			Name:        kitDisplayName(name),
			Image:       firstNonEmpty(s.Image, product.Image),
			Size:        s.Size,
			Prices:      prices,
			Kind:        model.KindKit,
			KitCode:     code,
			KitCount:    count,
			UnitsPerKit: units,
		}
		item.Normalize()
		return item, ""
	}

	product, found := catalog.FindProduct(productID)
	if !found {
		return model.CartItem{}, DropProductNotInCatalog
	}
	quantity := 1
	if s.Quantity != nil {
		quantity = int(*s.Quantity)
	}
	if quantity < 1 {
		return model.CartItem{}, DropInvalidQuantity
	}

	prices, _ := ResolvePrices(product, model.KindUnit, "")
	item := model.CartItem{
		ID:        string(s.ID),
		ProductID: product.ID,
		Name:      firstNonEmpty(s.Name, product.Name),
		Image:     firstNonEmpty(s.Image, product.Image),
		Size:      s.Size,
		Quantity:  quantity,
		Prices:    prices,
		Kind:      model.KindUnit,
	}
	item.Normalize()
	return item, ""
}

// RebuildPrices re-validates every item's price map and replaces only the
// invalid ones, using catalog. Items whose product is unknown keep their
// (placeholder) prices, so running it again with the same catalog changes
// nothing. The input slice is not modified.
func RebuildPrices(items []model.CartItem, catalog model.Catalog) ([]model.CartItem, RebuildReport) {
	out := make([]model.CartItem, len(items))
	report := RebuildReport{Checked: len(items)}

	for i, item := range items {
		item = item.Clone()
		if !item.Prices.Complete() {
			item.Prices = model.ZeroPrices()
		}
		if item.Prices.Valid() || catalog == nil {
			if !item.Prices.Valid() {
				report.Unresolved++
			}
			out[i] = item
			continue
		}

		product, ok := productForItem(item, catalog)
		if !ok {
			report.Unresolved++
			out[i] = item
			continue
		}

		prices, res := ResolvePrices(product, item.Kind, item.KitCode)
		if res.Fallback {
			report.Unresolved++
			out[i] = item
			continue
		}
		if !prices.Equal(item.Prices) {
			item.Prices = prices
			report.Rebuilt++
		}
		if item.IsKit() && item.UnitsPerKit == 0 {
			item.UnitsPerKit = res.UnitsPerKit
		}
		out[i] = item
	}
	return out, report
}

func productForItem(item model.CartItem, catalog model.Catalog) (model.Product, bool) {
	product, found := catalog.FindProduct(item.ProductID)
	if !item.IsKit() {
		return product, found
	}
	if found && hasKit(product, item.KitCode) {
		return product, true
	}
	owner, _, ok := catalog.FindKit(item.KitCode)
	return owner, ok
}

func hasKit(p model.Product, code string) bool {
	_, ok := p.FindKit(code)
	return ok
}

func kitDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, model.KitNamePrefix) {
		return name
	}
	return model.KitNamePrefix + name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
