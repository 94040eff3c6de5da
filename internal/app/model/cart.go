package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ItemKind discriminates how a cart line counts quantity.
type ItemKind string

const (
	KindUnit ItemKind = "UNIT"
	KindKit  ItemKind = "KIT"
)

// KitNamePrefix marks kit lines in the cart display name.
const KitNamePrefix = "[KIT] "

// Prices holds one amount per payment term.
type Prices map[Term]decimal.Decimal

// ZeroPrices is the placeholder stored while an item cannot be priced.
func ZeroPrices() Prices {
	return Prices{
		TermImmediate: decimal.Zero,
		Term30:        decimal.Zero,
		Term90:        decimal.Zero,
	}
}

// Valid reports whether all three terms are present and non-negative and the
// map is not the all-zero placeholder.
func (p Prices) Valid() bool {
	if len(p) != len(Terms) {
		return false
	}
	allZero := true
	for _, t := range Terms {
		v, ok := p[t]
		if !ok || v.IsNegative() {
			return false
		}
		if !v.IsZero() {
			allZero = false
		}
	}
	return !allZero
}

// Complete reports whether all three terms are present and non-negative.
// Unlike Valid it accepts the zero placeholder.
func (p Prices) Complete() bool {
	if len(p) != len(Terms) {
		return false
	}
	for _, t := range Terms {
		v, ok := p[t]
		if !ok || v.IsNegative() {
			return false
		}
	}
	return true
}

func (p Prices) Get(t Term) decimal.Decimal {
	if v, ok := p[t]; ok {
		return v
	}
	return decimal.Zero
}

func (p Prices) Clone() Prices {
	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MarshalJSON writes amounts as JSON numbers, the shape stored carts have
// always used.
func (p Prices) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	out := make(map[Term]json.Number, len(p))
	for term, amount := range p {
		out[term] = json.Number(amount.String())
	}
	return json.Marshal(out)
}

func (p Prices) Equal(o Prices) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// CartItem is one line of the cart. Kit fields are only set when Kind is KindKit.
type CartItem struct {
	ID          string   `json:"id"`
	ProductID   string   `json:"productId"`
	Name        string   `json:"name"`
	Image       string   `json:"image,omitempty"`
	Size        string   `json:"size,omitempty"`
	Quantity    int      `json:"quantity"`
	Prices      Prices   `json:"prices"`
	Kind        ItemKind `json:"kind"`
	KitCode     string   `json:"kitCode,omitempty"`
	KitCount    int      `json:"kitCount,omitempty"`
	UnitsPerKit int      `json:"unitsPerKit,omitempty"`
}

func (i CartItem) IsKit() bool {
	return i.Kind == KindKit
}

// Count returns the quantity that prices the line: bundles for kits, units otherwise.
func (i CartItem) Count() int {
	if i.IsKit() {
		return i.KitCount
	}
	return i.Quantity
}

// PhysicalUnits returns how many physical units the line represents.
func (i CartItem) PhysicalUnits() int {
	if i.IsKit() {
		if i.UnitsPerKit > 0 {
			return i.KitCount * i.UnitsPerKit
		}
		return i.KitCount
	}
	return i.Quantity
}

// Clone returns a deep copy of the item.
func (i CartItem) Clone() CartItem {
	i.Prices = i.Prices.Clone()
	return i
}

// Normalize enforces the per-kind shape: kits always have quantity 1 and at
// least one bundle, unit lines carry no kit fields.
func (i *CartItem) Normalize() {
	if i.IsKit() {
		i.Quantity = 1
		if i.KitCount < 1 {
			i.KitCount = 1
		}
		return
	}
	i.Kind = KindUnit
	i.KitCode = ""
	i.KitCount = 0
	i.UnitsPerKit = 0
}

// PendingEntry is a stored entry that still needs the catalog to become a
// cart item. Position is the number of items that precede it, so it keeps its
// place in the stored order. Entries sharing a position keep their relative
// order.
type PendingEntry struct {
	Position int
	Raw      json.RawMessage
}

// ShiftAfterRemoval keeps pending positions aligned when the item at index is
// removed.
func ShiftAfterRemoval(pending []PendingEntry, index int) {
	for i := range pending {
		if pending[i].Position > index {
			pending[i].Position--
		}
	}
}

// CartSnapshot is the full state handed to the persistence layer. Pending is
// ordered by Position.
type CartSnapshot struct {
	Items        []CartItem
	Pending      []PendingEntry
	SelectedTerm Term
	DrawerOpen   bool
}

// PersistedCart is what the persistence layer returns on load. Items are kept
// raw so that older schemas can be migrated.
type PersistedCart struct {
	Items        []json.RawMessage
	SelectedTerm string
	DrawerOpen   bool
}
