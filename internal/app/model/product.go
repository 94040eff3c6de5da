package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// KitVariant is a pre-bundled way of selling a product. Its prices are totals
// for the whole bundle, not per unit.
type KitVariant struct {
	Code           string          `json:"code"`
	Units          int             `json:"units"`
	ImmediatePrice decimal.Decimal `json:"immediatePrice"`
	Term30Price    decimal.Decimal `json:"term30Price"`
	Term90Price    decimal.Decimal `json:"term90Price"`
}

func (k KitVariant) Prices() Prices {
	return Prices{
		TermImmediate: k.ImmediatePrice,
		Term30:        k.Term30Price,
		Term90:        k.Term90Price,
	}
}

// Product is a catalog entry. Term prices are optional per-unit prices; when
// absent the base price applies.
//
// A product with IsKit set is a kit variant already converted into a
// product shape: its term prices are bundle totals and KitCode identifies
// the variant.
type Product struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Image          string           `json:"image,omitempty"`
	BasePrice      decimal.Decimal  `json:"basePrice"`
	ImmediatePrice *decimal.Decimal `json:"immediatePrice,omitempty"`
	Term30Price    *decimal.Decimal `json:"term30Price,omitempty"`
	Term90Price    *decimal.Decimal `json:"term90Price,omitempty"`
	Kits           []KitVariant     `json:"kits,omitempty"`

	IsKit       bool   `json:"isKit,omitempty"`
	KitCode     string `json:"kitCode,omitempty"`
	UnitsPerKit int    `json:"unitsPerKit,omitempty"`
}

// TermPrice returns the product's own price for the term, if it has one.
func (p Product) TermPrice(t Term) (decimal.Decimal, bool) {
	var v *decimal.Decimal
	switch t {
	case TermImmediate:
		v = p.ImmediatePrice
	case Term30:
		v = p.Term30Price
	case Term90:
		v = p.Term90Price
	}
	if v == nil {
		return decimal.Zero, false
	}
	return *v, true
}

// HasAllTermPrices reports whether every term has an explicit price.
func (p Product) HasAllTermPrices() bool {
	return p.ImmediatePrice != nil && p.Term30Price != nil && p.Term90Price != nil
}

func (p Product) IsKitVariant() bool {
	return p.IsKit || p.KitCode != ""
}

func (p Product) FindKit(code string) (KitVariant, bool) {
	for _, k := range p.Kits {
		if strings.EqualFold(k.Code, code) {
			return k, true
		}
	}
	return KitVariant{}, false
}

// AsKit converts one of the product's kit variants into a product that can be
// added to the cart as a kit line.
func (p Product) AsKit(k KitVariant) Product {
	im, t30, t90 := k.ImmediatePrice, k.Term30Price, k.Term90Price
	return Product{
		ID:             p.ID,
		Name:           p.Name,
		Image:          p.Image,
		BasePrice:      k.ImmediatePrice,
		ImmediatePrice: &im,
		Term30Price:    &t30,
		Term90Price:    &t90,
		Kits:           p.Kits,
		IsKit:          true,
		KitCode:        k.Code,
		UnitsPerKit:    k.Units,
	}
}

// Catalog is the product list supplied by the catalog collaborator. A nil
// Catalog means the catalog is not available yet.
type Catalog []Product

func (c Catalog) FindProduct(id string) (Product, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// FindKit searches every product's kit list for the code.
func (c Catalog) FindKit(code string) (Product, KitVariant, bool) {
	if code == "" {
		return Product{}, KitVariant{}, false
	}
	for _, p := range c {
		if k, ok := p.FindKit(code); ok {
			return p, k, true
		}
	}
	return Product{}, KitVariant{}, false
}
