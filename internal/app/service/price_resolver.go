package service

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
)

// PriceSource tells where a resolved price map came from.
type PriceSource string

const (
	SourceKitVariant   PriceSource = "kit_variant"
	SourceConvertedKit PriceSource = "converted_kit"
	SourceUnit         PriceSource = "unit"
	SourceFallback     PriceSource = "fallback"
)

// PriceResolution describes how ResolvePrices produced its result. Fallback is
// set when no catalog data could price the item and zeros were used; callers
// are expected to log it.
type PriceResolution struct {
	Source      PriceSource
	Fallback    bool
	UnitsPerKit int
}

// ResolvePrices builds the three-term price map for a cart item.
//
// Kits use the bundle totals of the variant matching kitCode in the product's
// kit list. When the variant is not listed but the product is itself a
// converted kit carrying all three term prices, those are used. Otherwise the
// result is all zeros with Fallback set.
//
// Unit items use the per-term price when present and the base price otherwise.
// Negative catalog values are clamped to zero.
func ResolvePrices(product model.Product, kind model.ItemKind, kitCode string) (model.Prices, PriceResolution) {
	if kind == model.KindKit {
		return resolveKitPrices(product, kitCode)
	}
	return resolveUnitPrices(product)
}

func resolveKitPrices(product model.Product, kitCode string) (model.Prices, PriceResolution) {
	code := strings.TrimSpace(kitCode)
	if code == "" {
		code = product.KitCode
	}

	if code != "" {
		if variant, ok := product.FindKit(code); ok {
			return clampPrices(variant.Prices()), PriceResolution{
				Source:      SourceKitVariant,
				UnitsPerKit: variant.Units,
			}
		}
	}

	sameVariant := product.KitCode == "" || code == "" || strings.EqualFold(product.KitCode, code)
	if product.IsKitVariant() && sameVariant && product.HasAllTermPrices() {
		prices := model.Prices{}
		for _, t := range model.Terms {
			v, _ := product.TermPrice(t)
			prices[t] = v
		}
		return clampPrices(prices), PriceResolution{
			Source:      SourceConvertedKit,
			UnitsPerKit: product.UnitsPerKit,
		}
	}

	return model.ZeroPrices(), PriceResolution{
		Source:      SourceFallback,
		Fallback:    true,
		UnitsPerKit: product.UnitsPerKit,
	}
}

func resolveUnitPrices(product model.Product) (model.Prices, PriceResolution) {
	prices := model.Prices{}
	for _, t := range model.Terms {
		if v, ok := product.TermPrice(t); ok {
			prices[t] = v
			continue
		}
		prices[t] = product.BasePrice
	}
	prices = clampPrices(prices)

	res := PriceResolution{Source: SourceUnit}
	if !prices.Valid() {
		res.Source = SourceFallback
		res.Fallback = true
	}
	return prices, res
}

func clampPrices(p model.Prices) model.Prices {
	out := make(model.Prices, len(model.Terms))
	for _, t := range model.Terms {
		v := p.Get(t)
		if v.IsNegative() {
			v = decimal.Zero
		}
		out[t] = v
	}
	return out
}
