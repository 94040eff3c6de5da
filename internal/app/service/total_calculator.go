package service

import (
	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
)

// LineTotal is the amount one cart line contributes under term. Kit prices are
// bundle totals multiplied by the number of bundles; unit prices are
// multiplied by the number of units.
//
// Every total shown or sent anywhere goes through this function.
func LineTotal(item model.CartItem, term model.Term) decimal.Decimal {
	var count int
	switch item.Kind {
	case model.KindKit:
		count = item.KitCount
	default:
		count = item.Quantity
	}
	if count <= 0 {
		return decimal.Zero
	}
	return item.Prices.Get(term).Mul(decimal.NewFromInt(int64(count)))
}

// Total sums LineTotal over items.
func Total(items []model.CartItem, term model.Term) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTotal(item, term))
	}
	return total
}

// TotalsByTerm computes the cart total under every term, for side-by-side display.
func TotalsByTerm(items []model.CartItem) map[model.Term]decimal.Decimal {
	out := make(map[model.Term]decimal.Decimal, len(model.Terms))
	for _, t := range model.Terms {
		out[t] = Total(items, t)
	}
	return out
}
