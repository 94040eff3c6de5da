package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
)

// CheckoutLine is one cart line as sent to the order collaborator.
type CheckoutLine struct {
	ItemID      string          `json:"item_id"`
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Size        string          `json:"size,omitempty"`
	Kind        model.ItemKind  `json:"kind"`
	KitCode     string          `json:"kit_code,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitsPerKit int             `json:"units_per_kit,omitempty"`
	Units       int             `json:"units"`
	Price       decimal.Decimal `json:"price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type CheckoutPayload struct {
	Term      model.Term      `json:"term"`
	Lines     []CheckoutLine  `json:"lines"`
	ItemCount int             `json:"item_count"`
	Units     int             `json:"units"`
	Total     decimal.Decimal `json:"total"`
}

// BuildCheckoutPayload converts the cart into an order payload. Quantity is the
// count that prices the line (bundles for kits); Price is per unit for unit
// lines and per bundle for kits.
func BuildCheckoutPayload(items []model.CartItem, term model.Term) CheckoutPayload {
	payload := CheckoutPayload{
		Term:      term,
		Lines:     make([]CheckoutLine, 0, len(items)),
		ItemCount: len(items),
		Total:     Total(items, term),
	}
	for _, item := range items {
		payload.Lines = append(payload.Lines, CheckoutLine{
			ItemID:      item.ID,
			ProductID:   item.ProductID,
			Name:        item.Name,
			Size:        item.Size,
			Kind:        item.Kind,
			KitCode:     item.KitCode,
			Quantity:    item.Count(),
			UnitsPerKit: item.UnitsPerKit,
			Units:       item.PhysicalUnits(),
			Price:       item.Prices.Get(term),
			LineTotal:   LineTotal(item, term),
		})
		payload.Units += item.PhysicalUnits()
	}
	return payload
}

// BuildOrderSummary renders the cart as a plain-text message suitable for
// chat apps. Bold markers use WhatsApp syntax.
func BuildOrderSummary(items []model.CartItem, term model.Term, buyerName string) string {
	var b strings.Builder

	if name := strings.TrimSpace(buyerName); name != "" {
		fmt.Fprintf(&b, "*Pedido - %s*\n", name)
	} else {
		b.WriteString("*Pedido*\n")
	}
	fmt.Fprintf(&b, "Condição de pagamento: %s\n\n", term.Label())

	if len(items) == 0 {
		b.WriteString("Carrinho vazio\n")
	}
	for _, item := range items {
		fmt.Fprintf(&b, "%dx %s", item.Count(), item.Name)
		var details []string
		if item.Size != "" {
			details = append(details, item.Size)
		}
		if item.IsKit() && item.UnitsPerKit > 0 {
			details = append(details, fmt.Sprintf("%d un/kit", item.UnitsPerKit))
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
		}
		fmt.Fprintf(&b, " - %s\n", FormatBRL(LineTotal(item, term)))
	}

	fmt.Fprintf(&b, "\n*Total: %s*", FormatBRL(Total(items, term)))
	return b.String()
}

// FormatBRL formats an amount as Brazilian reais, e.g. R$ 1.234,56.
func FormatBRL(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, grouped.String(), frac)
}
