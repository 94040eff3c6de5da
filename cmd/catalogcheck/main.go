package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/app/service"
	"github.com/vendasb2b/cart-engine/internal/catalog"
)

// catalogcheck validates a catalog workbook before it is deployed and prints
// how every product would be priced in a cart.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/catalogcheck/main.go <xlsx_file_path> [--json]")
	}
	filePath := os.Args[1]
	dumpJSON := len(os.Args) > 2 && os.Args[2] == "--json"

	fmt.Printf("Reading catalog workbook: %s\n", filePath)
	products, report, err := catalog.LoadXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read catalog: ", err)
	}

	if dumpJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(products); err != nil {
			log.Fatal("Failed to encode catalog: ", err)
		}
		return
	}

	unresolved := 0
	for _, p := range products {
		prices, res := service.ResolvePrices(p, model.KindUnit, "")
		if res.Fallback {
			unresolved++
		}
		fmt.Printf("%-12s %-40s %s\n", p.ID, p.Name, formatPrices(prices))
		for _, k := range p.Kits {
			kitPrices, _ := service.ResolvePrices(p, model.KindKit, k.Code)
			fmt.Printf("%-12s   kit %-8s %3d un       %s\n", "", k.Code, k.Units, formatPrices(kitPrices))
		}
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Products: %d\n", report.Products)
	fmt.Printf("  Kits: %d\n", report.Kits)
	fmt.Printf("  Skipped products: %d\n", report.SkippedProducts)
	fmt.Printf("  Skipped kits: %d\n", report.SkippedKits)
	fmt.Printf("  Products without a price: %d\n", unresolved)
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	if unresolved > 0 || report.SkippedProducts > 0 || report.SkippedKits > 0 {
		os.Exit(1)
	}
}

func formatPrices(p model.Prices) string {
	return fmt.Sprintf("%s | %s | %s",
		service.FormatBRL(p.Get(model.TermImmediate)),
		service.FormatBRL(p.Get(model.Term30)),
		service.FormatBRL(p.Get(model.Term90)),
	)
}
