package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/xuri/excelize/v2"
)

const (
	ProductsSheet = "products"
	KitsSheet     = "kits"
)

var (
	ErrNoCatalog       = errors.New("catalog not available")
	ErrProductNotFound = errors.New("product not found in catalog")
	ErrKitNotFound     = errors.New("kit not found for product")
)

// LoadReport counts what a workbook import accepted and skipped.
type LoadReport struct {
	Products        int
	Kits            int
	SkippedProducts int
	SkippedKits     int
	Warnings        []string
}

func (r *LoadReport) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// LoadXLSX reads the catalog workbook at path.
func LoadXLSX(path string) (model.Catalog, LoadReport, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("failed to open catalog workbook: %w", err)
	}
	defer f.Close()

	return ParseWorkbook(f)
}

// ParseWorkbook reads the products sheet and, when present, the kits sheet.
// Columns are located by header name so their order does not matter.
func ParseWorkbook(f *excelize.File) (model.Catalog, LoadReport, error) {
	var report LoadReport

	if idx, err := f.GetSheetIndex(ProductsSheet); err != nil || idx < 0 {
		return nil, report, fmt.Errorf("%w: sheet %q missing", ErrNoCatalog, ProductsSheet)
	}

	rows, err := f.GetRows(ProductsSheet)
	if err != nil {
		return nil, report, fmt.Errorf("failed to read %s rows: %w", ProductsSheet, err)
	}
	if len(rows) < 2 {
		return nil, report, fmt.Errorf("%w: sheet %q has no data rows", ErrNoCatalog, ProductsSheet)
	}

	header := headerIndex(rows[0])
	if _, ok := header["id"]; !ok {
		return nil, report, fmt.Errorf("sheet %q: missing id column", ProductsSheet)
	}

	catalog := make(model.Catalog, 0, len(rows)-1)
	position := make(map[string]int, len(rows)-1)

	for i, row := range rows[1:] {
		line := i + 2
		cell := func(name string) string { return cellValue(row, header, name) }

		id := cell("id")
		name := cell("name")
		if id == "" && name == "" {
			continue
		}
		if id == "" || name == "" {
			report.SkippedProducts++
			report.warnf("%s row %d: id and name are required", ProductsSheet, line)
			continue
		}
		if _, dup := position[id]; dup {
			report.SkippedProducts++
			report.warnf("%s row %d: duplicate product id %s", ProductsSheet, line, id)
			continue
		}

		base, err := parseAmount(cell("base_price"))
		if err != nil {
			report.SkippedProducts++
			report.warnf("%s row %d: invalid base_price: %v", ProductsSheet, line, err)
			continue
		}

		product := model.Product{
			ID:        id,
			Name:      name,
			Image:     cell("image"),
			BasePrice: base,
		}
		for column, target := range map[string]**decimal.Decimal{
			"immediate_price": &product.ImmediatePrice,
			"term30_price":    &product.Term30Price,
			"term90_price":    &product.Term90Price,
		} {
			raw := cell(column)
			if raw == "" {
				continue
			}
			v, err := parseAmount(raw)
			if err != nil {
				report.warnf("%s row %d: ignoring invalid %s: %v", ProductsSheet, line, column, err)
				continue
			}
			*target = &v
		}

		position[id] = len(catalog)
		catalog = append(catalog, product)
	}

	if len(catalog) == 0 {
		return nil, report, fmt.Errorf("%w: no valid products", ErrNoCatalog)
	}
	report.Products = len(catalog)

	if idx, err := f.GetSheetIndex(KitsSheet); err == nil && idx >= 0 {
		if err := parseKits(f, catalog, position, &report); err != nil {
			return nil, report, err
		}
	}

	return catalog, report, nil
}

func parseKits(f *excelize.File, catalog model.Catalog, position map[string]int, report *LoadReport) error {
	rows, err := f.GetRows(KitsSheet)
	if err != nil {
		return fmt.Errorf("failed to read %s rows: %w", KitsSheet, err)
	}
	if len(rows) < 2 {
		return nil
	}
	header := headerIndex(rows[0])

	for i, row := range rows[1:] {
		line := i + 2
		cell := func(name string) string { return cellValue(row, header, name) }

		productID := cell("product_id")
		code := cell("code")
		if productID == "" && code == "" {
			continue
		}
		idx, ok := position[productID]
		if !ok {
			report.SkippedKits++
			report.warnf("%s row %d: unknown product %q", KitsSheet, line, productID)
			continue
		}
		if code == "" {
			report.SkippedKits++
			report.warnf("%s row %d: code is required", KitsSheet, line)
			continue
		}
		if _, dup := catalog[idx].FindKit(code); dup {
			report.SkippedKits++
			report.warnf("%s row %d: duplicate kit code %s", KitsSheet, line, code)
			continue
		}

		units, err := strconv.Atoi(cell("units"))
		if err != nil || units < 1 {
			report.SkippedKits++
			report.warnf("%s row %d: units must be a positive integer", KitsSheet, line)
			continue
		}

		kit := model.KitVariant{Code: code, Units: units}
		valid := true
		for column, target := range map[string]*decimal.Decimal{
			"immediate": &kit.ImmediatePrice,
			"term30":    &kit.Term30Price,
			"term90":    &kit.Term90Price,
		} {
			raw := cell(column)
			if raw == "" {
				valid = false
				break
			}
			v, err := parseAmount(raw)
			if err != nil {
				valid = false
				break
			}
			*target = v
		}
		if !valid {
			report.SkippedKits++
			report.warnf("%s row %d: immediate, term30 and term90 prices are required", KitsSheet, line)
			continue
		}

		catalog[idx].Kits = append(catalog[idx].Kits, kit)
		report.Kits++
	}
	return nil
}

func headerIndex(row []string) map[string]int {
	out := make(map[string]int, len(row))
	for i, h := range row {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		if _, exists := out[key]; !exists {
			out[key] = i
		}
	}
	return out
}

func cellValue(row []string, header map[string]int, name string) string {
	i, ok := header[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseAmount accepts plain decimals ("1234.5") and Brazilian formatted
// amounts ("R$ 1.234,50"). Empty means zero.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", raw)
	}
	return v, nil
}
