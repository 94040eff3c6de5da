package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vendasb2b/cart-engine/internal/app/model"
)

func rawEntries(entries ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = json.RawMessage(e)
	}
	return out
}

func TestMigrateEntries_CurrentSchemaPassesThrough(t *testing.T) {
	entries := rawEntries(`{"id":"a","productId":"P1","name":"Camiseta Básica","size":"M","quantity":2,"kind":"UNIT","prices":{"immediate":100,"term30":"110","term90":120.5}}`)

	items, pending, report := MigrateEntries(entries, nil)

	require.Len(t, items, 1)
	assert.Empty(t, pending)
	assert.Equal(t, 1, report.Current)
	assert.False(t, report.Changed())
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
	assertPricesEqual(t, prices("100", "110", "120.5"), items[0].Prices)
}

func TestMigrateEntries_PartialPricesBecomePlaceholder(t *testing.T) {
	entries := rawEntries(
		`{"id":"a","productId":"P1","name":"Camiseta","quantity":1,"kind":"UNIT","prices":{"immediate":100,"term30":null}}`,
		`{"id":"b","productId":"P1","name":"Camiseta","size":"G","quantity":1,"kind":"UNIT","prices":{"immediate":100,"term30":110,"term90":-3}}`,
		`{"id":"c","productId":"P1","name":"Camiseta","size":"P","quantity":1,"kind":"UNIT","prices":{"immediate":"abc","term30":110,"term90":120}}`,
	)

	items, _, _ := MigrateEntries(entries, nil)

	require.Len(t, items, 3)
	for _, item := range items {
		assert.True(t, item.Prices.Complete(), item.ID)
		assert.False(t, item.Prices.Valid(), item.ID)
	}
}

func TestMigrateEntries_CurrentKitForcesQuantityOne(t *testing.T) {
	entries := rawEntries(`{"id":"k","productId":"P2","name":"Meia Esportiva","quantity":7,"kind":"KIT","kitCode":"KIT12","kitCount":3,"unitsPerKit":12,"prices":{"immediate":500,"term30":525,"term90":550}}`)

	items, _, _ := MigrateEntries(entries, nil)

	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 3, items[0].KitCount)
	assert.Equal(t, "[KIT] Meia Esportiva", items[0].Name)
}

func TestMigrateEntries_LegacyWithoutCatalogStaysPending(t *testing.T) {
	entries := rawEntries(`{"id":"old-1","productId":"P1","name":"Camiseta Básica","size":"M","quantity":2}`)

	items, pending, report := MigrateEntries(entries, nil)

	assert.Empty(t, items)
	require.Len(t, pending, 1)
	assert.JSONEq(t, string(entries[0]), string(pending[0].Raw))
	assert.Zero(t, pending[0].Position)
	assert.Equal(t, 1, report.Pending)
	assert.False(t, report.Changed())
}

func TestMigrateEntries_PendingPositionsFollowStoredOrder(t *testing.T) {
	entries := rawEntries(
		`{"id":"a","productId":"P3","name":"Boné","quantity":1,"kind":"UNIT","prices":{"immediate":45.9,"term30":45.9,"term90":45.9}}`,
		`{"id":"old-1","productId":"P1","quantity":2}`,
		`{"id":"broken","quantity":1}`,
		`{"id":"old-2","productId":"P2","kitCode":"KIT6"}`,
		`{"id":"b","productId":"P1","name":"Camiseta","quantity":1,"kind":"UNIT","prices":{"immediate":100,"term30":110,"term90":120}}`,
	)

	items, pending, _ := MigrateEntries(entries, nil)

	require.Len(t, items, 2)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Position)
	assert.Equal(t, 1, pending[1].Position)
	assert.Contains(t, string(pending[0].Raw), "old-1")
	assert.Contains(t, string(pending[1].Raw), "old-2")
}

func TestMigrateEntries_LegacyUnitResolvedFromCatalog(t *testing.T) {
	entries := rawEntries(`{"id":"old-1","productId":"P1","name":"Camiseta Básica","size":"M","quantity":"2"}`)

	items, pending, report := MigrateEntries(entries, testCatalog())

	assert.Empty(t, pending)
	require.Len(t, items, 1)
	assert.Equal(t, 1, report.Migrated)
	assert.True(t, report.Changed())

	expected, _ := ResolvePrices(shirt(), model.KindUnit, "")
	assertPricesEqual(t, expected, items[0].Prices)
	assert.Equal(t, model.KindUnit, items[0].Kind)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "old-1", items[0].ID)
	assert.Equal(t, "camiseta.png", items[0].Image)
}

func TestMigrateEntries_LegacyKitAliases(t *testing.T) {
	entries := rawEntries(
		`{"id":"old-k","product_id":"P2","name":"Meia Esportiva","is_kit":true,"codigo_kit":"KIT6","quantidade_kit":4}`,
		`{"id":"old-k2","productId":"P-gone","isKit":true,"kitCode":"KIT12","quantity":2}`,
	)

	items, _, report := MigrateEntries(entries, testCatalog())

	require.Len(t, items, 2)
	assert.Equal(t, 2, report.Migrated)

	first := items[0]
	assert.Equal(t, model.KindKit, first.Kind)
	assert.Equal(t, "KIT6", first.KitCode)
	assert.Equal(t, 4, first.KitCount)
	assert.Equal(t, 1, first.Quantity)
	assert.Equal(t, 6, first.UnitsPerKit)
	assertPricesEqual(t, prices("260", "270", "280"), first.Prices)

	// kit code found on another product; quantity doubles as kit count
	second := items[1]
	assert.Equal(t, "P2", second.ProductID)
	assert.Equal(t, 2, second.KitCount)
	assert.Equal(t, "[KIT] Meia Esportiva", second.Name)
	assertPricesEqual(t, prices("500", "525", "550"), second.Prices)
}

func TestMigrateEntries_DropsUnreconstructable(t *testing.T) {
	entries := rawEntries(
		`not json`,
		`{"id":"no-product","name":"x","quantity":1}`,
		`{"id":"gone","productId":"P404","quantity":1}`,
		`{"id":"bad-kit","productId":"P2","kitCode":"KIT99"}`,
		`{"id":"zero","productId":"P1","quantity":0}`,
		`{"id":"keep","productId":"P3","quantity":1}`,
	)

	items, _, report := MigrateEntries(entries, testCatalog())

	require.Len(t, items, 1)
	assert.Equal(t, "keep", items[0].ID)

	reasons := make([]string, 0, len(report.Dropped))
	for _, d := range report.Dropped {
		reasons = append(reasons, d.Reason)
	}
	assert.Equal(t, []string{
		DropUndecodable,
		DropMissingProduct,
		DropProductNotInCatalog,
		DropKitNotInCatalog,
		DropInvalidQuantity,
	}, reasons)
}

func TestMigrateEntries_RejectsNonWholeQuantities(t *testing.T) {
	entries := rawEntries(
		`{"id":"fraction","productId":"P1","quantity":"2.9"}`,
		`{"id":"huge","productId":"P1","quantity":1e20}`,
		`{"id":"text","productId":"P1","quantity":"duas"}`,
		`{"id":"kit-fraction","productId":"P2","kind":"KIT","kitCode":"KIT12","kitCount":1.5,"prices":{"immediate":500,"term30":525,"term90":550}}`,
		`{"id":"whole","productId":"P1","quantity":"3.0"}`,
	)

	items, _, report := MigrateEntries(entries, testCatalog())

	require.Len(t, items, 1)
	assert.Equal(t, "whole", items[0].ID)
	assert.Equal(t, 3, items[0].Quantity)

	require.Len(t, report.Dropped, 4)
	for _, d := range report.Dropped {
		assert.Equal(t, DropInvalidQuantity, d.Reason, d.ID)
	}
}

func TestMigrateEntries_DuplicateIDsReassigned(t *testing.T) {
	entries := rawEntries(
		`{"id":7,"productId":"P1","name":"A","quantity":1,"kind":"UNIT","prices":{"immediate":1,"term30":1,"term90":1}}`,
		`{"id":"7","productId":"P1","name":"B","quantity":1,"kind":"UNIT","prices":{"immediate":1,"term30":1,"term90":1}}`,
	)

	items, _, _ := MigrateEntries(entries, nil)

	require.Len(t, items, 2)
	assert.Equal(t, "7", items[0].ID)
	assert.NotEqual(t, "7", items[1].ID)
	assert.NotEmpty(t, items[1].ID)
}

func TestRebuildPrices_ReplacesOnlyInvalid(t *testing.T) {
	custom := prices("99", "99", "99")
	items := []model.CartItem{
		{ID: "a", ProductID: "P1", Name: "Camiseta", Quantity: 1, Kind: model.KindUnit, Prices: custom},
		{ID: "b", ProductID: "P1", Name: "Camiseta", Size: "G", Quantity: 1, Kind: model.KindUnit, Prices: model.ZeroPrices()},
		{ID: "c", ProductID: "P2", Name: "[KIT] Meia", Quantity: 1, Kind: model.KindKit, KitCode: "KIT12", KitCount: 2, Prices: model.Prices{model.TermImmediate: dec("500")}},
		{ID: "d", ProductID: "P404", Name: "Sumiu", Quantity: 1, Kind: model.KindUnit, Prices: model.ZeroPrices()},
	}

	out, report := RebuildPrices(items, testCatalog())

	require.Len(t, out, 4)
	assertPricesEqual(t, custom, out[0].Prices)
	assertPricesEqual(t, prices("100", "110", "120"), out[1].Prices)
	assertPricesEqual(t, prices("500", "525", "550"), out[2].Prices)
	assert.Equal(t, 12, out[2].UnitsPerKit)
	assertPricesEqual(t, model.ZeroPrices(), out[3].Prices)

	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 2, report.Rebuilt)
	assert.Equal(t, 1, report.Unresolved)

	// input untouched
	assert.Len(t, items[2].Prices, 1)
}

func TestRebuildPrices_Idempotent(t *testing.T) {
	items := []model.CartItem{
		{ID: "b", ProductID: "P1", Name: "Camiseta", Quantity: 3, Kind: model.KindUnit, Prices: model.ZeroPrices()},
		{ID: "d", ProductID: "P404", Name: "Sumiu", Quantity: 1, Kind: model.KindUnit, Prices: model.ZeroPrices()},
	}
	catalog := testCatalog()

	once, first := RebuildPrices(items, catalog)
	twice, second := RebuildPrices(once, catalog)

	assert.True(t, first.Changed())
	assert.False(t, second.Changed())
	assertItemsEquivalent(t, once, twice)
}

func TestRebuildPrices_NilCatalogChangesNothing(t *testing.T) {
	items := []model.CartItem{
		{ID: "b", ProductID: "P1", Name: "Camiseta", Quantity: 1, Kind: model.KindUnit, Prices: model.ZeroPrices()},
	}

	out, report := RebuildPrices(items, nil)

	assertItemsEquivalent(t, items, out)
	assert.False(t, report.Changed())
	assert.Equal(t, 1, report.Unresolved)
}
