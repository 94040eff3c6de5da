package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/app/repository"
	"github.com/vendasb2b/cart-engine/internal/storage"
)

const testPrefix = "test-cart"

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
}

func setupCartStoreTest(t *testing.T, catalog model.Catalog) (*CartStore, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	repo := repository.NewCartStateRepository(kv, testPrefix)
	return NewCartStore(repo, catalog, WithIDGenerator(sequentialIDs())), kv
}

func reopen(kv storage.KV, catalog model.Catalog) *CartStore {
	return NewCartStore(repository.NewCartStateRepository(kv, testPrefix), catalog)
}

type failingRepo struct {
	saves int
}

var errStorageDown = errors.New("storage unavailable")

func (f *failingRepo) Load(context.Context) (*model.PersistedCart, error) {
	return nil, errStorageDown
}

func (f *failingRepo) Save(context.Context, model.CartSnapshot) error {
	f.saves++
	return errStorageDown
}

func (f *failingRepo) Clear(context.Context) error {
	return errStorageDown
}

func TestCartStore_AddUnitItem(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())

	store.AddItem(shirt(), "M", model.TermImmediate, 2)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, model.KindUnit, items[0].Kind)
	assert.Equal(t, 2, items[0].Quantity)
	assertPricesEqual(t, prices("100", "110", "120"), items[0].Prices)
	assert.True(t, dec("200").Equal(store.Total()))
	assert.True(t, store.DrawerOpen())
	assertInvariants(t, items)
}

func TestCartStore_AddKitItem(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())

	store.AddItem(kitOf(socks(), "KIT12"), "", model.TermImmediate, 3)

	items := store.Items()
	require.Len(t, items, 1)
	kit := items[0]
	assert.Equal(t, model.KindKit, kit.Kind)
	assert.Equal(t, 1, kit.Quantity)
	assert.Equal(t, 3, kit.KitCount)
	assert.Equal(t, "KIT12", kit.KitCode)
	assert.Equal(t, 12, kit.UnitsPerKit)
	assert.Equal(t, "[KIT] Meia Esportiva", kit.Name)
	assert.True(t, dec("1500").Equal(store.Total()))
	assert.Equal(t, 36, kit.PhysicalUnits())
}

func TestCartStore_LegacyEntryMigratedOnLoad(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, testPrefix+":items", `[{"id":"old-1","productId":"P1","name":"Camiseta Básica","size":"M","quantity":2}]`))
	require.NoError(t, kv.Set(ctx, testPrefix+":term", "term30"))

	store := reopen(kv, testCatalog())

	items := store.Items()
	require.Len(t, items, 1)
	expected, _ := ResolvePrices(shirt(), model.KindUnit, "")
	assertPricesEqual(t, expected, items[0].Prices)
	assert.Equal(t, model.Term30, store.SelectedTerm())
	assert.True(t, dec("220").Equal(store.Total()))

	// migrated shape is written back
	raw, err := kv.Get(ctx, testPrefix+":items")
	require.NoError(t, err)
	var stored []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "UNIT", stored[0]["kind"])
	assert.Contains(t, stored[0], "prices")
}

func TestCartStore_UpdateQuantityOnKit(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())
	store.AddItem(kitOf(socks(), "KIT12"), "", model.TermImmediate, 1)
	id := store.Items()[0].ID

	store.UpdateQuantity(id, 5)

	kit := store.Items()[0]
	assert.Equal(t, 5, kit.KitCount)
	assert.Equal(t, 1, kit.Quantity)
	assert.True(t, dec("2500").Equal(store.Total()))
}

func TestCartStore_TermSwitchWithoutCatalog(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())
	store.AddItem(shirt(), "M", model.TermImmediate, 2)
	before := store.Items()

	store.UpdateGlobalTerm(model.Term30, nil)

	assert.Equal(t, model.Term30, store.SelectedTerm())
	assertItemsEquivalent(t, before, store.Items())
	assert.True(t, dec("220").Equal(store.Total()))
}

func TestCartStore_TermSwitchWithCatalogRebuildsPlaceholders(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, testPrefix+":items", `[{"id":"a","productId":"P1","name":"Camiseta","quantity":1,"kind":"UNIT","prices":{"immediate":0,"term30":0,"term90":0}}]`))
	store := reopen(kv, nil)
	require.True(t, store.Total().IsZero())

	store.UpdateGlobalTerm(model.Term90, testCatalog())

	assert.True(t, dec("120").Equal(store.Total()))
}

func TestCartStore_UnknownTermIgnored(t *testing.T) {
	store, _ := setupCartStoreTest(t, nil)

	store.UpdateGlobalTerm(model.Term("term60"), nil)

	assert.Equal(t, model.DefaultTerm, store.SelectedTerm())
}

func TestCartStore_MergeUnitLines(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())

	store.AddItem(shirt(), "M", model.TermImmediate, 2)
	store.AddItem(shirt(), "M", model.TermImmediate, 3)
	store.AddItem(shirt(), "G", model.TermImmediate, 1)

	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, "G", items[1].Size)
	assert.Equal(t, "item-1", items[0].ID)
}

func TestCartStore_MergeKitLines(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())

	store.AddItem(kitOf(socks(), "KIT12"), "", model.TermImmediate, 2)
	store.AddItem(kitOf(socks(), "kit12"), "", model.TermImmediate, 1)
	store.AddItem(kitOf(socks(), "KIT6"), "", model.TermImmediate, 1)
	store.AddItem(socks(), "", model.TermImmediate, 4)

	items := store.Items()
	require.Len(t, items, 3)
	assert.Equal(t, 3, items[0].KitCount)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "KIT6", items[1].KitCode)
	assert.Equal(t, model.KindUnit, items[2].Kind)
	assert.Equal(t, 4, items[2].Quantity)
	assertInvariants(t, items)
}

func TestCartStore_AddMalformedProductIsNoop(t *testing.T) {
	store, kv := setupCartStoreTest(t, testCatalog())

	store.AddItem(model.Product{Name: "Sem id"}, "M", model.TermImmediate, 1)
	store.AddItem(model.Product{ID: "P9"}, "M", model.TermImmediate, 1)
	store.AddItem(shirt(), "M", model.TermImmediate, 0)
	store.AddItem(model.Product{ID: "P2", Name: "Meia", IsKit: true}, "", model.TermImmediate, 1)

	assert.Zero(t, store.ItemCount())
	assert.False(t, store.DrawerOpen())
	assert.Zero(t, kv.Len())
}

func TestCartStore_AddWithoutResolvablePricesUsesZero(t *testing.T) {
	store, _ := setupCartStoreTest(t, nil)

	store.AddItem(model.Product{ID: "X", Name: "Sem preço"}, "", model.TermImmediate, 1)

	items := store.Items()
	require.Len(t, items, 1)
	assertPricesEqual(t, model.ZeroPrices(), items[0].Prices)
	assertInvariants(t, items)
}

func TestCartStore_AddItemKeepsSelectedTerm(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())

	store.AddItem(shirt(), "M", model.Term90, 1)
	assert.Equal(t, model.DefaultTerm, store.SelectedTerm())

	store.UpdateGlobalTerm(model.Term30, nil)
	store.AddItem(shirt(), "G", model.Term90, 1)

	assert.Equal(t, model.Term30, store.SelectedTerm())
	assert.True(t, dec("220").Equal(store.Total()))
}

func TestCartStore_RemoveAndZeroQuantity(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())
	store.AddItem(shirt(), "M", model.TermImmediate, 1)
	store.AddItem(shirt(), "G", model.TermImmediate, 1)
	store.AddItem(baseball(), "", model.TermImmediate, 1)

	store.RemoveItem("item-2")
	store.RemoveItem("does-not-exist")
	store.UpdateQuantity("item-3", 0)
	store.UpdateQuantity("does-not-exist", 4)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "item-1", items[0].ID)
}

func TestCartStore_TotalIsLinear(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())
	store.AddItem(shirt(), "M", model.TermImmediate, 2)

	for _, term := range model.Terms {
		before := store.TotalFor(term)
		store.AddItem(kitOf(socks(), "KIT6"), "", model.TermImmediate, 1)
		after := store.TotalFor(term)
		assert.True(t, after.Sub(before).Equal(prices("260", "270", "280").Get(term)), "term %s", term)
	}
}

func TestCartStore_RebuildIsIdempotent(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, testPrefix+":items", `[
		{"id":"a","productId":"P1","name":"Camiseta","quantity":1,"kind":"UNIT","prices":{"immediate":0,"term30":0,"term90":0}},
		{"id":"b","productId":"P404","name":"Sumiu","quantity":1,"kind":"UNIT","prices":{}}
	]`))
	store := reopen(kv, nil)

	first := store.RebuildPrices(testCatalog())
	afterFirst := store.Items()
	second := store.RebuildPrices(testCatalog())

	assert.Equal(t, 1, first.Rebuilt)
	assert.False(t, second.Changed())
	assertItemsEquivalent(t, afterFirst, store.Items())
}

func TestCartStore_PersistenceRoundTrip(t *testing.T) {
	store, kv := setupCartStoreTest(t, testCatalog())
	store.AddItem(shirt(), "M", model.Term30, 2)
	store.AddItem(kitOf(socks(), "KIT12"), "", model.Term30, 3)
	store.SetDrawerOpen(false)

	restored := reopen(kv, testCatalog())

	assertItemsEquivalent(t, store.Items(), restored.Items())
	assert.Equal(t, store.SelectedTerm(), restored.SelectedTerm())
	assert.Equal(t, store.DrawerOpen(), restored.DrawerOpen())
	assert.True(t, store.Total().Equal(restored.Total()))
}

func TestCartStore_PendingLegacyEntriesWaitForCatalog(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()
	legacy := `[{"id":"old-1","productId":"P1","name":"Camiseta Básica","size":"M","quantity":2},{"id":"old-2","productId":"P404","quantity":1}]`
	require.NoError(t, kv.Set(ctx, testPrefix+":items", legacy))

	store := reopen(kv, nil)
	assert.Zero(t, store.ItemCount())
	assert.Equal(t, 2, store.PendingCount())

	// a save before the catalog arrives keeps the raw entries
	store.SetDrawerOpen(true)
	raw, err := kv.Get(ctx, testPrefix+":items")
	require.NoError(t, err)
	assert.JSONEq(t, legacy, raw)

	report := store.CatalogAvailable(testCatalog())

	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 1, report.Dropped)
	assert.Zero(t, store.PendingCount())
	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "old-1", items[0].ID)
	assert.True(t, dec("200").Equal(store.Total()))
}

func storedIDs(t *testing.T, kv storage.KV) []string {
	t.Helper()
	raw, err := kv.Get(context.Background(), testPrefix+":items")
	require.NoError(t, err)
	var entries []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func itemIDs(items []model.CartItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

const (
	legacyShirtEntry = `{"id":"legacy-first","productId":"P1","name":"Camiseta Básica","size":"M","quantity":2}`
	currentCapEntry  = `{"id":"current-second","productId":"P3","name":"Boné","quantity":1,"kind":"UNIT","prices":{"immediate":45.9,"term30":45.9,"term90":45.9}}`
	currentKitEntry  = `{"id":"current-third","productId":"P2","name":"[KIT] Meia Esportiva","quantity":1,"kind":"KIT","kitCode":"KIT6","kitCount":1,"unitsPerKit":6,"prices":{"immediate":260,"term30":270,"term90":280}}`
)

func TestCartStore_PendingEntriesKeepStoredOrder(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), testPrefix+":items", "["+legacyShirtEntry+","+currentCapEntry+"]"))

	store := reopen(kv, nil)
	require.Equal(t, 1, store.PendingCount())

	store.SetDrawerOpen(true)
	assert.Equal(t, []string{"legacy-first", "current-second"}, storedIDs(t, kv))

	store.CatalogAvailable(testCatalog())

	assert.Zero(t, store.PendingCount())
	assert.Equal(t, []string{"legacy-first", "current-second"}, itemIDs(store.Items()))
	assert.Equal(t, []string{"legacy-first", "current-second"}, storedIDs(t, kv))
}

func TestCartStore_PendingEntriesFollowEdits(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), testPrefix+":items",
		"["+currentCapEntry+","+legacyShirtEntry+","+currentKitEntry+"]"))

	store := NewCartStore(repository.NewCartStateRepository(kv, testPrefix), nil, WithIDGenerator(sequentialIDs()))
	require.Equal(t, 1, store.PendingCount())

	store.RemoveItem("current-second")
	assert.Equal(t, []string{"legacy-first", "current-third"}, storedIDs(t, kv))

	store.AddItem(shirt(), "G", model.TermImmediate, 1)
	assert.Equal(t, []string{"legacy-first", "current-third", "item-1"}, storedIDs(t, kv))

	store.UpdateQuantity("current-third", 0)
	assert.Equal(t, []string{"legacy-first", "item-1"}, storedIDs(t, kv))

	store.CatalogAvailable(testCatalog())
	assert.Equal(t, []string{"legacy-first", "item-1"}, itemIDs(store.Items()))
}

func TestCartStore_PersistenceFailureKeepsMemoryState(t *testing.T) {
	repo := &failingRepo{}
	store := NewCartStore(repo, testCatalog())

	store.AddItem(shirt(), "M", model.TermImmediate, 2)
	store.UpdateGlobalTerm(model.Term90, nil)
	store.Clear()
	store.AddItem(baseball(), "", model.Term90, 1)

	assert.Equal(t, 1, store.ItemCount())
	assert.Equal(t, model.Term90, store.SelectedTerm())
	assert.Positive(t, repo.saves)
}

func TestCartStore_ClearRemovesPersistedRecords(t *testing.T) {
	store, kv := setupCartStoreTest(t, testCatalog())
	store.AddItem(shirt(), "M", model.Term30, 1)
	store.UpdateGlobalTerm(model.Term30, nil)
	require.Positive(t, kv.Len())

	store.Clear()

	assert.Zero(t, store.ItemCount())
	assert.Zero(t, kv.Len())
	assert.Equal(t, model.Term30, store.SelectedTerm())
	assert.Zero(t, reopen(kv, nil).ItemCount())
}

func TestCartStore_ToggleDrawer(t *testing.T) {
	store, kv := setupCartStoreTest(t, nil)

	store.ToggleDrawer()
	assert.True(t, store.DrawerOpen())
	assert.True(t, reopen(kv, nil).DrawerOpen())

	store.ToggleDrawer()
	assert.False(t, store.DrawerOpen())
}

func TestCartStore_ItemsReturnsCopy(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())
	store.AddItem(shirt(), "M", model.TermImmediate, 1)

	items := store.Items()
	items[0].Quantity = 99
	items[0].Prices[model.TermImmediate] = dec("1")

	fresh := store.Items()[0]
	assert.Equal(t, 1, fresh.Quantity)
	assert.True(t, dec("100").Equal(fresh.Prices.Get(model.TermImmediate)))
}

func TestCartStore_ConcurrentAdds(t *testing.T) {
	store, _ := setupCartStoreTest(t, testCatalog())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.AddItem(shirt(), "M", model.TermImmediate, 1)
		}()
	}
	wg.Wait()

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 20, items[0].Quantity)
}
