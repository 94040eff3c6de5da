package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/storage"
)

func testSnapshot() model.CartSnapshot {
	return model.CartSnapshot{
		Items: []model.CartItem{
			{
				ID:        "item-1",
				ProductID: "p-1",
				Name:      "Camiseta Básica",
				Size:      "M",
				Quantity:  2,
				Kind:      model.KindUnit,
				Prices: model.Prices{
					model.TermImmediate: decimal.NewFromInt(100),
					model.Term30:        decimal.NewFromInt(110),
					model.Term90:        decimal.NewFromInt(120),
				},
			},
			{
				ID:          "item-2",
				ProductID:   "p-2",
				Name:        model.KitNamePrefix + "Meia",
				Quantity:    1,
				Kind:        model.KindKit,
				KitCode:     "KIT12",
				KitCount:    3,
				UnitsPerKit: 12,
				Prices: model.Prices{
					model.TermImmediate: decimal.NewFromInt(500),
					model.Term30:        decimal.NewFromFloat(525.5),
					model.Term90:        decimal.NewFromInt(550),
				},
			},
		},
		SelectedTerm: model.Term30,
		DrawerOpen:   true,
	}
}

func TestCartStateRepository_LoadEmpty(t *testing.T) {
	repo := NewCartStateRepository(storage.NewMemory(), "session-1")

	state, err := repo.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, state)
}

func TestCartStateRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	repo := NewCartStateRepository(kv, "session-1")
	snap := testSnapshot()

	require.NoError(t, repo.Save(ctx, snap))

	raw, err := kv.Get(ctx, "session-1:term")
	require.NoError(t, err)
	assert.Equal(t, "term30", raw)
	raw, err = kv.Get(ctx, "session-1:drawer")
	require.NoError(t, err)
	assert.Equal(t, "true", raw)

	state, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "term30", state.SelectedTerm)
	assert.True(t, state.DrawerOpen)
	require.Len(t, state.Items, 2)

	var kit model.CartItem
	require.NoError(t, json.Unmarshal(state.Items[1], &kit))
	assert.Equal(t, snap.Items[1].KitCode, kit.KitCode)
	assert.Equal(t, 3, kit.KitCount)
	assert.True(t, snap.Items[1].Prices.Equal(kit.Prices))
}

func TestCartStateRepository_PendingEntriesWrittenBack(t *testing.T) {
	ctx := context.Background()
	repo := NewCartStateRepository(storage.NewMemory(), "")
	snap := testSnapshot()
	legacy := json.RawMessage(`{"id":"old-1","productId":"p-9","quantity":4}`)
	snap.Pending = []model.PendingEntry{{Position: 2, Raw: legacy}}

	require.NoError(t, repo.Save(ctx, snap))

	state, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Items, 3)
	assert.JSONEq(t, string(legacy), string(state.Items[2]))
}

func TestCartStateRepository_PendingEntriesKeepTheirPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewCartStateRepository(storage.NewMemory(), "")
	snap := testSnapshot()
	first := json.RawMessage(`{"id":"old-1","productId":"p-9","quantity":4}`)
	middle := json.RawMessage(`{"id":"old-2","productId":"p-8"}`)
	snap.Pending = []model.PendingEntry{
		{Position: 0, Raw: first},
		{Position: 1, Raw: middle},
	}

	require.NoError(t, repo.Save(ctx, snap))

	state, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Items, 4)

	ids := make([]string, len(state.Items))
	for i, raw := range state.Items {
		var entry struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &entry))
		ids[i] = entry.ID
	}
	assert.Equal(t, []string{"old-1", snap.Items[0].ID, "old-2", snap.Items[1].ID}, ids)
}

func TestCartStateRepository_MalformedRecords(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, "cart:items", "{not json"))
	require.NoError(t, kv.Set(ctx, "cart:drawer", "maybe"))

	state, err := NewCartStateRepository(kv, "cart:").Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Empty(t, state.Items)
	assert.False(t, state.DrawerOpen)
	assert.Equal(t, "", state.SelectedTerm)
}

func TestCartStateRepository_Clear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	repo := NewCartStateRepository(kv, "session-1")

	require.NoError(t, repo.Save(ctx, testSnapshot()))
	assert.Equal(t, 3, kv.Len())

	require.NoError(t, repo.Clear(ctx))
	assert.Equal(t, 0, kv.Len())

	state, err := repo.Load(ctx)
	assert.NoError(t, err)
	assert.Nil(t, state)
}

type failingKV struct{}

var errStorageDown = errors.New("quota exceeded")

func (failingKV) Get(context.Context, string) (string, error) { return "", errStorageDown }
func (failingKV) Set(context.Context, string, string) error { return errStorageDown }
func (failingKV) Delete(context.Context, ...string) error { return errStorageDown }

func TestCartStateRepository_StorageErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewCartStateRepository(failingKV{}, "session-1")

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, errStorageDown)
	assert.ErrorIs(t, repo.Save(ctx, testSnapshot()), errStorageDown)
	assert.ErrorIs(t, repo.Clear(ctx), errStorageDown)
}

// recordingRepo counts writes and can block them to simulate slow storage.
type recordingRepo struct {
	mu      sync.Mutex
	saves   []model.CartSnapshot
	clears  int
	release chan struct{}
}

func (r *recordingRepo) Load(context.Context) (*model.PersistedCart, error) { return nil, nil }

func (r *recordingRepo) Save(_ context.Context, s model.CartSnapshot) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, s)
	return nil
}

func (r *recordingRepo) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func TestAsyncCartWriter_DoesNotBlockCaller(t *testing.T) {
	next := &recordingRepo{release: make(chan struct{})}
	w := NewAsyncCartWriter(next)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			snap := testSnapshot()
			snap.Items = snap.Items[:1]
			snap.Items[0].Quantity = i + 1
			_ = w.Save(context.Background(), snap)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Save blocked on slow storage")
	}

	close(next.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Close(ctx))

	next.mu.Lock()
	defer next.mu.Unlock()
	require.NotEmpty(t, next.saves)
	assert.LessOrEqual(t, len(next.saves), 5)
	last := next.saves[len(next.saves)-1]
	assert.Equal(t, 5, last.Items[0].Quantity)
}

func TestAsyncCartWriter_ClearAndCloseFlush(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	w := NewAsyncCartWriter(NewCartStateRepository(kv, "s"))

	require.NoError(t, w.Save(ctx, testSnapshot()))
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, 3, kv.Len())

	// writes after close are dropped
	require.NoError(t, w.Clear(ctx))
	assert.Equal(t, 3, kv.Len())
	require.NoError(t, w.Close(ctx))
}
