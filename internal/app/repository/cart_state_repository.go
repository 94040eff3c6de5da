package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/storage"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

// CartStateRepository persists one cart as three independent records: the
// items array, the selected term token and the drawer flag.
type CartStateRepository interface {
	// Load returns nil when nothing has been stored yet.
	Load(ctx context.Context) (*model.PersistedCart, error)
	Save(ctx context.Context, snapshot model.CartSnapshot) error
	Clear(ctx context.Context) error
}

type cartKeys struct {
	items  string
	term   string
	drawer string
}

func newCartKeys(prefix string) cartKeys {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "cart"
	}
	return cartKeys{
		items:  prefix + ":items",
		term:   prefix + ":term",
		drawer: prefix + ":drawer",
	}
}

type cartStateRepository struct {
	kv   storage.KV
	keys cartKeys
}

func NewCartStateRepository(kv storage.KV, keyPrefix string) CartStateRepository {
	return &cartStateRepository{kv: kv, keys: newCartKeys(keyPrefix)}
}

func (r *cartStateRepository) Load(ctx context.Context) (*model.PersistedCart, error) {
	logger.Debug("Loading cart state", map[string]interface{}{
		"key": r.keys.items,
	})

	found := false
	state := &model.PersistedCart{}

	rawItems, err := r.kv.Get(ctx, r.keys.items)
	switch {
	case err == nil:
		found = true
		if err := json.Unmarshal([]byte(rawItems), &state.Items); err != nil {
			logger.Warn("Discarding malformed cart items record", map[string]interface{}{
				"key":   r.keys.items,
				"error": err.Error(),
			})
			state.Items = nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, err
	}

	term, err := r.kv.Get(ctx, r.keys.term)
	switch {
	case err == nil:
		found = true
		state.SelectedTerm = term
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, err
	}

	drawer, err := r.kv.Get(ctx, r.keys.drawer)
	switch {
	case err == nil:
		found = true
		open, perr := strconv.ParseBool(drawer)
		state.DrawerOpen = perr == nil && open
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, err
	}

	if !found {
		return nil, nil
	}

	logger.Debug("Cart state loaded", map[string]interface{}{
		"key":   r.keys.items,
		"items": len(state.Items),
		"term":  state.SelectedTerm,
	})
	return state, nil
}

func (r *cartStateRepository) Save(ctx context.Context, snapshot model.CartSnapshot) error {
	records := make([]json.RawMessage, 0, len(snapshot.Items)+len(snapshot.Pending))
	next := 0
	for i, item := range snapshot.Items {
		for ; next < len(snapshot.Pending) && snapshot.Pending[next].Position <= i; next++ {
			records = append(records, snapshot.Pending[next].Raw)
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return err
		}
		records = append(records, raw)
	}
	for ; next < len(snapshot.Pending); next++ {
		records = append(records, snapshot.Pending[next].Raw)
	}

	itemsJSON, err := json.Marshal(records)
	if err != nil {
		return err
	}

	var errs []error
	if err := r.kv.Set(ctx, r.keys.items, string(itemsJSON)); err != nil {
		errs = append(errs, err)
	}
	if err := r.kv.Set(ctx, r.keys.term, string(snapshot.SelectedTerm)); err != nil {
		errs = append(errs, err)
	}
	if err := r.kv.Set(ctx, r.keys.drawer, strconv.FormatBool(snapshot.DrawerOpen)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *cartStateRepository) Clear(ctx context.Context) error {
	logger.Debug("Removing persisted cart state", map[string]interface{}{
		"key": r.keys.items,
	})
	return r.kv.Delete(ctx, r.keys.items, r.keys.term, r.keys.drawer)
}
