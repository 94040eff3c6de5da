package scheduler

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize(logger.Config{Level: "disabled", Output: io.Discard})
	os.Exit(m.Run())
}

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload() (bool, error) {
	r.calls.Add(1)
	return r.err == nil, r.err
}

func TestCatalogRefreshScheduler_RefreshNow(t *testing.T) {
	r := &countingReloader{}
	s := NewCatalogRefreshScheduler(r, "")

	s.RefreshNow()
	s.RefreshNow()

	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, DefaultCatalogRefreshSpec, s.spec)
}

func TestCatalogRefreshScheduler_ReloadErrorIsLogged(t *testing.T) {
	r := &countingReloader{err: errors.New("workbook locked")}
	s := NewCatalogRefreshScheduler(r, "@every 1h")

	assert.NotPanics(t, s.RefreshNow)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestCatalogRefreshScheduler_StartStop(t *testing.T) {
	s := NewCatalogRefreshScheduler(&countingReloader{}, "@every 1h")

	assert.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}

func TestCatalogRefreshScheduler_InvalidSpec(t *testing.T) {
	s := NewCatalogRefreshScheduler(&countingReloader{}, "not a cron spec")

	assert.Error(t, s.Start())
}
