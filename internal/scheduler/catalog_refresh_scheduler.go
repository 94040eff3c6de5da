package scheduler

import (
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

// DefaultCatalogRefreshSpec reloads the catalog every 15 minutes.
const DefaultCatalogRefreshSpec = "*/15 * * * *"

// CatalogReloader re-reads the catalog source. It reports whether the content
// changed.
type CatalogReloader interface {
	Reload() (bool, error)
}

// CatalogRefreshScheduler periodically reloads the catalog so open carts get
// their unresolved prices rebuilt.
type CatalogRefreshScheduler struct {
	cron     *cron.Cron
	spec     string
	reloader CatalogReloader

	mu      sync.Mutex
	running bool
}

func NewCatalogRefreshScheduler(reloader CatalogReloader, spec string) *CatalogRefreshScheduler {
	if spec == "" {
		spec = DefaultCatalogRefreshSpec
	}
	return &CatalogRefreshScheduler{
		cron:     cron.New(),
		spec:     spec,
		reloader: reloader,
	}
}

// Start registers the refresh job and starts the cron runner.
func (s *CatalogRefreshScheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.RefreshNow)
	if err != nil {
		logger.Error("Failed to add cron job for catalog refresh", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Catalog refresh scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

// RefreshNow runs one reload. Overlapping runs are skipped.
func (s *CatalogRefreshScheduler) RefreshNow() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("Catalog refresh already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	logger.Debug("Starting scheduled catalog refresh")
	changed, err := s.reloader.Reload()
	if err != nil {
		logger.Error("Failed to refresh catalog from scheduler", err)
		return
	}
	logger.Info("Catalog refresh finished", map[string]interface{}{
		"changed": changed,
	})
}

// Stop stops the runner and waits for a running job to finish.
func (s *CatalogRefreshScheduler) Stop() {
	logger.Info("Stopping catalog refresh scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Catalog refresh scheduler stopped")
}
