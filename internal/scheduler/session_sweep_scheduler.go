package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

// DefaultSessionSweepSpec checks for idle cart sessions every 5 minutes.
const DefaultSessionSweepSpec = "@every 5m"

// SessionEvicter drops idle sessions and returns how many it removed.
type SessionEvicter interface {
	EvictIdle() int
}

// SessionSweepScheduler releases carts of buyers who stopped using them.
type SessionSweepScheduler struct {
	cron    *cron.Cron
	spec    string
	evicter SessionEvicter
}

func NewSessionSweepScheduler(evicter SessionEvicter, spec string) *SessionSweepScheduler {
	if spec == "" {
		spec = DefaultSessionSweepSpec
	}
	return &SessionSweepScheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:    spec,
		evicter: evicter,
	}
}

func (s *SessionSweepScheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.SweepNow)
	if err != nil {
		logger.Error("Failed to add cron job for session sweep", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Session sweep scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

func (s *SessionSweepScheduler) SweepNow() {
	evicted := s.evicter.EvictIdle()
	logger.Debug("Session sweep finished", map[string]interface{}{
		"evicted": evicted,
	})
}

func (s *SessionSweepScheduler) Stop() {
	logger.Info("Stopping session sweep scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Session sweep scheduler stopped")
}
