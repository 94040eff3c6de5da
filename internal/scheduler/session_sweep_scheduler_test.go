package scheduler

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingEvicter struct {
	calls atomic.Int32
}

func (e *countingEvicter) EvictIdle() int {
	e.calls.Add(1)
	return 2
}

func TestSessionSweepScheduler_SweepNow(t *testing.T) {
	e := &countingEvicter{}
	s := NewSessionSweepScheduler(e, "")

	s.SweepNow()

	assert.Equal(t, int32(1), e.calls.Load())
	assert.Equal(t, DefaultSessionSweepSpec, s.spec)
}

func TestSessionSweepScheduler_StartStop(t *testing.T) {
	s := NewSessionSweepScheduler(&countingEvicter{}, "@every 1h")

	assert.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}

func TestSessionSweepScheduler_InvalidSpec(t *testing.T) {
	s := NewSessionSweepScheduler(&countingEvicter{}, "every now and then")

	assert.Error(t, s.Start())
}
