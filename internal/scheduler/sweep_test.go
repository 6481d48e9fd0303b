package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingProcessor struct {
	calls atomic.Int64
	err   error
}

func (p *countingProcessor) ProcessNoShows(context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestSweepInvokesProcessorEachTick(t *testing.T) {
	proc := &countingProcessor{}
	sweep := NewSweep(20*time.Millisecond, proc)
	go sweep.Run()

	assert.Eventually(t, func() bool { return proc.calls.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
	sweep.Stop()
}

func TestSweepKeepsRunningAfterError(t *testing.T) {
	proc := &countingProcessor{err: errors.New("db unavailable")}
	sweep := NewSweep(20*time.Millisecond, proc)
	go sweep.Run()

	assert.Eventually(t, func() bool { return proc.calls.Load() >= 2 },
		2*time.Second, 10*time.Millisecond)
	sweep.Stop()
}

func TestSweepDefaultInterval(t *testing.T) {
	sweep := NewSweep(0, &countingProcessor{})
	assert.Equal(t, 5*time.Minute, sweep.interval)
}
