// Package memrate holds in-process counterparts of the Redis-backed rate
// infrastructure, for single-node deployments and tests.
package memrate

import (
	"context"
	"sync"
	"time"

	"taskverify/internal/ports"
)

var (
	_ ports.RateBudget    = (*Budget)(nil)
	_ ports.VolumeCounter = (*Volume)(nil)
)

type window struct {
	count   int
	startAt time.Time
}

// Budget is a mutex-guarded fixed-window call counter per owner. The whole
// decision happens under one lock so two concurrent callers can never both
// claim the last slot.
type Budget struct {
	mu      sync.Mutex
	owners  map[string]*window
	ceiling int
	size    time.Duration
	now     func() time.Time
}

func NewBudget(ceiling int, size time.Duration) *Budget {
	return &Budget{
		owners:  make(map[string]*window),
		ceiling: ceiling,
		size:    size,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (b *Budget) WithClock(now func() time.Time) *Budget {
	b.now = now
	return b
}

func (b *Budget) TryConsume(_ context.Context, owner string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	w := b.owners[owner]
	if w == nil || now.Sub(w.startAt) >= b.size {
		w = &window{startAt: now}
		b.owners[owner] = w
	}
	if w.count >= b.ceiling {
		return false, nil
	}
	w.count++
	return true, nil
}

// Volume is the in-process cohort claim counter.
type Volume struct {
	mu      sync.Mutex
	cohorts map[string]*window
	size    time.Duration
	now     func() time.Time
}

func NewVolume(size time.Duration) *Volume {
	return &Volume{
		cohorts: make(map[string]*window),
		size:    size,
		now:     time.Now,
	}
}

func (v *Volume) WithClock(now func() time.Time) *Volume {
	v.now = now
	return v
}

func (v *Volume) Increment(_ context.Context, cohortID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	w := v.cohorts[cohortID]
	if w == nil || now.Sub(w.startAt) >= v.size {
		w = &window{startAt: now}
		v.cohorts[cohortID] = w
	}
	w.count++
	return nil
}

func (v *Volume) Recent(_ context.Context, cohortID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	w := v.cohorts[cohortID]
	if w == nil || v.now().Sub(w.startAt) >= v.size {
		return 0, nil
	}
	return w.count, nil
}
