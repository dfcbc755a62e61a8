package verify

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

// memStore is an in-memory ports.CompletionStore with the same conditional
// transition semantics as the Postgres store.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Completion
}

var _ ports.CompletionStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*domain.Completion)}
}

func (s *memStore) put(c domain.Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.rows[c.ID] = &cp
}

func (s *memStore) Create(_ context.Context, c domain.Completion) error {
	s.put(c)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrCompletionNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetByTaskUser(_ context.Context, taskID, userID string) (*domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.rows {
		if c.TaskID == taskID && c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCompletionNotFound
}

func (s *memStore) RecordClick(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return domain.ErrCompletionNotFound
	}
	if c.ClickedAt == nil {
		c.ClickedAt = &at
		if c.Status == domain.StatusPending {
			c.Status = domain.StatusStarted
		}
	}
	return nil
}

func (s *memStore) MarkClaimed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.rows[id]; ok && !c.Status.Terminal() {
		c.ClaimedAt = &at
	}
	return nil
}

func (s *memStore) Schedule(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.rows[id]; ok && !c.Status.Terminal() {
		c.ScheduledAt = &at
	}
	return nil
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*domain.Completion
	for _, c := range s.rows {
		if !c.Status.Terminal() && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		ti, tj := due[i].ClaimedAt, due[j].ClaimedAt
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		if ti.Equal(*tj) {
			return due[i].ID < due[j].ID
		}
		return ti.Before(*tj)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	leased := now.Add(lease)
	out := make([]domain.Completion, 0, len(due))
	for _, c := range due {
		c.ScheduledAt = &leased
		out = append(out, *c)
	}
	return out, nil
}

func (s *memStore) Resolve(_ context.Context, id string, res domain.Resolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return false, domain.ErrCompletionNotFound
	}
	if c.Status.Terminal() {
		return false, nil
	}
	c.Status = res.Status
	c.Strategy = res.Strategy
	c.SpinsAwarded = res.Spins
	c.Sampled = res.Sampled
	c.Projected = res.Projected
	c.ResolvedAt = &res.ResolvedAt
	c.ScheduledAt = nil
	return true, nil
}

func (s *memStore) ListByUser(_ context.Context, userID, campaignID string) ([]domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Completion
	for _, c := range s.rows {
		if c.UserID == userID && c.CampaignID == campaignID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memStore) countByStatus(status domain.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.rows {
		if c.Status == status {
			n++
		}
	}
	return n
}

type fakeTasks struct {
	tasks     map[string]domain.SocialTask
	campaigns map[string]domain.Campaign

	mu      sync.Mutex
	credits map[string]int // "campaign/user" -> spins
}

var (
	_ ports.TaskStore    = (*fakeTasks)(nil)
	_ ports.RewardLedger = (*fakeTasks)(nil)
)

func newFakeTasks() *fakeTasks {
	return &fakeTasks{
		tasks:     make(map[string]domain.SocialTask),
		campaigns: make(map[string]domain.Campaign),
		credits:   make(map[string]int),
	}
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (*domain.SocialTask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &t, nil
}

func (f *fakeTasks) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	return &c, nil
}

func (f *fakeTasks) ListCampaignTasks(_ context.Context, campaignID string) ([]domain.SocialTask, error) {
	var out []domain.SocialTask
	for _, t := range f.tasks {
		if t.CampaignID == campaignID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Credit(_ context.Context, campaignID, userID string, spins int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[campaignID+"/"+userID] += spins
	return nil
}

func (f *fakeTasks) creditFor(campaignID, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[campaignID+"/"+userID]
}

type fakeChecker struct {
	mu      sync.Mutex
	calls   int
	engaged func(task domain.SocialTask, userID string) (bool, error)
}

func (f *fakeChecker) Check(_ context.Context, task domain.SocialTask, userID string) (bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.engaged == nil {
		return true, nil
	}
	return f.engaged(task, userID)
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBudget struct {
	mu        sync.Mutex
	remaining int
	unlimited bool
}

func (f *fakeBudget) TryConsume(_ context.Context, _ string) (bool, error) {
	if f.unlimited {
		return true, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining <= 0 {
		return false, nil
	}
	f.remaining--
	return true, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  int
	users []string
}

func (f *fakeNotifier) NotifyVerified(_ context.Context, userID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	f.users = append(f.users, userID)
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakeVolume struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeVolume() *fakeVolume {
	return &fakeVolume{counts: make(map[string]int)}
}

func (f *fakeVolume) Increment(_ context.Context, cohortID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[cohortID]++
	return nil
}

func (f *fakeVolume) Recent(_ context.Context, cohortID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[cohortID], nil
}

func (f *fakeVolume) set(cohortID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[cohortID] = n
}

// fixture bundles a fully wired engine over in-memory collaborators.
type fixture struct {
	store    *memStore
	tasks    *fakeTasks
	checker  *fakeChecker
	budget   *fakeBudget
	notifier *fakeNotifier
	volume   *fakeVolume

	recorder *Recorder
	claimer  *Claimer
	exec     *Executor
	awarder  *Awarder

	clock *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		tasks:    newFakeTasks(),
		checker:  &fakeChecker{},
		budget:   &fakeBudget{unlimited: true},
		notifier: &fakeNotifier{},
		volume:   newFakeVolume(),
		clock:    newFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
	}
	now := f.clock.Now
	f.awarder = NewAwarder(f.tasks, f.tasks, f.notifier).WithClock(now)
	f.exec = NewExecutor(f.store, f.tasks, f.checker, f.budget, f.awarder, 1.0).WithClock(now)
	f.recorder = NewRecorder(f.store, f.tasks).WithClock(now)
	f.claimer = NewClaimer(f.store, f.tasks, f.volume, f.exec, 10*time.Second).WithClock(now)

	f.tasks.campaigns["camp-1"] = domain.Campaign{
		ID:                "camp-1",
		TenantID:          "tenant-1",
		NotifyImmediately: true,
	}
	f.tasks.tasks["task-visit"] = domain.SocialTask{
		ID:          "task-visit",
		CampaignID:  "camp-1",
		Kind:        "VISIT_PAGE",
		SpinsReward: 3,
		IsActive:    true,
	}
	f.tasks.tasks["task-like"] = domain.SocialTask{
		ID:          "task-like",
		CampaignID:  "camp-1",
		Kind:        "LIKE",
		SpinsReward: 2,
		IsActive:    true,
	}
	f.tasks.tasks["task-connect"] = domain.SocialTask{
		ID:          "task-connect",
		CampaignID:  "camp-1",
		Kind:        "CONNECT_ACCOUNT",
		SpinsReward: 5,
		IsActive:    true,
	}
	return f
}
