package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"priority-dispatch/dispatch/domain"
	"priority-dispatch/dispatch/infra"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type latencyFunc func(index uint64) time.Duration

func (f latencyFunc) ForTask(index uint64) time.Duration { return f(index) }

type countingStats struct {
	mu     sync.Mutex
	events []domain.StatsEvent
}

func (s *countingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type countingPacer struct {
	calls atomic.Int64
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.calls.Add(1)
	return p.err
}

// transitions coleta as transições por seq.
type transitions struct {
	mu    sync.Mutex
	bySeq map[uint64][]domain.TaskState
	all   []domain.Transition
}

func newTransitions() *transitions {
	return &transitions{bySeq: make(map[uint64][]domain.TaskState)}
}

func (tr *transitions) hook(t domain.Transition) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.bySeq[t.Seq] = append(tr.bySeq[t.Seq], t.State)
	tr.all = append(tr.all, t)
}

func newTestDispatcher(t *testing.T, max int) (*Dispatcher, *infra.Gate) {
	t.Helper()
	gate, err := infra.NewGate(max)
	require.NoError(t, err)
	return &Dispatcher{Gate: gate}, gate
}

func randomItems(n int, seed uint64) []domain.WorkItem {
	r := rand.New(rand.NewPCG(seed, 0))
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{Label: fmt.Sprintf("item-%d", i), Weight: r.IntN(20)}
	}
	return items
}

func noop(context.Context, string) error { return nil }

func TestRunBatch_EmptyBatch(t *testing.T) {
	d, gate := newTestDispatcher(t, 3)
	tr := newTransitions()
	d.OnTransition = tr.hook

	res, err := d.RunBatch(context.Background(), nil, noop)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Len())
	assert.NotEqual(t, uuid.Nil, res.ID)
	assert.Empty(t, tr.all, "no task may be spawned")
	assert.Equal(t, infra.GateStats{}, gate.Stats())
}

func TestRunBatch_SequentialVisitOrder(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)

	var mu sync.Mutex
	var visited []string
	handler := func(_ context.Context, label string) error {
		mu.Lock()
		visited = append(visited, label)
		mu.Unlock()
		return nil
	}

	items := []domain.WorkItem{{Label: "A", Weight: 5}, {Label: "B", Weight: 1}, {Label: "C", Weight: 10}}
	res, err := d.RunBatch(context.Background(), items, handler)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "A", "B"}, visited)
	assert.Equal(t, []string{"C", "A", "B"}, res.Labels())
	assert.Equal(t, 3, res.Completed())
}

func TestRunBatch_OneFailingHandler(t *testing.T) {
	d, gate := newTestDispatcher(t, 3)
	boom := errors.New("boom")
	handler := func(_ context.Context, label string) error {
		if label == "B" {
			return boom
		}
		return nil
	}

	items := []domain.WorkItem{{Label: "A", Weight: 1}, {Label: "B", Weight: 2}, {Label: "C", Weight: 3}}
	res, err := d.RunBatch(context.Background(), items, handler)

	require.NotNil(t, res, "batch must return the full result")
	assert.Equal(t, 3, res.Len())
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, 2, res.Completed())

	var batchErr *domain.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 3, batchErr.Total)
	assert.Len(t, batchErr.Failed, 1)
	assert.ErrorIs(t, err, boom)
	assert.True(t, domain.IsHandlerError(err))
	assert.Contains(t, err.Error(), "1 of 3 items failed")

	assert.Equal(t, 0, gate.InUse())
}

func TestRunBatch_PanickingHandlerIsRecorded(t *testing.T) {
	d, gate := newTestDispatcher(t, 2)
	handler := func(_ context.Context, label string) error {
		if label == "bad" {
			panic("kaboom")
		}
		return nil
	}

	items := []domain.WorkItem{{Label: "ok", Weight: 1}, {Label: "bad", Weight: 1}, {Label: "ok2", Weight: 1}}
	res, err := d.RunBatch(context.Background(), items, handler)

	require.Error(t, err)
	assert.Equal(t, 1, res.Failed())
	assert.ErrorIs(t, err, errHandlerPanic)
	assert.Contains(t, err.Error(), "kaboom")

	stats := gate.Stats()
	assert.Equal(t, stats.Acquired, stats.Released)
	assert.Equal(t, 0, gate.InUse())
}

func TestRunBatch_ConcurrencyBoundNeverExceeded(t *testing.T) {
	const max = 10
	d, gate := newTestDispatcher(t, max)
	d.Latency = latencyFunc(func(i uint64) time.Duration { return time.Duration(i%3) * time.Millisecond })

	var running sync.Map
	var cur, peak atomic.Int64
	observe := func(n int64) {
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				return
			}
		}
	}
	d.OnTransition = func(tr domain.Transition) {
		switch tr.State {
		case domain.StateRunning:
			running.Store(tr.Seq, true)
			observe(cur.Add(1))
		case domain.StateReleased:
			if _, ok := running.LoadAndDelete(tr.Seq); ok {
				cur.Add(-1)
			}
		}
	}

	var overLimit atomic.Int64
	handler := func(context.Context, string) error {
		if gate.InUse() > max {
			overLimit.Add(1)
		}
		time.Sleep(100 * time.Microsecond)
		return nil
	}

	res, err := d.RunBatch(context.Background(), randomItems(1000, 7), handler)
	require.NoError(t, err)

	assert.Equal(t, 1000, res.Completed())
	assert.LessOrEqual(t, peak.Load(), int64(max))
	assert.Zero(t, overLimit.Load())
	assert.Zero(t, cur.Load())
}

func TestRunBatch_SlotConservation(t *testing.T) {
	d, gate := newTestDispatcher(t, 4)
	handler := func(_ context.Context, label string) error {
		if len(label)%2 == 0 {
			return errors.New("even")
		}
		return nil
	}

	items := randomItems(101, 3)
	_, _ = d.RunBatch(context.Background(), items, handler)

	stats := gate.Stats()
	assert.Equal(t, int64(len(items)), stats.Acquired)
	assert.Equal(t, int64(len(items)), stats.Released)
	assert.Equal(t, 0, gate.InUse())
	assert.Equal(t, 0, gate.Waiting())
}

func TestRunBatch_DispatchOrderFollowsWeight(t *testing.T) {
	d, _ := newTestDispatcher(t, 5)
	tr := newTransitions()
	d.OnTransition = tr.hook

	res, err := d.RunBatch(context.Background(), randomItems(300, 11), noop)
	require.NoError(t, err)

	for i := 1; i < res.Len(); i++ {
		prev, cur := res.Outcomes[i-1], res.Outcomes[i]
		assert.GreaterOrEqual(t, prev.Item.Weight, cur.Item.Weight)
		assert.Less(t, prev.Seq, cur.Seq, "acquisition attempt of %s must be issued before %s", prev.Item.Label, cur.Item.Label)
	}

	// as tentativas (Waiting) foram emitidas em ordem de seq
	var waiting []uint64
	for _, ev := range tr.all {
		if ev.State == domain.StateWaiting {
			waiting = append(waiting, ev.Seq)
		}
	}
	require.Len(t, waiting, res.Len())
	for i := 1; i < len(waiting); i++ {
		assert.Less(t, waiting[i-1], waiting[i])
	}
}

func TestRunBatch_SequentialRunIsRepeatable(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)
	items := randomItems(50, 5)

	visit := func() []string {
		var mu sync.Mutex
		var out []string
		_, err := d.RunBatch(context.Background(), items, func(_ context.Context, label string) error {
			mu.Lock()
			out = append(out, label)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		return out
	}

	first := visit()
	second := visit()
	assert.Equal(t, first, second)

	var expected []string
	for _, it := range SortByWeight(items) {
		expected = append(expected, it.Label)
	}
	assert.Equal(t, expected, first)
}

func TestRunBatch_CompletionOrderIsNotDispatchOrder(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)
	d.Latency = latencyFunc(func(i uint64) time.Duration {
		if i == 0 {
			return 50 * time.Millisecond
		}
		return 0
	})

	var mu sync.Mutex
	var completed []string
	d.OnTransition = func(tr domain.Transition) {
		if tr.State == domain.StateCompleted {
			mu.Lock()
			completed = append(completed, tr.Item.Label)
			mu.Unlock()
		}
	}

	items := []domain.WorkItem{{Label: "low", Weight: 1}, {Label: "high", Weight: 9}}
	res, err := d.RunBatch(context.Background(), items, noop)
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "low"}, res.Labels())
	assert.Equal(t, []string{"low", "high"}, completed)
	assert.GreaterOrEqual(t, res.Outcomes[0].Duration, 50*time.Millisecond)
}

func TestRunBatch_StateMachine(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)
	tr := newTransitions()
	d.OnTransition = tr.hook

	handler := func(_ context.Context, label string) error {
		if label == "fail" {
			return errors.New("nope")
		}
		return nil
	}

	res, _ := d.RunBatch(context.Background(), []domain.WorkItem{{Label: "ok", Weight: 2}, {Label: "fail", Weight: 1}}, handler)
	require.Equal(t, 2, res.Len())

	assert.Equal(t, []domain.TaskState{
		domain.StateSpawned, domain.StateWaiting, domain.StateRunning,
		domain.StateDelaying, domain.StateReleased, domain.StateCompleted,
	}, tr.bySeq[res.Outcomes[0].Seq])

	assert.Equal(t, []domain.TaskState{
		domain.StateSpawned, domain.StateWaiting, domain.StateRunning,
		domain.StateReleased, domain.StateFailed,
	}, tr.bySeq[res.Outcomes[1].Seq])
}

func TestRunBatch_InvalidConfig(t *testing.T) {
	gate, _ := infra.NewGate(1)
	items := []domain.WorkItem{{Label: "a", Weight: 1}}

	var calls atomic.Int64
	handler := func(context.Context, string) error {
		calls.Add(1)
		return nil
	}

	cases := map[string]struct {
		d       *Dispatcher
		items   []domain.WorkItem
		handler domain.Handler
	}{
		"nil gate":        {d: &Dispatcher{}, items: items, handler: handler},
		"nil handler":     {d: &Dispatcher{Gate: gate}, items: items},
		"negative weight": {d: &Dispatcher{Gate: gate}, items: []domain.WorkItem{{Label: "a", Weight: 1}, {Label: "b", Weight: -1}}, handler: handler},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := tc.d.RunBatch(context.Background(), tc.items, tc.handler)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
	assert.Zero(t, calls.Load())
	assert.Equal(t, infra.GateStats{}, gate.Stats())
}

func TestRunBatch_CancellationReleasesEverySlot(t *testing.T) {
	d, gate := newTestDispatcher(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var once sync.Once
	handler := func(ctx context.Context, label string) error {
		if label == "first" {
			once.Do(func() { close(started) })
			<-ctx.Done()
		}
		return ctx.Err()
	}
	go func() {
		<-started
		cancel()
	}()

	items := []domain.WorkItem{{Label: "first", Weight: 10}, {Label: "b", Weight: 1}, {Label: "c", Weight: 1}, {Label: "d", Weight: 1}, {Label: "e", Weight: 1}}
	res, err := d.RunBatch(ctx, items, handler)

	require.Error(t, err)
	require.Equal(t, 5, res.Len())
	assert.Equal(t, 5, res.Failed())
	for _, o := range res.Outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled, o.Item.Label)
	}

	stats := gate.Stats()
	assert.Equal(t, stats.Acquired, stats.Released)
	assert.Equal(t, 0, gate.InUse())
	assert.Equal(t, 0, gate.Waiting())
}

func TestRunBatch_AdmissionTimeout(t *testing.T) {
	d, gate := newTestDispatcher(t, 1)
	d.Admission = AdmissionService{Timeout: 20 * time.Millisecond}

	handler := func(_ context.Context, label string) error {
		if label == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		return nil
	}

	res, err := d.RunBatch(context.Background(), []domain.WorkItem{{Label: "slow", Weight: 2}, {Label: "late", Weight: 1}}, handler)
	require.Error(t, err)

	assert.True(t, res.Outcomes[0].Completed())
	late := res.Outcomes[1]
	assert.ErrorIs(t, late.Err, domain.ErrTaskCancelled)
	assert.ErrorIs(t, late.Err, context.DeadlineExceeded)
	assert.False(t, domain.IsHandlerError(late.Err))
	assert.Equal(t, 0, gate.InUse())
}

func TestRunBatch_RecordsStatsPerTask(t *testing.T) {
	d, _ := newTestDispatcher(t, 3)
	stats := &countingStats{}
	d.Stats = stats

	handler := func(_ context.Context, label string) error {
		if label == "x" {
			return errors.New("x")
		}
		return nil
	}

	res, _ := d.RunBatch(context.Background(), []domain.WorkItem{{Label: "x", Weight: 1}, {Label: "y", Weight: 2}, {Label: "z", Weight: 3}}, handler)

	stats.mu.Lock()
	defer stats.mu.Unlock()
	require.Len(t, stats.events, 3)
	failed := 0
	for _, ev := range stats.events {
		assert.Equal(t, res.ID, ev.BatchID)
		if !ev.Completed {
			failed++
			assert.Equal(t, "x", ev.Label)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunBatch_PacerGatesHandlerStart(t *testing.T) {
	d, gate := newTestDispatcher(t, 2)
	pacer := &countingPacer{}
	d.Pacer = pacer

	res, err := d.RunBatch(context.Background(), randomItems(10, 1), noop)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Completed())
	assert.Equal(t, int64(10), pacer.calls.Load())

	pacer.err = context.Canceled
	var calls atomic.Int64
	res, err = d.RunBatch(context.Background(), randomItems(3, 1), func(context.Context, string) error {
		calls.Add(1)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 3, res.Failed())
	assert.Zero(t, calls.Load(), "handler must not run when pacing fails")
	assert.ErrorIs(t, err, domain.ErrTaskCancelled)
	assert.Equal(t, 0, gate.InUse())
}
