package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
)

func keys(m map[string]domain.Outcome) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestRunBatchOneOutcomePerItem(t *testing.T) {
	for _, concurrency := range []int{2, 10, 0, -3} {
		b := NewBatchScheduler(runnerFunc(okRunner), zerolog.Nop())
		results := b.RunBatch(context.Background(), []string{"a", "b", "c"}, concurrency)

		got := keys(results)
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("concurrency %d: keys = %v", concurrency, got)
		}
		for id, o := range results {
			if o.Status != domain.OutcomeSucceeded && o.Status != domain.OutcomeFailed {
				t.Errorf("%s has status %q", id, o.Status)
			}
		}
	}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	runner := runnerFunc(func(ctx context.Context, id string) domain.Outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return okRunner(ctx, id)
	})

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	results := NewBatchScheduler(runner, zerolog.Nop()).RunBatch(context.Background(), ids, 3)
	if len(results) != len(ids) {
		t.Errorf("results = %d, want %d", len(results), len(ids))
	}
	if p := peak.Load(); p > 3 || p < 1 {
		t.Errorf("peak concurrency = %d, want 1..3", p)
	}
}

func TestRunBatchRecordsFailuresAndPanics(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, id string) domain.Outcome {
		switch id {
		case "bad":
			return domain.Failed("job", id, errors.New("boom"), zeroTime)
		case "panic":
			panic("unexpected nil")
		}
		return okRunner(ctx, id)
	})

	results := NewBatchScheduler(runner, zerolog.Nop()).RunBatch(context.Background(), []string{"ok", "bad", "panic"}, 2)
	if len(results) != 3 {
		t.Fatalf("results = %v", keys(results))
	}
	if !results["ok"].OK() || results["bad"].OK() || results["panic"].OK() {
		t.Errorf("unexpected statuses: %+v", results)
	}
	if results["panic"].Reason != "panic: unexpected nil" {
		t.Errorf("panic reason = %q", results["panic"].Reason)
	}
}

func TestRunBatchCollapsesDuplicates(t *testing.T) {
	var calls sync.Map
	runner := runnerFunc(func(ctx context.Context, id string) domain.Outcome {
		n, _ := calls.LoadOrStore(id, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		return okRunner(ctx, id)
	})

	results := NewBatchScheduler(runner, zerolog.Nop()).RunBatch(context.Background(), []string{"a", "b", "a", "", "b"}, 4)
	if got := keys(results); len(got) != 2 {
		t.Errorf("keys = %v", got)
	}
	calls.Range(func(k, v any) bool {
		if n := v.(*atomic.Int32).Load(); n != 1 {
			t.Errorf("%v ran %d times", k, n)
		}
		return true
	})
}

func TestRunBatchCancelledQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Int32
	runner := runnerFunc(func(ctx context.Context, id string) domain.Outcome {
		ran.Add(1)
		cancel()
		return okRunner(ctx, id)
	})

	results := NewBatchScheduler(runner, zerolog.Nop()).RunBatch(ctx, []string{"a", "b", "c", "d"}, 1)
	if len(results) != 4 {
		t.Fatalf("results = %v", keys(results))
	}
	if ran.Load() != 1 {
		t.Errorf("ran %d items, want 1", ran.Load())
	}
	cancelled := 0
	for _, o := range results {
		if errors.Is(o.Err, domain.ErrCancelled) {
			cancelled++
		}
	}
	if cancelled != 3 {
		t.Errorf("cancelled = %d, want 3", cancelled)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	results := NewBatchScheduler(runnerFunc(okRunner), zerolog.Nop()).RunBatch(context.Background(), nil, 3)
	if len(results) != 0 {
		t.Errorf("results = %v", results)
	}
}

func TestRunBatchOnOutcome(t *testing.T) {
	b := NewBatchScheduler(runnerFunc(okRunner), zerolog.Nop())
	var seen []string
	b.OnOutcome(func(o domain.Outcome) { seen = append(seen, o.Identifier) })
	b.RunBatch(context.Background(), []string{"x", "y"}, 2)
	if len(seen) != 2 {
		t.Errorf("callback saw %v", seen)
	}
}

func TestRunBatchWithPipeline(t *testing.T) {
	src := newFakeSource("")
	p := newPipeline(t, src, AcquirerOptions{})

	results := NewBatchScheduler(p.orch, zerolog.Nop()).RunBatch(context.Background(), []string{"a", "b", "c"}, 2)
	if got := keys(results); len(got) != 3 {
		t.Fatalf("keys = %v", got)
	}
	for id, o := range results {
		if !o.OK() {
			t.Errorf("%s failed: %s", id, o.Reason)
		}
	}
	if p.muxer.Calls() != 3 {
		t.Errorf("mux calls = %d, want 3", p.muxer.Calls())
	}
}
