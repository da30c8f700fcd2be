package display

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/google/uuid"
)

func newOptimistic(view *View, mutator Mutator, sleeps *[]time.Duration) *Optimistic {
	return NewOptimistic(view, mutator, OptimisticOptions{
		Now: fixedNow,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	})
}

func TestOptimisticRollbackReferencesEntry(t *testing.T) {
	e1 := started(newEntry(uuid.New()))
	view := NewView()
	view.Replace([]kitchen.RoutingEntry{e1}, nil)

	mutator := &MockMutator{
		TransitionFunc: func(ctx context.Context, id kitchen.EntryID, tr kitchen.Transition) (*kitchen.RoutingEntry, error) {
			local, _ := view.Entry(id)
			if local.CompletedAt == nil {
				t.Error("complete should show locally before the write")
			}
			if !view.Pending(id) {
				t.Error("entry should be pending during the write")
			}
			return nil, kitchen.Errorf("update entry", id.String(), kitchen.ErrValidation, "write rejected")
		},
	}
	opt := newOptimistic(view, mutator, nil)

	_, err := opt.Execute(context.Background(), Complete(e1.ID))

	var merr *MutationError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MutationError, got %v", err)
	}
	if merr.EntryID != e1.ID || !merr.RolledBack {
		t.Errorf("MutationError = %+v, want rolled back entry %s", merr, e1.ID)
	}
	if !strings.Contains(err.Error(), e1.ID.String()) {
		t.Errorf("error %q does not reference the entry", err)
	}

	got, _ := view.Entry(e1.ID)
	if got.CompletedAt != nil || got.Version != e1.Version {
		t.Errorf("entry not reverted: %+v", got)
	}
	if view.Pending(e1.ID) {
		t.Error("entry still pending after rollback")
	}
}

func TestOptimisticConfirmsServerResult(t *testing.T) {
	e1 := newEntry(uuid.New())
	view := NewView()
	view.Replace([]kitchen.RoutingEntry{e1}, nil)

	server := serverApply(e1, kitchen.TransitionStart)
	server.Notes = "from server"
	mutator := &MockMutator{
		TransitionFunc: func(ctx context.Context, id kitchen.EntryID, tr kitchen.Transition) (*kitchen.RoutingEntry, error) {
			return &server, nil
		},
	}

	result, err := newOptimistic(view, mutator, nil).Execute(context.Background(), Start(e1.ID))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result) != 1 || result[0].Notes != "from server" {
		t.Errorf("result = %+v", result)
	}
	got, _ := view.Entry(e1.ID)
	if got.Notes != "from server" || view.Pending(e1.ID) {
		t.Errorf("view not confirmed with server state: %+v", got)
	}
}

func TestOptimisticRetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		wantErr    bool
		wantSleeps []time.Duration
	}{
		{name: "recoversOnThirdAttempt", failures: 2, wantSleeps: []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}},
		{name: "surfacesAfterMaxAttempts", failures: 5, wantErr: true, wantSleeps: []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e1 := newEntry(uuid.New())
			view := NewView()
			view.Replace([]kitchen.RoutingEntry{e1}, nil)

			attempts := 0
			mutator := &MockMutator{
				TransitionFunc: func(ctx context.Context, id kitchen.EntryID, tr kitchen.Transition) (*kitchen.RoutingEntry, error) {
					attempts++
					if attempts <= tt.failures {
						return nil, kitchen.Errorf("update entry", id.String(), kitchen.ErrTransientIO, "store unavailable")
					}
					out := serverApply(e1, tr)
					return &out, nil
				},
			}
			var sleeps []time.Duration
			_, err := newOptimistic(view, mutator, &sleeps).Execute(context.Background(), Start(e1.ID))

			if tt.wantErr {
				if !errors.Is(err, kitchen.ErrTransientIO) {
					t.Fatalf("expected transient error, got %v", err)
				}
				if attempts != DefaultMaxAttempts {
					t.Errorf("attempts = %d, want %d", attempts, DefaultMaxAttempts)
				}
				got, _ := view.Entry(e1.ID)
				if got.StartedAt != nil {
					t.Error("failed start not rolled back")
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(sleeps) != len(tt.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", sleeps, tt.wantSleeps)
			}
			for i := range sleeps {
				if sleeps[i] != tt.wantSleeps[i] {
					t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], tt.wantSleeps[i])
				}
			}
		})
	}
}

func TestOptimisticConflictTakesServerState(t *testing.T) {
	e1 := started(newEntry(uuid.New()))
	view := NewView()
	view.Replace([]kitchen.RoutingEntry{e1}, nil)

	// Another display bumped the entry first.
	authoritative := serverApply(e1, kitchen.TransitionBump)
	mutator := &MockMutator{
		TransitionFunc: func(ctx context.Context, id kitchen.EntryID, tr kitchen.Transition) (*kitchen.RoutingEntry, error) {
			return nil, kitchen.Errorf("update entry", id.String(), kitchen.ErrConflict, "version mismatch")
		},
		EntryFunc: func(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
			return &authoritative, nil
		},
	}

	_, err := newOptimistic(view, mutator, nil).Execute(context.Background(), Complete(e1.ID))

	var merr *MutationError
	if !errors.As(err, &merr) || !errors.Is(err, kitchen.ErrConflict) {
		t.Fatalf("expected conflict MutationError, got %v", err)
	}
	if merr.RolledBack {
		t.Error("conflict should not roll back to the stale snapshot")
	}
	got, _ := view.Entry(e1.ID)
	if got.Version != authoritative.Version || got.CompletedAt == nil {
		t.Errorf("view = %+v, want authoritative state", got)
	}
}

func TestOptimisticLocalGuardRefetches(t *testing.T) {
	e1 := newEntry(uuid.New())
	view := NewView()
	view.Replace([]kitchen.RoutingEntry{e1}, nil)

	mutator := &MockMutator{
		EntryFunc: func(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
			e := e1
			return &e, nil
		},
	}
	_, err := newOptimistic(view, mutator, nil).Execute(context.Background(), Recall(e1.ID))
	if !errors.Is(err, kitchen.ErrConflict) {
		t.Fatalf("expected conflict for recall of a queued entry, got %v", err)
	}
	calls := mutator.Calls()
	if len(calls) != 1 || calls[0] != "entry" {
		t.Errorf("calls = %v, want a refetch and no write", calls)
	}
}

func TestOptimisticRollbackSkipsSupersededEntry(t *testing.T) {
	e1 := started(newEntry(uuid.New()))
	view := NewView()
	view.Replace([]kitchen.RoutingEntry{e1}, nil)

	pushed := e1.Clone()
	pushed.Version = e1.Version + 3
	pushed.Notes = "pushed"
	mutator := &MockMutator{
		TransitionFunc: func(ctx context.Context, id kitchen.EntryID, tr kitchen.Transition) (*kitchen.RoutingEntry, error) {
			view.Confirm(pushed)
			return nil, errors.New("connection reset")
		},
	}

	_, err := newOptimistic(view, mutator, nil).Execute(context.Background(), Complete(e1.ID))
	var merr *MutationError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MutationError, got %v", err)
	}
	if merr.RolledBack {
		t.Error("rollback should not overwrite a server push")
	}
	got, _ := view.Entry(e1.ID)
	if got.Notes != "pushed" {
		t.Errorf("view = %+v, want pushed state", got)
	}
}

func TestOptimisticBumpTable(t *testing.T) {
	table := uuid.New()
	a, b := newEntry(table), started(newEntry(table))
	done := serverApply(started(newEntry(table)), kitchen.TransitionComplete)

	t.Run("success", func(t *testing.T) {
		view := NewView()
		view.Replace([]kitchen.RoutingEntry{a, b, done}, nil)
		mutator := &MockMutator{
			BumpTableFunc: func(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
				return []kitchen.RoutingEntry{serverApply(a, kitchen.TransitionBump), serverApply(b, kitchen.TransitionBump)}, nil
			},
		}
		result, err := newOptimistic(view, mutator, nil).Execute(context.Background(), BumpTable(table))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if len(result) != 2 {
			t.Errorf("result has %d entries, want 2", len(result))
		}
		for _, e := range view.Table(table) {
			if e.CompletedAt == nil {
				t.Errorf("entry %s not done", e.ID)
			}
		}
	})

	t.Run("failureRestoresAll", func(t *testing.T) {
		view := NewView()
		view.Replace([]kitchen.RoutingEntry{a, b, done}, nil)
		mutator := &MockMutator{
			BumpTableFunc: func(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
				return nil, kitchen.Errorf("bump table", tableID.String(), kitchen.ErrValidation, "rejected")
			},
		}
		_, err := newOptimistic(view, mutator, nil).Execute(context.Background(), BumpTable(table))
		var merr *MutationError
		if !errors.As(err, &merr) || merr.TableID != table {
			t.Fatalf("expected MutationError for table, got %v", err)
		}
		for _, id := range []kitchen.EntryID{a.ID, b.ID} {
			e, _ := view.Entry(id)
			if e.CompletedAt != nil {
				t.Errorf("entry %s not restored", id)
			}
		}
	})

	t.Run("noActiveEntries", func(t *testing.T) {
		view := NewView()
		view.Replace([]kitchen.RoutingEntry{done}, nil)
		mutator := &MockMutator{}
		_, err := newOptimistic(view, mutator, nil).Execute(context.Background(), BumpTable(table))
		if !errors.Is(err, kitchen.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		for _, c := range mutator.Calls() {
			if c == "bump-table" {
				t.Error("bump sent with no active entries")
			}
		}
	})
}

func TestOptimisticKeepsSubmissionOrder(t *testing.T) {
	e1 := newEntry(uuid.New())
	view := NewView()
	view.Replace([]kitchen.RoutingEntry{e1}, nil)

	var mu sync.Mutex
	server := e1
	firstIn := make(chan struct{})
	release := make(chan struct{})
	mutator := &MockMutator{
		TransitionFunc: func(ctx context.Context, id kitchen.EntryID, tr kitchen.Transition) (*kitchen.RoutingEntry, error) {
			if tr == kitchen.TransitionStart {
				close(firstIn)
				<-release
			}
			mu.Lock()
			defer mu.Unlock()
			server = serverApply(server, tr)
			out := server
			return &out, nil
		},
	}
	opt := newOptimistic(view, mutator, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := opt.Execute(context.Background(), Start(e1.ID)); err != nil {
			t.Errorf("start: %v", err)
		}
	}()
	<-firstIn
	go func() {
		defer wg.Done()
		if _, err := opt.Execute(context.Background(), Complete(e1.ID)); err != nil {
			t.Errorf("complete: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	calls := mutator.Calls()
	if len(calls) != 2 || calls[0] != "start" || calls[1] != "complete" {
		t.Errorf("calls = %v, want [start complete]", calls)
	}
	got, _ := view.Entry(e1.ID)
	if got.CompletedAt == nil {
		t.Error("entry should end completed")
	}
}

func TestCommandValidation(t *testing.T) {
	opt := newOptimistic(NewView(), &MockMutator{}, nil)
	tests := []struct {
		name string
		cmd  Command
	}{
		{"missingEntry", Start(uuid.Nil)},
		{"missingTable", BumpTable(uuid.Nil)},
		{"unknownIntent", Command{Intent: "fry", EntryID: uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := opt.Execute(context.Background(), tt.cmd); !errors.Is(err, kitchen.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := opt.Execute(context.Background(), Start(uuid.New())); !errors.Is(err, kitchen.ErrNotFound) {
		t.Errorf("entry missing from view should be rejected locally, got %v", err)
	}
}
