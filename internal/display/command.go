package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Intent is what a display asks the kitchen to do.
type Intent string

const (
	IntentStart     = Intent(kitchen.TransitionStart)
	IntentComplete  = Intent(kitchen.TransitionComplete)
	IntentRecall    = Intent(kitchen.TransitionRecall)
	IntentBump      = Intent(kitchen.TransitionBump)
	IntentBumpTable = Intent("bump-table")
)

// Mutator persists intents and reads back authoritative state.
type Mutator interface {
	Transition(ctx context.Context, id kitchen.EntryID, t kitchen.Transition) (*kitchen.RoutingEntry, error)
	BumpTable(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error)
	Entry(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error)
	TableEntries(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error)
}

// Command is one optimistic mutation. The snapshot holds the values the
// command replaced in the view so a failed write can be undone.
type Command struct {
	Intent  Intent
	EntryID kitchen.EntryID
	TableID kitchen.TableID

	snapshot []kitchen.RoutingEntry
	token    uint64
}

func Start(id kitchen.EntryID) Command    { return Command{Intent: IntentStart, EntryID: id} }
func Complete(id kitchen.EntryID) Command { return Command{Intent: IntentComplete, EntryID: id} }
func Recall(id kitchen.EntryID) Command   { return Command{Intent: IntentRecall, EntryID: id} }
func Bump(id kitchen.EntryID) Command     { return Command{Intent: IntentBump, EntryID: id} }

func BumpTable(tableID kitchen.TableID) Command {
	return Command{Intent: IntentBumpTable, TableID: tableID}
}

// Ref names what the command is about.
func (c Command) Ref() string {
	if c.Intent == IntentBumpTable {
		return "table " + c.TableID.String()
	}
	return "entry " + c.EntryID.String()
}

func (c Command) validate() error {
	switch c.Intent {
	case IntentStart, IntentComplete, IntentRecall, IntentBump:
		if c.EntryID == uuid.Nil {
			return kitchen.Errorf("validate command", string(c.Intent), kitchen.ErrValidation, "entry ID is required")
		}
	case IntentBumpTable:
		if c.TableID == uuid.Nil {
			return kitchen.Errorf("validate command", string(c.Intent), kitchen.ErrValidation, "table ID is required")
		}
	default:
		return kitchen.Errorf("validate command", string(c.Intent), kitchen.ErrValidation, "unknown intent")
	}
	return nil
}

// MutationError reports a mutation the kitchen did not accept. The view
// no longer shows the optimistic change when it is returned.
type MutationError struct {
	Intent  Intent
	EntryID kitchen.EntryID
	TableID kitchen.TableID
	// RolledBack is false when the server state replaced the local
	// change instead.
	RolledBack bool
	Err        error
}

func (e *MutationError) Error() string {
	ref := "entry " + e.EntryID.String()
	if e.Intent == IntentBumpTable {
		ref = "table " + e.TableID.String()
	}
	return fmt.Sprintf("cannot %s %s: %v", e.Intent, ref, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

type OptimisticOptions struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	Logger       logging.Logger
}

// Optimistic executes commands against a view: the change shows at
// once, is persisted through the mutator, and is then confirmed with the
// server's result or undone.
type Optimistic struct {
	view        *View
	mutator     Mutator
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      logging.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewOptimistic(view *View, mutator Mutator, opts OptimisticOptions) *Optimistic {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	return &Optimistic{
		view:        view,
		mutator:     mutator,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		now:         opts.Now,
		sleep:       opts.Sleep,
		logger:      opts.Logger.With("component", "Optimistic"),
		locks:       make(map[uuid.UUID]*keyLock),
	}
}

// Execute runs cmd. Commands touching the same entry run in submission
// order.
func (o *Optimistic) Execute(ctx context.Context, cmd Command) ([]kitchen.RoutingEntry, error) {
	if err := cmd.validate(); err != nil {
		return nil, &MutationError{Intent: cmd.Intent, EntryID: cmd.EntryID, TableID: cmd.TableID, Err: err}
	}

	ids := o.targets(cmd)
	unlock := o.lock(ids)
	defer unlock()

	if err := o.applyLocally(&cmd, ids); err != nil {
		return nil, o.reconcile(ctx, cmd, err)
	}

	result, err := o.persist(ctx, cmd)
	if err != nil {
		return nil, o.reconcile(ctx, cmd, err)
	}
	o.view.Confirm(result...)
	return result, nil
}

func (o *Optimistic) targets(cmd Command) []kitchen.EntryID {
	if cmd.Intent != IntentBumpTable {
		return []kitchen.EntryID{cmd.EntryID}
	}
	var ids []kitchen.EntryID
	for _, e := range o.view.Table(cmd.TableID) {
		if e.Active() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func (o *Optimistic) applyLocally(cmd *Command, ids []kitchen.EntryID) error {
	if cmd.Intent == IntentBumpTable && len(ids) == 0 {
		return kitchen.Errorf("bump table", cmd.TableID.String(), kitchen.ErrConflict, "no active entries")
	}
	t := kitchen.Transition(cmd.Intent)
	if cmd.Intent == IntentBumpTable {
		t = kitchen.TransitionBump
	}
	now := o.now()
	snapshot, token, err := o.view.begin(ids, func(e *kitchen.RoutingEntry) error {
		return e.Apply(t, now)
	})
	if err != nil {
		return err
	}
	cmd.snapshot, cmd.token = snapshot, token
	return nil
}

func (o *Optimistic) persist(ctx context.Context, cmd Command) ([]kitchen.RoutingEntry, error) {
	var lastErr error
	delay := o.backoff
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		result, err := o.send(ctx, cmd)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, kitchen.ErrTransientIO) || attempt == o.maxAttempts {
			break
		}
		o.logger.Info("mutation failed, retrying", "ref", cmd.Ref(), "attempt", attempt, "error", err)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, lastErr
}

func (o *Optimistic) send(ctx context.Context, cmd Command) ([]kitchen.RoutingEntry, error) {
	if cmd.Intent == IntentBumpTable {
		return o.mutator.BumpTable(ctx, cmd.TableID)
	}
	e, err := o.mutator.Transition(ctx, cmd.EntryID, kitchen.Transition(cmd.Intent))
	if err != nil {
		return nil, err
	}
	return []kitchen.RoutingEntry{*e}, nil
}

// reconcile settles a failed command. A conflict means the local view
// was stale: the server state is fetched and replaces the local intent.
// Any other failure restores the snapshot.
func (o *Optimistic) reconcile(ctx context.Context, cmd Command, cause error) error {
	merr := &MutationError{Intent: cmd.Intent, EntryID: cmd.EntryID, TableID: cmd.TableID, Err: cause}

	if errors.Is(cause, kitchen.ErrConflict) {
		fresh, err := o.refetch(ctx, cmd)
		if err == nil {
			o.view.Confirm(fresh...)
			o.logger.Info("mutation conflicted, server state applied", "ref", cmd.Ref())
			return merr
		}
		o.logger.Error("cannot refetch after conflict", "ref", cmd.Ref(), "error", err)
	}

	if len(cmd.snapshot) > 0 {
		merr.RolledBack = o.view.rollback(cmd.snapshot, cmd.token) > 0
	}
	o.logger.Error("mutation failed", "ref", cmd.Ref(), "rolled_back", merr.RolledBack, "error", cause)
	return merr
}

func (o *Optimistic) refetch(ctx context.Context, cmd Command) ([]kitchen.RoutingEntry, error) {
	if cmd.Intent == IntentBumpTable {
		return o.mutator.TableEntries(ctx, cmd.TableID)
	}
	e, err := o.mutator.Entry(ctx, cmd.EntryID)
	if err != nil {
		return nil, err
	}
	return []kitchen.RoutingEntry{*e}, nil
}

// lock takes the per-entry locks in ID order.
func (o *Optimistic) lock(ids []kitchen.EntryID) func() {
	sorted := append([]kitchen.EntryID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	held := make([]*keyLock, 0, len(sorted))
	for _, id := range sorted {
		o.mu.Lock()
		l, ok := o.locks[id]
		if !ok {
			l = &keyLock{}
			o.locks[id] = l
		}
		l.refs++
		o.mu.Unlock()
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			o.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(o.locks, sorted[i])
			}
			o.mu.Unlock()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
