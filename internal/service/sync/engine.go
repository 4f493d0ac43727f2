package sync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
)

// DefaultRemoteTimeout bounds every remote write attempt.
const DefaultRemoteTimeout = 30 * time.Second

// pendingWriteHorizon bounds how long an unechoed write id is remembered.
// A write whose echo never arrives (listener reconnect, dropped event)
// must not suppress an unrelated future change forever.
const pendingWriteHorizon = 5 * time.Minute

const (
	drainIdle int32 = iota
	drainInProgress
)

// ApplyFunc merges a freshly loaded remote snapshot into local state.
// The attendance store installs it at wiring time.
type ApplyFunc func(userID string, unit syncdomain.Unit, snap syncdomain.Snapshot)

// Engine reconciles optimistic local writes with the remote store:
// immediate write with bounded timeout, queue-on-failure, strictly FIFO
// replay, and realtime listener merge with write-id echo suppression.
type Engine struct {
	remote  syncdomain.RemoteStore
	mirror  syncdomain.LocalMirror
	timeout time.Duration

	queueMu sync.Mutex
	queue   []syncdomain.QueueItem

	// drainState is the re-entrancy guard for DrainQueue: a typed
	// idle/in-progress state, not a bare boolean.
	drainState int32

	pendingMu     sync.Mutex
	pendingWrites map[string]time.Time

	lastWriteMu sync.Mutex
	lastWrite   map[string]syncdomain.Mutation // per user, most recent local write

	applyRemote ApplyFunc

	subMu   sync.Mutex
	subStop map[string]func()

	wg sync.WaitGroup
}

// NewEngine creates a sync engine over the given remote store and local
// mirror.
func NewEngine(remote syncdomain.RemoteStore, mirror syncdomain.LocalMirror) *Engine {
	return &Engine{
		remote:        remote,
		mirror:        mirror,
		timeout:       DefaultRemoteTimeout,
		pendingWrites: make(map[string]time.Time),
		lastWrite:     make(map[string]syncdomain.Mutation),
		subStop:       make(map[string]func()),
	}
}

// SetRemoteTimeout overrides the remote write timeout (tests).
func (e *Engine) SetRemoteTimeout(d time.Duration) { e.timeout = d }

// SetApplyFunc installs the callback that merges inbound remote changes
// into local state.
func (e *Engine) SetApplyFunc(fn ApplyFunc) { e.applyRemote = fn }

// NewWriteID returns a fresh UUIDv7 write tag. V7 ids are time-ordered,
// which makes the same-instant conflict tie-break (higher id wins)
// deterministic and roughly chronological.
func NewWriteID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Persist attempts an immediate remote write. On timeout or failure the
// mutation is queued for replay and Persist still returns nil: the local
// cache write already succeeded and remote durability is eventually
// consistent. Only a non-transient programming error (unknown unit)
// surfaces.
func (e *Engine) Persist(ctx context.Context, m syncdomain.Mutation) error {
	if !m.Unit.Valid() {
		return syncdomain.ErrUnknownUnit
	}
	if m.WriteID == "" {
		m.WriteID = NewWriteID()
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}

	// Register before the write goes out so an echo racing the response
	// is still recognized.
	e.rememberPending(m.WriteID)
	e.rememberLastWrite(m)

	wctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.remote.PatchUnit(wctx, m); err != nil {
		slog.Warn("Remote persist failed, queueing",
			"user_id", m.UserID, "unit", m.Unit, "error", err)
		e.enqueue(m)
		return nil
	}
	return nil
}

func (e *Engine) enqueue(m syncdomain.Mutation) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	e.queue = append(e.queue, syncdomain.QueueItem{Mutation: m, EnqueuedAt: time.Now()})
}

// QueueLength reports how many mutations await replay.
func (e *Engine) QueueLength() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.queue)
}

// DrainQueue replays queued mutations strictly FIFO. The first failure
// leaves the failed item at the head and aborts the pass; the whole
// queue is retried on the next drain. Overlapping drains short-circuit.
func (e *Engine) DrainQueue(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.drainState, drainIdle, drainInProgress) {
		return syncdomain.ErrDrainInFlight
	}
	defer atomic.StoreInt32(&e.drainState, drainIdle)

	for {
		e.queueMu.Lock()
		if len(e.queue) == 0 {
			e.queueMu.Unlock()
			return nil
		}
		head := e.queue[0]
		e.queueMu.Unlock()

		// The replay is still a local write from the remote's point of
		// view, so its echo must be suppressed too.
		e.rememberPending(head.Mutation.WriteID)

		wctx, cancel := context.WithTimeout(ctx, e.timeout)
		err := e.remote.PatchUnit(wctx, head.Mutation)
		cancel()
		if err != nil {
			slog.Warn("Queue drain stopped at head",
				"user_id", head.Mutation.UserID, "unit", head.Mutation.Unit,
				"queued", e.QueueLength(), "error", err)
			return nil
		}

		e.queueMu.Lock()
		e.queue = e.queue[1:]
		e.queueMu.Unlock()
	}
}

func (e *Engine) rememberPending(writeID string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	now := time.Now()
	for id, at := range e.pendingWrites {
		if now.Sub(at) > pendingWriteHorizon {
			delete(e.pendingWrites, id)
		}
	}
	e.pendingWrites[writeID] = now
}

// consumePending reports whether writeID belongs to a write this engine
// performed, removing it so suppression is one-shot per write.
func (e *Engine) consumePending(writeID string) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if _, ok := e.pendingWrites[writeID]; ok {
		delete(e.pendingWrites, writeID)
		return true
	}
	return false
}

func (e *Engine) rememberLastWrite(m syncdomain.Mutation) {
	e.lastWriteMu.Lock()
	defer e.lastWriteMu.Unlock()
	e.lastWrite[m.UserID] = m
}

// shouldApply decides whether an inbound change beats the most recent
// local write for the user. Later timestamps win; equal timestamps fall
// back to the higher write id so two devices resolve identically.
func (e *Engine) shouldApply(ev syncdomain.ChangeEvent) bool {
	e.lastWriteMu.Lock()
	defer e.lastWriteMu.Unlock()

	last, ok := e.lastWrite[ev.UserID]
	if !ok || last.Unit != ev.Unit {
		return true
	}
	if ev.At.After(last.At) {
		return true
	}
	if ev.At.Equal(last.At) {
		return ev.WriteID > last.WriteID
	}
	return false
}

// Subscribe opens the realtime merge loop for a user. Inbound changes
// that echo this engine's own writes are consumed and dropped; genuine
// remote changes reload the document and merge it into local state.
func (e *Engine) Subscribe(ctx context.Context, userID string) error {
	e.subMu.Lock()
	if _, ok := e.subStop[userID]; ok {
		e.subMu.Unlock()
		return nil
	}

	ch, cancel, err := e.remote.Subscribe(ctx, userID)
	if err != nil {
		e.subMu.Unlock()
		return err
	}
	e.subStop[userID] = cancel
	e.subMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				e.handleChange(ctx, ev)
			}
		}
	}()
	return nil
}

// Unsubscribe tears down the realtime loop for a user.
func (e *Engine) Unsubscribe(userID string) {
	e.subMu.Lock()
	cancel, ok := e.subStop[userID]
	if ok {
		delete(e.subStop, userID)
	}
	e.subMu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) handleChange(ctx context.Context, ev syncdomain.ChangeEvent) {
	if e.consumePending(ev.WriteID) {
		// Echo of our own write.
		return
	}
	if !e.shouldApply(ev) {
		slog.Debug("Suppressing stale remote change",
			"user_id", ev.UserID, "unit", ev.Unit, "write_id", ev.WriteID)
		return
	}

	lctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := e.remote.Load(lctx, ev.UserID)
	if err != nil {
		slog.Error("Failed to load remote after change", "user_id", ev.UserID, "error", err)
		return
	}

	// The event is scoped to one unit; only that unit may move into the
	// mirror. The remote's copy of the other units can lag local writes
	// still sitting in the queue, and overwriting them would lose data
	// across a restart.
	e.mirrorUnit(lctx, ev.UserID, ev.Unit, snap)

	if e.applyRemote != nil {
		e.applyRemote(ev.UserID, ev.Unit, snap)
	}
}

func (e *Engine) mirrorUnit(ctx context.Context, userID string, unit syncdomain.Unit, remote syncdomain.Snapshot) {
	local, hasLocal, err := e.mirror.LoadSnapshot(ctx, userID)
	if err != nil {
		slog.Warn("Mirror unreadable during merge, rebuilding from remote",
			"user_id", userID, "error", err)
		hasLocal = false
	}
	if !hasLocal {
		// Nothing local to protect; the full remote document seeds the
		// mirror.
		if err := e.mirror.SaveSnapshot(ctx, userID, remote); err != nil {
			slog.Error("Failed to mirror remote change", "user_id", userID, "error", err)
		}
		return
	}

	payload, err := remote.UnitPayload(unit)
	if err != nil {
		slog.Error("Failed to encode changed unit", "user_id", userID, "unit", unit, "error", err)
		return
	}
	if err := local.ApplyUnit(unit, payload); err != nil {
		slog.Error("Failed to merge changed unit", "user_id", userID, "unit", unit, "error", err)
		return
	}
	local.LastUpdated = remote.LastUpdated

	if err := e.mirror.SaveSnapshot(ctx, userID, local); err != nil {
		slog.Error("Failed to mirror remote change", "user_id", userID, "error", err)
	}
}

// Close stops all subscription loops.
func (e *Engine) Close() {
	e.subMu.Lock()
	for id, cancel := range e.subStop {
		cancel()
		delete(e.subStop, id)
	}
	e.subMu.Unlock()
	e.wg.Wait()
}
