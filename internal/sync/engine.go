package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/caleb/fittrack/internal/connectivity"
	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/remote"
)

// ErrSyncInFlight is returned by ProcessQueue when a pass is already
// running. The running call absorbs the trigger as a rerun, so callers can
// treat this as success.
var ErrSyncInFlight = errors.New("sync pass already in flight")

// retryCeiling is the number of transient failures after which a record is
// dropped and surfaced as exhausted, so one unreachable entity cannot stall
// the queue forever.
const retryCeiling = 5

// Config wires an Engine to its collaborators.
type Config struct {
	Queue    *Queue
	Mappings *Mappings
	Remote   remote.Store
	State    StateStore
	Entities EntitySource          // optional; parent synthesis is skipped when nil
	Provider connectivity.Provider // optional; Record always drains when nil
	Owner    string
}

// Engine drains the mutation queue against the remote store: dependency
// check, translate, apply, classify. At most one pass runs at a time;
// triggers arriving mid-pass coalesce into one extra pass.
type Engine struct {
	queue    *Queue
	maps     *Mappings
	remote   remote.Store
	state    StateStore
	entities EntitySource
	provider connectivity.Provider
	owner    string

	mu      gosync.Mutex
	running bool
	rerun   bool
}

// NewEngine creates an engine. The queue, mappings, remote store, and state
// store are required.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		queue:    cfg.Queue,
		maps:     cfg.Mappings,
		remote:   cfg.Remote,
		state:    cfg.State,
		entities: cfg.Entities,
		provider: cfg.Provider,
		owner:    cfg.Owner,
	}
}

// Queue exposes the engine's mutation queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Mappings exposes the engine's identifier map.
func (e *Engine) Mappings() *Mappings {
	return e.maps
}

// Record enqueues a local mutation and, when the provider reports online,
// drains the queue immediately. Offline, the mutation waits for the next
// trigger and the returned report is empty.
func (e *Engine) Record(ctx context.Context, m models.Mutation) (*Report, error) {
	if err := e.queue.Enqueue(m); err != nil {
		return nil, err
	}
	if e.provider != nil && !e.provider.IsOnline() {
		return &Report{}, nil
	}
	rep, err := e.ProcessQueue(ctx)
	if errors.Is(err, ErrSyncInFlight) {
		return &Report{}, nil
	}
	return rep, err
}

// TriggerSync schedules an asynchronous drain. An in-flight pass absorbs the
// trigger as a rerun; errors are logged, not returned.
func (e *Engine) TriggerSync() {
	go func() {
		if _, err := e.ProcessQueue(context.Background()); err != nil && !errors.Is(err, ErrSyncInFlight) {
			slog.Debug("sync: background pass", "err", err)
		}
	}()
}

// Status reports the two sync observables.
type Status struct {
	Pending    int
	LastSyncAt *time.Time
}

// Status returns the pending mutation count and last successful sync time.
func (e *Engine) Status() (Status, error) {
	n, err := e.queue.Count()
	if err != nil {
		return Status{}, fmt.Errorf("count pending: %w", err)
	}
	at, err := e.state.LastSyncAt()
	if err != nil {
		return Status{}, fmt.Errorf("read sync state: %w", err)
	}
	return Status{Pending: n, LastSyncAt: at}, nil
}

// ProcessQueue drains the pending queue. Only one call runs at a time: a
// concurrent caller gets ErrSyncInFlight and its trigger is coalesced into
// one extra pass of the running call. An auth failure halts the call with
// the queue untouched.
func (e *Engine) ProcessQueue(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.running {
		e.rerun = true
		e.mu.Unlock()
		return nil, ErrSyncInFlight
	}
	e.running = true
	e.rerun = false
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	report := &Report{}
	for {
		err := e.runPass(ctx, report)
		report.Passes++
		if err != nil {
			return report, err
		}
		if report.AuthRequired {
			return report, nil
		}

		e.mu.Lock()
		again := e.rerun
		e.rerun = false
		e.mu.Unlock()
		if !again {
			return report, nil
		}
	}
}

// runPass evaluates one drain snapshot in queue order. Per-record failures
// never abort the pass; only an auth error (halt) or a storage error does.
func (e *Engine) runPass(ctx context.Context, report *Report) error {
	pending, err := e.queue.Pending()
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	applied := 0
	transient := false
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		deferred, err := e.deferOnDependency(m)
		if err != nil {
			return err
		}
		if deferred {
			report.Deferred++
			slog.Debug("sync: deferred", "kind", m.Kind, "localId", m.LocalID)
			continue
		}

		err = e.applyRemote(ctx, m)
		switch {
		case err == nil:
			if err := e.queue.Remove(m.ID); err != nil {
				return fmt.Errorf("remove applied record: %w", err)
			}
			applied++
			report.Applied++
			slog.Debug("sync: applied", "kind", m.Kind, "localId", m.LocalID, "action", m.Action)

		case errors.Is(err, remote.ErrAuthRequired):
			// Halt immediately; the current record and everything after it
			// stay queued for after re-authentication.
			report.AuthRequired = true
			slog.Warn("sync: auth required, pass halted", "pending", len(pending))
			return nil

		case remote.IsTransient(err):
			transient = true
			n, berr := e.queue.Bump(m.ID)
			if berr != nil {
				return fmt.Errorf("bump retry count: %w", berr)
			}
			switch {
			case n == 0:
				// Record replaced mid-pass; the new record carries its own
				// retry budget.
			case n >= retryCeiling:
				if rerr := e.queue.Remove(m.ID); rerr != nil {
					return fmt.Errorf("remove exhausted record: %w", rerr)
				}
				report.fail(m, ReasonExhausted, err)
				slog.Warn("sync: retries exhausted", "kind", m.Kind, "localId", m.LocalID, "retries", n, "err", err)
			default:
				report.Retrying++
				slog.Debug("sync: transient failure", "kind", m.Kind, "localId", m.LocalID, "retries", n, "err", err)
			}

		default:
			reason := ReasonRejected
			if errors.Is(err, remote.ErrConflict) {
				reason = ReasonConflict
			} else if errors.Is(err, remote.ErrNotFound) {
				reason = ReasonMissing
			}
			if rerr := e.queue.Remove(m.ID); rerr != nil {
				return fmt.Errorf("remove rejected record: %w", rerr)
			}
			report.fail(m, reason, err)
			slog.Warn("sync: dropped", "kind", m.Kind, "localId", m.LocalID, "reason", reason, "err", err)
		}
	}

	// The sync time only advances after a pass that proved the remote
	// reachable and applied real work.
	if applied > 0 && !transient {
		if err := e.state.SetLastSyncAt(time.Now()); err != nil {
			return fmt.Errorf("record sync time: %w", err)
		}
	}
	return nil
}

// deferOnDependency reports whether m must wait for its parent entity to be
// created remotely. When the parent has no pending record of its own, a
// create is synthesized from local state and queued at the head so it
// precedes m on the next pass.
func (e *Engine) deferOnDependency(m models.Mutation) (bool, error) {
	if m.Action == models.ActionDelete {
		return false, nil
	}
	ref := m.Kind.ParentRef()
	if ref == nil {
		return false, nil
	}

	parentID, err := stringField(m.Payload, ref.LocalKey)
	if err != nil {
		return false, fmt.Errorf("read %s of %s %s: %w", ref.LocalKey, m.Kind, m.LocalID, err)
	}
	if parentID == "" {
		return false, nil
	}
	if _, mapped := e.maps.RemoteID(ref.Kind, parentID); mapped {
		return false, nil
	}

	pendingParent, err := e.queue.Lookup(ref.Kind, parentID)
	if err != nil {
		return false, fmt.Errorf("lookup parent record: %w", err)
	}
	if pendingParent == nil && e.entities != nil {
		snap, err := e.entities.EntitySnapshot(ref.Kind, parentID)
		if err != nil {
			return false, fmt.Errorf("read parent %s %s: %w", ref.Kind, parentID, err)
		}
		if snap != nil {
			if err := e.queue.EnqueueFront(models.NewMutation(ref.Kind, parentID, models.ActionCreate, snap)); err != nil {
				return false, fmt.Errorf("queue parent create: %w", err)
			}
			slog.Debug("sync: queued missing parent create", "kind", ref.Kind, "localId", parentID)
		}
	}
	return true, nil
}

// applyRemote translates m and invokes the remote operation. A create whose
// local id is already mapped replays as an update; an update with no mapping
// applies as a create; a delete with no mapping has nothing to do remotely.
func (e *Engine) applyRemote(ctx context.Context, m models.Mutation) error {
	remoteID, mapped := e.maps.RemoteID(m.Kind, m.LocalID)

	action := m.Action
	switch {
	case action == models.ActionCreate && mapped:
		action = models.ActionUpdate
	case action == models.ActionUpdate && !mapped:
		action = models.ActionCreate
	}

	switch action {
	case models.ActionCreate:
		payload, err := e.toWire(m)
		if err != nil {
			return err
		}
		newID, err := e.remote.Create(ctx, m.Kind, e.owner, payload)
		if err != nil {
			return err
		}
		// Register before the next record is evaluated so a child later in
		// the same pass resolves this parent.
		if err := e.maps.Put(m.Kind, m.LocalID, newID); err != nil {
			return fmt.Errorf("register id mapping: %w", err)
		}
		return nil

	case models.ActionUpdate:
		payload, err := e.toWire(m)
		if err != nil {
			return err
		}
		return e.remote.Update(ctx, m.Kind, e.owner, remoteID, payload)

	case models.ActionDelete:
		if !mapped {
			return nil
		}
		return e.remote.Delete(ctx, m.Kind, e.owner, remoteID)
	}
	return fmt.Errorf("unknown action %q", m.Action)
}

// toWire rewrites the payload's parent reference from local to remote form.
// Kinds without a parent pass through untouched.
func (e *Engine) toWire(m models.Mutation) (json.RawMessage, error) {
	ref := m.Kind.ParentRef()
	if ref == nil {
		return m.Payload, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Payload, &fields); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", m.Kind, err)
	}
	raw, ok := fields[ref.LocalKey]
	if !ok {
		return m.Payload, nil
	}
	var localID string
	if err := json.Unmarshal(raw, &localID); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref.LocalKey, err)
	}
	if localID == "" {
		delete(fields, ref.LocalKey)
		return json.Marshal(fields)
	}

	remoteID, mapped := e.maps.RemoteID(ref.Kind, localID)
	if !mapped {
		return nil, fmt.Errorf("parent %s %s has no remote id", ref.Kind, localID)
	}
	delete(fields, ref.LocalKey)
	quoted, err := json.Marshal(remoteID)
	if err != nil {
		return nil, err
	}
	fields[ref.RemoteKey] = quoted
	return json.Marshal(fields)
}

// stringField extracts a top-level string field from a JSON object payload.
// Missing fields return "".
func stringField(payload json.RawMessage, key string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", err
	}
	raw, ok := fields[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
