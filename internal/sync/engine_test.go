package sync

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"testing"

	"github.com/caleb/fittrack/internal/connectivity"
	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/remote"
	"github.com/caleb/fittrack/internal/remote/remotetest"
)

type fixture struct {
	engine *Engine
	queue  *Queue
	maps   *Mappings
	state  *memState
	fake   *remotetest.Fake
	ents   memEntities
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	maps := newTestMappings(t)
	fake := remotetest.New()
	state := &memState{}
	ents := memEntities{}
	queue := NewQueue(&memQueue{}, maps)
	engine := NewEngine(Config{
		Queue:    queue,
		Mappings: maps,
		Remote:   fake,
		State:    state,
		Entities: ents,
		Owner:    "acct-1",
	})
	return &fixture{engine: engine, queue: queue, maps: maps, state: state, fake: fake, ents: ents}
}

func (fx *fixture) enqueue(t *testing.T, m models.Mutation) {
	t.Helper()
	if err := fx.queue.Enqueue(m); err != nil {
		t.Fatalf("enqueue %s %s: %v", m.Action, m.Kind, err)
	}
}

func (fx *fixture) pendingCount(t *testing.T) int {
	t.Helper()
	n, err := fx.queue.Count()
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	return n
}

func TestProcessQueue_CreatesParentThenChild(t *testing.T) {
	fx := newFixture(t)
	fx.fake.IDFunc = func(kind models.EntityKind) string {
		if kind == models.KindProfile {
			return "R-abc"
		}
		return "R-w1"
	}

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate,
		json.RawMessage(`{"name":"Arun","weight":70}`)))
	fx.enqueue(t, models.NewMutation(models.KindWorkoutSession, "W1", models.ActionCreate,
		json.RawMessage(`{"profileLocalId":"L1","exerciseId":"bench_press","date":"2026-08-20","sets":[{"reps":8,"weight":60}]}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("process queue: %v", err)
	}
	if rep.Applied != 2 || rep.Deferred != 0 || len(rep.Failures) != 0 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after drain: got %d, want 0", n)
	}

	if id, ok := fx.maps.RemoteID(models.KindProfile, "L1"); !ok || id != "R-abc" {
		t.Fatalf("profile mapping: got %q, %v", id, ok)
	}
	if id, ok := fx.maps.RemoteID(models.KindWorkoutSession, "W1"); !ok || id != "R-w1" {
		t.Fatalf("workout mapping: got %q, %v", id, ok)
	}

	var wire map[string]any
	for _, c := range fx.fake.Calls() {
		if c.Op == "create" && c.Kind == models.KindWorkoutSession {
			wire = decodePayload(t, c.Payload)
		}
	}
	if wire == nil {
		t.Fatal("workout create never reached the remote")
	}
	if wire["profileId"] != "R-abc" {
		t.Fatalf("wire parent ref: got %v, want R-abc", wire["profileId"])
	}
	if _, ok := wire["profileLocalId"]; ok {
		t.Fatal("local parent ref leaked to the wire")
	}
}

func TestProcessQueue_ChildAheadOfParentDefers(t *testing.T) {
	fx := newFixture(t)

	// The workout lands in the queue before its profile.
	fx.enqueue(t, models.NewMutation(models.KindWorkoutSession, "W1", models.ActionCreate,
		json.RawMessage(`{"profileLocalId":"L1","exerciseId":"squat","date":"2026-08-20"}`)))
	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate,
		json.RawMessage(`{"name":"Arun"}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if rep.Applied != 1 || rep.Deferred != 1 {
		t.Fatalf("first drain report: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 1 {
		t.Fatalf("pending after first drain: got %d, want 1", n)
	}

	rep, err = fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if rep.Applied != 1 || rep.Deferred != 0 {
		t.Fatalf("second drain report: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after second drain: got %d, want 0", n)
	}

	calls := fx.fake.Calls()
	if len(calls) != 2 || calls[0].Kind != models.KindProfile || calls[1].Kind != models.KindWorkoutSession {
		t.Fatalf("remote call order: got %+v", calls)
	}
}

func TestProcessQueue_SynthesizesMissingParentCreate(t *testing.T) {
	fx := newFixture(t)
	fx.ents[entityKey(models.KindProfile, "L1")] = json.RawMessage(`{"name":"Arun","weight":70}`)

	fx.enqueue(t, models.NewMutation(models.KindWorkoutSession, "W1", models.ActionCreate,
		json.RawMessage(`{"profileLocalId":"L1","exerciseId":"squat","date":"2026-08-20"}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if rep.Applied != 0 || rep.Deferred != 1 || rep.Passes != 1 {
		t.Fatalf("first drain report: %s (%d passes)", rep.Summary(), rep.Passes)
	}

	pending, _ := fx.queue.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending after synthesis: got %d, want 2", len(pending))
	}
	if pending[0].Kind != models.KindProfile || pending[0].LocalID != "L1" || pending[0].Action != models.ActionCreate {
		t.Fatalf("queue head: got %s %s %s, want profile L1 create", pending[0].Action, pending[0].Kind, pending[0].LocalID)
	}

	rep, err = fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if rep.Applied != 2 {
		t.Fatalf("second drain report: %s", rep.Summary())
	}
	if _, ok := fx.maps.RemoteID(models.KindProfile, "L1"); !ok {
		t.Fatal("synthesized parent create never registered a mapping")
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after convergence: got %d, want 0", n)
	}
}

func TestProcessQueue_DefersWhenParentUnknown(t *testing.T) {
	fx := newFixture(t)
	// No pending parent record and no local entity to synthesize from.
	fx.enqueue(t, models.NewMutation(models.KindWorkoutSession, "W1", models.ActionCreate,
		json.RawMessage(`{"profileLocalId":"L-gone","exerciseId":"squat","date":"2026-08-20"}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Deferred != 1 || rep.Applied != 0 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 1 {
		t.Fatalf("deferred record should stay queued, pending %d", n)
	}
	if got := fx.fake.CallCount("create"); got != 0 {
		t.Fatalf("remote creates: got %d, want 0", got)
	}
}

func TestProcessQueue_RetryCeilingDropsRecord(t *testing.T) {
	fx := newFixture(t)
	fx.fake.OnOp = func(remotetest.Call) error { return remote.ErrUnavailable }

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate,
		json.RawMessage(`{"name":"Arun"}`)))

	for i := 0; i < retryCeiling-1; i++ {
		rep, err := fx.engine.ProcessQueue(context.Background())
		if err != nil {
			t.Fatalf("drain %d: %v", i+1, err)
		}
		if rep.Retrying != 1 || len(rep.Failures) != 0 {
			t.Fatalf("drain %d report: %s", i+1, rep.Summary())
		}
	}

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("final drain: %v", err)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Reason != ReasonExhausted {
		t.Fatalf("final drain report: %s", rep.Summary())
	}
	if rep.Failures[0].Mutation.LocalID != "L1" {
		t.Fatalf("exhausted record: got %s", rep.Failures[0].Mutation.LocalID)
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after exhaustion: got %d, want 0", n)
	}
	if at, _ := fx.state.LastSyncAt(); at != nil {
		t.Fatal("sync time advanced without an applied mutation")
	}
}

func TestProcessQueue_AuthFailureHaltsWithQueueIntact(t *testing.T) {
	fx := newFixture(t)
	fx.fake.OnOp = func(remotetest.Call) error { return remote.ErrAuthRequired }

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate, json.RawMessage(`{"name":"A"}`)))
	fx.enqueue(t, models.NewMutation(models.KindProfile, "L2", models.ActionCreate, json.RawMessage(`{"name":"B"}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !rep.AuthRequired || rep.Applied != 0 || len(rep.Failures) != 0 {
		t.Fatalf("report: %s", rep.Summary())
	}

	pending, _ := fx.queue.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending after halt: got %d, want 2", len(pending))
	}
	for _, m := range pending {
		if m.RetryCount != 0 {
			t.Fatalf("auth halt must not consume retries, %s has %d", m.LocalID, m.RetryCount)
		}
	}
	if at, _ := fx.state.LastSyncAt(); at != nil {
		t.Fatal("sync time advanced on an auth-halted pass")
	}

	// After re-authentication the same records drain in order.
	fx.fake.OnOp = nil
	rep, err = fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain after reauth: %v", err)
	}
	if rep.Applied != 2 {
		t.Fatalf("report after reauth: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after reauth: got %d, want 0", n)
	}
}

func TestProcessQueue_ReplaysMappedCreateAsUpdate(t *testing.T) {
	fx := newFixture(t)
	if err := fx.maps.Put(models.KindProfile, "L1", "R-1"); err != nil {
		t.Fatalf("put mapping: %v", err)
	}
	fx.fake.Seed(models.KindProfile, "R-1", `{"name":"Arun","weight":70}`)

	// A crash after the remote applied the create but before the queue
	// record was removed leaves exactly this state on restart.
	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate,
		json.RawMessage(`{"name":"Arun","weight":71}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Applied != 1 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if got := fx.fake.CallCount("create"); got != 0 {
		t.Fatalf("replay issued %d creates, want 0", got)
	}
	if got := fx.fake.CallCount("update"); got != 1 {
		t.Fatalf("updates: got %d, want 1", got)
	}
	if n := fx.fake.Count(models.KindProfile); n != 1 {
		t.Fatalf("remote profiles: got %d, want 1", n)
	}
	data, ok := fx.fake.Object(models.KindProfile, "R-1")
	if !ok {
		t.Fatal("remote object missing")
	}
	if fields := decodePayload(t, data); fields["weight"] != 71.0 {
		t.Fatalf("remote state: got %v", fields)
	}
}

func TestProcessQueue_AppliesUnmappedUpdateAsCreate(t *testing.T) {
	fx := newFixture(t)
	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionUpdate,
		json.RawMessage(`{"name":"Arun","weight":71}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Applied != 1 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if got := fx.fake.CallCount("create"); got != 1 {
		t.Fatalf("creates: got %d, want 1", got)
	}
	if got := fx.fake.CallCount("update"); got != 0 {
		t.Fatalf("updates: got %d, want 0", got)
	}
	if _, ok := fx.maps.RemoteID(models.KindProfile, "L1"); !ok {
		t.Fatal("create replay never registered a mapping")
	}
}

func TestProcessQueue_DeleteUsesRemoteID(t *testing.T) {
	fx := newFixture(t)
	if err := fx.maps.Put(models.KindProfile, "L1", "R-1"); err != nil {
		t.Fatalf("put mapping: %v", err)
	}
	fx.fake.Seed(models.KindProfile, "R-1", `{"name":"Arun"}`)

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionDelete, nil))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Applied != 1 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if n := fx.fake.Count(models.KindProfile); n != 0 {
		t.Fatalf("remote profiles after delete: got %d, want 0", n)
	}
	calls := fx.fake.Calls()
	if len(calls) != 1 || calls[0].Op != "delete" || calls[0].RemoteID != "R-1" {
		t.Fatalf("remote calls: got %+v", calls)
	}
}

func TestProcessQueue_ClassifiesPermanentFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"rejected", remote.ErrInvalid, ReasonRejected},
		{"conflict", remote.ErrConflict, ReasonConflict},
		{"missing", remote.ErrNotFound, ReasonMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.fake.OnOp = func(remotetest.Call) error { return tc.err }
			fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate,
				json.RawMessage(`{"name":"Arun"}`)))

			rep, err := fx.engine.ProcessQueue(context.Background())
			if err != nil {
				t.Fatalf("drain: %v", err)
			}
			if len(rep.Failures) != 1 || rep.Failures[0].Reason != tc.want {
				t.Fatalf("report: %s", rep.Summary())
			}
			if !errors.Is(rep.Failures[0].Err, tc.err) {
				t.Fatalf("failure err: got %v", rep.Failures[0].Err)
			}
			if n := fx.pendingCount(t); n != 0 {
				t.Fatalf("permanent failure must drop the record, pending %d", n)
			}
		})
	}
}

func TestProcessQueue_ReplacedRecordKeepsFreshRetryBudget(t *testing.T) {
	fx := newFixture(t)

	original := models.NewMutation(models.KindProfile, "L1", models.ActionCreate, json.RawMessage(`{"name":"Arun"}`))
	fx.enqueue(t, original)

	var replacement models.Mutation
	fx.fake.OnOp = func(remotetest.Call) error {
		// A new local edit replaces the record while its create is in
		// flight; the failure below must not charge the replacement.
		replacement = models.NewMutation(models.KindProfile, "L1", models.ActionUpdate, json.RawMessage(`{"weight":72}`))
		if err := fx.queue.Enqueue(replacement); err != nil {
			t.Errorf("enqueue replacement: %v", err)
		}
		return remote.ErrUnavailable
	}

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if rep.Retrying != 0 || len(rep.Failures) != 0 {
		t.Fatalf("report: %s", rep.Summary())
	}

	pending, _ := fx.queue.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending: got %d, want 1", len(pending))
	}
	if pending[0].ID != replacement.ID || pending[0].ID == original.ID {
		t.Fatal("queue should hold the replacement record")
	}
	if pending[0].RetryCount != 0 {
		t.Fatalf("replacement retry count: got %d, want 0", pending[0].RetryCount)
	}
}

func TestProcessQueue_SyncTimeRequiresCleanApply(t *testing.T) {
	fx := newFixture(t)
	fx.fake.OnOp = func(call remotetest.Call) error {
		if call.Kind == models.KindWorkoutSession {
			return remote.ErrUnavailable
		}
		return nil
	}

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate,
		json.RawMessage(`{"name":"Arun"}`)))
	fx.enqueue(t, models.NewMutation(models.KindWorkoutSession, "W1", models.ActionCreate,
		json.RawMessage(`{"profileLocalId":"L1","exerciseId":"squat","date":"2026-08-20"}`)))

	rep, err := fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if rep.Applied != 1 || rep.Retrying != 1 {
		t.Fatalf("first drain report: %s", rep.Summary())
	}
	if at, _ := fx.state.LastSyncAt(); at != nil {
		t.Fatal("sync time advanced on a pass with transient failures")
	}

	fx.fake.OnOp = nil
	rep, err = fx.engine.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if rep.Applied != 1 {
		t.Fatalf("second drain report: %s", rep.Summary())
	}
	if at, _ := fx.state.LastSyncAt(); at == nil {
		t.Fatal("sync time should advance after a clean pass")
	}
}

func TestProcessQueue_SingleFlightCoalescesTriggers(t *testing.T) {
	fx := newFixture(t)

	started := make(chan struct{})
	gate := make(chan struct{})
	var once gosync.Once
	fx.fake.OnOp = func(remotetest.Call) error {
		once.Do(func() {
			close(started)
			<-gate
		})
		return nil
	}

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate, json.RawMessage(`{"name":"A"}`)))

	var rep *Report
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep, runErr = fx.engine.ProcessQueue(context.Background())
	}()
	<-started

	if _, err := fx.engine.ProcessQueue(context.Background()); !errors.Is(err, ErrSyncInFlight) {
		t.Fatalf("concurrent drain: got %v, want ErrSyncInFlight", err)
	}
	// Work arriving mid-pass is picked up by the coalesced rerun.
	fx.enqueue(t, models.NewMutation(models.KindProfile, "L2", models.ActionCreate, json.RawMessage(`{"name":"B"}`)))

	close(gate)
	<-done

	if runErr != nil {
		t.Fatalf("drain: %v", runErr)
	}
	if rep.Passes != 2 {
		t.Fatalf("passes: got %d, want 2", rep.Passes)
	}
	if rep.Applied != 2 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after coalesced drain: got %d, want 0", n)
	}
}

func TestRecord_OfflineQueuesWithoutRemoteCalls(t *testing.T) {
	fx := newFixture(t)
	manual := connectivity.NewManual(false)
	engine := NewEngine(Config{
		Queue:    fx.queue,
		Mappings: fx.maps,
		Remote:   fx.fake,
		State:    fx.state,
		Provider: manual,
		Owner:    "acct-1",
	})

	rep, err := engine.Record(context.Background(),
		models.NewMutation(models.KindProfile, "L1", models.ActionCreate, json.RawMessage(`{"name":"Arun"}`)))
	if err != nil {
		t.Fatalf("record offline: %v", err)
	}
	if !rep.Empty() {
		t.Fatalf("offline report: %s", rep.Summary())
	}
	if got := len(fx.fake.Calls()); got != 0 {
		t.Fatalf("remote calls while offline: got %d, want 0", got)
	}
	if n := fx.pendingCount(t); n != 1 {
		t.Fatalf("pending: got %d, want 1", n)
	}

	manual.SetOnline(true)
	rep, err = engine.Record(context.Background(),
		models.NewMutation(models.KindProfile, "L2", models.ActionCreate, json.RawMessage(`{"name":"Mira"}`)))
	if err != nil {
		t.Fatalf("record online: %v", err)
	}
	if rep.Applied != 2 {
		t.Fatalf("online report: %s", rep.Summary())
	}
	if n := fx.pendingCount(t); n != 0 {
		t.Fatalf("pending after drain: got %d, want 0", n)
	}
}

func TestProcessQueue_RespectsContextCancellation(t *testing.T) {
	fx := newFixture(t)
	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate, json.RawMessage(`{"name":"Arun"}`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fx.engine.ProcessQueue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("drain: got %v, want context.Canceled", err)
	}
	if n := fx.pendingCount(t); n != 1 {
		t.Fatalf("pending after canceled drain: got %d, want 1", n)
	}
}

func TestStatus_ReportsPendingAndSyncTime(t *testing.T) {
	fx := newFixture(t)

	st, err := fx.engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Pending != 0 || st.LastSyncAt != nil {
		t.Fatalf("fresh status: %+v", st)
	}

	fx.enqueue(t, models.NewMutation(models.KindProfile, "L1", models.ActionCreate, json.RawMessage(`{"name":"Arun"}`)))
	st, _ = fx.engine.Status()
	if st.Pending != 1 {
		t.Fatalf("pending: got %d, want 1", st.Pending)
	}

	if _, err := fx.engine.ProcessQueue(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	st, _ = fx.engine.Status()
	if st.Pending != 0 || st.LastSyncAt == nil {
		t.Fatalf("status after drain: %+v", st)
	}
}
