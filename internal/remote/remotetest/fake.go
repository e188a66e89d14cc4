// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/remote"
)

// Call records one operation the fake received, in order.
type Call struct {
	Op       string
	Kind     models.EntityKind
	Owner    string
	RemoteID string
	Payload  json.RawMessage
}

// Fake is an in-memory remote.Store. Failure behavior is scripted through
// OnOp: returning a non-nil error fails the operation with it. OnOp runs
// outside the fake's lock, so tests may block in it to gate the engine.
type Fake struct {
	IDFunc func(kind models.EntityKind) string
	OnOp   func(call Call) error

	mu      sync.Mutex
	nextID  int
	objects map[models.EntityKind][]remote.Object
	calls   []Call
}

var _ remote.Store = (*Fake)(nil)

// New creates an empty fake.
func New() *Fake {
	return &Fake{objects: make(map[models.EntityKind][]remote.Object)}
}

// Create implements remote.Store.
func (f *Fake) Create(ctx context.Context, kind models.EntityKind, owner string, payload json.RawMessage) (string, error) {
	call := Call{Op: "create", Kind: kind, Owner: owner, Payload: clone(payload)}
	if err := f.dispatch(call); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("r-%04d", f.nextID)
	if f.IDFunc != nil {
		id = f.IDFunc(kind)
	}
	f.objects[kind] = append(f.objects[kind], remote.Object{ID: id, Data: clone(payload)})
	return id, nil
}

// Update implements remote.Store.
func (f *Fake) Update(ctx context.Context, kind models.EntityKind, owner, remoteID string, payload json.RawMessage) error {
	call := Call{Op: "update", Kind: kind, Owner: owner, RemoteID: remoteID, Payload: clone(payload)}
	if err := f.dispatch(call); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, obj := range f.objects[kind] {
		if obj.ID == remoteID {
			f.objects[kind][i].Data = clone(payload)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s", remote.ErrNotFound, kind, remoteID)
}

// Delete implements remote.Store.
func (f *Fake) Delete(ctx context.Context, kind models.EntityKind, owner, remoteID string) error {
	call := Call{Op: "delete", Kind: kind, Owner: owner, RemoteID: remoteID}
	if err := f.dispatch(call); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, obj := range f.objects[kind] {
		if obj.ID == remoteID {
			f.objects[kind] = append(f.objects[kind][:i], f.objects[kind][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s", remote.ErrNotFound, kind, remoteID)
}

// List implements remote.Store.
func (f *Fake) List(ctx context.Context, kind models.EntityKind, owner string) ([]remote.Object, error) {
	call := Call{Op: "list", Kind: kind, Owner: owner}
	if err := f.dispatch(call); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Object, 0, len(f.objects[kind]))
	for _, obj := range f.objects[kind] {
		out = append(out, remote.Object{ID: obj.ID, Data: clone(obj.Data)})
	}
	return out, nil
}

// Seed inserts an object directly, bypassing Calls and OnOp.
func (f *Fake) Seed(kind models.EntityKind, remoteID string, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[kind] = append(f.objects[kind], remote.Object{ID: remoteID, Data: json.RawMessage(data)})
}

// Count returns the number of stored objects of a kind.
func (f *Fake) Count(kind models.EntityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects[kind])
}

// Object returns a stored object's data by remote id.
func (f *Fake) Object(kind models.EntityKind, remoteID string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range f.objects[kind] {
		if obj.ID == remoteID {
			return clone(obj.Data), true
		}
	}
	return nil, false
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many calls of the given op were recorded.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *Fake) dispatch(call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook := f.OnOp
	f.mu.Unlock()
	if hook != nil {
		return hook(call)
	}
	return nil
}

func clone(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}
