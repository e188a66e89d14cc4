// Package syncharness runs the whole client stack against a SQLite-backed
// fake of the sync service: real store on disk, real engine, real HTTP
// client, httptest transport. Scenarios cover what unit tests cannot see
// in isolation, like restarts, lost responses, and multi-device
// convergence.
package syncharness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/caleb/fittrack/internal/connectivity"
	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/remote"
	"github.com/caleb/fittrack/internal/store"
	fitsync "github.com/caleb/fittrack/internal/sync"
)

// Client is one simulated device: its own database directory and engine,
// sharing the account with the other clients.
type Client struct {
	Dir    string
	DB     *store.DB
	Engine *fitsync.Engine
	Net    *connectivity.Manual
	APIKey string
}

// Harness wires numbered clients against one fake server for one account.
type Harness struct {
	t          *testing.T
	Server     *Server
	HTTP       *httptest.Server
	Account    string
	APIKey     string
	Clients    map[string]*Client
	clientKeys []string
}

// NewHarness starts the fake service and numClients devices, each on its own
// database directory. Clients start offline.
func NewHarness(t *testing.T, numClients int) *Harness {
	t.Helper()

	h := &Harness{
		t:       t,
		Account: "acct-1",
		APIKey:  "test-key",
		Clients: make(map[string]*Client),
	}
	h.Server = NewServer(t, h.APIKey)
	h.HTTP = httptest.NewServer(h.Server)
	t.Cleanup(h.HTTP.Close)

	for i := 0; i < numClients; i++ {
		clientID := "client-" + string(rune('A'+i))
		dir := t.TempDir()
		db, err := store.Initialize(dir)
		if err != nil {
			t.Fatalf("initialize %s store: %v", clientID, err)
		}
		h.Clients[clientID] = h.buildClient(db, dir, h.APIKey)
		h.clientKeys = append(h.clientKeys, clientID)
		t.Cleanup(func() { h.Clients[clientID].DB.Close() })
	}
	return h
}

// buildClient assembles an engine around an open store, the way the CLI
// does on every invocation.
func (h *Harness) buildClient(db *store.DB, dir, apiKey string) *Client {
	h.t.Helper()

	maps, err := fitsync.LoadMappings(db.IDMappings())
	if err != nil {
		h.t.Fatalf("load id map: %v", err)
	}
	net := connectivity.NewManual(false)
	engine := fitsync.NewEngine(fitsync.Config{
		Queue:    fitsync.NewQueue(db.MutationQueue(), maps),
		Mappings: maps,
		Remote:   remote.NewClient(h.HTTP.URL, apiKey),
		State:    db.SyncState(),
		Entities: db.EntitySource(),
		Provider: net,
		Owner:    h.Account,
	})
	return &Client{Dir: dir, DB: db, Engine: engine, Net: net, APIKey: apiKey}
}

func (h *Harness) client(clientID string) *Client {
	h.t.Helper()
	c, ok := h.Clients[clientID]
	if !ok {
		h.t.Fatalf("unknown client: %s", clientID)
	}
	return c
}

// Restart closes a client's database and reopens everything from disk, as a
// process exit and relaunch would.
func (h *Harness) Restart(clientID string) {
	h.t.Helper()
	c := h.client(clientID)
	if err := c.DB.Close(); err != nil {
		h.t.Fatalf("close %s: %v", clientID, err)
	}
	db, err := store.Open(c.Dir)
	if err != nil {
		h.t.Fatalf("reopen %s: %v", clientID, err)
	}
	h.Clients[clientID] = h.buildClient(db, c.Dir, c.APIKey)
}

// SetAPIKey swaps the key a client presents, rebuilding its engine on the
// same open store.
func (h *Harness) SetAPIKey(clientID, apiKey string) {
	h.t.Helper()
	c := h.client(clientID)
	h.Clients[clientID] = h.buildClient(c.DB, c.Dir, apiKey)
}

// Connect flips the client's connectivity to online.
func (h *Harness) Connect(clientID string) {
	h.client(clientID).Net.SetOnline(true)
}

// Disconnect flips the client's connectivity to offline.
func (h *Harness) Disconnect(clientID string) {
	h.client(clientID).Net.SetOnline(false)
}

// AddProfile applies a profile create locally and records it for sync.
func (h *Harness) AddProfile(clientID, name string, weight float64) string {
	h.t.Helper()
	c := h.client(clientID)

	localID := models.NewLocalID()
	p := models.Profile{Name: name, Weight: weight}
	if err := c.DB.CreateProfile(localID, p); err != nil {
		h.t.Fatalf("create profile: %v", err)
	}
	h.record(c, models.KindProfile, localID, models.ActionCreate, p)
	return localID
}

// SetWeight applies a profile weight update locally and records it.
func (h *Harness) SetWeight(clientID, profileID string, weight float64) {
	h.t.Helper()
	c := h.client(clientID)

	rec, err := c.DB.GetProfile(profileID)
	if err != nil {
		h.t.Fatalf("get profile: %v", err)
	}
	if rec == nil {
		h.t.Fatalf("profile %s not found", profileID)
	}
	rec.Profile.Weight = weight
	if err := c.DB.UpdateProfile(profileID, rec.Profile); err != nil {
		h.t.Fatalf("update profile: %v", err)
	}
	h.record(c, models.KindProfile, profileID, models.ActionUpdate, rec.Profile)
}

// RemoveProfile deletes a profile locally and records the delete.
func (h *Harness) RemoveProfile(clientID, profileID string) {
	h.t.Helper()
	c := h.client(clientID)

	if err := c.DB.DeleteProfile(profileID); err != nil {
		h.t.Fatalf("delete profile: %v", err)
	}
	h.record(c, models.KindProfile, profileID, models.ActionDelete, nil)
}

// LogWorkout applies a workout create locally and records it for sync.
func (h *Harness) LogWorkout(clientID, profileID, exercise, date string, sets []models.SetEntry) string {
	h.t.Helper()
	c := h.client(clientID)

	localID := models.NewLocalID()
	w := models.WorkoutSession{
		ProfileLocalID: profileID,
		ExerciseID:     exercise,
		Date:           date,
		Sets:           sets,
	}
	if err := c.DB.CreateWorkout(localID, w); err != nil {
		h.t.Fatalf("create workout: %v", err)
	}
	h.record(c, models.KindWorkoutSession, localID, models.ActionCreate, w)
	return localID
}

// RemoveWorkout deletes a workout locally and records the delete.
func (h *Harness) RemoveWorkout(clientID, workoutID string) {
	h.t.Helper()
	c := h.client(clientID)

	if err := c.DB.DeleteWorkout(workoutID); err != nil {
		h.t.Fatalf("delete workout: %v", err)
	}
	h.record(c, models.KindWorkoutSession, workoutID, models.ActionDelete, nil)
}

func (h *Harness) record(c *Client, kind models.EntityKind, localID string, action models.Action, payload any) {
	h.t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal payload: %v", err)
		}
		raw = data
	}
	if _, err := c.Engine.Record(context.Background(), models.NewMutation(kind, localID, action, raw)); err != nil {
		h.t.Fatalf("record %s %s: %v", action, kind, err)
	}
}

// Drain runs one queue drain and returns the report.
func (h *Harness) Drain(clientID string) *fitsync.Report {
	h.t.Helper()
	rep, err := h.client(clientID).Engine.ProcessQueue(context.Background())
	if err != nil {
		h.t.Fatalf("drain %s: %v", clientID, err)
	}
	return rep
}

// PullMerge pulls the account's remote state and installs it wholesale, the
// way `fittrack sync --pull` does.
func (h *Harness) PullMerge(clientID string) *fitsync.Snapshot {
	h.t.Helper()
	c := h.client(clientID)
	snap, err := c.Engine.Pull(context.Background())
	if err != nil {
		h.t.Fatalf("pull %s: %v", clientID, err)
	}
	if err := c.DB.ReplaceEntities(snap.Profiles, snap.Workouts); err != nil {
		h.t.Fatalf("install pulled entities %s: %v", clientID, err)
	}
	return snap
}

// Sync connects, drains, then pulls and merges: the full `fittrack sync`
// path.
func (h *Harness) Sync(clientID string) {
	h.t.Helper()
	h.Connect(clientID)
	h.Drain(clientID)
	h.PullMerge(clientID)
}

// Pending returns the client's queued mutation count.
func (h *Harness) Pending(clientID string) int {
	h.t.Helper()
	st, err := h.client(clientID).Engine.Status()
	if err != nil {
		h.t.Fatalf("status %s: %v", clientID, err)
	}
	return st.Pending
}

// LastSyncAt returns the client's recorded sync time, nil if it never
// synced.
func (h *Harness) LastSyncAt(clientID string) *time.Time {
	h.t.Helper()
	st, err := h.client(clientID).Engine.Status()
	if err != nil {
		h.t.Fatalf("status %s: %v", clientID, err)
	}
	return st.LastSyncAt
}

// ServerCount returns the rows in a server collection for the account.
func (h *Harness) ServerCount(collection string) int {
	h.t.Helper()
	var n int
	err := h.Server.DB.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE account = ?`, collection), h.Account).Scan(&n)
	if err != nil {
		h.t.Fatalf("count server %s: %v", collection, err)
	}
	return n
}

// ServerDocs decodes every stored document in a collection, in insertion
// order, with the server id under "id".
func (h *Harness) ServerDocs(collection string) []map[string]any {
	h.t.Helper()
	rows, err := h.Server.DB.Query(
		fmt.Sprintf(`SELECT id, data FROM %s WHERE account = ? ORDER BY rowid`, collection), h.Account)
	if err != nil {
		h.t.Fatalf("query server %s: %v", collection, err)
	}
	defer rows.Close()

	var docs []map[string]any
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			h.t.Fatalf("scan server %s: %v", collection, err)
		}
		doc := make(map[string]any)
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			h.t.Fatalf("decode server %s document: %v", collection, err)
		}
		doc["id"] = id
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		h.t.Fatalf("iterate server %s: %v", collection, err)
	}
	return docs
}

// RemoteID resolves a client's local id to the id the server assigned, or ""
// when the entity never synced.
func (h *Harness) RemoteID(clientID string, kind models.EntityKind, localID string) string {
	h.t.Helper()
	rid, ok := h.client(clientID).Engine.Mappings().RemoteID(kind, localID)
	if !ok {
		return ""
	}
	return rid
}

// remoteView renders a client's entity state keyed by remote identity, the
// only identity shared across clients. Unsynced entities render under a
// placeholder and so can never compare equal between two clients.
func (h *Harness) remoteView(clientID string) string {
	h.t.Helper()
	c := h.client(clientID)

	var lines []string
	profiles, err := c.DB.ListProfiles()
	if err != nil {
		h.t.Fatalf("list %s profiles: %v", clientID, err)
	}
	for _, rec := range profiles {
		rid := h.RemoteID(clientID, models.KindProfile, rec.LocalID)
		if rid == "" {
			rid = "(unsynced " + rec.LocalID + ")"
		}
		lines = append(lines, fmt.Sprintf("profile %s name=%s weight=%v",
			rid, rec.Profile.Name, rec.Profile.Weight))
	}

	workouts, err := c.DB.ListWorkouts("")
	if err != nil {
		h.t.Fatalf("list %s workouts: %v", clientID, err)
	}
	for _, rec := range workouts {
		rid := h.RemoteID(clientID, models.KindWorkoutSession, rec.LocalID)
		if rid == "" {
			rid = "(unsynced " + rec.LocalID + ")"
		}
		parent := h.RemoteID(clientID, models.KindProfile, rec.Workout.ProfileLocalID)
		sets, _ := json.Marshal(rec.Workout.Sets)
		lines = append(lines, fmt.Sprintf("workout %s profile=%s exercise=%s date=%s sets=%s notes=%s",
			rid, parent, rec.Workout.ExerciseID, rec.Workout.Date, sets, rec.Workout.Notes))
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// AssertConverged verifies every client renders identical entity state.
func (h *Harness) AssertConverged() {
	h.t.Helper()
	if len(h.clientKeys) < 2 {
		return
	}
	refID := h.clientKeys[0]
	ref := h.remoteView(refID)
	for _, clientID := range h.clientKeys[1:] {
		view := h.remoteView(clientID)
		if view != ref {
			h.t.Fatalf("DIVERGENCE between %s and %s:\n--- %s ---\n%s\n--- %s ---\n%s",
				refID, clientID, refID, ref, clientID, view)
		}
	}
}
