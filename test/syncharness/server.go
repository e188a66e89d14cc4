package syncharness

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// serverSchema holds the fake service's tables. The natural key on workouts
// is what lets a replayed create converge on the existing row instead of
// duplicating it.
const serverSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    account TEXT NOT NULL,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profiles_account ON profiles(account);

CREATE TABLE IF NOT EXISTS workouts (
    id TEXT PRIMARY KEY,
    account TEXT NOT NULL,
    profile_id TEXT NOT NULL DEFAULT '',
    exercise_id TEXT NOT NULL,
    date TEXT NOT NULL,
    data TEXT NOT NULL,
    UNIQUE(account, profile_id, exercise_id, date)
);
CREATE INDEX IF NOT EXISTS idx_workouts_account ON workouts(account);
`

// Server is a SQLite-backed stand-in for the sync service. It speaks the
// real wire contract (bearer auth, flat JSON documents, {"id"} create
// responses, {"code","message"} errors), so engines reach it through the
// production HTTP client rather than a doubled one.
type Server struct {
	DB     *sql.DB
	APIKey string

	mu       sync.Mutex // serializes writes (SQLite single-writer)
	outage   atomic.Bool
	dropped  atomic.Int64
	requests atomic.Int64
}

var serverSeq atomic.Int64

// NewServer opens the fake service on an in-memory database. Each server
// gets its own named shared-cache DB, pinned by a single pooled connection
// so it survives for the test's lifetime.
func NewServer(t *testing.T, apiKey string) *Server {
	t.Helper()

	dsn := fmt.Sprintf("file:fitserver%d?mode=memory&cache=shared&_busy_timeout=5000", serverSeq.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(serverSchema); err != nil {
		t.Fatalf("create server schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &Server{DB: db, APIKey: apiKey}
}

// SetOutage flips the whole service in and out of a 503 outage.
func (s *Server) SetOutage(down bool) {
	s.outage.Store(down)
}

// DropResponses makes the next n mutating requests apply server-side but
// answer 503, as if the response was lost on the wire.
func (s *Server) DropResponses(n int) {
	s.dropped.Store(int64(n))
}

// Requests returns how many requests the server has seen.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	if s.outage.Load() {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service is down for maintenance")
		return
	}
	if r.URL.Path == "/v1/ping" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.APIKey {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
		return
	}

	// /v1/accounts/{account}/{collection}[/{id}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || len(parts) > 5 || parts[0] != "v1" || parts[1] != "accounts" {
		writeError(w, http.StatusNotFound, "not_found", "unknown path "+r.URL.Path)
		return
	}
	account, collection := parts[2], parts[3]
	if collection != "profiles" && collection != "workouts" {
		writeError(w, http.StatusNotFound, "not_found", "unknown collection "+collection)
		return
	}
	var id string
	if len(parts) == 5 {
		id = parts[4]
	}

	switch {
	case r.Method == http.MethodPost && id == "":
		s.handleCreate(w, r, account, collection)
	case r.Method == http.MethodGet && id == "":
		s.handleList(w, account, collection)
	case r.Method == http.MethodPut && id != "":
		s.handleUpdate(w, r, account, collection, id)
	case r.Method == http.MethodDelete && id != "":
		s.handleDelete(w, account, collection, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unsupported route")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, account, collection string) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid", "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	switch collection {
	case "profiles":
		id = newRemoteID()
		_, err = s.DB.Exec(`INSERT INTO profiles (id, account, data) VALUES (?, ?, ?)`,
			id, account, string(body))
	case "workouts":
		key, kerr := workoutKey(body)
		if kerr != nil {
			writeError(w, http.StatusBadRequest, "invalid", kerr.Error())
			return
		}
		id, err = s.upsertWorkout(account, key, body)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
		return
	}

	if s.loseResponse(w) {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, account, collection, id string) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid", "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	switch collection {
	case "profiles":
		res, err = s.DB.Exec(`UPDATE profiles SET data = ? WHERE id = ? AND account = ?`,
			string(body), id, account)
	case "workouts":
		key, kerr := workoutKey(body)
		if kerr != nil {
			writeError(w, http.StatusBadRequest, "invalid", kerr.Error())
			return
		}
		res, err = s.DB.Exec(
			`UPDATE workouts SET profile_id = ?, exercise_id = ?, date = ?, data = ? WHERE id = ? AND account = ?`,
			key.ProfileID, key.ExerciseID, key.Date, string(body), id, account)
	}
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			writeError(w, http.StatusConflict, "conflict", "another workout holds that profile/exercise/date")
			return
		}
		writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "not_found", collection+" "+id+" not found")
		return
	}

	if s.loseResponse(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, account, collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.DB.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND account = ?`, collection), id, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "not_found", collection+" "+id+" not found")
		return
	}

	if s.loseResponse(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, account, collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.DB.Query(
		fmt.Sprintf(`SELECT id, data FROM %s WHERE account = ? ORDER BY rowid`, collection), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
		return
	}
	defer rows.Close()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
			return
		}
		doc, err := injectID(id, []byte(data))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
			return
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// workoutNaturalKey is how the service recognizes a session it has already
// stored: one workout per (profile, exercise, date) per account.
type workoutNaturalKey struct {
	ProfileID  string `json:"profileId"`
	ExerciseID string `json:"exerciseId"`
	Date       string `json:"date"`
}

func workoutKey(body []byte) (workoutNaturalKey, error) {
	var key workoutNaturalKey
	if err := json.Unmarshal(body, &key); err != nil {
		return key, fmt.Errorf("decode workout: %v", err)
	}
	if key.ExerciseID == "" || key.Date == "" {
		return key, fmt.Errorf("workout missing exerciseId or date")
	}
	return key, nil
}

// upsertWorkout inserts a workout, or refreshes the existing row when the
// account already has one for the same (profile, exercise, date). The id of
// the surviving row is returned either way, so a client replaying a create
// whose response it never saw adopts the original id.
func (s *Server) upsertWorkout(account string, key workoutNaturalKey, body []byte) (string, error) {
	_, err := s.DB.Exec(`
		INSERT INTO workouts (id, account, profile_id, exercise_id, date, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, profile_id, exercise_id, date) DO UPDATE SET data = excluded.data`,
		newRemoteID(), account, key.ProfileID, key.ExerciseID, key.Date, string(body))
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRow(
		`SELECT id FROM workouts WHERE account = ? AND profile_id = ? AND exercise_id = ? AND date = ?`,
		account, key.ProfileID, key.ExerciseID, key.Date).Scan(&id)
	return id, err
}

// loseResponse burns one dropped-response token, answering 503 after the
// write has already been applied.
func (s *Server) loseResponse(w http.ResponseWriter) bool {
	if n := s.dropped.Load(); n > 0 {
		s.dropped.Store(n - 1)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "response lost")
		return true
	}
	return false
}

// injectID returns the stored document with the server-assigned id added as
// a top-level field, the shape clients expect from a list.
func injectID(id string, data []byte) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	fields["id"] = quoted
	return json.Marshal(fields)
}

// newRemoteID mints a server-side identifier.
func newRemoteID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "srv-" + hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
