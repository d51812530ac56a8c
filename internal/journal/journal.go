// Package journal 把 gateway 事件和 CLI 操作记录到本地 SQLite，
// 供 `lantern journal` 查询、过滤和清理。
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"

	_ "modernc.org/sqlite"
)

// Kind groups entries by where they came from.
type Kind string

const (
	KindGateway Kind = "gateway" // 服务端推送的事件
	KindREST    Kind = "rest"
	KindUpload  Kind = "upload"
	KindSession Kind = "session" // connect, reconnect, close
)

// Entry is one journal row.
type Entry struct {
	ID         int64  `json:"id"`
	Kind       Kind   `json:"kind"`
	Op         string `json:"op"`
	PartyID    string `json:"partyId,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Payload    string `json:"payload,omitempty"`
	Status     string `json:"status"` // "ok" | "error"
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

const columns = "id, kind, op, party_id, room_id, user_id, payload, status, error, duration_ms, created_at"

// Store is a journal backed by a single SQLite file.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open creates the parent directory and the schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	s := &Store{path: path}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	db, err := s.openDB()
	if err != nil {
		return err
	}

	ddl := `CREATE TABLE IF NOT EXISTS entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  op TEXT NOT NULL,
  party_id TEXT NOT NULL DEFAULT '',
  room_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'ok',
  error TEXT NOT NULL DEFAULT '',
  duration_ms INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_entries_kind_op ON entries(kind, op);",
		"CREATE INDEX IF NOT EXISTS idx_entries_room ON entries(room_id);",
		"CREATE INDEX IF NOT EXISTS idx_entries_party ON entries(party_id);",
	} {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	// FTS5 全文搜索索引
	for _, stmt := range []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(payload, error, content=entries, content_rowid=id);`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, payload, error) VALUES (new.id, new.payload, new.error);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, payload, error) VALUES ('delete', old.id, old.payload, old.error);
		END;`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create search index: %w", err)
		}
	}
	return nil
}

func (s *Store) openDB() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout%3d5000&_pragma=journal_mode%3dwal")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	return db, nil
}

// Record inserts e, filling ID and defaults.
func (s *Store) Record(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return err
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Status == "" {
		e.Status = "ok"
		if e.Error != "" {
			e.Status = "error"
		}
	}

	result, err := db.Exec(
		`INSERT INTO entries(kind, op, party_id, room_id, user_id, payload, status, error, duration_ms, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.Kind, e.Op, e.PartyID, e.RoomID, e.UserID, e.Payload, e.Status, e.Error, e.DurationMs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	e.ID, _ = result.LastInsertId()
	return nil
}

// RecordEvent journals a server message, pulling out its party, room and
// user so they can be filtered on.
func (s *Store) RecordEvent(msg gateway.ServerMsg) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.ServerOp(), err)
	}
	e := &Entry{
		Kind:    KindGateway,
		Op:      msg.ServerOp().String(),
		Payload: string(payload),
	}
	party, room, user := eventScope(msg)
	e.PartyID, e.RoomID, e.UserID = idString(party), idString(room), idString(user)
	return s.Record(e)
}

func eventScope(msg gateway.ServerMsg) (party, room, user models.Snowflake) {
	switch m := msg.(type) {
	case *gateway.Ready:
		return 0, 0, m.User.ID
	case *gateway.PartyCreate:
		return m.ID, 0, 0
	case *gateway.PartyUpdate:
		return m.ID, 0, 0
	case *gateway.PartyDelete:
		return m.ID, 0, 0
	case *gateway.MessageCreate:
		return m.PartyID, m.RoomID, m.Author.ID
	case *gateway.MessageUpdate:
		return m.PartyID, m.RoomID, m.Author.ID
	case *gateway.MessageDelete:
		return m.PartyID, m.RoomID, 0
	case *gateway.TypingStart:
		return m.PartyID, m.RoomID, m.UserID
	case *gateway.PresenceUpdate:
		return m.PartyID, 0, m.User.ID
	case *gateway.UserUpdate:
		return 0, 0, m.User.ID
	}
	return 0, 0, 0
}

func idString(id models.Snowflake) string {
	if id == 0 {
		return ""
	}
	return id.String()
}

// Get returns the entry with id, or nil if there is none.
func (s *Store) Get(id int64) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return nil, err
	}
	var e Entry
	err = db.QueryRow("SELECT "+columns+" FROM entries WHERE id=?", id).Scan(scanTargets(&e)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Query filters; zero fields match everything.
type Query struct {
	Kind    Kind
	Op      string
	PartyID string
	RoomID  string
	Status  string
	Search  string    // 全文搜索 payload 和 error
	Since   time.Time // inclusive
	Until   time.Time // inclusive
	Oldest  bool      // oldest first instead of newest first
	Limit   int
	Offset  int
}

// List returns one page of matching entries and the total match count.
func (s *Store) List(q Query) ([]Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return nil, 0, err
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	var (
		conditions []string
		args       []any
	)
	add := func(cond string, v any) {
		conditions = append(conditions, cond)
		args = append(args, v)
	}
	if q.Kind != "" {
		add("kind=?", q.Kind)
	}
	if q.Op != "" {
		add("op=?", q.Op)
	}
	if q.PartyID != "" {
		add("party_id=?", q.PartyID)
	}
	if q.RoomID != "" {
		add("room_id=?", q.RoomID)
	}
	if q.Status != "" {
		add("status=?", q.Status)
	}
	if q.Search != "" {
		add("id IN (SELECT rowid FROM entries_fts WHERE entries_fts MATCH ?)", buildFTSQuery(q.Search))
	}
	if !q.Since.IsZero() {
		add("created_at>=?", q.Since.UTC().Format(time.RFC3339Nano))
	}
	if !q.Until.IsZero() {
		add("created_at<=?", q.Until.UTC().Format(time.RFC3339Nano))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY created_at DESC, id DESC"
	if q.Oldest {
		order = " ORDER BY created_at ASC, id ASC"
	}
	rows, err := db.Query("SELECT "+columns+" FROM entries"+where+order+" LIMIT ? OFFSET ?",
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(scanTargets(&e)...); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Stats summarises the journal.
type Stats struct {
	Total    int            `json:"total"`
	ByKind   map[string]int `json:"byKind"`
	ByOp     map[string]int `json:"byOp"`
	Errors   int            `json:"errors"`
	Earliest string         `json:"earliest"`
	Latest   string         `json:"latest"`
}

// Stats collects counts per kind and op.
func (s *Store) Stats() (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return nil, err
	}
	st := &Stats{ByKind: map[string]int{}, ByOp: map[string]int{}}
	row := db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status='error' THEN 1 ELSE 0 END),0),
		COALESCE(MIN(created_at),''), COALESCE(MAX(created_at),'') FROM entries`)
	if err := row.Scan(&st.Total, &st.Errors, &st.Earliest, &st.Latest); err != nil {
		return nil, err
	}
	if err := groupBy(db, "SELECT kind, COUNT(*) FROM entries GROUP BY kind", st.ByKind); err != nil {
		return nil, err
	}
	if err := groupBy(db, "SELECT op, COUNT(*) FROM entries GROUP BY op", st.ByOp); err != nil {
		return nil, err
	}
	return st, nil
}

// Prune deletes entries older than maxAge and then all but the newest
// maxEntries. Zero disables either limit.
func (s *Store) Prune(maxAge time.Duration, maxEntries int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return 0, err
	}

	var deleted int64
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339Nano)
		res, err := db.Exec("DELETE FROM entries WHERE created_at < ?", cutoff)
		if err != nil {
			return deleted, fmt.Errorf("prune by age: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if maxEntries > 0 {
		res, err := db.Exec(
			"DELETE FROM entries WHERE id NOT IN (SELECT id FROM entries ORDER BY created_at DESC, id DESC LIMIT ?)",
			maxEntries,
		)
		if err != nil {
			return deleted, fmt.Errorf("prune by count: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func scanTargets(e *Entry) []any {
	return []any{&e.ID, &e.Kind, &e.Op, &e.PartyID, &e.RoomID, &e.UserID,
		&e.Payload, &e.Status, &e.Error, &e.DurationMs, &e.CreatedAt}
}

func groupBy(db *sql.DB, query string, target map[string]int) error {
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		target[key] = n
	}
	return rows.Err()
}

// buildFTSQuery quotes each word and ORs them so user input is never FTS syntax.
func buildFTSQuery(input string) string {
	words := strings.Fields(input)
	if len(words) == 0 {
		return `""`
	}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}
