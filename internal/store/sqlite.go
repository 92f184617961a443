package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lodhi7862/bringit-app/model"
)

const timeFormat = time.RFC3339

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent
// directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

var migrations = []string{
	`CREATE TABLE app_users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		avatar_svg TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE TABLE connection_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_user_id TEXT NOT NULL,
		from_user_name TEXT NOT NULL,
		from_user_role TEXT NOT NULL,
		from_user_avatar TEXT NOT NULL DEFAULT '',
		to_user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_requests_to ON connection_requests(to_user_id, status);
	CREATE INDEX idx_requests_from ON connection_requests(from_user_id, status);
	CREATE TABLE device_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_device_tokens_user ON device_tokens(user_id);
	CREATE TABLE family_connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		child_name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(parent_id, child_id)
	);
	CREATE TABLE tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 1,
		note TEXT NOT NULL DEFAULT '',
		assigned_to_id TEXT NOT NULL,
		assigned_to_name TEXT NOT NULL,
		assigned_by_id TEXT NOT NULL,
		assigned_by_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX idx_tasks_assigned_to ON tasks(assigned_to_id);
	CREATE INDEX idx_tasks_assigned_by ON tasks(assigned_by_id);`,
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

// UpsertUser inserts the user or updates the profile fields when the id is
// already registered.
func (s *SQLiteStore) UpsertUser(u *model.AppUser) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO app_users (id, name, role, avatar_svg, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, avatar_svg = excluded.avatar_svg`,
		u.ID, u.Name, string(u.Role), u.AvatarSVG, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(id string) (*model.AppUser, error) {
	var u model.AppUser
	var role, createdAt string
	err := s.db.QueryRow(`SELECT id, name, role, avatar_svg, created_at FROM app_users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &role, &u.AvatarSVG, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u.Role = model.Role(role)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// --- Connection requests ---

func (s *SQLiteStore) CreateConnectionRequest(r *model.ConnectionRequest) error {
	if r.Status == "" {
		r.Status = model.RequestPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT INTO connection_requests
		(from_user_id, from_user_name, from_user_role, from_user_avatar, to_user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.FromUserID, r.FromUserName, string(r.FromUserRole), r.FromUserAvatar,
		r.ToUserID, string(r.Status), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting connection request: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading request id: %w", err)
	}
	return nil
}

const requestColumns = "id, from_user_id, from_user_name, from_user_role, from_user_avatar, to_user_id, status, created_at"

func (s *SQLiteStore) GetConnectionRequest(id int64) (*model.ConnectionRequest, error) {
	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM connection_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting connection request: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListIncomingRequests(userID string) ([]model.ConnectionRequest, error) {
	return s.listRequests(`SELECT `+requestColumns+` FROM connection_requests
		WHERE to_user_id = ? AND status = 'pending' ORDER BY created_at`, userID)
}

func (s *SQLiteStore) ListOutgoingRequests(userID string) ([]model.ConnectionRequest, error) {
	return s.listRequests(`SELECT `+requestColumns+` FROM connection_requests
		WHERE from_user_id = ? AND status = 'pending' ORDER BY created_at`, userID)
}

// ListAcceptedConnections returns accepted requests in which the user is
// either side.
func (s *SQLiteStore) ListAcceptedConnections(userID string) ([]model.ConnectionRequest, error) {
	return s.listRequests(`SELECT `+requestColumns+` FROM connection_requests
		WHERE (from_user_id = ? OR to_user_id = ?) AND status = 'accepted' ORDER BY created_at`, userID, userID)
}

func (s *SQLiteStore) listRequests(query string, args ...any) ([]model.ConnectionRequest, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing connection requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ConnectionRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateConnectionRequestStatus(id int64, status model.RequestStatus) error {
	res, err := s.db.Exec("UPDATE connection_requests SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("updating connection request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteConnectionRequest(id int64) error {
	res, err := s.db.Exec("DELETE FROM connection_requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting connection request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) HasPendingRequest(fromUserID, toUserID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM connection_requests
		WHERE from_user_id = ? AND to_user_id = ? AND status = 'pending'`, fromUserID, toUserID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking pending request: %w", err)
	}
	return n > 0, nil
}

// AreConnected reports whether an accepted request exists between the two
// users, in either direction.
func (s *SQLiteStore) AreConnected(userA, userB string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM connection_requests
		WHERE status = 'accepted'
		AND ((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))`,
		userA, userB, userB, userA).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking connection: %w", err)
	}
	return n > 0, nil
}

// --- Device tokens ---

// UpsertDeviceToken registers a push token, reassigning it when it already
// belongs to another user (same device, new sign-in).
func (s *SQLiteStore) UpsertDeviceToken(t *model.DeviceToken) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO device_tokens (user_id, token, platform, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET user_id = excluded.user_id, platform = excluded.platform, updated_at = excluded.updated_at`,
		t.UserID, t.Token, t.Platform, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting device token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteDeviceToken(token string) error {
	_, err := s.db.Exec("DELETE FROM device_tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("deleting device token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDeviceTokens(userID string) ([]model.DeviceToken, error) {
	rows, err := s.db.Query(`SELECT id, user_id, token, platform, created_at, updated_at
		FROM device_tokens WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing device tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.DeviceToken
	for rows.Next() {
		var t model.DeviceToken
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning device token: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Family connections ---

// CreateFamilyConnection is idempotent on (parent, child).
func (s *SQLiteStore) CreateFamilyConnection(c *model.FamilyConnection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT INTO family_connections (parent_id, child_id, child_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(parent_id, child_id) DO NOTHING`,
		c.ParentID, c.ChildID, c.ChildName, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting family connection: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		c.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListFamilyConnections(parentID string) ([]model.FamilyConnection, error) {
	rows, err := s.db.Query(`SELECT id, parent_id, child_id, child_name, created_at
		FROM family_connections WHERE parent_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing family connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.FamilyConnection
	for rows.Next() {
		var c model.FamilyConnection
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ParentID, &c.ChildID, &c.ChildName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning family connection: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Tasks ---

const taskColumns = "id, item_id, item_name, quantity, note, assigned_to_id, assigned_to_name, assigned_by_id, assigned_by_name, status, created_at, completed_at"

// CreateTask persists a new pending task and fills in the generated id.
func (s *SQLiteStore) CreateTask(t *model.Task) error {
	if t.Quantity < 1 {
		t.Quantity = 1
	}
	t.Status = model.TaskPending
	t.CompletedAt = nil
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT INTO tasks
		(item_id, item_name, quantity, note, assigned_to_id, assigned_to_name, assigned_by_id, assigned_by_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ItemID, t.ItemName, t.Quantity, t.Note,
		t.AssignedToID, t.AssignedToName, t.AssignedByID, t.AssignedByName,
		string(t.Status), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// ListTasksForUser returns tasks assigned to or assigned by the user.
func (s *SQLiteStore) ListTasksForUser(userID string) ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks
		WHERE assigned_to_id = ? OR assigned_by_id = ? ORDER BY created_at`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CompleteTask marks a pending task completed and returns the stored row.
// Completed is terminal: completing an already-completed task is a no-op
// that returns the row unchanged.
func (s *SQLiteStore) CompleteTask(id int64) (*model.Task, error) {
	completedAt := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE tasks SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'pending'`, formatTime(completedAt), id)
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	return s.GetTask(id)
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.ConnectionRequest, error) {
	var r model.ConnectionRequest
	var role, status, createdAt string
	err := row.Scan(&r.ID, &r.FromUserID, &r.FromUserName, &role, &r.FromUserAvatar,
		&r.ToUserID, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	r.FromUserRole = model.Role(role)
	r.Status = model.RequestStatus(status)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&t.ID, &t.ItemID, &t.ItemName, &t.Quantity, &t.Note,
		&t.AssignedToID, &t.AssignedToName, &t.AssignedByID, &t.AssignedByName,
		&status, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.CreatedAt = parseTime(createdAt)
	if completedAt.Valid && completedAt.String != "" {
		ts := parseTime(completedAt.String)
		t.CompletedAt = &ts
	}
	return &t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
