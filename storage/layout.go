package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"deskos/window"
)

// LayoutDBName is the sqlite file created inside the data directory.
const LayoutDBName = "layout.db"

// WindowLayout is the part of a window record that survives restarts.
type WindowLayout struct {
	WindowID    string
	Position    window.Position
	Size        window.Size
	IsMaximized bool
	UpdatedAt   time.Time
}

// PluginSession records whether a plugin's window was open at shutdown and
// the last state its components reported.
type PluginSession struct {
	PluginID  string
	WasOpen   bool
	State     map[string]any
	UpdatedAt time.Time
}

type LayoutStorage struct {
	db *sql.DB
}

func NewLayoutStorage(dataDir string) (*LayoutStorage, error) {
	dbPath := filepath.Join(dataDir, LayoutDBName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &LayoutStorage{db: db}
	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return storage, nil
}

func (ls *LayoutStorage) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS window_layouts (
		window_id TEXT PRIMARY KEY,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS plugin_sessions (
		plugin_id TEXT PRIMARY KEY,
		was_open INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME NOT NULL
	);
	`

	if _, err := ls.db.Exec(schema); err != nil {
		return err
	}

	if err := ls.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// migrateSchema adds columns introduced after the first layout databases
// were written.
func (ls *LayoutStorage) migrateSchema() error {
	hasMaximized, err := ls.columnExists("window_layouts", "is_maximized")
	if err != nil {
		return fmt.Errorf("failed to check for is_maximized column: %w", err)
	}
	if !hasMaximized {
		if _, err := ls.db.Exec(`ALTER TABLE window_layouts ADD COLUMN is_maximized INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add is_maximized column: %w", err)
		}
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (ls *LayoutStorage) columnExists(tableName, columnName string) (bool, error) {
	rows, err := ls.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SaveLayout stores rec's geometry. A maximized window keeps its
// restored geometry so the next run can un-maximize to it.
func (ls *LayoutStorage) SaveLayout(rec window.Record) error {
	pos, size := rec.Position, rec.Size
	if rec.IsMaximized {
		if rec.PreviousPosition != nil {
			pos = *rec.PreviousPosition
		}
		if rec.PreviousSize != nil {
			size = *rec.PreviousSize
		}
	}

	query := `
	INSERT OR REPLACE INTO window_layouts (window_id, x, y, width, height, is_maximized, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ls.db.Exec(query,
		rec.ID,
		pos.X,
		pos.Y,
		size.Width,
		size.Height,
		rec.IsMaximized,
		time.Now().UTC(),
	)
	return err
}

// LoadLayout returns nil, nil when no layout was saved for windowID.
func (ls *LayoutStorage) LoadLayout(windowID string) (*WindowLayout, error) {
	query := `
	SELECT window_id, x, y, width, height, is_maximized, updated_at
	FROM window_layouts
	WHERE window_id = ?
	`

	var l WindowLayout
	err := ls.db.QueryRow(query, windowID).Scan(
		&l.WindowID,
		&l.Position.X,
		&l.Position.Y,
		&l.Size.Width,
		&l.Size.Height,
		&l.IsMaximized,
		&l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (ls *LayoutStorage) ListLayouts() ([]WindowLayout, error) {
	rows, err := ls.db.Query(`
	SELECT window_id, x, y, width, height, is_maximized, updated_at
	FROM window_layouts
	ORDER BY window_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var layouts []WindowLayout
	for rows.Next() {
		var l WindowLayout
		if err := rows.Scan(&l.WindowID, &l.Position.X, &l.Position.Y, &l.Size.Width, &l.Size.Height, &l.IsMaximized, &l.UpdatedAt); err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}
	return layouts, rows.Err()
}

func (ls *LayoutStorage) DeleteLayout(windowID string) error {
	_, err := ls.db.Exec(`DELETE FROM window_layouts WHERE window_id = ?`, windowID)
	return err
}

func (ls *LayoutStorage) SaveSession(s PluginSession) error {
	state := s.State
	if state == nil {
		state = map[string]any{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", s.PluginID, err)
	}

	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err = ls.db.Exec(`
	INSERT OR REPLACE INTO plugin_sessions (plugin_id, was_open, state, updated_at)
	VALUES (?, ?, ?, ?)
	`, s.PluginID, s.WasOpen, string(data), updated)
	return err
}

// LoadSession returns nil, nil when the plugin has no saved session.
func (ls *LayoutStorage) LoadSession(pluginID string) (*PluginSession, error) {
	var (
		s     PluginSession
		state string
	)
	err := ls.db.QueryRow(`
	SELECT plugin_id, was_open, state, updated_at
	FROM plugin_sessions
	WHERE plugin_id = ?
	`, pluginID).Scan(&s.PluginID, &s.WasOpen, &state, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &s.State); err != nil {
		return nil, fmt.Errorf("failed to decode state for %s: %w", pluginID, err)
	}
	return &s, nil
}

// OpenPlugins lists plugins whose window was open when last saved.
func (ls *LayoutStorage) OpenPlugins() ([]string, error) {
	rows, err := ls.db.Query(`SELECT plugin_id FROM plugin_sessions WHERE was_open = 1 ORDER BY plugin_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (ls *LayoutStorage) Close() error {
	if ls.db != nil {
		return ls.db.Close()
	}
	return nil
}
