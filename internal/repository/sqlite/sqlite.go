package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rplview/internal/domain"

	_ "modernc.org/sqlite"
)

const backgroundKey = "background"

// Repository implements repository.NodeLayoutStore using SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func dsn(dbPath string) string {
	if dbPath == ":memory:" || strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS node_layout (
		address TEXT PRIMARY KEY,
		x REAL,
		y REAL,
		locked INTEGER,
		name TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := r.db.Exec(schema)
	return err
}

// LoadLayout loads every stored entry and the background
func (r *Repository) LoadLayout(ctx context.Context) (*domain.Layout, error) {
	layout := domain.NewLayout()

	rows, err := r.db.QueryContext(ctx, `SELECT `+layoutColumns+` FROM node_layout ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query layout: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row layoutRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan layout: %w", err)
		}
		addr, entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		layout.Set(addr, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layout: %w", err)
	}

	background, err := r.getMetadata(ctx, backgroundKey)
	if err != nil {
		return nil, err
	}
	layout.Background = background

	return layout, nil
}

// SaveLayout replaces the stored layout in one transaction
func (r *Repository) SaveLayout(ctx context.Context, layout *domain.Layout) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_layout`); err != nil {
		return fmt.Errorf("failed to clear layout: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertLayoutSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare layout insert: %w", err)
	}
	defer stmt.Close()

	background := ""
	if layout != nil {
		background = layout.Background
		for addr, entry := range layout.Nodes {
			if _, err := stmt.ExecContext(ctx, layoutInsertArgs(addr, entry)...); err != nil {
				return fmt.Errorf("failed to insert layout for %s: %w", addr, err)
			}
		}
	}

	if err := setMetadata(ctx, tx, backgroundKey, background); err != nil {
		return err
	}

	return tx.Commit()
}

// GetNodeLayout returns the entry for addr, or nil if none is stored
func (r *Repository) GetNodeLayout(ctx context.Context, addr domain.Address) (*domain.NodeLayout, error) {
	var row layoutRow
	err := r.db.QueryRowContext(ctx,
		`SELECT `+layoutColumns+` FROM node_layout WHERE address = ?`, addr.String(),
	).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query layout for %s: %w", addr, err)
	}

	_, entry, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

const upsertLayoutSQL = `
	INSERT INTO node_layout (address, x, y, locked, name, updated_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(address) DO UPDATE SET
		x = excluded.x,
		y = excluded.y,
		locked = excluded.locked,
		name = excluded.name,
		updated_at = CURRENT_TIMESTAMP
`

// UpsertNodeLayout stores the entry for addr
func (r *Repository) UpsertNodeLayout(ctx context.Context, addr domain.Address, entry domain.NodeLayout) error {
	if _, err := r.db.ExecContext(ctx, upsertLayoutSQL, layoutInsertArgs(addr, entry)...); err != nil {
		return fmt.Errorf("failed to upsert layout for %s: %w", addr, err)
	}
	return nil
}

// DeleteNodeLayout removes the entry for addr
func (r *Repository) DeleteNodeLayout(ctx context.Context, addr domain.Address) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM node_layout WHERE address = ?`, addr.String()); err != nil {
		return fmt.Errorf("failed to delete layout for %s: %w", addr, err)
	}
	return nil
}

// ClearLayout removes every stored entry and the background
func (r *Repository) ClearLayout(ctx context.Context) error {
	return r.SaveLayout(ctx, nil)
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) getMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query metadata %s: %w", key, err)
	}
	return value, nil
}

func setMetadata(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}
