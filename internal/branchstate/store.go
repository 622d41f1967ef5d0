// Package branchstate persists the last indexed head commit of every
// repository branch.
package branchstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS git_branch_state (
	repository_uri TEXT NOT NULL,
	branch         TEXT NOT NULL,
	head           TEXT NOT NULL,
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (repository_uri, branch)
)`

// Store is a SQLite backed table of (repository, branch) -> head commit.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// a single connection keeps pragmas and writes serialized
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// FindByRepository returns the stored heads of all branches of a repository.
func (s *Store) FindByRepository(ctx context.Context, repositoryURI string) ([]domain.BranchHead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT branch, head FROM git_branch_state WHERE repository_uri = ? ORDER BY branch`,
		repositoryURI)
	if err != nil {
		return nil, fmt.Errorf("failed to query branch state: %w", err)
	}
	defer rows.Close()

	var heads []domain.BranchHead
	for rows.Next() {
		h := domain.BranchHead{RepositoryURI: repositoryURI}
		if err := rows.Scan(&h.Branch, &h.Head); err != nil {
			return nil, fmt.Errorf("failed to scan branch state: %w", err)
		}
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

// Upsert stores the given heads in one transaction.
func (s *Store) Upsert(ctx context.Context, heads []domain.BranchHead) error {
	if len(heads) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO git_branch_state (repository_uri, branch, head, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (repository_uri, branch)
			DO UPDATE SET head = excluded.head, updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, h := range heads {
			if _, err := stmt.ExecContext(ctx, h.RepositoryURI, h.Branch, h.Head, now); err != nil {
				return fmt.Errorf("failed to store head of %s@%s: %w", h.RepositoryURI, h.Branch, err)
			}
		}
		return nil
	})
}

// Delete removes the rows of the given branches of a repository.
func (s *Store) Delete(ctx context.Context, repositoryURI string, branches []string) error {
	if len(branches) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range branches {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM git_branch_state WHERE repository_uri = ? AND branch = ?`,
				repositoryURI, b); err != nil {
				return fmt.Errorf("failed to delete head of %s@%s: %w", repositoryURI, b, err)
			}
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
