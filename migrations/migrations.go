// Package migrations embeds the SQL schema and applies it in version order.
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

//go:embed *.sql
var files embed.FS

// advisoryLockID serialises concurrent migrators.
const advisoryLockID = 7462839

// File is one versioned migration.
type File struct {
	Version  string
	Name     string
	SQL      string
	Checksum string
}

// Discover lists the .sql files of fsys ordered by name. Names must look like
// NNNN_description.sql and versions must be unique.
func Discover(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read dir: %w", err)
	}
	seen := make(map[string]string)
	var out []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, ok := strings.Cut(entry.Name(), "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migrations: %s: expected NNNN_description.sql", entry.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations: version %s used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()
		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(body)
		out = append(out, File{Version: version, Name: entry.Name(), SQL: string(body), Checksum: hex.EncodeToString(sum[:])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Embedded returns the migrations compiled into the binary.
func Embedded() ([]File, error) {
	return Discover(files)
}

// Apply runs every pending migration, each in its own transaction. Applied
// versions whose checksum changed are rejected.
func Apply(ctx context.Context, pool *pgxpool.Pool, list []File, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("migrations: acquire: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockID).Scan(&locked); err != nil {
		return fmt.Errorf("migrations: advisory lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("migrations: another migrator is running")
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockID)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("migrations: bootstrap: %w", err)
	}

	for _, file := range list {
		var existing string
		err := conn.QueryRow(ctx, `SELECT checksum FROM schema_migrations WHERE version = $1`, file.Version).Scan(&existing)
		switch {
		case err == nil:
			if existing != file.Checksum {
				return fmt.Errorf("migrations: %s: checksum mismatch", file.Name)
			}
			logger.Debug("migration already applied", slog.String("file", file.Name))
			continue
		case !db.IsNoRows(err):
			return fmt.Errorf("migrations: lookup %s: %w", file.Name, err)
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, file.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)`,
				file.Version, file.Name, file.Checksum)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrations: apply %s: %w", file.Name, err)
		}
		logger.Info("migration applied", slog.String("file", file.Name))
	}
	return nil
}
