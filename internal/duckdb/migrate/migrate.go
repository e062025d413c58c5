// Package migrate applies the embedded, versioned DuckDB schema of the flow
// store. Migration files are named NNN_description.sql and run once each.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migration is one schema step.
type Migration struct {
	Version  int
	Name     string
	Checksum string
	sql      string
}

// Applied is a migration recorded in schema_migrations.
type Applied struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Status describes the schema of a database.
type Status struct {
	Version int
	Pending []string
	Applied []Applied
}

// Runner applies migrations to a DuckDB database.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	dir  string
}

// NewRunner returns a runner over the migrations embedded in the binary.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, fsys: embedded, dir: "migrations"}
}

// Migrations lists the available migrations in version order.
func (r *Runner) Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migs []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", e.Name(), err)
		}
		if prev, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, e.Name(), ver)
		}
		seen[ver] = e.Name()

		data, err := fs.ReadFile(r.fsys, path.Join(r.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		migs = append(migs, Migration{
			Version:  ver,
			Name:     e.Name(),
			Checksum: hex.EncodeToString(sum[:8]),
			sql:      string(data),
		})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs, nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL DEFAULT '',
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	return err
}

func (r *Runner) applied(ctx context.Context) ([]Applied, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, name, checksum, applied_at
		FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Run applies every migration not yet recorded, each in its own transaction,
// and returns the names applied. A recorded migration whose file changed is
// logged and left alone.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	migs, err := r.Migrations()
	if err != nil {
		return nil, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	recorded := make(map[int]Applied, len(done))
	for _, a := range done {
		recorded[a.Version] = a
	}

	var ran []string
	for _, m := range migs {
		if a, ok := recorded[m.Version]; ok {
			if a.Checksum != "" && a.Checksum != m.Checksum {
				log.Printf("migrate: %s changed since it was applied (%s -> %s)", m.Name, a.Checksum, m.Checksum)
			}
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return ran, err
		}
		ran = append(ran, m.Name)
	}
	if len(ran) > 0 {
		log.Printf("migrate: applied %s", strings.Join(ran, ", "))
	}
	return ran, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		tx.Rollback()
		return fmt.Errorf("execute %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Checksum); err != nil {
		tx.Rollback()
		return fmt.Errorf("record %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", m.Name, err)
	}
	return nil
}

// Status reports the applied migrations and the names still pending.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := r.bootstrap(ctx); err != nil {
		return st, fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	migs, err := r.Migrations()
	if err != nil {
		return st, err
	}
	if st.Applied, err = r.applied(ctx); err != nil {
		return st, fmt.Errorf("read applied migrations: %w", err)
	}

	recorded := make(map[int]bool, len(st.Applied))
	for _, a := range st.Applied {
		recorded[a.Version] = true
		if a.Version > st.Version {
			st.Version = a.Version
		}
	}
	for _, m := range migs {
		if !recorded[m.Version] {
			st.Pending = append(st.Pending, m.Name)
		}
	}
	return st, nil
}
