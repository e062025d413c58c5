package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/duckdb/duckdb-go/v2"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunCreatesFlowSchema(t *testing.T) {
	db := openTestDB(t)

	ran, err := NewRunner(db).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("applied %v, want 2 migrations", ran)
	}

	for _, table := range []string{"dataset_loads", "dataset_load_files", "flows", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(openTestDB(t))

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	ran, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("second Run applied %v, want nothing", ran)
	}

	st, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Version != 2 || len(st.Pending) != 0 || len(st.Applied) != 2 {
		t.Errorf("status = version %d pending %v applied %d, want 2/none/2", st.Version, st.Pending, len(st.Applied))
	}
	if st.Applied[0].Checksum == "" {
		t.Error("applied migration has no checksum")
	}
}

func TestStatusBeforeRun(t *testing.T) {
	st, err := NewRunner(openTestDB(t)).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Version != 0 || len(st.Pending) != 2 {
		t.Errorf("before run: version %d pending %v, want 0 and 2 pending", st.Version, st.Pending)
	}
}

func TestRunFillsGaps(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := &Runner{db: db, dir: "m", fsys: fstest.MapFS{
		"m/001_a.sql": {Data: []byte(`CREATE TABLE a (x INTEGER)`)},
		"m/003_c.sql": {Data: []byte(`CREATE TABLE c (x INTEGER)`)},
	}}
	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r.fsys = fstest.MapFS{
		"m/001_a.sql": {Data: []byte(`CREATE TABLE a (x INTEGER)`)},
		"m/002_b.sql": {Data: []byte(`CREATE TABLE b (x INTEGER)`)},
		"m/003_c.sql": {Data: []byte(`CREATE TABLE c (x INTEGER)`)},
	}
	ran, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ran) != 1 || ran[0] != "002_b.sql" {
		t.Fatalf("applied %v, want [002_b.sql]", ran)
	}
}

func TestMigrationsRejectDuplicateVersions(t *testing.T) {
	r := &Runner{dir: "m", fsys: fstest.MapFS{
		"m/001_a.sql": {Data: []byte(`SELECT 1`)},
		"m/001_b.sql": {Data: []byte(`SELECT 2`)},
	}}
	if _, err := r.Migrations(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}
