package duckdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinytelemetry/flowdash/internal/model"
)

// ErrNoDataFiles indicates the data directory is missing or holds no CSV files.
var ErrNoDataFiles = errors.New("duckdb: no flow files to load")

// dataFileSuffixes are the file extensions read as flow tables.
var dataFileSuffixes = []string{".csv", ".csv.gz"}

// timestampFormats are tried in order. Month-first layouts come before
// day-first ones so "5/7/2017" reads as May 7.
var timestampFormats = []string{
	"%m/%d/%Y %H:%M:%S",
	"%m/%d/%Y %H:%M",
	"%m/%d/%Y %I:%M:%S %p",
	"%m/%d/%Y %I:%M %p",
	"%Y-%m-%d %H:%M:%S.%f",
	"%Y-%m-%d %H:%M:%S",
	"%Y-%m-%dT%H:%M:%S",
	"%Y-%m-%d %H:%M",
	"%d/%m/%Y %H:%M:%S",
	"%d/%m/%Y %H:%M",
}

// requiredColumns are added as NULL columns when absent from the input files.
var requiredColumns = []struct {
	name string
	typ  string
}{
	{model.ColTimestamp, "VARCHAR"},
	{model.ColSourceIP, "VARCHAR"},
	{model.ColDestinationIP, "VARCHAR"},
	{model.ColFlowDuration, "DOUBLE"},
	{model.ColTotalFwdPackets, "DOUBLE"},
	{model.ColProtocol, "INTEGER"},
	{model.ColLabel, "VARCHAR"},
}

// LoadOptions controls dataset loading.
type LoadOptions struct {
	MaxRows int
	Seed    int64
	// Source is recorded in the load history; defaults to the directory.
	Source string
}

// LoadResult describes one dataset load.
type LoadResult struct {
	ID            string
	Files         []string
	RowsRead      int64
	RowsKept      int64
	Sampled       bool
	ParseWarnings int64
	Warnings      []string
	Duration      time.Duration
}

// DataFiles lists the flow files of dir in name order.
func DataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsDataFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// IsDataFile reports whether name has a flow file extension.
func IsDataFile(name string) bool {
	lower := strings.ToLower(name)
	for _, suf := range dataFileSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// LoadDataset replaces the flow table with the CSV files of dir.
// Files are concatenated by column name, subsampled to opts.MaxRows with a
// fixed seed, and normalized: trimmed headers, parsed Timestamp, derived
// ProtocolName. On any failure the flow table is left empty and the error
// is returned alongside the partial result; callers may keep running.
func (s *Store) LoadDataset(ctx context.Context, dir string, opts LoadOptions) (*LoadResult, error) {
	start := time.Now()
	if opts.MaxRows <= 0 {
		opts.MaxRows = model.DefaultMaxLoadRows
	}
	if opts.Source == "" {
		opts.Source = dir
	}

	res := &LoadResult{ID: uuid.NewString()}

	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(err error) (*LoadResult, error) {
		res.Warnings = append(res.Warnings, err.Error())
		if rerr := s.resetFlows(ctx); rerr != nil {
			log.Printf("duckdb: reset flows after failed load: %v", rerr)
		}
		res.Duration = time.Since(start)
		s.recordLoad(ctx, opts.Source, res)
		return res, err
	}

	files, err := DataFiles(dir)
	if err != nil {
		return fail(fmt.Errorf("%w: read %s: %v", ErrNoDataFiles, dir, err))
	}
	if len(files) == 0 {
		return fail(fmt.Errorf("%w: %s has no .csv files", ErrNoDataFiles, dir))
	}
	res.Files = files

	if err := s.readRaw(ctx, files); err != nil {
		return fail(fmt.Errorf("read csv: %w", err))
	}
	defer func() {
		if _, err := s.db.ExecContext(context.Background(), `DROP TABLE IF EXISTS flows_raw`); err != nil {
			log.Printf("duckdb: drop flows_raw: %v", err)
		}
	}()

	cols, err := s.normalizeRawColumns(ctx)
	if err != nil {
		return fail(fmt.Errorf("normalize columns: %w", err))
	}
	if err := s.recastNumericText(ctx); err != nil {
		return fail(fmt.Errorf("recast numeric columns: %w", err))
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows_raw`).Scan(&res.RowsRead); err != nil {
		return fail(fmt.Errorf("count rows: %w", err))
	}
	if res.RowsRead == 0 {
		return fail(fmt.Errorf("%w: files under %s hold no rows", ErrNoDataFiles, dir))
	}
	res.Sampled = res.RowsRead > int64(opts.MaxRows)

	query := buildFlowsQuery(cols, opts.MaxRows, opts.Seed, res.Sampled)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fail(fmt.Errorf("build flow table: %w", err))
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows`).Scan(&res.RowsKept); err != nil {
		return fail(fmt.Errorf("count flows: %w", err))
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows
		WHERE "Timestamp" IS NULL AND raw_timestamp IS NOT NULL AND trim(raw_timestamp) <> ''`).Scan(&res.ParseWarnings); err != nil {
		return fail(fmt.Errorf("count timestamp warnings: %w", err))
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE flows DROP COLUMN raw_timestamp`); err != nil {
		return fail(fmt.Errorf("drop raw timestamp: %w", err))
	}
	if res.ParseWarnings > 0 {
		msg := fmt.Sprintf("%d rows have an unparseable Timestamp", res.ParseWarnings)
		res.Warnings = append(res.Warnings, msg)
		log.Printf("duckdb: %s", msg)
	}

	numeric, err := s.loadNumericColumns()
	if err != nil {
		return fail(fmt.Errorf("inspect numeric columns: %w", err))
	}
	s.numericCols = numeric

	res.Duration = time.Since(start)
	s.recordLoad(ctx, opts.Source, res)
	log.Printf("duckdb: loaded %d of %d rows from %d files in %s", res.RowsKept, res.RowsRead, len(files), res.Duration.Round(time.Millisecond))
	return res, nil
}

// readRaw reads all files into the flows_raw table. The Timestamp column is
// kept as text so its layout is decided by timestampFormats rather than by
// the CSV sniffer.
func (s *Store) readRaw(ctx context.Context, files []string) error {
	list := sqlStringList(files)

	types := ""
	raw, err := s.describeCSV(ctx, list)
	if err != nil {
		return err
	}
	for _, name := range raw {
		if strings.TrimSpace(name) == model.ColTimestamp {
			types = fmt.Sprintf(", types={%s: 'VARCHAR'}", sqlString(name))
			break
		}
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`CREATE OR REPLACE TABLE flows_raw AS
		SELECT * FROM read_csv(%s, header=true, union_by_name=true, ignore_errors=true, sample_size=-1%s)`, list, types))
	return err
}

func (s *Store) describeCSV(ctx context.Context, list string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`DESCRIBE SELECT * FROM read_csv(%s, header=true, union_by_name=true)`, list))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		if name, ok := values[0].(string); ok {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// normalizeRawColumns trims header whitespace and adds missing required
// columns. It returns the final column names of flows_raw.
func (s *Store) normalizeRawColumns(ctx context.Context) ([]string, error) {
	cols, err := s.tableColumns(ctx, "flows_raw")
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	for i, c := range cols {
		trimmed := strings.TrimSpace(c)
		if trimmed == c || trimmed == "" || present[trimmed] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE flows_raw RENAME COLUMN %s TO %s`, quoteIdent(c), quoteIdent(trimmed))); err != nil {
			return nil, err
		}
		delete(present, c)
		present[trimmed] = true
		cols[i] = trimmed
	}

	for _, rc := range requiredColumns {
		if present[rc.name] {
			continue
		}
		log.Printf("duckdb: column %q missing from input, filling with NULL", rc.name)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE flows_raw ADD COLUMN %s %s`, quoteIdent(rc.name), rc.typ)); err != nil {
			return nil, err
		}
		present[rc.name] = true
		cols = append(cols, rc.name)
	}
	return cols, nil
}

// textColumns stay VARCHAR even when every value happens to parse as a number.
var textColumns = map[string]bool{
	model.ColTimestamp:     true,
	model.ColSourceIP:      true,
	model.ColDestinationIP: true,
	model.ColLabel:         true,
	model.ColProtocolName:  true,
}

// recastNumericText converts VARCHAR columns of flows_raw whose every
// non-null value casts to DOUBLE. The CSV sniffer types columns holding
// "Infinity" or "NaN" as text; DuckDB parses both, and FilteredFlows later
// maps the non-finite values to NaN.
func (s *Store) recastNumericText(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
		WHERE table_name = 'flows_raw' AND data_type = 'VARCHAR' ORDER BY ordinal_position`)
	if err != nil {
		return err
	}
	var candidates []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return err
		}
		if !textColumns[c] {
			candidates = append(candidates, c)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range candidates {
		col := quoteIdent(c)
		var numeric bool
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(%[1]s) > 0 AND
			COUNT(TRY_CAST(trim(%[1]s) AS DOUBLE)) = COUNT(%[1]s) FROM flows_raw`, col)).Scan(&numeric); err != nil {
			return err
		}
		if !numeric {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE flows_raw ALTER COLUMN %[1]s
			SET DATA TYPE DOUBLE USING TRY_CAST(trim(%[1]s) AS DOUBLE)`, col)); err != nil {
			return err
		}
		log.Printf("duckdb: column %q read as text, recast to DOUBLE", c)
	}
	return nil
}

// buildFlowsQuery returns the statement that creates the flow table from flows_raw.
func buildFlowsQuery(cols []string, maxRows int, seed int64, sampled bool) string {
	hasName := false
	for _, c := range cols {
		if c == model.ColProtocolName {
			hasName = true
		}
	}

	protocol := `TRY_CAST("Protocol" AS INTEGER)`
	protocolName := protocolNameCase(protocol)
	if hasName {
		protocolName = fmt.Sprintf(`COALESCE(CAST("ProtocolName" AS VARCHAR), %s)`, sqlString(model.OtherProtocol))
	}

	var ts []string
	for _, f := range timestampFormats {
		ts = append(ts, fmt.Sprintf("try_strptime(trim(CAST(\"Timestamp\" AS VARCHAR)), %s)", sqlString(f)))
	}
	ts = append(ts, `TRY_CAST(trim(CAST("Timestamp" AS VARCHAR)) AS TIMESTAMP)`)

	replace := []string{
		fmt.Sprintf(`COALESCE(%s) AS "Timestamp"`, strings.Join(ts, ", ")),
		`CAST("Source IP" AS VARCHAR) AS "Source IP"`,
		`CAST("Destination IP" AS VARCHAR) AS "Destination IP"`,
		`TRY_CAST("Flow Duration" AS DOUBLE) AS "Flow Duration"`,
		`TRY_CAST("Total Fwd Packets" AS DOUBLE) AS "Total Fwd Packets"`,
		protocol + ` AS "Protocol"`,
		`CAST("Label" AS VARCHAR) AS "Label"`,
	}
	if hasName {
		replace = append(replace, protocolName+` AS "ProtocolName"`)
	}

	extra := `CAST("Timestamp" AS VARCHAR) AS raw_timestamp`
	if !hasName {
		extra += ", " + protocolName + ` AS "ProtocolName"`
	}

	numbered := fmt.Sprintf(`SELECT row_number() OVER () - 1 AS row_id, * REPLACE (%s), %s FROM flows_raw`,
		strings.Join(replace, ", "), extra)

	if !sampled {
		return fmt.Sprintf(`CREATE OR REPLACE TABLE flows AS %s`, numbered)
	}
	return fmt.Sprintf(`CREATE OR REPLACE TABLE flows AS
		SELECT * FROM (
			SELECT * FROM (%s) ORDER BY hash(row_id, CAST(%d AS BIGINT)), row_id LIMIT %d
		) ORDER BY row_id`, numbered, seed, maxRows)
}

// protocolNameCase maps a protocol code expression to its display name.
func protocolNameCase(expr string) string {
	codes := make([]int, 0, len(model.ProtocolNames))
	for code := range model.ProtocolNames {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	var b strings.Builder
	b.WriteString("CASE " + expr)
	for _, code := range codes {
		fmt.Fprintf(&b, " WHEN %d THEN %s", code, sqlString(model.ProtocolNames[code]))
	}
	fmt.Fprintf(&b, " ELSE %s END", sqlString(model.OtherProtocol))
	return b.String()
}

// resetFlows replaces the flow table with an empty one of the required schema.
func (s *Store) resetFlows(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE OR REPLACE TABLE flows (
		row_id BIGINT,
		"Timestamp" TIMESTAMP,
		"Source IP" VARCHAR,
		"Destination IP" VARCHAR,
		"Flow Duration" DOUBLE,
		"Total Fwd Packets" DOUBLE,
		"Protocol" INTEGER,
		"ProtocolName" VARCHAR,
		"Label" VARCHAR
	)`)
	if err != nil {
		return err
	}
	cols, err := s.loadNumericColumns()
	if err != nil {
		return err
	}
	s.numericCols = cols
	return nil
}

// recordLoad appends res to the load history. Failures are logged only.
func (s *Store) recordLoad(ctx context.Context, source string, res *LoadResult) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO dataset_loads
		(id, source, files, rows_read, rows_kept, sampled, parse_warnings, duration_ms, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, source, len(res.Files), res.RowsRead, res.RowsKept, res.Sampled, res.ParseWarnings, res.Duration.Milliseconds(), now)
	if err != nil {
		log.Printf("duckdb: record load %s: %v", res.ID, err)
		return
	}
	for i, f := range res.Files {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO dataset_load_files (load_id, path, position) VALUES (?, ?, ?)`, res.ID, f, i); err != nil {
			log.Printf("duckdb: record load file %s: %v", f, err)
		}
	}
	s.lastLoad = &model.LoadRecord{
		ID:             res.ID,
		Source:         source,
		Files:          len(res.Files),
		RowsRead:       res.RowsRead,
		RowsKept:       res.RowsKept,
		Sampled:        res.Sampled,
		ParseWarnings:  res.ParseWarnings,
		LoadedAt:       now,
		DurationMillis: res.Duration.Milliseconds(),
	}
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
		WHERE table_name = ? ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// numericTypes are the DuckDB column types treated as numeric flow statistics.
var numericTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "INTEGER": true, "BIGINT": true, "HUGEINT": true,
	"UTINYINT": true, "USMALLINT": true, "UINTEGER": true, "UBIGINT": true,
	"FLOAT": true, "DOUBLE": true, "REAL": true,
}

// loadNumericColumns lists the numeric columns of the flow table, excluding row_id.
func (s *Store) loadNumericColumns() ([]string, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_name = 'flows' ORDER BY ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		if name == "row_id" || name == "raw_timestamp" {
			continue
		}
		if numericTypes[typ] || strings.HasPrefix(typ, "DECIMAL") {
			cols = append(cols, name)
		}
	}
	return cols, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func sqlStringList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = sqlString(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
