package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries.
// This avoids false positives like "RESET" matching "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// fileAccessPattern matches table and scalar functions that reach outside the
// database: file readers, globbing, environment lookups and nested query text.
var fileAccessPattern = regexp.MustCompile(
	`(?i)\b(read_\w+|\w+_scan|glob|sniff_csv|parquet_\w+|iceberg_\w+|delta_\w+|getenv|query|query_table)\s*\(`,
)

// quotedSourcePattern matches a quoted name used as a FROM or JOIN source.
// DuckDB treats a quoted path there as a file to scan.
var quotedSourcePattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s*\(?\s*('[^']*'|"[^"]*")`)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// flowColumns are the leading columns of every FilteredFlows row.
const flowColumns = `row_id, "Timestamp", "Source IP", "Destination IP", "Flow Duration",
	"Total Fwd Packets", CAST("Protocol" AS BIGINT), "ProtocolName", "Label"`

// FilteredFlows returns the flows matching f, sampled down to f.Limit rows
// with a seed-determined order when more match. Rows come back in table order.
// Matched is the number of rows that satisfied the filter before sampling.
func (s *Store) FilteredFlows(ctx context.Context, f model.FlowFilter) (*model.FlowSample, error) {
	if f.Limit <= 0 {
		f.Limit = model.DefaultMaxViewRows
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	numeric := s.numericCols
	var sel strings.Builder
	sel.WriteString(flowColumns)
	for _, c := range numeric {
		fmt.Fprintf(&sel, ", CAST(%s AS DOUBLE)", quoteIdent(c))
	}

	where := []string{`"Flow Duration" BETWEEN ? AND ?`}
	args := []interface{}{f.DurationMin, f.DurationMax}
	if f.SourceIP != "" {
		where = append(where, `"Source IP" = ?`)
		args = append(args, f.SourceIP)
	}
	if f.Protocol != "" {
		where = append(where, `"ProtocolName" = ?`)
		args = append(args, f.Protocol)
	}
	args = append(args, f.Seed, f.Limit)

	query := fmt.Sprintf(`SELECT * FROM (
			SELECT %s, COUNT(*) OVER () AS matched
			FROM flows
			WHERE %s
			ORDER BY hash(row_id, CAST(? AS BIGINT)), row_id
			LIMIT ?
		) ORDER BY row_id`, sel.String(), strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sample := &model.FlowSample{NumericColumns: append([]string(nil), numeric...)}
	for rows.Next() {
		var (
			rec       model.FlowRecord
			ts        sql.NullTime
			src, dst  sql.NullString
			dur, pkts sql.NullFloat64
			proto     sql.NullInt64
			name, lbl sql.NullString
			matched   int64
		)
		nums := make([]sql.NullFloat64, len(numeric))
		dest := []interface{}{&rec.RowID, &ts, &src, &dst, &dur, &pkts, &proto, &name, &lbl}
		for i := range nums {
			dest = append(dest, &nums[i])
		}
		dest = append(dest, &matched)

		if err := rows.Scan(dest...); err != nil {
			log.Printf("duckdb scan error (FilteredFlows): %v", err)
			continue
		}
		if ts.Valid {
			t := ts.Time
			rec.Timestamp = &t
		}
		rec.SourceIP = src.String
		rec.DestinationIP = dst.String
		rec.FlowDuration = dur.Float64
		rec.TotalFwdPackets = finiteOrNaN(pkts)
		if proto.Valid {
			p := int(proto.Int64)
			rec.Protocol = &p
		}
		rec.ProtocolName = name.String
		if !name.Valid {
			rec.ProtocolName = model.OtherProtocol
		}
		rec.Label = lbl.String
		rec.Numeric = make([]float64, len(nums))
		for i, n := range nums {
			rec.Numeric[i] = finiteOrNaN(n)
		}
		sample.Matched = int(matched)
		sample.Rows = append(sample.Rows, rec)
	}
	return sample, rows.Err()
}

func finiteOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid || math.IsInf(v.Float64, 0) {
		return math.NaN()
	}
	return v.Float64
}

// LabelCounts returns the number of flows per Label, most frequent first.
func (s *Store) LabelCounts() ([]model.LabelCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT "Label", COUNT(*) AS n
		FROM flows WHERE "Label" IS NOT NULL GROUP BY 1 ORDER BY n DESC, 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.LabelCount
	for rows.Next() {
		var lc model.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			log.Printf("duckdb scan error (LabelCounts): %v", err)
			continue
		}
		result = append(result, lc)
	}
	return result, rows.Err()
}

// ProtocolNames returns the distinct protocol names, sorted.
func (s *Store) ProtocolNames() ([]string, error) {
	return s.distinctStrings("ProtocolNames", `SELECT DISTINCT "ProtocolName" FROM flows
		WHERE "ProtocolName" IS NOT NULL ORDER BY 1`)
}

// MaliciousSourceIPs returns the distinct source IPs of non-benign flows, sorted.
func (s *Store) MaliciousSourceIPs() ([]string, error) {
	return s.distinctStrings("MaliciousSourceIPs", `SELECT DISTINCT "Source IP" FROM flows
		WHERE "Label" IS DISTINCT FROM ? AND "Source IP" IS NOT NULL ORDER BY 1`, model.BenignLabel)
}

func (s *Store) distinctStrings(name, query string, args ...interface{}) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			log.Printf("duckdb scan error (%s): %v", name, err)
			continue
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// DurationBounds returns the observed Flow Duration range. An empty table yields [0, 0].
func (s *Store) DurationBounds() (model.DurationRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var lo, hi sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT MIN("Flow Duration"), MAX("Flow Duration") FROM flows
		WHERE isfinite("Flow Duration")`).Scan(&lo, &hi)
	if err != nil {
		return model.DurationRange{}, err
	}
	return model.DurationRange{Min: lo.Float64, Max: hi.Float64}, nil
}

// TotalFlowCount returns the number of rows in the flow table.
func (s *Store) TotalFlowCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows`).Scan(&n)
	return n, err
}

// DatasetInfo collects the option lists and totals of the loaded flow table.
func (s *Store) DatasetInfo() (*model.DatasetInfo, error) {
	info := &model.DatasetInfo{NumericColumns: s.NumericColumns()}

	var err error
	if info.Rows, err = s.TotalFlowCount(); err != nil {
		return nil, fmt.Errorf("count flows: %w", err)
	}
	if info.Protocols, err = s.ProtocolNames(); err != nil {
		return nil, fmt.Errorf("protocol names: %w", err)
	}
	if info.MaliciousIPs, err = s.MaliciousSourceIPs(); err != nil {
		return nil, fmt.Errorf("malicious source ips: %w", err)
	}
	if info.Duration, err = s.DurationBounds(); err != nil {
		return nil, fmt.Errorf("duration bounds: %w", err)
	}
	if info.LabelCounts, err = s.LabelCounts(); err != nil {
		return nil, fmt.Errorf("label counts: %w", err)
	}

	s.mu.RLock()
	if s.lastLoad != nil {
		info.LoadID = s.lastLoad.ID
		info.LoadedAt = s.lastLoad.LoadedAt
	}
	s.mu.RUnlock()
	return info, nil
}

// LoadHistory returns the most recent dataset loads, newest first.
func (s *Store) LoadHistory(limit int) ([]model.LoadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, files, rows_read, rows_kept, sampled,
		parse_warnings, duration_ms, loaded_at
		FROM dataset_loads ORDER BY loaded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.LoadRecord
	for rows.Next() {
		var r model.LoadRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.Files, &r.RowsRead, &r.RowsKept, &r.Sampled,
			&r.ParseWarnings, &r.DurationMillis, &r.LoadedAt); err != nil {
			log.Printf("duckdb scan error (LoadHistory): %v", err)
			continue
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH read queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	// Reject semicolons to prevent statement chaining.
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	// Strip SQL comments so keywords hidden in comments are still caught.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}

	// Reject write keywords after comment stripping.
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}
	if m := fileAccessPattern.FindStringSubmatch(stripped); m != nil {
		return nil, fmt.Errorf("query calls disallowed function: %s", strings.ToLower(m[1]))
	}
	for _, m := range quotedSourcePattern.FindAllStringSubmatch(stripped, -1) {
		if name := m[1]; name[0] == '\'' || strings.ContainsAny(name, "./\\") {
			return nil, fmt.Errorf("query reads from a file path: %s", name)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, stripped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	maxRows := 1000

	for rows.Next() && len(results) < maxRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable description of the flow table.
func (s *Store) GetSchemaDescription() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_name = 'flows' ORDER BY ordinal_position`)
	if err != nil {
		log.Printf("duckdb: schema description: %v", err)
		return "Table 'flows'"
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", quoteIdent(name), typ))
	}
	return "Table 'flows': " + strings.Join(parts, ", ") + ". " +
		"Table 'dataset_loads': id, source, files, rows_read, rows_kept, sampled, parse_warnings, duration_ms, loaded_at."
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"flows", "dataset_loads"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}
