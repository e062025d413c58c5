package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyFlows indicates there is no loaded flow data to export.
var ErrEmptyFlows = errors.New("duckdb: flow table is empty")

// ExportFlows writes the flow table to dstPath. The format follows the
// extension: .parquet or .csv. The file is written to a temporary path and
// renamed into place so readers never see a partial export.
func (s *Store) ExportFlows(ctx context.Context, dstPath string) (int64, error) {
	var format string
	switch strings.ToLower(filepath.Ext(dstPath)) {
	case ".parquet":
		format = "(FORMAT PARQUET)"
	case ".csv":
		format = "(FORMAT CSV, HEADER true)"
	default:
		return 0, fmt.Errorf("unsupported export format %q", filepath.Ext(dstPath))
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows`).Scan(&n); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrEmptyFlows
	}

	tmp := dstPath + ".tmp"
	query := fmt.Sprintf(`COPY (SELECT * FROM flows ORDER BY row_id) TO %s %s`, sqlString(tmp), format)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("copy flows: %w", err)
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}
