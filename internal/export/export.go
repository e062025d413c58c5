// Package export writes computed dashboard views to disk.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// Format is a view file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Target is a resolved output file: its encoding and whether it is zstd-compressed.
type Target struct {
	Path       string
	Format     Format
	Compressed bool
}

// ParseTarget derives the encoding from the file extension. A trailing .zst
// compresses the output.
func ParseTarget(path string) (Target, error) {
	t := Target{Path: path}
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".zst") {
		t.Compressed = true
		name = strings.TrimSuffix(name, ".zst")
	}
	switch filepath.Ext(name) {
	case ".json":
		t.Format = FormatJSON
	case ".yaml", ".yml":
		t.Format = FormatYAML
	default:
		return t, fmt.Errorf("export: unsupported view format for %s (want .json, .yaml or .yml, optionally .zst)", path)
	}
	return t, nil
}

// Encode serializes v in the target's format.
func (t Target) Encode(v *model.View) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch t.Format {
	case FormatJSON:
		data, err = json.MarshalIndent(v, "", "  ")
	case FormatYAML:
		data, err = yaml.Marshal(v)
	default:
		return nil, fmt.Errorf("export: unknown format %q", t.Format)
	}
	if err != nil {
		return nil, err
	}
	if !t.Compressed {
		return data, nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// WriteView writes v to path, replacing any existing file.
func WriteView(path string, v *model.View) error {
	t, err := ParseTarget(path)
	if err != nil {
		return err
	}
	data, err := t.Encode(v)
	if err != nil {
		return fmt.Errorf("export: encode view: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
