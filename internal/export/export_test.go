package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/flowdash/internal/model"
)

func sampleView() *model.View {
	r := 0.5
	return &model.View{
		Selection: model.Selection{Protocol: "TCP"}.WithRange(0, 1000),
		Matched:   2,
		Rows:      2,
		Charts: []model.ChartSpec{
			{ID: model.ChartProtocolBar, Kind: model.KindBar, Series: []model.Series{{Name: "Count", Points: []model.Point{{Category: "TCP", Y: 2}}}}},
			{ID: model.ChartCorrelation, Kind: model.KindMatrix, Matrix: &model.Matrix{
				X: []string{"a", "b"}, Y: []string{"a", "b"}, Values: [][]*float64{{nil, &r}, {&r, nil}},
			}},
		},
		Summary: model.Summary{Placeholder: "pick one"},
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		path       string
		format     Format
		compressed bool
		wantErr    bool
	}{
		{"view.json", FormatJSON, false, false},
		{"out/view.YAML", FormatYAML, false, false},
		{"view.yml.zst", FormatYAML, true, false},
		{"view.json.zst", FormatJSON, true, false},
		{"view.txt", "", false, true},
		{"view.zst", "", true, true},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTarget(%q) succeeded, want error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTarget(%q): %v", tt.path, err)
			continue
		}
		if got.Format != tt.format || got.Compressed != tt.compressed {
			t.Errorf("ParseTarget(%q) = %+v", tt.path, got)
		}
	}
}

func TestWriteViewJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.json")
	if err := WriteView(path, sampleView()); err != nil {
		t.Fatalf("WriteView: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got model.View
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Matched != 2 || len(got.Charts) != 2 || got.Charts[1].Matrix.Values[0][0] != nil {
		t.Fatalf("view = %+v", got)
	}
	if got.Selection != sampleView().Selection {
		t.Fatalf("selection = %+v", got.Selection)
	}
}

func TestWriteViewCompressedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "view.yaml.zst")
	if err := WriteView(path, sampleView()); err != nil {
		t.Fatalf("WriteView: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	if err != nil {
		t.Fatalf("zstd decode: %v", err)
	}
	var got model.View
	if err := yaml.Unmarshal(plain, &got); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	if got.Selection != (model.Selection{Protocol: "TCP"}.WithRange(0, 1000)) || got.Summary.Placeholder != "pick one" {
		t.Fatalf("view = %+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temporary file left behind")
	}
}
