package render

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

func decode(t *testing.T, buf *bytes.Buffer, size Size) {
	t.Helper()
	img, err := png.Decode(buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != size.Width || b.Dy() != size.Height {
		t.Fatalf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), size.Width, size.Height)
	}
}

func TestPNGRendersSupportedKinds(t *testing.T) {
	ts := time.Date(2017, 7, 3, 9, 0, 0, 0, time.UTC)
	ts2 := ts.Add(time.Hour)
	specs := []model.ChartSpec{
		{ID: "scatter", Kind: model.KindScatter, Series: []model.Series{
			{Name: "TCP", Points: []model.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}},
			{Name: "UDP", Points: []model.Point{{X: 2, Y: 2}}},
		}},
		{ID: "single", Kind: model.KindLine, Series: []model.Series{{Name: "Counts", Points: []model.Point{{X: 5, Y: 7}}}}},
		{ID: "timeline", Kind: model.KindScatter, Encoding: model.Encoding{X: model.ColTimestamp}, Series: []model.Series{
			{Name: "Bot", Points: []model.Point{{Time: &ts, Y: 10}, {Time: &ts2, Y: 20}, {Y: 5}}},
		}},
		{ID: "bar", Kind: model.KindBar, Series: []model.Series{{Points: []model.Point{{Category: "TCP", Y: 2}, {Category: "UDP", Y: 2}}}}},
		{ID: "pie", Kind: model.KindPie, Series: []model.Series{{Points: []model.Point{{Category: "BENIGN", Y: 3}, {Category: "DDoS", Y: 1}}}}},
		{ID: "hist", Kind: model.KindHistogram, Series: []model.Series{
			{Name: "BENIGN", Points: []model.Point{{Category: "TCP", Y: 2}, {Category: "UDP", Y: 1}}},
			{Name: "DDoS", Points: []model.Point{{Category: "TCP", Y: 1}}},
		}},
	}
	size := Size{Width: 400, Height: 300}
	for _, spec := range specs {
		t.Run(spec.ID, func(t *testing.T) {
			var buf bytes.Buffer
			if err := PNG(&buf, spec, size); err != nil {
				t.Fatalf("PNG: %v", err)
			}
			decode(t, &buf, size)
		})
	}
}

func TestPNGRejectsUnsupportedAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := PNG(&buf, model.ChartSpec{Kind: model.KindMatrix, Matrix: &model.Matrix{X: []string{"a"}}}, Size{})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("err = %v, want ErrUnsupportedKind", err)
	}

	err = PNG(&buf, model.ChartSpec{Kind: model.KindScatter, Placeholder: "pick an ip"}, Size{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}

	err = PNG(&buf, model.ChartSpec{Kind: model.KindBar, Series: []model.Series{{}}}, Size{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}
