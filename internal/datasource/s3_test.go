package datasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/tinytelemetry/flowdash/internal/duckdb"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]string
	etags     map[string]string
	listErr   error
	getErr    error
	downloads []string
}

func (f *fakeStore) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects)+1)
	if f.listErr != nil {
		ch <- minio.ObjectInfo{Err: f.listErr}
		close(ch)
		return ch
	}
	for key, body := range f.objects {
		if strings.HasPrefix(key, opts.Prefix) {
			ch <- minio.ObjectInfo{Key: key, Size: int64(len(body)), ETag: f.etags[key]}
		}
	}
	close(ch)
	return ch
}

func (f *fakeStore) FGetObject(_ context.Context, _, object, filePath string, _ minio.GetObjectOptions) error {
	if f.getErr != nil {
		return f.getErr
	}
	f.mu.Lock()
	f.downloads = append(f.downloads, object)
	f.mu.Unlock()
	return os.WriteFile(filePath, []byte(f.objects[object]), 0644)
}

func TestParseBucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantBkt string
		wantPre string
	}{
		{name: "bucket only", raw: "s3://flows", wantBkt: "flows"},
		{name: "bucket with prefix", raw: "s3://flows/cicids2017/clean/", wantBkt: "flows", wantPre: "cicids2017/clean"},
		{name: "invalid scheme", raw: "https://flows/cicids", wantErr: true},
		{name: "missing bucket", raw: "s3:///cicids", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bkt, pre, err := ParseBucketURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Fatalf("err = %v, want ErrInvalidURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBucketURL: %v", err)
			}
			if bkt != tt.wantBkt || pre != tt.wantPre {
				t.Fatalf("got %q/%q, want %q/%q", bkt, pre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		useSSL  bool
		want    string
		wantTLS bool
	}{
		{"", false, defaultEndpoint, true},
		{"minio.local:9000", false, "minio.local:9000", false},
		{"http://minio.local:9000/", true, "minio.local:9000", false},
		{"https://s3.eu-west-1.amazonaws.com", false, "s3.eu-west-1.amazonaws.com", true},
	}
	for _, tt := range tests {
		got, tls := normalizeEndpoint(tt.in, tt.useSSL)
		if got != tt.want || tls != tt.wantTLS {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, %v", tt.in, tt.useSSL, got, tls)
		}
	}
}

func TestFetchDownloadsFlowFiles(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"cicids/Monday.csv":         "a,b\n1,2\n",
		"cicids/sub/Tuesday.csv.gz": "gz",
		"cicids/README.md":          "docs",
		"other/Friday.csv":          "x",
	}}
	f := newFetcher(store, "flows", "cicids", t.TempDir(), 2)

	dir, files, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2", files)
	}
	if filepath.Base(files[0]) != "Monday.csv" || filepath.Base(files[1]) != "sub_Tuesday.csv.gz" {
		t.Fatalf("files = %v", files)
	}
	got, err := duckdb.DataFiles(dir)
	if err != nil {
		t.Fatalf("DataFiles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("DataFiles(%s) = %v", dir, got)
	}

	// A second fetch reuses cached files of the same size.
	if _, _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if len(store.downloads) != 2 {
		t.Fatalf("downloads = %v, want 2 total", store.downloads)
	}
}

func TestFetchRefreshesSameSizeReplacement(t *testing.T) {
	store := &fakeStore{
		objects: map[string]string{"cicids/Monday.csv": "a,b\n1,2\n"},
		etags:   map[string]string{"cicids/Monday.csv": "v1"},
	}
	f := newFetcher(store, "flows", "cicids", t.TempDir(), 1)

	if _, _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if len(store.downloads) != 1 {
		t.Fatalf("downloads = %v, want 1 before replacement", store.downloads)
	}

	store.objects["cicids/Monday.csv"] = "a,b\n3,4\n"
	store.etags["cicids/Monday.csv"] = "v2"
	_, files, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch after replacement: %v", err)
	}
	if len(store.downloads) != 2 {
		t.Fatalf("downloads = %v, want replacement fetched", store.downloads)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a,b\n3,4\n" {
		t.Fatalf("cached file = %q, want replaced content", data)
	}
}

func TestFetchErrors(t *testing.T) {
	empty := newFetcher(&fakeStore{objects: map[string]string{"cicids/notes.txt": "x"}}, "flows", "cicids", t.TempDir(), 1)
	if _, _, err := empty.Fetch(context.Background()); !errors.Is(err, duckdb.ErrNoDataFiles) {
		t.Fatalf("err = %v, want ErrNoDataFiles", err)
	}

	listFail := newFetcher(&fakeStore{listErr: errors.New("denied")}, "flows", "", t.TempDir(), 1)
	if _, _, err := listFail.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("err = %v, want list error", err)
	}

	getFail := newFetcher(&fakeStore{objects: map[string]string{"a.csv": "x"}, getErr: errors.New("timeout")}, "flows", "", t.TempDir(), 1)
	if _, _, err := getFail.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("err = %v, want download error", err)
	}
}
