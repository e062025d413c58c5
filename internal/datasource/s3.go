// Package datasource fetches flow CSV files from S3-compatible object storage
// into a local directory the loader can read.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/flowdash/internal/duckdb"
)

// ErrInvalidURL indicates a malformed dataset URL.
var ErrInvalidURL = errors.New("datasource: invalid dataset url")

const (
	defaultEndpoint = "s3.amazonaws.com"
	manifestName    = ".flowdash-cache.json"
)

// S3Config holds the object storage location and credentials of a dataset.
// Empty credentials use anonymous access.
type S3Config struct {
	URL          string // s3://bucket/prefix
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	CacheDir     string
	Concurrency  int
}

// objectStore is the subset of the minio client used by the fetcher.
type objectStore interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// Fetcher mirrors the flow files under a bucket prefix into a cache directory.
type Fetcher struct {
	client      objectStore
	bucket      string
	prefix      string
	cacheDir    string
	concurrency int
}

// NewFetcher builds a fetcher backed by a minio client.
func NewFetcher(cfg S3Config) (*Fetcher, error) {
	bucket, prefix, err := ParseBucketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("datasource: connect %s: %w", endpoint, err)
	}
	return newFetcher(client, bucket, prefix, cfg.CacheDir, cfg.Concurrency), nil
}

func newFetcher(client objectStore, bucket, prefix, cacheDir string, concurrency int) *Fetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		cacheDir:    cacheDir,
		concurrency: concurrency,
	}
}

// Dir returns the local directory the files are written to.
func (f *Fetcher) Dir() string {
	return filepath.Join(f.cacheDir, f.bucket, filepath.FromSlash(f.prefix))
}

// Fetch downloads every flow file under the prefix that is missing from the
// cache or whose size, ETag or modification time changed since it was
// fetched. It returns the local directory and file paths.
func (f *Fetcher) Fetch(ctx context.Context) (string, []string, error) {
	dir := f.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("datasource: create cache dir: %w", err)
	}

	listPrefix := f.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	var objects []minio.ObjectInfo
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: listPrefix, Recursive: true}) {
		if obj.Err != nil {
			return "", nil, fmt.Errorf("datasource: list s3://%s/%s: %w", f.bucket, f.prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") || !duckdb.IsDataFile(obj.Key) {
			continue
		}
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return dir, nil, fmt.Errorf("%w: s3://%s/%s", duckdb.ErrNoDataFiles, f.bucket, f.prefix)
	}

	cached := readManifest(dir)
	current := make(map[string]cacheEntry, len(objects))
	files := make([]string, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, obj := range objects {
		local := filepath.Join(dir, localName(obj.Key, listPrefix))
		files[i] = local
		entry := entryOf(obj)
		current[obj.Key] = entry
		if prev, ok := cached[obj.Key]; ok && prev.matches(entry) {
			if st, err := os.Stat(local); err == nil && st.Size() == obj.Size {
				continue
			}
		}
		g.Go(func() error {
			if err := f.client.FGetObject(gctx, f.bucket, obj.Key, local, minio.GetObjectOptions{}); err != nil {
				return fmt.Errorf("datasource: download %s: %w", obj.Key, err)
			}
			log.Printf("datasource: fetched s3://%s/%s (%d bytes)", f.bucket, obj.Key, obj.Size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}
	if err := writeManifest(dir, current); err != nil {
		log.Printf("datasource: write cache manifest: %v", err)
	}
	sort.Strings(files)
	return dir, files, nil
}

// cacheEntry records the object version a cached file was fetched from.
type cacheEntry struct {
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

func entryOf(obj minio.ObjectInfo) cacheEntry {
	return cacheEntry{ETag: obj.ETag, Size: obj.Size, LastModified: obj.LastModified.UTC()}
}

func (e cacheEntry) matches(o cacheEntry) bool {
	return e.ETag == o.ETag && e.Size == o.Size && e.LastModified.Equal(o.LastModified)
}

// readManifest returns the cache entries of dir. A missing or unreadable
// manifest yields an empty map, so every file is fetched again.
func readManifest(dir string) map[string]cacheEntry {
	m := map[string]cacheEntry{}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("datasource: ignoring corrupt cache manifest: %v", err)
		return map[string]cacheEntry{}
	}
	return m
}

func writeManifest(dir string, m map[string]cacheEntry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, manifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// localName flattens an object key below prefix into a single file name.
func localName(key, prefix string) string {
	rel := strings.TrimPrefix(key, prefix)
	return strings.ReplaceAll(rel, "/", "_")
}

// normalizeEndpoint strips a URL scheme from endpoint and reports whether TLS
// should be used. An explicit scheme overrides useSSL.
func normalizeEndpoint(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return defaultEndpoint, true
	}
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return endpoint, useSSL
}

// ParseBucketURL splits s3://bucket/prefix into bucket and prefix.
func ParseBucketURL(raw string) (bucket string, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: must use s3:// scheme", ErrInvalidURL)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", fmt.Errorf("%w: missing bucket name", ErrInvalidURL)
	}

	prefix = strings.Trim(strings.TrimSpace(u.Path), "/")
	return u.Host, prefix, nil
}
