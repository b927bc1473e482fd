package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		baseName string
		want     string
	}{
		{
			name:     "default prefix",
			baseName: "42_20260301T120000Z",
			want:     "bundleoor/builds/42_20260301T120000Z",
		},
		{
			name:     "custom prefix",
			prefix:   "web/perf",
			baseName: "7_20260301T120000Z",
			want:     "web/perf/builds/7_20260301T120000Z",
		},
		{
			name:     "slashes trimmed",
			prefix:   "/reports/",
			baseName: "run123",
			want:     "reports/builds/run123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			assert.Equal(t, tt.want, u.resolvePrefix(tt.baseName))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{name: "json file", path: "report.json", wantPrefix: "application/json"},
		{name: "yaml file", path: "report.yaml", wantPrefix: "application/yaml"},
		{name: "markdown file", path: "report.md", wantPrefix: "text/markdown"},
		{name: "no extension", path: "LICENSE", wantPrefix: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3UploadConfig{})
	require.Error(t, err)
}

// fakeS3 records the paths of PUT requests.
type fakeS3 struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)

		return
	}

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func TestS3Uploader_Upload(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	dir := filepath.Join(t.TempDir(), "3_20260301T120000Z")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "extra"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra", "report.md"), []byte("# hi"), 0o644))

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	u, err := NewS3Uploader(log, &config.S3UploadConfig{
		Enabled:         true,
		EndpointURL:     srv.URL,
		Bucket:          "reports",
		Prefix:          "ci",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, u.Preflight(ctx))

	prefix, err := u.Upload(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "ci/builds/3_20260301T120000Z", prefix)

	fake.mu.Lock()
	paths := append([]string(nil), fake.paths...)
	fake.mu.Unlock()

	sort.Strings(paths)

	assert.Equal(t, []string{
		"/reports/ci/.bundleoor-write-test",
		"/reports/ci/builds/3_20260301T120000Z/extra/report.md",
		"/reports/ci/builds/3_20260301T120000Z/report.json",
	}, paths)
}
