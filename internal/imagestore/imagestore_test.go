package imagestore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/chronos/internal/config"
	"github.com/kiranshivaraju/chronos/internal/imagestore"
)

func TestObjectKey(t *testing.T) {
	taskID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	resultID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t,
		"tasks/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.fits",
		imagestore.ObjectKey(taskID, resultID, "frame_001.FITS"))
	assert.Equal(t,
		"tasks/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222",
		imagestore.ObjectKey(taskID, resultID, "noext"))
}

func TestFS_PutWritesUnderRoot(t *testing.T) {
	root := t.TempDir()
	s := imagestore.NewFS(root, "https://images.example.org/")

	h, err := s.Put(context.Background(), "tasks/a/b.png", "image/png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Equal(t, "tasks/a/b.png", h.Key)
	assert.Equal(t, "https://images.example.org/tasks/a/b.png", h.URL)

	data, err := os.ReadFile(filepath.Join(root, "tasks", "a", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestFS_RejectsEscapingKeys(t *testing.T) {
	s := imagestore.NewFS(t.TempDir(), "/images")

	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", `a\b`, "a//b"} {
		_, err := s.Put(context.Background(), key, "", strings.NewReader("x"))
		assert.ErrorIs(t, err, imagestore.ErrInvalidKey, key)
	}
}

func TestFS_CheckAccess(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "images")
	s := imagestore.NewFS(root, "/images")
	require.NoError(t, s.CheckAccess(context.Background()))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.ErrorIs(t, imagestore.NewFS(file, "/images").CheckAccess(context.Background()), imagestore.ErrUnavailable)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := imagestore.New(context.Background(), config.ImageConfig{Backend: "ftp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown image store")
}

func TestNew_FS(t *testing.T) {
	s, err := imagestore.New(context.Background(), config.ImageConfig{
		Backend: config.ImageStoreFS,
		FS:      config.FSConfig{Root: t.TempDir(), PublicBaseURL: "/images"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fs", s.Name())
}

// fakeS3 records object uploads sent with path-style addressing.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		f.mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if r.URL.Path == "/frames" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3(t *testing.T, bucket string) (*imagestore.S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := imagestore.NewS3(context.Background(), config.S3Config{
		Bucket:          bucket,
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return s, fake
}

func TestS3_Put(t *testing.T) {
	s, fake := newS3(t, "frames")

	h, err := s.Put(context.Background(), "tasks/t1/r1.png", "image/png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Equal(t, "tasks/t1/r1.png", h.Key)
	assert.True(t, strings.HasSuffix(h.URL, "/frames/tasks/t1/r1.png"), h.URL)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "pixels", fake.objects["/frames/tasks/t1/r1.png"])
	assert.Equal(t, "image/png", fake.types["/frames/tasks/t1/r1.png"])
}

func TestS3_PutBuffersUnseekableBody(t *testing.T) {
	s, fake := newS3(t, "frames")

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("streamed"))
		pw.Close()
	}()

	_, err := s.Put(context.Background(), "tasks/t1/r2.fits", "", pr)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "streamed", fake.objects["/frames/tasks/t1/r2.fits"])
}

func TestS3_CheckAccess(t *testing.T) {
	s, _ := newS3(t, "frames")
	assert.NoError(t, s.CheckAccess(context.Background()))

	missing, _ := newS3(t, "missing")
	assert.ErrorIs(t, missing.CheckAccess(context.Background()), imagestore.ErrUnavailable)
}

func TestS3_PublicBaseURL(t *testing.T) {
	s, err := imagestore.NewS3(context.Background(), config.S3Config{
		Bucket:          "frames",
		Region:          "eu-central-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		PublicBaseURL:   "https://cdn.example.org/frames/",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", s.Name())

	_, err = s.Put(context.Background(), "../escape", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, imagestore.ErrInvalidKey)
}
