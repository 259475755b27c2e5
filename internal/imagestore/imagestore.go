// Package imagestore keeps the images operators capture for task results.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/internal/config"
)

var (
	ErrInvalidKey  = errors.New("invalid image key")
	ErrUnavailable = errors.New("image store unavailable")
)

// Handle locates a stored image.
type Handle struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Store saves images under caller-chosen keys.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (Handle, error)
	CheckAccess(ctx context.Context) error
	Name() string
}

// New constructs the store selected by cfg.Backend. Called once at server startup.
func New(ctx context.Context, cfg config.ImageConfig) (Store, error) {
	switch cfg.Backend {
	case config.ImageStoreFS:
		return NewFS(cfg.FS.Root, cfg.FS.PublicBaseURL), nil
	case config.ImageStoreS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown image store %q: must be one of fs, s3", cfg.Backend)
	}
}

// ObjectKey builds the key of a result image: tasks/<task>/<result><ext>,
// with the extension taken from the uploaded file name.
func ObjectKey(taskID, resultID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return fmt.Sprintf("tasks/%s/%s%s", taskID, resultID, ext)
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
