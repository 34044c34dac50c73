package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stevedore/stevedore/internal/core"
)

// LocalFS stores objects as files under a root directory.
type LocalFS struct {
	ID    string
	Name  string
	Root  string
	Clock func() time.Time

	stats opStats
}

// NewLocalFS creates a filesystem backend rooted at dir, creating it if needed.
func NewLocalFS(id, name, dir string) (*LocalFS, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, errors.New("localfs root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create localfs root: %w", err)
	}
	return &LocalFS{ID: id, Name: name, Root: root}, nil
}

// Info returns the backend identity.
func (b *LocalFS) Info() core.BackendInfo {
	return core.BackendInfo{ID: b.ID, Name: b.Name, Type: core.BackendTypeLocalFS}
}

// Upload writes the object to disk. An existing object is not overwritten.
func (b *LocalFS) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (err error) {
	defer func() { b.stats.record(err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	path, err := b.objectPath(name)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%q: %w", name, ErrObjectExists)
		}
		return fmt.Errorf("create object: %w", err)
	}

	if _, err = io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write object: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	return nil
}

// Download opens an object for reading.
func (b *LocalFS) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		b.stats.record(err)
		return nil, err
	}

	path, err := b.objectPath(name)
	if err != nil {
		b.stats.record(err)
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%q: %w", name, ErrObjectNotFound)
		}
		b.stats.record(err)
		return nil, err
	}
	b.stats.record(nil)
	return file, nil
}

// Delete removes an object.
func (b *LocalFS) Delete(ctx context.Context, name string) (err error) {
	defer func() { b.stats.record(err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	path, err := b.objectPath(name)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%q: %w", name, ErrObjectNotFound)
		}
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Exists reports whether the object is present.
func (b *LocalFS) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		b.stats.record(err)
		return false, err
	}

	path, err := b.objectPath(name)
	if err != nil {
		b.stats.record(err)
		return false, err
	}

	_, err = os.Stat(path)
	switch {
	case err == nil:
		b.stats.record(nil)
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		b.stats.record(nil)
		return false, nil
	default:
		b.stats.record(err)
		return false, fmt.Errorf("stat object: %w", err)
	}
}

// HealthCheck stats the root directory and reports filesystem capacity.
func (b *LocalFS) HealthCheck(ctx context.Context) (core.StorageHealth, error) {
	started := b.now()

	if err := ctx.Err(); err != nil {
		return core.StorageHealth{}, err
	}

	info, err := os.Stat(b.Root)
	if err != nil {
		return core.StorageHealth{}, fmt.Errorf("stat localfs root: %w", err)
	}
	if !info.IsDir() {
		return core.StorageHealth{}, fmt.Errorf("localfs root %q is not a directory", b.Root)
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(b.Root, &fs); err != nil {
		return core.StorageHealth{}, fmt.Errorf("statfs localfs root: %w", err)
	}

	available := int64(fs.Bavail) * fs.Bsize
	total := int64(fs.Blocks) * fs.Bsize

	now := b.now()
	health := core.StorageHealth{
		Status:            core.HealthStatusHealthy,
		ResponseTime:      now.Sub(started),
		SuccessRate:       b.stats.successRate(),
		AvailableCapacity: available,
		TotalCapacity:     total,
		LastChecked:       now,
	}
	if total > 0 && available < total/20 {
		health.Status = core.HealthStatusDegraded
		health.Error = "less than 5% capacity remaining"
	}
	return health, nil
}

func (b *LocalFS) objectPath(name string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(name))
	if clean == "" || clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object name: %q", name)
	}
	return filepath.Join(b.Root, clean), nil
}

func (b *LocalFS) now() time.Time {
	if b != nil && b.Clock != nil {
		return b.Clock()
	}
	return time.Now().UTC()
}
