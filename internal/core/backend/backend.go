package backend

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/stevedore/stevedore/internal/core"
)

// ErrObjectExists reports a name collision on upload or existence check.
// Callers classify duplicates by matching this sentinel with errors.Is.
var ErrObjectExists = errors.New("object already exists")

// ErrObjectNotFound reports a missing object on download or delete.
var ErrObjectNotFound = errors.New("object not found")

// Backend is the interface all storage backends implement.
type Backend interface {
	// Info returns the backend identity.
	Info() core.BackendInfo

	// Upload stores an object under the given name.
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) error

	// Download opens an object for reading. The caller closes the reader.
	Download(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes an object.
	Delete(ctx context.Context, name string) error

	// Exists reports whether an object with the given name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// HealthCheck probes the backend and reports a health snapshot.
	HealthCheck(ctx context.Context) (core.StorageHealth, error)
}

// opStats tracks operation counts for deriving a success rate.
type opStats struct {
	total    atomic.Int64
	failures atomic.Int64
}

func (s *opStats) record(err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
	}
}

// successRate returns the observed success percentage, 100 when no
// operations have been recorded yet.
func (s *opStats) successRate() float64 {
	total := s.total.Load()
	if total == 0 {
		return 100
	}
	ok := total - s.failures.Load()
	return float64(ok) / float64(total) * 100
}
