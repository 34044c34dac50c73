// Package ingest walks a directory tree and uploads its files to a storage
// backend under a bounded concurrency budget, classifying every file as
// uploaded, skipped, or failed and aggregating run statistics.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/backend"
	"github.com/stevedore/stevedore/internal/core/gate"
	"github.com/stevedore/stevedore/internal/core/ratelimit"
)

// DocumentStore creates the downstream record after a successful upload.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *core.Document) error
}

// RunStore receives completed run summaries. Failures are ignored; the
// journal never affects a run's outcome.
type RunStore interface {
	SaveIngestionRun(ctx context.Context, run *core.IngestionRun) error
}

// Options configures one bulk ingestion run.
type Options struct {
	Root        string
	Concurrency int
	Tags        []string
	Metadata    map[string]string
	DryRun      bool
}

// Orchestrator coordinates one bulk upload at a time against a backend.
// Backend and Gate are required; the rest are optional collaborators.
type Orchestrator struct {
	Backend   backend.Backend
	Gate      *gate.Gate
	Documents DocumentStore
	Limiter   *ratelimit.Limiter
	Progress  ProgressSink
	Runs      RunStore
	Clock     func() time.Time
}

// fileItem is one enumerated unit of work.
type fileItem struct {
	path string
	name string
	size int64
}

// Run enumerates files under the root and uploads them concurrently. An
// empty enumeration is a hard failure; per-file failures are isolated and
// reported in the run counts. Run always waits for every launched file
// task before returning.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*core.IngestionRun, error) {
	if o.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if o.Gate == nil {
		return nil, errors.New("gate is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	items, err := enumerate(opts.Root)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no files found under %s", opts.Root)
	}

	startedAt := o.now()
	o.Gate.SetLimit(opts.Concurrency)
	o.progress().Init(len(items))

	var (
		wg      sync.WaitGroup
		results = make([]core.FileResult, len(items))
	)

	for i, item := range items {
		release, err := o.Gate.Acquire(ctx)
		if err != nil {
			// Remaining files are not attempted; record them as failed so
			// the aggregate still covers the full enumeration.
			for j := i; j < len(items); j++ {
				results[j] = core.FileResult{
					Path:    items[j].path,
					Name:    items[j].name,
					Size:    items[j].size,
					Outcome: core.FileFailed,
					Message: err.Error(),
				}
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer release()

			// Tasks write disjoint indices, so no lock is needed here.
			result := o.processFile(ctx, item, opts)
			results[i] = result

			if result.Outcome == core.FileFailed {
				o.progress().Failed(result)
			} else {
				o.progress().Completed(result)
			}
		}()
	}
	wg.Wait()

	run := summarize(opts, results, startedAt, o.now())
	run.BackendID = o.Backend.Info().ID
	if o.Runs != nil {
		_ = o.Runs.SaveIngestionRun(ctx, run)
	}
	return run, nil
}

func (o *Orchestrator) processFile(ctx context.Context, item fileItem, opts Options) (result core.FileResult) {
	start := o.now()
	defer func() { result.Duration = o.now().Sub(start) }()

	result = core.FileResult{
		Path: item.path,
		Name: item.name,
		Size: item.size,
	}

	if opts.DryRun {
		result.Outcome = core.FileUploaded
		result.Message = "dry run"
		return result
	}

	if o.Limiter != nil {
		key := "backend:" + o.Backend.Info().ID
		if err := o.Limiter.Wait(ctx, key); err != nil {
			result.Outcome = core.FileFailed
			result.Message = err.Error()
			return result
		}
		o.Limiter.Record(ctx, key)
	}

	exists, err := o.Backend.Exists(ctx, item.name)
	if err != nil {
		result.Outcome = core.FileFailed
		result.Message = err.Error()
		return result
	}
	if exists {
		result.Outcome = core.FileSkipped
		result.Message = backend.ErrObjectExists.Error()
		return result
	}

	if err := o.upload(ctx, item); err != nil {
		if errors.Is(err, backend.ErrObjectExists) {
			result.Outcome = core.FileSkipped
			result.Message = err.Error()
			return result
		}
		result.Outcome = core.FileFailed
		result.Message = err.Error()
		return result
	}

	if o.Documents != nil {
		doc := &core.Document{
			ID:          uuid.NewString(),
			Name:        item.name,
			BackendID:   o.Backend.Info().ID,
			Size:        item.size,
			ContentType: contentType(item.name),
			Tags:        opts.Tags,
			Metadata:    opts.Metadata,
			UploadedAt:  o.now(),
		}
		if err := o.Documents.CreateDocument(ctx, doc); err != nil {
			result.Outcome = core.FileFailed
			result.Message = err.Error()
			return result
		}
	}

	result.Outcome = core.FileUploaded
	return result
}

func (o *Orchestrator) upload(ctx context.Context, item fileItem) error {
	f, err := os.Open(item.path)
	if err != nil {
		return err
	}
	defer f.Close() // nolint:errcheck // best-effort cleanup on read-only file

	return o.Backend.Upload(ctx, item.name, f, item.size, contentType(item.name))
}

// enumerate walks the root and returns every regular file in deterministic
// path order. Object names are root-relative slash paths.
func enumerate(root string) ([]fileItem, error) {
	var items []fileItem
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		items = append(items, fileItem{
			path: path,
			name: filepath.ToSlash(rel),
			size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })
	return items, nil
}

func summarize(opts Options, results []core.FileResult, startedAt, finishedAt time.Time) *core.IngestionRun {
	run := &core.IngestionRun{
		ID:        uuid.NewString(),
		Root:      opts.Root,
		Total:     len(results),
		Duration:  finishedAt.Sub(startedAt),
		DryRun:    opts.DryRun,
		StartedAt: startedAt,
		Files:     results,
	}

	for _, r := range results {
		switch r.Outcome {
		case core.FileUploaded:
			run.Uploaded++
		case core.FileSkipped:
			run.Skipped++
		default:
			run.Failed++
		}
	}
	if run.Total > 0 {
		run.SuccessRate = float64(run.Uploaded) / float64(run.Total) * 100
	}
	return run
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (o *Orchestrator) progress() ProgressSink {
	if o != nil && o.Progress != nil {
		return o.Progress
	}
	return NopSink{}
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
