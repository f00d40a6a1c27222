package mappingstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	cberrors "crossbridge/internal/errors"
)

const (
	recordExt      = ".json"
	descriptorName = "run.toml"
)

// RunDescriptor is the run.toml kept next to a run's records
type RunDescriptor struct {
	RunID     string    `toml:"run_id"`
	CreatedAt time.Time `toml:"created_at"`
	UpdatedAt time.Time `toml:"updated_at"`
	Tests     int       `toml:"tests"`
}

// FileBackend stores one JSON file per record:
//
//	<root>/<run id>/<test id>.json
//	<root>/<run id>/run.toml
//
// Ids are query-escaped so any string is a valid file name. Every file is
// written to a temp file and renamed into place.
type FileBackend struct {
	root string
	now  func() time.Time
}

// NewFileBackend creates a file backend rooted at dir
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{root: dir, now: time.Now}
}

var _ Backend = (*FileBackend)(nil)

// escapeName turns an id into a single path element. A leading "." is
// encoded too, so "." and ".." stay inside the run tree and no record
// collides with the dot-prefixed temp files. QueryUnescape reverses it.
func escapeName(id string) string {
	name := url.QueryEscape(id)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

func (b *FileBackend) runDir(runID string) string {
	return filepath.Join(b.root, escapeName(runID))
}

func (b *FileBackend) recordPath(runID, testID string) string {
	return filepath.Join(b.runDir(runID), escapeName(testID)+recordExt)
}

// Location returns the record's file path
func (b *FileBackend) Location(runID, testID string) string {
	return b.recordPath(runID, testID)
}

// Get reads one record file
func (b *FileBackend) Get(ctx context.Context, runID, testID string) ([]byte, error) {
	data, err := os.ReadFile(b.recordPath(runID, testID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.NewStorageError("failed to read mapping record", err)
	}
	return data, nil
}

// Put stages every blob as a temp file, then renames them into place. If a
// rename fails, files already replaced are restored and new ones removed.
func (b *FileBackend) Put(ctx context.Context, runID string, blobs []Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	dir := b.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cberrors.NewStorageError("failed to create run directory", err)
	}

	staged := make([]string, 0, len(blobs))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for _, blob := range blobs {
		tmp, err := writeTemp(dir, blob.Data)
		if err != nil {
			cleanup()
			return cberrors.NewStorageError("failed to stage mapping record", err)
		}
		staged = append(staged, tmp)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}

	var done []priorFile
	for i, blob := range blobs {
		target := b.recordPath(runID, blob.TestID)
		old, err := os.ReadFile(target)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.rollback(dir, done)
			cleanup()
			return cberrors.NewStorageError("failed to read mapping record", err)
		}
		if err := os.Rename(staged[i], target); err != nil {
			b.rollback(dir, done)
			cleanup()
			return cberrors.NewStorageError("failed to commit mapping record", err)
		}
		done = append(done, priorFile{path: target, data: old})
	}

	return b.touchDescriptor(runID)
}

// priorFile is what a committed rename replaced
type priorFile struct {
	path string
	data []byte // nil when the file did not exist
}

func (b *FileBackend) rollback(dir string, done []priorFile) {
	for i := len(done) - 1; i >= 0; i-- {
		p := done[i]
		if p.data == nil {
			_ = os.Remove(p.path)
			continue
		}
		if tmp, err := writeTemp(dir, p.data); err == nil {
			_ = os.Rename(tmp, p.path)
		}
	}
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (b *FileBackend) touchDescriptor(runID string) error {
	desc, ok, err := b.Describe(runID)
	if err != nil {
		return err
	}
	now := b.now().UTC()
	if !ok {
		desc = &RunDescriptor{RunID: runID, CreatedAt: now}
	}
	desc.UpdatedAt = now

	names, err := b.recordNames(runID)
	if err != nil {
		return err
	}
	desc.Tests = len(names)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(desc); err != nil {
		return cberrors.NewStorageError("failed to encode run descriptor", err)
	}
	dir := b.runDir(runID)
	tmp, err := writeTemp(dir, buf.Bytes())
	if err != nil {
		return cberrors.NewStorageError("failed to write run descriptor", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, descriptorName)); err != nil {
		_ = os.Remove(tmp)
		return cberrors.NewStorageError("failed to write run descriptor", err)
	}
	return nil
}

// Describe reads a run's run.toml. ok is false for an unknown run.
func (b *FileBackend) Describe(runID string) (*RunDescriptor, bool, error) {
	path := filepath.Join(b.runDir(runID), descriptorName)
	var desc RunDescriptor
	if _, err := toml.DecodeFile(path, &desc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, cberrors.NewDeserializationError(path, err)
	}
	return &desc, true, nil
}

// recordNames returns the escaped record file names of a run
func (b *FileBackend) recordNames(runID string) ([]string, error) {
	entries, err := os.ReadDir(b.runDir(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, cberrors.NewStorageError("failed to list run directory", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// List reads every record of a run ordered by test id
func (b *FileBackend) List(ctx context.Context, runID string) ([]Blob, error) {
	names, err := b.recordNames(runID)
	if err != nil {
		return nil, err
	}

	blobs := make([]Blob, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(b.runDir(runID), name)
		testID, err := url.QueryUnescape(strings.TrimSuffix(name, recordExt))
		if err != nil {
			return nil, cberrors.NewDeserializationError(path, fmt.Errorf("bad record file name: %w", err))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, cberrors.NewStorageError("failed to read mapping record", err)
		}
		blobs = append(blobs, Blob{TestID: testID, Data: data})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].TestID < blobs[j].TestID })
	return blobs, nil
}

// Runs lists run directories in sorted order
func (b *FileBackend) Runs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, cberrors.NewStorageError("failed to list runs", err)
	}

	runs := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		runID, err := url.QueryUnescape(e.Name())
		if err != nil {
			continue
		}
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}
