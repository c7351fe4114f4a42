package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// CacheDirName is the directory created under the configured cache root.
const CacheDirName = "instruction_cache"

const assetExt = ".mp3"

// Materializer writes fetched audio payloads into a dedicated cache directory
// and is the only place asset files are deleted.
type Materializer struct {
	dir string
	// repeats counts Discard calls for files that were already gone.
	repeats atomic.Int64
}

// NewMaterializer creates the cache directory below root.
func NewMaterializer(root string) (*Materializer, error) {
	dir := filepath.Join(root, CacheDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Materializer{dir: dir}, nil
}

// Dir returns the cache directory.
func (m *Materializer) Dir() string {
	return m.dir
}

// Materialize persists payload under a fresh random name.
func (m *Materializer) Materialize(seq uint64, announcementID string, payload []byte) (Asset, error) {
	if len(payload) == 0 {
		return Asset{}, errors.New("empty audio payload")
	}

	path := filepath.Join(m.dir, uuid.NewString()+assetExt)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to create asset file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		_ = os.Remove(path)
		return Asset{}, fmt.Errorf("failed to write asset file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Asset{}, fmt.Errorf("failed to close asset file: %w", err)
	}

	slog.Debug("Materializer: Wrote asset", "seq", seq, "path", path, "bytes", len(payload))
	return Asset{Seq: seq, Path: path, AnnouncementID: announcementID}, nil
}

// Discard takes ownership of the given assets and deletes their files.
// Each asset should be discarded exactly once; repeats are counted.
func (m *Materializer) Discard(assets ...Asset) {
	for _, a := range assets {
		if a.Path == "" {
			continue
		}
		err := os.Remove(a.Path)
		switch {
		case err == nil:
			slog.Debug("Materializer: Deleted asset", "seq", a.Seq, "path", a.Path)
		case os.IsNotExist(err):
			m.repeats.Add(1)
			slog.Debug("Materializer: Asset already deleted", "seq", a.Seq, "path", a.Path)
		default:
			slog.Warn("Materializer: Failed to delete asset", "path", a.Path, "error", err)
		}
	}
}

// Repeats returns how many discarded assets had already been deleted.
func (m *Materializer) Repeats() int64 {
	return m.repeats.Load()
}

// Flush removes every file in the cache directory, including orphans left
// behind by assets that could not be prepared.
func (m *Materializer) Flush() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache dir: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(m.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(entries) > 0 {
		slog.Debug("Materializer: Flushed cache", "dir", m.dir, "files", len(entries))
	}
	return errors.Join(errs...)
}
