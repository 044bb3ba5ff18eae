package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	apperrors "github.com/jz315/autoplay/internal/errors"
)

// FileStore keeps the state in a JSON file
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore creates a store backed by path on the OS filesystem
func NewFileStore(path string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), path)
}

// NewFileStoreFs creates a store backed by path on fs
func NewFileStoreFs(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Path returns the state file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is an empty state.
func (s *FileStore) Load(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, &apperrors.PersistenceError{Op: "load", Err: err}
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, &apperrors.PersistenceError{Op: "load", Err: fmt.Errorf("failed to read %s: %w", s.path, err)}
	}
	return decode(data)
}

// Save writes the state to a temp file next to the target and renames it
// over the target, so readers never see a partial document
func (s *FileStore) Save(ctx context.Context, st *State) error {
	if err := ctx.Err(); err != nil {
		return &apperrors.PersistenceError{Op: "save", Err: err}
	}

	data, err := encode(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to create %s: %w", dir, err)}
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to write temp file: %w", err)}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to sync temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to close temp file: %w", err)}
	}

	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return &apperrors.PersistenceError{Op: "save", Err: fmt.Errorf("failed to replace %s: %w", s.path, err)}
	}
	return nil
}
