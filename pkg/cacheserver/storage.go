package cacheserver

import (
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Storage keeps artifact blobs on disk, one file per task and artifact
// name. Writes go through a temporary file so a dropped upload never leaves
// a partial blob servable.
type Storage struct {
	rootDir string
}

func NewStorage(rootDir string) (*Storage, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	return &Storage{
		rootDir: rootDir,
	}, nil
}

func (s *Storage) Write(taskID, name string, reader io.Reader) error {
	filename, err := s.filename(taskID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	temp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".partial-*")
	if err != nil {
		return err
	}
	defer func() {
		temp.Close()
		os.Remove(temp.Name())
	}()

	if _, err := io.Copy(temp, reader); err != nil {
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(temp.Name(), filename)
}

func (s *Storage) Serve(w http.ResponseWriter, r *http.Request, taskID, name string) {
	filename, err := s.filename(taskID, name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, filename)
}

// Prune removes blobs last modified before cutoff and returns how many went.
func (s *Storage) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.Walk(s.rootDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !fi.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

func (s *Storage) filename(taskID, name string) (string, error) {
	if taskID == "" || !fs.ValidPath(taskID) {
		return "", errors.Errorf("invalid task id %q", taskID)
	}
	if name == "" || !fs.ValidPath(name) {
		return "", errors.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.rootDir, taskID, filepath.FromSlash(name)), nil
}
