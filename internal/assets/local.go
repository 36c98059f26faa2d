package assets

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// LocalStore writes assets below dir on an afero filesystem and serves them under baseURL.
type LocalStore struct {
	fs      afero.Fs
	dir     string
	baseURL string
}

func NewLocalStore(fs afero.Fs, dir, baseURL string) *LocalStore {
	return &LocalStore{fs: fs, dir: dir, baseURL: baseURL}
}

// FS exposes the backing filesystem rooted at the asset directory, for static serving.
func (s *LocalStore) FS() afero.Fs {
	return afero.NewBasePathFs(s.fs, s.dir)
}

func (s *LocalStore) Put(_ context.Context, key string, _ string, body []byte) (string, error) {
	full := path.Join(s.dir, key)
	if err := s.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, full, body, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", key, err)
	}
	return joinURL(s.baseURL, key), nil
}

func (s *LocalStore) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset %s: %w", key, err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
