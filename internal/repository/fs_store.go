package repository

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// writeFileAtomic stages data in a temp file next to path and renames it into
// place, so readers see either the old store or the new one.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create store dir %s", dir)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp store")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return errors.Wrap(err, "write temp store")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return errors.Wrap(err, "sync temp store")
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return errors.Wrap(err, "close temp store")
	}
	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return errors.Wrapf(err, "publish store %s", path)
	}
	return nil
}

// readStore returns the file contents, or nil when the file does not exist.
func readStore(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
