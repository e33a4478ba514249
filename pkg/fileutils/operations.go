package fileutils

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// MoveFile moves source to target, overwriting any existing target
// (last-write-wins). A plain rename is attempted first; when source and
// target sit on different devices it falls back to copy-then-remove, writing
// through a temp file so the destination never exposes a partial file.
func MoveFile(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "create target directory")
	}
	if err := RemoveExistingTarget(target); err != nil {
		return err
	}

	if err := os.Rename(source, target); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			if err := copyFileContents(source, target); err != nil {
				return errors.Wrap(err, "copy file across devices")
			}
			if err := os.Remove(source); err != nil {
				return errors.Wrap(err, "remove source after copy")
			}
			return nil
		}
		return errors.Wrap(err, "move file")
	}
	return nil
}

// RemoveExistingTarget clears the destination path so a move can overwrite
// it. A directory at the target is an error rather than something to delete.
func RemoveExistingTarget(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "stat existing target")
	}
	if info.IsDir() {
		return errors.Errorf("existing target %q is a directory", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove existing target %q", path)
	}
	return nil
}

// copyFileContents copies via a temp file in the target directory and renames
// it into place, so readers of the target directory only ever see complete
// files.
func copyFileContents(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "stat source")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".bookdrop-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "copy data")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "chmod temp file")
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}
