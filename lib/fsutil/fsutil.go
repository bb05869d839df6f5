package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes contents to a temporary file next to `path` and renames it
// over `path`, readers therefore observe either the old or the new contents, never
// a partially written file.
func WriteFileAtomic(path string, contents []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	_, err = tmp.Write(contents)
	if err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	err = tmp.Close()
	if err != nil {
		cleanup()
		return err
	}
	err = os.Chmod(tmpPath, perm)
	if err != nil {
		cleanup()
		return err
	}
	err = os.Rename(tmpPath, path)
	if err != nil {
		cleanup()
		return err
	}
	return nil
}

// WriteJSON marshals v without indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	contents, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, contents, 0o644)
}

// ReadJSON unmarshals the file at path into v, the returned error satisfies
// os.IsNotExist when the file is missing.
func ReadJSON(path string, v any) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	err = json.Unmarshal(contents, v)
	if err != nil {
		return fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}
