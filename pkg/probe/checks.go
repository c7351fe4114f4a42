package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirWritable checks that a file can be created and removed in dir.
func DirWritable(dir string) CheckFunc {
	return func(ctx context.Context) error {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("directory not writable: %w", err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}
}

// FileReadable checks that path exists and is a regular file. An empty path passes.
func FileReadable(path string) CheckFunc {
	return func(ctx context.Context) error {
		if path == "" {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", filepath.Base(path))
		}
		return nil
	}
}

// NotEmpty fails when value is blank.
func NotEmpty(what, value string) CheckFunc {
	return func(ctx context.Context) error {
		if value == "" {
			return errors.New(what + " is not set")
		}
		return nil
	}
}
