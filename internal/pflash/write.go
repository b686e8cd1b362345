package pflash

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

type WriteOptions struct {
	// Progress shows a byte progress bar on stderr while writing.
	Progress bool
}

// WriteFile stores img at path. The data goes to a temporary file in the
// same directory which is then renamed over path, so a reader never sees a
// partially written image under the final name.
func WriteFile(path string, img []byte, opts WriteOptions) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmp
	if opts.Progress {
		bar := progressbar.DefaultBytes(int64(len(img)), "writing "+filepath.Base(path))
		defer bar.Close()
		w = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(w, bytes.NewReader(img)); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod image: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename image: %w", err)
	}
	committed = true

	return nil
}

// ReadFile loads an image written by WriteFile.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
