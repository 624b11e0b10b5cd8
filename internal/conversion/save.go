package conversion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Verto/pkg/logger"
)

// maxNameAttempts bounds the numeric suffixes tried when resolving a
// unique output file name.
const maxNameAttempts = 1000

var nameSanitizer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "")

// Save writes the outputs provided in to the directory provided, returning the
// path of each saved file (in the same order as the outputs). Path results are
// moved in to the directory, and in-memory results are written to it. External
// outputs were written by the caller directly and are left in place. A numeric
// suffix is added to the file name if it would otherwise collide; names are
// reserved by exclusive creation so concurrent saves never share a path.
func Save(outputs []Output, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	saved := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out.External {
			saved = append(saved, out.Result.Path)
			continue
		}

		dst, err := uniquePath(dir, out.Name, out.Extension)
		if err != nil {
			return saved, err
		}

		if out.Result.IsPath() {
			err = move(out.Result.Path, dst)
		} else {
			err = os.WriteFile(dst, out.Result.Data, 0o644)
		}
		if err != nil {
			os.Remove(dst)
			return saved, fmt.Errorf("failed to save output %s: %w", out.Name, err)
		}

		log.Emit(logger.SUCCESS, "Saved output %s\n", dst)
		saved = append(saved, dst)
	}

	return saved, nil
}

func uniquePath(dir string, name string, extension string) (string, error) {
	name = strings.TrimSpace(nameSanitizer.Replace(name))
	if name == "" || name == "." || name == ".." {
		name = "output"
	}

	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)", name, i)
		}
		if extension != "" {
			candidate += "." + extension
		}

		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		} else if err != nil {
			return "", fmt.Errorf("failed to reserve output %s: %w", path, err)
		}

		f.Close()
		return path, nil
	}

	return "", fmt.Errorf("no unique file name available for %s in %s", name, dir)
}

// move renames src to dst, falling back to a copy when they reside on
// different devices.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}
