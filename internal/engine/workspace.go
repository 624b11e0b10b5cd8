package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hbomb79/Verto/pkg/logger"
)

const workspacePattern = "verto-*"

// workspace is the private directory an engine stages inputs in to, and
// writes artifacts to. It is shared by the native and container engines.
type workspace struct {
	*sync.Mutex
	base   string
	root   string
	failed atomic.Bool
}

func newWorkspace(base string) *workspace {
	return &workspace{Mutex: &sync.Mutex{}, base: base}
}

// open creates the workspace directory if it does not already exist.
func (ws *workspace) open() (string, error) {
	ws.Lock()
	defer ws.Unlock()

	if ws.root != "" {
		if _, err := os.Stat(ws.root); err == nil {
			return ws.root, nil
		}
	}

	if ws.base != "" {
		if err := os.MkdirAll(ws.base, 0o755); err != nil {
			return "", fmt.Errorf("failed to create workspace base %s: %w", ws.base, err)
		}
	}

	root, err := os.MkdirTemp(ws.base, workspacePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	ws.root = root
	log.Emit(logger.NEW, "Created engine workspace %s\n", root)
	return root, nil
}

func (ws *workspace) dir() (string, error) {
	ws.Lock()
	defer ws.Unlock()

	if ws.root == "" {
		return "", ErrNotLoaded
	}

	return ws.root, nil
}

// resolve returns the absolute path of the named file inside the
// workspace. Names which escape the workspace are rejected.
func (ws *workspace) resolve(name string) (string, error) {
	root, err := ws.dir()
	if err != nil {
		return "", err
	}

	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("artifact name %q is not local to the workspace", name)
	}

	return filepath.Join(root, name), nil
}

func (ws *workspace) stage(inputs []Input) error {
	if err := CheckInputNames(inputs); err != nil {
		return err
	}

	for _, input := range inputs {
		name := input.StagedName()

		dst, err := ws.resolve(name)
		if err != nil {
			return err
		}

		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to replace staged input %s: %w", name, err)
		}

		if input.Data != nil {
			if err := os.WriteFile(dst, input.Data, 0o644); err != nil {
				return fmt.Errorf("failed to stage input %s: %w", name, err)
			}

			continue
		}

		if err := linkOrCopy(input.Path, dst); err != nil {
			return fmt.Errorf("failed to stage input %s from %s: %w", name, input.Path, err)
		}

		log.Emit(logger.DEBUG, "Staged input %s as %s\n", input.Path, name)
	}

	return nil
}

func (ws *workspace) read(name string) ([]byte, error) {
	path, err := ws.stat(name)
	if err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}

// stat resolves the named artifact, returning ErrArtifactNotFound if it does
// not exist.
func (ws *workspace) stat(name string) (string, error) {
	path, err := ws.resolve(name)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}

		return "", err
	}

	return path, nil
}

func (ws *workspace) remove(name string) error {
	path, err := ws.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}

		return err
	}

	return nil
}

// destroy removes the workspace and everything inside it.
func (ws *workspace) destroy() error {
	ws.Lock()
	defer ws.Unlock()

	if ws.root == "" {
		return nil
	}

	root := ws.root
	ws.root = ""
	log.Emit(logger.REMOVE, "Removing engine workspace %s\n", root)
	return os.RemoveAll(root)
}

func (ws *workspace) LastInvocationFailed() bool { return ws.failed.Load() }

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
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
		return err
	}

	return out.Close()
}
