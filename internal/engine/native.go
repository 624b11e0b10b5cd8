package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/hbomb79/Verto/pkg/logger"
)

// NativeEngine runs the host's FFmpeg binary. Invocations run with the
// workspace as their working directory, and outputs are returned as paths.
type NativeEngine struct {
	*workspace
	config Config
	loaded atomic.Bool
}

func NewNativeEngine(config Config) *NativeEngine {
	return &NativeEngine{workspace: newWorkspace(config.WorkDir), config: config}
}

func (engine *NativeEngine) Load(ctx context.Context) error {
	if engine.loaded.Load() {
		return nil
	}

	if _, err := exec.LookPath(engine.config.FfmpegBinPath); err != nil {
		return fmt.Errorf("ffmpeg binary %s is not usable: %w", engine.config.FfmpegBinPath, err)
	}

	if _, err := engine.open(); err != nil {
		return err
	}

	engine.loaded.Store(true)
	log.Emit(logger.SUCCESS, "Native engine loaded (ffmpeg=%s)\n", engine.config.FfmpegBinPath)
	return nil
}

func (engine *NativeEngine) Stage(ctx context.Context, inputs []Input) error {
	if !engine.loaded.Load() {
		return ErrNotLoaded
	}

	return engine.stage(inputs)
}

func (engine *NativeEngine) Execute(ctx context.Context, args []string) error {
	if !engine.loaded.Load() {
		return ErrNotLoaded
	}

	root, err := engine.dir()
	if err != nil {
		return err
	}

	stderr := &bytes.Buffer{}
	cmd := exec.CommandContext(ctx, engine.config.FfmpegBinPath, append([]string{"-y", "-hide_banner", "-nostdin"}, args...)...)
	cmd.Dir = root
	cmd.Stderr = stderr

	log.Emit(logger.DEBUG, "Executing %s %s\n", engine.config.FfmpegBinPath, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		engine.failed.Store(true)

		execErr := &ExecError{Args: args, ExitCode: -1, Stderr: tail(stderr.String(), engine.config.StderrTail)}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			execErr.Err = ctxErr
		} else if execErr.ExitCode == -1 {
			execErr.Err = err
		}

		return execErr
	}

	engine.failed.Store(false)
	return nil
}

func (engine *NativeEngine) ReadOutput(ctx context.Context, name string) (Output, error) {
	path, err := engine.stat(name)
	if err != nil {
		return Output{}, err
	}

	return Output{Path: path}, nil
}

func (engine *NativeEngine) Remove(ctx context.Context, name string) error {
	return engine.remove(name)
}

func (engine *NativeEngine) Shutdown(ctx context.Context) error {
	engine.loaded.Store(false)
	log.Emit(logger.STOP, "Native engine shut down\n")
	return nil
}

// Close shuts the engine down and deletes its workspace, including any
// outputs which have not yet been moved out of it.
func (engine *NativeEngine) Close() error {
	engine.loaded.Store(false)
	return engine.destroy()
}

func (engine *NativeEngine) Native() bool { return true }

// tail returns the last n non-empty lines of the output provided.
func tail(output string, n int) []string {
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	for _, line := range strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return lines
}
