// Package engine contains the transcoding engines which execute FFmpeg
// argument sequences on behalf of a conversion handler.
//
// Two engines are provided: NativeEngine runs the FFmpeg binary found on the
// host, and ContainerEngine runs FFmpeg inside a Docker container with the
// engine workspace mounted. Both stage inputs in to, and read outputs from, a
// private workspace directory so that argument sequences only ever refer to
// plain file names.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Verto/pkg/logger"
)

var log = logger.Get("Engine")

var (
	ErrNotLoaded         = errors.New("engine is not loaded")
	ErrArtifactNotFound  = errors.New("artifact not found in engine workspace")
	ErrUnknownEngineKind = errors.New("unknown engine kind")
	ErrDuplicateInput    = errors.New("more than one input shares the same staged name")
)

type Kind string

const (
	NativeKind    Kind = "native"
	ContainerKind Kind = "container"
)

type (
	// Engine is the contract that the conversion handler requires of any
	// transcoding backend. All methods are blocking, and accept a context
	// which aborts the operation when cancelled.
	Engine interface {
		// Load initialises the engine, and must be called before any
		// other method. Load is idempotent.
		Load(ctx context.Context) error

		// Stage copies the inputs provided in to the engine's
		// workspace, replacing any files of the same name.
		Stage(ctx context.Context, inputs []Input) error

		// Execute runs FFmpeg with the argument sequence provided, returning
		// an *ExecError if the invocation fails.
		Execute(ctx context.Context, args []string) error

		// ReadOutput returns the artifact with the name provided.
		ReadOutput(ctx context.Context, name string) (Output, error)

		// Remove deletes the named artifact from the workspace.
		Remove(ctx context.Context, name string) error

		// Shutdown releases the engine's resources. Files in the workspace
		// are retained so that a subsequent Load can resume.
		Shutdown(ctx context.Context) error

		// Native reports whether FFmpeg runs directly on the host, and
		// therefore whether hardware encoders are available.
		Native() bool
	}

	// FailureSignal is implemented by engines which can report that their
	// most recent invocation failed, even if that failure was not returned
	// as an error.
	FailureSignal interface {
		LastInvocationFailed() bool
	}

	// Input is a file to be staged in to the engine workspace. Name is the
	// file name used by argument sequences; if empty, the base name of
	// Path is used. If Data is non-nil it is written instead of
	// reading from Path.
	Input struct {
		Name string
		Path string
		Data []byte
	}

	// Output is an artifact read back from an engine. Native engines return
	// a Path to the artifact, sandboxed engines return the Data itself.
	Output struct {
		Path string
		Data []byte
	}

	// ExecError is returned from Execute when FFmpeg exits unsuccessfully.
	ExecError struct {
		Args     []string
		ExitCode int
		Stderr   []string
		Err      error
	}
)

// StagedName returns the file name the input is staged under.
func (input Input) StagedName() string {
	if input.Name != "" {
		return input.Name
	}

	return filepath.Base(input.Path)
}

// CheckInputNames returns ErrDuplicateInput if two of the inputs provided
// would be staged under the same name.
func CheckInputNames(inputs []Input) error {
	seen := make(map[string]struct{}, len(inputs))
	for _, input := range inputs {
		name := input.StagedName()
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateInput, name)
		}
		seen[name] = struct{}{}
	}

	return nil
}

// IsPath reports whether this output refers to a file, rather than
// holding the artifact in memory.
func (out Output) IsPath() bool { return out.Path != "" }

func (out Output) String() string {
	if out.IsPath() {
		return fmt.Sprintf("Output{path=%s}", out.Path)
	}

	return fmt.Sprintf("Output{data=%d bytes}", len(out.Data))
}

func (err *ExecError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with code %d", err.ExitCode)
	if err.Err != nil {
		msg = fmt.Sprintf("ffmpeg failed: %v", err.Err)
	}

	if len(err.Stderr) > 0 {
		msg += ": " + strings.Join(err.Stderr, " | ")
	}

	return msg
}

func (err *ExecError) Unwrap() error { return err.Err }

// New constructs the engine selected by the configuration provided.
func New(config Config) (Engine, error) {
	switch config.Kind {
	case NativeKind, "":
		return NewNativeEngine(config), nil
	case ContainerKind:
		return NewContainerEngine(config), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngineKind, config.Kind)
	}
}
