// Package conversion owns a single logical conversion request end-to-end.
//
// A Handler builds the base argument sequence for its inputs, applies any
// trimming, invokes the engine for the primary encode and then attempts the
// optional artwork and metadata enhancements, before reading back the output
// and cleaning up its intermediate artifacts. Multi-segment requests repeat
// this cycle once per segment, accumulating every output in the handler's
// batch until CompleteOperation is called.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/command"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
)

var log = logger.Get("Conversion")

var (
	// ErrNoInputs is a usage error, returned when a build or start is
	// attempted before any inputs are registered.
	ErrNoInputs = command.ErrNoInputs

	// ErrDuplicateInput is a usage error, returned by AddInputs when two
	// inputs would be staged under the same name.
	ErrDuplicateInput = engine.ErrDuplicateInput

	// ErrUnknownArtworkSource is a usage error, returned by Start when the
	// artwork source does not name one of the registered inputs.
	ErrUnknownArtworkSource = errors.New("artwork source is not a registered input")

	// ErrRawPathMultiSegment is a usage error, returned by Start when a
	// caller supplied output path is combined with a multi-segment trim.
	ErrRawPathMultiSegment = errors.New("a raw output path cannot be used with a multi-segment trim")

	// ErrInvocationFailed wraps any failure of the primary engine invocation.
	ErrInvocationFailed = errors.New("primary engine invocation failed")
)

type (
	// OperationFlags are the per-operation options given to Start.
	OperationFlags struct {
		// RawPath indicates the argument sequence was supplied by the
		// caller, and ends with the caller's own output path.
		RawPath bool

		// Artwork requests that embedded artwork be re-attached to
		// the output.
		Artwork bool

		// ArtworkSource names a staged input to take the artwork from.
		ArtworkSource string

		// Extension, if set, overrides the resolved output extension.
		Extension string

		// SkipTrim disables trimming for this operation only.
		SkipTrim bool

		// SuggestedName is the display name given to the output, unless
		// a segment label replaces it.
		SuggestedName string
	}

	// Output describes a single completed output of a conversion.
	Output struct {
		OperationID uuid.UUID
		Result      engine.Output
		Extension   string
		Name        string

		// External is true when the result is a caller supplied path
		// which is not owned by the handler.
		External bool
	}

	// Listener is notified each time an operation transitions state.
	Listener func(operationID uuid.UUID, state State)

	// Handler orchestrates the engine invocations required for one logical
	// conversion request. A handler is not safe for concurrent use; concurrent
	// requests should each use their own handler.
	Handler struct {
		snapshot     settings.Snapshot
		engine       engine.Engine
		capabilities capability.Table
		builder      *command.Builder
		listeners    []Listener

		inputs  []engine.Input
		batch   []Output
		segment int
		track   int
	}
)

// New creates a handler which captures the snapshot provided for its
// lifetime, and executes its operations using the engine provided.
func New(snapshot settings.Snapshot, eng engine.Engine, capabilities capability.Table, listeners ...Listener) *Handler {
	return &Handler{
		snapshot:     snapshot,
		engine:       eng,
		capabilities: capabilities,
		builder:      command.NewBuilder(snapshot, eng.Native(), capabilities),
		listeners:    listeners,
		inputs:       make([]engine.Input, 0),
		batch:        make([]Output, 0),
	}
}

// AddInputs replaces the handler's registered inputs. Inputs which would be
// staged under the same name are rejected, leaving the previous inputs in
// place.
func (h *Handler) AddInputs(inputs []engine.Input) error {
	if err := engine.CheckInputNames(inputs); err != nil {
		return err
	}

	h.inputs = slices.Clone(inputs)

	names := make([]string, len(inputs))
	for i, input := range inputs {
		names[i] = inputName(input)
	}
	h.builder.AddInputs(names)
	return nil
}

// Build returns the base argument sequence for the registered inputs.
func (h *Handler) Build(isImage bool) ([]string, error) {
	return h.builder.Build(isImage)
}

// Batch returns the outputs accumulated since the last call to
// CompleteOperation.
func (h *Handler) Batch() []Output { return slices.Clone(h.batch) }

// SegmentIndex returns the cursor of the segment most recently converted.
func (h *Handler) SegmentIndex() int { return h.segment }

// CompleteOperation resets the batch, segment cursor and track counter.
// It must be called once the outputs of a request have been consumed,
// before the handler is used for another request.
func (h *Handler) CompleteOperation() {
	h.batch = make([]Output, 0)
	h.segment = 0
	h.track = 0
}

// Start runs the conversion described by the argument sequence provided
// (typically the result of Build), returning the handler's batch of outputs.
// Multi-segment trims convert every remaining segment before returning. Only
// a failure to load or stage in to the engine, or a failure of the primary
// invocation, is returned as an error; optional enhancements which fail are
// logged and skipped.
func (h *Handler) Start(ctx context.Context, args []string, flags OperationFlags) ([]Output, error) {
	if len(h.inputs) == 0 {
		return nil, ErrNoInputs
	}
	if err := h.CheckFlags(flags); err != nil {
		return nil, err
	}

	if err := h.prepareEngine(ctx); err != nil {
		return nil, err
	}

	original := slices.Clone(args)
	for {
		more, err := h.run(ctx, slices.Clone(original), flags)
		if err != nil {
			return nil, err
		}

		if !more {
			return h.Batch(), nil
		}

		h.segment++
		log.Emit(logger.DEBUG, "Continuing with segment %d\n", h.segment)
		if h.snapshot.Engine().RelaunchBetweenSegments {
			if err := h.relaunchEngine(ctx); err != nil {
				return nil, err
			}
		}
	}
}

// CheckFlags returns a usage error if the flags provided cannot be honoured
// for the registered inputs and the handler's snapshot.
func (h *Handler) CheckFlags(flags OperationFlags) error {
	if flags.ArtworkSource != "" && !slices.ContainsFunc(h.inputs, func(in engine.Input) bool { return inputName(in) == flags.ArtworkSource }) {
		return fmt.Errorf("%w: %s", ErrUnknownArtworkSource, flags.ArtworkSource)
	}

	if flags.RawPath && !flags.SkipTrim && h.snapshot.Trim().Mode == settings.TrimMulti {
		return ErrRawPathMultiSegment
	}

	return nil
}

func (h *Handler) prepareEngine(ctx context.Context) error {
	if err := h.engine.Load(ctx); err != nil {
		log.Emit(logger.ERROR, "Failed to load engine: %v\n", err)
		return fmt.Errorf("failed to load engine: %w", err)
	}

	if err := h.engine.Stage(ctx, h.inputs); err != nil {
		log.Emit(logger.ERROR, "Failed to stage inputs: %v\n", err)
		return fmt.Errorf("failed to stage inputs: %w", err)
	}

	return nil
}

func (h *Handler) relaunchEngine(ctx context.Context) error {
	log.Emit(logger.INFO, "Relaunching engine between segments\n")
	if err := h.engine.Shutdown(ctx); err != nil {
		log.Emit(logger.WARNING, "Failed to shutdown engine before relaunch: %v\n", err)
	}

	return h.prepareEngine(ctx)
}

// run performs a single pass of the conversion for the current segment,
// appending its output to the batch. It returns true if a further segment
// remains to be converted.
func (h *Handler) run(ctx context.Context, args []string, flags OperationFlags) (bool, error) {
	id := uuid.New()
	h.notify(id, Loaded)

	extension := h.resolveExtension(args, flags)

	trim := trimResult{name: flags.SuggestedName}
	if !flags.SkipTrim {
		var err error
		if trim, err = h.applyTrim(args, flags.SuggestedName); err != nil {
			return false, err
		}
		args = trim.args
	}

	chain := newRevisionChain()
	args, placeholder := h.finalizeOutput(id, args, trim.metadata, extension, flags, chain)

	log.Emit(logger.INFO, "Starting operation %s (segment %d, extension %s)\n", id, h.segment, extension)
	if err := h.engine.Execute(ctx, args); err != nil {
		log.Emit(logger.ERROR, "Primary invocation for operation %s failed: %v\n", id, err)
		h.cleanup(ctx, chain, "")
		return false, fmt.Errorf("%w: %w", ErrInvocationFailed, err)
	}
	h.notify(id, PrimaryEncoded)

	if h.shouldAttemptArtwork(flags) {
		h.attachArtwork(ctx, id, extension, flags, chain)
		h.notify(id, ArtworkAttempted)
	}

	if !flags.RawPath && h.snapshot.Metadata().ForceCopy {
		h.copyMetadata(ctx, id, extension, chain)
		h.notify(id, MetadataAttempted)
	}

	out, err := h.readOutput(ctx, id, extension, trim.name, flags, placeholder, chain)
	if err != nil {
		h.cleanup(ctx, chain, "")
		return false, err
	}
	h.notify(id, OutputRead)

	kept := ""
	if ref, owned := chain.currentRef(); owned && out.Result.IsPath() {
		kept = ref
	}
	h.cleanup(ctx, chain, kept)
	h.notify(id, CleanedUp)

	h.batch = append(h.batch, out)
	log.Emit(logger.SUCCESS, "Operation %s produced %s (%s)\n", id, out.Name, out.Result)

	if trim.more {
		return true, nil
	}

	h.notify(id, Done)
	return false, nil
}

// finalizeOutput resolves or appends the output argument of the sequence,
// recording the primary revision in the chain provided. It reports whether
// the trailing argument was an unresolved placeholder.
func (h *Handler) finalizeOutput(id uuid.UUID, args []string, metadata []string, extension string, flags OperationFlags, chain *revisionChain) ([]string, bool) {
	trailing := ""
	if len(args) > 0 {
		trailing = args[len(args)-1]
	}

	switch {
	case isPlaceholder(trailing):
		resolved := strings.ReplaceAll(trailing, IDToken, id.String())
		chain.record(Primary, resolved, true)
		return append(append(args[:len(args)-1:len(args)-1], metadata...), resolved), true
	case flags.RawPath:
		chain.record(Primary, trailing, false)
		if len(args) == 0 {
			return metadata, false
		}
		return append(append(args[:len(args)-1:len(args)-1], metadata...), trailing), false
	default:
		name := ArtifactName(Primary, id.String(), extension)
		chain.record(Primary, name, true)
		return append(append(args, metadata...), name), false
	}
}

func (h *Handler) readOutput(ctx context.Context, id uuid.UUID, extension string, name string, flags OperationFlags, placeholder bool, chain *revisionChain) (Output, error) {
	if name == "" {
		name = strings.TrimSuffix(inputName(h.inputs[0]), filepath.Ext(inputName(h.inputs[0])))
	}

	out := Output{OperationID: id, Extension: extension, Name: name}
	ref, owned := chain.currentRef()
	if (flags.RawPath && flags.ArtworkSource == "" && !placeholder) || !owned {
		out.Result = engine.Output{Path: ref}
		out.External = true
		return out, nil
	}

	result, err := h.engine.ReadOutput(ctx, ref)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to read output %s of operation %s: %v\n", ref, id, err)
		return out, fmt.Errorf("failed to read output %s: %w", ref, err)
	}

	out.Result = result
	return out, nil
}

// cleanup removes every artifact the handler wrote for the chain provided,
// except for the artifact named by keep. Failures are logged only.
func (h *Handler) cleanup(ctx context.Context, chain *revisionChain, keep string) {
	for _, name := range chain.ownedArtifacts() {
		if name == keep {
			continue
		}

		if err := h.engine.Remove(ctx, name); err != nil {
			if errors.Is(err, engine.ErrArtifactNotFound) {
				log.Emit(logger.VERBOSE, "Artifact %s already absent\n", name)
				continue
			}

			log.Emit(logger.WARNING, "Failed to remove intermediate artifact %s: %v\n", name, err)
		}
	}
}

func (h *Handler) notify(id uuid.UUID, state State) {
	log.Emit(logger.VERBOSE, "Operation %s -> %s\n", id, state)
	for _, listener := range h.listeners {
		listener(id, state)
	}
}

func inputName(input engine.Input) string { return input.StagedName() }
