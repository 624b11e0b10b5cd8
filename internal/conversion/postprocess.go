package conversion

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/pkg/logger"
)

// remuxBitrate is given to the hardware resolver for remux invocations
// when no video bitrate preference is available.
const remuxBitrate = "2M"

// artworkIncompatible lists containers which cannot carry an attached
// picture stream.
var artworkIncompatible = []string{"wav", "webm", "ogg", "opus", "aac", "ts"}

func (h *Handler) shouldAttemptArtwork(flags OperationFlags) bool {
	return ((flags.Artwork || h.builder.AttemptArtwork()) && !flags.RawPath) || flags.ArtworkSource != ""
}

// attachArtwork extracts a single frame from the artwork source, and muxes
// it in to the current output as an attached picture. Failure leaves the
// revision chain unchanged.
func (h *Handler) attachArtwork(ctx context.Context, id uuid.UUID, extension string, flags OperationFlags, chain *revisionChain) {
	if slices.Contains(artworkIncompatible, extension) {
		log.Emit(logger.DEBUG, "Skipping artwork for operation %s, %s cannot embed artwork\n", id, extension)
		return
	}

	source := flags.ArtworkSource
	if source == "" {
		source = inputName(h.inputs[0])
	}

	artwork := ArtifactName(Artwork, id.String(), artworkExtension)
	chain.record(Artwork, artwork, true)
	if !h.optionalStep(ctx, "artwork extraction", []string{"-i", source, "-map", "0:v:0", "-frames:v", "1", artwork}) {
		return
	}

	current, _ := chain.currentRef()
	muxed := ArtifactName(Muxed, id.String(), extension)
	chain.record(Muxed, muxed, true)

	// The attached picture follows any video stream of the primary output
	pictureIndex := 0
	if h.builder.IsPrimaryPass() {
		pictureIndex = 1
	}

	bitrate := h.snapshot.Video().Bitrate
	if bitrate == "" {
		bitrate = remuxBitrate
	}

	groups := h.builder.Resolver().Resolve(false, bitrate)
	args := slices.Concat(
		groups.Beginning,
		[]string{"-i", current, "-i", artwork, "-map", "0", "-map", "1", "-c", "copy"},
		groups.After,
		[]string{fmt.Sprintf("-disposition:v:%d", pictureIndex), "attached_pic", muxed},
	)
	if !h.optionalStep(ctx, "artwork attachment", args) {
		return
	}

	chain.advance(Muxed)
	log.Emit(logger.SUCCESS, "Attached artwork from %s to operation %s\n", source, id)
}

// copyMetadata copies the global metadata of the first input on to the
// current output. Failure leaves the revision chain unchanged.
func (h *Handler) copyMetadata(ctx context.Context, id uuid.UUID, extension string, chain *revisionChain) {
	current, _ := chain.currentRef()
	copied := ArtifactName(MetadataCopied, id.String(), extension)
	chain.record(MetadataCopied, copied, true)

	args := []string{"-i", current, "-i", inputName(h.inputs[0]), "-map", "0", "-map_metadata", "1", "-c", "copy", copied}
	if !h.optionalStep(ctx, "metadata copy", args) {
		return
	}

	chain.advance(MetadataCopied)
	log.Emit(logger.SUCCESS, "Copied metadata for operation %s\n", id)
}

// optionalStep runs a best-effort engine invocation, reporting whether it
// succeeded. An invocation fails if the engine returns an error, or if the
// engine's failure signal is raised by the invocation.
func (h *Handler) optionalStep(ctx context.Context, description string, args []string) bool {
	signal, hasSignal := h.engine.(engine.FailureSignal)
	raisedBefore := hasSignal && signal.LastInvocationFailed()

	err := h.engine.Execute(ctx, args)
	if err == nil && hasSignal && !raisedBefore && signal.LastInvocationFailed() {
		err = errors.New("engine signalled failure")
	}

	if err != nil {
		log.Emit(logger.WARNING, "Optional %s step failed, continuing without it: %v\n", description, err)
		return false
	}

	return true
}
