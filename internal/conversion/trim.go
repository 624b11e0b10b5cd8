package conversion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/segment"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
)

type trimResult struct {
	args []string

	// metadata are output options placed immediately before the
	// output argument.
	metadata []string
	name     string

	// more is true when a further segment follows this one.
	more bool
}

// applyTrim inserts the trim markers for the current segment in to the
// argument sequence provided.
func (h *Handler) applyTrim(args []string, suggestedName string) (trimResult, error) {
	trim := h.snapshot.Trim()
	result := trimResult{args: args, name: suggestedName}

	switch trim.Mode {
	case settings.TrimSingle:
		markers := make([]string, 0, 4)
		if trim.Start != "" {
			markers = append(markers, "-ss", trim.Start)
		}
		if trim.End != "" {
			markers = append(markers, "-to", trim.End)
		}

		result.args = insertAfterFirstInput(args, markers)
	case settings.TrimMulti:
		seg, err := segment.At(trim.Segments, trim.Separator, h.segment, trim.SegmentOrder())
		if err != nil {
			return result, fmt.Errorf("failed to resolve segment %d: %w", h.segment, err)
		}

		markers := []string{"-ss", seg.Start}
		if seg.End != "" {
			markers = append(markers, "-to", seg.End)
		}
		result.args = insertAfterFirstInput(args, markers)

		if trim.AddMetadata {
			h.track++
			result.metadata = []string{"-metadata", "title=" + seg.Label, "-metadata", fmt.Sprintf("track=%d", h.track)}
		}

		if seg.Label != "" {
			result.name = seg.Label
		}
		result.more = seg.End != ""
		log.Emit(logger.DEBUG, "Segment %d: %q from %s to %q\n", h.segment, seg.Label, seg.Start, seg.End)
	}

	return result, nil
}

// insertAfterFirstInput returns a copy of args with the markers placed
// immediately after the first "-i <input>" pair. If no input is declared,
// the markers are prepended.
func insertAfterFirstInput(args []string, markers []string) []string {
	if len(markers) == 0 {
		return args
	}

	at := 0
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-i" {
			at = i + 2
			break
		}
	}

	out := make([]string, 0, len(args)+len(markers))
	out = append(out, args[:at]...)
	out = append(out, markers...)
	return append(out, args[at:]...)
}

// resolveExtension determines the extension of the output for this
// operation.
func (h *Handler) resolveExtension(args []string, flags OperationFlags) string {
	ext := strings.TrimPrefix(flags.Extension, ".")
	switch {
	case ext != "":
	case flags.RawPath && len(args) > 0:
		ext = extensionOf(args[len(args)-1])
	default:
		ext = h.capabilityExtension()
	}

	if ext == "" {
		ext = extensionOf(inputName(h.inputs[0]))
	}

	if container := h.snapshot.Container(); container != "" && h.builder.IsPrimaryPass() {
		ext = container
	}

	return ext
}

// capabilityExtension looks up the default extension for the codec selected
// for the current media kind. Stream copy selections yield no extension.
func (h *Handler) capabilityExtension() string {
	kind, codec := capability.Audio, h.snapshot.Audio().Codec
	switch {
	case h.builder.IsImage():
		kind, codec = capability.Image, h.snapshot.Image().Codec
	case h.snapshot.Video().Enabled:
		kind, codec = capability.Video, h.snapshot.Video().Codec
	}

	c, ok := h.capabilities.Lookup(kind, codec)
	if !ok {
		if suggestion, ok := h.capabilities.Suggest(kind, codec); ok {
			log.Emit(logger.WARNING, "No capability for %s codec %q (did you mean %q?)\n", kind, codec, suggestion)
		} else {
			log.Emit(logger.WARNING, "No capability for %s codec %q\n", kind, codec)
		}

		return ""
	}

	if c.Extension == capability.CopyExtension {
		return ""
	}

	return c.Extension
}

func extensionOf(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
