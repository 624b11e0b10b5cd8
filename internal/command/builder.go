// Package command assembles the base FFmpeg argument sequence for a
// conversion from a preference snapshot.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/filter"
	"github.com/hbomb79/Verto/internal/hwaccel"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
)

var (
	log = logger.Get("Command")

	// ErrNoInputs is returned when a build is attempted before any inputs
	// have been registered.
	ErrNoInputs = errors.New("no inputs registered")

	audioQualityMatcher = regexp.MustCompile(`\d+`)
)

const (
	minAudioQuality = 1
	maxAudioQuality = 9
)

// Builder assembles argument sequences for a single conversion handler. It
// is not safe for concurrent use; each handler owns its own builder.
type Builder struct {
	snapshot settings.Snapshot
	resolver *hwaccel.Resolver
	inputs   []string

	isImage        bool
	isPrimaryPass  bool
	attemptArtwork bool
}

// NewBuilder creates a builder for the snapshot provided. Native should
// reflect whether the engine executing the arguments runs FFmpeg on the
// host (and therefore has access to hardware encoders).
func NewBuilder(snapshot settings.Snapshot, native bool, capabilities capability.Table) *Builder {
	return &Builder{
		snapshot: snapshot,
		resolver: hwaccel.NewResolver(snapshot, native, capabilities),
		inputs:   make([]string, 0),
	}
}

// AddInputs replaces the registered inputs with those provided.
func (b *Builder) AddInputs(inputs []string) {
	b.inputs = append(make([]string, 0, len(inputs)), inputs...)
}

func (b *Builder) Inputs() []string {
	return append(make([]string, 0, len(b.inputs)), b.inputs...)
}

func (b *Builder) Resolver() *hwaccel.Resolver { return b.resolver }

// IsImage reports whether the most recent build targeted a still image.
func (b *Builder) IsImage() bool { return b.isImage }

// IsPrimaryPass reports whether the most recent build produced a video or
// image encode, in which case the preferred output container applies.
func (b *Builder) IsPrimaryPass() bool { return b.isPrimaryPass }

// AttemptArtwork reports whether the most recent build requested that
// embedded artwork be re-attached to the output.
func (b *Builder) AttemptArtwork() bool { return b.attemptArtwork }

// Build returns the full base argument sequence for the registered inputs.
// The output declaration is not included. Build is idempotent for an
// unchanged set of inputs, aside from updating the flags reported by IsImage,
// IsPrimaryPass and AttemptArtwork.
func (b *Builder) Build(isImage bool) ([]string, error) {
	video, audio := b.snapshot.Video(), b.snapshot.Audio()
	b.isImage = isImage
	b.isPrimaryPass = isImage || video.Enabled
	b.attemptArtwork = false

	groups := b.resolver.Resolve(isImage, "")
	args := append(make([]string, 0, 32), groups.Beginning...)

	if len(b.inputs) == 0 {
		return nil, ErrNoInputs
	}

	for _, input := range b.inputs {
		args = append(args, "-i", input)
	}

	if b.isPrimaryPass {
		args = append(args, groups.After...)
		args = append(args, b.videoArgs(video, isImage)...)
	} else {
		args = append(args, "-vn")
	}

	if audio.Enabled && !isImage {
		args = append(args, b.audioArgs(audio)...)
		b.attemptArtwork = audio.ReencodeArtwork
	} else {
		args = append(args, "-an")
	}

	log.Emit(logger.VERBOSE, "Built arguments %v\n", args)
	return args, nil
}

func (b *Builder) videoArgs(video settings.VideoPreferences, isImage bool) []string {
	args := make([]string, 0)
	specs := make([]filter.Spec, 0, 8)

	if video.Aspect.Enabled {
		if video.Aspect.Ratio != "" {
			args = append(args, "-aspect", video.Aspect.Ratio)
		}

		specs = append(specs, filter.New(",rotate=%1*PI/180", filter.Optional(video.Aspect.Rotation, "0")))
	}

	if video.FrameRate != nil && !isImage {
		if b.resolver.IsCopy(isImage) {
			args = append(args, "-video_track_timescale", formatFloat(*video.FrameRate))
		} else {
			specs = append(specs, filter.New(",fps=%1", filter.Value(formatFloat(*video.FrameRate))))
		}
	}

	if video.PixelFormat != "" {
		args = append(args, "-pix_fmt", video.PixelFormat)
	}

	if video.Crop != nil {
		specs = append(specs, filter.New(",crop=%1:%2:%3:%4",
			filter.Value(video.Crop.Width), filter.Value(video.Crop.Height),
			filter.Value(video.Crop.X), filter.Value(video.Crop.Y),
		))
	}

	specs = append(specs,
		filter.New(",yadif=mode=%1", filter.Value(video.Deinterlace, "")),
		filter.New(",curves=preset=%1", filter.Value(video.CurvePreset, "", "none")),
		filter.Verbatim(video.Filter),
	)

	chain := filter.Normalize(filter.Compose(specs...))
	if !isImage && b.resolver.Profile() == hwaccel.VAAPI && !b.resolver.IsCopy(isImage) {
		// VAAPI encoders only accept hardware frames
		if !filter.Contains(chain, "format") {
			chain += filter.Separator + "format=nv12"
		}
		if !filter.Contains(chain, "hwupload") {
			chain += filter.Separator + "hwupload"
		}

		chain = filter.Normalize(chain)
	}

	if chain != "" {
		args = append(args, "-vf", chain)
	}

	return args
}

func (b *Builder) audioArgs(audio settings.AudioPreferences) []string {
	codec := b.resolver.AudioCodec(audio.Codec)

	args := []string{"-c:a", codec}
	if !isLossless(codec) && !isLossless(audio.Codec) {
		if audio.UseSlider {
			args = append(args, "-q:a", strconv.Itoa(sanitizeAudioQuality(audio.Quality)))
		} else if audio.Bitrate != "" {
			args = append(args, "-b:a", audio.Bitrate)
		}
	}

	if audio.Channels != nil {
		args = append(args, "-ac", strconv.Itoa(*audio.Channels))
	}

	chain := filter.Normalize(filter.Compose(
		filter.New(",volume=%1dB", filter.Optional(audio.Volume, "0")),
		filter.New(",afftdn=nr=%1", filter.Optional(audio.NoiseReduction, "0")),
		filter.Verbatim(audio.Filter),
	))
	if chain != "" {
		args = append(args, "-af", chain)
	}

	return args
}

func isLossless(codec string) bool {
	switch {
	case codec == hwaccel.CopyCodec, codec == "flac", codec == "alac", codec == "wavpack", codec == "tta":
		return true
	default:
		return strings.HasPrefix(codec, "pcm_")
	}
}

// sanitizeAudioQuality extracts the leading integer from the quality value
// and clamps it to the VBR scale accepted by FFmpeg's audio encoders.
func sanitizeAudioQuality(quality string) int {
	q, _ := strconv.Atoi(audioQualityMatcher.FindString(quality))
	return max(minAudioQuality, min(maxAudioQuality, q))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (b *Builder) String() string {
	return fmt.Sprintf("Builder{inputs=%v image=%v primary=%v}", b.inputs, b.isImage, b.isPrimaryPass)
}
