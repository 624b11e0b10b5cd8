// Package hwaccel resolves the codec and quality arguments for a video or
// image encode, including the flags specific to each hardware acceleration
// profile.
package hwaccel

import (
	"strconv"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
)

var log = logger.Get("HWAccel")

type Profile string

const (
	AMF          Profile = "amf"
	QSV          Profile = "qsv"
	NVENC        Profile = "nvenc"
	VAAPI        Profile = "vaapi"
	VideoToolbox Profile = "videotoolbox"
)

const (
	// CopyCodec is the engine's stream copy directive.
	CopyCodec = "copy"

	// fixedQuality is used by profiles which require a quality
	// bound even when an explicit bitrate override is provided.
	fixedQuality = "25"

	// toolboxQualitySpread is the distance between the VBR quality
	// target and the min/max bounds given to videotoolbox.
	toolboxQualitySpread = 5
)

// Groups holds the two argument groups produced by the resolver. Beginning
// must be placed before any input declaration; After is placed after the
// inputs.
type Groups struct {
	Beginning []string
	After     []string
}

// Resolver resolves codec, quality and hardware acceleration arguments from
// a preference snapshot.
type Resolver struct {
	video        settings.VideoPreferences
	image        settings.ImagePreferences
	hardware     settings.HardwarePreferences
	native       bool
	capabilities capability.Table
}

// NewResolver creates a resolver for the snapshot provided. Hardware flags
// are only emitted when native is true, as sandboxed engines have no access
// to hardware encoders.
func NewResolver(snapshot settings.Snapshot, native bool, capabilities capability.Table) *Resolver {
	return &Resolver{
		video:        snapshot.Video(),
		image:        snapshot.Image(),
		hardware:     snapshot.Hardware(),
		native:       native,
		capabilities: capabilities,
	}
}

// Profile returns the hardware profile which will be applied to video
// encodes, or an empty profile if software encoding will be used.
func (r *Resolver) Profile() Profile {
	if !r.native {
		return ""
	}

	return Profile(r.hardware.Profile)
}

// Codec returns the codec name to use for the encode. Stream copy selections
// are translated to CopyCodec.
func (r *Resolver) Codec(isImage bool) string {
	selection := r.video.Codec
	if isImage {
		selection = r.image.Codec
	} else if native, ok := r.capabilities.NativeCodec(capability.Video, selection, string(r.Profile())); ok {
		selection = native
	}

	if capability.IsCopy(selection) {
		return CopyCodec
	}

	return selection
}

// AudioCodec returns the codec name to use for the audio selection provided,
// substituting the hardware profile's native encoder where one exists.
func (r *Resolver) AudioCodec(selection string) string {
	if capability.IsCopy(selection) {
		return CopyCodec
	}

	if native, ok := r.capabilities.NativeCodec(capability.Audio, selection, string(r.Profile())); ok {
		return native
	}

	return selection
}

// IsCopy reports whether the encode will stream copy rather than re-encode.
func (r *Resolver) IsCopy(isImage bool) bool {
	return r.Codec(isImage) == CopyCodec
}

// Resolve returns the argument groups for an encode. When override is
// empty the codec and quality flags for a primary encode are produced.
// Otherwise, override is an explicit bitrate for a secondary (remux)
// invocation and only the hardware profile flags are produced, using
// the override and fixed quality bounds in place of the preferences.
func (r *Resolver) Resolve(isImage bool, override string) Groups {
	groups := Groups{Beginning: r.beginning(isImage), After: make([]string, 0)}

	codec := r.Codec(isImage)
	if override == "" {
		groups.After = append(groups.After, "-c:v", codec)
	}
	if codec == CopyCodec {
		return groups
	}

	profile := r.Profile()
	if isImage || profile == "" {
		if override == "" {
			groups.After = append(groups.After, r.softwareQuality(isImage)...)
		}

		return groups
	}

	groups.After = append(groups.After, r.profileFlags(profile, override)...)
	return groups
}

func (r *Resolver) beginning(isImage bool) []string {
	if isImage || r.IsCopy(isImage) {
		return make([]string, 0)
	}

	switch r.Profile() {
	case QSV:
		return []string{"-init_hw_device", "qsv=hw", "-filter_hw_device", "hw"}
	case VAAPI:
		return []string{"-vaapi_device", r.hardware.Device}
	default:
		return make([]string, 0)
	}
}

func (r *Resolver) softwareQuality(isImage bool) []string {
	if isImage {
		if r.image.Quality == "" {
			return nil
		}

		return []string{"-q:v", r.image.Quality}
	}

	if r.video.UseSlider {
		return []string{"-crf", DeriveQuality(r.video.Quality)}
	}

	return []string{"-b:v", r.video.Bitrate}
}

// quality returns the derived quality number for the current quality mode.
func (r *Resolver) quality() string {
	if r.video.UseSlider {
		return DeriveQuality(r.video.Quality)
	}

	return DeriveQuality(r.video.Bitrate)
}

func (r *Resolver) profileFlags(profile Profile, override string) []string {
	bitrate, slider := r.video.Bitrate, r.video.UseSlider
	if override != "" {
		bitrate, slider = override, false
	}

	switch profile {
	case AMF:
		q := r.quality()
		if override != "" {
			q = fixedQuality
		}

		return []string{"-qmin", q, "-qmax", q}
	case QSV:
		if slider {
			return []string{"-global_quality", r.quality()}
		}

		return []string{"-b:v", bitrate, "-maxrate", bitrate}
	case NVENC:
		if slider {
			return []string{"-rc", "vbr", "-cq", r.quality()}
		}

		return []string{"-maxrate", bitrate, "-bufsize", bitrate}
	case VAAPI:
		q := r.quality()
		if override != "" {
			q = fixedQuality
		}

		return []string{"-maxrate", bitrate, "-bufsize", bitrate, "-global_quality", q, "-qp", q}
	case VideoToolbox:
		if slider {
			derived, _ := strconv.ParseFloat(r.quality(), 64)
			q := int(derived)
			lo, hi := max(MinQuality, q-toolboxQualitySpread), min(MaxQuality, q+toolboxQualitySpread)
			return []string{"-q:v", strconv.Itoa(q), "-qmin", strconv.Itoa(lo), "-qmax", strconv.Itoa(hi)}
		}

		return []string{"-b:v", bitrate, "-constant_bit_rate", "1", "-bufsize", bitrate}
	default:
		log.Emit(logger.WARNING, "Unknown hardware profile %q, no profile flags emitted\n", profile)
		return nil
	}
}
