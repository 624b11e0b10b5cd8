package settings

import (
	"github.com/hbomb79/Verto/internal/segment"
)

type TrimMode string

const (
	TrimNone   TrimMode = "none"
	TrimSingle TrimMode = "single"
	TrimMulti  TrimMode = "multi"
)

type (
	// Preferences is the full tree of user-editable conversion options. It is
	// typically loaded from a YAML document by the Store, and is copied in to
	// a Snapshot whenever a conversion handler is created.
	Preferences struct {
		Video    VideoPreferences    `yaml:"video"`
		Audio    AudioPreferences    `yaml:"audio"`
		Image    ImagePreferences    `yaml:"image"`
		Trim     TrimPreferences     `yaml:"trim"`
		Hardware HardwarePreferences `yaml:"hardware"`
		Metadata MetadataPreferences `yaml:"metadata"`
		Engine   EnginePreferences   `yaml:"engine"`

		// Container, when set, replaces the output extension of
		// primary video/image conversions.
		Container string `yaml:"container" validate:"omitempty,alphanum"`
	}

	VideoPreferences struct {
		Enabled bool   `yaml:"enabled"`
		Codec   string `yaml:"codec" validate:"required"`

		// UseSlider selects quality-based encoding (Quality) over
		// explicit bitrate encoding (Bitrate).
		UseSlider bool   `yaml:"use_slider"`
		Quality   string `yaml:"quality"`
		Bitrate   string `yaml:"bitrate"`

		// FrameRate is nil when the original frame rate should be kept.
		FrameRate   *float64           `yaml:"frame_rate" validate:"omitempty,gt=0"`
		PixelFormat string             `yaml:"pixel_format"`
		Aspect      AspectPreferences  `yaml:"aspect"`
		Crop        *CropPreferences   `yaml:"crop"`
		Deinterlace string             `yaml:"deinterlace" validate:"omitempty,oneof=send_frame send_field send_frame_nospatial send_field_nospatial"`
		CurvePreset string             `yaml:"curve_preset"`
		Filter      string             `yaml:"custom_filter"`
	}

	AspectPreferences struct {
		Enabled  bool   `yaml:"enabled"`
		Ratio    string `yaml:"ratio"`
		Rotation *int   `yaml:"rotation" validate:"omitempty,min=-360,max=360"`
	}

	CropPreferences struct {
		Width  int `yaml:"width" validate:"gt=0"`
		Height int `yaml:"height" validate:"gt=0"`
		X      int `yaml:"x" validate:"gte=0"`
		Y      int `yaml:"y" validate:"gte=0"`
	}

	AudioPreferences struct {
		Enabled   bool   `yaml:"enabled"`
		Codec     string `yaml:"codec" validate:"required"`
		UseSlider bool   `yaml:"use_slider"`
		Quality   string `yaml:"quality"`
		Bitrate   string `yaml:"bitrate"`

		// Channels is nil when the channel layout of the input should be kept.
		Channels       *int     `yaml:"channels" validate:"omitempty,min=1,max=8"`
		Volume         *float64 `yaml:"volume_db"`
		NoiseReduction *int     `yaml:"noise_reduction" validate:"omitempty,min=0,max=97"`
		Filter         string   `yaml:"custom_filter"`

		// ReencodeArtwork requests that embedded artwork be extracted
		// and re-attached to the converted output.
		ReencodeArtwork bool `yaml:"reencode_artwork"`
	}

	ImagePreferences struct {
		Codec   string `yaml:"codec" validate:"required"`
		Quality string `yaml:"quality"`
	}

	TrimPreferences struct {
		Mode  TrimMode `yaml:"mode" validate:"omitempty,oneof=none single multi"`
		Start string   `yaml:"start"`
		End   string   `yaml:"end"`

		// Segments is the multi-line description used when Mode is TrimMulti,
		// see the segment package.
		Segments    string `yaml:"segments"`
		Separator   string `yaml:"separator"`
		LabelFirst  bool   `yaml:"label_first"`
		AddMetadata bool   `yaml:"add_metadata"`
	}

	HardwarePreferences struct {
		// Profile names the hardware acceleration backend, or is
		// empty for software encoding.
		Profile string `yaml:"profile" validate:"omitempty,oneof=amf qsv nvenc vaapi videotoolbox"`
		Device  string `yaml:"device"`
	}

	MetadataPreferences struct {
		ForceCopy bool `yaml:"force_copy"`
	}

	EnginePreferences struct {
		RelaunchBetweenSegments bool `yaml:"relaunch_between_segments"`
	}
)

// Defaults returns the preferences used when no preference
// document exists, or as the base that a document is layered on to.
func Defaults() Preferences {
	return Preferences{
		Video: VideoPreferences{
			Enabled:     true,
			Codec:       "libx264",
			UseSlider:   true,
			Quality:     "23",
			Bitrate:     "2M",
			CurvePreset: "none",
		},
		Audio: AudioPreferences{
			Enabled:   true,
			Codec:     "aac",
			UseSlider: false,
			Quality:   "5",
			Bitrate:   "192k",
		},
		Image: ImagePreferences{
			Codec:   "mjpeg",
			Quality: "2",
		},
		Trim: TrimPreferences{
			Mode:      TrimNone,
			Separator: segment.DefaultSeparator,
		},
		Hardware: HardwarePreferences{
			Device: "/dev/dri/renderD128",
		},
	}
}

// Clone returns a deep copy of these preferences. No pointer held by
// the returned copy is shared with the receiver.
func (p Preferences) Clone() Preferences {
	out := p
	out.Video.FrameRate = clonePtr(p.Video.FrameRate)
	out.Video.Aspect.Rotation = clonePtr(p.Video.Aspect.Rotation)
	out.Video.Crop = clonePtr(p.Video.Crop)
	out.Audio.Channels = clonePtr(p.Audio.Channels)
	out.Audio.Volume = clonePtr(p.Audio.Volume)
	out.Audio.NoiseReduction = clonePtr(p.Audio.NoiseReduction)

	return out
}

// SegmentOrder returns the field order of the multi-segment description.
func (t TrimPreferences) SegmentOrder() segment.Order {
	if t.LabelFirst {
		return segment.LabelFirst
	}

	return segment.TimestampFirst
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}

	c := *v
	return &c
}
