// Package capability holds Verto's encoder capability tables, which map
// a media kind and codec selection to the default output extension and the
// codec names used by each hardware acceleration profile.
package capability

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

type MediaKind string

const (
	Video MediaKind = "video"
	Audio MediaKind = "audio"
	Image MediaKind = "image"
)

const (
	// CopyMarker prefixes codec selections which request a stream
	// copy rather than a re-encode.
	CopyMarker = "!"

	// CopyExtension is the extension sentinel used by stream-copy
	// entries; the extension of the input is used instead.
	CopyExtension = "!"

	// suggestionThreshold is the minimum similarity for Suggest to
	// consider a codec a plausible match.
	suggestionThreshold = 0.5
)

type (
	// Capability describes a single codec selection.
	Capability struct {
		Extension string

		// Native maps hardware profile names to the codec name that
		// should be used instead when that profile is active.
		Native map[string]string
	}

	// Table maps a media kind and codec selection to its capability.
	Table map[MediaKind]map[string]Capability
)

func hw(amf, qsv, nvenc, vaapi, videotoolbox string) map[string]string {
	out := make(map[string]string, 5)
	for profile, codec := range map[string]string{
		"amf":          amf,
		"qsv":          qsv,
		"nvenc":        nvenc,
		"vaapi":        vaapi,
		"videotoolbox": videotoolbox,
	} {
		if codec != "" {
			out[profile] = codec
		}
	}

	return out
}

// Default returns the builtin capability table.
func Default() Table {
	copyEntry := Capability{Extension: CopyExtension}
	return Table{
		Video: {
			"libx264":    {Extension: "mp4", Native: hw("h264_amf", "h264_qsv", "h264_nvenc", "h264_vaapi", "h264_videotoolbox")},
			"libx265":    {Extension: "mp4", Native: hw("hevc_amf", "hevc_qsv", "hevc_nvenc", "hevc_vaapi", "hevc_videotoolbox")},
			"libvpx-vp9": {Extension: "webm", Native: hw("", "vp9_qsv", "", "vp9_vaapi", "")},
			"libvpx":     {Extension: "webm", Native: hw("", "", "", "vp8_vaapi", "")},
			"libsvtav1":  {Extension: "mkv", Native: hw("av1_amf", "av1_qsv", "av1_nvenc", "av1_vaapi", "")},
			"libaom-av1": {Extension: "mkv", Native: hw("av1_amf", "av1_qsv", "av1_nvenc", "av1_vaapi", "")},
			"mpeg4":      {Extension: "mp4"},
			"prores_ks":  {Extension: "mov", Native: hw("", "", "", "", "prores_videotoolbox")},
			"gif":        {Extension: "gif"},
			"!copy":      copyEntry,
		},
		Audio: {
			"aac":        {Extension: "m4a", Native: hw("", "", "", "", "aac_at")},
			"libmp3lame": {Extension: "mp3"},
			"libopus":    {Extension: "opus"},
			"libvorbis":  {Extension: "ogg"},
			"flac":       {Extension: "flac"},
			"alac":       {Extension: "m4a", Native: hw("", "", "", "", "alac_at")},
			"pcm_s16le":  {Extension: "wav"},
			"ac3":        {Extension: "ac3"},
			"!copy":      copyEntry,
		},
		Image: {
			"mjpeg":   {Extension: "jpg"},
			"png":     {Extension: "png"},
			"libwebp": {Extension: "webp"},
			"bmp":     {Extension: "bmp"},
			"tiff":    {Extension: "tiff"},
			"!copy":   copyEntry,
		},
	}
}

// IsCopy reports whether the codec selection provided requests a stream copy.
func IsCopy(codec string) bool {
	return strings.HasPrefix(codec, CopyMarker)
}

// Lookup returns the capability for the kind and codec provided.
func (table Table) Lookup(kind MediaKind, codec string) (Capability, bool) {
	codecs, ok := table[kind]
	if !ok {
		return Capability{}, false
	}

	c, ok := codecs[codec]
	if !ok && IsCopy(codec) {
		c, ok = codecs["!copy"]
	}

	return c, ok
}

// NativeCodec returns the codec name used by the hardware profile provided for
// the given codec selection, if such a mapping exists.
func (table Table) NativeCodec(kind MediaKind, codec string, profile string) (string, bool) {
	c, ok := table.Lookup(kind, codec)
	if !ok || profile == "" {
		return "", false
	}

	native, ok := c.Native[profile]
	return native, ok
}

// Codecs returns the sorted codec selections known for the kind provided.
func (table Table) Codecs(kind MediaKind) []string {
	codecs := make([]string, 0, len(table[kind]))
	for codec := range table[kind] {
		codecs = append(codecs, codec)
	}

	sort.Strings(codecs)
	return codecs
}

// Suggest returns the known codec which most closely resembles the codec
// provided, for use in diagnostics when a selection is not found in the table.
// If no known codec is similar enough, false is returned.
func (table Table) Suggest(kind MediaKind, codec string) (string, bool) {
	best, bestScore := "", 0.0
	metric := metrics.NewLevenshtein()
	metric.CaseSensitive = false

	for _, known := range table.Codecs(kind) {
		if score := strutil.Similarity(codec, known, metric); score > bestScore {
			best, bestScore = known, score
		}
	}

	return best, bestScore >= suggestionThreshold
}
