package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Verto/internal/capability"
)

type (
	// MediaInfo is a summary of the ffprobe metadata for a file.
	MediaInfo struct {
		Kind     capability.MediaKind `json:"kind"`
		Format   string               `json:"format"`
		Duration float64              `json:"duration_seconds"`
		Streams  []StreamInfo         `json:"streams"`
	}

	StreamInfo struct {
		Type  string `json:"type"`
		Codec string `json:"codec"`
	}
)

var (
	// imageFormats are the ffprobe demuxers which indicate a still image.
	imageFormats = []string{"image2", "png_pipe", "jpeg_pipe", "bmp_pipe", "webp_pipe", "tiff_pipe", "jpegls_pipe", "qoi_pipe"}

	// audioFormats are demuxers for audio containers, which may still report
	// a video stream when cover art is embedded.
	audioFormats = []string{"mp3", "flac", "wav", "ogg", "aac", "aiff", "ape", "wv", "tta", "ac3"}
)

// Probe reads the metadata of the file at the path provided using ffprobe.
func Probe(ctx context.Context, config Config, path string) (MediaInfo, error) {
	metadata, err := ffmpeg.
		New(&ffmpeg.Config{FfmpegBinPath: config.FfmpegBinPath, FfprobeBinPath: config.FfprobeBinPath}).
		Input(path).
		WithContext(&ctx).
		GetMetadata()
	if err != nil {
		return MediaInfo{}, fmt.Errorf("failed to extract file metadata information using ffprobe: %w", err)
	}

	format := metadata.GetFormat()
	info := MediaInfo{Format: format.GetFormatName(), Streams: make([]StreamInfo, 0)}
	if duration, err := strconv.ParseFloat(format.GetDuration(), 64); err == nil {
		info.Duration = duration
	}

	streamTypes := make([]string, 0)
	for _, stream := range metadata.GetStreams() {
		info.Streams = append(info.Streams, StreamInfo{Type: stream.GetCodecType(), Codec: stream.GetCodecName()})
		streamTypes = append(streamTypes, stream.GetCodecType())
	}

	kind, ok := Classify(info.Format, streamTypes)
	if !ok {
		return info, fmt.Errorf("file %s contains no audio or video streams", path)
	}

	info.Kind = kind
	return info, nil
}

// Classify determines the media kind of a file from its ffprobe format name
// and the codec types of its streams.
func Classify(formatName string, streamTypes []string) (capability.MediaKind, bool) {
	hasVideo, hasAudio := false, false
	for _, t := range streamTypes {
		hasVideo = hasVideo || t == "video"
		hasAudio = hasAudio || t == "audio"
	}

	switch {
	case hasVideo && matchesFormat(formatName, imageFormats):
		return capability.Image, true
	case hasAudio && matchesFormat(formatName, audioFormats):
		return capability.Audio, true
	case hasVideo:
		return capability.Video, true
	case hasAudio:
		return capability.Audio, true
	default:
		return "", false
	}
}

func matchesFormat(formatName string, formats []string) bool {
	// ffprobe may report several comma separated demuxer names
	for _, name := range strings.Split(formatName, ",") {
		for _, format := range formats {
			if strings.TrimSpace(name) == format {
				return true
			}
		}
	}

	return false
}
