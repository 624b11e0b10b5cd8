package command_test

import (
	"testing"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/command"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func builder(native bool, mutate func(p *settings.Preferences)) *command.Builder {
	prefs := settings.Defaults()
	if mutate != nil {
		mutate(&prefs)
	}

	return command.NewBuilder(settings.NewSnapshot(prefs, false), native, capability.Default())
}

func Test_Build_NoInputs(t *testing.T) {
	b := builder(true, nil)
	_, err := b.Build(false)
	assert.ErrorIs(t, err, command.ErrNoInputs)
}

func Test_Build_DefaultVideoAndAudio(t *testing.T) {
	b := builder(true, nil)
	b.AddInputs([]string{"a.mkv", "b.srt"})

	args, err := b.Build(false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-i", "a.mkv", "-i", "b.srt",
		"-c:v", "libx264", "-crf", "23",
		"-c:a", "aac", "-b:a", "192k",
	}, args)

	assert.False(t, b.IsImage())
	assert.True(t, b.IsPrimaryPass())
	assert.False(t, b.AttemptArtwork())
}

func Test_Build_Idempotent(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) {
		p.Video.FrameRate = ptr(25.0)
		p.Audio.Volume = ptr(3.0)
	})
	b.AddInputs([]string{"in.mp4"})

	first, err := b.Build(false)
	require.NoError(t, err)
	second, err := b.Build(false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func Test_Build_AddInputsReplaces(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) { p.Audio.Enabled = false })
	b.AddInputs([]string{"one.mp4", "two.mp4"})
	b.AddInputs([]string{"three.mp4"})

	args, err := b.Build(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"-i", "three.mp4", "-c:v", "libx264", "-crf", "23", "-an"}, args)
}

func Test_Build_VideoFilters(t *testing.T) {
	tests := []struct {
		summary  string
		prefs    func(*settings.Preferences)
		expected []string
	}{
		{
			summary: "aspect ratio and rotation",
			prefs: func(p *settings.Preferences) {
				p.Video.Aspect = settings.AspectPreferences{Enabled: true, Ratio: "16:9", Rotation: ptr(90)}
			},
			expected: []string{"-aspect", "16:9", "-vf", "rotate=90*PI/180"},
		},
		{
			summary: "zero rotation suppresses the rotate clause",
			prefs: func(p *settings.Preferences) {
				p.Video.Aspect = settings.AspectPreferences{Enabled: true, Rotation: ptr(0)}
			},
			expected: []string{},
		},
		{
			summary: "aspect disabled ignores values",
			prefs: func(p *settings.Preferences) {
				p.Video.Aspect = settings.AspectPreferences{Enabled: false, Ratio: "4:3", Rotation: ptr(180)}
			},
			expected: []string{},
		},
		{
			summary:  "frame rate",
			prefs:    func(p *settings.Preferences) { p.Video.FrameRate = ptr(29.97) },
			expected: []string{"-vf", "fps=29.97"},
		},
		{
			summary:  "pixel format",
			prefs:    func(p *settings.Preferences) { p.Video.PixelFormat = "yuv420p" },
			expected: []string{"-pix_fmt", "yuv420p"},
		},
		{
			summary: "every filter clause",
			prefs: func(p *settings.Preferences) {
				p.Video.Crop = &settings.CropPreferences{Width: 640, Height: 480, X: 10, Y: 20}
				p.Video.Deinterlace = "send_frame"
				p.Video.CurvePreset = "vintage"
				p.Video.Filter = "hflip,"
			},
			expected: []string{"-vf", "crop=640:480:10:20,yadif=mode=send_frame,curves=preset=vintage,hflip"},
		},
		{
			summary:  "curve preset none is dropped",
			prefs:    func(p *settings.Preferences) { p.Video.CurvePreset, p.Video.Filter = "none", "negate" },
			expected: []string{"-vf", "negate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			b := builder(true, func(p *settings.Preferences) {
				p.Audio.Enabled = false
				tt.prefs(p)
			})
			b.AddInputs([]string{"in.mp4"})

			args, err := b.Build(false)
			require.NoError(t, err)

			expected := append([]string{"-i", "in.mp4", "-c:v", "libx264", "-crf", "23"}, tt.expected...)
			expected = append(expected, "-an")
			assert.Equal(t, expected, args)
		})
	}
}

func Test_Build_CopyCodecUsesTimescale(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) {
		p.Video.Codec = "!copy"
		p.Video.FrameRate = ptr(24.0)
		p.Audio.Codec = "!copy"
	})
	b.AddInputs([]string{"in.mkv"})

	args, err := b.Build(false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-i", "in.mkv",
		"-c:v", "copy", "-video_track_timescale", "24",
		"-c:a", "copy",
	}, args)
}

func Test_Build_VAAPIForcesUpload(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) {
		p.Hardware.Profile = "vaapi"
		p.Video.Deinterlace = "send_field"
		p.Audio.Enabled = false
	})
	b.AddInputs([]string{"in.mp4"})

	args, err := b.Build(false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-vaapi_device", "/dev/dri/renderD128",
		"-i", "in.mp4",
		"-c:v", "h264_vaapi", "-maxrate", "2M", "-bufsize", "2M", "-global_quality", "23", "-qp", "23",
		"-vf", "yadif=mode=send_field,format=nv12,hwupload",
		"-an",
	}, args)

	t.Run("existing clauses are not duplicated", func(t *testing.T) {
		b := builder(true, func(p *settings.Preferences) {
			p.Hardware.Profile = "vaapi"
			p.Video.Filter = "format=p010,hwupload"
			p.Audio.Enabled = false
		})
		b.AddInputs([]string{"in.mp4"})

		args, err := b.Build(false)
		require.NoError(t, err)
		assert.Contains(t, args, "format=p010,hwupload")
	})

	t.Run("sandboxed engines never upload", func(t *testing.T) {
		b := builder(false, func(p *settings.Preferences) {
			p.Hardware.Profile = "vaapi"
			p.Audio.Enabled = false
		})
		b.AddInputs([]string{"in.mp4"})

		args, err := b.Build(false)
		require.NoError(t, err)
		assert.Equal(t, []string{"-i", "in.mp4", "-c:v", "libx264", "-crf", "23", "-an"}, args)
	})
}

func Test_Build_AudioOnly(t *testing.T) {
	tests := []struct {
		summary  string
		prefs    func(*settings.Preferences)
		expected []string
	}{
		{
			summary:  "bitrate",
			prefs:    func(p *settings.Preferences) { p.Audio.Codec, p.Audio.Bitrate = "libmp3lame", "320k" },
			expected: []string{"-c:a", "libmp3lame", "-b:a", "320k"},
		},
		{
			summary:  "slider clamps high values",
			prefs:    func(p *settings.Preferences) { p.Audio.UseSlider, p.Audio.Quality = true, "q12" },
			expected: []string{"-c:a", "aac", "-q:a", "9"},
		},
		{
			summary:  "slider clamps low values",
			prefs:    func(p *settings.Preferences) { p.Audio.UseSlider, p.Audio.Quality = true, "0" },
			expected: []string{"-c:a", "aac", "-q:a", "1"},
		},
		{
			summary:  "lossless codecs have no quality flag",
			prefs:    func(p *settings.Preferences) { p.Audio.Codec = "flac" },
			expected: []string{"-c:a", "flac"},
		},
		{
			summary:  "pcm is lossless",
			prefs:    func(p *settings.Preferences) { p.Audio.Codec, p.Audio.UseSlider = "pcm_s16le", true },
			expected: []string{"-c:a", "pcm_s16le"},
		},
		{
			summary: "channels and filters",
			prefs: func(p *settings.Preferences) {
				p.Audio.Channels = ptr(2)
				p.Audio.Volume = ptr(-3.5)
				p.Audio.NoiseReduction = ptr(12)
				p.Audio.Filter = "aecho=0.8:0.9:1000:0.3"
			},
			expected: []string{"-c:a", "aac", "-b:a", "192k", "-ac", "2", "-af", "volume=-3.5dB,afftdn=nr=12,aecho=0.8:0.9:1000:0.3"},
		},
		{
			summary: "zero volume and noise reduction are dropped",
			prefs: func(p *settings.Preferences) {
				p.Audio.Volume = ptr(0.0)
				p.Audio.NoiseReduction = ptr(0)
			},
			expected: []string{"-c:a", "aac", "-b:a", "192k"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			b := builder(true, func(p *settings.Preferences) {
				p.Video.Enabled = false
				tt.prefs(p)
			})
			b.AddInputs([]string{"in.wav"})

			args, err := b.Build(false)
			require.NoError(t, err)
			assert.Equal(t, append([]string{"-i", "in.wav", "-vn"}, tt.expected...), args)
			assert.False(t, b.IsPrimaryPass())
		})
	}
}

func Test_Build_NativeAudioEncoder(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) {
		p.Video.Enabled = false
		p.Hardware.Profile = "videotoolbox"
		p.Audio.Codec = "alac"
	})
	b.AddInputs([]string{"in.wav"})

	args, err := b.Build(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"-i", "in.wav", "-vn", "-c:a", "alac_at"}, args)

	sandboxed := builder(false, func(p *settings.Preferences) {
		p.Video.Enabled = false
		p.Hardware.Profile = "videotoolbox"
	})
	sandboxed.AddInputs([]string{"in.wav"})

	args, err = sandboxed.Build(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"-i", "in.wav", "-vn", "-c:a", "aac", "-b:a", "192k"}, args)
}

func Test_Build_ArtworkFlag(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) {
		p.Video.Enabled = false
		p.Audio.ReencodeArtwork = true
	})
	b.AddInputs([]string{"song.flac"})

	_, err := b.Build(false)
	require.NoError(t, err)
	assert.True(t, b.AttemptArtwork())

	// Image targets never carry audio, and so never attempt artwork
	_, err = b.Build(true)
	require.NoError(t, err)
	assert.False(t, b.AttemptArtwork())
}

func Test_Build_Image(t *testing.T) {
	b := builder(true, func(p *settings.Preferences) {
		p.Video.Enabled = false
		p.Video.FrameRate = ptr(30.0)
		p.Image.Codec = "png"
		p.Image.Quality = ""
	})
	b.AddInputs([]string{"frame.bmp"})

	args, err := b.Build(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"-i", "frame.bmp", "-c:v", "png", "-an"}, args)
	assert.True(t, b.IsImage())
	assert.True(t, b.IsPrimaryPass())
}
