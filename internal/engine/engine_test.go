package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFfmpeg copies the last declared input to the output (the final
// argument), or fails with some stderr output if the input is named fail.mp4.
const fakeFfmpeg = `#!/bin/sh
input=""
out=""
prev=""
for arg in "$@"; do
	if [ "$prev" = "-i" ]; then input="$arg"; fi
	prev="$arg"
	out="$arg"
done
if [ "$input" = "fail.mp4" ]; then
	echo "first line" >&2
	echo "fail.mp4: Invalid data found when processing input" >&2
	exit 3
fi
cp "$input" "$out"
`

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

func nativeEngine(t *testing.T) (*engine.NativeEngine, engine.Config) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(fakeFfmpeg), 0o755))

	config := engine.Config{Kind: engine.NativeKind, FfmpegBinPath: bin, WorkDir: filepath.Join(dir, "work"), StderrTail: 1}
	eng := engine.NewNativeEngine(config)
	t.Cleanup(func() { eng.Close() })

	return eng, config
}

func Test_New(t *testing.T) {
	eng, err := engine.New(engine.Config{Kind: engine.NativeKind})
	require.NoError(t, err)
	assert.True(t, eng.Native())

	eng, err = engine.New(engine.Config{Kind: engine.ContainerKind})
	require.NoError(t, err)
	assert.False(t, eng.Native())

	_, err = engine.New(engine.Config{Kind: "quantum"})
	assert.ErrorIs(t, err, engine.ErrUnknownEngineKind)
}

func Test_Native_RequiresLoad(t *testing.T) {
	eng, _ := nativeEngine(t)
	ctx := context.Background()

	assert.ErrorIs(t, eng.Stage(ctx, []engine.Input{{Name: "a", Data: []byte("a")}}), engine.ErrNotLoaded)
	assert.ErrorIs(t, eng.Execute(ctx, []string{"-i", "a", "b"}), engine.ErrNotLoaded)
}

func Test_Native_LoadMissingBinary(t *testing.T) {
	eng := engine.NewNativeEngine(engine.Config{FfmpegBinPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, eng.Load(context.Background()))
}

func Test_Native_Lifecycle(t *testing.T) {
	eng, _ := nativeEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Load(ctx))
	require.NoError(t, eng.Load(ctx), "load must be idempotent")

	source := filepath.Join(t.TempDir(), "source.mkv")
	require.NoError(t, os.WriteFile(source, []byte("video"), 0o644))
	require.NoError(t, eng.Stage(ctx, []engine.Input{
		{Path: source},
		{Name: "subs.srt", Data: []byte("subtitles")},
	}))

	require.NoError(t, eng.Execute(ctx, []string{"-i", "source.mkv", "out.mp4"}))
	assert.False(t, eng.LastInvocationFailed())

	out, err := eng.ReadOutput(ctx, "out.mp4")
	require.NoError(t, err)
	require.True(t, out.IsPath())
	content, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "video", string(content))

	require.NoError(t, eng.Remove(ctx, "out.mp4"))
	assert.ErrorIs(t, eng.Remove(ctx, "out.mp4"), engine.ErrArtifactNotFound)
	_, err = eng.ReadOutput(ctx, "out.mp4")
	assert.ErrorIs(t, err, engine.ErrArtifactNotFound)
}

func Test_Native_ExecuteFailure(t *testing.T) {
	eng, _ := nativeEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Load(ctx))
	require.NoError(t, eng.Stage(ctx, []engine.Input{{Name: "fail.mp4", Data: []byte("x")}, {Name: "ok.mp4", Data: []byte("y")}}))

	err := eng.Execute(ctx, []string{"-i", "fail.mp4", "out.mp4"})
	var execErr *engine.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, []string{"fail.mp4: Invalid data found when processing input"}, execErr.Stderr)
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.True(t, eng.LastInvocationFailed())

	require.NoError(t, eng.Execute(ctx, []string{"-i", "ok.mp4", "out.mp4"}))
	assert.False(t, eng.LastInvocationFailed())
}

func Test_Native_ShutdownRetainsWorkspace(t *testing.T) {
	eng, _ := nativeEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Load(ctx))
	require.NoError(t, eng.Stage(ctx, []engine.Input{{Name: "in.mp4", Data: []byte("x")}}))
	require.NoError(t, eng.Execute(ctx, []string{"-i", "in.mp4", "out.mp4"}))

	require.NoError(t, eng.Shutdown(ctx))
	assert.ErrorIs(t, eng.Execute(ctx, []string{"-i", "in.mp4", "again.mp4"}), engine.ErrNotLoaded)

	require.NoError(t, eng.Load(ctx))
	out, err := eng.ReadOutput(ctx, "out.mp4")
	require.NoError(t, err)
	assert.FileExists(t, out.Path)

	require.NoError(t, eng.Close())
	assert.NoFileExists(t, out.Path)
}

func Test_Native_RejectsEscapingNames(t *testing.T) {
	eng, _ := nativeEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Load(ctx))

	assert.Error(t, eng.Stage(ctx, []engine.Input{{Name: "../escape.mp4", Data: []byte("x")}}))
	assert.Error(t, eng.Remove(ctx, "/etc/passwd"))
}

func Test_Native_RejectsDuplicateInputNames(t *testing.T) {
	eng, config := nativeEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Load(ctx))

	first := filepath.Join(t.TempDir(), "clip.mp4")
	second := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(first, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("second"), 0o644))

	err := eng.Stage(ctx, []engine.Input{{Path: first}, {Path: second}})
	assert.ErrorIs(t, err, engine.ErrDuplicateInput)

	matches, _ := filepath.Glob(filepath.Join(config.WorkDir, "*", "clip.mp4"))
	assert.Empty(t, matches, "nothing is staged when the names collide")
}

func Test_Native_ImplementsFailureSignal(t *testing.T) {
	var eng engine.Engine = engine.NewNativeEngine(engine.Config{})
	_, ok := eng.(engine.FailureSignal)
	assert.True(t, ok)
}

func Test_Classify(t *testing.T) {
	tests := []struct {
		summary string
		format  string
		streams []string
		kind    capability.MediaKind
		ok      bool
	}{
		{"video container", "matroska,webm", []string{"video", "audio", "subtitle"}, capability.Video, true},
		{"audio only", "flac", []string{"audio"}, capability.Audio, true},
		{"audio with cover art", "mp3", []string{"audio", "video"}, capability.Audio, true},
		{"still image", "png_pipe", []string{"video"}, capability.Image, true},
		{"image sequence demuxer", "image2", []string{"video"}, capability.Image, true},
		{"no media streams", "srt", []string{"subtitle"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			kind, ok := engine.Classify(tt.format, tt.streams)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
