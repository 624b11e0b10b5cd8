package conversion_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hbomb79/Verto/internal/conversion"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Save(t *testing.T) {
	work := t.TempDir()
	dest := filepath.Join(t.TempDir(), "exports")

	artifact := filepath.Join(work, "verto_artifact_0_abc.mp4")
	require.NoError(t, os.WriteFile(artifact, []byte("video"), 0o644))

	outputs := []conversion.Output{
		{Name: "movie", Extension: "mp4", Result: engine.Output{Path: artifact}},
		{Name: "movie", Extension: "mp4", Result: engine.Output{Data: []byte("buffered")}},
		{Name: "", Extension: "mp3", Result: engine.Output{Data: []byte("audio")}},
		{Name: "a/b", Extension: "mp3", Result: engine.Output{Data: []byte("slashes")}},
		{Name: "final", Extension: "mkv", Result: engine.Output{Path: "/exports/final.mkv"}, External: true},
	}

	saved, err := conversion.Save(outputs, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dest, "movie.mp4"),
		filepath.Join(dest, "movie (1).mp4"),
		filepath.Join(dest, "output.mp3"),
		filepath.Join(dest, "a_b.mp3"),
		"/exports/final.mkv",
	}, saved)

	assert.NoFileExists(t, artifact, "path results should be moved, not copied")

	expected := map[string]string{"movie.mp4": "video", "movie (1).mp4": "buffered", "output.mp3": "audio", "a_b.mp3": "slashes"}
	for name, content := range expected {
		data, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	}
}

func Test_Save_MissingArtifact(t *testing.T) {
	outputs := []conversion.Output{
		{Name: "first", Extension: "txt", Result: engine.Output{Data: []byte("ok")}},
		{Name: "second", Extension: "mp4", Result: engine.Output{Path: filepath.Join(t.TempDir(), "missing.mp4")}},
	}

	saved, err := conversion.Save(outputs, t.TempDir())
	assert.Error(t, err)
	assert.Len(t, saved, 1, "outputs saved before the failure are still reported")
}

func Test_Save_Concurrent(t *testing.T) {
	dest := t.TempDir()
	const workers = 16

	var wg sync.WaitGroup
	paths := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			saved, err := conversion.Save([]conversion.Output{{Name: "clip", Extension: "mp4", Result: engine.Output{Data: []byte(fmt.Sprint(i))}}}, dest)
			errs[i] = err
			if err == nil {
				paths[i] = saved[0]
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, path := range paths {
		require.NoError(t, errs[i])
		assert.False(t, seen[path], "path %s saved more than once", path)
		seen[path] = true

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(data))
	}
}
