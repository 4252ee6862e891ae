package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/errors"
)

// These tests share the global viper instance and must not run in parallel.

func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))
	return path
}

func execute(t *testing.T, settings *conf.Settings, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCommand(settings)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"metronome", "tuner", "render", "serve", "presets", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRenderCommand(t *testing.T) {
	settings := &conf.Settings{}
	out := filepath.Join(t.TempDir(), "click.wav")

	stdout, err := execute(t, settings,
		"render", "-c", emptyConfig(t),
		"--sample-rate", "8000",
		"--tempo", "60", "--time-signature", "3/4",
		"--measures", "2", "-o", out)
	require.NoError(t, err, stdout)

	info, err := os.Stat(out)
	require.NoError(t, err)
	// 2 measures of 3/4 at 60 BPM is 6 s of 16-bit mono at 8 kHz plus the header.
	assert.Greater(t, info.Size(), int64(6*8000*2))
	assert.Contains(t, stdout, "2 measures of 3/4 at 60 BPM, 6 clicks")

	assert.Equal(t, 8000, settings.Audio.SampleRate)
	assert.Equal(t, 60, settings.Metronome.Tempo)
	assert.Equal(t, "3/4", settings.Metronome.TimeSignature)
}

func TestRenderCommandRejectsUnknownPreset(t *testing.T) {
	_, err := execute(t, &conf.Settings{},
		"render", "-c", emptyConfig(t), "--preset", "cowbell",
		"-o", filepath.Join(t.TempDir(), "x.wav"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestPresetsCommandSkipsConfiguration(t *testing.T) {
	stdout, err := execute(t, &conf.Settings{}, "presets", "-c", "/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "presets:")
}

func TestVersionCommand(t *testing.T) {
	stdout, err := execute(t, &conf.Settings{}, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rehearsal dev")
}
