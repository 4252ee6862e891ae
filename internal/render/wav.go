package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/songsheets/rehearsal/internal/errors"
)

// Supported PCM bit depths.
const (
	BitDepth16 = 16
	BitDepth24 = 24
)

// WriteWAV encodes mono float samples as PCM WAV at the given bit depth.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate, bitDepth int) error {
	if err := checkBitDepth(bitDepth); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, sampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Data:           toPCM(samples, bitDepth),
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	return enc.Close()
}

func checkBitDepth(bitDepth int) error {
	if bitDepth != BitDepth16 && bitDepth != BitDepth24 {
		return errors.Newf("unsupported bit depth %d", bitDepth).
			Component("render").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// SaveWAV writes the track to filePath, creating parent directories.
func SaveWAV(filePath string, t *Track, bitDepth int) error {
	if err := checkBitDepth(bitDepth); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("path", filePath).
			Build()
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("path", filePath).
			Build()
	}

	err = WriteWAV(f, t.Samples, t.SampleRate, bitDepth)
	if cerr := f.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("path", filePath).
			Build()
	}
	return nil
}

// toPCM scales [-1, 1] floats to signed integers of the given depth.
func toPCM(samples []float32, bitDepth int) []int {
	full := float64(int(1)<<(bitDepth-1) - 1)
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		out[i] = int(math.Round(v * full))
	}
	return out
}
