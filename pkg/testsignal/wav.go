package testsignal

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes mono float32 samples in [-1, 1] to a 16-bit PCM WAV file
// at path, sampled at sampleRate Hz. It exists purely for test fixtures —
// generating a deterministic click-track file that a test can also read
// back with ReadWAV to exercise any code path that expects a WAV source.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("testsignal: failed to create %s: %w", path, err)
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	defer encoder.Close()

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s * 32767)
	}

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("testsignal: failed to write samples: %w", err)
	}
	return nil
}

// ReadWAV decodes a mono 16-bit PCM WAV file back into float32 samples in
// [-1, 1], returning the sample rate the file was encoded at.
func ReadWAV(path string) (samples []float32, sampleRate int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("testsignal: failed to open %s: %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("testsignal: failed to decode %s: %w", path, err)
	}

	samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / 32767
	}
	return samples, buf.Format.SampleRate, nil
}
