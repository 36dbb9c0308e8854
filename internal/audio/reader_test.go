package audio

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV writes interleaved 16-bit PCM to a temporary WAV file and returns
// its path.
func writeWAV(t *testing.T, samples []int, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		t.Fatalf("failed to write WAV data: %v", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		t.Fatalf("failed to finalise WAV: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return path
}

// readAll drains r in small chunks.
func readAll(t *testing.T, r Source) []float64 {
	t.Helper()
	var out []float64
	buf := make([]float64, 333)
	for i := 0; i < 100000; i++ {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	t.Fatal("Read() never returned io.EOF")
	return nil
}

func TestOpenWAVMono(t *testing.T) {
	const rate = 44100
	samples := make([]int, rate)
	for i := range samples {
		samples[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	path := writeWAV(t, samples, rate, 1)

	r, meta, err := OpenAudioFile(path, 0)
	if err != nil {
		t.Fatalf("OpenAudioFile() error = %v", err)
	}
	defer r.Close()

	if meta.SampleRate != rate || meta.Channels != 1 || meta.BitDepth != 16 || meta.Format != "wav" {
		t.Errorf("metadata = %+v", meta)
	}
	if math.Abs(meta.Duration-1) > 1e-6 {
		t.Errorf("Duration = %v, want 1", meta.Duration)
	}
	if r.SampleRate() != rate {
		t.Errorf("SampleRate() = %d, want %d", r.SampleRate(), rate)
	}

	got := readAll(t, r)
	if len(got) != len(samples) {
		t.Fatalf("read %d samples, want %d", len(got), len(samples))
	}
	for i, want := range samples {
		if math.Abs(got[i]-float64(want)/32768) > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], float64(want)/32768)
		}
	}
}

func TestOpenWAVStereoMixesToMono(t *testing.T) {
	frames := 1000
	samples := make([]int, 0, frames*2)
	for i := 0; i < frames; i++ {
		samples = append(samples, 16384, 8192) // 0.5 and 0.25
	}
	path := writeWAV(t, samples, 48000, 2)

	r, meta, err := OpenAudioFile(path, 0)
	if err != nil {
		t.Fatalf("OpenAudioFile() error = %v", err)
	}
	defer r.Close()
	if meta.Channels != 2 {
		t.Errorf("Channels = %d, want 2", meta.Channels)
	}

	got := readAll(t, r)
	if len(got) != frames {
		t.Fatalf("read %d samples, want %d", len(got), frames)
	}
	for i, v := range got {
		if math.Abs(v-0.375) > 1e-9 {
			t.Fatalf("sample %d = %v, want 0.375", i, v)
		}
	}
}

func TestResampling(t *testing.T) {
	tests := []struct {
		name    string
		srcRate int
		rate    int
		frames  int
		want    int
	}{
		{"same rate", 44100, 44100, 1000, 1000},
		{"upsample 2x", 22050, 44100, 1000, 1999},
		{"downsample 2x", 44100, 22050, 1001, 501},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A ramp makes linear interpolation exact
			samples := make([]int, tt.frames)
			for i := range samples {
				samples[i] = i * 10
			}
			path := writeWAV(t, samples, tt.srcRate, 1)

			r, _, err := OpenAudioFile(path, tt.rate)
			if err != nil {
				t.Fatalf("OpenAudioFile() error = %v", err)
			}
			defer r.Close()

			got := readAll(t, r)
			if len(got) != tt.want {
				t.Fatalf("read %d samples, want %d", len(got), tt.want)
			}
			step := float64(tt.srcRate) / float64(tt.rate)
			for i, v := range got {
				want := float64(i) * step * 10 / 32768
				if math.Abs(v-want) > 1e-9 {
					t.Fatalf("sample %d = %v, want %v", i, v, want)
				}
			}
		})
	}
}

func TestOpenAudioFileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, _, err := OpenAudioFile(filepath.Join(dir, "absent.wav"), 0); err == nil {
			t.Error("OpenAudioFile() on a missing file returned no error")
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, _, err := OpenAudioFile(path, 0)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("OpenAudioFile() error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("corrupt wav", func(t *testing.T) {
		path := filepath.Join(dir, "bad.wav")
		if err := os.WriteFile(path, []byte("RIFF0000WAVEjunk"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := OpenAudioFile(path, 0); err == nil {
			t.Error("OpenAudioFile() on a corrupt WAV returned no error")
		}
	})

	t.Run("corrupt mp3", func(t *testing.T) {
		path := filepath.Join(dir, "bad.mp3")
		if err := os.WriteFile(path, make([]byte, 16), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := OpenAudioFile(path, 0); err == nil {
			t.Error("OpenAudioFile() on a corrupt MP3 returned no error")
		}
	})

	t.Run("corrupt ogg", func(t *testing.T) {
		path := filepath.Join(dir, "bad.ogg")
		if err := os.WriteFile(path, []byte("OggS but not really"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := OpenAudioFile(path, 0); err == nil {
			t.Error("OpenAudioFile() on a corrupt Ogg file returned no error")
		}
	})
}

func TestReaderCloseTwice(t *testing.T) {
	path := writeWAV(t, make([]int, 100), 8000, 1)
	r, _, err := OpenAudioFile(path, 0)
	if err != nil {
		t.Fatalf("OpenAudioFile() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
