// Package audio provides mono PCM sources for the analyser: decoded files
// (WAV, MP3, Ogg Vorbis) and a synthetic beat generator.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// readFrames is how many interleaved frames are decoded per refill.
const readFrames = 4096

// Source is a stream of mono samples in [-1, 1].
type Source interface {
	Read(dst []float64) (int, error)
	SampleRate() int
}

// pcmSource yields interleaved float32 samples. oggvorbis.Reader satisfies it
// directly; WAV and MP3 are adapted below.
type pcmSource interface {
	Read(dst []float32) (int, error)
}

// Reader decodes an audio file, mixes it to mono and resamples it linearly to
// the requested rate.
type Reader struct {
	file     *os.File
	src      pcmSource
	channels int
	rate     int

	interleaved []float32
	mono        []float64
	monoPos     int
	srcEOF      bool

	// Linear interpolation state between s0 and s1
	step   float64
	frac   float64
	s0, s1 float64
	primed bool
	last   bool
	done   bool
}

// Metadata contains audio file metadata
type Metadata struct {
	Duration   float64 // seconds
	SampleRate int
	Channels   int
	Format     string
	BitDepth   int // 0 for formats decoded to float
}

// OpenAudioFile opens filename and picks a decoder from its extension. The
// returned Reader produces mono samples at rate Hz; a rate of 0 keeps the
// file's own rate.
func OpenAudioFile(filename string, rate int) (*Reader, *Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	src, meta, err := openDecoder(f, strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	if meta.Channels < 1 || meta.SampleRate < 1 {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filename, ErrNoAudio)
	}
	if rate <= 0 {
		rate = meta.SampleRate
	}

	r := &Reader{
		file:        f,
		src:         src,
		channels:    meta.Channels,
		rate:        rate,
		interleaved: make([]float32, readFrames*meta.Channels),
		mono:        make([]float64, 0, readFrames),
		step:        float64(meta.SampleRate) / float64(rate),
	}
	return r, meta, nil
}

func openDecoder(f *os.File, ext string) (pcmSource, *Metadata, error) {
	switch ext {
	case ".wav", ".wave":
		return openWAV(f)
	case ".mp3":
		return openMP3(f)
	case ".ogg", ".oga":
		return openOgg(f)
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func openWAV(f *os.File) (pcmSource, *Metadata, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("invalid WAV file: %w", ErrNoAudio)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, nil, fmt.Errorf("failed to find PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	meta := &Metadata{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		Format:     "wav",
		BitDepth:   depth,
	}
	if bytesPerFrame := channels * ((depth + 7) / 8); bytesPerFrame > 0 && dec.SampleRate > 0 {
		meta.Duration = float64(dec.PCMSize) / float64(bytesPerFrame) / float64(dec.SampleRate)
	}

	src := &wavSource{
		dec:   dec,
		buf:   &goaudio.IntBuffer{Data: make([]int, readFrames*channels)},
		scale: 1 / float32(int64(1)<<(depth-1)),
	}
	if depth == 8 {
		src.offset = 128 // 8-bit WAV is unsigned
	}
	return src, meta, nil
}

type wavSource struct {
	dec    *wav.Decoder
	buf    *goaudio.IntBuffer
	scale  float32
	offset int
}

func (s *wavSource) Read(dst []float32) (int, error) {
	if len(dst) > len(s.buf.Data) {
		dst = dst[:len(s.buf.Data)]
	}
	s.buf.Data = s.buf.Data[:len(dst)]
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range s.buf.Data[:n] {
		dst[i] = float32(v-s.offset) * s.scale
	}
	return n, nil
}

func openMP3(f *os.File) (pcmSource, *Metadata, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	// go-mp3 always produces 16-bit little-endian stereo
	meta := &Metadata{
		SampleRate: dec.SampleRate(),
		Channels:   2,
		Format:     "mp3",
		BitDepth:   16,
	}
	if n := dec.Length(); n > 0 && dec.SampleRate() > 0 {
		meta.Duration = float64(n) / 4 / float64(dec.SampleRate())
	}
	return &mp3Source{dec: dec, buf: make([]byte, readFrames*4)}, meta, nil
}

type mp3Source struct {
	dec *gomp3.Decoder
	buf []byte
}

func (s *mp3Source) Read(dst []float32) (int, error) {
	want := len(dst) * 2
	if want > len(s.buf) {
		want = len(s.buf)
	}
	want -= want % 4

	n, err := io.ReadFull(s.dec, s.buf[:want])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768
	}
	if samples > 0 && errors.Is(err, io.EOF) {
		return samples, nil
	}
	return samples, err
}

func openOgg(f *os.File) (pcmSource, *Metadata, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}
	meta := &Metadata{
		SampleRate: dec.SampleRate(),
		Channels:   dec.Channels(),
		Format:     "ogg",
	}
	if n := dec.Length(); n > 0 && dec.SampleRate() > 0 {
		meta.Duration = float64(n) / float64(dec.SampleRate())
	}
	return dec, meta, nil
}

// SampleRate is the output rate of Read.
func (r *Reader) SampleRate() int { return r.rate }

// Read fills dst with mono samples and returns io.EOF once the file is
// exhausted.
func (r *Reader) Read(dst []float64) (int, error) {
	if !r.primed {
		r.primed = true
		v, ok, err := r.next()
		if err != nil {
			return 0, err
		}
		if !ok {
			r.done = true
			return 0, io.EOF
		}
		r.s0, r.s1 = v, v
		if v, ok, err = r.next(); err != nil {
			return 0, err
		} else if ok {
			r.s1 = v
		} else {
			r.last = true
		}
	}

	n := 0
	for n < len(dst) && !r.done {
		if r.last && r.frac > 0 {
			r.done = true
			break
		}
		dst[n] = r.s0 + r.frac*(r.s1-r.s0)
		n++

		r.frac += r.step
		for r.frac >= 1 && !r.done {
			r.frac--
			if r.last {
				r.done = true
				break
			}
			r.s0 = r.s1
			v, ok, err := r.next()
			if err != nil {
				return n, err
			}
			if !ok {
				r.last = true
				continue
			}
			r.s1 = v
		}
	}

	if n == 0 && r.done {
		return 0, io.EOF
	}
	return n, nil
}

// next returns the next mono sample at the source rate.
func (r *Reader) next() (float64, bool, error) {
	for r.monoPos >= len(r.mono) {
		if r.srcEOF {
			return 0, false, nil
		}
		if err := r.refill(); err != nil {
			return 0, false, err
		}
	}
	v := r.mono[r.monoPos]
	r.monoPos++
	return v, true, nil
}

// refill decodes one block and averages its channels.
func (r *Reader) refill() error {
	n, err := r.src.Read(r.interleaved)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if errors.Is(err, io.EOF) || n == 0 {
		// A decoder that returns nothing without an error is treated as finished.
		r.srcEOF = true
	}

	frames := n / r.channels
	r.mono = r.mono[:0]
	r.monoPos = 0
	inv := 1 / float64(r.channels)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < r.channels; c++ {
			sum += float64(r.interleaved[f*r.channels+c])
		}
		r.mono = append(r.mono, sum*inv)
	}
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// DurationOf is a convenience for the UI: the file length as a time.Duration.
func (m *Metadata) DurationOf() time.Duration {
	return time.Duration(m.Duration * float64(time.Second))
}
