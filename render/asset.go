package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var (
	// ErrUnsupportedFormat is returned for assets that are not wav, mp3 or ogg.
	ErrUnsupportedFormat = errors.New("unsupported audio asset format")
	// ErrEmptyAsset is returned for assets that decode to no samples.
	ErrEmptyAsset = errors.New("audio asset has no samples")
)

// Clip is a fully decoded asset. Ringtones are short, so they are kept in
// memory and looped from there.
type Clip struct {
	rate     int
	channels int
	data     []int16
	loop     bool
	pos      int
}

// NewClip wraps interleaved PCM.
func NewClip(rate, channels int, data []int16) *Clip {
	return &Clip{rate: rate, channels: channels, data: data}
}

func (c *Clip) SampleRate() int { return c.rate }
func (c *Clip) Channels() int   { return c.channels }
func (c *Clip) Len() int        { return len(c.data) }

// Looping returns a copy of c that restarts at the end instead of ending.
func (c *Clip) Looping() *Clip {
	cp := *c
	cp.loop = true
	cp.pos = 0
	return &cp
}

func (c *Clip) Read(dst []int16) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(dst) {
		if c.pos >= len(c.data) {
			if !c.loop {
				break
			}
			c.pos = 0
		}
		k := copy(dst[n:], c.data[c.pos:])
		n += k
		c.pos += k
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// OpenAsset decodes the asset at path, picking the decoder by extension.
func OpenAsset(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	var clip *Clip
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		clip, err = decodeWAV(f)
	case ".mp3":
		clip, err = decodeMP3(f)
	case ".ogg", ".oga":
		clip, err = decodeOgg(f)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if clip.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyAsset)
	}
	return clip, nil
}

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrUnsupportedFormat
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrEmptyAsset
	}
	shift := int(dec.BitDepth) - 16
	data := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case shift > 0:
			v >>= uint(shift)
		case shift < 0:
			// 8-bit wav is unsigned
			v = (v - 128) << uint(-shift)
		}
		data[i] = int16(v)
	}
	return NewClip(buf.Format.SampleRate, buf.Format.NumChannels, data), nil
}

func decodeMP3(r io.Reader) (*Clip, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	// go-mp3 always yields 16-bit little-endian stereo
	data := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(data)*2]), binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return NewClip(dec.SampleRate(), 2, data), nil
}

func decodeOgg(r io.Reader) (*Clip, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data := make([]int16, len(samples))
	for i, s := range samples {
		data[i] = floatToPCM(s)
	}
	return NewClip(format.SampleRate, format.Channels, data), nil
}

func floatToPCM(s float32) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	default:
		return int16(s * 32767)
	}
}
