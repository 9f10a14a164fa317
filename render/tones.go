package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// ErrEmptyTone is returned for a tone with no audible or silent duration.
var ErrEmptyTone = errors.New("tone has no duration")

type Hz uint32

// Segment is one burst of a tone: the frequencies mixed for Dur, followed
// by Silence.
type Segment struct {
	Freq    []Hz
	Dur     time.Duration
	Silence time.Duration
}

// Tone is a cadenced call-progress or DTMF tone.
type Tone struct {
	Name     string
	Segments []Segment
	// Repeat loops the segments until the render is cancelled.
	Repeat bool
}

// ToneKind names a tone from the catalogue.
type ToneKind int

const (
	ToneRingback ToneKind = iota
	ToneCallWaiting
	ToneBusy
	ToneCongestion
	ToneCallEnded
	ToneDTMF0
	ToneDTMF1
	ToneDTMF2
	ToneDTMF3
	ToneDTMF4
	ToneDTMF5
	ToneDTMF6
	ToneDTMF7
	ToneDTMF8
	ToneDTMF9
	ToneDTMFStar
	ToneDTMFHash
)

const dtmfDuration = 150 * time.Millisecond

var catalogue = map[ToneKind]Tone{
	ToneRingback: {Name: "ringback", Repeat: true, Segments: []Segment{
		{Freq: []Hz{425}, Dur: time.Second, Silence: 4 * time.Second},
	}},
	ToneCallWaiting: {Name: "call-waiting", Repeat: true, Segments: []Segment{
		{Freq: []Hz{425}, Dur: 200 * time.Millisecond, Silence: 200 * time.Millisecond},
		{Freq: []Hz{425}, Dur: 200 * time.Millisecond, Silence: 3600 * time.Millisecond},
	}},
	ToneBusy: {Name: "busy", Repeat: true, Segments: []Segment{
		{Freq: []Hz{425}, Dur: 500 * time.Millisecond, Silence: 500 * time.Millisecond},
	}},
	ToneCongestion: {Name: "congestion", Repeat: true, Segments: []Segment{
		{Freq: []Hz{425}, Dur: 250 * time.Millisecond, Silence: 250 * time.Millisecond},
	}},
	ToneCallEnded: {Name: "call-ended", Segments: []Segment{
		{Freq: []Hz{425}, Dur: 200 * time.Millisecond, Silence: 200 * time.Millisecond},
		{Freq: []Hz{425}, Dur: 200 * time.Millisecond, Silence: 200 * time.Millisecond},
		{Freq: []Hz{425}, Dur: 200 * time.Millisecond},
	}},
}

var dtmfKeys = "0123456789*#"

// dtmfFreq holds the row and column frequency of each key in dtmfKeys.
var dtmfFreq = [][2]Hz{
	{941, 1336},
	{697, 1209}, {697, 1336}, {697, 1477},
	{770, 1209}, {770, 1336}, {770, 1477},
	{852, 1209}, {852, 1336}, {852, 1477},
	{941, 1209}, {941, 1477},
}

func (k ToneKind) String() string {
	if t, ok := Lookup(k); ok {
		return t.Name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// IsDTMF reports whether k is a keypad tone.
func (k ToneKind) IsDTMF() bool {
	return k >= ToneDTMF0 && k <= ToneDTMFHash
}

// Lookup returns the tone for k.
func Lookup(k ToneKind) (Tone, bool) {
	if k.IsDTMF() {
		i := int(k - ToneDTMF0)
		f := dtmfFreq[i]
		return Tone{
			Name:     "dtmf-" + string(dtmfKeys[i]),
			Segments: []Segment{{Freq: []Hz{f[0], f[1]}, Dur: dtmfDuration}},
		}, true
	}
	t, ok := catalogue[k]
	return t, ok
}

// DTMFKind maps a keypad character to its tone kind.
func DTMFKind(digit rune) (ToneKind, bool) {
	for i, c := range dtmfKeys {
		if c == digit {
			return ToneDTMF0 + ToneKind(i), true
		}
	}
	return 0, false
}

// toneSource synthesizes a Tone as mono PCM.
type toneSource struct {
	tone Tone
	rate int
	amp  float64

	seg int
	pos int
	t   int
}

// NewToneSource returns a mono Source that plays tone at rate with the
// given peak amplitude.
func NewToneSource(tone Tone, rate int, amp int16) (Source, error) {
	var total time.Duration
	for _, s := range tone.Segments {
		total += s.Dur + s.Silence
	}
	if total <= 0 || rate <= 0 {
		return nil, ErrEmptyTone
	}
	return &toneSource{tone: tone, rate: rate, amp: float64(amp)}, nil
}

func (s *toneSource) SampleRate() int { return s.rate }
func (s *toneSource) Channels() int   { return 1 }

func (s *toneSource) samples(d time.Duration) int {
	return int(d * time.Duration(s.rate) / time.Second)
}

func (s *toneSource) Read(dst []int16) (int, error) {
	n := 0
	for n < len(dst) {
		if s.seg >= len(s.tone.Segments) {
			if !s.tone.Repeat {
				break
			}
			s.seg = 0
		}
		sg := s.tone.Segments[s.seg]
		on, off := s.samples(sg.Dur), s.samples(sg.Silence)
		if s.pos >= on+off {
			s.seg++
			s.pos = 0
			continue
		}
		if s.pos < on && len(sg.Freq) > 0 {
			dst[n] = s.sample(sg.Freq)
		} else {
			dst[n] = 0
		}
		n++
		s.pos++
		s.t++
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *toneSource) sample(freq []Hz) int16 {
	sec := float64(s.t) / float64(s.rate)
	var sum float64
	for _, hz := range freq {
		sum += math.Sin(2 * math.Pi * float64(hz) * sec)
	}
	return int16(s.amp * sum / float64(len(freq)))
}
