package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/twister2midi/pkg/protocol"
)

// Recorder captures sent messages with their timing and writes them as a
// single track Standard MIDI File.
type Recorder struct {
	mu              sync.Mutex
	ticksPerQuarter uint16
	tempo           float64
	start           time.Time
	events          []recorded

	now func() time.Time
}

type recorded struct {
	at  time.Duration
	msg midi.Message
}

// NewRecorder returns a recorder timing events at tempo beats per minute.
func NewRecorder(tempo float64) *Recorder {
	if tempo <= 0 {
		tempo = 120.0
	}
	return &Recorder{
		ticksPerQuarter: 480,
		tempo:           tempo,
		now:             time.Now,
	}
}

// Send implements Sink. The first message starts the clock.
func (r *Recorder) Send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.start.IsZero() {
		r.start = now
	}
	r.events = append(r.events, recorded{at: now.Sub(r.start), msg: append(midi.Message(nil), msg...)})
	return nil
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Recorder) ticks(d time.Duration) uint32 {
	microsecondsPerBeat := 60000000.0 / r.tempo
	return uint32(float64(d.Microseconds()) * float64(r.ticksPerQuarter) / microsecondsPerBeat)
}

// GenerateMIDI renders the recording as SMF bytes.
func (r *Recorder) GenerateMIDI() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(r.ticksPerQuarter)

	var track smf.Track

	microsecondsPerBeat := uint32(60000000.0 / r.tempo)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))

	var currentTick uint32
	for _, ev := range r.events {
		tick := r.ticks(ev.at)
		track.Add(tick-currentTick, ev.msg)
		currentTick = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteMIDIFile writes the recording to filename.
func (r *Recorder) WriteMIDIFile(filename string) error {
	data, err := r.GenerateMIDI()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Entry is one event of a decoded recording.
type Entry struct {
	Tick  int64          `json:"tick"`
	Event protocol.Event `json:"event"`
}

// ParseMIDI extracts the protocol events of every track of an SMF stream.
func ParseMIDI(rd io.Reader) ([]Entry, error) {
	s, err := smf.ReadFrom(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}
	if len(s.Tracks) == 0 {
		return nil, errors.New("midi file has no tracks")
	}

	var out []Entry
	for _, track := range s.Tracks {
		var currentTick int64
		for _, ev := range track {
			currentTick += int64(ev.Delta)
			if evt, ok := protocol.FromMessage(midi.Message(ev.Message)); ok {
				out = append(out, Entry{Tick: currentTick, Event: evt})
			}
		}
	}
	return out, nil
}

// ParseMIDIFile reads a recording from filename.
func ParseMIDIFile(filename string) ([]Entry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	defer f.Close()
	return ParseMIDI(f)
}
