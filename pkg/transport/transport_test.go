package transport

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/twister2midi/pkg/protocol"
)

func cc(ch, num, val uint8) protocol.Event {
	return protocol.Event{Type: protocol.ControlChange, Channel: ch, Control: num, Value: val}
}

func TestSerializerFansOut(t *testing.T) {
	var a, b []midi.Message
	s := NewSerializer(nil,
		SinkFunc(func(m midi.Message) error { a = append(a, m); return nil }),
	)
	s.Add(SinkFunc(func(m midi.Message) error { b = append(b, m); return nil }))

	require.NoError(t, s.Handle(cc(0, 7, 100)))
	want := []midi.Message{midi.ControlChange(0, 7, 100)}
	assert.Equal(t, want, a)
	assert.Equal(t, want, b)
	assert.Equal(t, uint64(1), s.Sent())
}

func TestSerializerKeepsDeliveringAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	var got []midi.Message
	boom := errors.New("port gone")
	s := NewSerializer(slog.New(slog.NewTextHandler(&buf, nil)),
		SinkFunc(func(midi.Message) error { return boom }),
		SinkFunc(func(m midi.Message) error { got = append(got, m); return nil }),
	)

	assert.ErrorIs(t, s.Handle(cc(0, 1, 1)), boom)
	assert.Len(t, got, 1)
	assert.Equal(t, uint64(1), s.Failed())
	assert.Contains(t, buf.String(), "port gone")

	assert.Error(t, s.Handle(protocol.Event{}))
	assert.Equal(t, uint64(2), s.Failed())
}

func TestRecorderRoundTrip(t *testing.T) {
	r := NewRecorder(120)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	s := NewSerializer(nil, r)
	require.NoError(t, s.Handle(cc(0, 1, 10)))
	clock = clock.Add(500 * time.Millisecond) // one beat at 120 bpm
	require.NoError(t, s.Handle(cc(0, 1, 20)))
	clock = clock.Add(250 * time.Millisecond)
	require.NoError(t, s.Handle(protocol.Event{Type: protocol.NoteOn, Channel: 2, Control: 60, Value: 90}))
	assert.Equal(t, 3, r.Len())

	data, err := r.GenerateMIDI()
	require.NoError(t, err)

	entries, err := ParseMIDI(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(0), entries[0].Tick)
	assert.Equal(t, int64(480), entries[1].Tick)
	assert.Equal(t, int64(720), entries[2].Tick)
	assert.Equal(t, cc(0, 1, 20), entries[1].Event)
	assert.Equal(t, protocol.NoteOn, entries[2].Event.Type)
}

func TestRecorderFile(t *testing.T) {
	r := NewRecorder(0)
	require.NoError(t, r.Send(midi.ControlChange(1, 2, 3)))

	path := filepath.Join(t.TempDir(), "take.mid")
	require.NoError(t, r.WriteMIDIFile(path))

	entries, err := ParseMIDIFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cc(1, 2, 3), entries[0].Event)

	_, err = ParseMIDIFile(filepath.Join(t.TempDir(), "missing.mid"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseMIDIRejectsGarbage(t *testing.T) {
	_, err := ParseMIDI(bytes.NewReader([]byte("not a midi file")))
	assert.Error(t, err)
}

func TestMonitorKeepsMostRecent(t *testing.T) {
	m := NewMonitor(3)
	assert.Empty(t, m.Recent(0))

	for i := uint8(0); i < 5; i++ {
		require.NoError(t, m.Send(midi.ControlChange(0, 1, i)))
	}
	require.NoError(t, m.Send(midi.Pitchbend(0, 1)), "unknown messages are ignored")

	recent := m.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, uint8(2), recent[0].Event.Value)
	assert.Equal(t, uint8(4), recent[2].Event.Value)

	last := m.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, uint8(4), last[0].Event.Value)
	assert.Equal(t, uint64(5), m.Total())
}

func TestMatchPort(t *testing.T) {
	names := []string{"Midi Through:0", "Bitwig Studio In", "twister2midi:out"}
	got, ok := MatchPort(names, "bitwig")
	require.True(t, ok)
	assert.Equal(t, "Bitwig Studio In", got)
	_, ok = MatchPort(names, "ableton")
	assert.False(t, ok)
}
