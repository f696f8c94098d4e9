package event

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

func TestBusRegister(t *testing.T) {
	var b Bus
	core, err := NewChannel[int]("core", 1)
	require.NoError(t, err)

	require.NoError(t, b.Register(Core, core))
	assert.True(t, errors.Is(b.Register(Core, core), surfaceerr.ErrDuplicate))
	assert.True(t, errors.Is(b.Register(ChannelID(9), core), surfaceerr.ErrBadParameter))
	assert.True(t, errors.Is(b.Register(IO, nil), surfaceerr.ErrNullReference))
	assert.Nil(t, b.Channel(ChannelID(200)))
}

func TestLookup(t *testing.T) {
	var b Bus
	io, err := NewChannel[string]("io", 1)
	require.NoError(t, err)
	require.NoError(t, b.Register(IO, io))

	got, err := Lookup[string](&b, IO)
	require.NoError(t, err)
	assert.Same(t, io, got)

	_, err = Lookup[int](&b, IO)
	assert.True(t, errors.Is(err, surfaceerr.ErrBadParameter))
	_, err = Lookup[int](&b, MIDIOut)
	assert.True(t, errors.Is(err, surfaceerr.ErrNullReference))
}

func TestProcessAllRunsChannelsInOrder(t *testing.T) {
	var b Bus
	var order []string
	mk := func(id ChannelID) *Channel[int] {
		ch, err := NewChannel[int](id.String(), 4)
		require.NoError(t, err)
		require.NoError(t, ch.Subscribe("rec", 0, func(int) error {
			order = append(order, id.String())
			return nil
		}))
		require.NoError(t, b.Register(id, ch))
		return ch
	}
	out := mk(MIDIOut)
	io := mk(IO)
	core := mk(Core)

	require.NoError(t, out.Post(1))
	require.NoError(t, io.Post(1))
	require.NoError(t, core.Post(1))
	require.NoError(t, io.Post(2))
	assert.True(t, b.Pending())

	assert.Equal(t, 4, b.ProcessAll())
	assert.Equal(t, []string{"core", "io", "io", "midi-out"}, order)
	assert.False(t, b.Pending())

	stats := b.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, IO, stats[1].ID)
	assert.Equal(t, uint64(2), stats[1].Dispatched)
}

func TestProcessAllRepostLatency(t *testing.T) {
	tests := []struct {
		name  string
		from  ChannelID
		to    ChannelID
		first int
	}{
		{"later channel same pass", IO, MIDIOut, 2},
		{"earlier channel next pass", IO, Core, 1},
		{"own channel next pass", IO, IO, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bus
			chans := map[ChannelID]*Channel[int]{}
			for _, id := range []ChannelID{Core, IO, MIDIOut} {
				ch, err := NewChannel[int](id.String(), 4)
				require.NoError(t, err)
				require.NoError(t, b.Register(id, ch))
				chans[id] = ch
			}
			require.NoError(t, chans[tt.from].Subscribe("fwd", 0, func(v int) error {
				if v == 1 {
					return chans[tt.to].Post(2)
				}
				return nil
			}))
			if tt.to != tt.from {
				require.NoError(t, chans[tt.to].Subscribe("sink", 0, func(int) error { return nil }))
			}

			require.NoError(t, chans[tt.from].Post(1))
			assert.Equal(t, tt.first, b.ProcessAll())
			assert.Equal(t, tt.first == 1, b.Pending())
			assert.Equal(t, 2-tt.first, b.ProcessAll())
			assert.False(t, b.Pending())
		})
	}
}

func TestChannelIDString(t *testing.T) {
	assert.Equal(t, "midi-in", MIDIIn.String())
	assert.Equal(t, "channel(7)", ChannelID(7).String())
}

func TestDropReporterRateLimits(t *testing.T) {
	var buf bytes.Buffer
	r := NewDropReporter(slog.New(slog.NewTextHandler(&buf, nil)), map[time.Duration]int{
		time.Hour: 2,
	})

	ch, err := NewChannel[int]("tiny", 1, WithDropHook[int](r.Report))
	require.NoError(t, err)
	require.NoError(t, ch.Post(0))
	for i := 0; i < 10; i++ {
		assert.True(t, errors.Is(ch.Post(i), surfaceerr.ErrQueueFull))
	}

	assert.Equal(t, uint64(10), ch.Drops())
	assert.Equal(t, 2, strings.Count(buf.String(), "queue full"))
	assert.Contains(t, buf.String(), "channel=tiny")
}
