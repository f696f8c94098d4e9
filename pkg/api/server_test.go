package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/james-see/twister2midi/pkg/config"
	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/surface"
	"github.com/james-see/twister2midi/pkg/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router  *gin.Engine
	monitor *transport.Monitor
}

func newFixture(t *testing.T, withSinks bool) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Motion.Accelerate = false
	cfg.Motion.FixedStep = 1500
	cfg.Motion.MaxVelocity = 1500

	f := &fixture{}
	var rec *transport.Recorder
	var opts []surface.Option
	if withSinks {
		f.monitor = transport.NewMonitor(32)
		rec = transport.NewRecorder(cfg.MIDI.Tempo)
		opts = append(opts, surface.WithSinks(f.monitor, rec))
	}
	s, err := surface.New(cfg, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f.router = New(s, f.monitor, rec).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) state(t *testing.T) surface.State {
	t.Helper()
	w := f.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st surface.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "twister2midi")
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodOptions, "/api/v1/state", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestState(t *testing.T) {
	f := newFixture(t, false)
	st := f.state(t)
	assert.Equal(t, 4, st.Banks)
	assert.Len(t, st.Encoders, 16)
	assert.Len(t, st.Channels, 4)
}

func TestTurnEncoder(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodPost, "/api/v1/encoders/2/turn", turnRequest{Detents: 4})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	assert.Eventually(t, func() bool {
		return f.state(t).Encoders[2].Value == 6000
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return f.monitor.Total() == 8 }, 2*time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/v1/events?n=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Total  uint64           `json:"total"`
		Events []transport.Sent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint64(8), body.Total)
	require.Len(t, body.Events, 2)
	assert.Equal(t, protocol.ControlChange, body.Events[1].Event.Type)
	assert.Equal(t, uint8(11), body.Events[1].Event.Value)

	w = f.do(t, http.MethodGet, "/api/v1/recording", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/midi", w.Header().Get("Content-Type"))
	entries, err := transport.ParseMIDI(w.Body)
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestTurnEncoderRejects(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/encoders/x/turn", turnRequest{Detents: 1}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/encoders/99/turn", turnRequest{Detents: 1}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/encoders/1/turn", "not an object").Code)
}

func TestPressSideSelectsBank(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/side/1/press", pressRequest{Down: true})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool { return f.state(t).ActiveBank == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/side/7/press", pressRequest{Down: true}).Code)
}

func TestPressEncoder(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/encoders/0/press", pressRequest{Down: true})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Eventually(t, func() bool {
		e := f.state(t).Encoders[0]
		return e.Pressed && e.ActiveMap == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPutBank(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/bank", bankRequest{Bank: 3}).Code)
	assert.Equal(t, 3, f.state(t).ActiveBank)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/v1/bank", bankRequest{Bank: 9}).Code)
}

func TestPostMIDIFeedback(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/midi", map[string]any{"type": "cc", "control": 6, "value": 127})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Eventually(t, func() bool {
		return f.state(t).Encoders[3].Value == 65535
	}, 2*time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodPost, "/api/v1/midi", map[string]any{"type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostSysEx(t *testing.T) {
	f := newFixture(t, true)
	req := protocol.Request{Cmd: protocol.CmdGet, Param: protocol.ParamActiveBank}
	w := f.do(t, http.MethodPost, "/api/v1/sysex", req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "F0 53 41 4D 00 0E")

	assert.Eventually(t, func() bool { return f.monitor.Total() == 1 }, 2*time.Second, 5*time.Millisecond)
	got := f.monitor.Recent(1)[0].Event
	assert.Equal(t, protocol.SysEx, got.Type)
	assert.Equal(t, protocol.Response(req, 0, protocol.StatusOK), got.Data)

	bad := protocol.Request{Cmd: protocol.CmdGetResponse}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/sysex", bad).Code)
}

func TestWithoutSinks(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotImplemented, f.do(t, http.MethodGet, "/api/v1/events", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, f.do(t, http.MethodGet, "/api/v1/recording", nil).Code)
}
