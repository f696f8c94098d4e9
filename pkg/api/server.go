// Package api provides the REST API server for twister2midi
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/surface"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
	"github.com/james-see/twister2midi/pkg/transport"
)

// @title Twister2MIDI API
// @version 1.0
// @description API for inspecting and driving a MIDI control surface
// @host localhost:8080
// @BasePath /api/v1

// requestTimeout bounds the wait for the surface loop.
const requestTimeout = 2 * time.Second

// Server exposes a running surface over HTTP.
type Server struct {
	surface  *surface.Surface
	monitor  *transport.Monitor
	recorder *transport.Recorder
}

// New returns a server for s. monitor and recorder may be nil.
func New(s *surface.Surface, monitor *transport.Monitor, recorder *transport.Recorder) *Server {
	return &Server{surface: s, monitor: monitor, recorder: recorder}
}

// Router builds the gin engine.
func (srv *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/state", srv.getState)
		v1.GET("/stats", srv.getStats)
		v1.GET("/events", srv.listEvents)
		v1.GET("/recording", srv.getRecording)
		v1.PUT("/bank", srv.putBank)
		v1.POST("/encoders/:index/turn", srv.turnEncoder)
		v1.POST("/encoders/:index/press", srv.pressEncoder)
		v1.POST("/side/:index/press", srv.pressSide)
		v1.POST("/midi", srv.postMIDI)
		v1.POST("/sysex", srv.postSysEx)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the API server on the specified port
func (srv *Server) StartServer(port int) error {
	return srv.Router().Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// do runs fn on the surface loop with the request deadline.
func (srv *Server) do(c *gin.Context, fn func(*surface.Surface) error) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	return srv.surface.Do(ctx, fn)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, surfaceerr.ErrBadParameter):
		status = http.StatusBadRequest
	case errors.Is(err, surfaceerr.ErrQueueFull):
		status = http.StatusServiceUnavailable
	case errors.Is(err, surfaceerr.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return 0, false
	}
	return i, true
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "twister2midi",
	})
}

// getState godoc
// @Summary Surface state
// @Description Returns the encoders of the active bank, side switches and channel counters
// @Tags surface
// @Produce json
// @Success 200 {object} surface.State
// @Failure 504 {object} map[string]string
// @Router /api/v1/state [get]
func (srv *Server) getState(c *gin.Context) {
	var st surface.State
	if err := srv.do(c, func(s *surface.Surface) error {
		st = s.Snapshot()
		return nil
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// getStats godoc
// @Summary Event channel counters
// @Description Returns queue depth, drops and dispatch counts per channel
// @Tags surface
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/stats [get]
func (srv *Server) getStats(c *gin.Context) {
	var st surface.State
	if err := srv.do(c, func(s *surface.Surface) error {
		st = s.Snapshot()
		return nil
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channels": st.Channels,
		"sent":     st.Sent,
		"failed":   st.Failed,
		"ticks":    st.Ticks,
	})
}

// listEvents godoc
// @Summary Recent MIDI output
// @Description Returns the most recent messages sent by the surface, oldest first
// @Tags midi
// @Produce json
// @Param n query int false "Number of messages (default: 50)"
// @Success 200 {object} map[string]interface{}
// @Failure 501 {object} map[string]string
// @Router /api/v1/events [get]
func (srv *Server) listEvents(c *gin.Context) {
	if srv.monitor == nil {
		writeError(c, fmt.Errorf("no monitor: %w", surfaceerr.ErrUnsupported))
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid n"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  srv.monitor.Total(),
		"events": srv.monitor.Recent(n),
	})
}

// getRecording godoc
// @Summary Download the session recording
// @Description Returns every message sent so far as a Standard MIDI File
// @Tags midi
// @Produce application/octet-stream
// @Success 200 {file} binary
// @Failure 501 {object} map[string]string
// @Router /api/v1/recording [get]
func (srv *Server) getRecording(c *gin.Context) {
	if srv.recorder == nil {
		writeError(c, fmt.Errorf("no recorder: %w", surfaceerr.ErrUnsupported))
		return
	}
	data, err := srv.recorder.GenerateMIDI()
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=session.mid")
	c.Data(http.StatusOK, "audio/midi", data)
}

type bankRequest struct {
	Bank int `json:"bank"`
}

// putBank godoc
// @Summary Select the active bank
// @Tags surface
// @Accept json
// @Produce json
// @Param body body bankRequest true "Bank index"
// @Success 200 {object} map[string]int
// @Failure 400 {object} map[string]string
// @Router /api/v1/bank [put]
func (srv *Server) putBank(c *gin.Context) {
	var req bankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := srv.do(c, func(s *surface.Surface) error { return s.SelectBank(req.Bank) }); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank": req.Bank})
}

type turnRequest struct {
	Detents int `json:"detents"`
}

// turnEncoder godoc
// @Summary Turn a simulated encoder
// @Description Queues detent clicks on the simulated scan source. Positive is clockwise.
// @Tags simulator
// @Accept json
// @Produce json
// @Param index path int true "Encoder index"
// @Param body body turnRequest true "Detents"
// @Success 202 {object} map[string]int
// @Failure 400 {object} map[string]string
// @Failure 501 {object} map[string]string
// @Router /api/v1/encoders/{index}/turn [post]
func (srv *Server) turnEncoder(c *gin.Context) {
	i, ok := pathIndex(c)
	if !ok {
		return
	}
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sim := srv.surface.Simulator()
	if sim == nil {
		writeError(c, fmt.Errorf("hardware source: %w", surfaceerr.ErrUnsupported))
		return
	}
	if err := sim.Turn(i, req.Detents); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"encoder": i, "detents": req.Detents})
}

type pressRequest struct {
	Down bool `json:"down"`
}

// pressEncoder godoc
// @Summary Hold or release a simulated encoder switch
// @Tags simulator
// @Accept json
// @Produce json
// @Param index path int true "Encoder index"
// @Param body body pressRequest true "Switch state"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/encoders/{index}/press [post]
func (srv *Server) pressEncoder(c *gin.Context) {
	srv.press(c, func(i int, down bool) error { return srv.surface.Simulator().PressEncoder(i, down) })
}

// pressSide godoc
// @Summary Hold or release a simulated side switch
// @Tags simulator
// @Accept json
// @Produce json
// @Param index path int true "Side switch index"
// @Param body body pressRequest true "Switch state"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/side/{index}/press [post]
func (srv *Server) pressSide(c *gin.Context) {
	srv.press(c, func(i int, down bool) error { return srv.surface.Simulator().PressSide(i, down) })
}

func (srv *Server) press(c *gin.Context, fn func(int, bool) error) {
	i, ok := pathIndex(c)
	if !ok {
		return
	}
	var req pressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if srv.surface.Simulator() == nil {
		writeError(c, fmt.Errorf("hardware source: %w", surfaceerr.ErrUnsupported))
		return
	}
	if err := fn(i, req.Down); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"index": i, "down": req.Down})
}

// postMIDI godoc
// @Summary Inject an inbound MIDI event
// @Description Delivers a controller or note message as if received from the host
// @Tags midi
// @Accept json
// @Produce json
// @Param body body protocol.Event true "Event"
// @Success 202 {object} protocol.Event
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/midi [post]
func (srv *Server) postMIDI(c *gin.Context) {
	var evt protocol.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := evt.Message(); err != nil {
		writeError(c, err)
		return
	}
	if err := srv.surface.Inject(evt); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, evt)
}

// postSysEx godoc
// @Summary Inject a parameter request
// @Description Delivers a get or set parameter SysEx message. The reply appears in /events.
// @Tags midi
// @Accept json
// @Produce json
// @Param body body protocol.Request true "Parameter request"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /api/v1/sysex [post]
func (srv *Server) postSysEx(c *gin.Context) {
	var req protocol.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	framed := req.Bytes()
	if _, err := protocol.ParseRequest(framed); err != nil {
		writeError(c, err)
		return
	}
	evt := protocol.Event{Type: protocol.SysEx, Data: framed[1 : len(framed)-1]}
	if err := srv.surface.Inject(evt); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sysex": fmt.Sprintf("% X", framed)})
}
