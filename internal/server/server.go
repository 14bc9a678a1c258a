// internal/server/server.go
// REST surface over one stick and its paired pump. Every handler is a
// thin wrapper around a driver call; the pump is single-threaded, so a
// mutex serializes requests.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"minimed/internal/byteops"
	"minimed/internal/pump"
	"minimed/internal/stick"
)

// Radio is the slice of the stick the server exposes directly.
type Radio interface {
	ReadName() (string, error)
	ReadAuthor() (string, error)
	Tune(mhz float64) error
	FlashLED() error
}

// Server serves the driver over HTTP.
type Server struct {
	radio     Radio
	pump      *pump.Pump
	startTime time.Time
	mu        sync.Mutex
}

// New returns a server over the given radio and pump.
func New(radio Radio, p *pump.Pump) *Server {
	return &Server{radio: radio, pump: p, startTime: time.Now()}
}

// Router builds the gin engine with all API routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/stick", s.handleStick)
		api.POST("/stick/led", s.handleFlashLED)
		api.POST("/tune", s.handleTune)
		api.POST("/scan", s.handleScan)

		api.GET("/model", s.handleModel)
		api.GET("/firmware", s.handleFirmware)
		api.GET("/time", s.handleTime)
		api.GET("/battery", s.handleBattery)
		api.GET("/reservoir", s.handleReservoir)
		api.GET("/status", s.handleStatus)
		api.GET("/settings", s.handleSettings)
		api.GET("/units", s.handleUnits)
		api.GET("/targets", s.handleTargets)
		api.GET("/isf", s.handleISF)
		api.GET("/csf", s.handleCSF)
		api.GET("/basal/:profile", s.handleBasal)
		api.GET("/history/:page", s.handleHistory)

		api.POST("/power", s.handlePower)
		api.POST("/suspend", s.handleSuspend)
		api.POST("/resume", s.handleResume)
		api.POST("/button", s.handleButton)
		api.POST("/bolus", s.handleBolus)
		api.POST("/tb/units", s.handleTBUnits)
		api.POST("/tb/absolute", s.handleAbsoluteTB)
		api.POST("/tb/percentage", s.handlePercentageTB)
	}
	return router
}

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

// fail maps driver errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, byteops.ErrBadArgument), errors.Is(err, stick.ErrBadFrequencies):
		status = http.StatusBadRequest
	case stick.IsRadioError(err), errors.Is(err, pump.ErrNoPump):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptimeSeconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStick(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.radio.ReadName()
	if err != nil {
		fail(c, err)
		return
	}
	author, err := s.radio.ReadAuthor()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "author": author})
}

func (s *Server) handleFlashLED(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.radio.FlashLED(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flashed": true})
}

func (s *Server) handleTune(c *gin.Context) {
	var req struct {
		Frequency float64 `json:"frequency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.radio.Tune(req.Frequency); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"frequency": req.Frequency})
}

func (s *Server) handleScan(c *gin.Context) {
	var req struct {
		F1      float64 `json:"f1"`
		F2      float64 `json:"f2"`
		Points  int     `json:"points"`
		Samples int     `json:"samples"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	best, err := s.pump.Scan(pump.ScanOptions{
		F1: req.F1, F2: req.F2, Points: req.Points, Samples: req.Samples,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"frequency": best})
}

func (s *Server) handleModel(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.Model() })
}

func (s *Server) handleFirmware(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.Firmware() })
}

func (s *Server) handleTime(c *gin.Context) {
	s.respond(c, func() (any, error) {
		t, err := s.pump.Time()
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02 15:04:05"), nil
	})
}

func (s *Server) handleBattery(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.Battery() })
}

func (s *Server) handleReservoir(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.Reservoir() })
}

func (s *Server) handleStatus(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.Status() })
}

func (s *Server) handleSettings(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.Settings() })
}

func (s *Server) handleUnits(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bg, err := s.pump.BGUnits()
	if err != nil {
		fail(c, err)
		return
	}
	carbs, err := s.pump.CarbUnits()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bg": bg, "carbs": carbs})
}

func (s *Server) handleTargets(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.BGTargets() })
}

func (s *Server) handleISF(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.ISF() })
}

func (s *Server) handleCSF(c *gin.Context) {
	s.respond(c, func() (any, error) { return s.pump.CSF() })
}

func (s *Server) handleBasal(c *gin.Context) {
	var profile pump.BasalProfileType
	switch c.Param("profile") {
	case "standard":
		profile = pump.BasalStandard
	case "a":
		profile = pump.BasalA
	case "b":
		profile = pump.BasalB
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile must be standard, a or b"})
		return
	}
	s.respond(c, func() (any, error) { return s.pump.BasalProfile(profile) })
}

func (s *Server) handleHistory(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be an integer"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.pump.HistoryPage(page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "data": data})
}

func (s *Server) handlePower(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.act(c, func() error { return s.pump.Power(req.Minutes) })
}

func (s *Server) handleSuspend(c *gin.Context) {
	s.act(c, s.pump.Suspend)
}

func (s *Server) handleResume(c *gin.Context) {
	s.act(c, s.pump.Resume)
}

func (s *Server) handleButton(c *gin.Context) {
	var req struct {
		Button string `json:"button" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var button pump.Button
	switch req.Button {
	case "EASY":
		button = pump.ButtonEasy
	case "ESC":
		button = pump.ButtonEsc
	case "ACT":
		button = pump.ButtonAct
	case "UP":
		button = pump.ButtonUp
	case "DOWN":
		button = pump.ButtonDown
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown button"})
		return
	}
	s.act(c, func() error { return s.pump.PushButton(button) })
}

func (s *Server) handleBolus(c *gin.Context) {
	var req struct {
		Units float64 `json:"units"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.act(c, func() error { return s.pump.Bolus(req.Units) })
}

func (s *Server) handleTBUnits(c *gin.Context) {
	var req struct {
		Units string `json:"units" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var units pump.TBUnits
	switch req.Units {
	case "U/h":
		units = pump.TBAbsolute
	case "%":
		units = pump.TBPercent
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "units must be U/h or %"})
		return
	}
	s.act(c, func() error { return s.pump.SetTBUnits(units) })
}

func (s *Server) handleAbsoluteTB(c *gin.Context) {
	var req struct {
		Rate     float64 `json:"rate"`
		Duration int     `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.act(c, func() error { return s.pump.SetAbsoluteTB(req.Rate, req.Duration) })
}

func (s *Server) handlePercentageTB(c *gin.Context) {
	var req struct {
		Rate     int `json:"rate"`
		Duration int `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.act(c, func() error { return s.pump.SetPercentageTB(req.Rate, req.Duration) })
}

// respond serializes one read under the pump mutex.
func (s *Server) respond(c *gin.Context, read func() (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := read()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}

// act serializes one set-command under the pump mutex.
func (s *Server) act(c *gin.Context, do func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := do(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}
