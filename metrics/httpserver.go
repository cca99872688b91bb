package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server exposes a Recorder's counters over a small gin-routed HTTP
// surface for scraping, the same router style the teacher uses for its
// REST API, minus the auth and swagger layers that have no counterpart
// in a scrape endpoint.
type Server struct {
	engine *gin.Engine
}

// NewServer wires the /metrics route to recorder.
func NewServer(recorder *Recorder) *Server {
	engine := gin.Default()
	engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, recorder.Snapshot())
	})
	return &Server{engine: engine}
}

// Run blocks serving HTTP on addr (e.g. ":9090").
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}
