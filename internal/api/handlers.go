package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gexflow/internal/analytics"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    s.cfg.App.Name,
		"version": s.cfg.App.Version,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleUnderlyings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"underlyings": s.service.Underlyings()})
}

func (s *Server) handleScores(c *gin.Context) {
	scores, err := s.service.ScoreContracts(underlying(c))
	if abortOnErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}

func (s *Server) handleExposure(c *gin.Context) {
	profile, err := s.service.ExposureProfile(underlying(c))
	if abortOnErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleExpectedMove(c *gin.Context) {
	move, err := s.service.ExpectedMove(underlying(c))
	if abortOnErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, move)
}

func (s *Server) handleFlow(c *gin.Context) {
	agg, err := s.service.FlowSnapshot(underlying(c))
	if abortOnErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (s *Server) handleBias(c *gin.Context) {
	verdict, err := s.service.Bias(underlying(c))
	if abortOnErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, verdict)
}

func underlying(c *gin.Context) string {
	return strings.ToUpper(c.Param("underlying"))
}

func abortOnErr(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, analytics.ErrUnknownUnderlying) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	return true
}
