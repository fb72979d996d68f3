package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gocraft2-project/gocraft2/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "gocraft2",
		"version": "0.1.0",
	})
}

// handleStatus returns the live match snapshot plus host metrics.
func (s *Server) handleStatus(c *gin.Context) {
	matchStatus, engines := s.tracker.snapshot()

	sysInfo := util.GetSystemInfo()
	system := gin.H{
		"hostname":        sysInfo.Hostname,
		"platform":        sysInfo.Platform,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
	}
	if cpu, err := util.GetCPUUsage(); err == nil {
		system["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		system["memory_used_percent"] = mem.UsedPercent
	}
	if disk, err := util.GetDiskUsage("."); err == nil {
		system["disk_used_percent"] = disk.UsedPercent
	}

	c.JSON(http.StatusOK, gin.H{
		"match":   matchStatus,
		"engines": engines,
		"system":  system,
	})
}

// handleMatches returns recent matches from the history store.
func (s *Server) handleMatches(c *gin.Context) {
	if s.historyDisabled(c) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	matches, err := s.store.RecentMatches(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"count":   len(matches),
	})
}

// handleMatch returns one recorded match by its match id.
func (s *Server) handleMatch(c *gin.Context) {
	if s.historyDisabled(c) {
		return
	}

	rec, err := s.store.Match(c.Param("match_id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleStandings returns the per-player win/loss tally.
func (s *Server) handleStandings(c *gin.Context) {
	if s.historyDisabled(c) {
		return
	}

	standings, err := s.store.Standings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"standings": standings,
		"count":     len(standings),
	})
}

// historyDisabled answers 503 when no history store is attached.
func (s *Server) historyDisabled(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "match history is disabled"})
		return true
	}
	return false
}
