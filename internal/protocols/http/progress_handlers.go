package http

import (
	"github.com/gin-gonic/gin"
)

type timezoneRequest struct {
	Timezone string `json:"timezone" binding:"required"`
}

func (s *Server) getProgress(c *gin.Context) {
	learnerID, _ := identity(c)
	p, err := s.engine.GetLearnerProgress(c.Request.Context(), learnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, p)
}

func (s *Server) setTimezone(c *gin.Context) {
	var req timezoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	learnerID, _ := identity(c)
	if err := s.engine.SetTimezone(c.Request.Context(), learnerID, req.Timezone); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"timezone": req.Timezone})
}

func (s *Server) listEarnedBadges(c *gin.Context) {
	learnerID, _ := identity(c)
	earned, err := s.engine.ListEarnedBadges(c.Request.Context(), learnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, earned)
}
