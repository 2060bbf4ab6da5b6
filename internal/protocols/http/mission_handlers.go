package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"missionhub/pkg/models"
)

// identity is only called behind AuthMiddleware
func identity(c *gin.Context) (learnerID, cohort string) {
	id, ok := GetIdentity(c)
	if !ok {
		return "", ""
	}
	return id.LearnerID, id.Cohort
}

func bindError(err error) error {
	return fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidInput)
}

// checkAvailability is a dry run of the gate
func (s *Server) checkAvailability(c *gin.Context) {
	var ref models.WindowRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		respondError(c, bindError(err))
		return
	}
	if ref.Topic == "" || ref.Kind == "" {
		respondError(c, fmt.Errorf("topic and kind are required: %w", models.ErrInvalidInput))
		return
	}
	learnerID, cohort := identity(c)
	if ref.Cohort == "" {
		ref.Cohort = cohort
	}

	avail := s.engine.CheckAvailability(c.Request.Context(), learnerID, ref, c.GetHeader(SessionHeader))
	if avail.Reason == models.ReasonUnavailable {
		respondRefused(c, http.StatusServiceUnavailable, avail.Code, avail)
		return
	}
	respondOK(c, avail)
}

func (s *Server) startMission(c *gin.Context) {
	var req models.StartMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	learnerID, cohort := identity(c)
	if req.Cohort == "" {
		req.Cohort = cohort
	}
	ref := models.WindowRef{Topic: req.Topic, Kind: req.Kind, Cohort: req.Cohort, MissionID: c.Param("id")}

	res, err := s.engine.StartMission(c.Request.Context(), learnerID, ref, c.GetHeader(SessionHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Attempt == nil {
		status := http.StatusOK
		if res.Availability.Reason == models.ReasonUnavailable {
			status = http.StatusServiceUnavailable
		}
		respondRefused(c, status, res.Availability.Code, res)
		return
	}
	if res.Resumed {
		respondOK(c, res)
		return
	}
	c.JSON(http.StatusCreated, models.APIResponse{Success: true, Data: res, Timestamp: time.Now()})
}

func (s *Server) acknowledgeTheory(c *gin.Context) {
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		respondError(c, fmt.Errorf("%s header is required: %w", SessionHeader, models.ErrInvalidInput))
		return
	}
	if err := s.engine.AcknowledgeTheory(c.Request.Context(), sessionID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"mission_id": c.Param("id"), "acknowledged": true})
}

func (s *Server) getMission(c *gin.Context) {
	detail, err := s.engine.GetMission(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) listBadges(c *gin.Context) {
	badges, err := s.engine.ListBadges(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, badges)
}
