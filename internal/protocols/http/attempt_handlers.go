package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"missionhub/pkg/models"
)

func (s *Server) getAttempt(c *gin.Context) {
	learnerID, _ := identity(c)
	a, err := s.engine.GetAttempt(c.Request.Context(), learnerID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, a)
}

func (s *Server) submitActivity(c *gin.Context) {
	var req models.SubmitActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errMissingBody
		}
		respondError(c, bindError(err))
		return
	}
	learnerID, _ := identity(c)

	out, err := s.engine.SubmitActivity(c.Request.Context(), learnerID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if out.Code != "" {
		respondRefused(c, http.StatusConflict, out.Code, out)
		return
	}
	respondOK(c, out)
}

func (s *Server) finalizeAttempt(c *gin.Context) {
	var req models.FinalizeRequest
	// The body is optional for structured missions.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(c, bindError(err))
			return
		}
	}
	learnerID, _ := identity(c)

	out, err := s.engine.CompleteAttempt(c.Request.Context(), learnerID, c.Param("id"), req.Session)
	if err != nil {
		respondError(c, err)
		return
	}
	if out.Code != "" {
		respondRefused(c, http.StatusConflict, out.Code, out)
		return
	}
	respondOK(c, out)
}

func (s *Server) abandonAttempt(c *gin.Context) {
	learnerID, _ := identity(c)
	a, err := s.engine.AbandonAttempt(c.Request.Context(), learnerID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, a)
}
