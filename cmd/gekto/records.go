package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
	"github.com/Badaboom1995/gekto-sub001/internal/repository"
)

// registerRecordRoutes mounts read-only diagnostics over the lifecycle
// records: state transition history per session and persisted plans.
func registerRecordRoutes(r gin.IRoutes, records *repository.RecordRepository) {
	r.GET("/sessions/:id/history", func(c *gin.Context) {
		history, err := records.SessionHistory(c.Request.Context(), c.Param("id"))
		if errors.Is(err, model.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessionId": c.Param("id"), "history": history})
	})

	r.GET("/plans/:id", func(c *gin.Context) {
		plan, err := records.Plan(c.Request.Context(), c.Param("id"))
		if errors.Is(err, model.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, plan)
	})
}
