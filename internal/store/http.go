package store

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxValueSize caps a single stored value at 256 KiB.
const maxValueSize = 256 * 1024

// RegisterRoutes mounts the shared-state endpoints on r. Widgets use
// them to persist UI state (panel layout, chat drafts) across reloads.
func RegisterRoutes(r gin.IRoutes, s *Store) {
	r.GET("/state/:key", getState(s))
	r.PUT("/state/:key", putState(s))
	r.DELETE("/state/:key", deleteState(s))
}

func getState(s *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var value json.RawMessage
		ok, err := s.Get(c.Param("key"), &value)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.Data(http.StatusOK, "application/json", value)
	}
}

func putState(s *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxValueSize+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		if len(body) > maxValueSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "value too large"})
			return
		}
		if !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value must be valid JSON"})
			return
		}
		if err := s.Set(c.Param("key"), json.RawMessage(body)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": s.Version()})
	}
}

func deleteState(s *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Delete(c.Param("key")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": s.Version()})
	}
}
