package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ArtifactFetcher reads archived stage outputs back from the artifact
// store (storage.ArtifactStore).
type ArtifactFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ArtifactHandler serves the per-stage outputs the executor archived.
type ArtifactHandler struct {
	fetcher ArtifactFetcher
}

// NewArtifactHandler creates an artifact handler. fetcher may be nil when
// the artifact archive is disabled; every request then 404s.
func NewArtifactHandler(fetcher ArtifactFetcher) *ArtifactHandler {
	return &ArtifactHandler{fetcher: fetcher}
}

// GetStageArtifact handles GET /api/v1/jobs/:id/artifacts/:stage.
func (h *ArtifactHandler) GetStageArtifact(c *gin.Context) {
	if h.fetcher == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Artifact archive not enabled"})
		return
	}

	key := fmt.Sprintf("jobs/%s/%s.txt", c.Param("id"), c.Param("stage"))
	content, err := h.fetcher.Fetch(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
}
