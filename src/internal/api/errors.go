package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ait-main/src/internal/agent"
	"ait-main/src/internal/embedder"
	"ait-main/src/internal/llm"
	"ait-main/src/internal/memory"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrMalformedIdentifier),
		errors.Is(err, memory.ErrMalformedEmbedding),
		errors.Is(err, memory.ErrDimensionMismatch),
		errors.Is(err, agent.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, embedder.ErrUpstream), errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "request_id", c.GetString("request_id"), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func writeNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "experience not found"})
}
