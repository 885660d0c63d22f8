package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrecall/internal/middleware"
	"github.com/xxxsen/mrecall/internal/pkg/response"
)

type RouterDeps struct {
	Ingest    *IngestHandler
	Chat      *ChatHandler
	JWTSecret []byte
	// RateLimit is the minimum gap between chat/search calls per caller; zero disables it.
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	group := api.Group("")
	if len(deps.JWTSecret) > 0 {
		group.Use(middleware.JWTAuth(deps.JWTSecret))
	}
	group.POST("/ingest/url", deps.Ingest.URL)
	group.POST("/ingest/pdf", deps.Ingest.PDF)
	group.POST("/ingest/audio", deps.Ingest.Audio)
	group.POST("/ingest/note", deps.Ingest.Note)
	group.GET("/ingest/job/:id", deps.Ingest.Job)

	limited := group.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimit))
	limited.POST("/chat", deps.Chat.Chat)
	limited.GET("/search", deps.Chat.Search)
}

func Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
