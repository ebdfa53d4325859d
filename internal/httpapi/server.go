// Package httpapi exposes the session over HTTP for a browser front end:
// submissions, transcript reads, exports, telemetry and a progress SSE
// stream.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"loremaster/internal/export"
	"loremaster/internal/feedback"
	"loremaster/internal/orchestrator"
	"loremaster/internal/transcript"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Orchestrator *orchestrator.Orchestrator
	Port         int
	Out          io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Orchestrator == nil {
		return fmt.Errorf("httpapi: orchestrator is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, opts.Orchestrator)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Session API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: %w", err)
	}
	return nil
}

// RegisterRoutes sets up all API routes on the router.
func RegisterRoutes(router *gin.Engine, orch *orchestrator.Orchestrator) {
	api := router.Group("/api")
	api.POST("/turns", handleSubmit(orch))
	api.GET("/transcript", handleTranscript(orch))
	api.DELETE("/transcript", handleClear(orch))
	api.GET("/export/:format", handleExport(orch))
	api.GET("/telemetry", handleTelemetry(orch))
	api.POST("/feedback", handleFeedback(orch))
	api.POST("/provider/reload", handleProviderReload(orch))
	api.GET("/events", handleEvents(orch))
}

type submitRequest struct {
	Content     string `json:"content" binding:"required"`
	InCharacter bool   `json:"in_character"`
	Knowledge   string `json:"knowledge"`
}

func handleSubmit(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		knowledge := orchestrator.KnowledgeNone
		if req.Knowledge == string(orchestrator.KnowledgeLore) {
			knowledge = orchestrator.KnowledgeLore
		}
		err := orch.SubmitAsync(context.Background(), req.Content, orchestrator.SubmitOptions{
			InCharacter: req.InCharacter,
			Knowledge:   knowledge,
		})
		if errors.Is(err, orchestrator.ErrTurnInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "a turn is already in flight"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

func handleTranscript(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"turns": orch.Transcript()})
	}
}

func handleClear(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		orch.Clear()
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}

func handleExport(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := export.Format(c.Param("format"))
		data, err := export.Encode(format, orch.Transcript(), orch.Ratings())
		if errors.Is(err, export.ErrUnknownFormat) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	}
}

func handleTelemetry(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"records": orch.Records()})
	}
}

type feedbackRequest struct {
	Index  int    `json:"index"`
	Rating string `json:"rating" binding:"required"`
}

func handleFeedback(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var rating feedback.Rating
		switch req.Rating {
		case "positive":
			rating = feedback.RatingPositive
		case "negative":
			rating = feedback.RatingNegative
		case "none":
			rating = feedback.RatingNone
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be positive, negative or none"})
			return
		}
		orch.Rate(req.Index, rating)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleProviderReload(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := orch.ReloadProviderFromEnv(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
	}
}

// handleEvents streams progress turns as server-sent events until the
// client disconnects.
func handleEvents(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch := make(chan transcript.Turn, 64)
		unsubscribe := orch.SubscribeProgress(func(t transcript.Turn) {
			select {
			case ch <- t:
			default: // slow client; drop rather than block the turn
			}
		})
		defer unsubscribe()

		c.Stream(func(w io.Writer) bool {
			select {
			case t := <-ch:
				c.SSEvent("progress", t)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
