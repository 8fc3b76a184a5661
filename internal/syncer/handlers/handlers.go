package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/internal/syncer/deadletter"
	"github.com/indexflow-go/internal/syncer/rebuild"
	"github.com/indexflow-go/internal/syncer/service"
	"github.com/indexflow-go/pkg/logger"
)

// Handler serves the admin surface: pipeline status, dead-letter inspection
// and requeue, and manual rebuilds.
type Handler struct {
	service   *service.Service
	letters   *deadletter.RedisStore
	rebuilder *rebuild.Rebuilder
	logger    logger.Logger
	startedAt time.Time
}

func New(svc *service.Service, letters *deadletter.RedisStore, rebuilder *rebuild.Rebuilder, log logger.Logger) *Handler {
	return &Handler{
		service:   svc,
		letters:   letters,
		rebuilder: rebuilder,
		logger:    log,
		startedAt: time.Now().UTC(),
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
}

func (h *Handler) Status(c *gin.Context) {
	pending, inFlight := h.service.Stats()

	status := gin.H{
		"uptime":     time.Since(h.startedAt).String(),
		"pending":    pending,
		"in_flight":  inFlight,
		"goroutines": runtime.NumGoroutine(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
	}
	if h.letters != nil {
		if size, err := h.letters.Size(c.Request.Context()); err == nil {
			status["dead_letters"] = size
		}
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) ListDeadLetters(c *gin.Context) {
	limit := int64(100)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	letters, err := h.letters.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list dead letters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letters"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(letters), "letters": letters})
}

// RequeueDeadLetters pops letters from the store and resubmits their tasks.
// A task that fails again will be dead-lettered again, so requeue never
// loses work.
func (h *Handler) RequeueDeadLetters(c *gin.Context) {
	var req struct {
		Limit int `json:"limit"`
	}
	// An empty body means "requeue with defaults".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	requeued := 0
	for requeued < req.Limit {
		letter, err := h.letters.Pop(c.Request.Context())
		if err != nil {
			h.logger.Error("Failed to pop dead letter", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to pop dead letter", "requeued": requeued})
			return
		}
		if letter == nil {
			break
		}
		if err := h.service.Submit(letter.Task); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "synchronizer is shutting down", "requeued": requeued})
			return
		}
		requeued++
	}

	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}

func (h *Handler) Rebuild(c *gin.Context) {
	index := c.Param("index")

	// Rebuilds can outlive the request.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	go func() {
		defer cancel()
		count, err := h.rebuilder.Rebuild(ctx, index)
		if err != nil {
			h.logger.Error("Rebuild failed", "index", index, "error", err)
			return
		}
		h.logger.Info("Rebuild submitted", "index", index, "records", count)
	}()

	c.JSON(http.StatusAccepted, gin.H{"index": index, "status": "rebuild started"})
}

// NotifyChange accepts an external change notification and publishes it on
// the bus, for producers that cannot go through the ORM bridge.
func (h *Handler) NotifyChange(publish func(ctx context.Context, event change.Event) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Index    string `json:"index" binding:"required"`
			RecordID string `json:"record_id" binding:"required"`
			Kind     string `json:"kind" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		kind := change.Kind(req.Kind)
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown change kind"})
			return
		}

		event := change.NewEvent(change.Identity{Index: req.Index, RecordID: req.RecordID}, kind)
		if err := publish(c.Request.Context(), event); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to publish event"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"event_id": event.ID})
	}
}
