package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/internal/utils"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SSEHandler streams report job updates as Server-Sent Events.
type SSEHandler struct {
	hub *services.JobEventHub
}

func NewSSEHandler(hub *services.JobEventHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// StreamJobEvents accepts the JWT as ?token= because EventSource cannot set
// headers. ?jobId= narrows the stream to one job.
// GET /api/reports/jobs/events
func (h *SSEHandler) StreamJobEvents(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	if _, err := utils.ParseToken(token); err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	jobID := c.Query("jobId")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			if jobID != "" && event.ID != jobID {
				return true
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: job\ndata: %s\n\n", data)
			c.Writer.Flush()
			// a finished job ends a filtered stream
			return jobID == "" || !event.Status.Terminal()
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
