package handlers

import (
	"net/http"

	"github.com/comadj/car-system/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, the task queue and the
// report jobs.
type HealthHandler struct {
	db      *gorm.DB
	queue   services.TaskQueue
	tracker *services.JobTracker
	events  *services.JobEventHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, tracker *services.JobTracker, events *services.JobEventHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, tracker: tracker, events: events}
}

// CheckHealth answers 503 when the database is unreachable.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}
	activeJobs := 0
	if h.tracker != nil {
		activeJobs = len(h.tracker.Active())
	}
	sseClients := 0
	if h.events != nil {
		sseClients = h.events.ClientCount()
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "car-system",
		"components": gin.H{
			"database":    dbStatus,
			"queue_mode":  queueMode,
			"active_jobs": activeJobs,
			"sse_clients": sseClients,
		},
	})
}
