package http

import (
	"io"
	"net/http"
	"time"

	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/app/stats"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/gin-gonic/gin"
)

// statsResponse is the aggregate query result.
type statsResponse struct {
	Rooms      stats.Snapshot `json:"rooms"`
	TotalUsers int            `json:"totalUsers"`
	Timestamp  time.Time      `json:"timestamp"`
}

func newStatsResponse(snap stats.Snapshot) statsResponse {
	return statsResponse{Rooms: snap, TotalUsers: snap.Total(), Timestamp: time.Now().UTC()}
}

func getStats(agg *stats.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, newStatsResponse(agg.Snapshot()))
	}
}

// streamStats pushes the current snapshot and then every refresh as
// server-sent "stats" events.
func streamStats(agg *stats.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := agg.Subscribe()
		defer sub.Unsubscribe()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case snap, ok := <-sub.C:
				if !ok {
					return false
				}
				c.SSEvent("stats", newStatsResponse(snap))
				return true
			}
		})
	}
}

func listRooms(reg *app.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := reg.Enumerate(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
	}
}

// evictRoom closes every connection in a room and disposes it.
func evictRoom(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !o.EvictRoom(domain.RoomID(c.Param("id"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
