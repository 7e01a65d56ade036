package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readyTimeout = 2 * time.Second

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings every dependency and reports the failing ones.
func (h Handlers) Readyz(c *gin.Context) {
	failed := gin.H{}
	for _, chk := range h.Ready {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		err := chk.Ping(ctx)
		cancel()
		if err != nil {
			failed[chk.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
