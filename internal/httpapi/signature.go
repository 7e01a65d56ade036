package httpapi

import (
	"net/http"

	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireSignature rejects callbacks whose provider signature does not match.
// It must run before any handler that mutates state.
func RequireSignature(v *telephony.Verifier, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// An unparseable body cannot be verified, so it is rejected like a bad signature.
		if err := c.Request.ParseForm(); err != nil {
			logger.FromGin(c).Warn("webhook form unreadable", "uri", c.Request.RequestURI, "err", err)
			m.Webhook(endpoint(c), metrics.OutcomeRejected)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		sig := c.GetHeader(telephony.HeaderSignature)
		if !v.Verify(c.Request.RequestURI, c.Request.PostForm, sig) {
			logger.FromGin(c).Warn("webhook signature rejected", "uri", c.Request.RequestURI, "has_signature", sig != "")
			m.Webhook(endpoint(c), metrics.OutcomeRejected)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
