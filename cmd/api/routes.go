package main

import (
	"net/http"

	"voice-orchestrator/internal/httpapi"
	"voice-orchestrator/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	signature gin.HandlerFunc
	authMW    gin.HandlerFunc
	metrics   http.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, d routeDeps) {
	// public
	h.RegisterHealth(r)
	r.GET("/metrics", gin.WrapH(d.metrics))

	// Provider webhooks. Signed routes answer 403 before any state is touched.
	h.RegisterVoice(r, d.signature)

	// Operator API. Recordings and call history are open to the front desk and clinical staff;
	// softphone tokens only to operators, since the token answers the desk's calls.
	h.RegisterOperator(r, d.authMW,
		rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleClinical),
		rbac.RequireAnyRole(rbac.RoleOperator),
	)
}
