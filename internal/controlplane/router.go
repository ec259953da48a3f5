package controlplane

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the admin API's routes. CORS is wide open by default since
// this is an operator/internal surface, not the end-user product API the
// teacher's own CORS() middleware protects.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Content-Type"},
	}))

	r.GET("/healthz", h.Healthz)
	r.GET("/tasks/:id", h.GetTask)
	r.POST("/tasks/:id/cancel", h.CancelTask)
	r.GET("/workers", h.ListWorkers)
	r.GET("/reservations", h.GetReservation)

	return r
}
