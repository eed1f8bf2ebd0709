package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"medorders/internal/handler"
	"medorders/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	log zerolog.Logger,
	allowedOrigins []string,
	orderH *handler.OrderHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	orders := v1.Group("/orders")
	orders.POST("/parse-pdf-preview", orderH.ParsePDFPreview)
	orders.POST("/parse-pdf", orderH.ParsePDF)
	orders.POST("", orderH.Create)
	orders.GET("", orderH.List)
	orders.GET("/export", orderH.Export)
	orders.GET("/:id", orderH.GetByID)

	return r
}
