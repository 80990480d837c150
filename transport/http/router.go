package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portalis-labs/keygate/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(svc *service.Service) *gin.Engine {
	router := gin.Default()

	handlers := NewPasskeyHandlers(svc)

	// Ceremony routes
	auth := router.Group("/auth")
	{
		auth.POST("/register/begin", handlers.BeginRegistration)
		auth.POST("/register/finish", handlers.FinishRegistration)
		auth.POST("/login/begin", handlers.BeginAuthentication)
		auth.POST("/login/finish", handlers.FinishAuthentication)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(svc))
	{
		api.GET("/me", handlers.Me)
	}

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
