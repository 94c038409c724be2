package router

import (
	"net/http"

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/handler"
	"github.com/blues/cfs-escrow/internal/logic"
	"github.com/blues/cfs-escrow/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup builds the HTTP engine.
func Setup(projectLogic *logic.ProjectLogic, gatherer prometheus.Gatherer, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "crowdfunding-escrow",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	projectHandler := handler.NewProjectHandler(projectLogic)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/project", projectHandler.GetProject)
		v1.GET("/contributions/:address", projectHandler.GetContribution)

		auth := middleware.AuthMiddleware(cfg.Auth)
		v1.POST("/project", auth, projectHandler.CreateProject)
		v1.POST("/execute", auth, projectHandler.Execute)
		v1.POST("/deposits", auth, projectHandler.Deposit)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
