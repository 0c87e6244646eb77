package route

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_devwatch/internal/app"
)

func SetupRoutes(r *gin.Engine, appCtx *app.App) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})

	publicRouter := r.Group("")

	NewDeviceRouter(appCtx.Config.Server.RequestTimeout, publicRouter, appCtx.Devices)
}
