package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_devwatch/internal/api/controller"
	"github.com/bassista/go_devwatch/internal/api/middleware"
)

func NewDeviceRouter(timeout time.Duration, group *gin.RouterGroup, devices controller.DeviceLookup) {
	group.Use(middleware.RequestTimeout(timeout))

	dc := controller.NewDeviceController(devices)

	group.GET("devices", dc.List)
	group.GET("devices/:name/snapshot", dc.Snapshot)
	group.GET("devices/:name/entities", dc.Entities)
	group.POST("devices/:name/refresh", dc.Refresh)
}
