package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitter-badger/urfiles/internal/middleware"
)

// IconsPath is the prefix of every icon resource.
const IconsPath = "/media/icons"

// NewRouter builds the engine with the middleware stack and all routes.
func NewRouter(icons *IconHandler) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging())
	router.Use(gin.CustomRecovery(middleware.HandlePanics()))

	NewApi(router, icons)
	return router
}

func NewApi(router *gin.Engine, icons *IconHandler) {
	router.GET("/healthz", Health)
	router.GET("/openapi.yaml", OpenAPI)

	media := router.Group(IconsPath)
	{
		media.GET("/:service", icons.List)
		media.GET("/:service/:name", icons.Download)
		media.GET("/:service/:name/meta", icons.Describe)
		media.POST("/:service/:name", icons.Upload)
		media.PUT("/:service/:name", icons.Overwrite)
		media.DELETE("/:service/:name", icons.Delete)
	}
}

func Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
