package api

import (
	"github.com/gin-gonic/gin"
)

// Config holds application configuration
type Config struct {
	Port        string
	MaxFileSize int64
	TempDir     string
}

func SetupRoutes(r *gin.Engine, config *Config) {
	apiGroup := r.Group("/api/watermark")
	{
		apiGroup.POST("/upload", func(c *gin.Context) { HandleUpload(c, config) })
		apiGroup.POST("/scan", func(c *gin.Context) { HandleScan(c, config) })
		apiGroup.POST("/remove", func(c *gin.Context) { HandleRemove(c, config) })
	}
}
