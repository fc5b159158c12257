package handler

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mcf/task/mcf"
)

// InitRoutes wires the analysis endpoints on the gin engine.
func InitRoutes(r *gin.Engine, runner *mcf.Runner) {
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/mcf/analyze", MCFAnalyzeHandler(runner))
	r.GET("/mcf/report", MCFReportHandler(runner))
	r.POST("/contribution/run", ContributionRunHandler(runner))
	r.GET("/status", JobStatusHandler(runner))
}
