package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	C "mcf/config"
	"mcf/handler"
	IntHubspot "mcf/integration/hubspot"
	"mcf/task/mcf"
)

func main() {
	conf, err := C.Init()
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize configuration.")
	}

	if !conf.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	client := IntHubspot.NewClient(conf.HubspotBaseURL, conf.HubspotToken,
		conf.HubspotMaxRetries)
	pipelineCache := IntHubspot.NewPipelineCache(conf.PipelineCacheTTL())

	runner := mcf.NewRunner(client, pipelineCache, mcf.RunnerConfig{
		BatchSize:            conf.BatchSize,
		ContributionPolicy:   conf.ContributionPolicy,
		ContributionProperty: conf.ContributionProperty,
	})

	r := gin.Default()
	handler.InitRoutes(r, runner)

	log.WithField("port", conf.Port).Info("Starting mcf server.")
	if err := r.Run(fmt.Sprintf(":%d", conf.Port)); err != nil {
		log.WithError(err).Fatal("Failed to start mcf server.")
	}
}
