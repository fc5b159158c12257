package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mcf/model"
)

const DEVELOPMENT = "development"

// Configuration is read from MCF_* environment variables.
type Configuration struct {
	Env  string `envconfig:"ENV" default:"development"`
	Port int    `envconfig:"PORT" default:"8080"`

	HubspotBaseURL    string `envconfig:"HUBSPOT_BASE_URL" default:"https://api.hubapi.com"`
	HubspotToken      string `envconfig:"HUBSPOT_TOKEN"`
	HubspotMaxRetries int    `envconfig:"HUBSPOT_MAX_RETRIES" default:"3"`

	// values of the tracked source attribute that count as marketing.
	MarketingSources []string `envconfig:"MARKETING_SOURCES" default:"ORGANIC_SEARCH,PAID_SEARCH,PAID_SOCIAL,REFERRALS,EMAIL_MARKETING"`

	ContributionPolicy   string `envconfig:"CONTRIBUTION_POLICY" default:"all_entries"`
	ContributionProperty string `envconfig:"CONTRIBUTION_PROPERTY" default:"mcf_marketing_contribution"`

	DefaultThresholdPct float64 `envconfig:"DEFAULT_THRESHOLD_PCT" default:"1"`
	DefaultLookbackDays int     `envconfig:"DEFAULT_LOOKBACK_DAYS" default:"0"`
	BatchSize           int     `envconfig:"BATCH_SIZE" default:"10"`

	PipelineCacheTTLMinutes int `envconfig:"PIPELINE_CACHE_TTL_MINUTES" default:"60"`
}

var configuration *Configuration = nil

// Init loads configuration from the environment and sets up logging.
func Init() (*Configuration, error) {
	var conf Configuration
	if err := envconfig.Process("mcf", &conf); err != nil {
		return nil, errors.Wrap(err, "failed to process configuration")
	}

	if !model.IsValidContributionPolicy(conf.ContributionPolicy) {
		return nil, errors.Errorf("invalid contribution policy %s", conf.ContributionPolicy)
	}

	for i := range conf.MarketingSources {
		conf.MarketingSources[i] = strings.TrimSpace(conf.MarketingSources[i])
	}

	initLogging(&conf)

	configuration = &conf
	return configuration, nil
}

func Get() *Configuration {
	return configuration
}

func (conf *Configuration) IsDevelopment() bool {
	return conf.Env == DEVELOPMENT
}

func (conf *Configuration) PipelineCacheTTL() time.Duration {
	return time.Duration(conf.PipelineCacheTTLMinutes) * time.Minute
}

func initLogging(conf *Configuration) {
	if conf.IsDevelopment() {
		log.SetLevel(log.DebugLevel)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return
	}

	log.SetLevel(log.InfoLevel)
	log.SetFormatter(&log.JSONFormatter{})
}
