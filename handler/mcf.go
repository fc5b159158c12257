package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/now"
	log "github.com/sirupsen/logrus"

	C "mcf/config"
	"mcf/model"
	"mcf/task/mcf"
)

const headerTenantID = "X-Tenant-Id"

func getTenantID(c *gin.Context) string {
	tenant := c.GetHeader(headerTenantID)
	if tenant == "" {
		tenant = c.Query("tenant")
	}
	return tenant
}

// parseDate accepts a date like 2023-01-02 and returns epoch ms of
// the beginning or end of that day.
func parseDate(value string, endOfDay bool) (int64, error) {
	parsed, err := now.Parse(value)
	if err != nil {
		return 0, err
	}

	bounded := now.New(parsed).BeginningOfDay()
	if endOfDay {
		bounded = now.New(parsed).EndOfDay()
	}
	return bounded.UnixNano() / int64(time.Millisecond), nil
}

type mcfAnalyzeRequest struct {
	ConversionType string  `json:"conversion_type"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	ThresholdPct   float64 `json:"threshold_pct"`
	LookbackDays   int     `json:"lookback_days"`
}

// MCFAnalyzeHandler triggers a funnel analysis run for the tenant.
// A request while a run is in flight observes that run's status.
func MCFAnalyzeHandler(runner *mcf.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := getTenantID(c)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid tenant."})
			return
		}

		logCtx := log.WithField("tenant", tenant)

		var payload mcfAnalyzeRequest
		if err := c.BindJSON(&payload); err != nil {
			logCtx.WithError(err).Error("Failed to decode mcf analyze request.")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Json decode failed."})
			return
		}

		if !model.IsValidConversionType(payload.ConversionType) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid conversion type."})
			return
		}

		startDate, err := parseDate(payload.StartDate, false)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid start date."})
			return
		}
		endDate, err := parseDate(payload.EndDate, true)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid end date."})
			return
		}

		thresholdPct := payload.ThresholdPct
		if thresholdPct <= 0 {
			thresholdPct = C.Get().DefaultThresholdPct
		}
		lookbackDays := payload.LookbackDays
		if lookbackDays <= 0 {
			lookbackDays = C.Get().DefaultLookbackDays
		}

		snapshot, started := runner.TriggerMCFRun(tenant, mcf.MCFQuery{
			ConversionType: payload.ConversionType,
			StartDate:      startDate,
			EndDate:        endDate,
			ThresholdPct:   thresholdPct,
			LookbackDays:   lookbackDays,
		})

		status := http.StatusAccepted
		if !started {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"status": snapshot, "started": started})
	}
}

// MCFReportHandler returns the latest completed report for the
// tenant and conversion type.
func MCFReportHandler(runner *mcf.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := getTenantID(c)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid tenant."})
			return
		}

		conversionType := c.Query("conversion_type")
		if !model.IsValidConversionType(conversionType) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid conversion type."})
			return
		}

		report, exists := runner.GetReport(tenant, conversionType)
		if !exists {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No completed report."})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

type contributionRunRequest struct {
	MarketingSources []string `json:"marketing_sources"`
	Policy           string   `json:"policy"`
}

// ContributionRunHandler triggers a contribution batch for the tenant.
func ContributionRunHandler(runner *mcf.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := getTenantID(c)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid tenant."})
			return
		}

		var payload contributionRunRequest
		if err := c.BindJSON(&payload); err != nil {
			log.WithField("tenant", tenant).WithError(err).Error(
				"Failed to decode contribution run request.")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Json decode failed."})
			return
		}

		sources := payload.MarketingSources
		if len(sources) == 0 {
			sources = C.Get().MarketingSources
		}

		snapshot, started := runner.TriggerContributionRun(tenant, sources, payload.Policy)

		status := http.StatusAccepted
		if !started {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"status": snapshot, "started": started})
	}
}

// JobStatusHandler returns the progress snapshot for one job slot.
func JobStatusHandler(runner *mcf.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := getTenantID(c)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid tenant."})
			return
		}

		kind := c.Query("kind")
		variant := ""
		if kind == mcf.JobKindMCF {
			variant = c.Query("conversion_type")
		} else if kind != mcf.JobKindContribution {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid job kind."})
			return
		}

		snapshot, _ := runner.GetStatus(tenant, kind, variant)
		c.JSON(http.StatusOK, snapshot)
	}
}
