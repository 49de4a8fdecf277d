package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/docsense/backend/internal/database"
	"github.com/sirupsen/logrus"
)

// Checker runs health checks for the engine's backing services
type Checker struct {
	dbManager    *database.Manager
	logger       *logrus.Logger
	retrievalURL string
	started      time.Time
}

func NewChecker(dbManager *database.Manager, logger *logrus.Logger, retrievalURL string) *Checker {
	return &Checker{
		dbManager:    dbManager,
		logger:       logger,
		retrievalURL: retrievalURL,
		started:      time.Now(),
	}
}

// ServiceHealth represents the health status of one service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckPostgreSQL checks ledger database health
func (h *Checker) CheckPostgreSQL() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingDatabase()
	return h.report("postgresql", err, start)
}

// CheckRedis checks cache health
func (h *Checker) CheckRedis() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingRedis()
	return h.report("redis", err, start)
}

// CheckRetrieval probes the retrieval backend API
func (h *Checker) CheckRetrieval() ServiceHealth {
	start := time.Now()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(h.retrievalURL + "/health")
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			err = fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}

	return h.report("retrieval", err, start)
}

func (h *Checker) report(name string, err error, start time.Time) ServiceHealth {
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", name).Error("Health check failed")
	}

	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *Checker) CheckAll() OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(),
		h.CheckRedis(),
		h.CheckRetrieval(),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}
}

func (h *Checker) getUptime() string {
	return time.Since(h.started).String()
}

// RunPeriodicChecks probes all services on the given interval until the
// context is cancelled, logging state transitions for operators
func (h *Checker) RunPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			overall := h.CheckAll()
			if overall.Status != lastStatus {
				h.logger.WithField("status", overall.Status).Info("Health status changed")
				lastStatus = overall.Status
			}
		}
	}
}
