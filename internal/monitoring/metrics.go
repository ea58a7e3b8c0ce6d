// Package monitoring keeps cumulative run metrics in a JSON file next to
// the tracker, so operators can see trend data without the database.
package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/orchestrator"
)

type Metrics struct {
	TrackingRuns        int            `json:"tracking_runs"`
	IdentitiesAttempted int            `json:"identities_attempted"`
	IdentitiesSucceeded int            `json:"identities_succeeded"`
	IdentitiesFailed    int            `json:"identities_failed"`
	TotalPosts          int            `json:"total_posts"`
	NewPosts            int            `json:"new_posts"`
	UpdatedPosts        int            `json:"updated_posts"`
	LastRun             time.Time      `json:"last_run"`
	LastRunAlert        bool           `json:"last_run_alert"`
	AverageRunTime      time.Duration  `json:"average_run_time"`
	FailureRate         float64        `json:"failure_rate"`
	FailuresByKind      map[string]int `json:"failures_by_kind"`
}

type Monitor struct {
	metrics     *Metrics
	logger      *logrus.Logger
	metricsFile string
}

func NewMonitor(logger *logrus.Logger, metricsFile string) *Monitor {
	monitor := &Monitor{
		metrics: &Metrics{
			FailuresByKind: make(map[string]int),
		},
		logger:      logger,
		metricsFile: metricsFile,
	}

	monitor.loadMetrics()
	return monitor
}

// RecordRun folds one run summary into the cumulative metrics and saves.
func (m *Monitor) RecordRun(summary orchestrator.Summary) {
	m.metrics.TrackingRuns++
	m.metrics.IdentitiesAttempted += summary.Attempted
	m.metrics.IdentitiesSucceeded += summary.Succeeded
	m.metrics.IdentitiesFailed += summary.Failed
	m.metrics.TotalPosts += summary.TotalPosts
	m.metrics.NewPosts += summary.NewPosts
	m.metrics.UpdatedPosts += summary.UpdatedPosts
	m.metrics.LastRun = time.Now()
	m.metrics.LastRunAlert = summary.Alert

	if m.metrics.TrackingRuns > 1 {
		m.metrics.AverageRunTime = (m.metrics.AverageRunTime + summary.Duration) / 2
	} else {
		m.metrics.AverageRunTime = summary.Duration
	}

	if m.metrics.IdentitiesAttempted > 0 {
		m.metrics.FailureRate = float64(m.metrics.IdentitiesFailed) /
			float64(m.metrics.IdentitiesAttempted) * 100
	}

	for _, failure := range summary.Failures {
		m.metrics.FailuresByKind[string(failure.Kind)]++
	}

	m.saveMetrics()

	m.logger.Infof("Recorded tracking run: %d/%d identities succeeded, %d posts, %v duration",
		summary.Succeeded, summary.Attempted, summary.TotalPosts, summary.Duration)
}

func (m *Monitor) GetMetrics() *Metrics {
	return m.metrics
}

func (m *Monitor) GetHealthStatus() map[string]interface{} {
	status := map[string]interface{}{
		"status":          "healthy",
		"last_run":        m.metrics.LastRun.Format(time.RFC3339),
		"total_runs":      m.metrics.TrackingRuns,
		"failure_rate":    fmt.Sprintf("%.2f%%", m.metrics.FailureRate),
		"average_runtime": m.metrics.AverageRunTime.String(),
	}

	if time.Since(m.metrics.LastRun) > 24*time.Hour {
		status["status"] = "warning"
		status["warning"] = "No tracking runs in the last 24 hours"
	}

	if m.metrics.LastRunAlert {
		status["status"] = "warning"
		status["warning"] = "More than half of identities failed in the last run"
	}

	return status
}

func (m *Monitor) loadMetrics() {
	if _, err := os.Stat(m.metricsFile); os.IsNotExist(err) {
		m.logger.Info("No existing metrics file found, starting fresh")
		return
	}

	data, err := os.ReadFile(m.metricsFile)
	if err != nil {
		m.logger.Warnf("Failed to read metrics file: %v", err)
		return
	}

	if err := json.Unmarshal(data, m.metrics); err != nil {
		m.logger.Warnf("Failed to parse metrics file: %v", err)
		return
	}

	m.logger.Info("Loaded existing metrics from file")
}

func (m *Monitor) saveMetrics() {
	data, err := json.MarshalIndent(m.metrics, "", "  ")
	if err != nil {
		m.logger.Errorf("Failed to marshal metrics: %v", err)
		return
	}

	if err := os.WriteFile(m.metricsFile, data, 0644); err != nil {
		m.logger.Errorf("Failed to save metrics: %v", err)
	}
}
