package maintenance

import (
	"sync"
	"time"
)

const maxRecordedRuns = 20

type SweepMetrics struct {
	ID              string        `json:"id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	Status          string        `json:"status"`
	SessionsRemoved int64         `json:"sessions_removed"`
	RecordsPurged   int           `json:"records_purged"`
	Error           string        `json:"error,omitempty"`
}

type Stats struct {
	Runs                 int            `json:"runs"`
	Failures             int            `json:"failures"`
	TotalSessionsRemoved int64          `json:"total_sessions_removed"`
	TotalRecordsPurged   int            `json:"total_records_purged"`
	Recent               []SweepMetrics `json:"recent"`
}

type MetricsCollector struct {
	runs   []*SweepMetrics
	byID   map[string]*SweepMetrics
	totals Stats
	mu     sync.RWMutex
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		byID: make(map[string]*SweepMetrics),
	}
}

func (mc *MetricsCollector) StartSweep(sweepID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := &SweepMetrics{
		ID:        sweepID,
		StartTime: time.Now(),
		Status:    "running",
	}
	mc.runs = append(mc.runs, m)
	mc.byID[sweepID] = m

	if len(mc.runs) > maxRecordedRuns {
		delete(mc.byID, mc.runs[0].ID)
		mc.runs = mc.runs[1:]
	}
}

func (mc *MetricsCollector) EndSweep(sweepID string, sessionsRemoved int64, recordsPurged int, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, exists := mc.byID[sweepID]
	if !exists {
		return
	}

	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.SessionsRemoved = sessionsRemoved
	m.RecordsPurged = recordsPurged
	m.Status = "succeeded"

	mc.totals.Runs++
	mc.totals.TotalSessionsRemoved += sessionsRemoved
	mc.totals.TotalRecordsPurged += recordsPurged
	if err != nil {
		m.Status = "failed"
		m.Error = err.Error()
		mc.totals.Failures++
	}
}

func (mc *MetricsCollector) Get(sweepID string) (SweepMetrics, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m, exists := mc.byID[sweepID]
	if !exists {
		return SweepMetrics{ID: sweepID}, false
	}
	return *m, true
}

// Snapshot returns totals and the most recent runs, newest first.
func (mc *MetricsCollector) Snapshot() Stats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	stats := mc.totals
	stats.Recent = make([]SweepMetrics, 0, len(mc.runs))
	for i := len(mc.runs) - 1; i >= 0; i-- {
		stats.Recent = append(stats.Recent, *mc.runs[i])
	}
	return stats
}
