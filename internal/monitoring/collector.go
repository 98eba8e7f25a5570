package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lifeline/internal/model"
)

// MetricsSnapshot holds a point-in-time view of usage over a lookback window.
type MetricsSnapshot struct {
	model.Stats

	ChargedAnalyses int     `json:"charged_analyses"`
	GuestShare      float64 `json:"guest_share"`
	AvgPointsPerRun float64 `json:"avg_points_per_run"`

	LookbackHours int `json:"lookback_hours"`
}

// StatsSource abstracts the store method the collector needs.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*model.Stats, error)
}

// Collector gathers usage metrics from the store.
type Collector struct {
	store StatsSource
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st StatsSource) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of usage over the given lookback window. A
// non-positive window covers all history.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	var since time.Time
	if lookbackHours > 0 {
		since = c.now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	}

	stats, err := c.store.Stats(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect stats")
	}

	snap := &MetricsSnapshot{
		Stats:           *stats,
		ChargedAnalyses: stats.Analyses - stats.GuestAnalyses,
		LookbackHours:   lookbackHours,
	}
	if snap.ChargedAnalyses < 0 {
		snap.ChargedAnalyses = 0
	}
	if stats.Analyses > 0 {
		snap.GuestShare = float64(stats.GuestAnalyses) / float64(stats.Analyses)
	}
	if snap.ChargedAnalyses > 0 {
		snap.AvgPointsPerRun = float64(stats.PointsCharged) / float64(snap.ChargedAnalyses)
	}
	return snap, nil
}
