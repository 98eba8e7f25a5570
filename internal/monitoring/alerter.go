package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertGuestSurge AlertType = "guest_surge"
	AlertPointsBurn AlertType = "points_burn"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Guest runs use server credentials and are never billed.
	if a.cfg.GuestRunThreshold > 0 && snap.GuestAnalyses > a.cfg.GuestRunThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertGuestSurge,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d guest analyses in last %dh exceeds threshold %d",
				snap.GuestAnalyses, snap.LookbackHours, a.cfg.GuestRunThreshold,
			),
			Details: map[string]any{
				"guest_analyses": snap.GuestAnalyses,
				"threshold":      a.cfg.GuestRunThreshold,
				"guest_share":    snap.GuestShare,
			},
			Timestamp: now,
		})
	}

	if a.cfg.PointsThreshold > 0 && snap.PointsCharged > a.cfg.PointsThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertPointsBurn,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d points charged in last %dh exceeds threshold %d",
				snap.PointsCharged, snap.LookbackHours, a.cfg.PointsThreshold,
			),
			Details: map[string]any{
				"points_charged":   snap.PointsCharged,
				"threshold":        a.cfg.PointsThreshold,
				"charged_analyses": snap.ChargedAnalyses,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
