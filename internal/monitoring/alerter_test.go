package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lifeline/internal/config"
	"github.com/sells-group/lifeline/internal/model"
)

func snapshot(guest, charged, points int) *MetricsSnapshot {
	return &MetricsSnapshot{
		Stats:           model.Stats{Analyses: guest + charged, GuestAnalyses: guest, PointsCharged: points},
		ChargedAnalyses: charged,
		LookbackHours:   24,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{GuestRunThreshold: 100, PointsThreshold: 10000})
	assert.Empty(t, a.Evaluate(snapshot(10, 10, 500)))
}

func TestAlerter_Evaluate_GuestSurge(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{GuestRunThreshold: 5})

	alerts := a.Evaluate(snapshot(6, 0, 0))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertGuestSurge, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "6 guest analyses")
	assert.Equal(t, 6, alerts[0].Details["guest_analyses"])
}

func TestAlerter_Evaluate_PointsBurn(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{PointsThreshold: 100})

	alerts := a.Evaluate(snapshot(0, 3, 150))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPointsBurn, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{GuestRunThreshold: 1, PointsThreshold: 1})
	assert.Len(t, a.Evaluate(snapshot(2, 2, 100)), 2)
}

func TestAlerter_Evaluate_ZeroThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Empty(t, a.Evaluate(snapshot(1000, 1000, 50000)))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	alerts := []Alert{
		{Type: AlertGuestSurge, Severity: "medium", Message: "test alert 1"},
		{Type: AlertPointsBurn, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertGuestSurge, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertPointsBurn, Message: "test"}})
	assert.Equal(t, 0, sent)
}
