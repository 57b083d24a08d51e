package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string][]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string][]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[f.GetName()] = append(out[f.GetName()], m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				out[f.GetName()] = append(out[f.GetName()], m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				out[f.GetName()] = append(out[f.GetName()], float64(m.GetHistogram().GetSampleCount()))
			}
		}
	}
	return out
}

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.InboundTotal == nil || m.ForwardsTotal == nil || m.AlertsTotal == nil {
		t.Fatal("counter vecs should not be nil")
	}
	if m.ForwardLatency == nil {
		t.Fatal("ForwardLatency should not be nil")
	}
	if m.InFlightForwards == nil || m.DLQSize == nil {
		t.Fatal("gauges should not be nil")
	}
}

func TestRecordForward(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ForwardStarted()
	m.ForwardStarted()
	m.ForwardStarted()
	m.RecordForward("delivered", 0.5)
	m.RecordForward("delivered", 1.2)
	m.RecordForward("exhausted", 18)

	got := gather(t, reg)
	if n := len(got["slackrelay_forwards_total"]); n != 2 {
		t.Fatalf("expected 2 label combinations, got %d", n)
	}
	if v := got["slackrelay_forwards_in_flight"]; len(v) != 1 || v[0] != 0 {
		t.Fatalf("in flight: got %v, want [0]", v)
	}
	if v := got["slackrelay_forward_duration_seconds"]; len(v) != 1 || v[0] != 3 {
		t.Fatalf("latency samples: got %v, want [3]", v)
	}
}

func TestCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordInbound("acked")
	m.RecordInbound("acked")
	m.RecordInbound("unauthorized")
	m.RecordSuppressed()
	m.RecordSend()
	m.RecordSend()
	m.SetDLQSize(42)
	m.RecordAlert("sent")

	got := gather(t, reg)

	tests := []struct {
		name string
		want []float64
	}{
		{"slackrelay_dedup_suppressed_total", []float64{1}},
		{"slackrelay_forward_sends_total", []float64{2}},
		{"slackrelay_dlq_size", []float64{42}},
		{"slackrelay_alerts_total", []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := got[tt.name]
			if len(v) != len(tt.want) || v[0] != tt.want[0] {
				t.Fatalf("got %v, want %v", v, tt.want)
			}
		})
	}

	if n := len(got["slackrelay_inbound_requests_total"]); n != 2 {
		t.Fatalf("inbound: expected 2 label combinations, got %d", n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordInbound("acked")
	m.RecordSuppressed()
	m.RecordSend()
	m.ForwardStarted()
	m.RecordForward("delivered", 1)
	m.SetDLQSize(1)
	m.RecordAlert("sent")
}
