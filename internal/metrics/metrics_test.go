package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestProjectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProjector(reg)

	p.ObserveEvent("allocator_mint", "applied", time.Millisecond)
	p.ObserveEvent("allocator_mint", "applied", time.Millisecond)
	p.ObserveEvent("allocator_mint", "duplicate", time.Millisecond)
	p.ObserveCondition("entity_not_found", "warning")
	p.SetViolations(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				key := mf.GetName()
				for _, lp := range m.GetLabel() {
					key += "|" + lp.GetValue()
				}
				got[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				got[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	if got["projector_events_total|allocator_mint|applied"] != 2 {
		t.Fatalf("applied count mismatch: %v", got)
	}
	if got["projector_events_total|allocator_mint|duplicate"] != 1 {
		t.Fatalf("duplicate count mismatch: %v", got)
	}
	if got["projector_conditions_total|entity_not_found|warning"] != 1 {
		t.Fatalf("condition count mismatch: %v", got)
	}
	if got["projector_invariant_violations"] != 3 {
		t.Fatalf("violations gauge mismatch: %v", got)
	}
}

func TestNilProjectorIsNoop(t *testing.T) {
	var p *Projector
	p.ObserveEvent("x", "applied", time.Second)
	p.ObserveCondition("x", "error")
	p.ObserveBatch()
	p.SetViolations(1)
}

func TestServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewProjector(reg).ObserveBatch()
	srv := NewServer("127.0.0.1:0", reg, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "projector_batches_total 1") {
		t.Fatalf("metrics response mismatch: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"UP"`) {
		t.Fatalf("healthz mismatch: %d %s", rec.Code, rec.Body.String())
	}
}
