package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
	m.RecordMutation("salaries", "create")
	m.BrokerRefresh(errors.New("x"), time.Second)
	m.CacheLookup(true)
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordMutation("salaries", "create")
	m.RecordMutation("salaries", "create")
	m.BrokerRefresh(nil, time.Second)
	m.BrokerRefresh(errors.New("timeout"), time.Second)
	m.EventPublished("record.changed", nil)

	if got := testutil.ToFloat64(m.recordMutations.WithLabelValues("salaries", "create")); got != 2 {
		t.Fatalf("record mutations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.brokerRefreshes.WithLabelValues("error")); got != 1 {
		t.Fatalf("broker refresh errors = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gagyebu_amqp_events_published_total") {
		t.Fatal("expected events counter in exposition output")
	}
}
