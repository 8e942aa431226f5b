package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	before := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("payment.completed", "applied"))
	WebhookEventsTotal.WithLabelValues("payment.completed", "applied").Inc()
	if got := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("payment.completed", "applied")); got != before+1 {
		t.Fatalf("expected counter to increase by one, got %v -> %v", before, got)
	}

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "quackquery_webhook_events_total") {
		t.Fatalf("metrics output missing webhook counter:\n%s", body)
	}
}
