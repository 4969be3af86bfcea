package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatal("unsupported metric type")
	return 0
}

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/v1/notifications", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/measurements", 201, 50*time.Millisecond)
	RecordRequest("GET", "/v1/notifications", 404, 10*time.Millisecond)
}

func TestRecordAlertEvaluated(t *testing.T) {
	before := value(t, alertsEvaluated.WithLabelValues("sensor_alert", "in_range"))
	RecordAlertEvaluated("sensor_alert", "in_range")
	RecordAlertEvaluated("sensor_alert", "in_range")

	got := value(t, alertsEvaluated.WithLabelValues("sensor_alert", "in_range"))
	if got-before != 2 {
		t.Errorf("expected counter to grow by 2, grew by %v", got-before)
	}
}

func TestRecordDelivery(t *testing.T) {
	before := value(t, notificationsDelivered.WithLabelValues("power_alert", "failed"))
	RecordDelivery("power_alert", "failed")

	got := value(t, notificationsDelivered.WithLabelValues("power_alert", "failed"))
	if got-before != 1 {
		t.Errorf("expected counter to grow by 1, grew by %v", got-before)
	}
}

func TestRecordDispatchDuration(t *testing.T) {
	RecordDispatchDuration("sensor_alert", 250*time.Millisecond)
	RecordDispatchDuration("power_alert", 2*time.Second)
}

func TestRecordPushError(t *testing.T) {
	RecordPushError("messaging/unavailable")
	RecordPushError("messaging/registration-token-not-registered")
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("push", 1)
	if got := value(t, breakerState.WithLabelValues("push")); got != 1 {
		t.Errorf("expected gauge 1, got %v", got)
	}
	SetBreakerState("push", 0)
	if got := value(t, breakerState.WithLabelValues("push")); got != 0 {
		t.Errorf("expected gauge 0, got %v", got)
	}
}

func TestRecordIdempotencyHit(t *testing.T) {
	RecordIdempotencyHit()
	RecordIdempotencyHit()
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("user")
	RecordRateLimitRejection("ingest")
}

func TestSetConnections(t *testing.T) {
	SetDBConnections(10)
	SetRedisConnections(5)
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Fatal("Handler should not return nil")
	}

	RecordAlertEvaluated("sensor_alert", "dispatched")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "aquamon_alerts_evaluated_total") {
		t.Error("expected alert counter in metrics output")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/v1/measurements", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Patch("/v1/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := value(t, httpRequestsTotal.WithLabelValues("PATCH", "/v1/notifications/{id}/read", "200"))

	req := httptest.NewRequest("PATCH", "/v1/notifications/42/read", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := value(t, httpRequestsTotal.WithLabelValues("PATCH", "/v1/notifications/{id}/read", "200"))
	if got-before != 1 {
		t.Errorf("expected request recorded under route pattern, delta %v", got-before)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("test"))

	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
