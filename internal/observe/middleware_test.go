package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// newAPIRouter mirrors the service's route shape: fixed API paths plus the
// generated-audio prefix route.
func newAPIRouter(generate http.HandlerFunc) *mux.Router {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	if generate == nil {
		generate = ok
	}
	r := mux.NewRouter()
	r.HandleFunc("/voices", ok).Methods(http.MethodGet)
	r.HandleFunc("/generate", generate).Methods(http.MethodPost)
	r.PathPrefix("/output/").HandlerFunc(ok).Methods(http.MethodGet)
	return r
}

// wrap applies the middleware around the router the way the server does.
func wrap(m *Metrics, r *mux.Router) http.Handler {
	return Middleware(m, r)(r)
}

// durationAttrs collects the attribute set of the single HTTP duration data
// point recorded so far.
func durationAttrs(t *testing.T, reader *sdkmetric.ManualReader) map[string]string {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voxmimic.http.request.duration")
	if met == nil {
		t.Fatal("voxmimic.http.request.duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	attrs := make(map[string]string)
	for _, kv := range hist.DataPoints[0].Attributes.ToSlice() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	return attrs
}

func TestMiddlewareSetsCorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	var capturedCID string
	handler := wrap(m, newAPIRouter(func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if capturedCID == "" {
		t.Error("middleware did not set correlation ID in context")
	}
	if len(capturedCID) != 32 {
		t.Errorf("correlation ID length = %d, want 32", len(capturedCID))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != capturedCID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, capturedCID)
	}
}

func TestMiddlewareSpanNamedAfterRouteTemplate(t *testing.T) {
	m, _, exp := testSetup(t)
	handler := wrap(m, newAPIRouter(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/abc123.wav", nil))

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("middleware did not create a span")
	}
	// The span carries the route template, not the individual file path.
	if spans[0].Name != "HTTP GET /output/" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /output/")
	}
	var route string
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.route" {
			route = a.Value.AsString()
		}
	}
	if route != "/output/" {
		t.Errorf("http.route attribute = %q, want %q", route, "/output/")
	}
}

func TestMiddlewareRecordsDurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := wrap(m, newAPIRouter(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	attrs := durationAttrs(t, reader)
	if attrs["method"] != http.MethodPost {
		t.Errorf("method attribute = %q, want POST", attrs["method"])
	}
	if attrs["route"] != "/generate" {
		t.Errorf("route attribute = %q, want /generate", attrs["route"])
	}
	if attrs["status"] != "200" {
		t.Errorf("status attribute = %q, want 200", attrs["status"])
	}
}

func TestMiddlewareUnmatchedRouteSharesOneLabel(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := wrap(m, newAPIRouter(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no/such/endpoint", nil))

	attrs := durationAttrs(t, reader)
	// Arbitrary scan paths must not become metric labels.
	if attrs["route"] != "unmatched" {
		t.Errorf("route attribute = %q, want unmatched", attrs["route"])
	}
	if attrs["status"] != "404" {
		t.Errorf("status attribute = %q, want 404", attrs["status"])
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	m, reader, exp := testSetup(t)
	handler := wrap(m, newAPIRouter(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}

	if attrs := durationAttrs(t, reader); attrs["status"] != "404" {
		t.Errorf("status attribute = %q, want 404", attrs["status"])
	}
}

func TestMiddlewarePropagatesW3CTraceContext(t *testing.T) {
	m, _, _ := testSetup(t)

	var capturedCID string
	handler := wrap(m, newAPIRouter(func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The incoming trace ID is the correlation ID end to end.
	if capturedCID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("correlation ID = %q, want %q", capturedCID, "4bf92f3577b34da6a3ce929d0e0e4736")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, "4bf92f3577b34da6a3ce929d0e0e4736")
	}
}
