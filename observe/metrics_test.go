package observe

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value of the data point whose attribute key has
// the given value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestQueuedAndDropped(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordQueued(ctx, "frame", 5)
	m.RecordQueued(ctx, "frame", 3)
	m.RecordQueued(ctx, "quantum", 1)
	m.RecordDropped(ctx, "frame", 2)
	m.RecordDropped(ctx, "quantum", 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "chroma.frames.queued", "unit", "frame"); got != 8 {
		t.Errorf("queued frames = %d, want 8", got)
	}
	if got := sumFor(t, rm, "chroma.frames.queued", "unit", "quantum"); got != 1 {
		t.Errorf("queued quanta = %d, want 1", got)
	}
	if got := sumFor(t, rm, "chroma.frames.dropped", "unit", "frame"); got != 2 {
		t.Errorf("dropped frames = %d, want 2", got)
	}
	if got := sumFor(t, rm, "chroma.frames.dropped", "unit", "quantum"); got != 0 {
		t.Errorf("dropped quanta = %d, want 0", got)
	}
}

func TestInferenceRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInference(ctx, "precise", 3*time.Millisecond, nil)
	m.RecordInference(ctx, "precise", 4*time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)

	met := findMetric(rm, "chroma.inference.duration")
	if met == nil {
		t.Fatal("inference histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("inference duration is not a histogram")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("expected one data point with 2 samples, got %+v", hist.DataPoints)
	}

	if got := sumFor(t, rm, "chroma.inference.errors", "model", "precise"); got != 1 {
		t.Errorf("inference errors = %d, want 1", got)
	}
}

func TestDetectionsAndModeSwitches(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDetection(ctx, "spectral", "A")
	m.RecordDetection(ctx, "spectral", "A")
	m.RecordDetection(ctx, "precise", "C")
	m.RecordModeSwitch(ctx, "precise")
	m.RecordModelLoad(ctx, "precise", time.Second, nil)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "chroma.detections", "chroma", "A"); got != 2 {
		t.Errorf("A detections = %d, want 2", got)
	}
	if got := sumFor(t, rm, "chroma.mode.switches", "mode", "precise"); got != 1 {
		t.Errorf("mode switches = %d, want 1", got)
	}
	if findMetric(rm, "chroma.model.load.duration") == nil {
		t.Error("model load histogram not found")
	}
}

func TestProviderServesPrometheus(t *testing.T) {
	ctx := context.Background()
	p, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordQueued(ctx, "frame", 7)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "queued") {
		t.Errorf("expected queued counter in exposition, got:\n%s", body)
	}
}
