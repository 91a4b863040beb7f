package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestTimer_DurationGrowsMonotonically(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Fatal("NewTimer() did not record a start time")
	}

	first := timer.Duration()
	time.Sleep(20 * time.Millisecond)
	second := timer.Duration()

	if second <= first {
		t.Errorf("Duration() should grow with elapsed time: first=%v second=%v", first, second)
	}
	if first < 0 {
		t.Errorf("Duration() = %v, want >= 0 immediately after NewTimer", first)
	}
}

func TestTimer_ObserveDurationVecRecordsASample(t *testing.T) {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relayd_test_request_duration_seconds",
		Help:    "scratch histogram for ObserveDurationVec",
		Buckets: prometheus.DefBuckets,
	}, []string{"slot"})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDurationVec(hist, "0")

	if got := testutil.CollectAndCount(hist); got != 1 {
		t.Errorf("CollectAndCount = %d, want 1 sample after a single ObserveDurationVec call", got)
	}
}

func TestTimer_ObserveDurationRecordsASample(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relayd_test_reload_duration_seconds",
		Help:    "scratch histogram for ObserveDuration",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDuration(hist)

	var m dto.Metric
	if err := hist.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("SampleCount = %d, want 1 sample after a single ObserveDuration call", got)
	}
}

func TestTimer_IndependentTimersDoNotShareState(t *testing.T) {
	early := NewTimer()
	time.Sleep(15 * time.Millisecond)
	late := NewTimer()
	time.Sleep(15 * time.Millisecond)

	if early.Duration() <= late.Duration() {
		t.Error("a timer created earlier should report a longer duration than one created later")
	}
}
