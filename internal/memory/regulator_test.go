package memory

import (
	"testing"
)

type recordingSubscriber struct {
	calls []Pressure
}

func (r *recordingSubscriber) Cleanup(p Pressure) { r.calls = append(r.calls, p) }

func TestPressureCascade(t *testing.T) {
	t.Parallel()

	r := New(100)
	sub := &recordingSubscriber{}
	r.Subscribe(sub)

	readings := []float64{25, 50, 80, 110}
	want := []Pressure{LOW, MEDIUM, HIGH, CRITICAL}

	for i, mb := range readings {
		if got := r.ObserveForTest(mb); got != want[i] {
			t.Errorf("reading %v MB: pressure = %v, want %v", mb, got, want[i])
		}
	}

	// The initial tier is LOW, so the first reading does not broadcast.
	wantCalls := []Pressure{MEDIUM, HIGH, CRITICAL}
	if len(sub.calls) != len(wantCalls) {
		t.Fatalf("cleanup calls = %v, want %v", sub.calls, wantCalls)
	}
	for i, p := range wantCalls {
		if sub.calls[i] != p {
			t.Errorf("cleanup call %d = %v, want %v", i, sub.calls[i], p)
		}
	}
}

func TestPoolSizesDescend(t *testing.T) {
	t.Parallel()

	order := []Pressure{LOW, MEDIUM, HIGH, CRITICAL}
	for i := 1; i < len(order); i++ {
		prev, cur := PoolSizesFor(order[i-1]), PoolSizesFor(order[i])
		if cur.Chunk >= prev.Chunk || cur.ToolCall >= prev.ToolCall || cur.LineBuffer >= prev.LineBuffer {
			t.Errorf("pool sizes must strictly descend from %v (%+v) to %v (%+v)", order[i-1], prev, order[i], cur)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		heapMB float64
		want   Pressure
	}{
		{0, LOW},
		{29.9, LOW},
		{30, MEDIUM},
		{59.9, MEDIUM},
		{60, HIGH},
		{100, HIGH},
		{100.1, CRITICAL},
	}
	for _, tc := range tests {
		if got := classify(tc.heapMB, 100); got != tc.want {
			t.Errorf("classify(%v, 100) = %v, want %v", tc.heapMB, got, tc.want)
		}
	}
}

func TestSnapshotTracksPeak(t *testing.T) {
	t.Parallel()

	r := New(100)
	r.ObserveForTest(80)
	r.ObserveForTest(40)

	report := r.Snapshot()
	if report.PeakHeapMB < 80 {
		t.Errorf("peak = %v, want >= 80", report.PeakHeapMB)
	}
	if report.Thresholds.LowMB != 30 || report.Thresholds.MediumMB != 60 || report.Thresholds.HighMB != 100 {
		t.Errorf("thresholds = %+v, want 30/60/100", report.Thresholds)
	}
	if report.CleanupCount == 0 {
		t.Error("cleanup count should reflect the tier changes above")
	}
}
