package gateway

import "testing"

func TestLatencyEstimator_NearestRank(t *testing.T) {
	t.Parallel()

	estimator := NewLatencyEstimator(1000)
	for ms := 10; ms <= 1000; ms += 10 {
		estimator.Observe(float64(ms))
	}

	quantiles := estimator.Quantiles()
	if quantiles.P50 != 500 || quantiles.P90 != 900 || quantiles.P95 != 950 || quantiles.P99 != 990 {
		t.Fatalf("unexpected quantiles: %#v", quantiles)
	}
}

func TestLatencyEstimator_PercentilesAreOrdered(t *testing.T) {
	t.Parallel()

	estimator := NewLatencyEstimator(256)
	values := []float64{42, 7, 999, 3, 18, 250, 75, 1, 640, 88, 12, 430}
	for _, v := range values {
		estimator.Observe(v)
	}

	q := estimator.Quantiles()
	if q.P50 > q.P90 || q.P90 > q.P95 || q.P95 > q.P99 {
		t.Fatalf("percentile ordering violated: %#v", q)
	}
}

func TestLatencyEstimator_WindowKeepsMostRecent(t *testing.T) {
	t.Parallel()

	estimator := NewLatencyEstimator(4)
	for v := 1; v <= 8; v++ {
		estimator.Observe(float64(v))
	}

	if got := estimator.Count(); got != 4 {
		t.Fatalf("expected window of 4, got %d", got)
	}
	// Window holds 5..8; the median of four is the second value.
	if got := estimator.Percentile(0.5); got != 6 {
		t.Fatalf("unexpected p50 over wrapped window: %v", got)
	}
	if got := estimator.Percentile(0.99); got != 8 {
		t.Fatalf("unexpected p99 over wrapped window: %v", got)
	}
}

func TestLatencyEstimator_EmptyAndInvalidObservations(t *testing.T) {
	t.Parallel()

	estimator := NewLatencyEstimator(16)
	if got := estimator.Percentile(0.99); got != 0 {
		t.Fatalf("expected zero for empty window, got %v", got)
	}
	estimator.Observe(-5)
	if got := estimator.Count(); got != 0 {
		t.Fatalf("expected negative observation to be dropped")
	}
}

func TestLatencyEstimator_PartialWindowUsesObservedCount(t *testing.T) {
	t.Parallel()

	estimator := NewLatencyEstimator(1000)
	for _, v := range []float64{100, 200, 300} {
		estimator.Observe(v)
	}
	// Nearest rank over m=3: ceil(0.5*3)-1 = 1.
	if got := estimator.Percentile(0.5); got != 200 {
		t.Fatalf("unexpected p50 over partial window: %v", got)
	}
	if got := estimator.Percentile(0.99); got != 300 {
		t.Fatalf("unexpected p99 over partial window: %v", got)
	}
}
