package event

import "testing"

func TestCombineOccurrence(t *testing.T) {
	cases := []struct {
		x, y, want Occurrence
	}{
		{NoOccurrence, Always, Always},
		{Always, NoOccurrence, Always},
		{Always, Always, Always},
		{Never, Always, Sometimes},
		{Sometimes, Never, Sometimes},
	}
	for _, c := range cases {
		if got := Combine(c.x, c.y); got != c.want {
			t.Fatalf("Combine(%v,%v) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

type fakeSink struct {
	coeff float64
	var_  int
}

func (s *fakeSink) AddRight(coeff float64, varID int) {
	s.coeff += coeff
	s.var_ = varID
}

func TestEventEstimatorWiring(t *testing.T) {
	e := New(nil, Mem, 10)
	e.WithEstimator(
		func(on bool) bool { return on },
		func(sink ConstraintSink, on bool) {
			if on {
				sink.AddRight(1, 42)
			}
		},
	)

	if !e.IsEstimating(true) {
		t.Fatalf("expected IsEstimating(true) to be true")
	}
	if e.IsEstimating(false) {
		t.Fatalf("expected IsEstimating(false) to be false")
	}

	s := &fakeSink{}
	e.Estimate(s, true)
	if s.coeff != 1 || s.var_ != 42 {
		t.Fatalf("expected Estimate to write through to the sink, got %+v", s)
	}
}

func TestEventWithoutEstimatorIsInert(t *testing.T) {
	e := New(nil, Fetch, 5)
	if e.IsEstimating(true) {
		t.Fatalf("expected an event with no estimator to never claim estimation support")
	}
	e.Estimate(&fakeSink{}, true) // must not panic
}
