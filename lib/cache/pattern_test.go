package cache

import (
	"testing"
	"time"
)

func TestPatternFeaturesNeedTwoAccesses(t *testing.T) {
	p := newAccessPattern()

	if got := p.features(); got != [featureCount]float64{} {
		t.Fatalf("expected zero features for empty pattern, got %v", got)
	}

	p.record(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if got := p.features(); got != [featureCount]float64{} {
		t.Fatalf("expected zero features after a single access, got %v", got)
	}
}

func TestPatternFeatures(t *testing.T) {
	p := newAccessPattern()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.record(base)
	p.record(base.Add(2 * time.Second))
	p.record(base.Add(3 * time.Second))

	// intervals are 2s and 1s
	f := p.features()
	if f[0] != 2 {
		t.Errorf("expected 2 intervals, got %v", f[0])
	}
	if f[1] != 1.5 {
		t.Errorf("expected mean interval 1.5, got %v", f[1])
	}
	if f[2] != 0.5 {
		t.Errorf("expected interval deviation 0.5, got %v", f[2])
	}
	if f[3] != 1 {
		t.Errorf("expected last interval 1, got %v", f[3])
	}
}

func TestPatternSingleInterval(t *testing.T) {
	p := newAccessPattern()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.record(base)
	p.record(base.Add(4 * time.Second))

	if f := p.features(); f != [featureCount]float64{1, 4, 0, 4} {
		t.Fatalf("unexpected features %v", f)
	}
}

func TestPatternWindowIsBounded(t *testing.T) {
	p := newAccessPattern()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < patternWindowSize*2; i++ {
		p.record(base.Add(time.Duration(i) * time.Second))
	}

	if got := p.size(); got != patternWindowSize {
		t.Fatalf("expected %d retained accesses, got %d", patternWindowSize, got)
	}
	if f := p.features(); f[0] != patternWindowSize {
		t.Fatalf("expected %d retained intervals, got %v", patternWindowSize, f[0])
	}
}
