package drill

import (
	"errors"
	"math"
	"testing"

	"github.com/courtiq/drill-engine/internal/geometry"
)

func validImpact() ImpactInput {
	return ImpactInput{
		TsMS:             1000,
		WorldPosition:    geometry.Point{X: 1.02, Y: 0.95, Z: 0.05},
		CourtPosition:    geometry.Point{X: 1.02, Y: 0.95},
		TargetIndex:      0,
		TargetPosition:   &geometry.Point{X: 1.00, Y: 1.00},
		VisionConfidence: 80,
		AudioConfidence:  70,
	}
}

func TestValidateBounce_HitWithinTolerance(t *testing.T) {
	// Удар в (1.02, 0.95) по цели (1.00, 1.00): ошибка ~53.9 мм
	event, err := ValidateBounce("session1", validImpact(), 150)
	if err != nil {
		t.Fatalf("ValidateBounce: %v", err)
	}

	if math.Abs(event.ErrorDistanceMM-53.85) > 0.1 {
		t.Errorf("ErrorDistanceMM = %f, want ~53.9", event.ErrorDistanceMM)
	}
	if !event.IsHit {
		t.Error("expected hit for error 53.9mm within tolerance 150mm")
	}
}

func TestValidateBounce_MissOutsideTolerance(t *testing.T) {
	event, err := ValidateBounce("session1", validImpact(), 50)
	if err != nil {
		t.Fatalf("ValidateBounce: %v", err)
	}

	if event.IsHit {
		t.Error("expected miss for error 53.9mm outside tolerance 50mm")
	}
}

func TestValidateBounce_HitMissConsistency(t *testing.T) {
	// Инвариант: isHit == (errorDistance <= toleranceRadius), всегда
	radii := []float64{300, 200, 150, 54, 53, 50}

	for _, radius := range radii {
		event, err := ValidateBounce("session1", validImpact(), radius)
		if err != nil {
			t.Fatalf("ValidateBounce(radius=%f): %v", radius, err)
		}
		if event.IsHit != (event.ErrorDistanceMM <= event.ToleranceRadiusMM) {
			t.Errorf("radius %f: isHit=%v inconsistent with error=%f", radius, event.IsHit, event.ErrorDistanceMM)
		}
	}
}

func TestValidateBounce_MissingTargetRejected(t *testing.T) {
	input := validImpact()
	input.TargetPosition = nil

	_, err := ValidateBounce("session1", input, 150)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "target_position" {
		t.Errorf("error field = %s, want target_position", verr.Field)
	}
}

func TestValidateBounce_InvalidInputsRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ImpactInput)
	}{
		{"zero timestamp", func(i *ImpactInput) { i.TsMS = 0 }},
		{"negative target index", func(i *ImpactInput) { i.TargetIndex = -1 }},
		{"confidence above 100", func(i *ImpactInput) { i.VisionConfidence = 101 }},
		{"negative confidence", func(i *ImpactInput) { i.AudioConfidence = -5 }},
		{"NaN position", func(i *ImpactInput) { i.CourtPosition.X = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validImpact()
			tt.mutate(&input)

			_, err := ValidateBounce("session1", input, 150)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestValidateBounce_EmptySessionRejected(t *testing.T) {
	if _, err := ValidateBounce("", validImpact(), 150); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestFuseConfidence_SingleSensorNeverExceeded(t *testing.T) {
	// При молчащем сенсоре слитая уверенность не превышает отчитавшийся
	for _, c := range []float64{10, 50, 90, 100} {
		if got := FuseConfidence(c, 0); got > c {
			t.Errorf("FuseConfidence(%f, 0) = %f exceeds input", c, got)
		}
		if got := FuseConfidence(0, c); got > c {
			t.Errorf("FuseConfidence(0, %f) = %f exceeds input", c, got)
		}
	}
}

func TestFuseConfidence_AgreementRewarded(t *testing.T) {
	agree := FuseConfidence(80, 80)
	disagree := FuseConfidence(80, 30)

	if agree <= disagree {
		t.Errorf("agreement (%f) should score higher than disagreement (%f)", agree, disagree)
	}
	if agree != 80 {
		t.Errorf("perfect agreement at 80 should fuse to 80, got %f", agree)
	}
}

func TestFuseConfidence_MonotonicAndBounded(t *testing.T) {
	prev := -1.0
	for v := 1.0; v <= 100; v++ {
		got := FuseConfidence(v, 60)
		if got < prev {
			t.Fatalf("FuseConfidence not monotonic in vision at %f: %f < %f", v, got, prev)
		}
		if got < 0 || got > 100 {
			t.Fatalf("FuseConfidence(%f, 60) = %f outside [0, 100]", v, got)
		}
		prev = got
	}

	if got := FuseConfidence(0, 0); got != 0 {
		t.Errorf("FuseConfidence(0, 0) = %f, want 0", got)
	}
}
