package safety

import (
	"testing"
	"time"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/geometry"
	"github.com/courtiq/drill-engine/internal/room"
)

func testConstraints() *room.Constraints {
	return &room.Constraints{
		Sport:   "basketball",
		WidthM:  4.0,
		HeightM: 3.0,
		AreaM2:  12.0,
	}
}

// snapshotAt строит снимок с четырьмя видимыми ориентирами вокруг центра
func snapshotAt(tsMS int64, x, y float64) PoseSnapshot {
	return PoseSnapshot{
		TsMS: tsMS,
		Landmarks: []Landmark{
			{Name: "left_shoulder", Position: geometry.Point{X: x - 0.1, Y: y}, Visibility: 0.9},
			{Name: "right_shoulder", Position: geometry.Point{X: x + 0.1, Y: y}, Visibility: 0.9},
			{Name: "left_hip", Position: geometry.Point{X: x - 0.1, Y: y}, Visibility: 0.9},
			{Name: "right_hip", Position: geometry.Point{X: x + 0.1, Y: y}, Visibility: 0.9},
		},
	}
}

func TestEvaluate_SafeInCenter(t *testing.T) {
	m, err := NewMonitor(testConstraints())
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	a := m.Evaluate("s1", snapshotAt(1000, 2.0, 1.5), nil, time.Now())
	if !a.Safe {
		t.Errorf("pose in room center must be safe, incidents: %+v", a.Incidents)
	}
	if len(a.Incidents) != 0 {
		t.Errorf("unexpected incidents: %+v", a.Incidents)
	}
	if a.DistanceToBoundaryM == nil || *a.DistanceToBoundaryM != 1.5 {
		t.Errorf("distance to boundary = %v, want 1.5", a.DistanceToBoundaryM)
	}
}

func TestEvaluate_BoundaryWarning(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	// 0.35 м до левой стены: предупреждение, но не критично
	a := m.Evaluate("s1", snapshotAt(1000, 0.35, 1.5), nil, time.Now())
	if a.Safe {
		t.Error("pose near boundary must not be safe")
	}
	if len(a.Incidents) != 1 {
		t.Fatalf("got %d incidents, want 1", len(a.Incidents))
	}
	inc := a.Incidents[0]
	if inc.Type != drill.IncidentBoundaryViolation || inc.Severity != drill.SeverityWarning {
		t.Errorf("incident = %s/%s, want boundary_violation/warning", inc.Type, inc.Severity)
	}
	if a.Critical() {
		t.Error("warning must not be critical")
	}
}

func TestEvaluate_BoundaryCritical(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	a := m.Evaluate("s1", snapshotAt(1000, 0.1, 1.5), nil, time.Now())
	if !a.Critical() {
		t.Fatal("pose 0.1 m from boundary must be critical")
	}
	inc := a.Incidents[0]
	if inc.Type != drill.IncidentBoundaryViolation || inc.Severity != drill.SeverityCritical {
		t.Errorf("incident = %s/%s, want boundary_violation/critical", inc.Type, inc.Severity)
	}
	if inc.UserPosition == nil {
		t.Error("critical incident must record user position")
	}
}

func TestEvaluate_OutstretchedLimbAtBoundary(t *testing.T) {
	m, err := NewMonitor(&room.Constraints{Sport: "basketball", WidthM: 5.0, HeightM: 5.0, AreaM2: 25.0})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	// Корпус в центре зоны, запястье вытянуто к стене: граница
	// проверяется по каждому ориентиру, а не по центроиду
	snapshot := PoseSnapshot{
		TsMS: 1000,
		Landmarks: []Landmark{
			{Name: "left_shoulder", Position: geometry.Point{X: 2.4, Y: 2.5}, Visibility: 0.9},
			{Name: "right_shoulder", Position: geometry.Point{X: 2.6, Y: 2.5}, Visibility: 0.9},
			{Name: "left_hip", Position: geometry.Point{X: 2.4, Y: 2.7}, Visibility: 0.9},
			{Name: "right_hip", Position: geometry.Point{X: 2.6, Y: 2.7}, Visibility: 0.9},
			{Name: "left_wrist", Position: geometry.Point{X: 0.05, Y: 2.5}, Visibility: 0.9},
		},
	}

	a := m.Evaluate("s1", snapshot, nil, time.Now())
	if a.Safe {
		t.Error("wrist at the wall must not be safe")
	}
	if !a.Critical() {
		t.Fatalf("wrist 0.05 m from boundary must be critical, incidents: %+v", a.Incidents)
	}
	if a.DistanceToBoundaryM == nil || *a.DistanceToBoundaryM > 0.051 {
		t.Errorf("distance to boundary = %v, want 0.05 (nearest landmark)", a.DistanceToBoundaryM)
	}

	inc := a.Incidents[0]
	if inc.Type != drill.IncidentBoundaryViolation || inc.Severity != drill.SeverityCritical {
		t.Errorf("incident = %s/%s, want boundary_violation/critical", inc.Type, inc.Severity)
	}
	if inc.UserPosition == nil || inc.UserPosition.X != 0.05 {
		t.Errorf("incident position = %+v, want the offending wrist", inc.UserPosition)
	}
}

func TestEvaluate_OutsideZoneIsCritical(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	a := m.Evaluate("s1", snapshotAt(1000, -0.5, 1.5), nil, time.Now())
	if !a.Critical() {
		t.Error("pose outside zone must be critical")
	}
}

func TestEvaluate_VelocityNearBoundary(t *testing.T) {
	m, _ := NewMonitor(testConstraints())
	now := time.Now()

	// 2.0 м за 250 мс = 8 м/с, финиш в 0.8 м от стены: предупреждение
	prev := snapshotAt(1000, 2.8, 1.5)
	cur := snapshotAt(1250, 0.8, 1.5)

	a := m.Evaluate("s1", cur, &prev, now)
	if a.VelocityMS == nil {
		t.Fatal("velocity must be measured with a previous snapshot")
	}
	if *a.VelocityMS < 7.9 || *a.VelocityMS > 8.1 {
		t.Errorf("velocity = %f, want ~8.0", *a.VelocityMS)
	}

	found := false
	for _, inc := range a.Incidents {
		if inc.Type == drill.IncidentCollisionRisk && inc.Severity == drill.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected collision_risk warning, incidents: %+v", a.Incidents)
	}
}

func TestEvaluate_VelocityInDangerZoneIsCritical(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	// Финиш в 0.4 м от стены на 8 м/с: критический риск столкновения
	prev := snapshotAt(1000, 2.4, 1.5)
	cur := snapshotAt(1250, 0.4, 1.5)

	a := m.Evaluate("s1", cur, &prev, time.Now())
	if !a.Critical() {
		t.Fatalf("fast approach to boundary must be critical, incidents: %+v", a.Incidents)
	}

	found := false
	for _, inc := range a.Incidents {
		if inc.Type == drill.IncidentCollisionRisk && inc.Severity == drill.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Errorf("expected critical collision_risk, incidents: %+v", a.Incidents)
	}
}

func TestEvaluate_FastInCenterIsSafe(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	// Та же скорость, но далеко от границ - инцидента нет
	prev := snapshotAt(1000, 1.3, 1.5)
	cur := snapshotAt(1250, 2.0, 1.5)

	a := m.Evaluate("s1", cur, &prev, time.Now())
	for _, inc := range a.Incidents {
		if inc.Type == drill.IncidentCollisionRisk {
			t.Errorf("no collision risk expected away from boundary: %+v", inc)
		}
	}
}

func TestEvaluate_TrackingLost(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	snapshot := PoseSnapshot{
		TsMS: 1000,
		Landmarks: []Landmark{
			{Name: "left_shoulder", Position: geometry.Point{X: 2, Y: 1.5}, Visibility: 0.9},
			{Name: "right_shoulder", Position: geometry.Point{X: 2, Y: 1.5}, Visibility: 0.9},
			{Name: "left_hip", Position: geometry.Point{X: 2, Y: 1.5}, Visibility: 0.3},
			{Name: "right_hip", Position: geometry.Point{X: 2, Y: 1.5}, Visibility: 0.1},
		},
	}

	a := m.Evaluate("s1", snapshot, nil, time.Now())
	if a.Safe {
		t.Error("degraded tracking must not be safe")
	}
	if len(a.Incidents) != 1 || a.Incidents[0].Type != drill.IncidentTrackingLost {
		t.Fatalf("expected single tracking_lost incident, got %+v", a.Incidents)
	}
	if a.Incidents[0].Severity != drill.SeverityWarning {
		t.Errorf("tracking loss severity = %s, want warning", a.Incidents[0].Severity)
	}
	if a.DistanceToBoundaryM != nil {
		t.Error("boundary distance must not be reported without reliable tracking")
	}
}

func TestEvaluate_NonMonotonicTimestampSkipsVelocity(t *testing.T) {
	m, _ := NewMonitor(testConstraints())

	prev := snapshotAt(2000, 2.0, 1.5)
	cur := snapshotAt(1000, 2.5, 1.5)

	a := m.Evaluate("s1", cur, &prev, time.Now())
	if a.VelocityMS != nil {
		t.Error("velocity must be skipped when timestamps do not advance")
	}
}

func TestNewMonitor_RequiresConstraints(t *testing.T) {
	if _, err := NewMonitor(nil); err == nil {
		t.Error("expected error for nil constraints")
	}
	if _, err := NewMonitor(&room.Constraints{WidthM: 0, HeightM: 3}); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
