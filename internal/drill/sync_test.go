package drill

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/courtiq/drill-engine/internal/geometry"
)

func f64(v float64) *float64     { return &v }
func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }
func boolPtr(v bool) *bool       { return &v }

func webPayload() SyncPayload {
	return SyncPayload{
		Platform:           KindWebMediapipe,
		AverageFPS:         f64(28),
		TrackingQuality:    f64(82),
		SafetyScore:        f64(90),
		RoomCenter:         &geometry.Point{X: 1.5, Y: 1.0},
		ScaleFactor:        f64(1.02),
		ObstacleCount:      intPtr(1),
		LightingConditions: strPtr("good"),
		ReflectiveSurfaces: boolPtr(false),
	}
}

func TestMergeSync_IdempotentMerge(t *testing.T) {
	// syncSession(S, P); syncSession(S, P) эквивалентно одному вызову
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := webPayload()

	once := &TrainingSession{ID: "session1", Status: StatusActive}
	if err := MergeSync(once, payload, now); err != nil {
		t.Fatalf("MergeSync: %v", err)
	}

	twice := &TrainingSession{ID: "session1", Status: StatusActive}
	if err := MergeSync(twice, payload, now); err != nil {
		t.Fatalf("MergeSync: %v", err)
	}
	if err := MergeSync(twice, payload, now); err != nil {
		t.Fatalf("MergeSync (retry): %v", err)
	}

	if !reflect.DeepEqual(once.Quality, twice.Quality) {
		t.Errorf("retry changed record:\nonce:  %+v\ntwice: %+v", once.Quality, twice.Quality)
	}
}

func TestMergeSync_RetryMovesOnlyLastSyncAt(t *testing.T) {
	// Сетевой retry приходит позже по часам: сдвигается только
	// служебная отметка LastSyncAt, сливаемые данные не меняются
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(3 * time.Second)
	payload := webPayload()

	s := &TrainingSession{ID: "session1", Status: StatusActive}
	if err := MergeSync(s, payload, now); err != nil {
		t.Fatalf("MergeSync: %v", err)
	}
	first := *s.Quality

	if err := MergeSync(s, payload, later); err != nil {
		t.Fatalf("MergeSync (retry): %v", err)
	}

	if !s.Quality.LastSyncAt.Equal(later) {
		t.Errorf("lastSyncAt = %v, want %v", s.Quality.LastSyncAt, later)
	}
	second := *s.Quality
	second.LastSyncAt = first.LastSyncAt
	if !reflect.DeepEqual(first, second) {
		t.Errorf("retry changed merged data:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestMergeSync_MonotonicQuality(t *testing.T) {
	// averageFps и trackingQuality не убывают ни при какой
	// последовательности sync-вызовов
	s := &TrainingSession{ID: "session1", Status: StatusActive}
	now := time.Now()

	fpsSequence := []float64{20, 35, 25, 30, 10}
	peak := 0.0
	for _, fps := range fpsSequence {
		if fps > peak {
			peak = fps
		}
		err := MergeSync(s, SyncPayload{Platform: KindFlutterUnity, AverageFPS: f64(fps)}, now)
		if err != nil {
			t.Fatalf("MergeSync: %v", err)
		}
		if s.Quality.AverageFPS != peak {
			t.Errorf("after fps=%f: recorded %f, want peak %f", fps, s.Quality.AverageFPS, peak)
		}
	}
}

func TestMergeSync_PointInTimeLastWriterWins(t *testing.T) {
	s := &TrainingSession{ID: "session1", Status: StatusActive}
	now := time.Now()

	first := webPayload()
	if err := MergeSync(s, first, now); err != nil {
		t.Fatalf("MergeSync: %v", err)
	}

	// Более поздний отчет с худшим safetyScore перезаписывает:
	// это текущие физические условия, а не накопленное качество
	second := SyncPayload{
		Platform:      KindFlutterUnity,
		SafetyScore:   f64(60),
		ObstacleCount: intPtr(3),
	}
	if err := MergeSync(s, second, now.Add(time.Second)); err != nil {
		t.Fatalf("MergeSync: %v", err)
	}

	if s.Quality.SafetyScore != 60 {
		t.Errorf("safetyScore = %f, want 60 (last writer wins)", s.Quality.SafetyScore)
	}
	if s.Quality.ObstacleCount != 3 {
		t.Errorf("obstacleCount = %d, want 3", s.Quality.ObstacleCount)
	}
	if s.Quality.ReportedBy != KindFlutterUnity {
		t.Errorf("reportedBy = %s, want flutter_unity", s.Quality.ReportedBy)
	}

	// Поля, отсутствующие во втором отчете, сохраняются
	if s.Quality.LightingConditions != "good" {
		t.Errorf("absent field overwritten: lighting = %q", s.Quality.LightingConditions)
	}
}

func TestMergeSync_TerminalSessionRejected(t *testing.T) {
	for _, status := range []SessionStatus{StatusCompleted, StatusFailed} {
		s := &TrainingSession{ID: "session1", Status: status}

		err := MergeSync(s, webPayload(), time.Now())

		var conflict *SyncConflict
		if !errors.As(err, &conflict) {
			t.Errorf("status %s: expected SyncConflict, got %v", status, err)
		}
		if s.Quality != nil {
			t.Errorf("status %s: terminal session mutated by sync", status)
		}
	}
}

func TestMergeSync_InvalidPayloadRejected(t *testing.T) {
	tests := []struct {
		name    string
		payload SyncPayload
	}{
		{"unknown platform", SyncPayload{Platform: PlatformKind("desktop")}},
		{"negative fps", SyncPayload{Platform: KindWebMediapipe, AverageFPS: f64(-1)}},
		{"tracking quality out of range", SyncPayload{Platform: KindWebMediapipe, TrackingQuality: f64(120)}},
		{"context kind mismatch", SyncPayload{
			Platform: KindWebMediapipe,
			Context: &PlatformContext{
				Kind: KindFlutterUnity,
				AR:   &FlutterUnityContext{AREngine: "arcore"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &TrainingSession{ID: "session1", Status: StatusActive}
			if err := MergeSync(s, tt.payload, time.Now()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPlatformContext_Validate(t *testing.T) {
	valid := PlatformContext{
		Kind: KindWebMediapipe,
		Web:  &WebMediapipeContext{ModelComplexity: 1, ViewportWidth: 1280, ViewportHeight: 720},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid web context rejected: %v", err)
	}

	bothVariants := PlatformContext{
		Kind: KindWebMediapipe,
		Web:  &WebMediapipeContext{ModelComplexity: 1, ViewportWidth: 1280, ViewportHeight: 720},
		AR:   &FlutterUnityContext{AREngine: "arkit"},
	}
	if err := bothVariants.Validate(); err == nil {
		t.Error("context with both variants must be rejected")
	}

	missingVariant := PlatformContext{Kind: KindFlutterUnity}
	if err := missingVariant.Validate(); err == nil {
		t.Error("context with missing variant must be rejected")
	}
}
