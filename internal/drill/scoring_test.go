package drill

import (
	"math"
	"testing"
	"time"

	"github.com/courtiq/drill-engine/internal/sport"
)

func basketballProfile(t *testing.T) *sport.Profile {
	t.Helper()
	p, err := sport.ProfileFor("basketball")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	return p
}

// makeEvents создает поток событий с заданной маской попаданий
// и равномерным темпом
func makeEvents(hits []bool, intervalMs int64) []BounceEvent {
	events := make([]BounceEvent, 0, len(hits))
	ts := int64(1000)
	for i, hit := range hits {
		events = append(events, BounceEvent{
			SessionID:   "session1",
			TsMS:        ts,
			TargetIndex: i % 4,
			IsHit:       hit,
		})
		ts += intervalMs
	}
	return events
}

func TestRecompute_PrecisionExample(t *testing.T) {
	// 10 отскоков, 6 попаданий: precision = 60,
	// вклад в итог 0.6 * 60 = 36 до членов темпа и серии
	profile := basketballProfile(t)
	events := makeEvents([]bool{true, true, true, false, true, false, true, false, true, false}, 500)

	s := &TrainingSession{ID: "session1", Status: StatusActive, Difficulty: sport.DifficultyExpert}
	Recompute(s, events, 4500*time.Millisecond, profile)

	if s.Scores.Precision != 60 {
		t.Errorf("precision = %f, want 60", s.Scores.Precision)
	}

	precisionContribution := profile.Weights.Precision * s.Scores.Precision / 100.0
	if precisionContribution != 36 {
		t.Errorf("precision contribution = %f, want 36", precisionContribution)
	}

	if s.TotalBounces != 10 || s.TotalHits != 6 {
		t.Errorf("counters = %d/%d, want 10/6", s.TotalBounces, s.TotalHits)
	}
	if math.Abs(s.Accuracy-0.6) > 1e-9 {
		t.Errorf("accuracy = %f, want 0.6", s.Accuracy)
	}
}

func TestRecompute_Deterministic(t *testing.T) {
	// Повтор одного потока на свежей сессии дает идентичные оценки
	profile := basketballProfile(t)
	events := makeEvents([]bool{true, false, true, true, true, false, true}, 450)

	a := &TrainingSession{ID: "a", Status: StatusActive}
	b := &TrainingSession{ID: "b", Status: StatusActive}

	Recompute(a, events, 3*time.Second, profile)
	Recompute(b, events, 3*time.Second, profile)

	if a.Scores != b.Scores {
		t.Errorf("replay produced different scores: %+v vs %+v", a.Scores, b.Scores)
	}

	// Повторный пересчет той же сессии тоже идемпотентен
	first := a.Scores
	Recompute(a, events, 3*time.Second, profile)
	if a.Scores != first {
		t.Errorf("recompute not idempotent: %+v vs %+v", a.Scores, first)
	}
}

func TestRecompute_PaceSymmetric(t *testing.T) {
	profile := basketballProfile(t) // целевой темп 2 Гц

	// 9 интервалов за 4.5 сек = ровно 2 Гц
	onPace := makeEvents(make([]bool, 10), 500)
	s := &TrainingSession{Status: StatusActive}
	Recompute(s, onPace, 4500*time.Millisecond, profile)
	if math.Abs(s.Scores.Pace-100) > 1e-6 {
		t.Errorf("on-pace score = %f, want 100", s.Scores.Pace)
	}

	// Отклонение на 25% вверх и вниз штрафуется одинаково
	fast := &TrainingSession{Status: StatusActive}
	slow := &TrainingSession{Status: StatusActive}
	Recompute(fast, makeEvents(make([]bool, 10), 400), 3600*time.Millisecond, profile)  // 2.5 Гц
	Recompute(slow, makeEvents(make([]bool, 10), 667), 6003*time.Millisecond, profile) // ~1.5 Гц

	if math.Abs(fast.Scores.Pace-slow.Scores.Pace) > 1.0 {
		t.Errorf("pace deviation not symmetric: fast=%f slow=%f", fast.Scores.Pace, slow.Scores.Pace)
	}
}

func TestRecompute_StreakSaturates(t *testing.T) {
	profile := basketballProfile(t) // насыщение на 10

	allHits := makeEvents([]bool{true, true, true, true, true, true, true, true, true, true, true, true}, 500)
	s := &TrainingSession{Status: StatusActive}
	Recompute(s, allHits, 6*time.Second, profile)

	if s.Scores.Streak != 100 {
		t.Errorf("streak score = %f, want 100 (saturated)", s.Scores.Streak)
	}

	// Серия из 5 при насыщении 10 дает 50
	partial := makeEvents([]bool{true, true, true, true, true, false}, 500)
	s2 := &TrainingSession{Status: StatusActive}
	Recompute(s2, partial, 3*time.Second, profile)
	if s2.Scores.Streak != 50 {
		t.Errorf("streak score = %f, want 50", s2.Scores.Streak)
	}
}

func TestRecompute_TotalIsWeightedSum(t *testing.T) {
	profile := basketballProfile(t)
	events := makeEvents([]bool{true, true, false, true}, 500)

	s := &TrainingSession{Status: StatusActive}
	Recompute(s, events, 1500*time.Millisecond, profile)

	want := (60*s.Scores.Precision + 30*s.Scores.Pace + 10*s.Scores.Streak) / 100.0
	if math.Abs(s.Scores.Total-want) > 1e-9 {
		t.Errorf("total = %f, want weighted sum %f", s.Scores.Total, want)
	}
}

func TestRecompute_EmptyStream(t *testing.T) {
	profile := basketballProfile(t)

	s := &TrainingSession{Status: StatusActive}
	Recompute(s, nil, time.Second, profile)

	if s.Scores.Total != 0 || s.TotalBounces != 0 || s.Accuracy != 0 {
		t.Errorf("empty stream should zero the scores, got %+v", s.Scores)
	}
}

func TestRecompute_AvgReactionTime(t *testing.T) {
	profile := basketballProfile(t)
	events := makeEvents([]bool{true, true, true}, 400)

	s := &TrainingSession{Status: StatusActive}
	Recompute(s, events, 800*time.Millisecond, profile)

	if s.AvgReactionTimeMs != 400 {
		t.Errorf("avg reaction = %f ms, want 400", s.AvgReactionTimeMs)
	}
}
