package drill

import (
	"math"
	"time"

	"github.com/courtiq/drill-engine/internal/sport"
)

// Recompute пересчитывает подоценки и итог сессии по упорядоченному
// потоку событий. Идемпотентен: одинаковый поток и длительность всегда
// дают одинаковые оценки.
func Recompute(s *TrainingSession, events []BounceEvent, elapsed time.Duration, profile *sport.Profile) {
	s.TotalBounces = len(events)
	s.TotalHits = 0
	for _, e := range events {
		if e.IsHit {
			s.TotalHits++
		}
	}

	if s.TotalBounces > 0 {
		s.Accuracy = float64(s.TotalHits) / float64(s.TotalBounces)
	} else {
		s.Accuracy = 0
	}

	s.AvgReactionTimeMs = avgInterBounceMs(events)
	s.DurationMs = elapsed.Milliseconds()

	s.Scores.Precision = precisionScore(events)
	s.Scores.Pace = paceScore(events, elapsed, profile.TargetPaceHz)
	s.Scores.Streak = streakScore(events, profile.StreakCap)

	w := profile.Weights
	s.Scores.Total = (w.Precision*s.Scores.Precision +
		w.Pace*s.Scores.Pace +
		w.Streak*s.Scores.Streak) / 100.0
}

// precisionScore - доля попаданий среди попыток, в масштабе 100
func precisionScore(events []BounceEvent) float64 {
	if len(events) == 0 {
		return 0
	}

	hits := 0
	for _, e := range events {
		if e.IsHit {
			hits++
		}
	}

	return float64(hits) / float64(len(events)) * 100.0
}

// paceScore сравнивает фактический темп с целевым; отклонение в любую
// сторону снижает оценку симметрично
func paceScore(events []BounceEvent, elapsed time.Duration, targetHz float64) float64 {
	if len(events) < 2 || elapsed <= 0 {
		return 0
	}

	actualHz := float64(len(events)-1) / elapsed.Seconds()
	deviation := math.Abs(actualHz-targetHz) / targetHz

	score := 100.0 * (1.0 - deviation)
	if score < 0 {
		return 0
	}
	return score
}

// streakScore вознаграждает лучшую серию попаданий подряд,
// насыщаясь на конфигурируемом пороге
func streakScore(events []BounceEvent, streakCap int) float64 {
	best, run := 0, 0
	for _, e := range events {
		if e.IsHit {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}

	if best > streakCap {
		best = streakCap
	}

	return float64(best) / float64(streakCap) * 100.0
}

// avgInterBounceMs - средний интервал между последовательными ударами.
// Клиенты сообщают удары, а не стимулы, так что межударная задержка -
// наблюдаемый прокси времени реакции.
func avgInterBounceMs(events []BounceEvent) float64 {
	if len(events) < 2 {
		return 0
	}

	var total int64
	for i := 1; i < len(events); i++ {
		total += events[i].TsMS - events[i-1].TsMS
	}

	return float64(total) / float64(len(events)-1)
}
