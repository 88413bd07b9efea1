package sport

import "fmt"

// Difficulty представляет уровень сложности дрилла
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// Valid проверяет, что уровень сложности известен
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// ScoreWeights задает веса подоценок; сумма обязана быть равна 100
type ScoreWeights struct {
	Precision float64 `json:"precision"`
	Pace      float64 `json:"pace"`
	Streak    float64 `json:"streak"`
}

// Profile содержит спортивную конфигурацию движка
type Profile struct {
	Sport string `json:"sport"`

	// Радиусы допуска по уровням сложности, миллиметры.
	// Должны строго убывать: easy > medium > hard > expert.
	ToleranceRadiusMM map[Difficulty]float64 `json:"tolerance_radius_mm"`

	// Целевой темп отскоков, Гц
	TargetPaceHz float64 `json:"target_pace_hz"`

	Weights ScoreWeights `json:"weights"`

	// Насыщение подоценки за серию попаданий подряд
	StreakCap int `json:"streak_cap"`

	// Площадь, ниже которой включается room mode, м²
	VenueAreaThresholdM2 float64 `json:"venue_area_threshold_m2"`

	// Минимальная высота потолка без штрафа к безопасности, м
	MinCeilingM float64 `json:"min_ceiling_m"`
}

// Validate проверяет профиль при конфигурации; ошибка означает
// неисправимый дефект конфигурации, вызывающий останов при старте
func (p *Profile) Validate() error {
	sum := p.Weights.Precision + p.Weights.Pace + p.Weights.Streak
	if sum != 100 {
		return fmt.Errorf("score weights for %q must sum to 100, got %.1f", p.Sport, sum)
	}

	if p.TargetPaceHz <= 0 {
		return fmt.Errorf("target pace for %q must be positive, got %f", p.Sport, p.TargetPaceHz)
	}

	if p.StreakCap <= 0 {
		return fmt.Errorf("streak cap for %q must be positive, got %d", p.Sport, p.StreakCap)
	}

	order := []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert}
	prev := 0.0
	for i, d := range order {
		r, ok := p.ToleranceRadiusMM[d]
		if !ok {
			return fmt.Errorf("tolerance table for %q missing difficulty %q", p.Sport, d)
		}
		if r <= 0 {
			return fmt.Errorf("tolerance radius for %q/%q must be positive, got %f", p.Sport, d, r)
		}
		if i > 0 && r >= prev {
			return fmt.Errorf("tolerance radii for %q must strictly decrease with difficulty", p.Sport)
		}
		prev = r
	}

	return nil
}

// ToleranceForDifficulty возвращает радиус допуска в миллиметрах
func (p *Profile) ToleranceForDifficulty(d Difficulty) (float64, error) {
	r, ok := p.ToleranceRadiusMM[d]
	if !ok {
		return 0, fmt.Errorf("unknown difficulty: %s", d)
	}
	return r, nil
}

// registry хранит профили по идентификатору спорта
var registry = map[string]*Profile{
	"basketball": {
		Sport: "basketball",
		ToleranceRadiusMM: map[Difficulty]float64{
			DifficultyEasy:   300,
			DifficultyMedium: 200,
			DifficultyHard:   150,
			DifficultyExpert: 50,
		},
		TargetPaceHz:         2.0,
		Weights:              ScoreWeights{Precision: 60, Pace: 30, Streak: 10},
		StreakCap:            10,
		VenueAreaThresholdM2: 40.0,
		MinCeilingM:          2.4,
	},
	"tennis": {
		Sport: "tennis",
		ToleranceRadiusMM: map[Difficulty]float64{
			DifficultyEasy:   400,
			DifficultyMedium: 300,
			DifficultyHard:   200,
			DifficultyExpert: 100,
		},
		TargetPaceHz:         1.2,
		Weights:              ScoreWeights{Precision: 60, Pace: 30, Streak: 10},
		StreakCap:            8,
		VenueAreaThresholdM2: 120.0,
		MinCeilingM:          3.0,
	},
}

// ProfileFor возвращает профиль спорта или ошибку для неизвестного спорта
func ProfileFor(sportID string) (*Profile, error) {
	p, ok := registry[sportID]
	if !ok {
		return nil, fmt.Errorf("unknown sport: %s", sportID)
	}
	return p, nil
}

// ValidateAll проверяет все зарегистрированные профили.
// Вызывается при старте процесса: битая таблица - fail fast.
func ValidateAll() error {
	for id, p := range registry {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid sport profile %q: %w", id, err)
		}
	}
	return nil
}

// Sports возвращает список зарегистрированных идентификаторов спорта
func Sports() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}
